package invoke

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// batchSize bounds how many (rule, listener) pairs accumulate in one
// matched-pairs batch before a new one opens. Batches are the unit
// of parallelism in ApplyAll.
const batchSize = 128

// pair is one matched (rule, listener) combination awaiting application.
type pair struct {
	rule  *InvokeEntry
	other Entity
}

// InvokeBus is the per-frame topic-keyed broadcast/listen/apply bus.
// Zero value is not usable; use NewInvokeBus.
type InvokeBus struct {
	topicMu sync.RWMutex
	// publishedThisFrame is read-only within a frame's listen phase;
	// publishedNextFrame accumulates broadcasts for the following frame.
	publishedThisFrame map[string][]*InvokeEntry
	publishedNextFrame map[string][]*InvokeEntry

	batchMu sync.Mutex
	batches [][]pair
}

// NewInvokeBus creates an empty bus.
func NewInvokeBus() *InvokeBus {
	return &InvokeBus{
		publishedThisFrame: make(map[string][]*InvokeEntry),
		publishedNextFrame: make(map[string][]*InvokeEntry),
	}
}

// Broadcast publishes rule to its topic for next frame's listeners. A
// rule with an empty topic is dropped with a warning.
func (b *InvokeBus) Broadcast(rule *InvokeEntry) {
	if rule.Topic == "" {
		log.Warn().Uint64("rule", rule.ID).Msg("invoke: broadcast of rule with empty topic dropped")
		return
	}
	b.topicMu.Lock()
	defer b.topicMu.Unlock()
	b.publishedNextFrame[rule.Topic] = append(b.publishedNextFrame[rule.Topic], rule)
}

// Listen evaluates every rule currently published on topic against
// listener (other = listener, self = rule's own entity), appending a
// matching (rule, listener) pair to the current batch. Self-broadcast
// rules are never matched against their own owner (a
// global rule never fires back on the entity that published it in the
// same listen call, since that would double-count a "self" interaction
// already covered by the entity's local rules).
func (b *InvokeBus) Listen(listener Entity, topic string) {
	b.topicMu.RLock()
	rules := b.publishedThisFrame[topic]
	b.topicMu.RUnlock()

	var matched []pair
	for _, rule := range rules {
		if rule.Self == listener {
			continue
		}
		if rule.Predicate.EvalPredicate(listener.Document()) {
			matched = append(matched, pair{rule: rule, other: listener})
		}
	}
	if len(matched) == 0 {
		return
	}

	b.batchMu.Lock()
	defer b.batchMu.Unlock()
	for len(matched) > 0 {
		n := len(matched)
		if n > batchSize {
			n = batchSize
		}
		b.appendToBatchLocked(matched[:n])
		matched = matched[n:]
	}
}

// appendToBatchLocked appends pairs to the last open batch, opening a new
// one if the last batch is already full or doesn't exist.
func (b *InvokeBus) appendToBatchLocked(pairs []pair) {
	if len(b.batches) > 0 {
		last := &b.batches[len(b.batches)-1]
		if len(*last) < batchSize {
			room := batchSize - len(*last)
			if room > len(pairs) {
				room = len(pairs)
			}
			*last = append(*last, pairs[:room]...)
			pairs = pairs[room:]
		}
	}
	for len(pairs) > 0 {
		n := len(pairs)
		if n > batchSize {
			n = batchSize
		}
		batch := make([]pair, n)
		copy(batch, pairs[:n])
		b.batches = append(b.batches, batch)
		pairs = pairs[n:]
	}
}

// ApplyAll spawns one worker per batch, each iterating its pairs in
// declared order (ordering holds within a batch, not across batches)
// and joins before returning.
func (b *InvokeBus) ApplyAll(global Global) {
	b.batchMu.Lock()
	batches := b.batches
	b.batches = nil
	b.batchMu.Unlock()

	if len(batches) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(batches))
	for _, batch := range batches {
		batch := batch
		go func() {
			defer wg.Done()
			for _, p := range batch {
				p.rule.Apply(p.other, global)
			}
		}()
	}
	wg.Wait()
}

// EndFrame clears the matched-pairs state and swaps published_next_frame
// into published_this_frame, implementing the one-frame broadcast delay.
func (b *InvokeBus) EndFrame() {
	b.batchMu.Lock()
	b.batches = nil
	b.batchMu.Unlock()

	b.topicMu.Lock()
	b.publishedThisFrame = b.publishedNextFrame
	b.publishedNextFrame = make(map[string][]*InvokeEntry)
	b.topicMu.Unlock()
}
