package invoke

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbastigk/nebulite/internal/document"
	"github.com/lbastigk/nebulite/internal/errs"
	"github.com/lbastigk/nebulite/internal/expression"
)

// fakeEntity is a minimal invoke.Entity for bus/rule tests.
type fakeEntity struct {
	doc *document.Document
	ran []string
	mu  sync.Mutex
}

func newFakeEntity() *fakeEntity { return &fakeEntity{doc: document.New()} }

func (f *fakeEntity) Document() *document.Document { return f.doc }
func (f *fakeEntity) Run(cmd string) errs.Result {
	f.mu.Lock()
	f.ran = append(f.ran, cmd)
	f.mu.Unlock()
	return errs.OK
}

// fakeGlobal is a minimal invoke.Global for tests.
type fakeGlobal struct {
	doc   *document.Document
	queue []string
	mu    sync.Mutex
}

func newFakeGlobal() *fakeGlobal { return &fakeGlobal{doc: document.New()} }

func (g *fakeGlobal) Document() *document.Document { return g.doc }
func (g *fakeGlobal) EnqueueInternal(cmd string) {
	g.mu.Lock()
	g.queue = append(g.queue, cmd)
	g.mu.Unlock()
}

// binderFor builds an expression.Binder for compiling rules owned by
// owner, resolving global through global's Document.
type binderFor struct {
	self, global *document.Document
}

func (b *binderFor) BindSelf(key string) *float64               { return b.self.GetStableDoublePointer(key) }
func (b *binderFor) BindGlobal(key string) *float64             { return b.global.GetStableDoublePointer(key) }
func (b *binderFor) BindDoc(path, key string) (*float64, error) { return nil, nil }
func (b *binderFor) SelfDoc() *document.Document                { return b.self }
func (b *binderFor) GlobalDoc() *document.Document              { return b.global }
func (b *binderFor) ResolveDoc(path string) (*document.Document, error) {
	return document.New(), nil
}

// TestBroadcastDelayedOneFrame: a rule broadcast in frame N is visible to
// listeners in frame N+1, not frame N.
func TestBroadcastDelayedOneFrame(t *testing.T) {
	bus := NewInvokeBus()
	global := newFakeGlobal()

	e1 := newFakeEntity() // listener
	document.Set(e1.doc, "count", 0.0)
	e2 := newFakeEntity() // publisher

	binder := &binderFor{self: e2.doc, global: global.doc}
	pred, err := expression.Compile("1", binder)
	require.NoError(t, err)
	valueExpr, err := expression.Compile("1", binder)
	require.NoError(t, err)

	rule := NewInvokeEntry("tick", e2)
	rule.Predicate = pred
	rule.Assignments = []Assignment{{Target: TargetOther, Key: "count", Op: OpAdd, Value: valueExpr}}

	bus.Broadcast(rule)
	// Same-frame listen must not see it yet.
	bus.Listen(e1, "tick")
	bus.ApplyAll(global)
	assert.Equal(t, 0.0, document.GetFloat(e1.doc, "count", -1))

	for i := 0; i < 5; i++ {
		bus.EndFrame()
		bus.Broadcast(rule)
		bus.Listen(e1, "tick")
		bus.ApplyAll(global)
	}
	assert.Equal(t, 5.0, document.GetFloat(e1.doc, "count", -1))
}

// TestEmptyTopicNeverMatchesOthers: a rule with topic == "" is never
// matched against any entity other than its own self (it is simply never
// broadcast).
func TestEmptyTopicNeverMatchesOthers(t *testing.T) {
	bus := NewInvokeBus()
	e1 := newFakeEntity()
	e2 := newFakeEntity()
	binder := &binderFor{self: e1.doc, global: document.New()}
	pred, err := expression.Compile("1", binder)
	require.NoError(t, err)

	rule := NewInvokeEntry("", e1)
	rule.Predicate = pred
	bus.Broadcast(rule) // dropped: empty topic

	bus.EndFrame()
	bus.Listen(e2, "")
	bus.ApplyAll(newFakeGlobal())
	// Nothing should have matched; applying an empty bus is a no-op.
	assert.Equal(t, 0.0, document.GetFloat(e2.doc, "touched", 0))
}

// TestConcurrentBatchesAddAtomically: 1000 pairs across
// concurrent batches incrementing global.hits by 1 each yield exactly 1000.
func TestConcurrentBatchesAddAtomically(t *testing.T) {
	bus := NewInvokeBus()
	global := newFakeGlobal()
	publisher := newFakeEntity()

	binder := &binderFor{self: publisher.doc, global: global.doc}
	pred, err := expression.Compile("1", binder)
	require.NoError(t, err)
	one, err := expression.Compile("1", binder)
	require.NoError(t, err)

	rule := NewInvokeEntry("hit", publisher)
	rule.Predicate = pred
	rule.Assignments = []Assignment{{Target: TargetGlobal, Key: "hits", Op: OpAdd, Value: one}}
	bus.Broadcast(rule)
	bus.EndFrame()

	for i := 0; i < 1000; i++ {
		bus.Listen(newFakeEntity(), "hit")
	}
	bus.ApplyAll(global)
	assert.Equal(t, 1000.0, document.GetFloat(global.doc, "hits", -1))
}
