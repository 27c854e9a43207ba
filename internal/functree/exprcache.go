package functree

import (
	"container/list"
	"math"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprCache is a thread-safe LRU cache of compiled expr-lang programs.
// The hot per-frame rule evaluator (internal/expression)
// never touches this — it is reserved for the non-hot-path command
// predicates the `if`/`assert` commands evaluate, after any `$()`
// substitution has already reduced them to plain arithmetic/boolean text.
type ExprCache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.RWMutex
}

type exprCacheEntry struct {
	key     string
	program *vm.Program
}

// NewExprCache creates a cache holding up to capacity compiled programs
// (capacity <= 0 defaults to 100).
func NewExprCache(capacity int) *ExprCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &ExprCache{capacity: capacity, cache: make(map[string]*list.Element), lru: list.New()}
}

func (c *ExprCache) get(src string) (*vm.Program, bool) {
	// Full lock, not RLock: MoveToFront mutates the list.
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.cache[src]; ok {
		c.lru.MoveToFront(el)
		return el.Value.(*exprCacheEntry).program, true
	}
	return nil, false
}

func (c *ExprCache) put(src string, p *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.cache[src]; ok {
		c.lru.MoveToFront(el)
		el.Value.(*exprCacheEntry).program = p
		return
	}
	el := c.lru.PushFront(&exprCacheEntry{key: src, program: p})
	c.cache[src] = el
	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*exprCacheEntry).key)
		}
	}
}

// CompileAndCache compiles src as a predicate expr-lang expression, caching
// the result by source text. No expected-type constraint is imposed at
// compile time: predicates are as often a bare numeric literal ("0", "1") as a genuine boolean comparison ("self.x > 10"), and
// expr-lang's AsBool() rejects the former at compile time since int is not
// convertible to bool. EvalBool applies the nonzero-and-non-NaN truth
// model uniformly to whatever type comes back.
func (c *ExprCache) CompileAndCache(src string) (*vm.Program, error) {
	if p, ok := c.get(src); ok {
		return p, nil
	}
	p, err := expr.Compile(src)
	if err != nil {
		return nil, err
	}
	c.put(src, p)
	return p, nil
}

// EvalBool compiles (or reuses) src and runs it with no environment,
// applying the engine's standard nonzero-and-non-NaN truth model
// to whatever type comes back: a genuine bool is used as-is; a numeric
// result is true iff nonzero and not NaN; anything else, or a compile/eval
// failure, is false — the same
// predicate-failures-are-not-errors self-heal the rule evaluator applies.
func (c *ExprCache) EvalBool(src string) bool {
	p, err := c.CompileAndCache(src)
	if err != nil {
		return false
	}
	out, err := expr.Run(p, nil)
	if err != nil {
		return false
	}
	switch v := out.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0 && !math.IsNaN(v)
	default:
		return false
	}
}
