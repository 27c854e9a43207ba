package functree

import "testing"

// "if 0 X" executes zero commands, "if 1 X" executes X —
// both predicates are bare numeric literals, not booleans.
func TestEvalBool_NumericLiteralsFollowNonzeroTruthModel(t *testing.T) {
	c := NewExprCache(10)

	if c.EvalBool("0") {
		t.Fatal("0 should be false")
	}
	if !c.EvalBool("1") {
		t.Fatal("1 should be true")
	}
}

func TestEvalBool_ComparisonExpression(t *testing.T) {
	c := NewExprCache(10)

	if !c.EvalBool("12 > 10") {
		t.Fatal("12 > 10 should be true")
	}
	if c.EvalBool("5 > 10") {
		t.Fatal("5 > 10 should be false")
	}
}

func TestEvalBool_InvalidExpressionIsFalseNotPanic(t *testing.T) {
	c := NewExprCache(10)
	if c.EvalBool("not valid expr (") {
		t.Fatal("an unparsable expression must evaluate as false, not panic")
	}
}

func TestCompileAndCache_ReusesCompiledProgram(t *testing.T) {
	c := NewExprCache(10)
	p1, err := c.CompileAndCache("1 + 1")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := c.CompileAndCache("1 + 1")
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Fatal("expected the same cached *vm.Program on repeat compile")
	}
}

func TestExprCache_EvictsLeastRecentlyUsedBeyondCapacity(t *testing.T) {
	c := NewExprCache(2)
	c.EvalBool("1")
	c.EvalBool("2")
	c.EvalBool("1") // touch "1" again so "2" becomes the LRU victim
	c.EvalBool("3") // evicts "2"

	if c.lru.Len() != 2 {
		t.Fatalf("expected cache size capped at 2, got %d", c.lru.Len())
	}
	if _, ok := c.cache["2"]; ok {
		t.Fatal("expected \"2\" to have been evicted as least recently used")
	}
}
