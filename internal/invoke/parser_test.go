package invoke

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbastigk/nebulite/internal/document"
)

func TestParseBytesSingleRule(t *testing.T) {
	self := newFakeEntity()
	binder := &binderFor{self: self.doc, global: document.New()}

	raw := []byte(`{
		"topic": "tick",
		"logicalArg": "1",
		"exprs": ["other.count += 1"],
		"functioncalls_self": ["self echo hi"]
	}`)

	entries := ParseBytes(raw, binder, self)
	require.Len(t, entries, 1)
	assert.Equal(t, "tick", entries[0].Topic)
	require.Len(t, entries[0].Assignments, 1)
	assert.Equal(t, TargetOther, entries[0].Assignments[0].Target)
	assert.Equal(t, OpAdd, entries[0].Assignments[0].Op)
	require.Len(t, entries[0].FunctioncallsSelf, 1)
}

func TestParseBytesAndCombinesLogicalArgArray(t *testing.T) {
	self := newFakeEntity()
	document.Set(self.doc, "x", 12.0)
	binder := &binderFor{self: self.doc, global: document.New()}

	raw := []byte(`{"topic":"t", "logicalArg": ["$(self.x) > 10", "1"], "exprs": ["self.x = 0"]}`)
	entries := ParseBytes(raw, binder, self)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Predicate.EvalPredicate(nil))
}

func TestParseBytesSkipsInvalidAssignmentButKeepsEntry(t *testing.T) {
	self := newFakeEntity()
	binder := &binderFor{self: self.doc, global: document.New()}

	raw := []byte(`[
		{"topic": "a", "exprs": ["self.x = 1"]},
		{"topic": "b", "exprs": ["not-a-valid-assignment"]}
	]`)
	entries := ParseBytes(raw, binder, self)
	require.Len(t, entries, 2)
	assert.Empty(t, entries[1].Assignments)
}

func TestParseBytesRejectsNonJSON(t *testing.T) {
	self := newFakeEntity()
	binder := &binderFor{self: self.doc, global: document.New()}
	entries := ParseBytes([]byte("not json at all"), binder, self)
	assert.Nil(t, entries)
}

func TestCompileAssignmentOperators(t *testing.T) {
	self := newFakeEntity()
	binder := &binderFor{self: self.doc, global: document.New()}

	cases := map[string]AssignOp{
		"self.x = 1":  OpSet,
		"self.x += 1": OpAdd,
		"self.x *= 2": OpMultiply,
		"self.x |= a": OpConcat,
	}
	for src, wantOp := range cases {
		a, err := compileAssignment(src, binder)
		require.NoError(t, err, src)
		assert.Equal(t, wantOp, a.Op, src)
	}
}
