package functree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbastigk/nebulite/internal/errs"
)

func TestBindFunction_DispatchesPositionalArgs(t *testing.T) {
	tree := New("root")
	var got []string
	err := tree.BindFunction("echo", func(args []string) errs.Result {
		got = args
		return errs.OK
	}, "echo args back")
	require.NoError(t, err)

	res := tree.ParseArgs([]string{"echo", "a", "b", "c"})
	assert.True(t, res.Ok())
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestBindFunction_DuplicateNameErrors(t *testing.T) {
	tree := New("root")
	require.NoError(t, tree.BindFunction("x", func(args []string) errs.Result { return errs.OK }, ""))
	err := tree.BindFunction("x", func(args []string) errs.Result { return errs.OK }, "")
	assert.Error(t, err)
}

func TestBindCategory_ShadowingParentErrors(t *testing.T) {
	parent := New("root")
	require.NoError(t, parent.BindFunction("delete", func(args []string) errs.Result { return errs.OK }, ""))
	child := NewChild("entity", parent)
	err := child.BindFunction("delete", func(args []string) errs.Result { return errs.OK }, "")
	assert.Error(t, err)
}

func TestParseArgs_ChainsToParentOnUnknownFunction(t *testing.T) {
	parent := New("root")
	var called bool
	require.NoError(t, parent.BindFunction("quit", func(args []string) errs.Result {
		called = true
		return errs.OK
	}, ""))

	child := NewChild("entity", parent)
	require.NoError(t, child.BindFunction("delete", func(args []string) errs.Result { return errs.OK }, ""))

	res := child.ParseArgs([]string{"quit"})
	assert.True(t, res.Ok())
	assert.True(t, called)
}

func TestParseArgs_UnknownAtRootIsCritical(t *testing.T) {
	tree := New("root")
	res := tree.ParseArgs([]string{"nope"})
	assert.True(t, res.IsCritical())
	assert.Equal(t, errs.CriticalFunctionNotImplemented, res.Code)
}

func TestParseArgs_HandlerErrorDoesNotFallThroughToParent(t *testing.T) {
	parent := New("root")
	var parentCalled bool
	require.NoError(t, parent.BindFunction("shared", func(args []string) errs.Result {
		parentCalled = true
		return errs.OK
	}, ""))

	// The child cannot rebind "shared" (that would shadow the parent), so
	// its failing handler lives under its own name.
	child := NewChild("entity", parent)
	require.NoError(t, child.BindFunction("local", func(args []string) errs.Result {
		return errs.NewResult(errs.CriticalCustomAssert, nil)
	}, ""))

	res := child.ParseArgs([]string{"local"})
	assert.True(t, res.IsCritical())
	assert.Equal(t, errs.CriticalCustomAssert, res.Code)
	assert.False(t, parentCalled)
}

func TestBindVariable_FlagsStrippedBeforeDispatch(t *testing.T) {
	tree := New("root")
	var verbose bool
	var name string
	var count int
	require.NoError(t, tree.BindVariable(&verbose, "verbose", "v", "be verbose"))
	require.NoError(t, tree.BindVariable(&name, "name", "n", "a name"))
	require.NoError(t, tree.BindVariable(&count, "count", "c", "a count"))

	var positional []string
	require.NoError(t, tree.BindFunction("run", func(args []string) errs.Result {
		positional = args
		return errs.OK
	}, ""))

	res := tree.ParseArgs([]string{"--verbose", "--name=bob", "-c=3", "run", "tail1", "tail2"})
	require.True(t, res.Ok())
	assert.True(t, verbose)
	assert.Equal(t, "bob", name)
	assert.Equal(t, 3, count)
	assert.Equal(t, []string{"tail1", "tail2"}, positional)
}

func TestParseArgs_EmptyIsOK(t *testing.T) {
	tree := New("root")
	res := tree.ParseArgs(nil)
	assert.True(t, res.Ok())
}

// For-style unrolled repetition dispatches N commands in order; a
// caller (internal/globalspace's "for" command) is responsible for the
// unrolling itself, but the dispatch primitive it unrolls onto is this
// ParseArgs call — exercised here directly three times in a row.
func TestParseArgs_RepeatedDispatchOrder(t *testing.T) {
	tree := New("root")
	var seen []string
	require.NoError(t, tree.BindFunction("echo", func(args []string) errs.Result {
		seen = append(seen, args[0])
		return errs.OK
	}, ""))

	for _, v := range []string{"1", "2", "3"} {
		res := tree.ParseArgs([]string{"echo", v})
		require.True(t, res.Ok())
	}
	assert.Equal(t, []string{"1", "2", "3"}, seen)
}
