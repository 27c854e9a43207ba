package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetRoundTrip(t *testing.T) {
	d := New()
	Set(d, "a.b.c", 3.5)
	assert.Equal(t, 3.5, Get(d, "a.b.c", 0.0))
	assert.Equal(t, 0.0, Get(d, "missing.key", 0.0))
}

func TestSetCreatesAncestors(t *testing.T) {
	d := New()
	Set(d, "x.y[2].z", "hi")
	assert.Equal(t, "hi", Get(d, "x.y[2].z", ""))
	assert.Equal(t, MemberArray, MemberCheck(d, "x.y"))
	assert.Equal(t, MemberObject, MemberCheck(d, "x"))
}

func TestSetThroughScalarIntermediateIsNoop(t *testing.T) {
	d := New()
	Set(d, "a", "scalar")
	Set(d, "a.b", 5.0) // "a" is a string leaf, not an object: no-op
	assert.Equal(t, "scalar", Get(d, "a", ""))
	assert.Equal(t, MemberAbsent, MemberCheck(d, "a.b"))
}

func TestStableDoublePointerReflectsLaterWrites(t *testing.T) {
	d := New()
	ptr := d.GetStableDoublePointer("hp")
	require.NotNil(t, ptr)
	assert.Equal(t, 0.0, *ptr)

	Set(d, "hp", 42.0)
	assert.Equal(t, 42.0, *ptr, "stable pointer must reflect writes through Set")

	ptr2 := d.GetStableDoublePointer("hp")
	assert.Same(t, ptr, ptr2, "repeated calls for the same key return the same pointer")

	SetAdd(d, "hp", 8.0)
	assert.Equal(t, 50.0, *ptr)
}

func TestSetAddAndMultiplyCreateZeroCell(t *testing.T) {
	d := New()
	SetAdd(d, "score", 5.0)
	assert.Equal(t, 5.0, Get(d, "score", 0.0))

	SetMultiply(d, "mult", 9.0)
	assert.Equal(t, 0.0, Get(d, "mult", -1.0))
}

func TestSetConcat(t *testing.T) {
	d := New()
	SetConcat(d, "log", "a")
	SetConcat(d, "log", "b")
	assert.Equal(t, "ab", Get(d, "log", ""))
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	d := New()
	Set(d, "name", "hero")
	Set(d, "stats.hp", 10.0)
	Set(d, "tags[0]", "a")
	Set(d, "tags[1]", "b")

	out, err := d.Serialize()
	require.NoError(t, err)

	d2 := New()
	require.NoError(t, d2.Deserialize(out))

	assert.Equal(t, "hero", Get(d2, "name", ""))
	assert.Equal(t, 10.0, Get(d2, "stats.hp", 0.0))
	assert.Equal(t, "a", Get(d2, "tags[0]", ""))
	assert.Equal(t, "b", Get(d2, "tags[1]", ""))
}

func TestStripJSONCPreservesStringsWithSlashes(t *testing.T) {
	src := `{
		// a comment
		"path": "http://example.com", /* block */
		"n": 1
	}`
	stripped := StripJSONC(src)
	var generic any
	require.NoError(t, json.Unmarshal([]byte(stripped), &generic))
}

func TestDeleteAndCopy(t *testing.T) {
	d := New()
	Set(d, "a.b", 1.0)
	require.NoError(t, Copy(d, "a", "a2"))
	assert.Equal(t, 1.0, Get(d, "a2.b", 0.0))

	assert.True(t, Delete(d, "a.b"))
	assert.Equal(t, MemberAbsent, MemberCheck(d, "a.b"))
}

func TestMoveRelocatesValue(t *testing.T) {
	d := New()
	Set(d, "a", 7.0)
	require.NoError(t, Move(d, "a", "b"))
	assert.Equal(t, 7.0, Get(d, "b", 0.0))
	assert.Equal(t, MemberAbsent, MemberCheck(d, "a"))
}
