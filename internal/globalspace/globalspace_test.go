package globalspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbastigk/nebulite/internal/config"
	"github.com/lbastigk/nebulite/internal/document"
	"github.com/lbastigk/nebulite/internal/entity"
	"github.com/lbastigk/nebulite/internal/render"
)

func testConfig() config.EngineConfig {
	cfg := config.Default()
	cfg.TargetFPS = 0 // uncapped, no sleeping in tests
	return cfg
}

// spawnInline appends a pre-built in-memory Document as a scene entity,
// bypassing SpawnFromRef's file loading (tests build documents inline via
// Deserialize rather than fixture files on disk).
func spawnInline(gs *GlobalSpace, doc *document.Document) *entity.Entity {
	e := entity.New(doc, gs, gs.bus, gs.rootTree)
	gs.entities = append(gs.entities, e)
	return e
}

// E1 listens on "tick", E2 broadcasts a rule that
// increments other.count by 1 every frame on that topic. Because a
// broadcast in frame N is visible to listeners only in frame N+1,
// count only starts climbing on the second Step and is 5 after 6 frames
// total (5 updates across frames 2-6).
func TestStep_BroadcastVisibleOneFrameLater(t *testing.T) {
	gs := New(testConfig(), render.NewNoopRenderer(), render.NoopTextRasterizer{})

	listenerDoc := document.New()
	require.NoError(t, listenerDoc.Deserialize(`{"listens":["tick"], "count":0}`))
	listener := spawnInline(gs, listenerDoc)

	publisherDoc := document.New()
	require.NoError(t, publisherDoc.Deserialize(`{
		"invokes": ["{\"topic\":\"tick\", \"logicalArg\":\"1\", \"exprs\":[\"other.count += 1\"]}"]
	}`))
	spawnInline(gs, publisherDoc)

	// Frame 1 only publishes (nothing yet in publishedThisFrame to match
	// against); frames 2-6 each match the previous frame's broadcast, for
	// 5 applied increments total.
	for i := 0; i < 6; i++ {
		gs.Step()
	}

	assert.Equal(t, 5.0, document.GetFloat(listener.Document(), "count", -1))
}

func TestResolveTask_ForCommandLeavesGlobalCounterAtEnd(t *testing.T) {
	gs := New(testConfig(), render.NewNoopRenderer(), render.NoopTextRasterizer{})

	res := gs.ResolveTask("for i 1 3 set-global counter $i")
	require.True(t, res.Ok())
	assert.Equal(t, 3.0, document.GetFloat(gs.Document(), "counter", -1))
}

func TestResolveTask_AssertFalseIsCriticalAndStopsQueue(t *testing.T) {
	gs := New(testConfig(), render.NewNoopRenderer(), render.NoopTextRasterizer{})

	gs.scriptQueue.push("assert 0")
	gs.scriptQueue.push("set-global reached 1")

	gs.resolveTaskQueue(gs.scriptQueue, true)

	assert.Equal(t, -1.0, document.GetFloat(gs.Document(), "reached", -1))
}

func TestResolveTask_IfDispatchesOnlyWhenTrue(t *testing.T) {
	gs := New(testConfig(), render.NewNoopRenderer(), render.NoopTextRasterizer{})

	res := gs.ResolveTask("if 0 set-global hit 1")
	require.True(t, res.Ok())
	assert.Equal(t, -1.0, document.GetFloat(gs.Document(), "hit", -1))

	res = gs.ResolveTask("if 1 set-global hit 1")
	require.True(t, res.Ok())
	assert.Equal(t, 1.0, document.GetFloat(gs.Document(), "hit", -1))
}

func TestResolveTask_SetGlobalInfersType(t *testing.T) {
	gs := New(testConfig(), render.NewNoopRenderer(), render.NoopTextRasterizer{})

	require.True(t, gs.ResolveTask("set-global speed 3.5").Ok())
	assert.Equal(t, 3.5, document.GetFloat(gs.Document(), "speed", -1))

	require.True(t, gs.ResolveTask("set-global name bob").Ok())
	assert.Equal(t, "bob", document.GetString(gs.Document(), "name", ""))
}

func TestResolveTask_PrefixesBinaryNameWhenMissing(t *testing.T) {
	gs := New(testConfig(), render.NewNoopRenderer(), render.NoopTextRasterizer{})
	res := gs.ResolveTask("set-global x 1")
	assert.True(t, res.Ok())
}

func TestWait_PausesScriptQueueForNFrames(t *testing.T) {
	gs := New(testConfig(), render.NewNoopRenderer(), render.NoopTextRasterizer{})
	gs.scriptQueue.push("wait 2")
	gs.scriptQueue.push("set-global counter 1")

	gs.Step() // runs "wait 2" (waitFrames=2), then the pause consumes one tick against set-global (2 -> 1)
	assert.Equal(t, -1.0, document.GetFloat(gs.Document(), "counter", -1))

	gs.Step() // waitFrames: 1 -> 0, still paused this frame
	assert.Equal(t, -1.0, document.GetFloat(gs.Document(), "counter", -1))

	gs.Step() // waitFrames is 0, now runs set-global
	assert.Equal(t, 1.0, document.GetFloat(gs.Document(), "counter", -1))
}
