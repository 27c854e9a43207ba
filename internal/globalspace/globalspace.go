// Package globalspace implements Nebulite's process-wide state: the
// global Document, the DocumentCache, the InvokeBus, the entity registry,
// three task queues, and the per-frame driver that orders listen →
// evaluate → broadcast → apply → command-drain deterministically.
package globalspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lbastigk/nebulite/internal/config"
	"github.com/lbastigk/nebulite/internal/document"
	"github.com/lbastigk/nebulite/internal/entity"
	"github.com/lbastigk/nebulite/internal/errs"
	"github.com/lbastigk/nebulite/internal/functree"
	"github.com/lbastigk/nebulite/internal/invoke"
	"github.com/lbastigk/nebulite/internal/render"
)

// GlobalSpace owns the global Document, a DocumentCache, an InvokeBus, an
// entity container, three task queues, and the top-level FuncTree.
type GlobalSpace struct {
	cfg config.EngineConfig

	doc   *document.Document
	cache *document.DocumentCache
	bus   *invoke.InvokeBus

	entities []*entity.Entity

	scriptQueue   *taskQueue
	internalQueue *taskQueue
	alwaysQueue   *taskQueue
	waitFrames    int // script-queue cooperative pause counter

	rootTree  *functree.FuncTree
	exprCache *functree.ExprCache

	renderer    render.Renderer
	textRast    render.TextRasterizer
	quit        bool
	frameNumber uint64
}

// New constructs a GlobalSpace from cfg, wired to renderer/textRast (pass
// render.NewNoopRenderer()/render.NoopTextRasterizer{} for headless runs).
func New(cfg config.EngineConfig, renderer render.Renderer, textRast render.TextRasterizer) *GlobalSpace {
	gs := &GlobalSpace{
		cfg:           cfg,
		doc:           document.New(),
		cache:         document.NewDocumentCache(2),
		bus:           invoke.NewInvokeBus(),
		scriptQueue:   newTaskQueue(),
		internalQueue: newTaskQueue(),
		alwaysQueue:   newTaskQueue(),
		rootTree:      functree.New("nebulite"),
		exprCache:     functree.NewExprCache(200),
		renderer:      renderer,
		textRast:      textRast,
	}
	gs.bindCoreCommands()
	document.Set(gs.doc, "fps.target", float64(cfg.TargetFPS))
	return gs
}

// Document satisfies invoke.Global and entity.Globals.
func (gs *GlobalSpace) Document() *document.Document { return gs.doc }

// ResolveDoc satisfies entity.Globals, resolving path through the
// DocumentCache (ref-counted, read-only).
func (gs *GlobalSpace) ResolveDoc(path string) (*document.Document, error) {
	entry, err := gs.cache.GetDocument(gs.resourcePath(path))
	if err != nil {
		return nil, err
	}
	return entry.Doc(), nil
}

// EnqueueInternal satisfies invoke.Global/entity.Globals: functioncalls_
// global lands here, drained by the frame driver's step (5).
func (gs *GlobalSpace) EnqueueInternal(cmd string) { gs.internalQueue.push(cmd) }

// Renderer satisfies entity.Globals, lazily constructing nothing here
// (the collaborator is supplied at New) — lazy construction is the
// caller's concern when wiring a real SDL-backed Renderer; GlobalSpace
// just exposes whatever it was given.
func (gs *GlobalSpace) Renderer() render.Renderer { return gs.renderer }

// TextRasterizer satisfies entity.Globals.
func (gs *GlobalSpace) TextRasterizer() render.TextRasterizer { return gs.textRast }

// RootTree exposes the top-level FuncTree for external wiring (the CLI
// front-end binds additional commands here before the frame loop starts).
func (gs *GlobalSpace) RootTree() *functree.FuncTree { return gs.rootTree }

// RequestQuit sets the flag the frame loop observes at the top of the next
// frame.
func (gs *GlobalSpace) RequestQuit() { gs.quit = true }

// resourcePath resolves a relative file reference against the configured
// Resources root, leaving absolute paths and paths that already exist
// untouched. Only the path part of a "|"-decorated reference is rewritten.
func (gs *GlobalSpace) resourcePath(ref string) string {
	path, overrides, decorated := strings.Cut(ref, "|")
	if filepath.IsAbs(path) || gs.cfg.ResourcesRoot == "" {
		return ref
	}
	if _, err := os.Stat(path); err == nil {
		return ref
	}
	path = filepath.Join(gs.cfg.ResourcesRoot, path)
	if decorated {
		return path + "|" + overrides
	}
	return path
}

// SpawnFromRef loads an entity-file reference (path, optionally
// "|key=value|functioncall" decorated) and appends a new Entity to
// the scene.
func (gs *GlobalSpace) SpawnFromRef(ref string) (*entity.Entity, error) {
	doc, leftover, err := document.LoadFile(gs.resourcePath(ref))
	if err != nil {
		return nil, fmt.Errorf("globalspace: spawn: %w", err)
	}
	e := entity.New(doc, gs, gs.bus, gs.rootTree)
	gs.entities = append(gs.entities, e)
	for _, fc := range leftover {
		// Overlay functioncalls are written without the leading self token
		// the entity tree strips ("path.jsonc|update-text").
		if !strings.HasPrefix(fc, "self ") {
			fc = "self " + fc
		}
		e.ParseStr(fc)
	}
	return e, nil
}

// EnvLoad loads a scene file — a JSON object whose "entities" field is an
// array of entity-file references — appending each as a new entity.
func (gs *GlobalSpace) EnvLoad(path string) error {
	doc, _, err := document.LoadFile(gs.resourcePath(path))
	if err != nil {
		return fmt.Errorf("globalspace: env-load: %w", err)
	}
	refs := document.StringArray(doc, "entities")
	for _, ref := range refs {
		if _, err := gs.SpawnFromRef(ref); err != nil {
			log.Warn().Err(err).Str("ref", ref).Msg("globalspace: env-load: entity failed")
		}
	}
	return nil
}

// EnvDeload clears the entity registry (the scene), matching `env-deload`.
func (gs *GlobalSpace) EnvDeload() {
	gs.entities = nil
}

// resolveTaskQueue drains cmd by cmd in FIFO order via ResolveTask,
// stopping at the first critical result. If clearAfterResolving is
// false the processed commands are left in place (used for the `always`
// queue's repeating scripts).
func (gs *GlobalSpace) resolveTaskQueue(q *taskQueue, clearAfterResolving bool) []errs.Result {
	var results []errs.Result
	cmds := q.snapshot()
	for _, cmd := range cmds {
		if q == gs.scriptQueue && gs.waitFrames > 0 {
			gs.waitFrames--
			break
		}
		res := gs.ResolveTask(cmd)
		results = append(results, res)
		if clearAfterResolving {
			q.popFront()
		}
		if res.IsCritical() {
			log.Error().Str("cmd", cmd).Err(res.Err).Msg("globalspace: critical error, aborting queue drain")
			break
		}
	}
	return results
}

// ResolveTask dispatches a single command string through the root
// FuncTree, prefixing the binary name if the caller omitted it.
func (gs *GlobalSpace) ResolveTask(cmd string) errs.Result {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return errs.OK
	}
	if fields[0] != gs.cfg.BinaryName {
		fields = append([]string{gs.cfg.BinaryName}, fields...)
	}
	return gs.rootTree.ParseArgs(fields[1:])
}

// Wait pauses the script queue for n frames.
func (gs *GlobalSpace) Wait(n int) {
	if n > gs.waitFrames {
		gs.waitFrames = n
	}
}

// Step runs one iteration of the frame loop: drain `always`,
// drain `script` (honoring wait), update every entity, apply the bus,
// drain `internal`, end the bus frame, age the DocumentCache, drop
// entities marked for deletion, and render. Frame pacing is Run's job.
func (gs *GlobalSpace) Step() {
	gs.resolveTaskQueue(gs.alwaysQueue, false)
	gs.resolveTaskQueue(gs.scriptQueue, true)

	for _, e := range gs.entities {
		e.Update()
	}

	gs.bus.ApplyAll(gs)
	gs.resolveTaskQueue(gs.internalQueue, true)
	gs.bus.EndFrame()
	gs.cache.Update()

	// Entities marked deleteFromScene — whether during their own Update,
	// by another rule's functioncalls_other, or by an internal-queue
	// command — are destroyed at the end of the frame that marked them.
	live := gs.entities[:0]
	for _, e := range gs.entities {
		if !e.PendingDelete() {
			live = append(live, e)
		}
	}
	gs.entities = live

	gs.renderer.BeginFrame()
	gs.renderer.EndFrame()

	gs.frameNumber++
}

// Run drives the frame loop until RequestQuit is called, sleeping between
// frames to hold the configured target FPS.
func (gs *GlobalSpace) Run() {
	frameBudget := time.Duration(gs.cfg.FrameNanos())
	for !gs.quit {
		start := time.Now()
		gs.Step()
		if frameBudget > 0 {
			if elapsed := time.Since(start); elapsed < frameBudget {
				time.Sleep(frameBudget - elapsed)
			}
		}
	}
}

// FrameNumber reports how many Step calls have completed.
func (gs *GlobalSpace) FrameNumber() uint64 { return gs.frameNumber }

// EntityCount reports the live entity count (tests/metrics).
func (gs *GlobalSpace) EntityCount() int { return len(gs.entities) }
