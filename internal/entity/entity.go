// Package entity implements Nebulite's RenderObject: an Entity owns
// one Document, two rule vectors, and a per-entity FuncTree, and is
// identified by its own stable pointer for its lifetime — rules compare
// and store entities by that identity.
package entity

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lbastigk/nebulite/internal/document"
	"github.com/lbastigk/nebulite/internal/errs"
	"github.com/lbastigk/nebulite/internal/expression"
	"github.com/lbastigk/nebulite/internal/functree"
	"github.com/lbastigk/nebulite/internal/invoke"
	"github.com/lbastigk/nebulite/internal/render"
)

// Globals is the subset of GlobalSpace an Entity needs: the global
// Document for global-scope binding, document-cache resolution for
// doc-cache scope references, the internal command queue functioncalls_
// global feed, and the external rendering collaborators Update
// touches. Defined here rather than imported from internal/globalspace to
// avoid a package cycle (GlobalSpace owns the entity container).
type Globals interface {
	Document() *document.Document
	ResolveDoc(path string) (*document.Document, error)
	EnqueueInternal(cmd string)
	Renderer() render.Renderer
	TextRasterizer() render.TextRasterizer
}

// Entity is one runtime object: a Document, its compiled rules, a local
// command tree, and the three management flags.
type Entity struct {
	mu sync.Mutex

	id      uuid.UUID
	doc     *document.Document
	globals Globals
	bus     *invoke.InvokeBus

	globalRules []*invoke.InvokeEntry
	localRules  []*invoke.InvokeEntry

	funcTree *functree.FuncTree

	deleteFromScene bool
	recalculateText bool
	reloadRules     bool
}

// New constructs an Entity around doc, wired to the shared bus and
// globals, with a local FuncTree chained to rootTree for command
// inheritance.
func New(doc *document.Document, globals Globals, bus *invoke.InvokeBus, rootTree *functree.FuncTree) *Entity {
	e := &Entity{
		id:      uuid.New(),
		doc:     doc,
		globals: globals,
		bus:     bus,
	}
	e.funcTree = functree.NewChild("entity:"+e.id.String(), rootTree)
	e.bindLayoutCommands()
	e.bindStateCommands()
	e.reloadRules = true
	return e
}

// ID returns this entity's stable identity tag (a human-legible label; the
// real identity is the *Entity pointer itself).
func (e *Entity) ID() uuid.UUID { return e.id }

// Document satisfies invoke.Entity and expression.Binder's self-document
// access.
func (e *Entity) Document() *document.Document { return e.doc }

// SelfDoc satisfies expression.Binder.
func (e *Entity) SelfDoc() *document.Document { return e.doc }

// GlobalDoc satisfies expression.Binder.
func (e *Entity) GlobalDoc() *document.Document { return e.globals.Document() }

// BindSelf satisfies expression.Binder.
func (e *Entity) BindSelf(key string) *float64 { return e.doc.GetStableDoublePointer(key) }

// BindGlobal satisfies expression.Binder.
func (e *Entity) BindGlobal(key string) *float64 {
	return e.globals.Document().GetStableDoublePointer(key)
}

// ResolveDoc satisfies expression.Binder.
func (e *Entity) ResolveDoc(path string) (*document.Document, error) {
	return e.globals.ResolveDoc(path)
}

// BindDoc satisfies expression.Binder.
func (e *Entity) BindDoc(docPath, key string) (*float64, error) {
	doc, err := e.globals.ResolveDoc(docPath)
	if err != nil {
		return nil, err
	}
	return doc.GetStableDoublePointer(key), nil
}

// Serialize renders the entity's Document as JSON.
func (e *Entity) Serialize() (string, error) {
	return e.doc.Serialize()
}

// Deserialize replaces the entity's Document contents from src (JSON or
// JSONC) and flags a rule recompile, since the "invokes" array may have
// changed.
func (e *Entity) Deserialize(src string) error {
	if err := e.doc.Deserialize(src); err != nil {
		return err
	}
	e.MarkReloadRules()
	return nil
}

// MarkDelete flags this entity for removal at the end of the current
// frame.
func (e *Entity) MarkDelete() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleteFromScene = true
}

// PendingDelete reports whether MarkDelete has been called.
func (e *Entity) PendingDelete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleteFromScene
}

// MarkReloadRules flags that the next Update should recompile rules from
// the Document's "invokes" array.
func (e *Entity) MarkReloadRules() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reloadRules = true
}

// MarkRecalculateText flags that the next Update should re-rasterize text.
func (e *Entity) MarkRecalculateText() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recalculateText = true
}

// Run dispatches cmd (already $()-substituted) through this entity's
// FuncTree, matching invoke.Entity's contract for functioncalls_self /
// functioncalls_other.
func (e *Entity) Run(cmd string) errs.Result {
	return e.ParseStr(cmd)
}

// ParseStr routes a command line through the entity FuncTree. The
// first token must be a self-identifier ("self"); ParseStr strips it
// before handing the rest to the tree.
func (e *Entity) ParseStr(cmd string) errs.Result {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return errs.OK
	}
	if fields[0] != "self" {
		return errs.NewResult(errs.UnknownArg, fmt.Errorf("entity: command %q missing leading 'self'", cmd))
	}
	return e.funcTree.ParseArgs(fields[1:])
}

// compileRules re-parses rules from the Document's "invokes" array (paths
// or inline objects) via the RulesetParser, replacing globalRules and
// localRules (a rule's Topic decides which vector it lands in).
func (e *Entity) compileRules() {
	var allRules []*invoke.InvokeEntry
	count := document.Len(e.doc, "invokes")
	for i := 0; i < count; i++ {
		key := fmt.Sprintf("invokes[%d]", i)
		var raw []byte
		switch document.MemberCheck(e.doc, key) {
		case document.MemberObject, document.MemberArray:
			// Inline rule object (or array of them) embedded in the entity
			// file.
			serialized, err := e.doc.Serialize(key)
			if err != nil {
				continue
			}
			raw = []byte(serialized)
		case document.MemberLeaf:
			ref := document.GetString(e.doc, key, "")
			if strings.HasSuffix(ref, ".json") || strings.HasSuffix(ref, ".jsonc") {
				loaded, _, err := document.LoadFile(ref)
				if err != nil {
					log.Warn().Err(err).Str("ref", ref).Msg("entity: failed to load invoke file")
					continue
				}
				serialized, err := loaded.Serialize()
				if err != nil {
					continue
				}
				raw = []byte(serialized)
			} else {
				raw = []byte(ref)
			}
		default:
			continue
		}
		allRules = append(allRules, invoke.ParseBytes(raw, e, e)...)
	}

	var global, local []*invoke.InvokeEntry
	for _, r := range allRules {
		if r.Topic == "" {
			local = append(local, r)
		} else {
			global = append(global, r)
		}
	}

	e.mu.Lock()
	e.globalRules = global
	e.localRules = local
	e.mu.Unlock()
}

// Update runs one frame's worth of rule activity for this entity:
// recompile rules if flagged, apply local rules directly (other=self),
// broadcast global rules, declare listens, and handle derived
// render/text state.
func (e *Entity) Update() {
	e.mu.Lock()
	reload := e.reloadRules
	e.reloadRules = false
	e.mu.Unlock()

	if reload {
		e.compileRules()
	}

	for _, r := range e.localRules {
		if r.Predicate.EvalPredicate(e.doc) {
			r.Apply(e, e.globals)
		}
	}
	for _, r := range e.globalRules {
		e.bus.Broadcast(r)
	}
	for _, topic := range document.StringArray(e.doc, "listens") {
		e.bus.Listen(e, topic)
	}

	e.mu.Lock()
	recalc := e.recalculateText
	e.recalculateText = false
	e.mu.Unlock()

	if recalc {
		text := document.GetString(e.doc, "text.str", "")
		font := document.GetString(e.doc, "text.font", "default")
		size := int(document.GetFloat(e.doc, "text.fontSize", 12))
		if _, err := e.globals.TextRasterizer().Rasterize(text, font, size); err != nil {
			log.Warn().Err(err).Msg("entity: text rasterization failed")
		}
	}
}

// EstimateComputationalCost sums, over all rules, (# bound variable
// references x # current listeners on its topic) — used by schedulers to
// size batches. listenerCount is supplied by the caller (the bus
// doesn't expose per-topic listener counts directly, since listening is a
// push from each entity rather than a registration the bus tracks).
func (e *Entity) EstimateComputationalCost(listenerCount func(topic string) int) int {
	e.mu.Lock()
	rules := append(append([]*invoke.InvokeEntry{}, e.globalRules...), e.localRules...)
	e.mu.Unlock()

	cost := 0
	for _, r := range rules {
		refs := r.Predicate.BoundPointerCount()
		for _, a := range r.Assignments {
			refs += a.Value.BoundPointerCount()
		}
		listeners := 1
		if r.Topic != "" && listenerCount != nil {
			listeners = listenerCount(r.Topic)
		}
		cost += refs * listeners
	}
	return cost
}

var _ expression.Binder = (*Entity)(nil)
var _ invoke.Entity = (*Entity)(nil)
