// Package invoke implements Nebulite's declarative rule system: the
// compiled Ruleset/InvokeEntry, the JSON reader that builds them, and the
// topic-keyed broadcast/listen/apply bus that drives per-frame rule
// application.
package invoke

import (
	"math"
	"sync/atomic"

	"github.com/lbastigk/nebulite/internal/document"
	"github.com/lbastigk/nebulite/internal/errs"
	"github.com/lbastigk/nebulite/internal/expression"
)

// Entity is the subset of entity.Entity the bus and a compiled rule need:
// access to the backing Document for assignments, and a way to run a
// command string through the entity's own FuncTree for functioncalls_self
// / functioncalls_other. Defined here (rather than imported from
// internal/entity) to avoid a package cycle — entity.Entity holds rule
// lists, so invoke cannot depend on it.
type Entity interface {
	Document() *document.Document
	Run(cmd string) errs.Result
}

// Global is the subset of GlobalSpace a rule's global-target assignments
// and functioncalls_global need.
type Global interface {
	Document() *document.Document
	EnqueueInternal(cmd string)
}

// AssignTarget identifies which of the three domains an assignment writes.
type AssignTarget int

const (
	TargetSelf AssignTarget = iota
	TargetOther
	TargetGlobal
)

// AssignOp identifies the read-modify-write semantics of an assignment,
// one of {set, add, multiply, concat}.
type AssignOp int

const (
	OpSet AssignOp = iota
	OpAdd
	OpMultiply
	OpConcat
)

// Assignment is one compiled `exprs` entry: "<target>.<key><op><value>".
type Assignment struct {
	Target AssignTarget
	Key    string
	Op     AssignOp
	Value  *expression.Expression
}

var idCounter uint64

// nextID hands out a unique identifier for a compiled rule, used to tell
// rules apart in diagnostics.
func nextID() uint64 {
	return atomic.AddUint64(&idCounter, 1)
}

// InvokeEntry is the compiled form of one declarative rule. Topic ""
// means the rule is local-only and never broadcast; all Expressions
// inside one InvokeEntry share the same self-binding.
type InvokeEntry struct {
	ID    uint64
	Topic string

	Predicate   *expression.Expression
	Assignments []Assignment

	FunctioncallsGlobal []*expression.Expression
	FunctioncallsSelf   []*expression.Expression
	FunctioncallsOther  []*expression.Expression

	// Self is a weak (non-owning) back-reference to the entity that
	// declared this rule; Predicate/Assignments' self/global pointers
	// were bound against Self's Document at compile time.
	Self Entity
}

// NewInvokeEntry allocates an InvokeEntry with a fresh unique ID.
func NewInvokeEntry(topic string, self Entity) *InvokeEntry {
	return &InvokeEntry{ID: nextID(), Topic: topic, Self: self}
}

// Apply performs this entry's assignments and function-calls for the pair
// (rule, other), in a fixed order: self, other, global
// assignments in declared order, then functioncalls_global (enqueued for
// the driver to run), functioncalls_self, functioncalls_other (run
// directly on their entity FuncTrees).
func (e *InvokeEntry) Apply(other Entity, global Global) {
	selfDoc := e.Self.Document()
	otherDoc := other.Document()
	globalDoc := global.Document()

	for _, phase := range [...]struct {
		target AssignTarget
		doc    *document.Document
	}{
		{TargetSelf, selfDoc},
		{TargetOther, otherDoc},
		{TargetGlobal, globalDoc},
	} {
		for _, a := range e.Assignments {
			if a.Target == phase.target {
				applyAssignment(phase.doc, otherDoc, a)
			}
		}
	}

	for _, fc := range e.FunctioncallsGlobal {
		cmd, err := fc.Eval(otherDoc)
		if err != nil {
			continue
		}
		global.EnqueueInternal(cmd)
	}
	for _, fc := range e.FunctioncallsSelf {
		cmd, err := fc.Eval(otherDoc)
		if err != nil {
			continue
		}
		e.Self.Run(cmd)
	}
	for _, fc := range e.FunctioncallsOther {
		cmd, err := fc.Eval(otherDoc)
		if err != nil {
			continue
		}
		other.Run(cmd)
	}
}

func applyAssignment(target, other *document.Document, a Assignment) {
	switch a.Op {
	case OpSet:
		v, err := a.Value.EvalAsDouble(other)
		if err == nil && !math.IsNaN(v) {
			document.Set(target, a.Key, v)
			return
		}
		if s, serr := a.Value.Eval(other); serr == nil {
			document.Set(target, a.Key, s)
		}
	case OpAdd:
		if v, err := a.Value.EvalAsDouble(other); err == nil {
			document.SetAdd(target, a.Key, v)
		}
	case OpMultiply:
		if v, err := a.Value.EvalAsDouble(other); err == nil {
			document.SetMultiply(target, a.Key, v)
		}
	case OpConcat:
		if s, err := a.Value.Eval(other); err == nil {
			document.SetConcat(target, a.Key, s)
		}
	}
}
