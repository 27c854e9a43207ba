package expression

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/lbastigk/nebulite/internal/document"
)

// Binder resolves self/global/doc-cache references to stable pointers at
// compile time. Entity and GlobalSpace implement this against their own
// Document and the shared DocumentCache respectively; other-scope
// references are never bound here (see otherResolver).
type Binder interface {
	BindSelf(key string) *float64
	BindGlobal(key string) *float64
	BindDoc(docPath, key string) (*float64, error)

	// SelfDoc, GlobalDoc, and ResolveDoc give the compiler access to the
	// backing Documents themselves, for plain variable references whose
	// value might not be numeric (BindSelf etc. always force a numeric
	// cell, which would corrupt a string field).
	SelfDoc() *document.Document
	GlobalDoc() *document.Document
	ResolveDoc(docPath string) (*document.Document, error)
}

type segKind int

const (
	segLiteral segKind = iota
	segArith
	segVar
)

type segment struct {
	kind    segKind
	literal string
	prog    *arithProgram

	// segVar fields: a plain (non-arithmetic) variable reference whose
	// value may not be numeric, read dynamically on every evaluation.
	scope Scope
	key   string
	doc   *document.Document // nil when scope == ScopeOther (resolved per eval)
}

var programIDCounter uint64

// nextProgramID hands out the unique key a compiled arithmetic program
// uses in each Document's other-scope slot cache.
func nextProgramID() uint64 {
	return atomic.AddUint64(&programIDCounter, 1)
}

// Expression is a compiled "$(...)" / "{...}" template: either a single
// arithmetic program covering the whole source text (isReturnableAsDouble),
// or an ordered list of literal/arithmetic segments concatenated at eval
// time.
type Expression struct {
	raw                  string
	isReturnableAsDouble bool
	whole                *arithProgram
	segments             []segment
	disabled             bool // NaN self-heal: predicate permanently reads 0
}

// IsReturnableAsDouble reports whether evalAsDouble can short-circuit
// straight to the compiled arithmetic program instead of string-parsing.
func (e *Expression) IsReturnableAsDouble() bool { return e.isReturnableAsDouble }

// onlyGlueChars reports whether s consists solely of whitespace and
// arithmetic operator/paren characters — the test for "is this literal run
// just glue between variable/arithmetic forms, or real text".
func onlyGlueChars(s string) bool {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '+', '-', '*', '/', '(', ')',
			'>', '<', '=', '!', '&', '|':
			continue
		default:
			if r >= '0' && r <= '9' || r == '.' {
				continue
			}
			return false
		}
	}
	return true
}

// Compile parses raw and binds its variable references via binder.
//
// A pure single variable reference ("$(self.hp)") binds a stable pointer
// and is arithmetic-returnable when the underlying leaf is numeric (or
// absent), and falls back to a dynamic, type-preserving read when it
// holds a string or bool — substituting "$(self.name)" must not silently
// turn a name into 0. Anything containing an operator is always numeric,
// matching the grammar's distinction between var and arith forms.
func Compile(raw string, binder Binder) (*Expression, error) {
	toks, err := scanTokens(raw)
	if err != nil {
		return nil, err
	}

	expr := &Expression{raw: raw}

	hasBracket := false
	allGlue := true
	for _, t := range toks {
		if t.shape == shapeLiteral {
			if !onlyGlueChars(t.text) {
				allGlue = false
			}
			continue
		}
		hasBracket = true
	}

	// Single bracket, no surrounding literal text, whole body is a pure
	// scoped reference: classify by the referenced leaf's current type.
	if len(toks) == 1 && toks[0].shape != shapeLiteral {
		if ref, ok := parseScopedRef(toks[0].text); ok {
			seg, err := buildVarSegment(ref, binder)
			if err != nil {
				return nil, err
			}
			if seg.kind == segArith {
				expr.isReturnableAsDouble = true
				expr.whole = seg.prog
			} else {
				expr.segments = []segment{seg}
			}
			return expr, nil
		}
	}

	// No "$(...)"/"{...}" wrapping at all: rule predicates and assignment
	// values are written bare ("self.x > 10", "other.count += 1"'s RHS),
	// so try compiling the whole body as arithmetic-with-scoped-refs before
	// falling back to plain literal text (e.g. a bare string like "a").
	if !hasBracket {
		if prog, err := compileArith(raw, binder); err == nil {
			expr.isReturnableAsDouble = true
			expr.whole = prog
			return expr, nil
		}
	}

	// Multiple bracket/arithmetic forms glued only by operators and
	// whitespace: compile the whole thing as one arithmetic program.
	if hasBracket && allGlue {
		var merged strings.Builder
		for _, t := range toks {
			merged.WriteString(t.text)
			merged.WriteByte(' ')
		}
		if prog, err := compileArith(merged.String(), binder); err == nil {
			expr.isReturnableAsDouble = true
			expr.whole = prog
			return expr, nil
		}
		// Not actually arithmetic (e.g. a doc-cache path containing
		// characters compileArith rejects) — fall through.
	}

	segs := make([]segment, 0, len(toks))
	for _, t := range toks {
		if t.shape == shapeLiteral {
			segs = append(segs, segment{kind: segLiteral, literal: t.text})
			continue
		}
		if ref, ok := parseScopedRef(t.text); ok {
			seg, err := buildVarSegment(ref, binder)
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
			continue
		}
		prog, err := compileArith(t.text, binder)
		if err != nil {
			return nil, fmt.Errorf("expression: byte %d: %w", t.pos, err)
		}
		segs = append(segs, segment{kind: segArith, prog: prog})
	}

	if len(segs) == 1 && segs[0].kind == segArith {
		expr.isReturnableAsDouble = true
		expr.whole = segs[0].prog
		return expr, nil
	}

	expr.segments = segs
	return expr, nil
}

// buildVarSegment classifies a pure scoped reference as a numeric
// arithmetic segment (single bound pointer) or a dynamic, type-preserving
// var segment.
func buildVarSegment(ref varRef, binder Binder) (segment, error) {
	switch ref.scope {
	case ScopeSelf:
		doc := binder.SelfDoc()
		if doc.LeafIsNumeric(ref.key) {
			return singlePointerSegment(binder.BindSelf(ref.key)), nil
		}
		return segment{kind: segVar, scope: ScopeSelf, key: ref.key, doc: doc}, nil

	case ScopeGlobal:
		doc := binder.GlobalDoc()
		if doc.LeafIsNumeric(ref.key) {
			return singlePointerSegment(binder.BindGlobal(ref.key)), nil
		}
		return segment{kind: segVar, scope: ScopeGlobal, key: ref.key, doc: doc}, nil

	case ScopeDoc:
		doc, err := binder.ResolveDoc(ref.doc)
		if err != nil {
			return segment{}, err
		}
		if doc.LeafIsNumeric(ref.key) {
			ptr, err := binder.BindDoc(ref.doc, ref.key)
			if err != nil {
				return segment{}, err
			}
			return singlePointerSegment(ptr), nil
		}
		return segment{kind: segVar, scope: ScopeDoc, key: ref.key, doc: doc}, nil

	case ScopeOther:
		// Other-scope leaves vary per listener at runtime, so there is no
		// single compile-time document to type-check against; treat it as
		// numeric, consistent with every other arithmetic context.
		prog := &arithProgram{
			id:        nextProgramID(),
			ops:       []rpnOp{{kind: opPush, operandIdx: 0}},
			operands:  []operand{{kind: operandOther, otherIdx: 0}},
			otherRefs: []string{ref.key},
		}
		return segment{kind: segArith, prog: prog}, nil

	default:
		return segment{}, errBadOperand
	}
}

func singlePointerSegment(ptr *float64) segment {
	prog := &arithProgram{
		ops:      []rpnOp{{kind: opPush, operandIdx: 0}},
		operands: []operand{{kind: operandPtr, ptr: ptr}},
	}
	return segment{kind: segArith, prog: prog}
}

// EvalAsDouble evaluates the expression numerically against other (the
// "other" Document for this rule's pairing, nil if not applicable). NaN
// policy is enforced by EvalPredicate, not here: this method always
// returns whatever the arithmetic produced.
func (e *Expression) EvalAsDouble(other *document.Document) (float64, error) {
	if e.disabled {
		return 0, nil
	}
	if e.isReturnableAsDouble {
		return evalArith(e.whole, e.otherResolverFor(other, e.whole))
	}
	s, err := e.Eval(other)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN(), nil
	}
	return f, nil
}

// Eval evaluates the expression as a string, concatenating segments after
// substitution.
func (e *Expression) Eval(other *document.Document) (string, error) {
	if e.disabled {
		return "0", nil
	}
	if e.isReturnableAsDouble {
		v, err := evalArith(e.whole, e.otherResolverFor(other, e.whole))
		if err != nil {
			return "", err
		}
		return formatDouble(v), nil
	}

	var out strings.Builder
	for _, seg := range e.segments {
		switch seg.kind {
		case segLiteral:
			out.WriteString(seg.literal)
		case segArith:
			v, err := evalArith(seg.prog, e.otherResolverFor(other, seg.prog))
			if err != nil {
				return "", err
			}
			out.WriteString(formatDouble(v))
		case segVar:
			targetDoc := seg.doc
			if seg.scope == ScopeOther {
				targetDoc = other
			}
			if targetDoc == nil {
				continue
			}
			out.WriteString(stringifyRaw(targetDoc.GetRaw(seg.key)))
		}
	}
	return out.String(), nil
}

func stringifyRaw(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "true"
		}
		return "false"
	case string:
		return t
	case float64:
		return formatDouble(t)
	default:
		return fmt.Sprint(t)
	}
}

func (e *Expression) otherResolverFor(other *document.Document, prog *arithProgram) *otherResolver {
	if len(prog.otherRefs) == 0 {
		return nil
	}
	return newOtherResolver(prog.id, other, len(prog.otherRefs))
}

func formatDouble(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// EvalPredicate evaluates the expression as a boolean predicate (nonzero is
// true). A NaN result is treated as false and permanently self-heals the
// expression to the constant 0 (disabled=true) so a pathological rule stops
// costing a full evaluation every frame; reloadRules recompiling the
// Expression from scratch is the only way to clear it.
func (e *Expression) EvalPredicate(other *document.Document) bool {
	if e.disabled {
		return false
	}
	v, err := e.EvalAsDouble(other)
	if err != nil || math.IsNaN(v) {
		e.disabled = true
		return false
	}
	return v != 0
}
