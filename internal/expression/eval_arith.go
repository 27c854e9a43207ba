package expression

import "github.com/lbastigk/nebulite/internal/document"

// otherResolver resolves this program's other-scope operands against a
// concrete "other" Document, using its cached OtherSlots so the dotted-path
// walk only happens once per (program, otherDoc) pair.
type otherResolver struct {
	doc   *document.Document
	slots *document.OtherSlots
}

func newOtherResolver(progID uint64, doc *document.Document, numSlots int) *otherResolver {
	if doc == nil || numSlots == 0 {
		return nil
	}
	return &otherResolver{doc: doc, slots: doc.OtherSlotsFor(progID, numSlots)}
}

func (r *otherResolver) resolve(idx int, key string) float64 {
	ptr := r.slots.Get(idx)
	if ptr == nil {
		ptr = r.doc.GetStableDoublePointer(key)
		r.slots.Set(idx, ptr)
	}
	return *ptr
}

// evalArith runs prog's compiled RPN with a fixed-size stack: no heap
// allocation on this path regardless of expression size (within stackCap).
const stackCap = 64

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func evalArith(prog *arithProgram, other *otherResolver) (float64, error) {
	var stack [stackCap]float64
	top := 0

	push := func(v float64) { stack[top] = v; top++ }
	pop := func() float64 { top--; return stack[top] }

	for _, op := range prog.ops {
		switch op.kind {
		case opPush:
			o := prog.operands[op.operandIdx]
			switch o.kind {
			case operandConst:
				push(o.num)
			case operandPtr:
				push(*o.ptr)
			case operandOther:
				if other == nil {
					push(0)
				} else {
					push(other.resolve(o.otherIdx, prog.otherRefs[o.otherIdx]))
				}
			}
		case opAdd:
			b, a := pop(), pop()
			push(a + b)
		case opSub:
			b, a := pop(), pop()
			push(a - b)
		case opMul:
			b, a := pop(), pop()
			push(a * b)
		case opDiv:
			b, a := pop(), pop()
			push(a / b)
		case opNeg:
			push(-pop())
		case opGt:
			b, a := pop(), pop()
			push(boolToFloat(a > b))
		case opLt:
			b, a := pop(), pop()
			push(boolToFloat(a < b))
		case opGe:
			b, a := pop(), pop()
			push(boolToFloat(a >= b))
		case opLe:
			b, a := pop(), pop()
			push(boolToFloat(a <= b))
		case opEq:
			b, a := pop(), pop()
			push(boolToFloat(a == b))
		case opNe:
			b, a := pop(), pop()
			push(boolToFloat(a != b))
		case opAnd:
			b, a := pop(), pop()
			push(boolToFloat(a != 0 && b != 0))
		case opOr:
			b, a := pop(), pop()
			push(boolToFloat(a != 0 || b != 0))
		case opNot:
			push(boolToFloat(pop() == 0))
		}
	}

	if top != 1 {
		return 0, errEmptyResult
	}
	return stack[0], nil
}
