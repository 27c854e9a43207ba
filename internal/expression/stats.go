package expression

// BoundPointerCount reports how many stable-pointer/other-scope variable
// references this expression binds. Entity.EstimateComputationalCost
// uses this to weigh a rule by how much work each listener pairing costs.
func (e *Expression) BoundPointerCount() int {
	if e.isReturnableAsDouble {
		return countProgramRefs(e.whole)
	}
	n := 0
	for _, seg := range e.segments {
		switch seg.kind {
		case segArith:
			n += countProgramRefs(seg.prog)
		case segVar:
			n++
		}
	}
	return n
}

func countProgramRefs(p *arithProgram) int {
	if p == nil {
		return 0
	}
	n := 0
	for _, op := range p.operands {
		if op.kind == operandPtr || op.kind == operandOther {
			n++
		}
	}
	return n
}
