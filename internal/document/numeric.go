package document

import "golang.org/x/exp/constraints"

// Number is the set of types accepted by SetAdd/SetMultiply: any numeric
// leaf in the tree is ultimately stored as a float64 cell, but callers
// (rule assignments evaluate to float64, FuncTree commands often parse
// int64 from argv) shouldn't have to convert by hand.
type Number interface {
	constraints.Integer | constraints.Float
}
