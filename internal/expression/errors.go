package expression

import "errors"

var (
	errUnbalanced  = errors.New("unbalanced grouping")
	errBadOperand  = errors.New("invalid operand")
	errBadSyntax   = errors.New("invalid arithmetic syntax")
	errEmptyResult = errors.New("evaluation produced no result")
)
