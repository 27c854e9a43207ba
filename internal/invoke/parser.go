package invoke

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/lbastigk/nebulite/internal/document"
	"github.com/lbastigk/nebulite/internal/expression"
)

// rawLogicalArg accepts either a bare string or an array of strings for
// the "logicalArg" field; arrays are AND-combined.
type rawLogicalArg struct {
	single string
	multi  []string
}

func (r *rawLogicalArg) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.single = s
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		r.multi = arr
		return nil
	}
	return fmt.Errorf("logicalArg: expected string or array of strings")
}

func (r *rawLogicalArg) combined() string {
	if len(r.multi) > 0 {
		parts := make([]string, 0, len(r.multi))
		for _, p := range r.multi {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			parts = append(parts, "("+p+")")
		}
		return strings.Join(parts, "*")
	}
	return strings.TrimSpace(r.single)
}

// rulesetJSON is the raw shape of one rule object, validated with
// validator/v10 before being compiled into an InvokeEntry; invalid
// entries are skipped with a diagnostic.
type rulesetJSON struct {
	Topic               string        `json:"topic" validate:"omitempty,printascii"`
	LogicalArg          rawLogicalArg `json:"logicalArg"`
	Exprs               []string      `json:"exprs" validate:"dive,required"`
	FunctioncallsGlobal []string      `json:"functioncalls_global"`
	FunctioncallsSelf   []string      `json:"functioncalls_self"`
	FunctioncallsOther  []string      `json:"functioncalls_other"`
}

var validate = validator.New()

// ParseBytes reads a JSONC rule-file body — a single rule object or a bare
// array of rule objects — into compiled InvokeEntry values. Each entry's
// Expressions are compiled against binder and tagged with self as their
// owning entity. Invalid entries are skipped with a logged diagnostic;
// parsing never aborts on a single bad entry.
func ParseBytes(data []byte, binder expression.Binder, self Entity) []*InvokeEntry {
	stripped := []byte(document.StripJSONC(string(data)))

	var raws []rulesetJSON
	if err := json.Unmarshal(stripped, &raws); err != nil {
		var single rulesetJSON
		if err2 := json.Unmarshal(stripped, &single); err2 != nil {
			log.Warn().Err(err).Msg("invoke: ruleset file is neither an object nor an array, skipped")
			return nil
		}
		raws = []rulesetJSON{single}
	}

	entries := make([]*InvokeEntry, 0, len(raws))
	for i, raw := range raws {
		entry, err := compileOne(raw, binder, self)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("invoke: skipping invalid rule entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func compileOne(raw rulesetJSON, binder expression.Binder, self Entity) (*InvokeEntry, error) {
	if err := validate.Struct(raw); err != nil {
		return nil, fmt.Errorf("invoke: validation: %w", err)
	}

	predSrc := raw.LogicalArg.combined()
	if predSrc == "" {
		predSrc = "1"
	}
	pred, err := expression.Compile(predSrc, binder)
	if err != nil {
		return nil, fmt.Errorf("invoke: predicate %q: %w", predSrc, err)
	}

	entry := NewInvokeEntry(strings.TrimSpace(raw.Topic), self)
	entry.Predicate = pred

	for _, exprStr := range raw.Exprs {
		a, err := compileAssignment(exprStr, binder)
		if err != nil {
			log.Warn().Err(err).Str("expr", exprStr).Msg("invoke: skipping invalid assignment")
			continue
		}
		entry.Assignments = append(entry.Assignments, a)
	}

	entry.FunctioncallsGlobal = compileCalls(raw.FunctioncallsGlobal, binder)
	entry.FunctioncallsSelf = compileCalls(raw.FunctioncallsSelf, binder)
	entry.FunctioncallsOther = compileCalls(raw.FunctioncallsOther, binder)

	return entry, nil
}

func compileCalls(raws []string, binder expression.Binder) []*expression.Expression {
	out := make([]*expression.Expression, 0, len(raws))
	for _, raw := range raws {
		expr, err := expression.Compile(raw, binder)
		if err != nil {
			log.Warn().Err(err).Str("cmd", raw).Msg("invoke: skipping invalid functioncall")
			continue
		}
		out = append(out, expr)
	}
	return out
}

// ops are checked longest-first so "+=" isn't mistaken for a bare "=".
var assignOps = []struct {
	token string
	op    AssignOp
}{
	{"+=", OpAdd},
	{"*=", OpMultiply},
	{"|=", OpConcat},
	{"=", OpSet},
}

// compileAssignment parses "<target>.<key><op><value-expr>" following the
// exprs grammar.
func compileAssignment(raw string, binder expression.Binder) (Assignment, error) {
	raw = strings.TrimSpace(raw)
	var lhs, rhs, tokenFound string
	var op AssignOp
	for _, cand := range assignOps {
		if idx := strings.Index(raw, cand.token); idx >= 0 {
			lhs, rhs = raw[:idx], raw[idx+len(cand.token):]
			op, tokenFound = cand.op, cand.token
			break
		}
	}
	if tokenFound == "" {
		return Assignment{}, fmt.Errorf("invoke: no assignment operator in %q", raw)
	}

	lhs = strings.TrimSpace(lhs)
	rhs = strings.TrimSpace(rhs)
	scope, key, ok := strings.Cut(lhs, ".")
	if !ok || key == "" {
		return Assignment{}, fmt.Errorf("invoke: assignment target %q is not <scope>.<key>", lhs)
	}

	var target AssignTarget
	switch scope {
	case "self":
		target = TargetSelf
	case "other":
		target = TargetOther
	case "global":
		target = TargetGlobal
	default:
		return Assignment{}, fmt.Errorf("invoke: unknown assignment scope %q", scope)
	}

	value, err := expression.Compile(rhs, binder)
	if err != nil {
		return Assignment{}, fmt.Errorf("invoke: assignment value %q: %w", rhs, err)
	}

	return Assignment{Target: target, Key: key, Op: op, Value: value}, nil
}
