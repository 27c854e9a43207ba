// Package functree implements Nebulite's command/function tree: a
// prefix-matched dispatch table that turns a pre-split argv into a typed
// ErrorCode by walking categories, stripping leading --flag/-f tokens into
// a bound variable table, and invoking the registered handler for the
// remaining positional tokens. Flags use the --key=val / -k=val forms; a
// bare flag token means "true".
package functree

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lbastigk/nebulite/internal/errs"
)

// HandlerFunc is a bound command. args excludes the command name itself.
type HandlerFunc func(args []string) errs.Result

type binding struct {
	handler  HandlerFunc
	category *FuncTree
	help     string
}

type varKind int

const (
	varString varKind = iota
	varBool
	varInt
)

type boundVar struct {
	kind  varKind
	s     *string
	b     *bool
	i     *int
	long  string
	short string
	help  string
}

// FuncTree is a hierarchical command dispatcher. A child tree may
// chain to a parent via Parent; ParseArgs on the child falls back to the
// parent when the leading token isn't bound locally.
type FuncTree struct {
	name      string
	Parent    *FuncTree
	functions map[string]*binding
	vars      []*boundVar
}

// New creates a root FuncTree named name.
func New(name string) *FuncTree {
	return &FuncTree{name: name, functions: make(map[string]*binding)}
}

// NewChild creates a FuncTree chained to parent for fallback lookup.
func NewChild(name string, parent *FuncTree) *FuncTree {
	return &FuncTree{name: name, Parent: parent, functions: make(map[string]*binding)}
}

// BindCategory creates and returns a nested category FuncTree at name. It
// is an error to bind a category where a function already exists, or
// where a binding at name would override one inherited from Parent.
func (t *FuncTree) BindCategory(name string) (*FuncTree, error) {
	if _, exists := t.functions[name]; exists {
		return nil, fmt.Errorf("functree: %w: %s", errs.ErrFunctionExists, name)
	}
	if t.lookupParent(name) != nil {
		return nil, fmt.Errorf("functree: %w: %s", errs.ErrFunctionShadows, name)
	}
	child := NewChild(name, t)
	t.functions[name] = &binding{category: child}
	return child, nil
}

// BindFunction attaches handler at name. Errors if name is already bound
// to a function or category here, or would shadow an inherited binding.
func (t *FuncTree) BindFunction(name string, handler HandlerFunc, help string) error {
	if existing, exists := t.functions[name]; exists {
		if existing.category != nil {
			return fmt.Errorf("functree: %w: %s", errs.ErrCategoryIsFunc, name)
		}
		return fmt.Errorf("functree: %w: %s", errs.ErrFunctionExists, name)
	}
	if t.lookupParent(name) != nil {
		return fmt.Errorf("functree: %w: %s", errs.ErrFunctionShadows, name)
	}
	t.functions[name] = &binding{handler: handler, help: help}
	return nil
}

func (t *FuncTree) lookupParent(name string) *binding {
	if t.Parent == nil {
		return nil
	}
	if b, ok := t.Parent.functions[name]; ok {
		return b
	}
	return t.Parent.lookupParent(name)
}

// BindVariable registers a flag bound to one of string/bool/int, matched
// by either its long ("--name") or short ("-n") form during ParseArgs'
// leading-flag scan.
func (t *FuncTree) BindVariable(ptr any, long, short, help string) error {
	bv := &boundVar{long: long, short: short, help: help}
	switch p := ptr.(type) {
	case *string:
		bv.kind, bv.s = varString, p
	case *bool:
		bv.kind, bv.b = varBool, p
	case *int:
		bv.kind, bv.i = varInt, p
	default:
		return fmt.Errorf("functree: unsupported variable pointer type %T", ptr)
	}
	t.vars = append(t.vars, bv)
	return nil
}

// stripFlags consumes leading --key[=val] / -k[=val] tokens, applying
// them to bound variables, and returns the remaining positional args.
func (t *FuncTree) stripFlags(args []string) []string {
	i := 0
	for i < len(args) {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			break
		}
		var key, val string
		if strings.HasPrefix(arg, "--") {
			key, val = splitFlag(arg[2:])
		} else {
			key, val = splitFlag(arg[1:])
		}
		t.applyFlag(arg, key, val)
		i++
	}
	return args[i:]
}

func splitFlag(body string) (key, val string) {
	if eq := strings.IndexByte(body, '='); eq >= 0 {
		return body[:eq], body[eq+1:]
	}
	return body, "true"
}

func (t *FuncTree) applyFlag(raw, key, val string) {
	for _, bv := range t.vars {
		matched := (strings.HasPrefix(raw, "--") && bv.long == key) || (!strings.HasPrefix(raw, "--") && bv.short == key)
		if !matched {
			continue
		}
		switch bv.kind {
		case varString:
			*bv.s = val
		case varBool:
			*bv.b = val == "true" || val == "1"
		case varInt:
			if n, err := strconv.Atoi(val); err == nil {
				*bv.i = n
			}
		}
	}
}

// ParseArgs is the full round-trip: strip leading flags, dispatch the
// first positional token to a bound category or function, chaining to
// Parent if not found locally.
func (t *FuncTree) ParseArgs(args []string) errs.Result {
	rest := t.stripFlags(args)
	if len(rest) == 0 {
		return errs.OK
	}

	name, tail := rest[0], rest[1:]
	b, ok := t.functions[name]
	if !ok {
		if t.Parent != nil {
			if r := t.Parent.ParseArgs(rest); r.Code != errs.CriticalFunctionNotImplemented {
				return r
			}
		}
		return errs.NewResult(errs.CriticalFunctionNotImplemented,
			fmt.Errorf("functree[%s]: %w: %s", t.name, errs.ErrUnknownFunction, name))
	}

	if b.category != nil {
		return b.category.ParseArgs(tail)
	}
	return b.handler(tail)
}

// ParseStr is the whitespace-split convenience form of ParseArgs, for
// callers holding a whole command line rather than a pre-split argv.
func (t *FuncTree) ParseStr(str string) errs.Result {
	return t.ParseArgs(strings.Fields(str))
}

// Help lists bound function/category names and their help text, sorted.
func (t *FuncTree) Help() string {
	names := make([]string, 0, len(t.functions))
	for name := range t.functions {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "commands in %s:\n", t.name)
	for _, name := range names {
		b := t.functions[name]
		if b.category != nil {
			fmt.Fprintf(&sb, "  %s (category)\n", name)
			continue
		}
		fmt.Fprintf(&sb, "  %-20s %s\n", name, b.help)
	}
	return sb.String()
}
