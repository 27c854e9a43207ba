package entity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lbastigk/nebulite/internal/document"
	"github.com/lbastigk/nebulite/internal/errs"
)

// bindLayoutCommands registers the per-entity commands that read and
// mutate Document state.
func (e *Entity) bindLayoutCommands() {
	_ = e.funcTree.BindFunction("set", e.cmdSet, "set <key> <value>: write a Document key")
	_ = e.funcTree.BindFunction("get", e.cmdGet, "get <key>: print a Document key")
	_ = e.funcTree.BindFunction("copy", e.cmdCopy, "copy <src> <dst>")
	_ = e.funcTree.BindFunction("move", e.cmdMove, "move <src> <dst>")
	_ = e.funcTree.BindFunction("delete-key", e.cmdDeleteKey, "delete-key <key>")
}

// bindStateCommands registers the per-entity commands that mutate
// lifecycle and engine-visible state.
func (e *Entity) bindStateCommands() {
	_ = e.funcTree.BindFunction("delete", e.cmdDelete, "delete: mark this entity for removal at end of frame")
	_ = e.funcTree.BindFunction("update-text", e.cmdUpdateText, "update-text: re-rasterize this entity's text")
	_ = e.funcTree.BindFunction("reload-invokes", e.cmdReloadInvokes, "reload-invokes: recompile rules from Document")
	_ = e.funcTree.BindFunction("add-invoke", e.cmdAddInvoke, "add-invoke <file>: append a rule source and recompile")
	_ = e.funcTree.BindFunction("remove-invoke", e.cmdRemoveInvoke, "remove-invoke <name>: drop a rule source and recompile")
	_ = e.funcTree.BindFunction("echo", e.cmdEcho, "echo <...>: log a message tagged with this entity")
	_ = e.funcTree.BindFunction("log", e.cmdLog, "log [file]: log a redirect request for this entity (diagnostics are not redirected)")
}

func (e *Entity) cmdSet(args []string) errs.Result {
	if len(args) < 2 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("entity: set requires <key> <value>"))
	}
	key, value := args[0], strings.Join(args[1:], " ")
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		document.Set(e.doc, key, f)
	} else if b, err := strconv.ParseBool(value); err == nil {
		document.Set(e.doc, key, b)
	} else {
		document.Set(e.doc, key, value)
	}
	return errs.OK
}

func (e *Entity) cmdGet(args []string) errs.Result {
	if len(args) < 1 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("entity: get requires <key>"))
	}
	log.Info().Str("entity", e.id.String()).Interface("value", e.doc.GetRaw(args[0])).Msg("entity: get")
	return errs.OK
}

func (e *Entity) cmdCopy(args []string) errs.Result {
	if len(args) < 2 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("entity: copy requires <src> <dst>"))
	}
	if err := document.Copy(e.doc, args[0], args[1]); err != nil {
		return errs.NewResult(errs.CustomError, err)
	}
	return errs.OK
}

func (e *Entity) cmdMove(args []string) errs.Result {
	if len(args) < 2 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("entity: move requires <src> <dst>"))
	}
	if err := document.Move(e.doc, args[0], args[1]); err != nil {
		return errs.NewResult(errs.CustomError, err)
	}
	return errs.OK
}

func (e *Entity) cmdDeleteKey(args []string) errs.Result {
	if len(args) < 1 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("entity: delete-key requires <key>"))
	}
	document.Delete(e.doc, args[0])
	return errs.OK
}

func (e *Entity) cmdDelete(args []string) errs.Result {
	e.MarkDelete()
	return errs.OK
}

func (e *Entity) cmdUpdateText(args []string) errs.Result {
	e.MarkRecalculateText()
	return errs.OK
}

func (e *Entity) cmdReloadInvokes(args []string) errs.Result {
	e.MarkReloadRules()
	return errs.OK
}

func (e *Entity) cmdAddInvoke(args []string) errs.Result {
	if len(args) < 1 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("entity: add-invoke requires <file>"))
	}
	n := document.Len(e.doc, "invokes")
	document.Set(e.doc, fmt.Sprintf("invokes[%d]", n), args[0])
	e.MarkReloadRules()
	return errs.OK
}

func (e *Entity) cmdRemoveInvoke(args []string) errs.Result {
	if len(args) < 1 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("entity: remove-invoke requires <name>"))
	}
	refs := document.StringArray(e.doc, "invokes")
	kept := refs[:0]
	for _, r := range refs {
		if !strings.Contains(r, args[0]) {
			kept = append(kept, r)
		}
	}
	document.Delete(e.doc, "invokes")
	for i, r := range kept {
		document.Set(e.doc, fmt.Sprintf("invokes[%d]", i), r)
	}
	e.MarkReloadRules()
	return errs.OK
}

func (e *Entity) cmdEcho(args []string) errs.Result {
	log.Info().Str("entity", e.id.String()).Msg(strings.Join(args, " "))
	return errs.OK
}

func (e *Entity) cmdLog(args []string) errs.Result {
	target := "stderr"
	if len(args) > 0 {
		target = args[0]
	}
	log.Info().Str("entity", e.id.String()).Str("target", target).Msg("entity: log redirect requested")
	return errs.OK
}
