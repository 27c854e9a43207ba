package globalspace

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/rs/zerolog/log"

	"github.com/lbastigk/nebulite/internal/document"
	"github.com/lbastigk/nebulite/internal/errs"
	"github.com/lbastigk/nebulite/internal/expression"
)

// BindSelf, SelfDoc: at the top level there is no entity context, so
// "self" and "global" refer to the same Document — GlobalSpace satisfies
// expression.Binder for the `eval`/`if`/`assert` command surface.
func (gs *GlobalSpace) BindSelf(key string) *float64   { return gs.doc.GetStableDoublePointer(key) }
func (gs *GlobalSpace) BindGlobal(key string) *float64 { return gs.doc.GetStableDoublePointer(key) }
func (gs *GlobalSpace) SelfDoc() *document.Document    { return gs.doc }
func (gs *GlobalSpace) GlobalDoc() *document.Document  { return gs.doc }
func (gs *GlobalSpace) BindDoc(docPath, key string) (*float64, error) {
	doc, err := gs.ResolveDoc(docPath)
	if err != nil {
		return nil, err
	}
	return doc.GetStableDoublePointer(key), nil
}

var _ expression.Binder = (*GlobalSpace)(nil)

// bindCoreCommands registers the engine-level command surface directly on
// GlobalSpace.
func (gs *GlobalSpace) bindCoreCommands() {
	t := gs.rootTree
	_ = t.BindFunction("eval", gs.cmdEval, "eval <expr>: expand $()'s and re-dispatch")
	_ = t.BindFunction("spawn", gs.cmdSpawn, "spawn <entity-file-ref>: construct Entity, append to scene")
	_ = t.BindFunction("env-load", gs.cmdEnvLoad, "env-load <file>: load a scene")
	_ = t.BindFunction("env-deload", gs.cmdEnvDeload, "env-deload: clear the scene")
	_ = t.BindFunction("set-fps", gs.cmdSetFPS, "set-fps <n>")
	_ = t.BindFunction("set-resolution", gs.cmdSetResolution, "set-resolution <w> <h> <scale>")
	_ = t.BindFunction("show-fps", gs.cmdShowFPS, "show-fps {on|off}")
	_ = t.BindFunction("snapshot", gs.cmdSnapshot, "snapshot [path]")
	_ = t.BindFunction("move-cam", gs.cmdMoveCam, "move-cam <dx> <dy>")
	_ = t.BindFunction("set-cam", gs.cmdSetCam, "set-cam <x> <y> [c]")
	_ = t.BindFunction("wait", gs.cmdWait, "wait <frames>: cooperative pause of the script queue")
	_ = t.BindFunction("if", gs.cmdIf, "if <predicate-expr> <cmd...>")
	_ = t.BindFunction("for", gs.cmdFor, "for <var> <start> <end> <cmd...>")
	_ = t.BindFunction("assert", gs.cmdAssert, "assert <predicate-expr>")
	_ = t.BindFunction("return", gs.cmdReturn, "return <int>")
	_ = t.BindFunction("echo", gs.cmdEcho, "echo <...>")
	_ = t.BindFunction("error", gs.cmdError, "error <...>")
	_ = t.BindFunction("task-load", gs.cmdTaskLoad, "task-load <file>")
	_ = t.BindFunction("jq", gs.cmdJQ, "jq <query>: ad-hoc read-only query over the global Document")
	_ = t.BindFunction("set-global", gs.cmdSetGlobal, "set-global <key> <value>")
	_ = t.BindFunction("get-global", gs.cmdGetGlobal, "get-global <key>")
	_ = t.BindFunction("quit", gs.cmdQuit, "quit: request shutdown at next frame boundary")
	_ = t.BindFunction("errorlog", gs.cmdErrorLog, "errorlog {on <file>|off}: redirect diagnostics")
}

func (gs *GlobalSpace) cmdEval(args []string) errs.Result {
	raw := strings.Join(args, " ")
	expr, err := expression.Compile(raw, gs)
	if err != nil {
		return errs.NewResult(errs.CriticalFunctioncallInvalid, err)
	}
	out, err := expr.Eval(nil)
	if err != nil {
		return errs.NewResult(errs.CustomError, err)
	}
	return gs.ResolveTask(out)
}

func (gs *GlobalSpace) cmdSpawn(args []string) errs.Result {
	if len(args) < 1 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("spawn requires <entity-file-ref>"))
	}
	if _, err := gs.SpawnFromRef(args[0]); err != nil {
		return errs.NewResult(errs.CriticalInvalidFile, err)
	}
	return errs.OK
}

func (gs *GlobalSpace) cmdEnvLoad(args []string) errs.Result {
	if len(args) < 1 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("env-load requires <file>"))
	}
	if err := gs.EnvLoad(args[0]); err != nil {
		return errs.NewResult(errs.CriticalInvalidFile, err)
	}
	return errs.OK
}

func (gs *GlobalSpace) cmdEnvDeload(args []string) errs.Result {
	gs.EnvDeload()
	return errs.OK
}

func (gs *GlobalSpace) cmdSetFPS(args []string) errs.Result {
	if len(args) < 1 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("set-fps requires <n>"))
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return errs.NewResult(errs.UnknownArg, err)
	}
	gs.cfg.TargetFPS = n
	gs.renderer.SetFPS(n)
	document.Set(gs.doc, "fps.target", float64(n))
	return errs.OK
}

func (gs *GlobalSpace) cmdSetResolution(args []string) errs.Result {
	if len(args) < 3 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("set-resolution requires <w> <h> <scale>"))
	}
	w, err1 := strconv.Atoi(args[0])
	h, err2 := strconv.Atoi(args[1])
	scale, err3 := strconv.ParseFloat(args[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return errs.NewResult(errs.UnknownArg, fmt.Errorf("set-resolution: invalid numeric argument"))
	}
	gs.renderer.SetResolution(w, h, scale)
	return errs.OK
}

func (gs *GlobalSpace) cmdShowFPS(args []string) errs.Result {
	if len(args) < 1 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("show-fps requires on|off"))
	}
	gs.renderer.ShowFPS(args[0] == "on")
	return errs.OK
}

func (gs *GlobalSpace) cmdSnapshot(args []string) errs.Result {
	path := "snapshot.png"
	if len(args) > 0 {
		path = args[0]
	}
	if err := gs.renderer.Snapshot(path); err != nil {
		return errs.NewResult(errs.SnapshotFailed, err)
	}
	return errs.OK
}

func (gs *GlobalSpace) cmdMoveCam(args []string) errs.Result {
	if len(args) < 2 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("move-cam requires <dx> <dy>"))
	}
	dx, err1 := strconv.ParseFloat(args[0], 64)
	dy, err2 := strconv.ParseFloat(args[1], 64)
	if err1 != nil || err2 != nil {
		return errs.NewResult(errs.UnknownArg, fmt.Errorf("move-cam: invalid numeric argument"))
	}
	gs.renderer.MoveCam(dx, dy)
	return errs.OK
}

func (gs *GlobalSpace) cmdSetCam(args []string) errs.Result {
	if len(args) < 2 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("set-cam requires <x> <y> [c]"))
	}
	x, err1 := strconv.ParseFloat(args[0], 64)
	y, err2 := strconv.ParseFloat(args[1], 64)
	if err1 != nil || err2 != nil {
		return errs.NewResult(errs.UnknownArg, fmt.Errorf("set-cam: invalid numeric argument"))
	}
	relative := len(args) > 2 && args[2] == "c"
	gs.renderer.SetCam(x, y, relative)
	return errs.OK
}

func (gs *GlobalSpace) cmdWait(args []string) errs.Result {
	if len(args) < 1 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("wait requires <frames>"))
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return errs.NewResult(errs.UnknownArg, err)
	}
	gs.Wait(n)
	return errs.OK
}

func (gs *GlobalSpace) cmdIf(args []string) errs.Result {
	if len(args) < 2 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("if requires <predicate-expr> <cmd...>"))
	}
	if gs.exprCache.EvalBool(args[0]) {
		return gs.ResolveTask(strings.Join(args[1:], " "))
	}
	return errs.OK
}

func (gs *GlobalSpace) cmdFor(args []string) errs.Result {
	if len(args) < 4 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("for requires <var> <start> <end> <cmd...>"))
	}
	varName, startStr, endStr := args[0], args[1], args[2]
	cmdTpl := strings.Join(args[3:], " ")
	start, err1 := strconv.Atoi(startStr)
	end, err2 := strconv.Atoi(endStr)
	if err1 != nil || err2 != nil {
		return errs.NewResult(errs.UnknownArg, fmt.Errorf("for: invalid numeric bound"))
	}
	for i := start; i <= end; i++ {
		expanded := strings.ReplaceAll(cmdTpl, "$"+varName, strconv.Itoa(i))
		if res := gs.ResolveTask(expanded); res.IsCritical() {
			return res
		}
	}
	return errs.OK
}

func (gs *GlobalSpace) cmdAssert(args []string) errs.Result {
	if len(args) < 1 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("assert requires <predicate-expr>"))
	}
	if !gs.exprCache.EvalBool(args[0]) {
		return errs.NewResult(errs.CriticalCustomAssert, fmt.Errorf("assert failed: %s", args[0]))
	}
	return errs.OK
}

func (gs *GlobalSpace) cmdReturn(args []string) errs.Result {
	if len(args) < 1 {
		return errs.OK
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return errs.NewResult(errs.UnknownArg, err)
	}
	return errs.NewResult(errs.ErrorCode(n), nil)
}

func (gs *GlobalSpace) cmdEcho(args []string) errs.Result {
	log.Info().Msg(strings.Join(args, " "))
	return errs.OK
}

func (gs *GlobalSpace) cmdError(args []string) errs.Result {
	msg := strings.Join(args, " ")
	log.Error().Msg(msg)
	return errs.NewResult(errs.CustomError, fmt.Errorf("%s", msg))
}

func (gs *GlobalSpace) cmdTaskLoad(args []string) errs.Result {
	if len(args) < 1 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("task-load requires <file>"))
	}
	doc, _, err := document.LoadFile(gs.resourcePath(args[0]))
	if err != nil {
		return errs.NewResult(errs.CriticalInvalidFile, err)
	}
	for _, cmd := range document.StringArray(doc, "tasks") {
		gs.scriptQueue.push(cmd)
	}
	return errs.OK
}

func (gs *GlobalSpace) cmdJQ(args []string) errs.Result {
	if len(args) < 1 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("jq requires <query>"))
	}
	query, err := gojq.Parse(strings.Join(args, " "))
	if err != nil {
		return errs.NewResult(errs.CustomError, err)
	}
	serialized, err := gs.doc.Serialize()
	if err != nil {
		return errs.NewResult(errs.CustomError, err)
	}
	var input any
	if err := json.Unmarshal([]byte(serialized), &input); err != nil {
		return errs.NewResult(errs.CustomError, err)
	}
	iter := query.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return errs.NewResult(errs.CustomError, err)
		}
		log.Info().Interface("result", v).Msg("jq")
	}
	return errs.OK
}

func (gs *GlobalSpace) cmdSetGlobal(args []string) errs.Result {
	if len(args) < 2 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("set-global requires <key> <value>"))
	}
	key, value := args[0], strings.Join(args[1:], " ")
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		document.Set(gs.doc, key, f)
	} else if b, err := strconv.ParseBool(value); err == nil {
		document.Set(gs.doc, key, b)
	} else {
		document.Set(gs.doc, key, value)
	}
	return errs.OK
}

func (gs *GlobalSpace) cmdGetGlobal(args []string) errs.Result {
	if len(args) < 1 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("get-global requires <key>"))
	}
	log.Info().Interface("value", gs.doc.GetRaw(args[0])).Msg("get-global")
	return errs.OK
}

func (gs *GlobalSpace) cmdQuit(args []string) errs.Result {
	gs.RequestQuit()
	return errs.OK
}

// cmdErrorLog swaps the zerolog writer between stderr and a file: diagnostics go to
// stderr by default and can be redirected at runtime.
func (gs *GlobalSpace) cmdErrorLog(args []string) errs.Result {
	if len(args) < 1 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("errorlog requires on|off"))
	}
	if args[0] == "off" {
		log.Logger = log.Output(os.Stderr)
		return errs.OK
	}
	if len(args) < 2 {
		return errs.NewResult(errs.TooFewArgs, fmt.Errorf("errorlog on requires <file>"))
	}
	f, err := os.OpenFile(args[1], os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.NewResult(errs.CriticalInvalidFile, err)
	}
	log.Logger = log.Output(f)
	return errs.OK
}
