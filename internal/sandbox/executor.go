// Package sandbox runs generated CAD snippets in an embedded Go interpreter
// that only sees the cad namespace and the export target path.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"github.com/genx3d/genx3d/internal/cad"
	"github.com/genx3d/genx3d/internal/model"
)

// DefaultTimeout bounds a single snippet run.
const DefaultTimeout = 20 * time.Second

// Allocator hands out unique export targets.
type Allocator interface {
	Allocate(format string) (model.GeneratedModel, error)
}

// Config controls the executor.
type Config struct {
	Format  string
	Timeout time.Duration
}

// Executor evaluates sanitized snippets and exports the solid they build.
type Executor struct {
	alloc   Allocator
	format  string
	timeout time.Duration
}

// New creates an executor writing into targets from alloc.
func New(alloc Allocator, cfg Config) (*Executor, error) {
	format, err := cad.NormalizeFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Executor{alloc: alloc, format: format, timeout: cfg.Timeout}, nil
}

// Format returns the export format.
func (e *Executor) Format() string { return e.format }

// Execute runs code and returns the exported model. Failures are
// *model.Failure values with an execution kind.
func (e *Executor) Execute(ctx context.Context, code string) (model.Execution, error) {
	prog, fail := prepare(code, e.format)
	if fail != nil {
		return model.Execution{}, fail
	}

	target, err := e.alloc.Allocate(e.format)
	if err != nil {
		return model.Execution{}, model.Fail(model.KindExecutionExportMissing, "allocate export target: %v", err)
	}
	log := zap.L().With(zap.String("model_id", target.ID))

	bindings, fail := e.run(ctx, prog, target.Path)
	if fail != nil {
		removeQuiet(target.Path)
		log.Debug("sandbox: snippet failed", zap.String("kind", string(fail.Kind)), zap.String("error", fail.Message))
		return model.Execution{}, fail
	}

	solid, fail := locateSolid(bindings)
	if fail != nil {
		removeQuiet(target.Path)
		return model.Execution{}, fail
	}

	if !nonEmpty(target.Path) {
		if err := cad.Export(solid, target.Path, e.format); err != nil {
			removeQuiet(target.Path)
			return model.Execution{}, model.Fail(model.KindExecutionExportMissing, "export did not occur: %v", err)
		}
	}
	if !nonEmpty(target.Path) {
		removeQuiet(target.Path)
		return model.Execution{}, model.Fail(model.KindExecutionExportMissing,
			"export did not occur: %s was not written", filepath.Base(target.Path))
	}

	log.Debug("sandbox: model exported", zap.String("path", target.Path))
	return model.Execution{ModelID: target.ID, Path: target.Path}, nil
}

// namespace builds the per-run package table: the cad API with Export pinned
// to target and the executor's format, math, and the binding capture hook.
// The target's extension is fixed at allocation, so the snippet's format
// argument is only checked for spelling and never changes the encoding.
func namespace(target, format string, captured map[string]any) interp.Exports {
	export := func(w *cad.Workplane, path, f string) error {
		if filepath.Clean(path) != filepath.Clean(target) {
			return eris.Errorf("cad.Export: path must be %s", OutputVar)
		}
		if _, err := cad.NormalizeFormat(f); err != nil {
			return eris.Wrap(err, "cad.Export")
		}
		return cad.Export(w, target, format)
	}
	return interp.Exports{
		"cad/cad": {
			"NewWorkplane": reflect.ValueOf(cad.NewWorkplane),
			"Export":       reflect.ValueOf(export),
			"Workplane":    reflect.ValueOf((*cad.Workplane)(nil)),
		},
		"math/math": stdlib.Symbols["math/math"],
		"sandbox/capture/capture": {
			"Binding": reflect.ValueOf(func(name string, v any) { captured[name] = v }),
		},
	}
}

func (e *Executor) run(ctx context.Context, prog *program, target string) (bindings map[string]any, fail *model.Failure) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			fail = model.Fail(model.KindExecutionRuntime, "snippet panicked: %v", r)
		}
	}()

	captured := map[string]any{}
	i := interp.New(interp.Options{Stdout: io.Discard, Stderr: io.Discard})
	if err := i.Use(namespace(target, e.format, captured)); err != nil {
		return nil, model.Fail(model.KindExecutionRuntime, "load cad namespace: %v", err)
	}

	if _, err := i.EvalWithContext(ctx, prog.source()); err != nil {
		if f := timeoutFailure(ctx, e.timeout); f != nil {
			return nil, f
		}
		return nil, classifyCompile(err, prog)
	}
	if _, err := i.EvalWithContext(ctx, "main.Run("+strconv.Quote(target)+")"); err != nil {
		if f := timeoutFailure(ctx, e.timeout); f != nil {
			return nil, f
		}
		return nil, model.Fail(model.KindExecutionRuntime, "snippet failed while running: %s", cleanMessage(err.Error()))
	}
	return captured, nil
}

func timeoutFailure(ctx context.Context, d time.Duration) *model.Failure {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.Fail(model.KindExecutionTimeout, "snippet did not finish within %s", d)
	}
	if ctx.Err() != nil {
		return model.Fail(model.KindExecutionTimeout, "snippet cancelled: %v", ctx.Err())
	}
	return nil
}

var (
	positionRe      = regexp.MustCompile(`(\d+):(\d+): `)
	undefinedRe     = regexp.MustCompile(`undefined: (\w+)`)
	undefinedSelRe  = regexp.MustCompile(`undefined selector:? (\w+)`)
	noMethodRe      = regexp.MustCompile(`(?:has no field or method|no field or method) (\w+)`)
	apiMismatchHint = []string{"cannot use", "not enough arguments", "too many arguments", "mismatched types", "invalid operation", "cannot call"}
)

func cleanMessage(msg string) string {
	if loc := positionRe.FindStringIndex(msg); loc != nil {
		msg = msg[loc[1]:]
	}
	return strings.TrimSpace(msg)
}

// classifyCompile maps interpreter compile errors to execution kinds.
func classifyCompile(err error, prog *program) *model.Failure {
	raw := err.Error()
	where := ""
	line := 0
	if m := positionRe.FindStringSubmatch(raw); m != nil {
		n, _ := strconv.Atoi(m[1])
		var text string
		line, text = prog.snippetLine(n)
		if line > 0 {
			where = fmt.Sprintf(" (line %d: %q)", line, text)
		}
	}
	msg := cleanMessage(raw)

	var f *model.Failure
	switch {
	case undefinedSelRe.MatchString(msg):
		name := undefinedSelRe.FindStringSubmatch(msg)[1]
		f = model.Fail(model.KindExecutionAPIMisuse, "%s%s%s", msg, where, selectorHint(name))
	case noMethodRe.MatchString(msg):
		name := noMethodRe.FindStringSubmatch(msg)[1]
		f = model.Fail(model.KindExecutionAPIMisuse, "%s%s%s", msg, where, selectorHint(name))
	case undefinedRe.MatchString(msg):
		name := undefinedRe.FindStringSubmatch(msg)[1]
		f = model.Fail(model.KindExecutionName, "name %s is not defined%s; declare it before use or use one of the cad workplane methods", name, where)
	case containsAny(msg, "expected", "syntax error", "illegal"):
		f = model.Fail(model.KindExecutionSyntax, "syntax error%s: %s", where, msg)
	case containsAny(msg, apiMismatchHint...):
		f = model.Fail(model.KindExecutionAPIMisuse, "%s%s; check the argument types and counts of cad workplane methods", msg, where)
	default:
		f = model.Fail(model.KindExecutionRuntime, "snippet failed to compile: %s%s", msg, where)
	}
	f.Line = line
	return f
}

func selectorHint(name string) string {
	if m, ok := lookupFold(workplaneMethods, name); ok {
		return fmt.Sprintf("; did you mean .%s(...)?", m)
	}
	return "; workplane methods are Box, Cylinder, Sphere, Circle, Rect, Extrude, Revolve, Cut, Union, Intersect, Translate, Center, MoveTo, Hole, PolarHoles"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// locateSolid picks the first accepted binding holding a built solid.
func locateSolid(bindings map[string]any) (*cad.Workplane, *model.Failure) {
	for _, name := range SolidNames {
		v, ok := bindings[name]
		if !ok || v == nil {
			continue
		}
		wp, ok := v.(*cad.Workplane)
		if !ok {
			return nil, model.Fail(model.KindExecutionNoSolid,
				"variable %s holds a %T, not a cad workplane", name, v)
		}
		if wp == nil {
			continue
		}
		if err := wp.Err(); err != nil {
			return nil, model.Fail(model.KindExecutionRuntime, "building %s failed: %v", name, err)
		}
		if !wp.HasSolid() {
			return nil, model.Fail(model.KindExecutionNoSolid,
				"variable %s has no solid; extrude or revolve the sketch before assigning it", name)
		}
		return wp, nil
	}
	return nil, model.Fail(model.KindExecutionNoSolid,
		"no solid produced: assign the final shape to one of %s", strings.Join(SolidNames, ", "))
}

func nonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

func removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		zap.L().Warn("sandbox: remove partial export", zap.String("path", path), zap.Error(err))
	}
}
