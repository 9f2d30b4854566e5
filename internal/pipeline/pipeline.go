// Package pipeline drives the retrieve → synthesize → execute loop for one
// generation request, feeding each failure into the next attempt.
package pipeline

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/genx3d/genx3d/internal/model"
	"github.com/genx3d/genx3d/internal/synth"
)

// DefaultMaxAttempts is the retry budget per request.
const DefaultMaxAttempts = 3

// Methods reported in GenerationResult.Method.
const (
	MethodRAG      = "rag_assisted"
	MethodFallback = "fallback_examples"
)

// Retriever ranks examples for a request. It never fails.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, useHybrid bool) []model.RetrievalResult
}

// Synthesizer produces validated code. Errors are *model.Failure values.
type Synthesizer interface {
	Synthesize(ctx context.Context, in synth.Input) (synth.Output, error)
}

// Executor runs code and exports the model. Errors are *model.Failure values.
type Executor interface {
	Execute(ctx context.Context, code string) (model.Execution, error)
}

// ModelStore confirms that an exported file exists before it is referenced.
type ModelStore interface {
	Confirm(exec model.Execution) (model.GeneratedModel, error)
}

// Observer receives stage timings and terminal results.
type Observer interface {
	ObserveStage(stage string, d time.Duration, ok bool)
	ObserveGeneration(res model.GenerationResult)
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, time.Duration, bool)  {}
func (noopObserver) ObserveGeneration(model.GenerationResult) {}

// Config controls the loop.
type Config struct {
	MaxAttempts int
	TopK        int
	UseHybrid   bool
}

// Pipeline is safe for concurrent use; all per-request state lives on the
// stack of Generate.
type Pipeline struct {
	retriever Retriever
	synth     Synthesizer
	exec      Executor
	models    ModelStore
	observer  Observer
	cfg       Config
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver sets the stage and result observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

// New creates a Pipeline.
func New(r Retriever, s Synthesizer, e Executor, models ModelStore, cfg Config, opts ...Option) *Pipeline {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	p := &Pipeline{retriever: r, synth: s, exec: e, models: models, observer: noopObserver{}, cfg: cfg}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Generate always resolves to a terminal result; it never returns an error.
func (p *Pipeline) Generate(ctx context.Context, request string) model.GenerationResult {
	request = strings.TrimSpace(request)
	log := zap.L().With(
		zap.String("request_id", uuid.NewString()),
		zap.String("request", request),
	)
	start := time.Now()

	var (
		history  []model.GenerationAttempt
		examples []model.RetrievalResult
		lastCode string
		lastFail *model.Failure
		success  *model.GeneratedModel
	)

	for n := 1; n <= p.cfg.MaxAttempts; n++ {
		attempt := model.GenerationAttempt{Number: n}
		attemptStart := time.Now()
		alog := log.With(zap.Int("attempt", n))

		examples = p.retrieve(ctx, alog, request)

		var out synth.Output
		fail := p.trackStage(alog, "synthesize", func() *model.Failure {
			var err error
			out, err = p.synth.Synthesize(ctx, synth.Input{
				Request:      request,
				Examples:     examples,
				PriorError:   failureMessage(lastFail),
				PreviousCode: lastCode,
			})
			return model.AsFailure(err, model.KindSynthesisValidation)
		})
		attempt.Prompt = out.Prompt
		attempt.RawOutput = out.Raw
		attempt.SanitizedCode = out.Code
		if out.Code != "" {
			lastCode = out.Code
		}

		var gm model.GeneratedModel
		if fail == nil {
			fail = p.trackStage(alog, "execute", func() *model.Failure {
				exec, err := p.exec.Execute(ctx, out.Code)
				if err != nil {
					return model.AsFailure(err, model.KindExecutionRuntime)
				}
				gm, err = p.models.Confirm(exec)
				if err != nil {
					return model.Fail(model.KindExecutionExportMissing, "export did not occur: %v", err)
				}
				return nil
			})
		}

		attempt.Duration = time.Since(attemptStart).Round(time.Millisecond).String()
		if fail == nil {
			attempt.ModelID = gm.ID
			attempt.FilePath = gm.Path
			history = append(history, attempt)
			success = &gm
			break
		}

		attempt.ErrorKind = fail.Kind
		attempt.Error = fail.Message
		history = append(history, attempt)
		lastFail = fail
		alog.Warn("pipeline: attempt failed",
			zap.String("error_kind", string(fail.Kind)),
			zap.String("error", fail.Message),
		)
		if ctx.Err() != nil {
			break
		}
	}

	res := model.GenerationResult{
		Request:      request,
		Attempts:     len(history),
		Method:       method(examples),
		ExamplesUsed: model.Refs(examples),
		History:      history,
	}
	if len(examples) > 0 {
		res.TopScore = examples[0].Score
	}

	if success != nil {
		res.Status = model.StatusSuccess
		res.Success = true
		res.ModelURL = success.URL
		res.ModelID = success.ID
		res.SanitizedCode = lastCode
	} else {
		if lastCode == "" {
			lastCode = model.NoCodePlaceholder
		}
		res.Status = model.StatusFailure
		res.ErrorMessage = "Failed to generate a valid model after " + plural(res.Attempts, "attempt")
		res.LastSanitizedCode = lastCode
		res.LastError = failureMessage(lastFail)
		if lastFail != nil {
			res.LastErrorKind = lastFail.Kind
		}
	}

	p.observer.ObserveGeneration(res)
	log.Info("pipeline: generation finished",
		zap.String("status", string(res.Status)),
		zap.Int("attempts", res.Attempts),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res
}

func (p *Pipeline) retrieve(ctx context.Context, log *zap.Logger, request string) []model.RetrievalResult {
	var examples []model.RetrievalResult
	p.trackStage(log, "retrieve", func() *model.Failure {
		examples = p.retriever.Retrieve(ctx, request, p.cfg.TopK, p.cfg.UseHybrid)
		return nil
	})
	return examples
}

// trackStage times fn, reports it to the observer under the stage the
// failure belongs to (validation failures surface from synthesize), and
// logs the outcome.
func (p *Pipeline) trackStage(log *zap.Logger, stage string, fn func() *model.Failure) *model.Failure {
	start := time.Now()
	fail := fn()
	elapsed := time.Since(start)

	label := stage
	if fail != nil {
		if s := fail.Kind.Stage(); s != "" {
			label = s
		}
	}
	p.observer.ObserveStage(label, elapsed, fail == nil)

	if fail != nil {
		log.Debug("pipeline: stage failed",
			zap.String("stage", label),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
			zap.String("error_kind", string(fail.Kind)),
		)
	} else {
		log.Debug("pipeline: stage complete",
			zap.String("stage", label),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	}
	return fail
}

func failureMessage(f *model.Failure) string {
	if f == nil {
		return ""
	}
	return f.Message
}

func method(examples []model.RetrievalResult) string {
	for _, ex := range examples {
		if ex.Source != model.SourceFallback {
			return MethodRAG
		}
	}
	return MethodFallback
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return strconv.Itoa(n) + " " + word + "s"
}
