// Package synth turns a request and retrieved examples into validated CAD
// code by prompting an LLM and sanitizing its reply.
package synth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/genx3d/genx3d/internal/cad"
	"github.com/genx3d/genx3d/internal/model"
)

// Completer is the LLM collaborator: prompt in, text out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Input is one synthesis request. PriorError and PreviousCode are set on
// retries.
type Input struct {
	Request      string
	Examples     []model.RetrievalResult
	PriorError   string
	PreviousCode string
}

// Output carries everything produced by one synthesis call, including on
// failure.
type Output struct {
	Prompt string
	Raw    string
	Code   string
}

// Synthesizer prompts the LLM and validates the sanitized result.
type Synthesizer struct {
	llm    Completer
	format string
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithFormat sets the export format named in prompts and retry hints.
// Defaults to STEP.
func WithFormat(format string) Option {
	return func(s *Synthesizer) {
		if f, err := cad.NormalizeFormat(format); err == nil {
			s.format = f
		}
	}
}

// New creates a Synthesizer.
func New(llm Completer, opts ...Option) *Synthesizer {
	s := &Synthesizer{llm: llm, format: cad.FormatSTEP}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize returns sanitized, validated code. Errors are *model.Failure
// values of a synthesis kind.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (Output, error) {
	out := Output{Prompt: BuildPrompt(in.Request, in.Examples, in.PriorError, in.PreviousCode, s.format)}

	start := time.Now()
	raw, err := s.llm.Complete(ctx, out.Prompt)
	if err != nil {
		return out, model.Fail(model.KindSynthesisBackend, "LLM completion failed: %v", err)
	}
	out.Raw = raw
	out.Code = Sanitize(raw)

	zap.L().Debug("synth: completion received",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("raw_len", len(raw)),
		zap.Int("code_len", len(out.Code)),
		zap.Bool("retry", in.PriorError != ""),
	)

	if f := Validate(out.Code, s.format); f != nil {
		return out, f
	}
	return out, nil
}
