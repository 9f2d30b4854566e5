package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/genx3d/genx3d/internal/model"
	"github.com/genx3d/genx3d/internal/synth"
)

type mockSynth struct{ mock.Mock }

func (m *mockSynth) Synthesize(ctx context.Context, in synth.Input) (synth.Output, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(synth.Output), args.Error(1)
}

type mockExec struct{ mock.Mock }

func (m *mockExec) Execute(ctx context.Context, code string) (model.Execution, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(model.Execution), args.Error(1)
}

type stubRetriever struct {
	results []model.RetrievalResult
	calls   int
}

func (s *stubRetriever) Retrieve(context.Context, string, int, bool) []model.RetrievalResult {
	s.calls++
	return s.results
}

type stubModels struct{ err error }

func (s stubModels) Confirm(exec model.Execution) (model.GeneratedModel, error) {
	if s.err != nil {
		return model.GeneratedModel{}, s.err
	}
	return model.GeneratedModel{ID: exec.ModelID, Path: exec.Path, URL: "/static/generated_models/model_" + exec.ModelID + ".step"}, nil
}

type recordingObserver struct {
	mu      sync.Mutex
	stages  []string
	results []model.GenerationResult
}

func (o *recordingObserver) ObserveStage(stage string, _ time.Duration, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !ok {
		stage += "!"
	}
	o.stages = append(o.stages, stage)
}

func (o *recordingObserver) ObserveGeneration(res model.GenerationResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, res)
}
