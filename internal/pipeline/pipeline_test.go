package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/genx3d/genx3d/internal/embedding"
	"github.com/genx3d/genx3d/internal/model"
	"github.com/genx3d/genx3d/internal/modelstore"
	"github.com/genx3d/genx3d/internal/retrieval"
	"github.com/genx3d/genx3d/internal/sandbox"
	"github.com/genx3d/genx3d/internal/store"
	"github.com/genx3d/genx3d/internal/synth"
)

const cuboidCode = `import "cad"
result := cad.NewWorkplane("XY").Box(10, 20, 30)
cad.Export(result, outputPath, "STEP")`

var ragExamples = []model.RetrievalResult{
	{Prompt: "a cuboid", Code: cuboidCode, Score: 0.9, Source: model.SourceLocal},
}

func TestGenerate_SuccessFirstAttempt(t *testing.T) {
	ctx := context.Background()
	r := &stubRetriever{results: ragExamples}
	s := &mockSynth{}
	e := &mockExec{}
	obs := &recordingObserver{}

	s.On("Synthesize", ctx, synth.Input{Request: "create a cuboid", Examples: ragExamples}).
		Return(synth.Output{Prompt: "p", Raw: "raw", Code: cuboidCode}, nil).Once()
	e.On("Execute", ctx, cuboidCode).Return(model.Execution{ModelID: "m1", Path: "/tmp/model_m1.step"}, nil).Once()

	p := New(r, s, e, stubModels{}, Config{UseHybrid: true}, WithObserver(obs))
	res := p.Generate(ctx, "  create a cuboid ")

	assert.True(t, res.Success)
	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "m1", res.ModelID)
	assert.Equal(t, "/static/generated_models/model_m1.step", res.ModelURL)
	assert.Equal(t, cuboidCode, res.SanitizedCode)
	assert.Equal(t, MethodRAG, res.Method)
	assert.Equal(t, 0.9, res.TopScore)
	require.Len(t, res.ExamplesUsed, 1)
	require.Len(t, res.History, 1)
	assert.True(t, res.History[0].Succeeded())

	assert.Equal(t, []string{"retrieve", "synthesize", "execute"}, obs.stages)
	require.Len(t, obs.results, 1)
	s.AssertExpectations(t)
	e.AssertExpectations(t)
}

func TestGenerate_AlwaysInvalidUsesFullBudget(t *testing.T) {
	ctx := context.Background()
	r := &stubRetriever{results: ragExamples}
	s := &mockSynth{}
	e := &mockExec{}

	bad := `result := cad.NewWorkplane("XY").Box(1, 1, 1)`
	s.On("Synthesize", ctx, mock.Anything).
		Return(synth.Output{Code: bad}, model.Fail(model.KindSynthesisValidation, "code must use the outputPath variable"))

	p := New(r, s, e, stubModels{}, Config{})
	res := p.Generate(ctx, "a box")

	assert.False(t, res.Success)
	assert.Equal(t, model.StatusFailure, res.Status)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, bad, res.LastSanitizedCode)
	assert.Equal(t, "code must use the outputPath variable", res.LastError)
	assert.Equal(t, model.KindSynthesisValidation, res.LastErrorKind)
	assert.Contains(t, res.ErrorMessage, "3 attempts")
	assert.Equal(t, 3, r.calls, "retrieval re-runs every attempt")
	s.AssertNumberOfCalls(t, "Synthesize", 3)
	e.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestGenerate_FeedsPriorFailureIntoRetry(t *testing.T) {
	ctx := context.Background()
	r := &stubRetriever{results: ragExamples}
	s := &mockSynth{}
	e := &mockExec{}

	first := `import "cad"
result := cad.Box(1, 1, 1)
cad.Export(result, outputPath, "STEP")`
	s.On("Synthesize", ctx, synth.Input{Request: "a box", Examples: ragExamples}).
		Return(synth.Output{Code: first}, nil).Once()
	e.On("Execute", ctx, first).
		Return(model.Execution{}, model.Fail(model.KindExecutionAPIMisuse, "undefined: cad.Box; use cad.NewWorkplane(\"XY\").Box(...)")).Once()

	s.On("Synthesize", ctx, synth.Input{
		Request:      "a box",
		Examples:     ragExamples,
		PriorError:   "undefined: cad.Box; use cad.NewWorkplane(\"XY\").Box(...)",
		PreviousCode: first,
	}).Return(synth.Output{Code: cuboidCode}, nil).Once()
	e.On("Execute", ctx, cuboidCode).Return(model.Execution{ModelID: "m2", Path: "/x"}, nil).Once()

	res := New(r, s, e, stubModels{}, Config{}).Generate(ctx, "a box")

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Attempts)
	require.Len(t, res.History, 2)
	assert.Equal(t, model.KindExecutionAPIMisuse, res.History[0].ErrorKind)
	assert.True(t, res.History[1].Succeeded())
	s.AssertExpectations(t)
	e.AssertExpectations(t)
}

func TestGenerate_EmptyOutputEveryAttempt(t *testing.T) {
	ctx := context.Background()
	s := &mockSynth{}
	s.On("Synthesize", ctx, mock.Anything).
		Return(synth.Output{Raw: "I cannot help with that."}, model.Fail(model.KindSynthesisEmptyOutput, "no code found in LLM output"))

	obs := &recordingObserver{}
	res := New(&stubRetriever{}, s, &mockExec{}, stubModels{}, Config{}, WithObserver(obs)).Generate(ctx, "a gear")

	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, model.NoCodePlaceholder, res.LastSanitizedCode)
	assert.Equal(t, model.KindSynthesisEmptyOutput, res.LastErrorKind)
	assert.Equal(t, MethodFallback, res.Method)
	assert.Contains(t, obs.stages, "synthesize!")
}

func TestGenerate_BackendErrorKeepsLastCode(t *testing.T) {
	ctx := context.Background()
	s := &mockSynth{}
	s.On("Synthesize", ctx, mock.Anything).Return(synth.Output{Code: cuboidCode}, nil).Once()
	s.On("Synthesize", ctx, mock.Anything).Return(synth.Output{}, eris.New("llm: 503")).Twice()
	e := &mockExec{}
	e.On("Execute", ctx, cuboidCode).Return(model.Execution{}, model.Fail(model.KindExecutionRuntime, "panic: boom")).Once()

	res := New(&stubRetriever{results: ragExamples}, s, e, stubModels{}, Config{}).Generate(ctx, "a box")

	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, cuboidCode, res.LastSanitizedCode, "earlier code survives later empty attempts")
	assert.Equal(t, model.KindSynthesisValidation, res.LastErrorKind, "plain errors default to validation kind")
}

func TestGenerate_UnconfirmedExport(t *testing.T) {
	ctx := context.Background()
	s := &mockSynth{}
	s.On("Synthesize", ctx, mock.Anything).Return(synth.Output{Code: cuboidCode}, nil)
	e := &mockExec{}
	e.On("Execute", ctx, cuboidCode).Return(model.Execution{ModelID: "m", Path: "/missing"}, nil)

	res := New(&stubRetriever{}, s, e, stubModels{err: eris.New("stat: no such file")}, Config{MaxAttempts: 2}).Generate(ctx, "a box")

	assert.False(t, res.Success)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, model.KindExecutionExportMissing, res.LastErrorKind)
	assert.Empty(t, res.ModelURL)
}

func TestGenerate_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &mockSynth{}
	s.On("Synthesize", ctx, mock.Anything).Return(synth.Output{}, model.Fail(model.KindSynthesisBackend, "context canceled"))

	res := New(&stubRetriever{}, s, &mockExec{}, stubModels{}, Config{}).Generate(ctx, "a box")
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
}

// echoCompleter answers every prompt with the given code, standing in for
// an LLM that copies the best example.
type echoCompleter struct{ code string }

func (e echoCompleter) Complete(context.Context, string) (string, error) {
	return "Here is the code:\n```go\n" + e.code + "\n```", nil
}

func TestGenerate_EndToEnd(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := store.NewSQLite(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	require.NoError(t, idx.Migrate(ctx))

	emb := embedding.NewHash(0)
	ex := model.Example{ID: "cuboid", Prompt: "a cuboid", Code: cuboidCode}
	ex.Embedding, err = emb.Embed(ctx, ex.Prompt)
	require.NoError(t, err)
	require.NoError(t, idx.Insert(ctx, ex))

	models, err := modelstore.New(filepath.Join(dir, "models"), "/static/generated_models")
	require.NoError(t, err)
	exec, err := sandbox.New(models, sandbox.Config{Format: "STEP", Timeout: 10 * time.Second})
	require.NoError(t, err)

	p := New(
		retrieval.New(emb, idx),
		synth.New(echoCompleter{code: cuboidCode}),
		exec,
		models,
		Config{UseHybrid: true},
	)
	res := p.Generate(ctx, "create a cuboid")

	require.True(t, res.Success, "last error: %s", res.LastError)
	assert.Equal(t, 1, res.Attempts)
	require.NotEmpty(t, res.ExamplesUsed)
	assert.Equal(t, "a cuboid", res.ExamplesUsed[0].Prompt)
	assert.GreaterOrEqual(t, res.TopScore, 0.8)

	got, err := models.Get(res.ModelID)
	require.NoError(t, err)
	assert.Positive(t, got.Size)
	assert.Equal(t, res.ModelURL, got.URL)
}
