package synth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/genx3d/genx3d/internal/cad"
	"github.com/genx3d/genx3d/internal/model"
)

func TestSynthesize_Success(t *testing.T) {
	t.Parallel()

	llm := &mockCompleter{}
	llm.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Request: a 10mm cube")
	})).Return("Here is the code:\n```go\n"+goodCode+"\n```\nEnjoy.", nil)

	out, err := New(llm).Synthesize(context.Background(), Input{Request: "a 10mm cube"})
	require.NoError(t, err)
	assert.Equal(t, goodCode, out.Code)
	assert.Contains(t, out.Raw, "Here is the code")
	assert.Contains(t, out.Prompt, "cad.NewWorkplane")
	llm.AssertExpectations(t)
}

func TestSynthesize_BackendError(t *testing.T) {
	t.Parallel()

	llm := &mockCompleter{}
	llm.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

	out, err := New(llm).Synthesize(context.Background(), Input{Request: "a cube"})
	require.Error(t, err)

	var f *model.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, model.KindSynthesisBackend, f.Kind)
	assert.Contains(t, f.Message, "connection refused")
	assert.NotEmpty(t, out.Prompt)
	assert.Empty(t, out.Code)
}

func TestSynthesize_EmptyOutput(t *testing.T) {
	t.Parallel()

	llm := &mockCompleter{}
	llm.On("Complete", mock.Anything, mock.Anything).Return("I am not able to do that", nil)

	out, err := New(llm).Synthesize(context.Background(), Input{Request: "a cube"})
	var f *model.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, model.KindSynthesisEmptyOutput, f.Kind)
	assert.Equal(t, "I am not able to do that", out.Raw)
}

func TestSynthesize_ValidationFailureKeepsCode(t *testing.T) {
	t.Parallel()

	raw := "result := cad.NewWorkplane(\"XY\").Sphere(10)\ncad.Export(result, \"sphere.step\", \"STEP\")"
	llm := &mockCompleter{}
	llm.On("Complete", mock.Anything, mock.Anything).Return(raw, nil)

	out, err := New(llm).Synthesize(context.Background(), Input{Request: "a sphere"})
	var f *model.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, model.KindSynthesisValidation, f.Kind)
	assert.Equal(t, raw, out.Code)
}

func TestSynthesize_RepairPrompt(t *testing.T) {
	t.Parallel()

	llm := &mockCompleter{}
	llm.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "previous code for the request below failed") &&
			strings.Contains(p, "execution_name: undefined: rad") &&
			strings.Contains(p, "Sphere(rad)")
	})).Return(goodCode, nil)

	_, err := New(llm).Synthesize(context.Background(), Input{
		Request:      "a ball",
		PriorError:   "execution_name: undefined: rad",
		PreviousCode: "result := cad.NewWorkplane(\"XY\").Sphere(rad)",
	})
	require.NoError(t, err)
	llm.AssertExpectations(t)
}

func TestBuildPrompt_Examples(t *testing.T) {
	t.Parallel()

	examples := []model.RetrievalResult{
		{Prompt: "low", Code: "low code", Score: 0.2, Source: model.SourceFallback},
		{Prompt: "high", Code: "high code", Score: 0.9, Source: model.SourceLocal},
		{Prompt: "mid", Code: "mid code", Score: 0.5, Source: model.SourceRemote},
	}
	p := BuildPrompt("a bracket", examples, "", "", cad.FormatSTEP)

	assert.Contains(t, p, "Example 1 (high)")
	assert.Contains(t, p, "Example 2 (mid)")
	assert.NotContains(t, p, "low code")
	assert.Less(t, strings.Index(p, "high code"), strings.Index(p, "mid code"))
	// Input order is left untouched.
	assert.Equal(t, "low", examples[0].Prompt)
}

func TestBuildPrompt_NoExamples(t *testing.T) {
	t.Parallel()

	p := BuildPrompt("a bracket", nil, "", "", cad.FormatSTEP)
	assert.NotContains(t, p, "Working examples")
	assert.Contains(t, p, "Request: a bracket")
}

func TestBuildPrompt_Format(t *testing.T) {
	t.Parallel()

	p := BuildPrompt("a bracket", nil, "", "", cad.FormatSTL)
	assert.Contains(t, p, `cad.Export(result, outputPath, "STL")`)
	assert.NotContains(t, p, `"STEP"`)

	p = BuildPrompt("a bracket", nil, "boom", "x := 1", cad.FormatSTL)
	assert.Contains(t, p, `cad.Export(result, outputPath, "STL")`)
}

func TestBuildPrompt_RepairWithoutCode(t *testing.T) {
	t.Parallel()

	p := BuildPrompt("a bracket", nil, "boom", "  ", cad.FormatSTEP)
	assert.Contains(t, p, "(none)")
	assert.Contains(t, p, "boom")
}

func TestSynthesize_FormatInPromptAndHints(t *testing.T) {
	t.Parallel()

	llm := &mockCompleter{}
	llm.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, `cad.Export(result, outputPath, "STL")`) &&
			!strings.Contains(p, `"STEP"`)
	})).Return("import \"cad\"\nresult := cad.NewWorkplane(\"XY\").Sphere(10)", nil)

	_, err := New(llm, WithFormat("stl")).Synthesize(context.Background(), Input{Request: "a sphere"})
	var f *model.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, model.KindSynthesisValidation, f.Kind)
	assert.Contains(t, f.Message, `cad.Export(result, outputPath, "STL")`)
	llm.AssertExpectations(t)
}

func TestWithFormat_IgnoresUnknown(t *testing.T) {
	t.Parallel()

	s := New(&mockCompleter{}, WithFormat("obj"))
	assert.Equal(t, cad.FormatSTEP, s.format)
}
