package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureError(t *testing.T) {
	t.Parallel()

	f := Fail(KindExecutionNoSolid, "no solid in %v", []string{"solid", "result"})
	assert.Equal(t, "execution_no_solid: no solid in [solid result]", f.Error())
}

func TestAsFailure(t *testing.T) {
	t.Parallel()

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, AsFailure(nil, KindExecutionRuntime))
	})

	t.Run("wrapped failure", func(t *testing.T) {
		t.Parallel()
		orig := Fail(KindSynthesisValidation, "missing outputPath")
		err := fmt.Errorf("synth: %w", orig)
		f := AsFailure(err, KindExecutionRuntime)
		require.NotNil(t, f)
		assert.Equal(t, KindSynthesisValidation, f.Kind)
		assert.Equal(t, "missing outputPath", f.Message)
	})

	t.Run("plain error uses fallback kind", func(t *testing.T) {
		t.Parallel()
		f := AsFailure(eris.New("boom"), KindSynthesisBackend)
		require.NotNil(t, f)
		assert.Equal(t, KindSynthesisBackend, f.Kind)
		assert.Contains(t, f.Message, "boom")
	})

	t.Run("errors.As compatible", func(t *testing.T) {
		t.Parallel()
		var f *Failure
		assert.True(t, errors.As(Fail(KindExecutionName, "x"), &f))
	})
}

func TestErrorKindStage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindRetrievalBackend, "retrieve"},
		{KindSynthesisBackend, "synthesize"},
		{KindSynthesisEmptyOutput, "synthesize"},
		{KindSynthesisValidation, "validate"},
		{KindExecutionSyntax, "execute"},
		{KindExecutionExportMissing, "execute"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.Stage(), string(tt.kind))
	}
}

func TestSourcePriority(t *testing.T) {
	t.Parallel()

	assert.Less(t, SourceLocal.Priority(), SourceRemote.Priority())
	assert.Less(t, SourceRemote.Priority(), SourceFallback.Priority())
	assert.Less(t, SourceFallback.Priority(), Source("other").Priority())
}

func TestRefs(t *testing.T) {
	t.Parallel()

	refs := Refs([]RetrievalResult{
		{Prompt: "a cube", Code: "x", Score: 0.9, Source: SourceLocal},
		{Prompt: "a ball", Code: "y", Score: 0.4, Source: SourceFallback},
	})
	require.Len(t, refs, 2)
	assert.Equal(t, ExampleRef{Prompt: "a cube", Score: 0.9, Source: SourceLocal}, refs[0])
	assert.Equal(t, SourceFallback, refs[1].Source)
}
