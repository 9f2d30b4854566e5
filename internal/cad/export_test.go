package cad

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportSTEP(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model_a.step")
	w := NewWorkplane("XY").Box(10, 10, 10).Cut(NewWorkplane("XY").Cylinder(20, 2))
	require.NoError(t, Export(w, path, "step"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "ISO-10303-21;"))
	assert.Contains(t, text, "FILE_NAME('model_a.step'")
	assert.Contains(t, text, "BLOCK('',")
	assert.Contains(t, text, "RIGHT_CIRCULAR_CYLINDER(")
	assert.Contains(t, text, "BOOLEAN_RESULT('',.DIFFERENCE.,")
	assert.Contains(t, text, "CSG_SOLID('genx3d',")
	assert.True(t, strings.HasSuffix(text, "END-ISO-10303-21;\n"))
}

func TestExportSTL(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model_b.stl")
	w := NewWorkplane("XY").Box(1, 1, 1).Union(NewWorkplane("XY").Sphere(0.4).Translate(0, 0, 1))
	require.NoError(t, Export(w, path, "STL"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "solid genx3d\n"))
	assert.Equal(t, strings.Count(text, "facet normal"), strings.Count(text, "endfacet"))
	assert.Greater(t, strings.Count(text, "facet normal"), 12)
}

func TestExportSTLCut(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model_c.stl")
	w := NewWorkplane("XY").Box(10, 10, 10).Hole(2)
	require.NoError(t, Export(w, path, "stl"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "solid genx3d\n"))
	assert.Equal(t, strings.Count(text, "facet normal"), strings.Count(text, "endfacet"))
}

func TestExportSTLEmptyCut(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model_d.stl")
	w := NewWorkplane("XY").Box(2, 2, 2).Cut(NewWorkplane("XY").Box(4, 4, 4))
	require.ErrorIs(t, Export(w, path, "stl"), ErrMeshEmpty)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "no partial file")
}

func TestExportErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	assert.Error(t, Export(nil, filepath.Join(dir, "a.step"), "STEP"))
	require.ErrorIs(t, Export(NewWorkplane("XY"), filepath.Join(dir, "b.step"), "STEP"), ErrNoSolid)

	err := Export(NewWorkplane("XY").Sphere(-2), filepath.Join(dir, "c.step"), "STEP")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sphere dimensions must be positive")

	err = Export(NewWorkplane("XY").Sphere(2), filepath.Join(dir, "d.obj"), "OBJ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported export format")

	assert.Error(t, Export(NewWorkplane("XY").Sphere(2), "", "STEP"))
	assert.Error(t, Export(NewWorkplane("XY").Sphere(2), filepath.Join(dir, "missing", "e.step"), "STEP"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNormalizeFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"step", FormatSTEP},
		{".stp", FormatSTEP},
		{"", FormatSTEP},
		{" STL ", FormatSTL},
	}
	for _, tt := range tests {
		got, err := NormalizeFormat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	assert.Equal(t, "stl", Extension(FormatSTL))
	assert.Equal(t, "step", Extension(FormatSTEP))
}

func TestStepReal(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0.", stepReal(0))
	assert.Equal(t, "10.", stepReal(10))
	assert.Equal(t, "-2.5", stepReal(-2.5))
	assert.Equal(t, "1.E-05", stepReal(0.00001))
}

func TestEncodeSTEPPrimitives(t *testing.T) {
	t.Parallel()

	sh := Boolean{Op: OpUnion,
		A: Sphere{Center: Vec3{1, 2, 3}, Radius: 4},
		B: Torus{Center: Vec3{}, Axis: Vec3{0, 0, 1}, Major: 10, Minor: 1},
	}
	text := string(encodeSTEP(sh, "x.step", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Contains(t, text, "'2026-01-02T03:04:05'")
	assert.Contains(t, text, "SPHERE('',4.,#")
	assert.Contains(t, text, "TORUS('',#")
	assert.Contains(t, text, ".UNION.")
}
