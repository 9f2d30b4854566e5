package modelstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/genx3d/genx3d/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "models"), "/static/generated_models/")
	require.NoError(t, err)
	return s
}

// write creates a model file for an allocated target, aged by age.
func write(t *testing.T, s *Store, format string, age time.Duration) model.GeneratedModel {
	t.Helper()
	m, err := s.Allocate(format)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.Path, []byte("ISO-10303-21;"), 0o644))
	mt := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(m.Path, mt, mt))
	return m
}

func TestNew_RequiresDir(t *testing.T) {
	_, err := New("", "/x")
	require.Error(t, err)
}

func TestAllocate(t *testing.T) {
	s := newTestStore(t)

	a, err := s.Allocate("step")
	require.NoError(t, err)
	b, err := s.Allocate("STL")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	require.NoError(t, uuid.Validate(a.ID))
	assert.Equal(t, filepath.Join(s.Dir(), "model_"+a.ID+".step"), a.Path)
	assert.Equal(t, "/static/generated_models/model_"+a.ID+".step", a.URL)
	assert.Equal(t, "STEP", a.Format)
	assert.True(t, strings.HasSuffix(b.Path, ".stl"))

	_, err = os.Stat(a.Path)
	assert.True(t, os.IsNotExist(err), "allocation writes nothing")

	_, err = s.Allocate("obj")
	require.Error(t, err)
}

func TestConfirm(t *testing.T) {
	s := newTestStore(t)
	m := write(t, s, "STEP", 0)

	got, err := s.Confirm(model.Execution{ModelID: m.ID, Path: m.Path})
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, m.URL, got.URL)
	assert.Positive(t, got.Size)

	empty, err := s.Allocate("STEP")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(empty.Path, nil, 0o644))
	_, err = s.Confirm(model.Execution{ModelID: empty.ID, Path: empty.Path})
	require.ErrorContains(t, err, "is empty")

	missing, err := s.Allocate("STEP")
	require.NoError(t, err)
	_, err = s.Confirm(model.Execution{ModelID: missing.ID, Path: missing.Path})
	require.Error(t, err)

	_, err = s.Confirm(model.Execution{ModelID: uuid.NewString(), Path: m.Path})
	require.ErrorContains(t, err, "not a model file")
}

func TestListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	old := write(t, s, "STEP", 2*time.Hour)
	mid := write(t, s, "STL", time.Hour)
	fresh := write(t, s, "STEP", 0)

	// Foreign and temp files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), ".model_tmp123"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "model_not-a-uuid.step"), []byte("x"), 0o644))

	got, err := s.List()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{fresh.ID, mid.ID, old.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "STL", got[1].Format)
}

func TestGet(t *testing.T) {
	s := newTestStore(t)
	m := write(t, s, "STL", 0)

	got, err := s.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Path, got.Path)

	_, err = s.Get(uuid.NewString())
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get("../etc/passwd")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSweep(t *testing.T) {
	s := newTestStore(t)
	stale := write(t, s, "STEP", 48*time.Hour)
	fresh := write(t, s, "STEP", time.Minute)

	stats, err := s.Sweep(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, int64(len("ISO-10303-21;")), stats.Freed)
	assert.Zero(t, stats.Errors)

	_, err = os.Stat(stale.Path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh.Path)
	assert.NoError(t, err)

	// Zero max age clears everything.
	stats, err = s.Sweep(0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted)
}
