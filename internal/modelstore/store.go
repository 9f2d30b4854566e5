// Package modelstore owns the temp-model area: a flat directory of exported
// model files named model_<uuid>.<ext>. Existence on disk is the only
// record; there is no index file.
package modelstore

import (
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/genx3d/genx3d/internal/cad"
	"github.com/genx3d/genx3d/internal/model"
)

const filePrefix = "model_"

// ErrNotFound is returned when a model id has no file.
var ErrNotFound = eris.New("modelstore: model not found")

// Store hands out unique export targets and manages the files behind them.
// It is safe for concurrent use: every file name embeds a fresh UUID.
type Store struct {
	dir       string
	urlPrefix string
	now       func() time.Time
}

// New creates the directory if needed. urlPrefix is the public path the
// directory is served under, e.g. /static/generated_models.
func New(dir, urlPrefix string) (*Store, error) {
	if dir == "" {
		return nil, eris.New("modelstore: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "modelstore: create %s", dir)
	}
	return &Store{dir: dir, urlPrefix: strings.TrimSuffix(urlPrefix, "/"), now: time.Now}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

// Allocate reserves a new model id and its target path. Nothing is written.
func (s *Store) Allocate(format string) (model.GeneratedModel, error) {
	f, err := cad.NormalizeFormat(format)
	if err != nil {
		return model.GeneratedModel{}, err
	}
	id := uuid.NewString()
	name := filePrefix + id + "." + cad.Extension(f)
	return model.GeneratedModel{
		ID:        id,
		Path:      filepath.Join(s.dir, name),
		URL:       s.url(name),
		Format:    f,
		CreatedAt: s.now().UTC(),
	}, nil
}

func (s *Store) url(name string) string {
	return path.Join("/", s.urlPrefix, name)
}

// Confirm checks that an execution's file exists and is non-empty, and
// returns the model as it should be referenced in responses.
func (s *Store) Confirm(exec model.Execution) (model.GeneratedModel, error) {
	info, err := os.Stat(exec.Path)
	if err != nil {
		return model.GeneratedModel{}, eris.Wrapf(err, "modelstore: stat %s", filepath.Base(exec.Path))
	}
	if info.Size() == 0 {
		return model.GeneratedModel{}, eris.Errorf("modelstore: %s is empty", filepath.Base(exec.Path))
	}
	m, ok := s.describe(info)
	if !ok || m.ID != exec.ModelID {
		return model.GeneratedModel{}, eris.Errorf("modelstore: %s is not a model file for %s", info.Name(), exec.ModelID)
	}
	return m, nil
}

// describe parses a directory entry into a model, reporting false for files
// that are not model files.
func (s *Store) describe(info os.FileInfo) (model.GeneratedModel, bool) {
	name := info.Name()
	if info.IsDir() || !strings.HasPrefix(name, filePrefix) {
		return model.GeneratedModel{}, false
	}
	ext := filepath.Ext(name)
	var format string
	switch ext {
	case ".step":
		format = cad.FormatSTEP
	case ".stl":
		format = cad.FormatSTL
	default:
		return model.GeneratedModel{}, false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ext)
	if uuid.Validate(id) != nil {
		return model.GeneratedModel{}, false
	}
	return model.GeneratedModel{
		ID:        id,
		Path:      filepath.Join(s.dir, name),
		URL:       s.url(name),
		Format:    format,
		Size:      info.Size(),
		CreatedAt: info.ModTime().UTC(),
	}, true
}

// List returns every model file, newest first. Temp files left by
// interrupted exports and foreign files are skipped.
func (s *Store) List() ([]model.GeneratedModel, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, eris.Wrap(err, "modelstore: read dir")
	}
	var out []model.GeneratedModel
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue // removed concurrently
		}
		if m, ok := s.describe(info); ok {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b model.GeneratedModel) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Get returns the model with the given id.
func (s *Store) Get(id string) (model.GeneratedModel, error) {
	if uuid.Validate(id) != nil {
		return model.GeneratedModel{}, eris.Wrapf(ErrNotFound, "invalid id %q", id)
	}
	for _, ext := range []string{"step", "stl"} {
		info, err := os.Stat(filepath.Join(s.dir, filePrefix+id+"."+ext))
		if err != nil {
			continue
		}
		if m, ok := s.describe(info); ok {
			return m, nil
		}
	}
	return model.GeneratedModel{}, eris.Wrapf(ErrNotFound, "id %s", id)
}

// SweepStats summarizes one cleanup pass.
type SweepStats struct {
	Scanned int   `json:"scanned"`
	Deleted int   `json:"deleted"`
	Freed   int64 `json:"freed_bytes"`
	Errors  int   `json:"errors"`
}

// Sweep deletes model files older than maxAge. A non-positive maxAge deletes
// every model file.
func (s *Store) Sweep(maxAge time.Duration) (SweepStats, error) {
	var stats SweepStats
	models, err := s.List()
	if err != nil {
		return stats, err
	}
	cutoff := s.now().Add(-maxAge)
	for _, m := range models {
		stats.Scanned++
		if maxAge > 0 && m.CreatedAt.After(cutoff) {
			continue
		}
		if err := os.Remove(m.Path); err != nil {
			if !os.IsNotExist(err) {
				stats.Errors++
			}
			continue
		}
		stats.Deleted++
		stats.Freed += m.Size
	}
	return stats, nil
}
