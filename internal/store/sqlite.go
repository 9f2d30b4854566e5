package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"modernc.org/sqlite"

	"github.com/genx3d/genx3d/internal/model"
)

func init() {
	sqlite.MustRegisterDeterministicScalarFunction("l2_distance", 2, l2DistanceFunc)
}

func l2DistanceFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, ok1 := args[0].([]byte)
	b, ok2 := args[1].([]byte)
	if !ok1 || !ok2 {
		return nil, eris.New("l2_distance: arguments must be blobs")
	}
	return l2(a, b)
}

// SQLiteIndex is the local example index. It is written by the index
// command and read-only while serving.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteIndex{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS examples (
	id         TEXT PRIMARY KEY,
	prompt     TEXT NOT NULL,
	code       TEXT NOT NULL,
	tags       TEXT NOT NULL DEFAULT '[]',
	dims       INTEGER NOT NULL,
	embedding  BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_examples_dims ON examples(dims);
`

func (s *SQLiteIndex) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

const upsertExampleSQL = `INSERT INTO examples (id, prompt, code, tags, dims, embedding, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET prompt = excluded.prompt, code = excluded.code,
	tags = excluded.tags, dims = excluded.dims, embedding = excluded.embedding`

// Insert adds or replaces examples in one transaction. Every example must
// carry an embedding.
func (s *SQLiteIndex) Insert(ctx context.Context, examples ...model.Example) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, upsertExampleSQL)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, ex := range examples {
		if len(ex.Embedding) == 0 {
			return eris.Errorf("sqlite: example %q has no embedding", ex.ID)
		}
		tags, err := json.Marshal(ex.Tags)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal tags")
		}
		if _, err := stmt.ExecContext(ctx, ex.ID, ex.Prompt, ex.Code, string(tags),
			len(ex.Embedding), encodeVector(ex.Embedding), now); err != nil {
			return eris.Wrapf(err, "sqlite: insert example %s", ex.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert")
}

// Count returns the number of indexed examples.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM examples`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count examples")
}

// Search returns the k nearest examples to vec by L2 distance, closest
// first. Examples embedded with a different dimension are ignored. Ties are
// broken by insertion order.
func (s *SQLiteIndex) Search(ctx context.Context, vec []float32, k int) ([]model.Candidate, error) {
	if k <= 0 || len(vec) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, prompt, code, tags, embedding, l2_distance(embedding, ?) AS distance
		FROM examples WHERE dims = ? ORDER BY distance ASC, rowid ASC LIMIT ?`,
		encodeVector(vec), len(vec), k,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search examples")
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		var (
			c    model.Candidate
			tags string
			blob []byte
		)
		if err := rows.Scan(&c.Example.ID, &c.Example.Prompt, &c.Example.Code, &tags, &blob, &c.Distance); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan example")
		}
		if err := json.Unmarshal([]byte(tags), &c.Example.Tags); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal tags")
		}
		if c.Example.Embedding, err = decodeVector(blob); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate examples")
}

// LookupCandidates is Search without failure: an unavailable index or an
// empty corpus yields no candidates so callers can fall back.
func (s *SQLiteIndex) LookupCandidates(ctx context.Context, vec []float32, k int) []model.Candidate {
	if s == nil || s.db == nil {
		return nil
	}
	out, err := s.Search(ctx, vec, k)
	if err != nil {
		zap.L().Warn("sqlite: lookup failed, returning no candidates", zap.Error(err))
		return nil
	}
	return out
}
