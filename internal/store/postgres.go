package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/genx3d/genx3d/internal/db"
	"github.com/genx3d/genx3d/internal/model"
)

// PgVectorIndex is a remote example index in Postgres with the pgvector
// extension. Similarity is cosine: 1 - (a <=> b).
type PgVectorIndex struct {
	pool    db.Pool
	table   string
	dims    int
	closeFn func()
}

// NewPgVector creates a PgVectorIndex with a connection pool. dims fixes the
// vector column width used by Migrate.
func NewPgVector(ctx context.Context, connString, table string, dims int, poolCfg *PoolConfig) (*PgVectorIndex, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "pgvector: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "pgvector: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "pgvector: ping")
	}
	return newPgVector(pool, table, dims), nil
}

func newPgVector(pool db.Pool, table string, dims int) *PgVectorIndex {
	if table == "" {
		table = "examples"
	}
	return &PgVectorIndex{pool: pool, table: table, dims: dims, closeFn: pool.Close}
}

func (s *PgVectorIndex) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

func (s *PgVectorIndex) Migrate(ctx context.Context) error {
	if s.dims <= 0 {
		return eris.Errorf("pgvector: migrate needs a positive dimension, got %d", s.dims)
	}
	stmt := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %s (
	id         TEXT PRIMARY KEY,
	prompt     TEXT NOT NULL,
	code       TEXT NOT NULL,
	embedding  vector(%d) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`, s.ident(), s.dims)
	_, err := s.pool.Exec(ctx, stmt)
	return eris.Wrap(err, "pgvector: migrate")
}

func (s *PgVectorIndex) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "pgvector: ping")
}

func (s *PgVectorIndex) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Query returns the k most similar examples, most similar first.
func (s *PgVectorIndex) Query(ctx context.Context, vec []float32, k int) ([]model.RemoteMatch, error) {
	if k <= 0 || len(vec) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, prompt, code, 1 - (embedding <=> $1::vector) AS score FROM %s ORDER BY embedding <=> $1::vector LIMIT $2`,
		s.ident()), vectorLiteral(vec), k)
	if err != nil {
		return nil, eris.Wrap(err, "pgvector: query")
	}
	defer rows.Close()

	var out []model.RemoteMatch
	for rows.Next() {
		var m model.RemoteMatch
		if err := rows.Scan(&m.ID, &m.Prompt, &m.Code, &m.Score); err != nil {
			return nil, eris.Wrap(err, "pgvector: scan match")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "pgvector: iterate matches")
}

// Upsert writes examples keyed by id.
func (s *PgVectorIndex) Upsert(ctx context.Context, examples []model.Example) (int64, error) {
	rows := make([][]any, 0, len(examples))
	for _, ex := range examples {
		if len(ex.Embedding) == 0 {
			return 0, eris.Errorf("pgvector: example %q has no embedding", ex.ID)
		}
		rows = append(rows, []any{ex.ID, ex.Prompt, ex.Code, vectorLiteral(ex.Embedding)})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        s.table,
		Columns:      []string{"id", "prompt", "code", "embedding"},
		ConflictKeys: []string{"id"},
		Casts:        map[string]string{"embedding": "vector"},
	}, rows)
	return n, eris.Wrap(err, "pgvector: upsert")
}

// vectorLiteral renders v in pgvector's text form, e.g. "[1,0.5,-2]".
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
