// Package store holds the example indexes: a local SQLite index searched by
// L2 distance and a remote Postgres index using pgvector.
package store

import (
	"encoding/binary"
	"math"

	"github.com/rotisserie/eris"
)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, eris.Errorf("store: vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

// l2 returns the Euclidean distance between two packed vectors of equal
// length.
func l2(a, b []byte) (float64, error) {
	if len(a) != len(b) || len(a)%4 != 0 {
		return 0, eris.Errorf("store: vector length mismatch (%d vs %d bytes)", len(a), len(b))
	}
	var sum float64
	for i := 0; i < len(a); i += 4 {
		d := float64(math.Float32frombits(binary.LittleEndian.Uint32(a[i:]))) -
			float64(math.Float32frombits(binary.LittleEndian.Uint32(b[i:])))
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
