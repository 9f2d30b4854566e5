package embedding

import (
	"context"
	"encoding/binary"
	"math"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/rotisserie/eris"
)

// Cached memoizes another embedder in a ristretto cache. Keys combine the
// backend name with a hash of the text, so swapping models never serves a
// stale vector.
type Cached struct {
	next  Embedder
	cache *ristretto.Cache[string, []byte]
	ttl   time.Duration
}

// NewCached wraps next with a cache bounded to maxBytes of vector data.
func NewCached(next Embedder, maxBytes int64, ttl time.Duration) (*Cached, error) {
	if maxBytes <= 0 {
		return nil, eris.New("embedding: cache size must be positive")
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(maxBytes/int64(4*next.Dimensions())*10, 100),
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, eris.Wrap(err, "embedding: create cache")
	}
	return &Cached{next: next, cache: c, ttl: ttl}, nil
}

func (c *Cached) key(text string) string {
	return c.next.Name() + ":" + strconv.FormatUint(xxhash.Sum64String(text), 16)
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if b, ok := c.cache.Get(k); ok {
		return unpack(b), nil
	}
	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	b := pack(v)
	c.cache.SetWithTTL(k, b, int64(len(b)), c.ttl)
	c.cache.Wait()
	return v, nil
}

func (c *Cached) Dimensions() int { return c.next.Dimensions() }
func (c *Cached) Name() string    { return c.next.Name() }

// Close shuts down the cache and releases resources.
func (c *Cached) Close() {
	c.cache.Close()
}

func pack(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func unpack(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
