package embedding

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/cases"
)

const defaultHashDims = 256

// stopwords carry no shape information in CAD requests.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "with": true, "and": true,
	"create": true, "make": true, "generate": true, "build": true, "me": true,
	"please": true, "model": true, "3d": true, "cad": true, "in": true, "to": true,
}

// Hash is an offline embedder using signed feature hashing over case-folded
// words and word bigrams. Identical texts map to identical unit vectors.
type Hash struct {
	dims int
}

// NewHash creates a hashing embedder with dims buckets (256 when dims <= 0).
func NewHash(dims int) *Hash {
	if dims <= 0 {
		dims = defaultHashDims
	}
	return &Hash{dims: dims}
}

func (h *Hash) Dimensions() int { return h.dims }
func (h *Hash) Name() string    { return "hash:" + strconv.Itoa(h.dims) }

// Embed never fails; ctx is unused.
func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, h.dims)
	tokens := h.tokens(text)
	for i, tok := range tokens {
		h.add(v, tok, 1)
		if i > 0 {
			h.add(v, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return normalize(v), nil
}

func (h *Hash) tokens(text string) []string {
	// Casers are stateful, so each call gets its own.
	words := strings.FieldsFunc(cases.Fold().String(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := words[:0]
	for _, w := range words {
		if !stopwords[w] {
			out = append(out, w)
		}
	}
	return out
}

func (h *Hash) add(v []float32, feature string, weight float32) {
	sum := xxhash.Sum64String(feature)
	idx := sum % uint64(h.dims)
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}
