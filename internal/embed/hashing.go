package embed

import (
	"context"
	"encoding/binary"
	"strings"
	"unicode"

	"github.com/zeebo/blake3"
)

// HashingBackend is a deterministic, offline embedder: every lowercased
// word is hashed into one signed bucket and the result is L2-normalized.
// Texts sharing vocabulary get positive cosine similarity.
type HashingBackend struct {
	dims int
}

func NewHashingBackend(dims int) *HashingBackend {
	if dims <= 0 {
		dims = 256
	}
	return &HashingBackend{dims: dims}
}

func (h *HashingBackend) Name() string    { return "hashing" }
func (h *HashingBackend) Dimensions() int { return h.dims }

func (h *HashingBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashingBackend) vector(text string) []float32 {
	v := make([]float32, h.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		sum := blake3.Sum256([]byte(w))
		idx := binary.LittleEndian.Uint32(sum[:4]) % uint32(h.dims)
		if sum[4]&1 == 1 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	normalize(v)
	return v
}
