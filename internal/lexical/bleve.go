package lexical

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/zeebo/blake3"

	"github.com/dgallion1/versegest/internal/store"
)

// Bleve keeps an in-memory bleve index over the passages matching each
// filter. The index is rebuilt only when the passage set's fingerprint
// changes.
type Bleve struct {
	src PassageSource

	mu          sync.Mutex
	index       bleve.Index
	fingerprint string
}

func NewBleve(src PassageSource) *Bleve { return &Bleve{src: src} }

func (p *Bleve) Name() string { return "bleve" }

type bleveDoc struct {
	Text string `json:"text"`
}

func (p *Bleve) Search(ctx context.Context, query string, f store.Filter, limit int) ([]Hit, error) {
	if len(Tokens(query)) == 0 {
		return nil, nil
	}
	passages, err := p.src.Passages(ctx, f, 0)
	if err != nil {
		return nil, fmt.Errorf("bleve: load passages: %w", err)
	}
	if len(passages) == 0 {
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureIndex(passages); err != nil {
		return nil, err
	}

	q := bleve.NewMatchQuery(query)
	q.SetField("text")
	if limit <= 0 {
		limit = len(passages)
	}
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := p.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}
	out := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		out = append(out, Hit{PassageID: h.ID, Score: normalizeRank(h.Score)})
	}
	return out, nil
}

func (p *Bleve) ensureIndex(passages []store.Passage) error {
	fp := fingerprint(passages)
	if p.index != nil && fp == p.fingerprint {
		return nil
	}
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("bleve: create index: %w", err)
	}
	batch := idx.NewBatch()
	for _, ps := range passages {
		if err := batch.Index(ps.ID, bleveDoc{Text: ps.Sanitized}); err != nil {
			idx.Close()
			return fmt.Errorf("bleve: index %s: %w", ps.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		idx.Close()
		return fmt.Errorf("bleve: batch: %w", err)
	}
	if p.index != nil {
		p.index.Close()
	}
	p.index, p.fingerprint = idx, fp
	return nil
}

// Close releases the cached index.
func (p *Bleve) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index == nil {
		return nil
	}
	err := p.index.Close()
	p.index, p.fingerprint = nil, ""
	return err
}

func fingerprint(passages []store.Passage) string {
	h := blake3.New()
	for _, ps := range passages {
		h.Write([]byte(ps.ID))
		h.Write([]byte{0})
		h.Write([]byte(ps.Sanitized))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
