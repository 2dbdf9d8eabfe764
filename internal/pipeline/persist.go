package pipeline

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/dgallion1/versegest/internal/artifact"
	"github.com/dgallion1/versegest/internal/lexical"
	"github.com/dgallion1/versegest/internal/sanitize"
	"github.com/dgallion1/versegest/internal/scripture"
	"github.com/dgallion1/versegest/internal/store"
)

// Embedder is the slice of the embedding service persist needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// persist is the last transition: *Parsed -> *Persisted. Rows and the
// artifact directory are written together; a failure leaves neither.
func (o *Orchestrator) persist(ctx context.Context, p *Parsed) (*Persisted, error) {
	docID := newID()
	passages := o.buildPassages(docID, p)

	if o.deps.Embedder != nil && len(passages) > 0 {
		texts := make([]string, len(passages))
		for i := range passages {
			texts[i] = passages[i].Sanitized
		}
		vecs, err := o.deps.Embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding %d chunks: %w", len(texts), err)
		}
		if len(vecs) != len(passages) {
			return nil, fmt.Errorf("embedding returned %d vectors for %d chunks", len(vecs), len(passages))
		}
		for i := range passages {
			passages[i].Embedding = vecs[i]
		}
	}

	quotes := o.buildQuotes(passages)
	commentary := o.buildCommentary(docID, p)

	doc := store.Document{
		ID:            docID,
		Title:         p.Title,
		SourceType:    string(p.Source.Kind),
		SourceURI:     p.Source.Location(),
		Collection:    p.Source.Collection,
		Author:        p.Source.Author,
		ContentHash:   p.ContentHash,
		Parser:        p.Parser,
		ParserVersion: p.ParserVersion,
		Meta:          p.Frontmatter,
		CreatedAt:     time.Now().UTC(),
	}
	if o.deps.Artifacts != nil {
		doc.ArtifactDir = filepath.Join(o.deps.Artifacts.Root(), docID)
	}

	var dir string
	err := o.deps.Store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.InsertDocument(ctx, doc); err != nil {
			return err
		}
		for _, ps := range passages {
			if err := tx.InsertPassage(ctx, ps); err != nil {
				return err
			}
		}
		for _, q := range quotes {
			if err := tx.InsertQuote(ctx, q); err != nil {
				return err
			}
		}
		for _, c := range commentary {
			if err := tx.InsertCommentary(ctx, c); err != nil {
				return err
			}
		}
		if o.deps.Artifacts == nil {
			return nil
		}
		var err error
		dir, err = o.deps.Artifacts.Write(o.snapshot(doc, p, passages))
		return err
	})
	if err != nil {
		if o.deps.Artifacts != nil {
			o.deps.Artifacts.Remove(doc.ArtifactDir)
		}
		return nil, err
	}

	ids := make([]string, len(passages))
	for i := range passages {
		ids[i] = passages[i].ID
	}
	return &Persisted{
		DocumentID:  docID,
		ContentHash: p.ContentHash,
		ArtifactDir: dir,
		PassageIDs:  ids,
		Quotes:      len(quotes),
		Commentary:  len(commentary),
	}, nil
}

// buildPassages annotates each chunk with its references and verse index.
func (o *Orchestrator) buildPassages(docID string, p *Parsed) []store.Passage {
	hints := append(append([]string(nil), p.Source.Hints...), frontmatterRefs(p.Frontmatter)...)
	out := make([]store.Passage, 0, len(p.Chunks))
	for _, c := range p.Chunks {
		detected := o.chunkRefs(c.Text, sectionRefs(p.Sections, c))
		primary, ok := o.deps.Resolver.Combine(detected)
		if !ok && len(detected) > 0 {
			primary = detected[0]
		}
		hinted, unmatched := o.deps.Resolver.ClassifyMatches(detected, hints)
		set, rng := o.deps.Indexer.IndexReferences(detected)

		ps := store.Passage{
			ID:         newID(),
			DocumentID: docID,
			Index:      c.Index,
			Text:       c.Text,
			Sanitized:  sanitize.Text(c.Text),
			StartChar:  c.StartChar,
			EndChar:    c.EndChar,
			VerseIDs:   set,
			Range:      rng,
			Lexeme:     lexical.Lexeme(c.Text),
			Meta: store.PassageMeta{
				Primary:       string(primary),
				Detected:      tokenStrings(detected),
				Hinted:        hinted,
				Unmatched:     unmatched,
				Speakers:      c.Speakers,
				Breadcrumb:    breadcrumb(p.Sections, c),
				Parser:        p.Parser,
				ParserVersion: p.ParserVersion,
				Fingerprint:   fingerprint(c.Text),
			},
		}
		if c.TEnd > 0 {
			start, end := c.TStart, c.TEnd
			ps.TStart, ps.TEnd = &start, &end
		}
		for _, s := range p.Sections {
			if s.Page > 0 && s.Start < c.EndChar && s.End > c.StartChar {
				ps.Page = s.Page
				break
			}
		}
		out = append(out, ps)
	}
	return out
}

// chunkRefs merges references cited in the text with those the parser
// tagged on overlapping sections, in first-seen order.
func (o *Orchestrator) chunkRefs(text string, tagged []string) []scripture.Token {
	_, detected := o.deps.Resolver.Detect(text)
	seen := make(map[scripture.Token]bool, len(detected))
	for _, t := range detected {
		seen[t] = true
	}
	for _, raw := range tagged {
		var tokens []scripture.Token
		if t, ok := o.deps.Resolver.Canonicalize(raw); ok {
			tokens = []scripture.Token{t}
		} else {
			_, tokens = o.deps.Resolver.Detect(raw)
		}
		for _, t := range tokens {
			if !seen[t] {
				seen[t] = true
				detected = append(detected, t)
			}
		}
	}
	return detected
}

func (o *Orchestrator) buildQuotes(passages []store.Passage) []store.Quote {
	var out []store.Quote
	for _, ps := range passages {
		for _, q := range sanitize.Quotes(ps.Text, o.deps.Resolver) {
			_, rng := o.deps.Indexer.IndexReferences([]scripture.Token{q.Ref})
			out = append(out, store.Quote{PassageID: ps.ID, Text: q.Text, Ref: q.Ref, Range: rng})
		}
	}
	return out
}

func (o *Orchestrator) buildCommentary(docID string, p *Parsed) []store.CommentarySeed {
	if p.Markup == nil {
		return nil
	}
	var out []store.CommentarySeed
	for _, c := range p.Markup.Commentary {
		tok, ok := o.deps.Resolver.Canonicalize(c.Ref)
		if !ok {
			continue
		}
		_, rng := o.deps.Indexer.IndexReferences([]scripture.Token{tok})
		if rng == nil {
			continue
		}
		out = append(out, store.CommentarySeed{
			Ref:         tok,
			Excerpt:     sanitize.Text(c.Excerpt),
			Perspective: p.Source.Collection,
			Source:      c.Source,
			DocumentID:  docID,
			Range:       rng,
		})
	}
	return out
}

func (o *Orchestrator) snapshot(doc store.Document, p *Parsed, passages []store.Passage) artifact.Snapshot {
	entries := make([]artifact.ChunkEntry, len(passages))
	for i, ps := range passages {
		var refs []string
		if ps.Range != nil {
			refs = ps.Meta.Detected
		}
		entries[i] = artifact.ChunkEntry{
			Index:       ps.Index,
			PassageID:   ps.ID,
			StartChar:   ps.StartChar,
			EndChar:     ps.EndChar,
			Tokens:      p.Chunks[i].Tokens,
			References:  refs,
			Fingerprint: ps.Meta.Fingerprint,
		}
	}
	return artifact.Snapshot{
		Raw:        p.Raw,
		SourceName: p.SourceName,
		Text:       p.Body,
		AudioPath:  p.Source.AudioPath,
		Manifest: artifact.Manifest{
			DocumentID:    doc.ID,
			Title:         doc.Title,
			SourceType:    doc.SourceType,
			SourceURI:     doc.SourceURI,
			ContentHash:   doc.ContentHash,
			Parser:        doc.Parser,
			ParserVersion: doc.ParserVersion,
			CreatedAt:     doc.CreatedAt,
			Frontmatter:   p.Frontmatter,
			Chunks:        entries,
		},
	}
}

func tokenStrings(tokens []scripture.Token) []string {
	if len(tokens) == 0 {
		return nil
	}
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = string(t)
	}
	return out
}

func fingerprint(text string) string {
	sum := blake3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}
