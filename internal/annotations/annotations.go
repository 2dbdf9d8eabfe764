// Package annotations reads externally maintained notes attached to stored
// passages. Retrieval attaches them to results by passage id.
package annotations

import (
	"context"
	"sort"
)

// Annotation is one note on a passage.
type Annotation struct {
	Key    string `json:"key"`
	Kind   string `json:"kind,omitempty"`
	Body   string `json:"body"`
	Source string `json:"source,omitempty"`
}

// Source looks up annotations for a set of passages. Passages without
// annotations are absent from the result.
type Source interface {
	For(ctx context.Context, passageIDs []string) (map[string][]Annotation, error)
}

// Static serves annotations from memory.
type Static map[string][]Annotation

func (s Static) For(_ context.Context, passageIDs []string) (map[string][]Annotation, error) {
	out := make(map[string][]Annotation)
	for _, id := range passageIDs {
		if notes := s[id]; len(notes) > 0 {
			sorted := append([]Annotation(nil), notes...)
			sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
			out[id] = sorted
		}
	}
	return out, nil
}
