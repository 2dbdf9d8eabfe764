package pipeline

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/dgallion1/versegest/internal/faults"
)

// Kind selects the fetch and parse strategy for a source.
type Kind string

const (
	KindFile       Kind = "file"
	KindURL        Kind = "url"
	KindTranscript Kind = "transcript"
	KindMarkup     Kind = "markup"
)

// Source describes one thing to ingest.
type Source struct {
	Kind        Kind
	Path        string // file, transcript and markup sources
	URL         string // url sources
	Title       string
	Collection  string
	Author      string
	Hints       []string // references the caller expects the content to cite
	AudioPath   string   // transcript sources: recording copied into the artifact
	Frontmatter map[string]any
}

// Location is the path or URL, for messages.
func (s Source) Location() string {
	if s.Kind == KindURL {
		return s.URL
	}
	return s.Path
}

func (s Source) validate() error {
	switch s.Kind {
	case KindFile, KindTranscript, KindMarkup:
		if s.Path == "" {
			return faults.Unsupported(string(s.Kind), "missing path", nil)
		}
	case KindURL:
		if s.URL == "" {
			return faults.Unsupported(string(s.Kind), "missing url", nil)
		}
	default:
		return faults.Unsupported(s.Location(), fmt.Sprintf("unknown source kind %q", s.Kind), nil)
	}
	return nil
}

// sidecar is the optional <file>.meta.yaml next to a local source.
type sidecar struct {
	Title      string         `yaml:"title"`
	Collection string         `yaml:"collection"`
	Author     string         `yaml:"author"`
	Refs       []string       `yaml:"refs"`
	Audio      string         `yaml:"audio"`
	Extra      map[string]any `yaml:",inline"`
}

// withSidecar merges path+".meta.yaml" into s. Values already set on s win.
func (s Source) withSidecar(path string) (Source, error) {
	data, err := os.ReadFile(path + ".meta.yaml")
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("reading sidecar: %w", err)
	}
	var sc sidecar
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return s, faults.Unsupported(path+".meta.yaml", "malformed sidecar", err)
	}
	s.Title = firstNonEmpty(s.Title, sc.Title)
	s.Collection = firstNonEmpty(s.Collection, sc.Collection)
	s.Author = firstNonEmpty(s.Author, sc.Author)
	s.AudioPath = firstNonEmpty(s.AudioPath, sc.Audio)
	s.Hints = append(append([]string(nil), s.Hints...), sc.Refs...)
	if len(sc.Extra) > 0 {
		merged := make(map[string]any, len(sc.Extra)+len(s.Frontmatter))
		for k, v := range sc.Extra {
			merged[k] = v
		}
		for k, v := range s.Frontmatter {
			merged[k] = v
		}
		s.Frontmatter = merged
	}
	return s, nil
}

// frontmatterRefs reads a "refs" or "references" key holding a string or a
// list of strings.
func frontmatterRefs(fm map[string]any) []string {
	var out []string
	for _, key := range []string{"refs", "references"} {
		switch v := fm[key].(type) {
		case string:
			out = append(out, v)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
		case []string:
			out = append(out, v...)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}

// newID returns a time-ordered identifier.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
