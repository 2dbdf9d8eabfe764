// Package artifact snapshots each ingested document on disk: the original
// bytes, the extracted text and a YAML manifest describing the chunks.
package artifact

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ulikunitz/xz"
	"go.yaml.in/yaml/v3"
)

const (
	manifestFile = "manifest.yaml"
	textFile     = "text.txt"
	xzSuffix     = ".xz"
)

// Options tune the snapshot layout.
type Options struct {
	CompressAbove int // source files larger than this many bytes are xz-compressed; default 64 KiB
	InlineLimit   int // chunk texts up to this many bytes are copied into the manifest; default 2 KiB
}

// Writer creates per-document directories under a root.
type Writer struct {
	root string
	opts Options
}

func New(root string, opts Options) *Writer {
	if opts.CompressAbove <= 0 {
		opts.CompressAbove = 64 << 10
	}
	if opts.InlineLimit <= 0 {
		opts.InlineLimit = 2 << 10
	}
	return &Writer{root: root, opts: opts}
}

// Root returns the directory holding every document snapshot.
func (w *Writer) Root() string { return w.root }

// Manifest describes one snapshot.
type Manifest struct {
	DocumentID    string         `yaml:"document_id"`
	Title         string         `yaml:"title,omitempty"`
	SourceType    string         `yaml:"source_type"`
	SourceURI     string         `yaml:"source_uri,omitempty"`
	ContentHash   string         `yaml:"content_hash"`
	Parser        string         `yaml:"parser"`
	ParserVersion string         `yaml:"parser_version"`
	CreatedAt     time.Time      `yaml:"created_at"`
	Frontmatter   map[string]any `yaml:"frontmatter,omitempty"`
	Source        SourceFile     `yaml:"source"`
	Audio         string         `yaml:"audio,omitempty"`
	Chunks        []ChunkEntry   `yaml:"chunks"`
}

// SourceFile records how the original bytes were stored.
type SourceFile struct {
	Name        string `yaml:"name"`
	Size        int    `yaml:"size"`
	Compression string `yaml:"compression"` // "none" or "xz"
}

// ChunkEntry summarizes one chunk. Short chunks carry their text inline;
// longer ones point into text.txt by byte offsets.
type ChunkEntry struct {
	Index       int      `yaml:"index"`
	PassageID   string   `yaml:"passage_id"`
	StartChar   int      `yaml:"start_char"`
	EndChar     int      `yaml:"end_char"`
	Tokens      int      `yaml:"tokens"`
	References  []string `yaml:"references,omitempty"`
	Fingerprint string   `yaml:"fingerprint"`
	Text        string   `yaml:"text,omitempty"`
	TextRef     string   `yaml:"text_ref,omitempty"`
}

// Snapshot is what a caller hands to Write.
type Snapshot struct {
	Raw        []byte
	SourceName string
	Text       string
	AudioPath  string // optional file copied next to the source
	Manifest   Manifest
}

// Write creates <root>/<document id>/ with the source, text and manifest.
// On any error the directory is removed before returning.
func (w *Writer) Write(s Snapshot) (dir string, err error) {
	if s.Manifest.DocumentID == "" {
		return "", fmt.Errorf("artifact: missing document id")
	}
	target := filepath.Join(w.root, s.Manifest.DocumentID)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}
	// Error returns zero dir before this runs, so remove target.
	defer func() {
		if err != nil {
			os.RemoveAll(target)
		}
	}()
	dir = target

	m := s.Manifest
	name := filepath.Base(s.SourceName)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "source"
	}
	m.Source = SourceFile{Name: name, Size: len(s.Raw), Compression: "none"}
	if len(s.Raw) > w.opts.CompressAbove {
		m.Source.Compression = "xz"
		if err := writeXZ(filepath.Join(dir, name+xzSuffix), s.Raw); err != nil {
			return "", err
		}
	} else if err := os.WriteFile(filepath.Join(dir, name), s.Raw, 0o644); err != nil {
		return "", fmt.Errorf("writing source: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, textFile), []byte(s.Text), 0o644); err != nil {
		return "", fmt.Errorf("writing text: %w", err)
	}

	if s.AudioPath != "" {
		audio := filepath.Base(s.AudioPath)
		if err := copyFile(s.AudioPath, filepath.Join(dir, audio)); err != nil {
			return "", fmt.Errorf("copying audio: %w", err)
		}
		m.Audio = audio
	}

	for i := range m.Chunks {
		c := &m.Chunks[i]
		if c.EndChar-c.StartChar <= w.opts.InlineLimit && c.EndChar <= len(s.Text) {
			c.Text = s.Text[c.StartChar:c.EndChar]
			c.TextRef = ""
		} else {
			c.Text = ""
			c.TextRef = fmt.Sprintf("%s#%d-%d", textFile, c.StartChar, c.EndChar)
		}
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	return dir, nil
}

// Remove deletes a snapshot directory. Removing a missing directory is not
// an error.
func (w *Writer) Remove(dir string) error {
	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}

// ReadManifest loads the manifest in dir.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return m, fmt.Errorf("reading manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parsing manifest: %w", err)
	}
	return m, nil
}

// ReadSource returns the original bytes, decompressing when needed.
func ReadSource(dir string) ([]byte, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, m.Source.Name)
	if m.Source.Compression != "xz" {
		return os.ReadFile(path)
	}
	f, err := os.Open(path + xzSuffix)
	if err != nil {
		return nil, fmt.Errorf("opening source: %w", err)
	}
	defer f.Close()
	r, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("xz reader: %w", err)
	}
	return io.ReadAll(r)
}

func writeXZ(path string, data []byte) error {
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		return fmt.Errorf("xz writer: %w", err)
	}
	if _, err := xw.Write(data); err != nil {
		return fmt.Errorf("compressing source: %w", err)
	}
	if err := xw.Close(); err != nil {
		return fmt.Errorf("compressing source: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing source: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
