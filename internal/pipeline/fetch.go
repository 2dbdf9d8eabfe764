package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dgallion1/versegest/internal/chunker"
	"github.com/dgallion1/versegest/internal/faults"
	"github.com/dgallion1/versegest/internal/parser"
)

// TranscriptProvider returns captions for a video page URL.
type TranscriptProvider interface {
	Transcript(ctx context.Context, videoURL string) ([]chunker.Segment, error)
}

// fetch is the first transition: Source -> *Fetched.
func (o *Orchestrator) fetch(ctx context.Context, src Source) (*Fetched, int, error) {
	if err := src.validate(); err != nil {
		return nil, 1, err
	}

	var (
		f        *Fetched
		attempts = 1
		err      error
	)
	switch src.Kind {
	case KindURL:
		f, attempts, err = o.fetchURL(ctx, src)
	default:
		f, err = o.fetchLocal(src)
	}
	if err != nil {
		return nil, attempts, err
	}

	if existing, ok, err := o.deps.Store.DocumentByHash(ctx, f.ContentHash); err != nil {
		return nil, attempts, fmt.Errorf("duplicate check: %w", err)
	} else if ok {
		return nil, attempts, &faults.DuplicateSourceError{ContentHash: f.ContentHash, ExistingID: existing.ID}
	}
	return f, attempts, nil
}

// fetchLocal reads file, transcript and markup sources from disk.
func (o *Orchestrator) fetchLocal(src Source) (*Fetched, error) {
	info, err := os.Stat(src.Path)
	if err != nil {
		return nil, faults.Unsupported(src.Path, "cannot read file", err)
	}
	if info.IsDir() {
		return nil, faults.Unsupported(src.Path, "is a directory", nil)
	}
	if info.Size() > o.opts.MaxFetchBytes {
		return nil, faults.Unsupported(src.Path, fmt.Sprintf("larger than %d bytes", o.opts.MaxFetchBytes), nil)
	}
	raw, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, faults.Unsupported(src.Path, "cannot read file", err)
	}
	if src, err = src.withSidecar(src.Path); err != nil {
		return nil, err
	}
	if src.AudioPath != "" && !filepath.IsAbs(src.AudioPath) {
		src.AudioPath = filepath.Join(filepath.Dir(src.Path), src.AudioPath)
	}

	f := &Fetched{
		Source:      src,
		Raw:         raw,
		SourceName:  filepath.Base(src.Path),
		ContentHash: ContentHashHex(raw),
	}
	switch src.Kind {
	case KindTranscript:
		if src.AudioPath != "" {
			if _, err := os.Stat(src.AudioPath); err != nil {
				return nil, faults.Unsupported(src.AudioPath, "audio artifact missing", err)
			}
		}
	case KindMarkup:
		m, err := (&parser.OSISParser{}).ParseMarkup(bytes.NewReader(raw), f.SourceName)
		if err != nil {
			return nil, err
		}
		f.Markup = m
	}
	return f, nil
}

// fetchURL validates the URL before any network access, then either pulls
// captions from a video host or downloads the page. Transient failures are
// retried.
func (o *Orchestrator) fetchURL(ctx context.Context, src Source) (*Fetched, int, error) {
	u, err := o.deps.Guard.Check(ctx, src.URL)
	if err != nil {
		return nil, 1, err
	}

	if o.isVideoHost(u.Hostname()) {
		if o.deps.Transcripts == nil {
			return nil, 1, faults.Unsupported(src.URL, "video host without a transcript provider", nil)
		}
		var segs []chunker.Segment
		attempts, err := retry(ctx, "transcript", o.opts.MaxFetchAttempts, o.opts.RetryUnit, o.log, func(ctx context.Context) error {
			var err error
			segs, err = o.deps.Transcripts.Transcript(ctx, u.String())
			return err
		})
		if err != nil {
			return nil, attempts, err
		}
		if len(segs) == 0 {
			return nil, attempts, faults.Unsupported(src.URL, "no transcript segments", nil)
		}
		raw := []byte(chunker.TranscriptBody(segs))
		return &Fetched{
			Source:      src,
			Raw:         raw,
			SourceName:  "transcript.txt",
			ContentType: "text/plain",
			ContentHash: ContentHashHex(raw),
			Segments:    segs,
		}, attempts, nil
	}

	client := o.deps.Guard.Client(o.opts.FetchTimeout)
	var (
		body        []byte
		contentType string
	)
	attempts, err := retry(ctx, "fetch", o.opts.MaxFetchAttempts, o.opts.RetryUnit, o.log, func(ctx context.Context) error {
		var err error
		body, contentType, err = o.get(ctx, client, u)
		return err
	})
	if err != nil {
		return nil, attempts, err
	}
	return &Fetched{
		Source:      src,
		Raw:         body,
		SourceName:  urlFileName(u, contentType),
		ContentType: contentType,
		ContentHash: ContentHashHex(body),
	}, attempts, nil
}

func (o *Orchestrator) get(ctx context.Context, client *http.Client, u *url.URL) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", faults.Unsupported(u.String(), "bad request", err)
	}
	req.Header.Set("User-Agent", "versegest/1")
	resp, err := client.Do(req)
	if err != nil {
		var unsupported *faults.UnsupportedSourceError
		if errors.As(err, &unsupported) {
			return nil, "", unsupported
		}
		return nil, "", fmt.Errorf("get %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", &faults.RetryableError{StatusCode: resp.StatusCode, Message: string(msg)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", faults.Unsupported(u.String(), fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, o.opts.MaxFetchBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", u.Redacted(), err)
	}
	if int64(len(body)) > o.opts.MaxFetchBytes {
		return nil, "", faults.Unsupported(u.String(), fmt.Sprintf("larger than %d bytes", o.opts.MaxFetchBytes), nil)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (o *Orchestrator) isVideoHost(host string) bool {
	host = strings.ToLower(host)
	for _, p := range o.opts.VideoHosts {
		p = strings.ToLower(p)
		if rest, ok := strings.CutPrefix(p, "*."); ok {
			if strings.HasSuffix(host, "."+rest) {
				return true
			}
			continue
		}
		if host == p {
			return true
		}
	}
	return false
}

// urlFileName names a downloaded body: the last path segment when it has
// an extension, otherwise one derived from the content type.
func urlFileName(u *url.URL, contentType string) string {
	base := path.Base(u.Path)
	if base != "." && base != "/" && path.Ext(base) != "" {
		return base
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
			return "page" + exts[0]
		}
	}
	return "page.html"
}
