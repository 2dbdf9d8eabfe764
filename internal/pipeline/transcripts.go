package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgallion1/versegest/internal/chunker"
	"github.com/dgallion1/versegest/internal/faults"
)

// HTTPTranscriptProvider asks a caption service for a video's transcript:
// GET <endpoint>?url=<video url> answering {"segments": [...]}.
type HTTPTranscriptProvider struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPTranscriptProvider(endpoint, apiKey string, timeout time.Duration) *HTTPTranscriptProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPTranscriptProvider{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type transcriptResponse struct {
	Segments []struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Text    string  `json:"text"`
		Speaker string  `json:"speaker,omitempty"`
	} `json:"segments"`
}

func (p *HTTPTranscriptProvider) Transcript(ctx context.Context, videoURL string) ([]chunker.Segment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?url="+url.QueryEscape(videoURL), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcript request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &faults.RetryableError{StatusCode: resp.StatusCode, Message: string(msg)}
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, faults.Unsupported(videoURL, "no transcript available", nil)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("transcript service status %d: %s", resp.StatusCode, msg)
	}

	var out transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	segs := make([]chunker.Segment, 0, len(out.Segments))
	for _, s := range out.Segments {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		segs = append(segs, chunker.Segment{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text), Speaker: s.Speaker})
	}
	return segs, nil
}
