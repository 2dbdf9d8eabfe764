package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dgallion1/versegest/internal/faults"
)

// DefaultEndpoint is the OpenAI embeddings API.
const DefaultEndpoint = "https://api.openai.com/v1/embeddings"

// HTTPBackend calls an OpenAI-compatible embeddings endpoint.
type HTTPBackend struct {
	endpoint   string
	apiKey     string
	model      string
	dims       int
	httpClient *http.Client
}

func NewHTTPBackend(endpoint, apiKey, model string, dims int) *HTTPBackend {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &HTTPBackend{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		dims:     dims,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (b *HTTPBackend) Name() string    { return "http:" + b.model }
func (b *HTTPBackend) Dimensions() int { return b.dims }

// Embed sends texts in a single request.
func (b *HTTPBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(embeddingRequest{Input: texts, Model: b.model, Dimensions: b.dims})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embeddings api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &faults.RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings api status %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp embeddingResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("embeddings error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	out := make([][]float32, len(texts))
	for _, d := range apiResp.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("embeddings api returned no vector for input %d", i)
		}
	}
	return out, nil
}

// Close releases resources.
func (b *HTTPBackend) Close() {
	b.httpClient.CloseIdleConnections()
}
