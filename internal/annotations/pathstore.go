package annotations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"
)

// KeyPrefix is where passage annotations live in pathstore.
const KeyPrefix = "annotations/passages"

// Pathstore reads and writes annotations through the pathstore HTTP API,
// one node per note under annotations/passages/<passage id>/<name>.
type Pathstore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewPathstore(baseURL, apiKey string) *Pathstore {
	return &Pathstore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// nodeRequest is the body for PUT /kv/{key}.
type nodeRequest struct {
	Value      any    `json:"value"`
	MemoryType string `json:"memory_type,omitempty"`
	Source     string `json:"source,omitempty"`
}

// childNode is a single node from a prefix scan.
type childNode struct {
	Key   string          `json:"key_path"`
	Value json.RawMessage `json:"value"`
}

// Put stores a note on a passage.
func (c *Pathstore) Put(ctx context.Context, passageID, name string, a Annotation) error {
	key := path.Join(KeyPrefix, passageID, name)
	body, err := json.Marshal(nodeRequest{Value: a, MemoryType: "annotation", Source: a.Source})
	if err != nil {
		return fmt.Errorf("marshal node: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/kv/"+key, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("put node: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("put node %s: status %d: %s", key, resp.StatusCode, string(respBody))
	}
	return nil
}

// For does one prefix scan per passage.
func (c *Pathstore) For(ctx context.Context, passageIDs []string) (map[string][]Annotation, error) {
	out := make(map[string][]Annotation)
	for _, id := range passageIDs {
		nodes, err := c.listChildren(ctx, path.Join(KeyPrefix, id), 0)
		if err != nil {
			return nil, err
		}
		var notes []Annotation
		for _, n := range nodes {
			notes = append(notes, decodeNote(n))
		}
		if len(notes) > 0 {
			sort.SliceStable(notes, func(i, j int) bool { return notes[i].Key < notes[j].Key })
			out[id] = notes
		}
	}
	return out, nil
}

// decodeNote accepts either a structured annotation or a bare string value.
func decodeNote(n childNode) Annotation {
	a := Annotation{}
	if err := json.Unmarshal(n.Value, &a); err != nil || a.Body == "" {
		var s string
		if json.Unmarshal(n.Value, &s) == nil {
			a = Annotation{Body: s}
		} else {
			a = Annotation{Body: string(n.Value)}
		}
	}
	a.Key = n.Key
	return a
}

func (c *Pathstore) listChildren(ctx context.Context, key string, limit int) ([]childNode, error) {
	u := c.baseURL + "/kv/" + key + "/*"
	if limit > 0 {
		u += "?limit=" + url.QueryEscape(fmt.Sprintf("%d", limit))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("list children %s: status %d: %s", key, resp.StatusCode, string(respBody))
	}

	var result struct {
		Nodes []childNode `json:"nodes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode children: %w", err)
	}
	return result.Nodes, nil
}

func (c *Pathstore) authorize(r *http.Request) {
	if c.apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// Close releases idle connections.
func (c *Pathstore) Close() {
	c.httpClient.CloseIdleConnections()
}
