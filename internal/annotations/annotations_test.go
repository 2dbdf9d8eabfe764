package annotations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePathstore implements the two pathstore endpoints the client uses.
type fakePathstore struct {
	mu    sync.Mutex
	nodes map[string]json.RawMessage
}

func (f *fakePathstore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Header.Get("Authorization") != "Bearer secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/kv/")
	switch r.Method {
	case http.MethodPut:
		var req struct {
			Value json.RawMessage `json:"value"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.nodes[key] = req.Value
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		prefix := strings.TrimSuffix(key, "*")
		type node struct {
			Key   string          `json:"key_path"`
			Value json.RawMessage `json:"value"`
		}
		var out []node
		for k, v := range f.nodes {
			if strings.HasPrefix(k, prefix) {
				out = append(out, node{Key: k, Value: v})
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"nodes": out})
	}
}

func TestPathstoreRoundTrip(t *testing.T) {
	fake := &fakePathstore{nodes: map[string]json.RawMessage{
		"annotations/passages/p-2/legacy": json.RawMessage(`"a bare string note"`),
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := NewPathstore(srv.URL+"/", "secret")
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "p-1", "b-note", Annotation{Kind: "cross-ref", Body: "compare Rom 5:8"}))
	require.NoError(t, c.Put(ctx, "p-1", "a-note", Annotation{Kind: "comment", Body: "key verse"}))

	got, err := c.For(ctx, []string{"p-1", "p-2", "p-3"})
	require.NoError(t, err)
	require.Len(t, got["p-1"], 2)
	assert.Equal(t, "annotations/passages/p-1/a-note", got["p-1"][0].Key)
	assert.Equal(t, "key verse", got["p-1"][0].Body)
	assert.Equal(t, "cross-ref", got["p-1"][1].Kind)
	assert.Equal(t, "a bare string note", got["p-2"][0].Body)
	assert.NotContains(t, got, "p-3")
}

func TestPathstoreErrors(t *testing.T) {
	srv := httptest.NewServer(&fakePathstore{nodes: map[string]json.RawMessage{}})
	defer srv.Close()

	c := NewPathstore(srv.URL, "wrong")
	_, err := c.For(context.Background(), []string{"p-1"})
	assert.ErrorContains(t, err, "status 401")
}

func TestStatic(t *testing.T) {
	s := Static{"u1": {{Key: "z", Body: "last"}, {Key: "a", Body: "first"}}}
	got, err := s.For(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Equal(t, "first", got["u1"][0].Body)
	assert.NotContains(t, got, "u2")
}
