package urlguard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/versegest/internal/faults"
)

type fakeResolver map[string][]netip.Addr

func (f fakeResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	if addrs, ok := f[host]; ok {
		return addrs, nil
	}
	return nil, errors.New("no such host")
}

func TestCheck(t *testing.T) {
	res := fakeResolver{
		"bible.example.org":   {netip.MustParseAddr("93.184.216.34")},
		"cdn.example.org":     {netip.MustParseAddr("93.184.216.35")},
		"intranet.example":    {netip.MustParseAddr("10.1.2.3")},
		"mixed.example.org":   {netip.MustParseAddr("93.184.216.36"), netip.MustParseAddr("127.0.0.1")},
		"bad-range.example":   {netip.MustParseAddr("203.0.113.9")},
		"other.example.net":   {netip.MustParseAddr("93.184.216.37")},
		"tracker.example.org": {netip.MustParseAddr("93.184.216.38")},
	}
	g := New(Policy{
		AllowedHosts: []string{"*.example.org", "intranet.example", "bad-range.example", "mixed.example.org"},
		BlockedHosts: []string{"tracker.example.org"},
		BlockedCIDRs: []netip.Prefix{netip.MustParsePrefix("203.0.113.0/24")},
	}, res)

	tests := []struct {
		name string
		url  string
		ok   bool
	}{
		{"allowed subdomain", "https://bible.example.org/kjv/john.html", true},
		{"second subdomain", "http://cdn.example.org/a.pdf", true},
		{"scheme", "ftp://bible.example.org/x", false},
		{"file scheme", "file:///etc/passwd", false},
		{"not in allow list", "https://other.example.net/", false},
		{"blocked host wins", "https://tracker.example.org/", false},
		{"private address", "http://intranet.example/", false},
		{"any private answer rejects", "http://mixed.example.org/", false},
		{"blocked cidr", "http://bad-range.example/", false},
		{"literal loopback", "http://127.0.0.1:8080/", false},
		{"credentials", "https://user:pw@bible.example.org/", false},
		{"unresolvable", "https://missing.example.org/", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := g.Check(context.Background(), tt.url)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.url, u.String())
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, faults.ErrUnsupportedSource)
		})
	}
}

func TestClientRevalidatesRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://evil.test/payload", http.StatusFound)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/a", http.StatusFound)
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/done", http.StatusFound)
	})
	mux.HandleFunc("/done", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("done"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := New(Policy{AllowPrivate: true, BlockedHosts: []string{"evil.test"}}, fakeResolver{})
	client := g.Client(5 * time.Second)

	resp, err := client.Get(srv.URL + "/ok")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = client.Get(srv.URL + "/start")
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrUnsupportedSource)

	_, err = client.Get(srv.URL + "/a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRedirectLoop)
}

func TestClientRefusesPrivateDial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	g := New(Policy{}, fakeResolver{})
	_, err := g.Client(5 * time.Second).Get(srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrUnsupportedSource)
}
