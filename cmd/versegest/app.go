package main

import (
	"fmt"
	"time"

	"github.com/dgallion1/versegest/internal/annotations"
	"github.com/dgallion1/versegest/internal/artifact"
	"github.com/dgallion1/versegest/internal/chunker"
	"github.com/dgallion1/versegest/internal/embed"
	"github.com/dgallion1/versegest/internal/lexical"
	"github.com/dgallion1/versegest/internal/pipeline"
	"github.com/dgallion1/versegest/internal/retrieval"
	"github.com/dgallion1/versegest/internal/scripture"
	"github.com/dgallion1/versegest/internal/stats"
	"github.com/dgallion1/versegest/internal/store"
	"github.com/dgallion1/versegest/internal/urlguard"
	"github.com/dgallion1/versegest/internal/verserange"
)

// app holds the services one command invocation shares.
type app struct {
	store    *store.Store
	resolver *scripture.Resolver
	indexer  *verserange.Indexer
	embedder *embed.Service // nil when embed.backend is none
	stats    *stats.Sink

	closers []func()
}

func openApp() (*app, error) {
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	r := scripture.NewResolver(cfg.ResolverMemo)
	a := &app{
		store:    s,
		resolver: r,
		indexer:  verserange.New(r),
		stats:    stats.NewSink(time.Hour),
	}
	a.closers = append(a.closers, func() { s.Close() })

	var backend embed.Embedder
	switch cfg.EmbedBackend {
	case "hashing":
		backend = embed.NewHashingBackend(cfg.EmbedDimensions)
	case "http":
		backend = embed.NewHTTPBackend(cfg.EmbedEndpoint, cfg.EmbedAPIKey, cfg.EmbedModel, cfg.EmbedDimensions)
	}
	if backend != nil {
		a.embedder = embed.NewService(backend, embed.Options{
			CacheSize:        cfg.EmbedCacheSize,
			BatchSize:        cfg.EmbedBatchSize,
			MaxAttempts:      cfg.EmbedMaxAttempts,
			RetryUnit:        cfg.EmbedRetryUnit,
			BreakerThreshold: cfg.BreakerThreshold,
			BreakerCooldown:  cfg.BreakerCooldown,
		}, log.With("component", "embed"))
		a.closers = append(a.closers, a.embedder.Close)
	}
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) orchestrator() (*pipeline.Orchestrator, error) {
	cidrs, err := cfg.CIDRs()
	if err != nil {
		return nil, err
	}
	guard := urlguard.New(urlguard.Policy{
		AllowedSchemes: cfg.AllowedSchemes,
		AllowedHosts:   cfg.AllowedHosts,
		BlockedHosts:   cfg.BlockedHosts,
		BlockedCIDRs:   cidrs,
		AllowPrivate:   cfg.AllowPrivate,
		MaxRedirects:   cfg.MaxRedirects,
	}, nil)

	deps := pipeline.Deps{
		Store: a.store,
		Artifacts: artifact.New(cfg.ArtifactRoot, artifact.Options{
			CompressAbove: cfg.CompressAbove,
			InlineLimit:   cfg.InlineLimit,
		}),
		Resolver: a.resolver,
		Indexer:  a.indexer,
		Guard:    guard,
		Stats:    a.stats,
	}
	// Interface fields stay nil unless a backend is configured.
	if a.embedder != nil {
		deps.Embedder = a.embedder
	}
	if cfg.TranscriptEndpoint != "" {
		deps.Transcripts = pipeline.NewHTTPTranscriptProvider(cfg.TranscriptEndpoint, cfg.TranscriptAPIKey, cfg.FetchTimeout)
	}

	return pipeline.New(deps, pipeline.Options{
		Text:             chunker.TextConfig{MaxTokens: cfg.ChunkMaxTokens, HardCap: cfg.ChunkHardCap},
		Transcript:       chunker.TranscriptConfig{MaxTokens: cfg.TranscriptMaxTokens, MaxWindow: cfg.TranscriptWindow.Seconds()},
		MaxFetchAttempts: cfg.MaxFetchAttempts,
		RetryUnit:        cfg.FetchRetryUnit,
		FetchTimeout:     cfg.FetchTimeout,
		MaxFetchBytes:    cfg.MaxFetchBytes,
		VideoHosts:       cfg.VideoHosts,
		PDFFallback:      cfg.PDFFallbackPdftotext,
	}, log.With("component", "pipeline")), nil
}

func (a *app) engine() (*retrieval.Engine, error) {
	deps := retrieval.Deps{
		Passages: a.store,
		Seeds:    a.store,
		Resolver: a.resolver,
	}
	if a.embedder != nil {
		deps.Embedder = a.embedder
	}
	switch cfg.LexicalProvider {
	case "fts5":
		deps.Lexical = lexical.NewFTS(a.store)
	case "bleve":
		b := lexical.NewBleve(a.store)
		a.closers = append(a.closers, func() { b.Close() })
		deps.Lexical = b
	case "substring":
		deps.Lexical = lexical.NewSubstring(a.store)
	case "none":
	default:
		return nil, fmt.Errorf("unknown lexical provider %q", cfg.LexicalProvider)
	}
	if cfg.PathstoreURL != "" {
		ps := annotations.NewPathstore(cfg.PathstoreURL, cfg.PathstoreAPIKey)
		a.closers = append(a.closers, ps.Close)
		deps.Annotations = ps
	}
	return retrieval.New(deps, retrieval.Options{
		Alpha:          cfg.FusionAlpha,
		CandidateSlack: cfg.CandidateSlack,
		DefaultK:       cfg.DefaultK,
		SnippetChars:   cfg.SnippetChars,
	}, log.With("component", "retrieval")), nil
}
