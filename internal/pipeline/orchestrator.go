package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dgallion1/versegest/internal/artifact"
	"github.com/dgallion1/versegest/internal/chunker"
	"github.com/dgallion1/versegest/internal/faults"
	"github.com/dgallion1/versegest/internal/scripture"
	"github.com/dgallion1/versegest/internal/stats"
	"github.com/dgallion1/versegest/internal/store"
	"github.com/dgallion1/versegest/internal/urlguard"
	"github.com/dgallion1/versegest/internal/verserange"
)

// Stage names as recorded in StageExecution.Name.
const (
	StageFetch   = "fetch"
	StageParse   = "parse"
	StagePersist = "persist"
)

// Deps are the shared services a run reads from. Store, Resolver and
// Indexer are required; the rest are optional.
type Deps struct {
	Store       *store.Store
	Artifacts   *artifact.Writer
	Resolver    *scripture.Resolver
	Indexer     *verserange.Indexer
	Embedder    Embedder
	Guard       *urlguard.Guard
	Transcripts TranscriptProvider
	Stats       *stats.Sink
}

// Options tune fetch limits and chunking.
type Options struct {
	Text       chunker.TextConfig
	Transcript chunker.TranscriptConfig

	MaxFetchAttempts int
	RetryUnit        time.Duration
	FetchTimeout     time.Duration
	MaxFetchBytes    int64
	VideoHosts       []string
	PDFFallback      bool
}

func (o Options) withDefaults() Options {
	if o.Text.MaxTokens <= 0 {
		o.Text = chunker.DefaultTextConfig()
	}
	if o.Transcript.MaxTokens <= 0 {
		o.Transcript = chunker.DefaultTranscriptConfig()
	}
	if o.MaxFetchAttempts <= 0 {
		o.MaxFetchAttempts = 3
	}
	if o.RetryUnit <= 0 {
		o.RetryUnit = time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 30 * time.Second
	}
	if o.MaxFetchBytes <= 0 {
		o.MaxFetchBytes = 50 << 20
	}
	return o
}

// Orchestrator runs sources through fetch, parse and persist. One run is
// sequential; independent runs may share an Orchestrator concurrently.
type Orchestrator struct {
	deps Deps
	opts Options
	log  *slog.Logger
}

func New(deps Deps, opts Options, log *slog.Logger) *Orchestrator {
	if deps.Guard == nil {
		deps.Guard = urlguard.New(urlguard.Policy{}, nil)
	}
	return &Orchestrator{deps: deps, opts: opts.withDefaults(), log: log}
}

// Run ingests one source. Stage failures are captured in the Result and
// surfaced once as the returned error (see Result.Err).
func (o *Orchestrator) Run(ctx context.Context, src Source) (Result, error) {
	res := o.run(ctx, src, nil)
	return res, res.Err()
}

// run drives the transitions. observe, when set, is told each stage name
// before it starts.
func (o *Orchestrator) run(ctx context.Context, src Source, observe func(stage string)) Result {
	log := o.log.With("run_id", newID(), "source", src.Location(), "kind", src.Kind)
	if observe == nil {
		observe = func(string) {}
	}
	started := time.Now()
	var res Result
	defer func() {
		if o.deps.Stats != nil {
			o.deps.Stats.Record("run", string(res.Status), time.Since(started))
		}
	}()

	observe(StageFetch)
	t := time.Now()
	fetched, attempts, err := o.fetch(ctx, src)
	if !o.record(&res, log, StageFetch, attempts, fetched, err, time.Since(t)) {
		return res
	}

	observe(StageParse)
	t = time.Now()
	parsed, err := o.parse(ctx, fetched)
	if !o.record(&res, log, StageParse, 1, parsed, err, time.Since(t)) {
		return res
	}

	observe(StagePersist)
	t = time.Now()
	persisted, err := o.persist(ctx, parsed)
	if !o.record(&res, log, StagePersist, 1, persisted, err, time.Since(t)) {
		return res
	}
	log.Info("ingested", "document_id", persisted.DocumentID, "passages", len(persisted.PassageIDs),
		"quotes", persisted.Quotes, "duration", time.Since(started))
	return res
}

// record appends one StageExecution and reports whether the run continues.
func (o *Orchestrator) record(res *Result, log *slog.Logger, stage string, attempts int, out State, err error, d time.Duration) bool {
	exec := StageExecution{Name: stage, Status: ExecSuccess, Attempts: attempts, Duration: d}
	outcome := string(ExecSuccess)
	if err != nil {
		exec.Status = ExecFailed
		exec.Err = err
		res.Status = ExecFailed
		res.State = &Failed{Stage: stage, Cause: err}
		res.Failures = append(res.Failures, exec)
		outcome = string(ExecFailed)

		var dup *faults.DuplicateSourceError
		if errors.As(err, &dup) {
			outcome = "duplicate"
			log.Info("duplicate source skipped", "stage", stage, "existing_id", dup.ExistingID)
		} else {
			log.Error("stage failed", "stage", stage, "attempts", attempts, "error", err)
		}
	} else {
		exec.Output = out
		res.Status = ExecSuccess
		res.State = out
		log.Debug("stage complete", "stage", stage, "attempts", attempts, "duration", d)
	}
	res.Executions = append(res.Executions, exec)
	if o.deps.Stats != nil {
		o.deps.Stats.Record("stage."+stage, outcome, d)
	}
	return err == nil
}
