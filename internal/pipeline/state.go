package pipeline

import (
	"time"

	"github.com/dgallion1/versegest/internal/chunker"
	"github.com/dgallion1/versegest/internal/doctree"
	"github.com/dgallion1/versegest/internal/faults"
	"github.com/dgallion1/versegest/internal/parser"
)

// State is the pipeline's position. It is always one of *Fetched, *Parsed,
// *Persisted or *Failed, and each stage accepts only its predecessor.
type State interface {
	stateName() string
}

// Fetched holds the raw source and its identity.
type Fetched struct {
	Source      Source
	Raw         []byte
	SourceName  string // file name used for parser dispatch and the artifact copy
	ContentType string // url sources
	ContentHash string

	// Set when the fetch already produced structure: captions from disk or
	// a video host, and OSIS markup.
	Segments []chunker.Segment
	Markup   *parser.Markup
}

// Parsed is the extracted body cut into chunks.
type Parsed struct {
	*Fetched
	Parser        string
	ParserVersion string
	Title         string
	Body          string
	Chunks        []chunker.Chunk
	Sections      []doctree.Section // empty for transcripts
	Frontmatter   map[string]any
}

// Persisted is the committed document.
type Persisted struct {
	DocumentID  string
	ContentHash string
	ArtifactDir string
	PassageIDs  []string
	Quotes      int
	Commentary  int
}

// Failed records the stage that stopped the pipeline.
type Failed struct {
	Stage string
	Cause error
}

func (*Fetched) stateName() string   { return "fetched" }
func (*Parsed) stateName() string    { return "parsed" }
func (*Persisted) stateName() string { return "persisted" }
func (*Failed) stateName() string    { return "failed" }

// ExecStatus is a stage outcome.
type ExecStatus string

const (
	ExecSuccess ExecStatus = "success"
	ExecFailed  ExecStatus = "failed"
)

// StageExecution is the record of one stage run.
type StageExecution struct {
	Name     string
	Status   ExecStatus
	Attempts int
	Output   State
	Err      error
	Duration time.Duration
}

// Result is the outcome of Run. State is the last state reached: a
// *Persisted on success, a *Failed otherwise.
type Result struct {
	Status     ExecStatus
	State      State
	Executions []StageExecution
	Failures   []StageExecution
}

// Err picks the caller-facing error: the first failed execution's error,
// else the last execution's error, else ErrMissingErrorMetadata when the
// run failed anyway.
func (r Result) Err() error {
	for _, e := range r.Failures {
		if e.Err != nil {
			return e.Err
		}
	}
	if n := len(r.Executions); n > 0 && r.Executions[n-1].Err != nil {
		return r.Executions[n-1].Err
	}
	if r.Status == ExecFailed {
		return faults.ErrMissingErrorMetadata
	}
	return nil
}

// Persisted returns the committed document, if the run got that far.
func (r Result) Persisted() (*Persisted, bool) {
	p, ok := r.State.(*Persisted)
	return p, ok
}
