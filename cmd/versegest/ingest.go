package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dgallion1/versegest/internal/pipeline"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Ingest local files and URLs",
	Long: `Ingest runs each source through fetch, parse and persist on a worker pool.
A file's kind is taken from --kind; URLs are fetched under the configured
URL policy. Optional <file>.meta.yaml sidecars supply title, collection,
author, expected references and, for transcripts, an audio file.

Sources already in the corpus (same content hash) are reported as
duplicate_skipped and are not an error.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringSlice("url", nil, "URL to fetch (repeatable)")
	ingestCmd.Flags().String("kind", string(pipeline.KindFile), "kind of the path arguments: file, transcript or markup")
	ingestCmd.Flags().String("title", "", "title for every source")
	ingestCmd.Flags().String("collection", "", "collection for every source")
	ingestCmd.Flags().String("author", "", "author for every source")
	ingestCmd.Flags().StringSlice("ref", nil, "reference the sources are expected to cite (repeatable)")
	ingestCmd.Flags().String("audio", "", "recording to store with a single transcript")
	addFormatFlag(ingestCmd)
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	urls, _ := cmd.Flags().GetStringSlice("url")
	if len(args) == 0 && len(urls) == 0 {
		return fmt.Errorf("nothing to ingest: give paths or --url")
	}
	kind, _ := cmd.Flags().GetString("kind")
	audio, _ := cmd.Flags().GetString("audio")
	if audio != "" && (len(args) != 1 || kind != string(pipeline.KindTranscript)) {
		return fmt.Errorf("--audio needs exactly one path with --kind transcript")
	}
	base := pipeline.Source{AudioPath: audio}
	base.Title, _ = cmd.Flags().GetString("title")
	base.Collection, _ = cmd.Flags().GetString("collection")
	base.Author, _ = cmd.Flags().GetString("author")
	base.Hints, _ = cmd.Flags().GetStringSlice("ref")

	var sources []pipeline.Source
	for _, p := range args {
		src := base
		src.Kind, src.Path = pipeline.Kind(kind), p
		sources = append(sources, src)
	}
	for _, u := range urls {
		src := base
		src.Kind, src.URL = pipeline.KindURL, u
		sources = append(sources, src)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// A second interrupt kills the process instead of waiting on the drain.
	go func() {
		<-ctx.Done()
		stop()
	}()

	pool := pipeline.NewPool(orch, pipeline.PoolOptions{
		Workers:  cfg.WorkerCount,
		MaxQueue: max(cfg.MaxQueueSize, len(sources)),
		JobTTL:   cfg.JobTTL,
	}, log)
	pool.Start(ctx)

	jobs := make([]*pipeline.Job, 0, len(sources))
	for _, src := range sources {
		job, err := pool.Submit(src)
		if err != nil {
			log.Error("submit failed", "source", src.Location(), "error", err)
		}
		jobs = append(jobs, job)
	}
	pool.Drain()

	snaps := make([]pipeline.JobSnapshot, len(jobs))
	failed := 0
	for i, j := range jobs {
		snaps[i] = j.Snapshot()
		if snaps[i].Status == pipeline.StatusFailed {
			failed++
		}
	}
	err = emit(cmd, snaps, func(w io.Writer) error {
		for _, s := range snaps {
			line := fmt.Sprintf("%-18s %s", s.Status, s.Source)
			switch {
			case s.DocumentID != "":
				line += fmt.Sprintf("  document=%s passages=%d", s.DocumentID, s.Passages)
			case s.Error != "":
				line += "  " + s.Error
			}
			fmt.Fprintln(w, line)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d source(s) failed", failed, len(jobs))
	}
	return nil
}
