package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/versegest/internal/annotations"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate <passage-id> <name> <note...>",
	Short: "Attach a note to a passage in pathstore",
	Long: `Annotate writes a note under annotations/passages/<passage-id>/<name> in
the configured pathstore. Search attaches these notes to its results.`,
	Args: cobra.MinimumNArgs(3),
	RunE: runAnnotate,
}

func init() {
	annotateCmd.Flags().String("kind", "comment", "note kind, e.g. comment or cross-ref")
	annotateCmd.Flags().String("source", "", "who or what wrote the note")
	rootCmd.AddCommand(annotateCmd)
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	if cfg.PathstoreURL == "" {
		return fmt.Errorf("pathstore.url is not configured")
	}
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	found, err := a.store.PassagesByID(cmd.Context(), args[:1])
	if err != nil {
		return err
	}
	if _, ok := found[args[0]]; !ok {
		return fmt.Errorf("no passage %s", args[0])
	}

	note := annotations.Annotation{Body: strings.Join(args[2:], " ")}
	note.Kind, _ = cmd.Flags().GetString("kind")
	note.Source, _ = cmd.Flags().GetString("source")

	ps := annotations.NewPathstore(cfg.PathstoreURL, cfg.PathstoreAPIKey)
	defer ps.Close()
	if err := ps.Put(cmd.Context(), args[0], args[1], note); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "annotated %s/%s\n", args[0], args[1])
	return nil
}
