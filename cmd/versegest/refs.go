package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/versegest/internal/scripture"
	"github.com/dgallion1/versegest/internal/verserange"
)

var refsCmd = &cobra.Command{
	Use:   "refs [text]",
	Short: "Detect and expand Scripture references in text",
	Long: `Refs runs the reference resolver over its arguments and prints the
detected OSIS tokens, their combined form, the verse range and, with
--hint, which expected references the text actually cites. No corpus is
opened.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRefs,
}

func init() {
	refsCmd.Flags().StringSlice("hint", nil, "expected reference to classify (repeatable)")
	addFormatFlag(refsCmd)
	rootCmd.AddCommand(refsCmd)
}

type refsReport struct {
	Primary   scripture.Token   `json:"primary" yaml:"primary"`
	Detected  []scripture.Token `json:"detected" yaml:"detected"`
	Combined  scripture.Token   `json:"combined,omitempty" yaml:"combined,omitempty"`
	Verses    int               `json:"verses" yaml:"verses"`
	Range     *verserange.Range `json:"range,omitempty" yaml:"range,omitempty"`
	Matched   []string          `json:"matched,omitempty" yaml:"matched,omitempty"`
	Unmatched []string          `json:"unmatched,omitempty" yaml:"unmatched,omitempty"`
}

func runRefs(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	hints, _ := cmd.Flags().GetStringSlice("hint")

	r := scripture.NewResolver(cfg.ResolverMemo)
	var rep refsReport
	rep.Primary, rep.Detected = r.Detect(text)
	if t, ok := r.Canonicalize(text); ok && len(rep.Detected) == 0 {
		rep.Primary, rep.Detected = t, []scripture.Token{t}
	}
	rep.Combined, _ = r.Combine(rep.Detected)
	set, rng := verserange.New(r).IndexReferences(rep.Detected)
	rep.Verses, rep.Range = len(set), rng
	rep.Matched, rep.Unmatched = r.ClassifyMatches(rep.Detected, hints)

	return emit(cmd, rep, func(w io.Writer) error {
		if len(rep.Detected) == 0 {
			fmt.Fprintln(w, "No references found.")
			return nil
		}
		fmt.Fprintf(w, "primary:   %s\n", rep.Primary)
		fmt.Fprintf(w, "detected:  %s\n", joinTokens(rep.Detected))
		if rep.Combined != "" {
			fmt.Fprintf(w, "combined:  %s\n", rep.Combined)
		}
		fmt.Fprintf(w, "verses:    %d (%s..%s)\n", rep.Verses, rep.Range.Start, rep.Range.End)
		if len(hints) > 0 {
			fmt.Fprintf(w, "matched:   %s\n", strings.Join(rep.Matched, ", "))
			fmt.Fprintf(w, "unmatched: %s\n", strings.Join(rep.Unmatched, ", "))
		}
		return nil
	})
}

func joinTokens(ts []scripture.Token) string {
	s := make([]string, len(ts))
	for i, t := range ts {
		s[i] = string(t)
	}
	return strings.Join(s, ", ")
}
