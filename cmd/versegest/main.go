// Command versegest ingests documents into a Scripture-annotated corpus and
// searches it.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/versegest/internal/config"
)

var (
	cfg config.Config
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "versegest",
	Short: "Ingest and search a Scripture-annotated document corpus",
	Long: `versegest ingests text, markdown, HTML, PDF, DOCX, transcripts, OSIS markup
and web pages into a SQLite corpus. Every passage is indexed by the Bible
verses it cites, embedded, and full-text indexed for hybrid retrieval.

Settings come from defaults, an optional YAML file and VERSEGEST_*
environment variables, in increasing precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("config")
		if file == "" {
			file = os.Getenv(config.EnvPrefix + "_CONFIG")
		}
		c, err := config.Load(file)
		if err != nil {
			return err
		}
		if f, _ := cmd.Flags().GetString("log-format"); f != "" {
			c.LogFormat = strings.ToLower(f)
		}
		if l, _ := cmd.Flags().GetString("log-level"); l != "" {
			c.LogLevel = strings.ToLower(l)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = c
		log = newLogger(c.LogFormat, c.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./versegest.yaml)")
	rootCmd.PersistentFlags().String("log-format", "", "json or text (overrides log.format)")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error (overrides log.level)")
}

// newLogger writes to stderr so command output on stdout stays parseable.
func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
