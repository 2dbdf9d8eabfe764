package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "text", "output format: text, json or yaml")
}

// emit writes v as JSON or YAML, or calls text for the human format.
func emit(cmd *cobra.Command, v any, text func(w io.Writer) error) error {
	format, _ := cmd.Flags().GetString("output")
	w := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		return text(w)
	}
	return fmt.Errorf("unknown output format %q", format)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
