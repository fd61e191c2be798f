package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aqasim81/pgledger/internal/hazard"
)

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)

	return t
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}

	return t.UTC().Format(time.RFC3339)
}

func printHazards(out io.Writer, hs []hazard.Hazard) {
	if len(hs) == 0 {
		return
	}

	fmt.Fprintf(out, "  %d risky statement(s):\n", len(hs))

	for _, h := range hs {
		fmt.Fprintf(out, "    [%s] %s: %s\n", h.Level, h.Table, h.Message)

		if h.Statement != "" {
			fmt.Fprintf(out, "      SQL: %s\n", h.Statement)
		}

		fmt.Fprintf(out, "      Fix: %s\n", h.Suggestion)
	}
}
