package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/haeun-lim/herd/internal/registry"
)

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// printTaskTable renders registry entries in a fixed-column table.
func printTaskTable(w io.Writer, entries []registry.Entry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PID\tAGENT\tSTATUS\tRESULT\tAGE\tLOG")
	for _, e := range entries {
		rec := e.Record
		result := rec.Result
		if result == "" {
			result = "-"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.PID, rec.Agent, rec.Status, result, formatAge(rec.Age(time.Now())), rec.LogPath)
	}
	_ = tw.Flush()
}

// formatAge truncates the age to a human-scannable precision.
func formatAge(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return d.Truncate(time.Minute).String()
	case d >= time.Minute:
		return d.Truncate(time.Second).String()
	case d < 0:
		return "0s"
	default:
		return d.Truncate(time.Millisecond).String()
	}
}
