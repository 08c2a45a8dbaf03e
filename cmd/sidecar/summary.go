package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"sidecar/internal/batch"
)

func renderSummary(s *batch.Summary) string {
	var b strings.Builder

	mode := ""
	if s.DryRun {
		mode = " (dry run, nothing written)"
	}
	status := "finished"
	if s.Cancelled {
		status = "interrupted"
	}
	fmt.Fprintf(&b, "Run %s %s in %s%s\n", s.RunID, status, s.Duration().Round(time.Millisecond), mode)

	c := s.Counts
	rows := [][]string{
		{"Images", strconv.Itoa(c.Images)},
		{"Created", strconv.Itoa(c.Created)},
		{"Merged", strconv.Itoa(c.Merged)},
		{"Overwritten", strconv.Itoa(c.Overwritten)},
		{"Skipped", strconv.Itoa(c.Skipped)},
		{"No metadata", strconv.Itoa(c.NoMetadata)},
		{"Renamed", strconv.Itoa(c.Renamed)},
		{"Rename conflicts", strconv.Itoa(c.Conflicts)},
		{"Orphans removed", strconv.Itoa(c.OrphansRemoved)},
		{"Directories removed", strconv.Itoa(c.DirsRemoved)},
		{"Errors", strconv.Itoa(c.Errors)},
	}
	b.WriteString(renderTable(summaryColumns, rows))
	b.WriteByte('\n')

	if failed := s.Failed(); len(failed) > 0 {
		b.WriteString("\nProblems:\n")
		for _, o := range failed {
			fmt.Fprintf(&b, "  %s [%s]: %v\n", o.Path, o.Stage, o.Err)
		}
	}
	return b.String()
}
