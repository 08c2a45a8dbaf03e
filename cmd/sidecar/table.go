package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column is one table column: its header and how its cells align.
type column struct {
	header string
	align  text.Align
	// maxWidth wraps cells wider than this; zero leaves them unbounded.
	maxWidth int
}

func left(header string) column  { return column{header: header, align: text.AlignLeft} }
func right(header string) column { return column{header: header, align: text.AlignRight} }

var (
	summaryColumns = []column{left("Result"), right("Count")}
	runColumns     = []column{
		left("Started"), left("Run"), left("Root"),
		right("Images"), right("Created"), right("Merged"), right("Skipped"),
		right("Renamed"), right("Orphans"), right("Errors"), left("Status"),
	}
	eventColumns = []column{
		left("Action"), left("Path"), left("Target"),
		left("Reason"), {header: "Error", align: text.AlignLeft, maxWidth: 48},
	}
)

// renderTable renders rows under columns. Short rows are padded with empty cells.
func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.header
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       col.align,
			AlignHeader: text.AlignLeft,
			WidthMax:    col.maxWidth,
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}
