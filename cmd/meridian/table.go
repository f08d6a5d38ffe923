package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/nvoss/meridian/internal/stream"
)

func renderTable(headers []string, rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i := range headers {
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       text.AlignLeft,
			AlignHeader: text.AlignLeft,
		}
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// renderSteps tabulates the agent steps observed during a run.
func renderSteps(steps []stream.StepRecord) string {
	rows := make([][]string, 0, len(steps))
	for _, s := range steps {
		tokens := ""
		if s.Tokens > 0 {
			tokens = fmt.Sprintf("%d", s.Tokens)
		}
		rows = append(rows, []string{s.Agent, s.Action, s.Status, tokens})
	}
	return renderTable([]string{"Agent", "Action", "Status", "Tokens"}, rows)
}
