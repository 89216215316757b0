package main

import (
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"sceneforge/internal/production"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// statusLabel renders a scene status, colored when writing to a terminal.
func statusLabel(status production.Status, colorize bool) string {
	label := string(status)
	if !colorize {
		return label
	}
	switch status {
	case production.StatusVideoReady:
		return text.FgGreen.Sprint(label)
	case production.StatusImageReady:
		return text.FgCyan.Sprint(label)
	case production.StatusImageGenerating, production.StatusVideoGenerating:
		return text.FgYellow.Sprint(label)
	case production.StatusError:
		return text.FgRed.Sprint(label)
	default:
		return label
	}
}

func checkLabel(passed, colorize bool) string {
	if passed {
		if colorize {
			return text.FgGreen.Sprint("ok")
		}
		return "ok"
	}
	if colorize {
		return text.FgRed.Sprint("fail")
	}
	return "fail"
}
