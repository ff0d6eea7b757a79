package output

import (
	"fmt"
	"io"
	"strconv"

	"github.com/agentstation/eolsync/pkg/reconciler"
)

// ResultToTableData lays out one row per service followed by a totals row.
func ResultToTableData(result *reconciler.Result) Data {
	data := Data{
		Headers: []string{
			Header("service"),
			Header("frameworks"),
			Header("eol_count"),
			Header("status"),
		},
		ColumnAlignment: []Align{AlignLeft, AlignRight, AlignRight, AlignLeft},
	}

	for _, s := range result.Services {
		data.Rows = append(data.Rows, []string{
			s.ServiceID,
			strconv.Itoa(s.Frameworks),
			strconv.Itoa(s.EOLCount),
			status(s, result.DryRun),
		})
	}

	return data
}

func status(s reconciler.ServiceResult, dryRun bool) string {
	switch {
	case s.Err != nil:
		return "failed: " + s.Err.Error()
	case s.Updated:
		return "updated"
	case dryRun:
		return "dry run"
	default:
		return "skipped"
	}
}

// FormatResult writes the pass result in the given format. Tables are
// followed by a one-line summary; JSON and YAML encode the whole result.
func FormatResult(w io.Writer, result *reconciler.Result, format Format) error {
	formatter := NewFormatter(format)

	switch format {
	case FormatJSON, FormatYAML:
		return formatter.Format(w, result)
	default:
		if err := formatter.Format(w, ResultToTableData(result)); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w, result.Summary())
		return err
	}
}
