package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	mutedColor   = color.New(color.Faint)
)

// table is a minimal column-aligned text table
type table struct {
	headers []string
	rows    [][]string
	widths  []int
}

func newTable(headers ...string) *table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	return &table{headers: headers, widths: widths}
}

func (t *table) addRow(row ...string) {
	for i, cell := range row {
		if i < len(t.widths) && len(cell) > t.widths[i] {
			t.widths[i] = len(cell)
		}
	}
	t.rows = append(t.rows, row)
}

func (t *table) render(w io.Writer) {
	for i, h := range t.headers {
		headerColor.Fprintf(w, "%-*s  ", t.widths[i], h)
	}
	fmt.Fprintln(w)

	for i := range t.headers {
		fmt.Fprint(w, strings.Repeat("-", t.widths[i]), "  ")
	}
	fmt.Fprintln(w)

	for _, row := range t.rows {
		for i, cell := range row {
			if i >= len(t.widths) {
				break
			}
			// pad before colouring so escape codes do not skew the columns
			padded := fmt.Sprintf("%-*s", t.widths[i], cell)
			if c := statusColor(cell); c != nil {
				c.Fprint(w, padded)
			} else {
				fmt.Fprint(w, padded)
			}
			fmt.Fprint(w, "  ")
		}
		fmt.Fprintln(w)
	}

	if len(t.rows) == 0 {
		mutedColor.Fprintln(w, "(none)")
	}
}

func statusColor(s string) *color.Color {
	switch s {
	case entity.InstanceStatusApproved, entity.TaskStatusCompleted:
		return successColor
	case entity.TaskStatusOverdue, entity.InstanceStatusInProgress, entity.TaskStatusPending:
		return warnColor
	case entity.InstanceStatusRejected:
		return errorColor
	case entity.InstanceStatusCancelled:
		return mutedColor
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func statusOrPlain(s string) *color.Color {
	if c := statusColor(s); c != nil {
		return c
	}
	return color.New()
}
