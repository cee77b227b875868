package main

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/streamsql/workbench/pkg/models"
)

// renderer draws result snapshots to the terminal: completed results as a
// plain table, in-flight streaming results in a live-updating area.
type renderer struct {
	maxRows int
	area    *pterm.AreaPrinter
}

func newRenderer(maxRows int) *renderer {
	return &renderer{maxRows: maxRows}
}

// publish implements engine.Publisher.
func (r *renderer) publish(snapshot models.ResultSnapshot) {
	table := renderTable(snapshot, r.maxRows)

	if snapshot.Metadata.IsComplete {
		r.close()
		if len(snapshot.Rows) > 0 || len(snapshot.Schema.Fields) > 0 {
			pterm.Println(table)
		}
		return
	}

	if r.area == nil {
		area, err := pterm.DefaultArea.Start()
		if err != nil {
			// No live terminal; fall back to printing the final state only.
			return
		}
		r.area = area
	}
	r.area.Update(table + "\n" + streamStatus(snapshot))
}

func (r *renderer) close() {
	if r.area != nil {
		_ = r.area.Stop()
		r.area = nil
	}
}

func renderTable(snapshot models.ResultSnapshot, maxRows int) string {
	header := make([]string, len(snapshot.Schema.Fields))
	for i, field := range snapshot.Schema.Fields {
		header[i] = field.Name
	}

	rows := snapshot.Rows
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[len(rows)-maxRows:]
	}

	data := pterm.TableData{header}
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = formatValue(value)
		}
		data = append(data, cells)
	}

	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return ""
	}
	return rendered
}

// streamStatus reports the visible window in absolute row numbers; the
// snapshot offset counts rows already evicted from the front of the buffer.
func streamStatus(snapshot models.ResultSnapshot) string {
	first := snapshot.Metadata.Offset + 1
	last := snapshot.Metadata.Offset + len(snapshot.Rows)
	if len(snapshot.Rows) == 0 {
		return pterm.Gray("waiting for rows...")
	}
	return pterm.Gray(fmt.Sprintf("rows %d-%d (streaming, Ctrl-C to cancel)", first, last))
}

func formatValue(value interface{}) string {
	if value == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", value)
}
