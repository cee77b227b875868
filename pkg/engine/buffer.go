package engine

import (
	"github.com/streamsql/workbench/pkg/models"
)

// ResultBuffer accumulates the rows shown to the user. Bounded (batch)
// results grow without limit; unbounded (streaming) results are windowed to
// the last maxRows rows, tracking how many were evicted so consumers can
// reconstruct absolute row numbers.
type ResultBuffer struct {
	maxRows int // 0 means unbounded
	rows    []models.Row
	offset  int
	total   int
}

// NewResultBuffer creates a buffer. maxRows of zero disables windowing.
func NewResultBuffer(maxRows int) *ResultBuffer {
	return &ResultBuffer{maxRows: maxRows}
}

// Append adds rows in order, evicting from the front once the window cap is
// exceeded. Eviction only ever drops a prefix; order is preserved.
func (b *ResultBuffer) Append(rows []models.Row) {
	if len(rows) == 0 {
		return
	}
	b.total += len(rows)
	b.rows = append(b.rows, rows...)
	if b.maxRows > 0 && len(b.rows) > b.maxRows {
		drop := len(b.rows) - b.maxRows
		b.rows = append(b.rows[:0:0], b.rows[drop:]...)
		b.offset += drop
	}
}

// Rows returns the current window. The slice is shared; callers must not
// mutate it.
func (b *ResultBuffer) Rows() []models.Row {
	return b.rows
}

// Len returns the number of rows currently held.
func (b *ResultBuffer) Len() int {
	return len(b.rows)
}

// Offset returns the number of rows evicted from the front so far.
func (b *ResultBuffer) Offset() int {
	return b.offset
}

// Total returns the number of rows ever appended.
func (b *ResultBuffer) Total() int {
	return b.total
}
