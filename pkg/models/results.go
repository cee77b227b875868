package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ResultType describes the state of a statement's result stream as reported by
// the gateway. The value set is defined by the remote gateway and must be
// treated as open; unknown values keep the poll loop alive.
type ResultType string

const (
	ResultTypeNotReady ResultType = "NOT_READY"
	ResultTypePayload  ResultType = "PAYLOAD"
	ResultTypeEOS      ResultType = "EOS"
	ResultTypeError    ResultType = "ERROR"
	ResultTypeCanceled ResultType = "CANCELED"
	ResultTypeFinished ResultType = "FINISHED"
)

// Terminal reports whether this result type ends a healthy stream.
func (rt ResultType) Terminal() bool {
	return rt == ResultTypeEOS || rt == ResultTypeFinished
}

// StatementResult is one page of a statement's result stream, as returned by
// GET /sessions/{h}/operations/{op}/result/{token}.
type StatementResult struct {
	ResultType    ResultType      `json:"resultType"`
	ResultKind    string          `json:"resultKind,omitempty"`
	IsQueryResult bool            `json:"isQueryResult,omitempty"`
	JobID         string          `json:"jobID,omitempty"`
	NextResultURI string          `json:"nextResultUri,omitempty"`
	NextToken     *int64          `json:"nextResultToken,omitempty"`
	Results       *ResultsPayload `json:"results,omitempty"`
}

// ResultsPayload carries the columns and raw rows of one page. Rows are kept
// raw because the gateway emits several shapes; NormalizeRows canonicalizes
// them exactly once per page.
type ResultsPayload struct {
	Columns []Column          `json:"columns,omitempty"`
	Data    []json.RawMessage `json:"data,omitempty"`
}

// Column describes one result column.
type Column struct {
	Name        string      `json:"name"`
	LogicalType LogicalType `json:"logicalType"`
	Comment     string      `json:"comment,omitempty"`
}

// LogicalType is the column type as reported by the gateway. Depending on the
// gateway version it arrives either as a plain string ("VARCHAR") or as an
// object ({"type": "VARCHAR", "nullable": true}); both decode into this form.
type LogicalType struct {
	Type     string
	Nullable bool
}

// UnmarshalJSON accepts both the string and the object encoding.
func (lt *LogicalType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		lt.Type = s
		lt.Nullable = true
		return nil
	}
	var obj struct {
		Type     string `json:"type"`
		Nullable bool   `json:"nullable"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("decode logical type: %w", err)
	}
	lt.Type = obj.Type
	lt.Nullable = obj.Nullable
	return nil
}

// MarshalJSON emits the object encoding.
func (lt LogicalType) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string `json:"type"`
		Nullable bool   `json:"nullable"`
	}{lt.Type, lt.Nullable})
}

// Row is the canonical row representation: an ordered sequence of scalar
// values aligned with the page's columns.
type Row []interface{}

// rowObject is the envelope shape some gateway versions wrap rows in.
type rowObject struct {
	Kind   string        `json:"kind"`
	Fields []interface{} `json:"fields"`
}

// NormalizeRows canonicalizes a page's raw rows. A row arrives as either an
// object with a "fields" array, a bare array of scalars, or an object keyed by
// column name; all three produce the same ordered Row. Columns are needed only
// for the keyed shape.
func NormalizeRows(data []json.RawMessage, columns []Column) ([]Row, error) {
	rows := make([]Row, 0, len(data))
	for i, raw := range data {
		row, err := normalizeRow(raw, columns)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func normalizeRow(raw json.RawMessage, columns []Column) (Row, error) {
	trimmed := strings.TrimLeft(string(raw), " \t\r\n")
	if strings.HasPrefix(trimmed, "[") {
		var arr []interface{}
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, err
		}
		return Row(arr), nil
	}

	var obj rowObject
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Fields != nil {
		return Row(obj.Fields), nil
	}

	var keyed map[string]interface{}
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, err
	}
	row := make(Row, len(columns))
	for i, col := range columns {
		row[i] = keyed[col.Name]
	}
	return row, nil
}

// SchemaField is one field of a published result schema.
type SchemaField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ResultSchema is the schema the engine publishes alongside rows.
type ResultSchema struct {
	Fields []SchemaField `json:"fields"`
}

// SchemaFromColumns derives the published schema from gateway columns,
// lower-casing the logical type names.
func SchemaFromColumns(columns []Column) ResultSchema {
	fields := make([]SchemaField, len(columns))
	for i, col := range columns {
		fields[i] = SchemaField{
			Name: col.Name,
			Type: strings.ToLower(col.LogicalType.Type),
		}
	}
	return ResultSchema{Fields: fields}
}

// SnapshotMetadata describes the state of a published result buffer.
type SnapshotMetadata struct {
	IsStreaming bool `json:"isStreaming"`
	IsComplete  bool `json:"isComplete"`
	// Offset is the number of rows evicted from the front of the buffer so
	// far; Offset + position-in-buffer reconstructs absolute row numbers.
	Offset int `json:"offset"`
}

// ResultSnapshot is one incremental publication of a statement's accumulated
// result buffer.
type ResultSnapshot struct {
	Schema   ResultSchema     `json:"schema"`
	Rows     []Row            `json:"data"`
	Metadata SnapshotMetadata `json:"metadata"`
	JobID    string           `json:"jobID,omitempty"`
}
