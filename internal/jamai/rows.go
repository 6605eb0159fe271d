// Row normalization for the two wire shapes the hosted table emits.
//
// Depending on the backing SDK generation, a listed row arrives either as a
// bare column map ({"User": {"value": "..."}, "Updated at": "..."}), or as an
// object with an explicit columns envelope ({"columns": {"User": {"text":
// "..."}}, "updated_at": "..."}). Both collapse into Row here, at the service
// boundary, so nothing downstream branches on representation.
package jamai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Cell is one generated output cell of an appended row.
type Cell struct {
	Text string `json:"text"`
}

// AddedRow is a row returned by AddRows, with generated output columns.
// Column order as documented by the service is preserved so callers can fall
// back to "the last column" when the expected output column is missing.
type AddedRow struct {
	Columns map[string]Cell
	order   []string
}

// Text returns the named column's generated text.
func (r AddedRow) Text(name string) (string, bool) {
	c, ok := r.Columns[name]
	return c.Text, ok
}

// LastText returns the final column's text in wire order. The output column
// of a generative table is conventionally last.
func (r AddedRow) LastText() (string, bool) {
	if len(r.order) == 0 {
		return "", false
	}
	return r.Columns[r.order[len(r.order)-1]].Text, true
}

// UnmarshalJSON decodes {"columns": {...}} preserving column order.
func (r *AddedRow) UnmarshalJSON(b []byte) error {
	var envelope struct {
		Columns json.RawMessage `json:"columns"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return err
	}
	r.Columns = make(map[string]Cell)
	r.order = nil
	if len(envelope.Columns) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(envelope.Columns))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("jamai: columns is not an object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)
		var cell Cell
		if err := dec.Decode(&cell); err != nil {
			return err
		}
		r.Columns[name] = cell
		r.order = append(r.order, name)
	}
	return nil
}

// Row is the normalized shape of one listed table row.
type Row struct {
	Columns   map[string]string
	UpdatedAt string
	CreatedAt string
}

// Text returns the named column's value, or "" when absent.
func (r Row) Text(name string) string {
	return r.Columns[name]
}

// Has reports whether the row carries the named column.
func (r Row) Has(name string) bool {
	_, ok := r.Columns[name]
	return ok
}

// Timestamp returns the update timestamp, falling back to creation time.
func (r Row) Timestamp() string {
	if r.UpdatedAt != "" {
		return r.UpdatedAt
	}
	return r.CreatedAt
}

// UnmarshalJSON accepts both the bare-map and the columns-envelope row
// representations.
func (r *Row) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	r.Columns = make(map[string]string)
	r.UpdatedAt = ""
	r.CreatedAt = ""

	if rawCols, ok := fields["columns"]; ok {
		// Envelope shape: cells carry "text", timestamps are snake_case
		// top-level fields.
		var cols map[string]json.RawMessage
		if err := json.Unmarshal(rawCols, &cols); err != nil {
			return err
		}
		for name, raw := range cols {
			r.Columns[name] = cellString(raw)
		}
		r.UpdatedAt = scalarString(fields["updated_at"])
		r.CreatedAt = scalarString(fields["created_at"])
		return nil
	}

	// Bare-map shape: every key is a column except the bookkeeping
	// timestamps, and cells carry "value".
	for name, raw := range fields {
		switch name {
		case "Updated at", "updated_at":
			r.UpdatedAt = scalarString(raw)
		case "Created at", "created_at":
			r.CreatedAt = scalarString(raw)
		default:
			r.Columns[name] = cellString(raw)
		}
	}
	return nil
}

// cellString extracts the textual payload of a cell that may be
// {"text": s}, {"value": v}, or a bare scalar.
func cellString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var cell struct {
		Text  *string         `json:"text"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &cell); err == nil {
		if cell.Text != nil {
			return *cell.Text
		}
		if len(cell.Value) > 0 {
			return scalarString(cell.Value)
		}
	}
	return scalarString(raw)
}

// scalarString renders a raw JSON scalar as a plain string.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	// Numbers, booleans, or anything else: keep the compact JSON text.
	return strings.TrimSpace(string(raw))
}
