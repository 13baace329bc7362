package table

import (
	"errors"
	"strings"
)

var (
	// ErrInput marks a table that could not be read or is malformed.
	ErrInput = errors.New("invalid input table")
	// ErrUnsupported indicates a format is not supported.
	ErrUnsupported = errors.New("unsupported table format")
)

// Table is the read-only view the duplicate detector needs from a dataset.
type Table interface {
	Rows() int
	Cols() int
	Field(row, col int) Value
}

// Frame is an in-memory table with a header row.
type Frame struct {
	Name     string
	Header   []string
	Data     [][]Value
	Total    int // rows seen in the source, including rows skipped by MaxRows
	Warnings []string
}

func (f *Frame) Rows() int { return len(f.Data) }

func (f *Frame) Cols() int { return len(f.Header) }

// Field returns Missing for out-of-range coordinates.
func (f *Frame) Field(row, col int) Value {
	if row < 0 || row >= len(f.Data) {
		return Value{}
	}
	r := f.Data[row]
	if col < 0 || col >= len(r) {
		return Value{}
	}
	return r[col]
}

// Record is one row plus its stable 0-based position in the source table.
type Record struct {
	Index  int
	Fields []Value
}

// Records snapshots every row of t in load order.
func Records(t Table) []Record {
	n, ncol := t.Rows(), t.Cols()
	out := make([]Record, n)
	for i := 0; i < n; i++ {
		fields := make([]Value, ncol)
		for j := 0; j < ncol; j++ {
			fields[j] = t.Field(i, j)
		}
		out[i] = Record{Index: i, Fields: fields}
	}
	return out
}

// ComparisonText joins the non-missing fields of r with single spaces.
func ComparisonText(r Record) string {
	var b strings.Builder
	for _, v := range r.Fields {
		if v.IsMissing() {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(v.String())
	}
	return b.String()
}
