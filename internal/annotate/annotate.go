// Package annotate turns duplicate clusters into per-row labels and appends
// them to a table without touching the original.
package annotate

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/KaramelBytes/dedupe-cli/internal/dedupe"
	"github.com/KaramelBytes/dedupe-cli/internal/table"
)

const (
	GroupColumn = "duplicate_group"
	RowsColumn  = "duplicate_rows"
	// Unique is the group label of a row that is in no cluster.
	Unique = -1
)

// ErrColumnExists is returned when the table already has an output column.
var ErrColumnExists = errors.New("output column already exists")

// Annotation is the duplicate label of one row.
type Annotation struct {
	// Group is Unique or the 1-based position of the cluster in emission order.
	Group int
	// Rows are the sorted 1-based row numbers of every cluster member, self included.
	Rows []int
}

// RowsString renders Rows as "1, 2, 5"; unique rows render empty.
func (a Annotation) RowsString() string {
	parts := make([]string, len(a.Rows))
	for i, r := range a.Rows {
		parts[i] = strconv.Itoa(r)
	}
	return strings.Join(parts, ", ")
}

// Annotate labels rowCount rows from clusters. Indices outside [0,rowCount)
// are ignored.
func Annotate(rowCount int, clusters []dedupe.Cluster) []Annotation {
	out := make([]Annotation, rowCount)
	for i := range out {
		out[i].Group = Unique
	}
	for g, c := range clusters {
		rows := make([]int, 0, len(c))
		for _, idx := range c {
			rows = append(rows, idx+1)
		}
		sort.Ints(rows)
		for _, idx := range c {
			if idx < 0 || idx >= rowCount {
				continue
			}
			out[idx] = Annotation{Group: g + 1, Rows: rows}
		}
	}
	return out
}

// Summary aggregates the labels of a run.
type Summary struct {
	Rows             int
	DuplicateRecords int
	Groups           int
	LargestGroup     int
}

// Summarize counts duplicates and groups across annotations.
func Summarize(anns []Annotation) Summary {
	s := Summary{Rows: len(anns)}
	sizes := map[int]int{}
	for _, a := range anns {
		if a.Group == Unique {
			continue
		}
		s.DuplicateRecords++
		sizes[a.Group]++
	}
	s.Groups = len(sizes)
	for _, n := range sizes {
		if n > s.LargestGroup {
			s.LargestGroup = n
		}
	}
	return s
}

// Apply returns a copy of f with the group and rows columns appended.
func Apply(f *table.Frame, anns []Annotation) (*table.Frame, error) {
	for _, h := range f.Header {
		if strings.EqualFold(h, GroupColumn) || strings.EqualFold(h, RowsColumn) {
			return nil, fmt.Errorf("%w: %s", ErrColumnExists, h)
		}
	}
	if len(anns) != f.Rows() {
		return nil, fmt.Errorf("annotations cover %d rows, table has %d", len(anns), f.Rows())
	}
	ncol := f.Cols()
	out := &table.Frame{
		Name:     f.Name,
		Header:   append(append([]string{}, f.Header...), GroupColumn, RowsColumn),
		Data:     make([][]table.Value, f.Rows()),
		Total:    f.Total,
		Warnings: append([]string(nil), f.Warnings...),
	}
	for i := range f.Data {
		row := make([]table.Value, ncol+2)
		for j := 0; j < ncol; j++ {
			row[j] = f.Field(i, j)
		}
		row[ncol] = table.NumberValue(float64(anns[i].Group))
		row[ncol+1] = table.TextValue(anns[i].RowsString())
		out.Data[i] = row
	}
	return out, nil
}
