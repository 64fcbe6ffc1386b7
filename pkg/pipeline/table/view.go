// Package table provides a read-only, header-indexed view over rows of string cells.
package table

import (
	"iter"
	"slices"

	"github.com/jupyter/metrics-builder/pkg/pipeline/core"
)

// View is an immutable header + rows sheet. The zero value is not usable; build
// one with New.
type View struct {
	headers []string
	index   map[string]int
	rows    [][]string
}

// New builds a View from raw rows where rows[0] is the header.
//
// The input is copied, so later changes to rows do not reach the View. A header
// with no data rows is valid and yields an empty View.
func New(rows [][]string) (*View, error) {
	if len(rows) == 0 {
		return nil, core.ErrEmptyInput
	}
	return FromParts(rows[0], rows[1:])
}

// FromParts builds a View from a separate header and data rows.
func FromParts(headers []string, data [][]string) (*View, error) {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		if _, dup := index[h]; dup {
			return nil, &core.RowError{Row: -1, Column: h, Err: core.ErrDuplicateColumn}
		}
		index[h] = i
	}

	out := make([][]string, len(data))
	for i, row := range data {
		if len(row) != len(headers) {
			return nil, &core.RowError{Row: i, Want: len(headers), Got: len(row), Err: core.ErrRowArity}
		}
		out[i] = slices.Clone(row)
	}

	return &View{
		headers: slices.Clone(headers),
		index:   index,
		rows:    out,
	}, nil
}

// Headers returns a copy of the column names in order.
func (v *View) Headers() []string {
	return slices.Clone(v.headers)
}

// Has reports whether name is one of the header names.
func (v *View) Has(name string) bool {
	_, ok := v.index[name]
	return ok
}

// ColumnIndex returns the position of the named column.
func (v *View) ColumnIndex(name string) (int, error) {
	i, ok := v.index[name]
	if !ok {
		return 0, &core.ColumnError{Column: name}
	}
	return i, nil
}

// Row returns a copy of the data row at index i.
func (v *View) Row(i int) ([]string, error) {
	if i < 0 || i >= len(v.rows) {
		return nil, &core.IndexError{Index: i, Len: len(v.rows)}
	}
	return slices.Clone(v.rows[i]), nil
}

// Column returns the cells of the named column in row order.
func (v *View) Column(name string) ([]string, error) {
	i, err := v.ColumnIndex(name)
	if err != nil {
		return nil, err
	}
	col := make([]string, len(v.rows))
	for r, row := range v.rows {
		col[r] = row[i]
	}
	return col, nil
}

// Rows yields a fresh copy of each data row in original order. The sequence can
// be ranged over any number of times.
func (v *View) Rows() iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		for _, row := range v.rows {
			if !yield(slices.Clone(row)) {
				return
			}
		}
	}
}

// Records returns copies of all data rows.
func (v *View) Records() [][]string {
	return slices.Collect(v.Rows())
}

// Len is the number of data rows; the header is not counted.
func (v *View) Len() int { return len(v.rows) }

// IsEmpty reports whether the view has no data rows.
func (v *View) IsEmpty() bool { return len(v.rows) == 0 }

// Equal reports whether two views have identical headers and rows.
func (v *View) Equal(o *View) bool {
	if v == nil || o == nil {
		return v == o
	}
	return slices.Equal(v.headers, o.headers) && slices.EqualFunc(v.rows, o.rows, slices.Equal[[]string])
}
