package schema

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jupyter/metrics-builder/pkg/pipeline/core"
	"github.com/jupyter/metrics-builder/pkg/pipeline/table"
)

// Canonical column names. These are a stable contract with the CSV exports and
// are matched case-sensitively.
const (
	ColDate    = "Date"
	ColVersion = "Version"
	ColPath    = "Path"
	ColViews   = "Views"

	ColCreatedDate  = "Created Date"
	ColQuery        = "Query"
	ColTotalResults = "Total Results"
)

// Schema identifies one of the two known record shapes.
type Schema uint8

const (
	Traffic Schema = iota + 1
	Search
)

// All lists every schema in detection order.
var All = []Schema{Traffic, Search}

var (
	trafficColumns = []string{ColDate, ColVersion, ColPath, ColViews}
	searchColumns  = []string{ColCreatedDate, ColQuery, ColTotalResults}
)

// Columns returns the canonical column list, in canonical order.
func (s Schema) Columns() []string {
	switch s {
	case Traffic:
		return slices.Clone(trafficColumns)
	case Search:
		return slices.Clone(searchColumns)
	default:
		return nil
	}
}

func (s Schema) String() string {
	switch s {
	case Traffic:
		return "traffic"
	case Search:
		return "search"
	default:
		return fmt.Sprintf("Schema(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the known schemas.
func (s Schema) Valid() bool {
	return s == Traffic || s == Search
}

// Matches reports whether headers contain every required column of s. Extra
// columns and column order do not matter.
func (s Schema) Matches(headers []string) bool {
	cols := s.Columns()
	if len(cols) == 0 {
		return false
	}
	for _, c := range cols {
		if !slices.Contains(headers, c) {
			return false
		}
	}
	return true
}

// Parse maps a schema name ("traffic" or "search", any case) to a Schema.
func Parse(raw string) (Schema, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "traffic":
		return Traffic, nil
	case "search":
		return Search, nil
	default:
		return 0, fmt.Errorf("unknown schema name %q", raw)
	}
}

// ParseCount parses an integer count cell such as Views or Total Results.
// Surrounding whitespace is allowed.
func ParseCount(cell string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(cell))
}

// DetectHeaders picks the schema for a header set. Traffic is checked first, so
// a header carrying both column sets is Traffic.
func DetectHeaders(headers []string) (Schema, error) {
	for _, s := range All {
		if s.Matches(headers) {
			return s, nil
		}
	}
	return 0, &core.SchemaError{Headers: slices.Clone(headers)}
}

// Detect picks the schema of a view.
func Detect(v *table.View) (Schema, error) {
	return DetectHeaders(v.Headers())
}

// Normalize detects the schema of v and projects v onto its canonical columns.
func Normalize(v *table.View) (*table.View, error) {
	s, err := Detect(v)
	if err != nil {
		return nil, err
	}
	return NormalizeAs(v, s)
}

// NormalizeAs projects v onto the canonical columns of s. Columns are resolved
// by name, so source column order is irrelevant; extra columns are dropped.
func NormalizeAs(v *table.View, s Schema) (*table.View, error) {
	headers := v.Headers()
	if !s.Matches(headers) {
		return nil, &core.SchemaError{Headers: headers}
	}

	cols := s.Columns()
	idx := make([]int, len(cols))
	for i, c := range cols {
		j, err := v.ColumnIndex(c)
		if err != nil {
			return nil, err
		}
		idx[i] = j
	}

	rows := make([][]string, 0, v.Len())
	for src := range v.Rows() {
		row := make([]string, len(idx))
		for i, j := range idx {
			row[i] = src[j]
		}
		rows = append(rows, row)
	}
	return table.FromParts(cols, rows)
}
