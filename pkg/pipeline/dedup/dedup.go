// Package dedup removes duplicate rows from a normalized sheet and resolves
// overlapping Traffic exports.
package dedup

import (
	"strconv"
	"strings"

	"github.com/jupyter/metrics-builder/pkg/pipeline/core"
	"github.com/jupyter/metrics-builder/pkg/pipeline/schema"
	"github.com/jupyter/metrics-builder/pkg/pipeline/table"
)

// Resolve returns a new view with the same header and a reduced row set.
//
// Rows identical to an earlier row are dropped. For Traffic, rows sharing
// (Date, Version, Path) collapse to the one with the most Views; the first such
// row in input order wins a tie. Search rows only lose exact duplicates.
func Resolve(v *table.View) (*table.View, error) {
	headers := v.Headers()
	s, err := schema.DetectHeaders(headers)
	if err != nil {
		return nil, err
	}

	rows := uniqueRows(v)
	if s == schema.Traffic {
		rows, err = resolveTraffic(v, rows)
		if err != nil {
			return nil, err
		}
	}
	return table.FromParts(headers, rows)
}

func uniqueRows(v *table.View) [][]string {
	seen := make(map[string]struct{}, v.Len())
	out := make([][]string, 0, v.Len())
	for row := range v.Rows() {
		k := rowKey(row)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}
	return out
}

func resolveTraffic(v *table.View, rows [][]string) ([][]string, error) {
	var key [3]int
	for i, c := range []string{schema.ColDate, schema.ColVersion, schema.ColPath} {
		j, err := v.ColumnIndex(c)
		if err != nil {
			return nil, err
		}
		key[i] = j
	}
	iviews, err := v.ColumnIndex(schema.ColViews)
	if err != nil {
		return nil, err
	}

	// winner maps a (date, version, path) key to the index of its surviving row.
	winner := make(map[string]int, len(rows))
	best := make(map[string]int, len(rows))
	for i, row := range rows {
		views, err := schema.ParseCount(row[iviews])
		if err != nil {
			return nil, &core.ValueError{
				Column: schema.ColViews,
				Row:    i,
				Key:    strings.Join([]string{row[key[0]], row[key[1]], row[key[2]]}, ", "),
				Value:  row[iviews],
				Err:    err,
			}
		}
		k := rowKey([]string{row[key[0]], row[key[1]], row[key[2]]})
		if cur, ok := best[k]; ok && views <= cur {
			continue
		}
		best[k] = views
		winner[k] = i
	}

	out := make([][]string, 0, len(winner))
	for i, row := range rows {
		k := rowKey([]string{row[key[0]], row[key[1]], row[key[2]]})
		if winner[k] == i {
			out = append(out, row)
		}
	}
	return out, nil
}

// rowKey length-prefixes each cell so distinct rows never share a key.
func rowKey(cells []string) string {
	var b strings.Builder
	for _, c := range cells {
		b.WriteString(strconv.Itoa(len(c)))
		b.WriteByte(':')
		b.WriteString(c)
	}
	return b.String()
}
