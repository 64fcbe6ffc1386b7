// Package metrics merges normalized Traffic or Search sheets into one
// deduplicated table and answers ranking queries over it.
package metrics

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/jupyter/metrics-builder/pkg/pipeline/core"
	"github.com/jupyter/metrics-builder/pkg/pipeline/dedup"
	"github.com/jupyter/metrics-builder/pkg/pipeline/schema"
	"github.com/jupyter/metrics-builder/pkg/pipeline/table"
)

// All asks a ranking query for every pair instead of the top n.
const All = -1

// Table is a merged, deduplicated sheet of a single schema.
type Table struct {
	*table.View

	schema    schema.Schema
	inputRows int
}

// Count is one ranked key and its total.
type Count struct {
	Key   string
	Total int
}

type buildConfig struct {
	schema schema.Schema
	names  []string
}

// Option configures Build.
type Option func(*buildConfig)

// WithSchema fixes the expected schema instead of taking it from the first source.
func WithSchema(s schema.Schema) Option {
	return func(c *buildConfig) { c.schema = s }
}

// WithNames labels the views passed to Build for error messages, by position.
func WithNames(names ...string) Option {
	return func(c *buildConfig) { c.names = names }
}

// Build normalizes every view, concatenates them and deduplicates the result.
//
// The first view (or WithSchema) establishes the schema; a view that does not
// carry that schema's columns fails the whole build with core.ErrSchemaMismatch.
func Build(views []*table.View, opts ...Option) (*Table, error) {
	var cfg buildConfig
	for _, o := range opts {
		o(&cfg)
	}
	if len(views) == 0 {
		return nil, fmt.Errorf("build: no sources: %w", core.ErrEmptyInput)
	}
	name := func(i int) string {
		if i < len(cfg.names) {
			return cfg.names[i]
		}
		return ""
	}

	want := cfg.schema
	if want != 0 && !want.Valid() {
		return nil, fmt.Errorf("build: invalid schema hint %v", want)
	}

	var rows [][]string
	for i, v := range views {
		headers := v.Headers()
		if want == 0 {
			s, err := schema.DetectHeaders(headers)
			if err != nil {
				return nil, &core.SchemaError{Source: sourceLabel(name(i), i), Headers: headers}
			}
			want = s
		}
		if !want.Matches(headers) {
			got := "unrecognized"
			if s, err := schema.DetectHeaders(headers); err == nil {
				got = s.String()
			}
			return nil, &core.MismatchError{Source: name(i), Index: i, Want: want.String(), Got: got}
		}

		norm, err := schema.NormalizeAs(v, want)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sourceLabel(name(i), i), err)
		}
		if want == schema.Traffic {
			if err := checkViews(norm); err != nil {
				return nil, fmt.Errorf("%s: %w", sourceLabel(name(i), i), err)
			}
		}
		rows = append(rows, norm.Records()...)
	}

	merged, err := table.FromParts(want.Columns(), rows)
	if err != nil {
		return nil, err
	}
	clean, err := dedup.Resolve(merged)
	if err != nil {
		return nil, err
	}
	return &Table{View: clean, schema: want, inputRows: len(rows)}, nil
}

// checkViews parses every Views cell of one normalized source so a bad cell
// is reported against that source's own row numbers.
func checkViews(v *table.View) error {
	col, err := v.Column(schema.ColViews)
	if err != nil {
		return err
	}
	for i, cell := range col {
		if _, err := schema.ParseCount(cell); err != nil {
			return &core.ValueError{Column: schema.ColViews, Row: i, Value: cell, Err: err}
		}
	}
	return nil
}

// BuildSources loads every source and builds one table from them.
func BuildSources(ctx context.Context, sources []core.Source, opts ...Option) (*Table, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("build: no sources: %w", core.ErrEmptyInput)
	}
	views := make([]*table.View, 0, len(sources))
	names := make([]string, 0, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := src.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.Name(), err)
		}
		v, err := table.New(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.Name(), err)
		}
		views = append(views, v)
		names = append(names, src.Name())
	}
	return Build(views, append([]Option{WithNames(names...)}, opts...)...)
}

func sourceLabel(name string, i int) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("source #%d", i)
}

// Schema is the schema every row of the table conforms to.
func (t *Table) Schema() schema.Schema { return t.schema }

// InputRows is the number of normalized rows before deduplication.
func (t *Table) InputRows() int { return t.inputRows }

// IsTraffic reports whether the header carries the Traffic columns.
func (t *Table) IsTraffic() bool { return schema.Traffic.Matches(t.Headers()) }

// IsSearch reports whether the header carries the Search columns.
func (t *Table) IsSearch() bool { return schema.Search.Matches(t.Headers()) }

// TotalViews sums the Views column.
func (t *Table) TotalViews() (int, error) {
	if err := t.require("total views", schema.Traffic); err != nil {
		return 0, err
	}
	views, err := t.Column(schema.ColViews)
	if err != nil {
		return 0, err
	}
	total := 0
	for i, cell := range views {
		n, err := schema.ParseCount(cell)
		if err != nil {
			return 0, &core.ValueError{Column: schema.ColViews, Row: i, Value: cell, Err: err}
		}
		total += n
	}
	return total, nil
}

// MostPopularPages sums Views per Path, highest first. Keys with equal totals
// keep the order in which they first appear in the table. n < 0 returns every page.
func (t *Table) MostPopularPages(n int) ([]Count, error) {
	if err := t.require("most popular pages", schema.Traffic); err != nil {
		return nil, err
	}
	return t.sumBy(schema.ColPath, n)
}

// MostPopularVersions sums Views per Version, ordered like MostPopularPages.
func (t *Table) MostPopularVersions(n int) ([]Count, error) {
	if err := t.require("most popular versions", schema.Traffic); err != nil {
		return nil, err
	}
	return t.sumBy(schema.ColVersion, n)
}

// MostPopularQueries counts rows per Query. Total Results is ignored: every
// row is one search.
func (t *Table) MostPopularQueries(n int) ([]Count, error) {
	if err := t.require("most popular queries", schema.Search); err != nil {
		return nil, err
	}
	queries, err := t.Column(schema.ColQuery)
	if err != nil {
		return nil, err
	}
	var c counter
	for _, q := range queries {
		c.add(q, 1)
	}
	return c.mostCommon(n), nil
}

func (t *Table) sumBy(keyCol string, n int) ([]Count, error) {
	keys, err := t.Column(keyCol)
	if err != nil {
		return nil, err
	}
	views, err := t.Column(schema.ColViews)
	if err != nil {
		return nil, err
	}
	var c counter
	for i, k := range keys {
		v, err := schema.ParseCount(views[i])
		if err != nil {
			return nil, &core.ValueError{Column: schema.ColViews, Row: i, Value: views[i], Err: err}
		}
		c.add(k, v)
	}
	return c.mostCommon(n), nil
}

func (t *Table) require(op string, s schema.Schema) error {
	if s.Matches(t.Headers()) {
		return nil
	}
	return &core.WrongSchemaError{Op: op, Want: s.String(), Got: t.schema.String()}
}

// counter accumulates totals per key and remembers first-seen order.
type counter struct {
	order  []string
	totals map[string]int
}

func (c *counter) add(key string, n int) {
	if c.totals == nil {
		c.totals = make(map[string]int)
	}
	if _, ok := c.totals[key]; !ok {
		c.order = append(c.order, key)
	}
	c.totals[key] += n
}

func (c *counter) mostCommon(n int) []Count {
	out := make([]Count, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, Count{Key: k, Total: c.totals[k]})
	}
	slices.SortStableFunc(out, func(a, b Count) int {
		return cmp.Compare(b.Total, a.Total)
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
