package metrics_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupyter/metrics-builder/pkg/pipeline/core"
	"github.com/jupyter/metrics-builder/pkg/pipeline/metrics"
	"github.com/jupyter/metrics-builder/pkg/pipeline/schema"
	"github.com/jupyter/metrics-builder/pkg/pipeline/table"
)

func view(t *testing.T, rows ...[]string) *table.View {
	t.Helper()
	v, err := table.New(rows)
	require.NoError(t, err)
	return v
}

var (
	trafficHeader = []string{"Date", "Version", "Path", "Views"}
	searchHeader  = []string{"Created Date", "Query", "Total Results"}
)

func TestBuild(t *testing.T) {
	t.Run("no sources", func(t *testing.T) {
		_, err := metrics.Build(nil)
		require.ErrorIs(t, err, core.ErrEmptyInput)
	})

	t.Run("merges and normalizes sources", func(t *testing.T) {
		a := view(t,
			[]string{"Path", "Views", "Date", "Version", "Project"},
			[]string{"/a", "10", "2024-01-01 00:00:00", "latest", "jupyter"},
		)
		b := view(t,
			trafficHeader,
			[]string{"2024-01-01 00:00:00", "latest", "/a", "25"},
			[]string{"2024-01-02 00:00:00", "latest", "/b", "3"},
		)
		tbl, err := metrics.Build([]*table.View{a, b})
		require.NoError(t, err)
		assert.Equal(t, schema.Traffic, tbl.Schema())
		assert.Equal(t, trafficHeader, tbl.Headers())
		assert.Equal(t, [][]string{
			{"2024-01-01 00:00:00", "latest", "/a", "25"},
			{"2024-01-02 00:00:00", "latest", "/b", "3"},
		}, tbl.Records())
		assert.Equal(t, 3, tbl.InputRows())
	})

	t.Run("search duplicates", func(t *testing.T) {
		tbl, err := metrics.Build([]*table.View{
			view(t, searchHeader, []string{"2024-01-01", "foo", "5"}),
			view(t, searchHeader, []string{"2024-01-01", "foo", "5"}, []string{"2024-01-01", "foo", "9"}),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, tbl.Len())
	})

	t.Run("cross schema rejected", func(t *testing.T) {
		_, err := metrics.Build([]*table.View{
			view(t, trafficHeader, []string{"2024-01-01", "v1", "/a", "1"}),
			view(t, searchHeader, []string{"2024-01-01", "foo", "5"}),
		}, metrics.WithNames("traffic.csv", "search.csv"))
		require.ErrorIs(t, err, core.ErrSchemaMismatch)

		var me *core.MismatchError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, "search.csv", me.Source)
		assert.Equal(t, "traffic", me.Want)
		assert.Equal(t, "search", me.Got)
	})

	t.Run("unrecognized first source", func(t *testing.T) {
		_, err := metrics.Build([]*table.View{view(t, []string{"a"})})
		require.ErrorIs(t, err, core.ErrUnrecognizedSchema)
	})

	t.Run("schema hint", func(t *testing.T) {
		_, err := metrics.Build([]*table.View{
			view(t, trafficHeader, []string{"2024-01-01", "v1", "/a", "1"}),
		}, metrics.WithSchema(schema.Search))
		require.ErrorIs(t, err, core.ErrSchemaMismatch)

		both := view(t,
			[]string{"Date", "Version", "Path", "Views", "Created Date", "Query", "Total Results"},
			[]string{"d", "v", "/p", "1", "c", "q", "2"},
		)
		tbl, err := metrics.Build([]*table.View{both}, metrics.WithSchema(schema.Search))
		require.NoError(t, err)
		assert.True(t, tbl.IsSearch())
		assert.Equal(t, [][]string{{"c", "q", "2"}}, tbl.Records())
	})

	t.Run("header only", func(t *testing.T) {
		tbl, err := metrics.Build([]*table.View{view(t, trafficHeader)})
		require.NoError(t, err)
		assert.True(t, tbl.IsEmpty())

		total, err := tbl.TotalViews()
		require.NoError(t, err)
		assert.Zero(t, total)
		pages, err := tbl.MostPopularPages(metrics.All)
		require.NoError(t, err)
		assert.Empty(t, pages)
		versions, err := tbl.MostPopularVersions(5)
		require.NoError(t, err)
		assert.Empty(t, versions)

		search, err := metrics.Build([]*table.View{view(t, searchHeader)})
		require.NoError(t, err)
		queries, err := search.MostPopularQueries(metrics.All)
		require.NoError(t, err)
		assert.Empty(t, queries)
	})
}

func TestBuildSources(t *testing.T) {
	src := func(name string, rows ...[]string) core.Source {
		return core.SourceFunc{Label: name, Fn: func(context.Context) ([][]string, error) { return rows, nil }}
	}

	t.Run("loads all sources", func(t *testing.T) {
		tbl, err := metrics.BuildSources(context.Background(), []core.Source{
			src("a.csv", trafficHeader, []string{"2024-01-01", "v1", "/a", "10"}),
			src("b.csv", trafficHeader, []string{"2024-01-01", "v1", "/a", "25"}),
		})
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"2024-01-01", "v1", "/a", "25"}}, tbl.Records())
	})

	t.Run("load error names the source", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := metrics.BuildSources(context.Background(), []core.Source{
			core.SourceFunc{Label: "bad.csv", Fn: func(context.Context) ([][]string, error) { return nil, boom }},
		})
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "bad.csv")
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := metrics.BuildSources(context.Background(), []core.Source{src("empty.csv")})
		require.ErrorIs(t, err, core.ErrEmptyInput)
	})

	t.Run("mismatch names the source", func(t *testing.T) {
		_, err := metrics.BuildSources(context.Background(), []core.Source{
			src("a.csv", trafficHeader),
			src("b.csv", searchHeader),
		})
		var me *core.MismatchError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, "b.csv", me.Source)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := metrics.BuildSources(ctx, []core.Source{src("a.csv", trafficHeader)})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func trafficTable(t *testing.T, rows ...[]string) *metrics.Table {
	t.Helper()
	tbl, err := metrics.Build([]*table.View{view(t, append([][]string{trafficHeader}, rows...)...)})
	require.NoError(t, err)
	return tbl
}

func searchTable(t *testing.T, rows ...[]string) *metrics.Table {
	t.Helper()
	tbl, err := metrics.Build([]*table.View{view(t, append([][]string{searchHeader}, rows...)...)})
	require.NoError(t, err)
	return tbl
}

func TestRankings(t *testing.T) {
	traffic := trafficTable(t,
		[]string{"2024-01-01", "v1", "/a", "10"},
		[]string{"2024-01-02", "v1", "/a", "5"},
		[]string{"2024-01-01", "v2", "/b", "3"},
	)

	t.Run("pages", func(t *testing.T) {
		got, err := traffic.MostPopularPages(metrics.All)
		require.NoError(t, err)
		assert.Equal(t, []metrics.Count{{Key: "/a", Total: 15}, {Key: "/b", Total: 3}}, got)
	})

	t.Run("versions", func(t *testing.T) {
		got, err := traffic.MostPopularVersions(metrics.All)
		require.NoError(t, err)
		assert.Equal(t, []metrics.Count{{Key: "v1", Total: 15}, {Key: "v2", Total: 3}}, got)
	})

	t.Run("total views", func(t *testing.T) {
		got, err := traffic.TotalViews()
		require.NoError(t, err)
		assert.Equal(t, 18, got)
	})

	t.Run("top n", func(t *testing.T) {
		got, err := traffic.MostPopularPages(1)
		require.NoError(t, err)
		assert.Equal(t, []metrics.Count{{Key: "/a", Total: 15}}, got)

		got, err = traffic.MostPopularPages(0)
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = traffic.MostPopularPages(10)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("ties keep first-seen order", func(t *testing.T) {
		tbl := trafficTable(t,
			[]string{"2024-01-01", "v1", "/z", "4"},
			[]string{"2024-01-01", "v1", "/m", "9"},
			[]string{"2024-01-01", "v1", "/a", "4"},
		)
		got, err := tbl.MostPopularPages(metrics.All)
		require.NoError(t, err)
		assert.Equal(t, []metrics.Count{
			{Key: "/m", Total: 9},
			{Key: "/z", Total: 4},
			{Key: "/a", Total: 4},
		}, got)
	})

	t.Run("queries count rows not results", func(t *testing.T) {
		tbl := searchTable(t,
			[]string{"2024-01-01", "q1", "100"},
			[]string{"2024-01-02", "q1", "1"},
		)
		got, err := tbl.MostPopularQueries(metrics.All)
		require.NoError(t, err)
		assert.Equal(t, []metrics.Count{{Key: "q1", Total: 2}}, got)
	})

	t.Run("query ties keep first-seen order", func(t *testing.T) {
		tbl := searchTable(t,
			[]string{"2024-01-01", "b", "1"},
			[]string{"2024-01-01", "a", "1"},
			[]string{"2024-01-02", "a", "1"},
			[]string{"2024-01-02", "c", "1"},
			[]string{"2024-01-03", "b", "1"},
		)
		got, err := tbl.MostPopularQueries(metrics.All)
		require.NoError(t, err)
		assert.Equal(t, []metrics.Count{{Key: "b", Total: 2}, {Key: "a", Total: 2}, {Key: "c", Total: 1}}, got)
	})
}

func TestWrongSchema(t *testing.T) {
	traffic := trafficTable(t, []string{"2024-01-01", "v1", "/a", "10"})
	search := searchTable(t, []string{"2024-01-01", "q", "1"})

	assert.True(t, traffic.IsTraffic())
	assert.False(t, traffic.IsSearch())
	assert.True(t, search.IsSearch())
	assert.False(t, search.IsTraffic())

	_, err := search.TotalViews()
	require.ErrorIs(t, err, core.ErrWrongSchema)
	_, err = search.MostPopularPages(metrics.All)
	require.ErrorIs(t, err, core.ErrWrongSchema)
	_, err = search.MostPopularVersions(metrics.All)
	require.ErrorIs(t, err, core.ErrWrongSchema)
	_, err = traffic.MostPopularQueries(metrics.All)
	require.ErrorIs(t, err, core.ErrWrongSchema)
}

func TestBadViewsFailBuild(t *testing.T) {
	_, err := metrics.Build([]*table.View{view(t, trafficHeader, []string{"2024-01-01", "v1", "/a", "lots"})})
	require.ErrorIs(t, err, core.ErrValueParse)
}

func TestBadViewsNameSourceRow(t *testing.T) {
	a := view(t, trafficHeader,
		[]string{"2024-01-01", "v1", "/a", "3"},
		[]string{"2024-01-01", "v1", "/b", "4"},
	)
	b := view(t, []string{"Path", "Views", "Date", "Version"},
		[]string{"/c", "1", "2024-01-02", "v1"},
		[]string{"/d", "many", "2024-01-02", "v1"},
	)
	_, err := metrics.Build([]*table.View{a, b}, metrics.WithNames("a.csv", "b.csv"))
	require.ErrorIs(t, err, core.ErrValueParse)
	assert.Contains(t, err.Error(), "b.csv: row 1 ")

	var ve *core.ValueError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 1, ve.Row)
	assert.Equal(t, "many", ve.Value)
}
