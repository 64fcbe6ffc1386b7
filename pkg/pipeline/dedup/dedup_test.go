package dedup_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupyter/metrics-builder/pkg/pipeline/core"
	"github.com/jupyter/metrics-builder/pkg/pipeline/dedup"
	"github.com/jupyter/metrics-builder/pkg/pipeline/table"
)

var (
	trafficHeader = []string{"Date", "Version", "Path", "Views"}
	searchHeader  = []string{"Created Date", "Query", "Total Results"}
)

func view(t *testing.T, header []string, rows ...[]string) *table.View {
	t.Helper()
	v, err := table.FromParts(header, rows)
	require.NoError(t, err)
	return v
}

func TestResolveTraffic(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
		want [][]string
	}{
		{
			name: "larger view count wins",
			rows: [][]string{
				{"2024-01-01", "v1", "/a", "10"},
				{"2024-01-01", "v1", "/a", "25"},
			},
			want: [][]string{{"2024-01-01", "v1", "/a", "25"}},
		},
		{
			name: "exact duplicates collapse",
			rows: [][]string{
				{"2024-01-01", "v1", "/a", "10"},
				{"2024-01-01", "v1", "/a", "10"},
				{"2024-01-01", "v1", "/b", "3"},
			},
			want: [][]string{
				{"2024-01-01", "v1", "/a", "10"},
				{"2024-01-01", "v1", "/b", "3"},
			},
		},
		{
			name: "distinct keys keep input order",
			rows: [][]string{
				{"2024-01-02", "v1", "/a", "1"},
				{"2024-01-01", "v2", "/a", "2"},
				{"2024-01-01", "v1", "/a", "3"},
			},
			want: [][]string{
				{"2024-01-02", "v1", "/a", "1"},
				{"2024-01-01", "v2", "/a", "2"},
				{"2024-01-01", "v1", "/a", "3"},
			},
		},
		{
			name: "winner keeps its own position",
			rows: [][]string{
				{"2024-01-01", "v1", "/a", "5"},
				{"2024-01-01", "v1", "/b", "1"},
				{"2024-01-01", "v1", "/a", "9"},
				{"2024-01-01", "v1", "/a", "7"},
			},
			want: [][]string{
				{"2024-01-01", "v1", "/b", "1"},
				{"2024-01-01", "v1", "/a", "9"},
			},
		},
		{
			name: "no rows",
			rows: nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dedup.Resolve(view(t, trafficHeader, tt.rows...))
			require.NoError(t, err)
			assert.Equal(t, trafficHeader, got.Headers())
			assert.Equal(t, tt.want, got.Records())
		})
	}
}

func TestResolveTrafficTieKeepsOneRow(t *testing.T) {
	header := append([]string{"Extra"}, trafficHeader...)
	got, err := dedup.Resolve(view(t, header,
		[]string{"x", "2024-01-01", "v1", "/a", "10"},
		[]string{"y", "2024-01-01", "v1", "/a", "10"},
	))
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
}

func TestResolveTrafficBadViews(t *testing.T) {
	_, err := dedup.Resolve(view(t, trafficHeader,
		[]string{"2024-01-01", "v1", "/a", "ten"},
	))
	require.ErrorIs(t, err, core.ErrValueParse)

	var ve *core.ValueError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Views", ve.Column)
	assert.Equal(t, "ten", ve.Value)
	assert.Equal(t, "2024-01-01, v1, /a", ve.Key)
	assert.Contains(t, err.Error(), "(2024-01-01, v1, /a)")
}

func TestResolveSearch(t *testing.T) {
	t.Run("exact duplicate merges", func(t *testing.T) {
		got, err := dedup.Resolve(view(t, searchHeader,
			[]string{"2024-01-01", "foo", "5"},
			[]string{"2024-01-01", "foo", "5"},
		))
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"2024-01-01", "foo", "5"}}, got.Records())
	})

	t.Run("same key different totals are both kept", func(t *testing.T) {
		got, err := dedup.Resolve(view(t, searchHeader,
			[]string{"2024-01-01", "foo", "5"},
			[]string{"2024-01-01", "foo", "9"},
		))
		require.NoError(t, err)
		assert.Equal(t, [][]string{
			{"2024-01-01", "foo", "5"},
			{"2024-01-01", "foo", "9"},
		}, got.Records())
	})

	t.Run("totals are never parsed", func(t *testing.T) {
		got, err := dedup.Resolve(view(t, searchHeader,
			[]string{"2024-01-01", "foo", "n/a"},
		))
		require.NoError(t, err)
		assert.Equal(t, 1, got.Len())
	})
}

func TestResolveIsFixedPoint(t *testing.T) {
	in := view(t, trafficHeader,
		[]string{"2024-01-01", "v1", "/a", "10"},
		[]string{"2024-01-01", "v1", "/a", "25"},
		[]string{"2024-01-01", "v1", "/a", "25"},
		[]string{"2024-01-02", "v1", "/a", "4"},
		[]string{"2024-01-02", "v2", "/b", "4"},
	)
	once, err := dedup.Resolve(in)
	require.NoError(t, err)
	twice, err := dedup.Resolve(once)
	require.NoError(t, err)
	assert.True(t, once.Equal(twice))
	assert.Equal(t, 3, once.Len())
}

func TestResolveCellBoundaries(t *testing.T) {
	got, err := dedup.Resolve(view(t, searchHeader,
		[]string{"a", "b,c", "1"},
		[]string{"a,b", "c", "1"},
	))
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
}

func TestResolveUnknownSchema(t *testing.T) {
	_, err := dedup.Resolve(view(t, []string{"a", "b"}, []string{"1", "2"}))
	require.ErrorIs(t, err, core.ErrUnknownSchema)
}
