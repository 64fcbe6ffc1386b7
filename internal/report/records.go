package report

import (
	"github.com/jupyter/metrics-builder/pkg/pipeline/core"
	"github.com/jupyter/metrics-builder/pkg/pipeline/metrics"
	"github.com/jupyter/metrics-builder/pkg/pipeline/schema"
)

// trafficRecord is one merged Traffic row with Views parsed.
type trafficRecord struct {
	Project string `parquet:"project,dict"`
	Date    string `parquet:"date"`
	Version string `parquet:"version,dict"`
	Path    string `parquet:"path"`
	Views   int64  `parquet:"views"`
}

// searchRecord is one merged Search row. TotalResults is nil when the cell is
// not a count; search metrics never read it, so such rows stay valid.
type searchRecord struct {
	Project      string `parquet:"project,dict"`
	CreatedDate  string `parquet:"created_date"`
	Query        string `parquet:"query"`
	TotalResults *int64 `parquet:"total_results,optional"`
}

func columns(t *metrics.Table, names ...string) ([][]string, error) {
	out := make([][]string, len(names))
	for i, n := range names {
		col, err := t.Column(n)
		if err != nil {
			return nil, err
		}
		out[i] = col
	}
	return out, nil
}

func trafficRecords(project string, t *metrics.Table) ([]trafficRecord, error) {
	cols, err := columns(t, schema.ColDate, schema.ColVersion, schema.ColPath, schema.ColViews)
	if err != nil {
		return nil, err
	}
	out := make([]trafficRecord, t.Len())
	for i := range out {
		views, err := schema.ParseCount(cols[3][i])
		if err != nil {
			return nil, &core.ValueError{Column: schema.ColViews, Row: i, Value: cols[3][i], Err: err}
		}
		out[i] = trafficRecord{
			Project: project,
			Date:    cols[0][i],
			Version: cols[1][i],
			Path:    cols[2][i],
			Views:   int64(views),
		}
	}
	return out, nil
}

func searchRecords(project string, t *metrics.Table) ([]searchRecord, error) {
	cols, err := columns(t, schema.ColCreatedDate, schema.ColQuery, schema.ColTotalResults)
	if err != nil {
		return nil, err
	}
	out := make([]searchRecord, t.Len())
	for i := range out {
		out[i] = searchRecord{
			Project:     project,
			CreatedDate: cols[0][i],
			Query:       cols[1][i],
		}
		if n, err := schema.ParseCount(cols[2][i]); err == nil {
			total := int64(n)
			out[i].TotalResults = &total
		}
	}
	return out, nil
}
