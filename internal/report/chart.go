package report

import (
	"cmp"
	"html/template"
	"io"
	"slices"

	"github.com/jupyter/metrics-builder/pkg/pipeline/metrics"
)

const (
	chartWidth  = 960
	labelWidth  = 360
	barHeight   = 22
	barGap      = 6
	chartMargin = 40
)

type bar struct {
	Label  string
	Value  int
	Y      int
	Width  int
	TextY  int
	ValueX int
}

type chart struct {
	Title  string
	XLabel string
	YLabel string
	Width  int
	Height int
	PlotX  int
	BarH   int
	Bars   []bar
}

// newChart lays out a horizontal bar chart. Bars are kept in ascending order of
// value and stacked bottom-up, so the largest value is drawn at the top.
func newChart(title, xLabel, yLabel string, ranking []metrics.Count) chart {
	counts := slices.Clone(ranking)
	slices.SortStableFunc(counts, func(a, b metrics.Count) int { return cmp.Compare(a.Total, b.Total) })

	maxValue := 0
	for _, c := range counts {
		maxValue = max(maxValue, c.Total)
	}
	plotWidth := chartWidth - labelWidth - 2*chartMargin

	c := chart{
		Title:  title,
		XLabel: xLabel,
		YLabel: yLabel,
		Width:  chartWidth,
		Height: 2*chartMargin + len(counts)*(barHeight+barGap),
		PlotX:  chartMargin + labelWidth,
		BarH:   barHeight,
	}
	for i, cnt := range counts {
		y := chartMargin + (len(counts)-1-i)*(barHeight+barGap)
		w := 0
		if maxValue > 0 {
			w = cnt.Total * plotWidth / maxValue
		}
		c.Bars = append(c.Bars, bar{
			Label:  cnt.Key,
			Value:  cnt.Total,
			Y:      y,
			Width:  w,
			TextY:  y + barHeight*2/3,
			ValueX: c.PlotX + w + 4,
		})
	}
	return c
}

var chartTmpl = template.Must(template.New("chart").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
svg text { font-size: 12px; }
.bar { fill: #1f77b4; }
.bar:hover { fill: #ff7f0e; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{- if .Bars}}
<svg xmlns="http://www.w3.org/2000/svg" width="{{.Width}}" height="{{.Height}}" role="img" aria-label="{{.Title}}">
<text x="{{.PlotX}}" y="{{.Height}}" dy="-8">{{.XLabel}}</text>
<text x="4" y="16">{{.YLabel}}</text>
{{- range .Bars}}
<g>
<title>{{.Label}}: {{.Value}}</title>
<text x="{{$.PlotX}}" y="{{.TextY}}" dx="-6" text-anchor="end">{{.Label}}</text>
<rect class="bar" x="{{$.PlotX}}" y="{{.Y}}" width="{{.Width}}" height="{{$.BarH}}"></rect>
<text x="{{.ValueX}}" y="{{.TextY}}">{{.Value}}</text>
</g>
{{- end}}
</svg>
{{- else}}
<p>No data.</p>
{{- end}}
</body>
</html>
`))

func renderChart(w io.Writer, c chart) error {
	return chartTmpl.Execute(w, c)
}
