package report

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"
)

// Page is the data behind the summary page.
type Page struct {
	RunID     string
	Generated time.Time
	Projects  []Summary
}

type indexProject struct {
	Summary
	Links []link
}

type link struct {
	Label string
	Href  string
}

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Jupyter Documentation Metrics</title>
<style>
body { font-family: sans-serif; margin: 2em; max-width: 60em; }
section { border-top: 1px solid #ccc; padding: 0.5em 0; }
.status { font-size: 0.8em; color: #555; }
.error { color: #b00; }
</style>
</head>
<body>
<h1>Jupyter Documentation Metrics</h1>
<p>Generated {{.Generated.Format "2006-01-02 15:04:05 MST"}}{{if .RunID}} (run {{.RunID}}){{end}}.</p>
{{- range .Projects}}
<section id="{{.Name}}">
<h2>{{.Name}} <span class="status">{{.Status}}</span></h2>
{{- if or .HasTraffic .HasSearch}}
<ul>
{{- if .HasTraffic}}
<li>Total views: {{.TotalViews}}</li>
<li>Distinct pages: {{.Pages}}</li>
{{- if .TopVersions}}
<li>Top versions:{{range .TopVersions}} {{.Key}} ({{.Total}}){{end}}</li>
{{- end}}
{{- end}}
{{- if .HasSearch}}
<li>Searches: {{.Searches}} ({{.Queries}} distinct queries)</li>
{{- end}}
</ul>
{{- else}}
<p>No valid metrics data.</p>
{{- end}}
{{- if .Links}}
<p>{{range $i, $l := .Links}}{{if $i}} | {{end}}<a href="{{$l.Href}}">{{$l.Label}}</a>{{end}}</p>
{{- end}}
{{- if .Skipped}}
<p class="status">{{.Skipped}} file(s) skipped.</p>
{{- end}}
{{- range .Errors}}
<p class="error">{{.}}</p>
{{- end}}
</section>
{{- else}}
<p>No projects found.</p>
{{- end}}
</body>
</html>
`))

// WriteIndex renders the summary page to path. Artifact links are made
// relative to the page's directory.
func WriteIndex(path string, page Page) error {
	base := filepath.Dir(path)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	data := struct {
		Page
		Projects []indexProject
	}{Page: page}
	for _, s := range page.Projects {
		data.Projects = append(data.Projects, indexProject{Summary: s, Links: links(base, s.Artifacts)})
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	if err := indexTmpl.Execute(f, data); err != nil {
		return fmt.Errorf("render index: %w", err)
	}
	return f.Close()
}

func links(base string, a Artifacts) []link {
	var out []link
	for _, l := range []link{
		{"Popular pages", a.PagesChart},
		{"Popular queries", a.QueriesChart},
		{"Traffic CSV", a.TrafficCSV},
		{"Search CSV", a.SearchCSV},
		{"Traffic Parquet", a.TrafficParquet},
		{"Search Parquet", a.SearchParquet},
	} {
		if l.Href == "" {
			continue
		}
		if rel, err := filepath.Rel(base, l.Href); err == nil {
			l.Href = rel
		}
		l.Href = filepath.ToSlash(l.Href)
		out = append(out, l)
	}
	return out
}
