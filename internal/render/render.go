// Package render turns parsed examples into the static gallery site.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"path"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/josch/gallerize/internal/gallery"
)

// PageData is everything needed to render one example page.
type PageData struct {
	Example   *gallery.Example
	Output    string   // captured runner stdout, "" when no runner
	Artifacts []string // artifact file names relative to the page's directory
	Degraded  bool     // runner failed; page renders with a notice
	FailError string   // the failure message shown on degraded pages
}

// Renderer renders example pages and the gallery index.
type Renderer struct {
	siteTitle string
	baseURL   string
	md        goldmark.Markdown
	pageTmpl  *template.Template
	indexTmpl *template.Template
}

// New creates a Renderer for the given site shell.
func New(siteTitle, baseURL string) *Renderer {
	return &Renderer{
		siteTitle: siteTitle,
		baseURL:   baseURL,
		md:        goldmark.New(),
		pageTmpl:  template.Must(template.New("page").Parse(pageTemplate)),
		indexTmpl: template.Must(template.New("index").Parse(indexTemplate)),
	}
}

type renderedCell struct {
	IsCode bool
	HTML   template.HTML
	Code   string
}

type pageView struct {
	SiteTitle string
	BaseURL   string
	Title     string
	Cells     []renderedCell
	Output    string
	Charts    []string
	Degraded  bool
	FailError string
}

// Page renders one example page to HTML.
func (r *Renderer) Page(data PageData) ([]byte, error) {
	view := pageView{
		SiteTitle: r.siteTitle,
		BaseURL:   r.baseURL,
		Title:     data.Example.Title,
		Output:    data.Output,
		Degraded:  data.Degraded,
		FailError: data.FailError,
	}

	for _, cell := range data.Example.Cells {
		switch cell.Kind {
		case gallery.CellCode:
			view.Cells = append(view.Cells, renderedCell{IsCode: true, Code: cell.Text})
		case gallery.CellProse:
			var buf bytes.Buffer
			if err := r.md.Convert([]byte(cell.Text), &buf); err != nil {
				return nil, fmt.Errorf("render prose for %s: %w", data.Example.Slug, err)
			}
			view.Cells = append(view.Cells, renderedCell{HTML: template.HTML(buf.String())})
		}
	}

	// HTML artifacts (charts) embed as iframes after the content.
	for _, artifact := range data.Artifacts {
		if strings.EqualFold(path.Ext(artifact), ".html") {
			view.Charts = append(view.Charts, artifact)
		}
	}

	var out bytes.Buffer
	if err := r.pageTmpl.Execute(&out, view); err != nil {
		return nil, fmt.Errorf("execute page template for %s: %w", data.Example.Slug, err)
	}
	return out.Bytes(), nil
}

// IndexEntry is one row on the gallery index page.
type IndexEntry struct {
	Slug    string
	Title   string
	Summary string
	Thumb   string // relative path to a thumbnail image, "" when none
}

type indexView struct {
	SiteTitle string
	BaseURL   string
	Entries   []IndexEntry
}

// Index renders the gallery index listing all examples in the given order.
func (r *Renderer) Index(entries []IndexEntry) ([]byte, error) {
	var out bytes.Buffer
	err := r.indexTmpl.Execute(&out, indexView{SiteTitle: r.siteTitle, BaseURL: r.baseURL, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("execute index template: %w", err)
	}
	return out.Bytes(), nil
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} — {{.SiteTitle}}</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
</head>
<body>
<nav><a href="../index.html">{{.SiteTitle}}</a></nav>
<main>
{{if .Degraded}}<div class="degraded">Example execution failed: {{.FailError}}</div>{{end}}
{{range .Cells}}{{if .IsCode}}<pre><code class="language-go">{{.Code}}</code></pre>
{{else}}{{.HTML}}{{end}}{{end}}
{{if .Output}}<h2>Output</h2>
<pre class="output"><samp>{{.Output}}</samp></pre>{{end}}
{{range .Charts}}<iframe src="{{.}}" width="100%" height="520" frameborder="0"></iframe>
{{end}}</main>
</body>
</html>
`

const indexTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.SiteTitle}}</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
</head>
<body>
<main>
<h1>{{.SiteTitle}}</h1>
<ul class="gallery">
{{range .Entries}}<li>
{{if .Thumb}}<img src="{{.Thumb}}" alt="" width="160">{{end}}
<a href="{{.Slug}}/index.html">{{.Title}}</a>
{{if .Summary}}<p>{{.Summary}}</p>{{end}}
</li>
{{end}}</ul>
</main>
</body>
</html>
`
