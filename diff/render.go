package diff

import (
	"html/template"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

var tmpl = template.Must(template.New("diff").Parse(`
{{- define "lines" -}}
<table class="diff-wrapper diff diff-html diff-combined">
<thead><tr><th>Differences</th></tr></thead>
{{- range . }}
<tbody class="change change-{{ .Class }}">
{{- range .Rows }}
<tr data-type="{{ .Type }}"><td class="{{ .Cell }}">{{ .HTML }}</td></tr>
{{- end }}
</tbody>
{{- end }}
</table>
{{- end -}}

{{- define "identical" -}}
<table class="diff-wrapper diff diff-html diff-combined">
<thead><tr><th>No differences</th></tr></thead>
<tbody class="change change-eq"><tr data-type=" "><td class="new">{{ . }}</td></tr></tbody>
</table>
{{- end -}}

{{- define "item" -}}
<li data-key="{{ .Item.Key }}">
{{- if .Item.Link }}<a href="{{ .Item.Link }}">{{ or .Item.Title .Item.Link }}</a>{{ else }}<span class="title">{{ .Item.Title }}</span>{{ end }}
{{- if .Fields }}
<dl>
{{- range .Fields }}
<dt>{{ .Field }}</dt><dd>{{ .Diff }}</dd>
{{- end }}
</dl>
{{- else if .Item.Description }}
<p>{{ .Item.Description }}</p>
{{- end }}
</li>
{{- end -}}

{{- define "feed" -}}
<div class="diff-wrapper diff diff-rss">
{{- if .Empty }}
<p class="diff-empty">No differences</p>
{{- end }}
{{- range .Groups }}
<section class="change change-{{ .Class }}">
<h3>{{ .Title }}</h3>
<ul>
{{- range .Items }}
{{ template "item" . }}
{{- end }}
</ul>
</section>
{{- end }}
</div>
{{- end -}}
`))

type tbody struct {
	Class string
	Rows  []tr
}

type tr struct {
	Type string
	Cell string
	HTML template.HTML
}

// renderLines is rendering blocks as a combined diff table. With word
// granularity a deleted block directly followed by an inserted one is
// shown as replaced lines with inline changes.
func renderLines(blocks []Block, granularity Granularity) (string, error) {
	var bodies []tbody

	for i := 0; i < len(blocks); i++ {
		bl := blocks[i]

		if granularity == GranularityWord && bl.Op == OpDelete && i+1 < len(blocks) && blocks[i+1].Op == OpInsert {
			bodies = append(bodies, replaced(bl.Lines, blocks[i+1].Lines))
			i++
			continue
		}

		switch bl.Op {
		case OpEqual:
			bodies = append(bodies, lineBody("eq", " ", "new", "", bl.Lines))
		case OpDelete:
			bodies = append(bodies, lineBody("del", "-", "old", "del", bl.Lines))
		case OpInsert:
			bodies = append(bodies, lineBody("ins", "+", "new", "ins", bl.Lines))
		case OpSkip:
			bodies = append(bodies, tbody{Class: "skipped", Rows: []tr{{Type: " ", Cell: "skipped", HTML: "&hellip;"}}})
		}
	}

	return execute("lines", bodies)
}

func lineBody(class, typ, cell, wrap string, lines []string) tbody {
	body := tbody{Class: class}
	for _, l := range lines {
		h := template.HTMLEscapeString(l)
		if wrap != "" {
			h = "<" + wrap + ">" + h + "</" + wrap + ">"
		}
		body.Rows = append(body.Rows, tr{Type: typ, Cell: cell, HTML: template.HTML(h)})
	}
	return body
}

func replaced(old, new []string) tbody {
	dmp := diffmatchpatch.New()
	body := tbody{Class: "rep"}

	n := max(len(old), len(new))
	for k := 0; k < n; k++ {
		switch {
		case k < len(old) && k < len(new):
			diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(old[k], new[k], false))
			body.Rows = append(body.Rows, tr{Type: "!", Cell: "rep", HTML: template.HTML(dmp.DiffPrettyHtml(diffs))})
		case k < len(old):
			body.Rows = append(body.Rows, lineBody("", "-", "old", "del", old[k:k+1]).Rows...)
		default:
			body.Rows = append(body.Rows, lineBody("", "+", "new", "ins", new[k:k+1]).Rows...)
		}
	}
	return body
}

func renderIdentical(content string) (string, error) {
	return execute("identical", content)
}

type group struct {
	Class string
	Title string
	Items []itemView
}

type itemView struct {
	Item   FeedItem
	Fields []fieldView
}

type fieldView struct {
	Field string
	Diff  template.HTML
}

func renderFeed(fd *FeedDiff) (string, error) {
	view := struct {
		Empty  bool
		Groups []group
	}{Empty: fd.Empty()}

	add := func(class, title string, changes []ItemChange) {
		if len(changes) == 0 {
			return
		}
		g := group{Class: class, Title: title}
		for _, c := range changes {
			iv := itemView{Item: c.Item}
			for _, f := range c.Fields {
				iv.Fields = append(iv.Fields, fieldView{Field: f.Field, Diff: template.HTML(f.HTML)})
			}
			g.Items = append(g.Items, iv)
		}
		view.Groups = append(view.Groups, g)
	}

	add("ins", "Added", fd.Added)
	add("rep", "Changed", fd.Changed)
	add("del", "Removed", fd.Removed)

	return execute("feed", view)
}

func execute(name string, data any) (string, error) {
	var sb strings.Builder
	if err := tmpl.ExecuteTemplate(&sb, name, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
