package http

import (
	"html/template"
	"net/http"

	"gitlab.com/henri.philipps/diffdetect/endpoint"
	"golang.org/x/exp/slog"
)

var diffPage = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Resource {{ .ResourceID }}: differences</title>
<style>
.diff del { background: #fdd; }
.diff ins { background: #dfd; }
.diff .change-skipped td { color: #888; }
.diff td { white-space: pre-wrap; font-family: monospace; }
</style>
</head>
<body>
<h1>Resource {{ .ResourceID }}</h1>
{{- if .Error }}
<p class="error">{{ .Error }}</p>
{{- else }}
<p class="selection">Snapshot <span class="before">{{ .Before }}</span> compared to <span class="after">{{ .After }}</span></p>
{{ .Diff }}
{{- end }}
</body>
</html>
`))

type diffPageData struct {
	ResourceID int64
	Before     int64
	After      int64
	Diff       template.HTML
	Error      string
}

// createHTMLDiffHandler is rendering a diff as standalone page.
// Errors are shown on the page with the status code of the JSON API.
func createHTMLDiffHandler(ep endpoint.Endpoint[endpoint.RenderDiffReq, endpoint.DiffResp], logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req endpoint.RenderDiffReq
		code := http.StatusOK
		data := diffPageData{}

		if err := req.BindParams(paramFunc(r)); err != nil {
			code = http.StatusBadRequest
			data.Error = err.Error()
		} else {
			data.ResourceID = req.ResourceID
			resp, err := ep(r.Context(), req)
			switch {
			case err != nil:
				code = http.StatusInternalServerError
				data.Error = err.Error()
			case resp.Failed() != nil:
				code = statusCode(resp.Failed())
				data.Error = resp.Failed().Error()
			default:
				data.Before, data.After = resp.Before, resp.After
				// rendered by the diff package with all content escaped
				data.Diff = template.HTML(resp.Diff.HTML)
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(code)
		if err := diffPage.Execute(w, data); err != nil {
			logger.Error("failed to render diff page", "error", err, slog.Int64("resource_id", req.ResourceID))
		}
	}
}
