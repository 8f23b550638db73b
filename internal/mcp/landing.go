package mcp

import (
	"html/template"
	"net/http"
)

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>docqa</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #0f172a; color: #e2e8f0; display: flex; justify-content: center; padding-top: 10vh; }
  .card { max-width: 560px; width: 90%; background: #1e293b; border-radius: 12px; padding: 2rem; }
  h1 { margin: 0 0 0.5rem; }
  .subtitle { color: #94a3b8; }
  a { color: #38bdf8; }
  code { font-family: "SF Mono", Menlo, monospace; color: #a5b4fc; }
  li { margin: 0.25rem 0; }
</style>
</head>
<body>
<div class="card">
  <h1>docqa</h1>
  <p class="subtitle">Question answering over your uploaded documents via the Model Context Protocol.</p>
  <p><a href="/mcp"><code>/mcp</code></a> MCP Streamable HTTP<br>
     <a href="/health"><code>/health</code></a> Health check</p>
  <p>Tools:</p>
  <ul>{{range .}}<li><code>{{.}}</code></li>{{end}}</ul>
</div>
</body>
</html>`))

// ToolNames lists the tools NewServer registers.
var ToolNames = []string{"ask_documents", "list_documents", "delete_document", "chat_history"}

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		landingTemplate.Execute(w, ToolNames)
	}
}
