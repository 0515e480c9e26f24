package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/morezero/widget-bridge/pkg/devhost"
	"github.com/morezero/widget-bridge/pkg/manifest"
)

// maxBodyBytes caps request bodies on the /api endpoints.
const maxBodyBytes = 1 << 20

// Handler returns the HTTP routes of the dev host.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/module/", s.handleModuleDetail())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.Handle("/ws", s.hub)

	mux.HandleFunc("GET /api/contexts/{widget}", s.handleGetContext)
	mux.HandleFunc("POST /api/contexts/{widget}", s.handlePushContext)
	mux.HandleFunc("POST /api/events/{event}", s.handleEmit)
	mux.HandleFunc("GET /api/outputs/{widget}", s.handleOutput)
	mux.HandleFunc("GET /api/events", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.host.Dispatcher().Events())
	})
	mux.HandleFunc("GET /api/notifications", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.notes.Recent())
	})
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	h := s.host.Health(ctx, s.nc)
	status := http.StatusOK
	if h.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.host.Dispatcher().Contexts().Get(r.PathValue("widget")))
}

// handlePushContext merges the JSON body into the widget's context and
// pushes the result as a context-update.
func (s *Server) handlePushContext(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	next, err := s.host.PatchContext(r.Context(), r.PathValue("widget"), body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

// handleEmit pushes an event with the JSON body as payload. The widget query
// parameter scopes it; without one every widget receives it.
func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var payload interface{}
	if len(strings.TrimSpace(string(body))) > 0 {
		if !json.Valid(body) {
			http.Error(w, "body must be JSON", http.StatusBadRequest)
			return
		}
		payload = json.RawMessage(body)
	}
	if err := s.host.Emit(r.Context(), r.PathValue("event"), r.URL.Query().Get("widget"), payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	out, err := s.host.Dispatcher().Store().Output(r.Context(), r.PathValue("widget"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if out == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - json encode: %v", logPrefix, err))
	}
}

// homePageTemplate is the HTML for the dev host home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Widget Dev Host</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>{{.Name}} {{.Version}}</h1>
  <p class="meta">Widget SDK range {{.SDKRange}}. Widgets connect over NATS or <code>/ws</code>.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Store: {{if .Health.Checks.Store}}<span class="stat">OK</span>{{else}}<span class="error">Failed</span>{{end}}</p>
    <p>NATS: {{if .Health.Checks.Comms}}<span class="stat">OK</span>{{else}}<span class="error">Disconnected</span>{{end}}</p>
    <p>WebSocket widgets: <span class="stat">{{.Connections}}</span></p>
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Modules</h2>
    <table>
      <thead>
        <tr><th>Module</th><th>Methods</th><th>Description</th></tr>
      </thead>
      <tbody>
        {{range .Modules}}
        <tr>
          <td><a href="/module/{{.Name}}">{{.Name}}</a></td>
          <td>{{range .Methods}}{{.}} {{end}}</td>
          <td>{{.Description}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
  </section>

  <section>
    <h2>Widgets</h2>
    {{if not .Widgets}}
    <p>No widget contexts configured.</p>
    {{else}}
    <ul>{{range .Widgets}}<li><a href="/api/contexts/{{.}}">{{.}}</a></li>{{end}}</ul>
    {{end}}
  </section>

  <section>
    <h2>Recent widget events</h2>
    {{if not .Events}}
    <p>None yet.</p>
    {{else}}
    <table>
      <thead><tr><th>Time</th><th>Widget</th><th>Event</th></tr></thead>
      <tbody>
        {{range .Events}}<tr><td>{{.At.Format "15:04:05"}}</td><td>{{.WidgetID}}</td><td>{{.Name}}</td></tr>{{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  <section>
    <h2>Recent UI calls</h2>
    {{if not .Notifications}}
    <p>None yet.</p>
    {{else}}
    <table>
      <thead><tr><th>Time</th><th>Widget</th><th>Kind</th><th>Message</th></tr></thead>
      <tbody>
        {{range .Notifications}}<tr><td>{{.At.Format "15:04:05"}}</td><td>{{.WidgetID}}</td><td>{{.Kind}}</td><td>{{.Message}}</td></tr>{{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// moduleDetailPageTemplate is the HTML for a single module page.
const moduleDetailPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Name}} – Widget Dev Host</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 0.5rem; }
    section { margin-bottom: 2rem; }
    code { background: #f5f5f5; padding: 0 0.25rem; }
    .back { margin-bottom: 1rem; }
    .actions { margin: 1rem 0; }
    .btn { display: inline-block; padding: 0.5rem 1rem; background: #0066cc; color: #fff; text-decoration: none; border-radius: 4px; }
    .btn:hover { background: #0052a3; }
  </style>
</head>
<body>
  <p class="back"><a href="/">← Back to host</a></p>
  <h1>{{.Name}}</h1>
  {{if .Description}}<p class="meta">{{.Description}}</p>{{end}}
  <p class="actions"><a href="/module/{{.Name}}/docs" class="btn">View API (Swagger)</a></p>

  <section>
    <h2>Methods</h2>
    {{range .Methods}}
    <h3>{{.Name}}</h3>
    {{if .Description}}<p>{{.Description}}</p>{{end}}
    <p><code>{{$.Name}}.{{.Name}}({{range $i, $a := .Args}}{{if $i}}, {{end}}{{$a}}{{end}}){{if .Returns}} → {{.Returns}}{{end}}</code></p>
    {{end}}
  </section>
</body>
</html>
`

// moduleRow is one row of the home page module table.
type moduleRow struct {
	Name        string
	Description string
	Methods     []string
}

// homeData is the data passed to the home page template.
type homeData struct {
	Name          string
	Version       string
	SDKRange      string
	Health        *devhost.HealthOutput
	Connections   int
	Modules       []moduleRow
	Widgets       []string
	Events        []devhost.WidgetEvent
	Notifications []devhost.Notification
}

// handleHome returns an HTTP handler for the dev host home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		disp := s.host.Dispatcher()
		m := disp.Manifest()
		data := homeData{
			Name:          m.Name(),
			Version:       m.Version(),
			SDKRange:      m.SDKRange(),
			Health:        s.host.Health(ctx, s.nc),
			Connections:   s.hub.Connections(),
			Widgets:       disp.Contexts().IDs(),
			Events:        disp.Events(),
			Notifications: s.notes.Recent(),
		}
		for _, name := range m.ModuleNames() {
			mod := m.Module(name)
			data.Modules = append(data.Modules, moduleRow{Name: name, Description: mod.Description, Methods: mod.Methods})
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// methodRow describes one method on the module page.
type methodRow struct {
	Name        string
	Description string
	Args        []string
	Returns     string
}

// moduleDetailData is the data passed to the module page template.
type moduleDetailData struct {
	Name        string
	Description string
	Methods     []methodRow
}

func describeModule(name string, mod *manifest.Module) moduleDetailData {
	d := moduleDetailData{Name: name, Description: mod.Description}
	methods := append([]string(nil), mod.Methods...)
	sort.Strings(methods)
	for _, method := range methods {
		meta := mod.MethodsMetadata[method]
		d.Methods = append(d.Methods, methodRow{Name: method, Description: meta.Description, Args: meta.Args, Returns: meta.Returns})
	}
	return d
}

// openAPI3 types for generating specs from a manifest module.
type openAPI3Spec struct {
	OpenAPI string                      `json:"openapi"`
	Info    openAPI3Info                `json:"info"`
	Paths   map[string]openAPI3PathItem `json:"paths"`
}

type openAPI3Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type openAPI3PathItem struct {
	Post *openAPI3Operation `json:"post,omitempty"`
}

type openAPI3Operation struct {
	Summary     string                      `json:"summary"`
	Description string                      `json:"description,omitempty"`
	OperationID string                      `json:"operationId"`
	RequestBody *openAPI3RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]openAPI3Response `json:"responses"`
}

type openAPI3RequestBody struct {
	Content map[string]openAPI3MediaType `json:"content"`
}

type openAPI3Response struct {
	Description string                       `json:"description"`
	Content     map[string]openAPI3MediaType `json:"content,omitempty"`
}

type openAPI3MediaType struct {
	Schema map[string]interface{} `json:"schema,omitempty"`
}

// buildOpenAPISpec builds an OpenAPI 3.0 document for a module: one POST
// path per method whose body is the positional argument array.
func buildOpenAPISpec(version string, d moduleDetailData) *openAPI3Spec {
	paths := make(map[string]openAPI3PathItem)
	for _, m := range d.Methods {
		items := make([]interface{}, 0, len(m.Args))
		for _, a := range m.Args {
			items = append(items, map[string]interface{}{"title": a})
		}
		args := map[string]interface{}{"type": "array", "prefixItems": items}
		result := map[string]interface{}{}
		if m.Returns != "" {
			result["description"] = m.Returns
		}
		paths["/"+d.Name+"."+m.Name] = openAPI3PathItem{
			Post: &openAPI3Operation{
				Summary:     m.Name,
				Description: m.Description,
				OperationID: d.Name + "." + m.Name,
				RequestBody: &openAPI3RequestBody{
					Content: map[string]openAPI3MediaType{
						"application/json": {Schema: args},
					},
				},
				Responses: map[string]openAPI3Response{
					"200": {
						Description: "Success",
						Content: map[string]openAPI3MediaType{
							"application/json": {Schema: result},
						},
					},
				},
			},
		}
	}
	desc := d.Description
	if desc == "" {
		desc = "Module " + d.Name
	}
	return &openAPI3Spec{
		OpenAPI: "3.0.0",
		Info:    openAPI3Info{Title: d.Name, Description: desc, Version: version},
		Paths:   paths,
	}
}

// swaggerUIPage is the HTML that embeds Swagger UI from CDN and loads the OpenAPI spec.
const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>API – {{.Module}}</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      SwaggerUIBundle({
        url: "{{.SpecURL}}",
        dom_id: "#swagger-ui",
        presets: [
          SwaggerUIBundle.presets.apis,
          SwaggerUIBundle.SwaggerUIStandalonePreset
        ]
      });
    };
  </script>
</body>
</html>
`

// handleModuleDetail serves /module/<name>, /module/<name>/openapi.json and
// /module/<name>/docs.
func (s *Server) handleModuleDetail() http.HandlerFunc {
	tmpl := template.Must(template.New("moduleDetail").Parse(moduleDetailPageTemplate))
	swaggerTmpl := template.Must(template.New("swagger").Parse(swaggerUIPage))
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/module/")
		if rest == "" {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		name, suffix, _ := strings.Cut(rest, "/")
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}

		m := s.host.Dispatcher().Manifest()
		mod := m.Module(name)
		if mod == nil {
			http.NotFound(w, r)
			return
		}
		detail := describeModule(m.ResolveAlias(name), mod)

		switch suffix {
		case "openapi.json":
			w.Header().Set("Cache-Control", "public, max-age=60")
			writeJSON(w, http.StatusOK, buildOpenAPISpec(m.Version(), detail))
			return
		case "docs":
			scheme := "https"
			if r.TLS == nil {
				scheme = "http"
			}
			specURL := scheme + "://" + r.Host + "/module/" + url.PathEscape(detail.Name) + "/openapi.json"
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			swaggerTmpl.Execute(w, map[string]string{"Module": detail.Name, "SpecURL": specURL})
			return
		case "":
		default:
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, detail); err != nil {
			slog.Error(fmt.Sprintf("%s - module template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
