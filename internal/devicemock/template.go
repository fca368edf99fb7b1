package devicemock

import (
	"fmt"
	"html/template"
	"io"
	"net/http"
	"slices"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"value": func(v any) string {
		if v == nil || v == "" {
			return "-"
		}
		return fmt.Sprint(v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Name}} (mock gateway)</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
</style>
</head>
<body>
<h1>{{.Name}}</h1>

<h2>Firmware</h2>
<table>
<tr><th>Version</th><td>{{.Firmware.Version}}</td></tr>
<tr><th>Chip</th><td>{{.Firmware.ChipID}}</td></tr>
<tr><th>Log clients</th><td>{{.Clients}}</td></tr>
</table>

<h2>Debug</h2>
<table>
{{range $name, $on := .Debug}}<tr><th>{{$name}}</th><td class="{{if $on}}on{{else}}off{{end}}">{{if $on}}on{{else}}off{{end}}</td></tr>
{{end}}</table>

<h2>Config</h2>
<table>
{{range .Keys}}<tr><th>{{.}}</th><td>{{value (index $.Config .)}}</td></tr>
{{end}}</table>

<p><a href="/config">JSON</a></p>
</body>
</html>
`

type indexData struct {
	Name     string
	Firmware struct{ Version, ChipID string }
	Clients  int
	Debug    map[string]bool
	Config   map[string]any
	Keys     []string
}

func (d *Device) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, d.indexData())
}

func (d *Device) indexData() indexData {
	var data indexData
	d.mu.Lock()
	data.Name, _ = d.config["deviceName"].(string)
	data.Firmware.Version = d.firmware.Version
	data.Firmware.ChipID = d.firmware.ChipID
	data.Debug = make(map[string]bool, len(d.debug))
	for k, v := range d.debug {
		data.Debug[k] = v
	}
	data.Config = make(map[string]any, len(d.config))
	for k, v := range d.config {
		data.Config[k] = v
		data.Keys = append(data.Keys, k)
	}
	d.mu.Unlock()

	slices.Sort(data.Keys)
	data.Clients = d.logs.count()
	return data
}

func renderHTML(w io.Writer, data indexData) {
	indexTmpl.Execute(w, data)
}
