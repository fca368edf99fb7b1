package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/gatewayctl/internal/logstore"
	"github.com/sweeney/gatewayctl/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"orDash": func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	},
	"clock": func(t time.Time) string {
		return t.Local().Format("15:04:05")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="5">
<meta name="viewport" content="width=device-width">
<title>{{.Host}} log</title>
<style>
body { font-family: monospace; max-width: 46em; margin: 2em auto; padding: 0 1em; color: #222; }
h1 { font-size: 1.3em; margin-bottom: 0.2em; }
h2 { font-size: 1.1em; margin-top: 1.5em; }
table { border-collapse: collapse; width: 100%; }
td, th { text-align: left; vertical-align: top; padding: 3px 6px; border-bottom: 1px solid #e4e4e4; }
th { width: 35%; font-weight: normal; color: #555; }
.connected { color: green; font-weight: bold; }
.disconnected { color: red; }
.status { color: #888; }
pre { white-space: pre-wrap; margin: 0; }
</style>
</head>
<body>
<h1>{{.Host}}</h1>

<h2>Log socket</h2>
<table>
<tr><th>State</th><td id="label" class="{{if .Connected}}connected{{else}}disconnected{{end}}">{{orDash .Label}}</td></tr>
<tr><th>Lines</th><td>{{.Lines}}</td></tr>
<tr><th>Reconnects</th><td>{{.Reconnects}}</td></tr>
<tr><th>Last line</th><td>{{if .LastLine.IsZero}}-{{else}}{{clock .LastLine}}{{end}}</td></tr>
</table>

<h2>Gateway</h2>
<table>
<tr><th>Firmware</th><td>{{if .Firmware}}{{.Firmware.Version}}{{else}}-{{end}}</td></tr>
<tr><th>Chip</th><td>{{if .Firmware}}{{.Firmware.ChipID}}{{else}}-{{end}}</td></tr>
<tr><th>Unsaved settings</th><td>{{range $i, $k := .Pending}}{{if $i}}, {{end}}{{$k}}{{else}}none{{end}}</td></tr>
<tr><th>Message</th><td>{{orDash .Message}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{orDash .Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Ping</th><td>{{.Config.PingMs}}ms</td></tr>
<tr><th>Pong timeout</th><td>{{.Config.PongMs}}ms</td></tr>
<tr><th>Retry</th><td>{{.Config.RetryMs}}ms</td></tr>
</table>
{{if .Recent}}
<h2>Recent</h2>
<table>
{{range .Recent}}<tr><th>{{clock .Time}}</th><td{{if eq .Kind "status"}} class="status"{{end}}><pre>{{.Text}}</pre></td></tr>
{{end}}</table>
<p><a href="/log.json">Archive JSON</a></p>
{{end}}
<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

// formatUptime renders d as "1d 2h 3m 4s", dropping leading zero units.
func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	units := []struct {
		size   int64
		suffix string
	}{{86400, "d"}, {3600, "h"}, {60, "m"}, {1, "s"}}

	var parts []string
	for _, u := range units {
		v := secs / u.size
		secs %= u.size
		if v > 0 || len(parts) > 0 || u.suffix == "s" {
			parts = append(parts, fmt.Sprintf("%d%s", v, u.suffix))
		}
	}
	return strings.Join(parts, " ")
}

type pageData struct {
	status.Snapshot
	Recent []logstore.Entry
}

func renderHTML(w io.Writer, data pageData) {
	// Snapshot has an Uptime method but the template needs a Duration field.
	view := struct {
		pageData
		Uptime time.Duration
	}{
		pageData: data,
		Uptime:   data.Snapshot.Uptime(),
	}
	indexTmpl.Execute(w, view)
}
