package web

import (
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"time"

	"github.com/sweeney/sous-vide/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"num": func(v *float64, format string) string {
		if v == nil {
			return "unknown"
		}
		return fmt.Sprintf(format, *v)
	},
	"yesno": func(v *bool) string {
		if v == nil {
			return "unknown"
		}
		if *v {
			return "yes"
		}
		return "no"
	},
	"seconds": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return (time.Duration(*v) * time.Second).String()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Sous Vide</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Sous Vide</h1>
{{if .Status.Error}}<p class="unknown">Controller status unavailable.</p>{{end}}

<h2>Bath</h2>
<table>
<tr><th>Temperature</th><td id="temp">{{num .Status.Temperature "%.2f"}}</td></tr>
<tr><th>Setpoint</th><td id="setpoint">{{num .Status.Setpoint "%.2f"}}</td></tr>
<tr><th>At setpoint for</th><td>{{seconds .Status.TimeAtSetpoint}}</td></tr>
<tr><th>Water detected</th><td>{{yesno .Status.WaterDetected}}</td></tr>
<tr><th>Running</th><td id="running">{{yesno .Status.Running}}</td></tr>
</table>

<h2>Heater</h2>
<table>
<tr><th>Heater</th><td id="heater" class="{{if eq (printf "%s" .Heater) "ON"}}on{{else if eq (printf "%s" .Heater) "OFF"}}off{{else}}unknown{{end}}">{{.Heater}}</td></tr>
<tr><th>On time</th><td>{{.OnTime}} of {{.Config.WindowMs}}ms{{if .Manual}} (manual){{end}}</td></tr>
<tr><th>Gains</th><td>P {{num .Status.PIDp "%.2f"}} / I {{num .Status.PIDi "%.2f"}} / D {{num .Status.PIDd "%.2f"}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{if eq .Config.AlarmMs 0}}disabled{{else}}{{.Config.AlarmMs}}ms{{end}}</td></tr>
<tr><th>Command check</th><td>{{.Config.CommandCheckMs}}ms{{if .Config.WatchCommands}} + watch{{end}}</td></tr>
<tr><th>Status file</th><td>{{.Config.StatusFile}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, v status.View) {
	// View has an Uptime() method but the template needs a Duration field.
	data := struct {
		status.View
		Uptime time.Duration
	}{
		View:   v,
		Uptime: v.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		slog.Warn("render status page failed", "error", err)
	}
}
