package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/valve-supervisor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime":  formatUptime,
	"valve":   status.ValveString,
	"wiring":  status.WiringString,
	"trigger": status.TriggerString,
	"lower":   strings.ToLower,
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Valve Supervisor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.open, .ok, .normal, .green, .connected { color: green; font-weight: bold; }
.closed, .red { color: #b00; font-weight: bold; }
.broken, .asserted, .disconnected { color: red; }
.unknown { color: orange; }
</style>
</head>
<body>
<h1>Valve Supervisor</h1>

<h2>State</h2>
<table>
<tr><th>Valve</th><td id="valve" class="{{lower (valve .Supervisor)}}">{{valve .Supervisor}}</td></tr>
<tr><th>Wiring</th><td id="wiring" class="{{lower (wiring .Supervisor)}}">{{wiring .Supervisor}}</td></tr>
<tr><th>Trigger</th><td id="trigger" class="{{lower (trigger .Supervisor)}}">{{trigger .Supervisor}}</td></tr>
<tr><th>Indicator</th><td id="indicator" class="{{lower .Indicator}}">{{.Indicator}}</td></tr>
<tr><th>Close attempts</th><td>{{.Supervisor.Counters.CloseAttempts}}{{if .Supervisor.Exhausted}} (exhausted){{end}}</td></tr>
<tr><th>Consecutive asserts</th><td>{{.Supervisor.Counters.FakeClose}}</td></tr>
{{if .LastEvent}}<tr><th>Last event</th><td>{{.LastEvent.Type}}{{if .LastEvent.Attempt}} #{{.LastEvent.Attempt}}{{end}} at {{.LastEvent.Timestamp.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
</table>

<h2>Totals</h2>
<table>
<tr><th>Passes</th><td>{{.Supervisor.Totals.Passes}}</td></tr>
<tr><th>Open episodes</th><td>{{.Supervisor.Totals.Episodes}}</td></tr>
<tr><th>Wiring breaks</th><td>{{.Supervisor.Totals.Breaks}}</td></tr>
<tr><th>Close pulses</th><td>{{.Supervisor.Totals.Pulses}}</td></tr>
<tr><th>Gave up</th><td>{{.Supervisor.Totals.GiveUps}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>GPIO</th><td>{{.Config.Backend}}{{if .Config.Chip}} ({{.Config.Chip}}){{end}}</td></tr>
{{range $name, $line := .Config.Pins}}<tr><th>Pin {{$name}}</th><td>{{$line}}</td></tr>
{{end}}<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	indicator := string(snap.Supervisor.Indicator)
	if indicator == "" {
		indicator = "UNKNOWN"
	}
	data := struct {
		status.Snapshot
		Uptime    time.Duration
		Indicator string
	}{
		Snapshot:  snap,
		Uptime:    snap.Uptime(),
		Indicator: indicator,
	}
	return indexTmpl.Execute(w, data)
}

func formatUptime(d time.Duration) string {
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
}
