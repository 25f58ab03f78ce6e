package api

import (
	"html/template"
	"log/slog"
	"net/http"

	"monitora-dashboard/internal/dashboard"
	"monitora-dashboard/internal/view"
)

type indexData struct {
	Dash    dashboard.Snapshot
	Fuel    dashboard.FuelSnapshot
	Filters []view.Filter
	Modes   []view.ViewMode
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="utf-8">
<title>MonitoraEngine</title>
<style>
body { font-family: system-ui, sans-serif; background: #0f172a; color: #e2e8f0; margin: 0; padding: 1.5rem; }
.cards { display: grid; grid-template-columns: repeat(4, 1fr); gap: 1rem; }
.card, .panel { background: #1e293b; border-radius: 8px; padding: 1rem; }
.panel { margin-top: 1rem; }
.error { color: #ef4444; }
.muted { color: #94a3b8; }
table { width: 100%; border-collapse: collapse; }
td, th { padding: .35rem .5rem; text-align: left; }
tr.selected { background: #334155; }
.dot { display: inline-block; width: .6rem; height: .6rem; border-radius: 50%; }
</style>
</head>
<body>
<h1>MonitoraEngine</h1>
{{with .Dash}}
<p class="muted">{{.Counts.Total}} devices · {{.Counts.Online}} online · {{.Counts.Offline}} offline{{if .Health.Data}} · API {{.Health.Data.Status}}{{end}}</p>

<section class="cards">
{{if eq .Metrics.Status "failed"}}<div class="card error">{{.Metrics.Error}} <button data-retry="{{.Metrics.Retry}}">Tentar novamente</button></div>
{{else}}{{range .Metrics.Data}}<div class="card" style="border-left: 4px solid {{.Tone.Hex}}"><div class="muted">{{.Title}}</div><strong>{{.Value}}</strong></div>
{{end}}{{end}}
</section>

<section class="panel">
<h2>Devices</h2>
<div>{{range $.Filters}}<button data-filter="{{.}}"{{if eq . $.Dash.Selection.Filter}} disabled{{end}}>{{.}}</button> {{end}}</div>
{{if eq .Devices.Status "loading"}}<p class="muted">Carregando...</p>
{{else if eq .Devices.Status "failed"}}<p class="error">{{.Devices.Error}}</p>
{{else}}
{{if .Devices.Error}}<p class="error">{{.Devices.Error}}</p>{{end}}
<table>
<tr><th></th><th>Device</th><th>Velocidade</th><th>Visto</th></tr>
{{range .Devices.Data}}<tr class="{{if .Selected}}selected{{end}}" data-device="{{.DeviceID}}">
<td><span class="dot" style="background: {{if .Online}}#22c55e{{else}}#6b7280{{end}}"></span></td>
<td>{{.DeviceID}}</td><td style="color: {{.SpeedTone.Hex}}">{{printf "%.1f" .Speed}} km/h</td><td title="{{.LastSeenAt}}">{{.LastSeen}}</td>
</tr>{{else}}<tr><td colspan="4" class="muted">Nenhum device encontrado</td></tr>{{end}}
</table>
{{end}}
</section>

<section class="panel">
{{if .Selected}}
<h2>{{.Selected.DeviceID}}</h2>
{{with .Map.Marker}}<p class="muted">{{.Popup.Speed}} · {{.Popup.Temp}} · {{.Popup.Battery}} @ {{.Position.Lat}}, {{.Position.Lon}}</p>{{end}}
{{range .Ranges}}<button data-range="{{.Minutes}}"{{if .Active}} disabled{{end}}>{{.Label}}</button> {{end}}
{{with .Charts}}{{if eq .Status "failed"}}<p class="error">{{.Error}}</p>{{else}}
<div><img src="/api/v1/charts/speed.png" alt="Velocidade"><img src="/api/v1/charts/temp.png" alt="Temperatura"><img src="/api/v1/charts/battery.png" alt="Bateria"></div>
{{end}}{{end}}
{{else}}
<p class="muted">Selecione um device para ver detalhes</p>
{{end}}
</section>

<section class="panel">
<h2>Alertas</h2>
<ul>{{range .Alerts.Data}}<li>{{.DeviceID}} · {{.AlertType}} · {{.Message}}</li>{{else}}<li class="muted">Sem alertas</li>{{end}}</ul>
</section>
{{end}}

{{with .Fuel}}
<section class="panel">
<h2>Economia de Combustível</h2>
<div>{{range $.Modes}}<button data-mode="{{.}}"{{if eq . $.Fuel.Selection.Mode}} disabled{{end}}>{{.}}</button> {{end}}</div>
{{if eq .Selection.Mode "individual"}}<div>{{range .Devices.Data}}<button data-fuel-device="{{.}}"{{if eq . $.Fuel.Selection.DeviceID}} disabled{{end}}>{{.}}</button> {{end}}</div>{{end}}
{{with .Global}}{{if .Data}}{{with .Data}}
<p>Mês atual {{.CurrentMonthCost}} · anterior {{.PreviousMonthCost}} · economia {{.Savings}} ({{.SavingsPercent}}) · desperdício {{.TotalWaste}}</p>
{{range .Waste}}<div>{{.Label}} {{.Cost}} <span class="muted">{{.Detail}}</span></div>{{end}}
<p class="muted">ROI {{printf "%.1f" .ROI.ROIPercent}}% · payback {{.Payback}}</p>
{{if .TopDrivers}}<h3>Melhores motoristas</h3>
<table>{{range .TopDrivers}}<tr><td>{{.Position}}º</td><td>{{.DriverID}}</td><td style="color: {{.Tone.Hex}}">{{.Score}} · {{.Badge}}</td><td class="muted">{{.EstimatedWaste}}</td></tr>{{end}}</table>{{end}}
{{if .CriticalAlerts}}<h3>Alertas críticos</h3>
<ul>{{range .CriticalAlerts}}<li class="error">{{.DeviceID}} · {{.Type}} · {{.Message}} · R$ {{printf "%.2f" .Cost}}</li>{{end}}</ul>{{end}}
{{end}}{{else if .Error}}<p class="error">{{.Error}}</p>{{end}}{{end}}
{{with .Vehicle}}{{if .Data}}{{with .Data}}<p>Desperdício {{.TotalWaste}} · projeção mensal {{.MonthlyProjection}}</p>{{end}}{{else if .Error}}<p class="error">{{.Error}}</p>{{end}}{{end}}
</section>
{{end}}

<script>
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = () => { clearTimeout(window.reloadTimer); window.reloadTimer = setTimeout(() => location.reload(), 1000); };
const post = (path, body) => fetch(path, {method: "POST", body: JSON.stringify(body)}).then(() => location.reload());
document.querySelectorAll("[data-device]").forEach(el => el.onclick = () => post("/api/v1/select", {device_id: el.dataset.device}));
document.querySelectorAll("[data-range]").forEach(el => el.onclick = () => post("/api/v1/range", {minutes: Number(el.dataset.range)}));
document.querySelectorAll("[data-filter]").forEach(el => el.onclick = () => post("/api/v1/filter", {filter: el.dataset.filter}));
document.querySelectorAll("[data-mode]").forEach(el => el.onclick = () => post("/api/v1/fuel/mode", {mode: el.dataset.mode}));
document.querySelectorAll("[data-fuel-device]").forEach(el => el.onclick = () => post("/api/v1/fuel/select", {device_id: el.dataset.fuelDevice}));
document.querySelectorAll("[data-retry]").forEach(el => el.onclick = () => post("/api/v1/retry/" + el.dataset.retry, {}));
</script>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := indexData{
		Dash:    s.dash.Snapshot(),
		Fuel:    s.fuel.Snapshot(),
		Filters: []view.Filter{view.FilterAll, view.FilterOnline, view.FilterOffline},
		Modes:   []view.ViewMode{view.ModeGlobal, view.ModeIndividual},
	}
	if err := indexTemplate.Execute(w, data); err != nil {
		slog.Error("failed to execute template", "error", err)
	}
}
