package web

import (
	"html/template"
	"io"
	"time"

	"github.com/sweeney/outlet-monitor/internal/logic"
)

type statusView struct {
	Status string
	Color  string
	AsOf   string
	Zone   string
	Known  bool
}

func newStatusView(v logic.Verdict, loc *time.Location) statusView {
	sv := statusView{Status: string(v.Status), Zone: loc.String(), Known: v.HasLatest}
	switch v.Status {
	case logic.StatusOn:
		sv.Color = "green"
	case logic.StatusOff:
		sv.Color = "red"
	default:
		sv.Color = "orange"
	}
	if v.HasLatest {
		sv.AsOf = v.Latest.Slot.In(loc).Format("15:04")
	}
	return sv
}

var statusTextTmpl = template.Must(template.New("status_text").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Power Outlet Status</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 50px;">
<h1 style="color: {{.Color}};">Power outlet status: {{.Status}}</h1>
{{if .Known}}<p>As of {{.AsOf}} ({{.Zone}})</p>{{else}}<p>No reports yet</p>{{end}}
</body></html>
`))

func renderStatusText(w io.Writer, v logic.Verdict, loc *time.Location) error {
	return statusTextTmpl.Execute(w, newStatusView(v, loc))
}

type graphView struct {
	statusView
	Slots    int
	First    string
	Last     string
	OnRatio  string
	Expected string
}

var graphTmpl = template.Must(template.New("power_graph").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="60">
<title>Outlet Power Status</title>
<style>
body { font-family: sans-serif; max-width: 1000px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
img { width: 100%; border: 1px solid #ddd; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
</style>
</head>
<body>
<h1>Outlet Power Status: <span style="color: {{.Color}};">{{.Status}}</span></h1>
<img src="/chart.svg" alt="power timeline">
<table>
<tr><th>Slots</th><td>{{.Slots}}</td></tr>
{{if .Known}}<tr><th>Range</th><td>{{.First}} to {{.Last}} ({{.Zone}})</td></tr>
<tr><th>Time on</th><td>{{.OnRatio}}</td></tr>
<tr><th>Next report due</th><td>{{.Expected}}</td></tr>{{end}}
</table>
<p><a href="/data">JSON</a> | <a href="/data.xlsx">Spreadsheet</a> | <a href="/status_text">Status</a></p>
</body>
</html>
`))

func renderGraphPage(w io.Writer, entries []logic.Entry, v logic.Verdict, loc *time.Location) error {
	gv := graphView{statusView: newStatusView(v, loc), Slots: len(entries)}
	if len(entries) > 0 {
		const layout = "2006-01-02 15:04"
		gv.First = entries[0].Slot.In(loc).Format(layout)
		gv.Last = entries[len(entries)-1].Slot.In(loc).Format(layout)
		on := 0
		for _, e := range entries {
			if e.State == logic.StateOn {
				on++
			}
		}
		gv.OnRatio = formatPercent(on, len(entries))
		gv.Expected = v.ExpectedNext.In(loc).Format(layout)
	}
	return graphTmpl.Execute(w, gv)
}

func formatPercent(n, total int) string {
	if total == 0 {
		return "0%"
	}
	return formatFloat(100*float64(n)/float64(total)) + "%"
}
