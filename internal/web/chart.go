package web

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sweeney/outlet-monitor/internal/logic"
)

// Chart geometry in SVG user units.
const (
	chartWidth   = 960
	chartHeight  = 240
	chartPadL    = 50
	chartPadR    = 20
	chartPadT    = 20
	chartPadB    = 40
	chartXLabels = 6
)

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64)
}

// RenderChart writes a step plot of entries (OFF=0, ON=1) as SVG. Each slot
// is drawn as a flat segment covering its five minutes. An empty timeline
// renders the axes only.
func RenderChart(w io.Writer, entries []logic.Entry, loc *time.Location) error {
	bw := bufio.NewWriter(w)

	plotW := float64(chartWidth - chartPadL - chartPadR)
	plotH := float64(chartHeight - chartPadT - chartPadB)
	yFor := func(s logic.State) float64 {
		if s == logic.StateOn {
			return chartPadT
		}
		return chartPadT + plotH
	}

	fmt.Fprintf(bw, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" font-family="sans-serif" font-size="11">`+"\n", chartWidth, chartHeight)
	fmt.Fprintf(bw, `<rect x="0" y="0" width="%d" height="%d" fill="white"/>`+"\n", chartWidth, chartHeight)

	// Axes and Y labels.
	x0, y0 := float64(chartPadL), chartPadT+plotH
	fmt.Fprintf(bw, `<line x1="%s" y1="%d" x2="%s" y2="%s" stroke="#333"/>`+"\n", formatFloat(x0), chartPadT, formatFloat(x0), formatFloat(y0))
	fmt.Fprintf(bw, `<line x1="%s" y1="%s" x2="%s" y2="%s" stroke="#333"/>`+"\n", formatFloat(x0), formatFloat(y0), formatFloat(x0+plotW), formatFloat(y0))
	fmt.Fprintf(bw, `<text x="%d" y="%d" text-anchor="end">ON</text>`+"\n", chartPadL-6, chartPadT+4)
	fmt.Fprintf(bw, `<text x="%d" y="%s" text-anchor="end">OFF</text>`+"\n", chartPadL-6, formatFloat(y0+4))

	if len(entries) > 0 {
		start := entries[0].Slot
		end := logic.NextSlot(entries[len(entries)-1].Slot)
		span := end.Sub(start).Seconds()
		xFor := func(t time.Time) float64 {
			return x0 + plotW*t.Sub(start).Seconds()/span
		}

		bw.WriteString(`<polyline fill="none" stroke="#2a7" stroke-width="2" points="`)
		for i, e := range entries {
			xa, xb, y := xFor(e.Slot), xFor(logic.NextSlot(e.Slot)), yFor(e.State)
			if i > 0 {
				bw.WriteByte(' ')
			}
			fmt.Fprintf(bw, "%s,%s %s,%s", formatFloat(xa), formatFloat(y), formatFloat(xb), formatFloat(y))
		}
		bw.WriteString("\"/>\n")

		layout := "15:04"
		if span > 24*3600 {
			layout = "01-02 15:04"
		}
		for i := 0; i <= chartXLabels; i++ {
			t := start.Add(time.Duration(float64(end.Sub(start)) * float64(i) / chartXLabels))
			fmt.Fprintf(bw, `<text x="%s" y="%s" text-anchor="middle">%s</text>`+"\n",
				formatFloat(xFor(t)), formatFloat(y0+18), t.In(loc).Format(layout))
		}
	}

	fmt.Fprintf(bw, `<text x="%s" y="%d" text-anchor="middle">Time (%s)</text>`+"\n", formatFloat(x0+plotW/2), chartHeight-4, loc.String())
	bw.WriteString("</svg>\n")
	return bw.Flush()
}
