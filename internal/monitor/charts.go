package monitor

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/tspipe/internal/httputil"
	"github.com/banshee-data/tspipe/internal/ts"
)

// handleBitrateChart renders an HTML timeline of the collected bitrate
// samples using go-echarts.
func (s *Server) handleBitrateChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	samples := s.collector.Samples()
	st := bitrateStats(samples)

	x := make([]string, 0, len(samples))
	data := make([]opts.LineData, 0, len(samples))
	for _, smp := range samples {
		x = append(x, smp.At.Format("15:04:05"))
		data = append(data, opts.LineData{Value: float64(smp.BitRate)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Stream bitrate",
			Theme:     "dark",
			Width:     "1200px",
			Height:    "500px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Stream bitrate",
			Subtitle: fmt.Sprintf("%d samples, mean %s", st.Count, ts.BitRate(st.Mean)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "bits/s"}),
	)
	line.SetXAxis(x).AddSeries("bitrate", data,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
