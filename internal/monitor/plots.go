package monitor

import (
	"fmt"
	"image/color"
	"net/http"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/tspipe/internal/httputil"
	"github.com/banshee-data/tspipe/internal/security"
)

// handleBitratePlot renders the collected bitrate samples to a PNG, saves
// it under the configured plot directory and serves the image. The optional
// `name` query parameter picks the exported file name.
func (s *Server) handleBitratePlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.plotDir == "" {
		httputil.NotFound(w, "plot directory not configured")
		return
	}
	samples := s.collector.Samples()
	if len(samples) == 0 {
		httputil.NotFound(w, "no bitrate samples yet")
		return
	}

	pts := make(plotter.XYs, len(samples))
	t0 := samples[0].At
	for i, smp := range samples {
		pts[i].X = smp.At.Sub(t0).Seconds()
		pts[i].Y = float64(smp.BitRate)
	}

	p := plot.New()
	p.Title.Text = "Stream bitrate"
	p.X.Label.Text = "seconds"
	p.Y.Label.Text = "bits/s"
	line, err := plotter.NewLine(pts)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to build plot: %v", err))
		return
	}
	line.Width = vg.Points(1)
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	p.Add(plotter.NewGrid(), line)

	name := r.URL.Query().Get("name")
	if name == "" {
		name = fmt.Sprintf("bitrate-%d", s.clock.Now().Unix())
	}
	name = security.SanitizeFilename(name) + ".png"

	if err := os.MkdirAll(s.plotDir, 0o755); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to create plot dir: %v", err))
		return
	}
	full := filepath.Join(s.plotDir, name)
	if err := security.ValidatePathWithinDirectory(full, s.plotDir); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid plot name: %v", err))
		return
	}
	if err := p.Save(8*vg.Inch, 4*vg.Inch, full); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to save plot: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, full)
}
