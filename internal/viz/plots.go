package viz

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/guptarohit/asciigraph"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/san-kum/salto/internal/ocp"
)

// TerminalPlot renders one coordinate of a series across all phases.
func TerminalPlot(sol *ocp.Solution, s Series, index, width, height int) (string, error) {
	_, ys, err := Extract(sol, s, index)
	if err != nil {
		return "", err
	}
	caption := fmt.Sprintf("%s[%d] over %.3fs", s, index, sol.TotalTime())
	return asciigraph.Plot(ys,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	), nil
}

func limitedTicker(maxLabels int, labelFmt string) plot.Ticker {
	if maxLabels < 2 {
		maxLabels = 2
	}
	return plot.TickerFunc(func(min, max float64) []plot.Tick {
		if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) {
			return nil
		}
		if min == max {
			return []plot.Tick{{Value: min, Label: fmt.Sprintf(labelFmt, min)}}
		}
		step := (max - min) / float64(maxLabels-1)
		ticks := make([]plot.Tick, 0, maxLabels)
		for i := 0; i < maxLabels; i++ {
			v := min + float64(i)*step
			ticks = append(ticks, plot.Tick{Value: v, Label: fmt.Sprintf(labelFmt, v)})
		}
		return ticks
	})
}

func stylePlot(p *plot.Plot) {
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.Title.Padding = vg.Points(8)
	p.X.Label.TextStyle.Font.Size = vg.Points(12)
	p.Y.Label.TextStyle.Font.Size = vg.Points(12)
	p.X.Tick.Marker = limitedTicker(8, "%.2f")
	p.Y.Tick.Marker = limitedTicker(8, "%.1f")
	p.Legend.Top = true
}

func savePlotPNG(p *plot.Plot, widthIn, heightIn float64, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(widthIn)*vg.Inch, vg.Length(heightIn)*vg.Inch),
		vgimg.UseDPI(150),
	)
	p.Draw(draw.New(c))

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cannot create png: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(bw); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return bw.Flush()
}

// NewSeriesPlot draws every column of s against time, with dashed
// vertical lines at phase boundaries.
func NewSeriesPlot(sol *ocp.Solution, s Series, labels []string) (*plot.Plot, error) {
	width := s.Width(sol)
	if width == 0 {
		return nil, fmt.Errorf("no phase carries %s", s)
	}
	p := plot.New()
	p.Title.Text = s.String()
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = s.String()
	stylePlot(p)

	for j := 0; j < width; j++ {
		ts, ys, err := Extract(sol, s, j)
		if err != nil {
			return nil, err
		}
		pts := make(plotter.XYs, len(ts))
		for i := range ts {
			pts[i].X, pts[i].Y = ts[i], ys[i]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = plotutil.Color(j)
		p.Add(line)
		name := fmt.Sprintf("%s%d", s, j)
		if j < len(labels) {
			name = labels[j]
		}
		p.Legend.Add(name, line)
	}

	for _, ph := range sol.Phases[1:] {
		boundary, err := plotter.NewLine(plotter.XYs{{X: ph.Start, Y: p.Y.Min}, {X: ph.Start, Y: p.Y.Max}})
		if err != nil {
			return nil, err
		}
		boundary.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(boundary)
	}
	return p, nil
}

func SavePNG(sol *ocp.Solution, s Series, labels []string, filename string) error {
	p, err := NewSeriesPlot(sol, s, labels)
	if err != nil {
		return err
	}
	return savePlotPNG(p, 8.0, 5.0, filename)
}

// SaveAll writes one PNG per series the solution carries and returns the
// written paths.
func SaveAll(sol *ocp.Solution, dir string, dofNames []string) ([]string, error) {
	var written []string
	for _, s := range []Series{SeriesQ, SeriesQdot, SeriesTau, SeriesLambda, SeriesContact} {
		if s.Width(sol) == 0 {
			continue
		}
		var labels []string
		if s == SeriesQ || s == SeriesQdot {
			labels = dofNames
		}
		path := filepath.Join(dir, s.String()+".png")
		if err := SavePNG(sol, s, labels, path); err != nil {
			return written, fmt.Errorf("%s: %w", s, err)
		}
		written = append(written, path)
	}
	return written, nil
}
