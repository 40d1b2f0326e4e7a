package render

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"

	"cohort-dashboard/internal/models"
)

const (
	paletteSteps = 64
	monthLabel   = "2006-01"
)

// retentionGrid adapts a matrix to plotter.GridXYZ. Column and row
// coordinates are positions, not index values, so the cells stay evenly
// spaced when an index is missing; the first cohort is drawn on top.
type retentionGrid struct {
	m *models.RetentionMatrix
}

func (g retentionGrid) Dims() (c, r int) { return len(g.m.Indexes), len(g.m.Cohorts) }
func (g retentionGrid) X(c int) float64  { return float64(c) }
func (g retentionGrid) Y(r int) float64  { return float64(len(g.m.Cohorts) - 1 - r) }

func (g retentionGrid) Z(c, r int) float64 {
	v := g.m.Values[r][c]
	if v == nil {
		return math.NaN()
	}
	return Clamp(*v)
}

// WritePNG draws m as an annotated heatmap of the given size in
// centimetres. An empty matrix yields a titled, empty chart.
func WritePNG(w io.Writer, m *models.RetentionMatrix, width, height float64) error {
	p := plot.New()
	p.X.Label.Text = "Cohort index"
	p.Y.Label.Text = "Cohort month"

	if m.Empty() {
		p.Title.Text = fmt.Sprintf("No retention data for %s", m.Country)
		return writePlot(w, p, width, height)
	}
	p.Title.Text = fmt.Sprintf("Monthly retention, %s", m.Country)

	grid := retentionGrid{m: m}
	hm := plotter.NewHeatMap(grid, bluesPalette(paletteSteps))
	hm.Min = ScaleMin
	hm.Max = ScaleMax
	hm.NaN = color.Transparent
	p.Add(hm)

	var xys plotter.XYs
	var labels []string
	for r := range m.Cohorts {
		for c := range m.Indexes {
			v := m.Values[r][c]
			if v == nil {
				continue
			}
			xys = append(xys, plotter.XY{X: grid.X(c), Y: grid.Y(r)})
			labels = append(labels, Percent(*v))
		}
	}
	annotations, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
	if err != nil {
		return fmt.Errorf("heatmap labels: %w", err)
	}
	for i := range annotations.TextStyle {
		annotations.TextStyle[i].XAlign = text.XCenter
		annotations.TextStyle[i].YAlign = text.YCenter
	}
	p.Add(annotations)

	xticks := make([]plot.Tick, len(m.Indexes))
	for c, idx := range m.Indexes {
		xticks[c] = plot.Tick{Value: grid.X(c), Label: fmt.Sprint(idx)}
	}
	yticks := make([]plot.Tick, len(m.Cohorts))
	for r, month := range m.Cohorts {
		yticks[r] = plot.Tick{Value: grid.Y(r), Label: month.Format(monthLabel)}
	}
	p.X.Tick.Marker = plot.ConstantTicks(xticks)
	p.Y.Tick.Marker = plot.ConstantTicks(yticks)

	return writePlot(w, p, width, height)
}

func writePlot(w io.Writer, p *plot.Plot, width, height float64) error {
	wt, err := p.WriterTo(vg.Length(width)*vg.Centimeter, vg.Length(height)*vg.Centimeter, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}
