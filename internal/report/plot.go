package report

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"cifarnet/internal/metrics"
)

// PlotHistory renders validation loss and accuracy against epoch index.
// The image format follows the extension of path (.svg, .png, .pdf).
func PlotHistory(path string, history metrics.History) error {
	if len(history) == 0 {
		return errors.New("plot: empty history")
	}
	p := plot.New()
	p.Title.Text = "Validation loss and accuracy vs. epoch"
	p.X.Label.Text = "epoch"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	for i, series := range []struct {
		name   string
		values []float64
	}{
		{"val_loss", history.Losses()},
		{"val_acc", history.Accuracies()},
	} {
		pts := make(plotter.XYs, len(series.values))
		for epoch, v := range series.values {
			pts[epoch].X = float64(epoch)
			pts[epoch].Y = v
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return fmt.Errorf("plot %s: %w", series.name, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.5)
		points.Shape = plotutil.Shape(i)
		points.Color = plotutil.Color(i)
		p.Add(line, points)
		p.Legend.Add(series.name, line, points)
	}

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
