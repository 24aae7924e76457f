package pkg

import (
	"fmt"
	gio "io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"mensus/pkg/io"
	"mensus/pkg/model"
)

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 4 * vg.Inch
)

// plotHistory renders loss and AUC curves per epoch, stacked vertically, as a PNG.
func plotHistory(history []model.EpochStats, fileName string) error {
	lossPlot, err := newCurvePlot("Loss", history,
		func(s model.EpochStats) float64 { return s.Loss },
		func(s model.EpochStats) float64 { return s.ValLoss })
	if err != nil {
		return err
	}
	aucPlot, err := newCurvePlot("AUC", history,
		func(s model.EpochStats) float64 { return s.AUC },
		func(s model.EpochStats) float64 { return s.ValAUC })
	if err != nil {
		return err
	}

	img := vgimg.New(plotWidth, 2*plotHeight)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadY: vg.Millimeter}
	canvases := plot.Align([][]*plot.Plot{{lossPlot}, {aucPlot}}, tiles, dc)
	lossPlot.Draw(canvases[0][0])
	aucPlot.Draw(canvases[1][0])

	png := vgimg.PngCanvas{Canvas: img}
	err = io.WriteFileAtomic(fileName, func(w gio.Writer) error {
		_, err := png.WriteTo(w)
		return err
	})
	if err != nil {
		return fmt.Errorf("error writing plot to %s: %w", fileName, err)
	}
	return nil
}

func newCurvePlot(title string, history []model.EpochStats, train, validation func(model.EpochStats) float64) (*plot.Plot, error) {
	p, err := plot.New()
	if err != nil {
		return nil, fmt.Errorf("error creating plot: %w", err)
	}
	p.Title.Text = title
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = title

	var lines []interface{}
	if points := curvePoints(history, train); len(points) > 0 {
		lines = append(lines, "Train", points)
	}
	if points := curvePoints(history, validation); len(points) > 0 {
		lines = append(lines, "Validation", points)
	}
	if len(lines) > 0 {
		if err := plotutil.AddLinePoints(p, lines...); err != nil {
			return nil, fmt.Errorf("error adding %s curves: %w", title, err)
		}
	}
	return p, nil
}

// curvePoints skips epochs where value is undefined, e.g. AUC of a single class set.
func curvePoints(history []model.EpochStats, value func(model.EpochStats) float64) plotter.XYs {
	points := make(plotter.XYs, 0, len(history))
	for _, s := range history {
		v := value(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		points = append(points, plotter.XY{X: float64(s.Epoch + 1), Y: v})
	}
	return points
}
