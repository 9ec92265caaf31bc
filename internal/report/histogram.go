// Package report renders tracking results: a PNG histogram of edge weights
// and an HTML force-layout graph of identified units.
package report

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/banshee-data/unitmatch/internal/monitoring"
	"github.com/banshee-data/unitmatch/internal/tracking"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// ErrNoEdges is returned when there is nothing to plot.
var ErrNoEdges = errors.New("no edges to plot")

const histogramBins = 40

// edgeWeights collects every edge weight across graphs in group order.
func edgeWeights(graphs map[string]*tracking.Graph) plotter.Values {
	groups := make([]string, 0, len(graphs))
	for g := range graphs {
		groups = append(groups, g)
	}
	slices.Sort(groups)

	var vs plotter.Values
	for _, g := range groups {
		for _, e := range graphs[g].Edges() {
			vs = append(vs, e.Weight)
		}
	}
	return vs
}

// weightPlot builds a histogram of edge weights with a vertical marker at
// threshold. A non-positive threshold draws no marker.
func weightPlot(graphs map[string]*tracking.Graph, threshold float64) (*plot.Plot, error) {
	vs := edgeWeights(graphs)
	if len(vs) == 0 {
		return nil, ErrNoEdges
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Edge dissimilarity (%d edges)", len(vs))
	p.X.Label.Text = "Dissimilarity"
	p.Y.Label.Text = "Edges"

	h, err := plotter.NewHist(vs, histogramBins)
	if err != nil {
		return nil, fmt.Errorf("failed to build histogram: %w", err)
	}
	h.FillColor = plotutil.Color(0)
	p.Add(h)

	if threshold > 0 {
		_, _, _, top := h.DataRange()
		marker, err := plotter.NewLine(plotter.XYs{{X: threshold, Y: 0}, {X: threshold, Y: top}})
		if err != nil {
			return nil, err
		}
		marker.Color = plotutil.Color(1)
		marker.Width = vg.Points(1.5)
		marker.Dashes = plotutil.Dashes(1)
		p.Add(marker)
		p.Legend.Add(fmt.Sprintf("prune at %.3g", threshold), marker)
		p.Legend.Top = true
	}
	return p, nil
}

// WriteWeightHistogram renders the histogram as PNG to w.
func WriteWeightHistogram(w io.Writer, graphs map[string]*tracking.Graph, threshold float64) error {
	p, err := weightPlot(graphs, threshold)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render histogram: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveWeightHistogram writes the histogram to path; the format follows the
// file extension.
func SaveWeightHistogram(path string, graphs map[string]*tracking.Graph, threshold float64) error {
	p, err := weightPlot(graphs, threshold)
	if err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save histogram %s: %w", path, err)
	}
	monitoring.Logf("[report] wrote %s", path)
	return nil
}
