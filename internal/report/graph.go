package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/banshee-data/unitmatch/internal/monitoring"
	"github.com/banshee-data/unitmatch/internal/tracking"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const unmatchedCategory = "unmatched"

// identityGraph builds the force-layout chart of one channel group. Units of
// the same identity share a category; everything else is "unmatched".
func identityGraph(g *tracking.Graph, ids []tracking.IdentifiedUnit) *charts.Graph {
	categories := []*opts.GraphCategory{{Name: unmatchedCategory}}
	member := make(map[tracking.UnitKey]int)
	for i, id := range ids {
		categories = append(categories, &opts.GraphCategory{Name: fmt.Sprintf("unit %d", i+1)})
		for s, u := range id.Units {
			member[tracking.UnitKey{Session: s, Unit: u}] = i + 1
		}
	}

	keys := g.Nodes()
	slices.SortFunc(keys, tracking.UnitKey.Compare)
	nodes := make([]opts.GraphNode, 0, len(keys))
	for _, k := range keys {
		nodes = append(nodes, opts.GraphNode{
			Name:       k.String(),
			Category:   member[k],
			SymbolSize: 14,
		})
	}

	edges := g.Edges()
	links := make([]opts.GraphLink, 0, len(edges))
	for _, e := range edges {
		links = append(links, opts.GraphLink{
			Source: e.From.String(),
			Target: e.To.String(),
			Value:  float32(e.Weight),
		})
	}

	chart := charts.NewGraph()
	chart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Unit identities",
			Width:     "900px",
			Height:    "700px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Channel group %s", g.ChannelGroup),
			Subtitle: fmt.Sprintf("units=%d edges=%d identities=%d", len(nodes), len(links), len(ids)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	chart.AddSeries(g.ChannelGroup, nodes, links,
		charts.WithGraphChartOpts(opts.GraphChart{
			Layout:     "force",
			Roam:       opts.Bool(true),
			Force:      &opts.GraphForce{Repulsion: 200, EdgeLength: 80},
			Categories: categories,
		}),
	)
	return chart
}

// WriteIdentityGraph renders one chart per channel group on a single HTML
// page.
func WriteIdentityGraph(w io.Writer, graphs map[string]*tracking.Graph, ids map[string][]tracking.IdentifiedUnit) error {
	groups := make([]string, 0, len(graphs))
	for g := range graphs {
		groups = append(groups, g)
	}
	slices.Sort(groups)

	page := components.NewPage()
	for _, g := range groups {
		page.AddCharts(identityGraph(graphs[g], ids[g]))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("failed to render identity graph: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// SaveIdentityGraph writes the identity graph page to path.
func SaveIdentityGraph(path string, graphs map[string]*tracking.Graph, ids map[string][]tracking.IdentifiedUnit) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteIdentityGraph(f, graphs, ids); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	monitoring.Logf("[report] wrote %s", path)
	return nil
}
