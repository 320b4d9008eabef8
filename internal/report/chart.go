package report

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/solverlab/bellman/internal/solver"
)

// ConvergenceChart renders the solve diagnostics as an HTML page: the
// max residual per sweep on one chart and every state's value across
// sweeps on another.
func ConvergenceChart(path string, sol *solver.Solution) error {
	iterations := make([]string, len(sol.Residuals))
	for i := range iterations {
		iterations[i] = strconv.Itoa(i + 1)
	}

	residuals := charts.NewLine()
	residuals.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "max residual per sweep"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "log"}),
	)
	items := make([]opts.LineData, len(sol.Residuals))
	for i, r := range sol.Residuals {
		items[i] = opts.LineData{Value: r}
	}
	residuals.SetXAxis(iterations).AddSeries("residual", items)

	values := charts.NewLine()
	values.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "state values per sweep"}),
	)
	values.SetXAxis(iterations)
	for s, label := range sol.StateLabels {
		series := make([]opts.LineData, len(sol.History))
		for i, snapshot := range sol.History {
			series[i] = opts.LineData{Value: snapshot[s]}
		}
		values.AddSeries(label, series)
	}

	page := components.NewPage()
	page.AddCharts(residuals, values)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
