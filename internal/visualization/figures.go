package visualization

import (
	"math"

	"github.com/KaramelBytes/datalens/internal/dataset"
)

// Figures are plain maps in the Plotly figure layout so any Plotly front end
// can render them without translation.

func baseLayout(title string, height int, margin [4]int) map[string]any {
	return map[string]any{
		"title":    map[string]any{"text": title},
		"template": "plotly_white",
		"height":   height,
		"margin":   map[string]any{"l": margin[0], "r": margin[1], "t": margin[2], "b": margin[3]},
	}
}

func histogramFigure(col *dataset.Column, title string) map[string]any {
	layout := baseLayout(title, 400, [4]int{50, 50, 50, 50})
	layout["showlegend"] = false
	layout["xaxis"] = map[string]any{"title": map[string]any{"text": col.Name}}
	layout["yaxis"] = map[string]any{"title": map[string]any{"text": "count"}}
	return map[string]any{
		"data": []any{map[string]any{
			"type": "histogram",
			"name": col.Name,
			"x":    col.Values(),
		}},
		"layout": layout,
	}
}

func scatterFigure(x, y *dataset.Column, r float64) map[string]any {
	xs, ys := pairedValues(x.Floats(), y.Floats())
	layout := baseLayout(x.Name+" vs "+y.Name, 400, [4]int{50, 50, 50, 50})
	layout["xaxis"] = map[string]any{"title": map[string]any{"text": x.Name}}
	layout["yaxis"] = map[string]any{"title": map[string]any{"text": y.Name}}
	layout["annotations"] = []any{map[string]any{
		"text": "r=" + formatR(r), "showarrow": false, "xref": "paper", "yref": "paper", "x": 1, "y": 1.08,
	}}
	return map[string]any{
		"data": []any{map[string]any{
			"type": "scatter",
			"mode": "markers",
			"x":    xs,
			"y":    ys,
		}},
		"layout": layout,
	}
}

func barFigure(col string, counts []dataset.ValueCount) map[string]any {
	labels := make([]string, len(counts))
	values := make([]int, len(counts))
	for i, c := range counts {
		labels[i] = c.Value
		values[i] = c.Count
	}
	layout := baseLayout("Distribution of "+col, 400, [4]int{50, 50, 50, 50})
	layout["showlegend"] = false
	layout["xaxis"] = map[string]any{"title": map[string]any{"text": col}}
	layout["yaxis"] = map[string]any{"title": map[string]any{"text": "Count"}}
	return map[string]any{
		"data":   []any{map[string]any{"type": "bar", "x": labels, "y": values}},
		"layout": layout,
	}
}

func heatmapFigure(names []string, matrix [][]float64) map[string]any {
	return map[string]any{
		"data": []any{map[string]any{
			"type":         "heatmap",
			"z":            matrix,
			"x":            names,
			"y":            names,
			"colorscale":   "RdBu",
			"zmid":         0,
			"text":         matrix,
			"texttemplate": "%{text:.2f}",
			"textfont":     map[string]any{"size": 10},
			"colorbar":     map[string]any{"title": map[string]any{"text": "Correlation"}},
		}},
		"layout": baseLayout("Correlation Heatmap", 500, [4]int{100, 50, 50, 100}),
	}
}

func pairedValues(x, y []float64) ([]float64, []float64) {
	var xs, ys []float64
	for i := range x {
		if i >= len(y) || math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	return xs, ys
}
