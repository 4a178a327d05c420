package history

import (
	"errors"
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrNotEnoughPoints is returned when a chart would have fewer than two points.
var ErrNotEnoughPoints = errors.New("history: at least two samples are required")

const (
	chartWidth  = 380
	chartHeight = 240
)

var (
	colorExpectancy = drawing.Color{R: 0xBB, G: 0x21, B: 0x17, A: 255}
	colorBlue       = drawing.Color{R: 0x15, G: 0x69, B: 0xC7, A: 255}
	colorUpper      = drawing.Color{R: 0x5C, G: 0xB8, B: 0x5C, A: 255}
	colorLower      = drawing.Color{R: 0xF0, G: 0xAD, B: 0x4E, A: 255}
	colorDanger     = drawing.Color{R: 0xD9, G: 0x53, B: 0x4F, A: 255}

	boundDash = []float64{5, 5}
)

func column(samples []Sample, f func(Sample) float64) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = f(s)
	}
	return out
}

func ageAxis() chart.XAxis {
	return chart.XAxis{
		Name:  "Age (Years)",
		Style: chart.Style{FontSize: 8},
		ValueFormatter: func(v interface{}) string {
			return fmt.Sprintf("%.0f", v.(float64))
		},
	}
}

// RenderLifeExpectancy writes the life-expectancy trend with its bounds as a PNG.
func RenderLifeExpectancy(w io.Writer, samples []Sample) error {
	if len(samples) < 2 {
		return ErrNotEnoughPoints
	}
	ages := column(samples, func(s Sample) float64 { return s.Age })

	graph := chart.Chart{
		Title:  "Life Expectancy Trend",
		Width:  chartWidth,
		Height: chartHeight,
		XAxis:  ageAxis(),
		YAxis: chart.YAxis{
			Name:  "Life Expectancy (Years)",
			Style: chart.Style{FontSize: 8},
			Range: &chart.ContinuousRange{Min: 60, Max: 90},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Life Expectancy",
				XValues: ages,
				YValues: column(samples, func(s Sample) float64 { return s.LifeExpectancy }),
				Style:   chart.Style{StrokeColor: colorExpectancy, StrokeWidth: 3},
			},
			chart.ContinuousSeries{
				Name:    "Upper Bound",
				XValues: ages,
				YValues: column(samples, func(s Sample) float64 { return s.UpperBound }),
				Style:   chart.Style{StrokeColor: colorUpper, StrokeWidth: 1.5, StrokeDashArray: boundDash},
			},
			chart.ContinuousSeries{
				Name:    "Lower Bound",
				XValues: ages,
				YValues: column(samples, func(s Sample) float64 { return s.LowerBound }),
				Style:   chart.Style{StrokeColor: colorLower, StrokeWidth: 1.5, StrokeDashArray: boundDash},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render life expectancy chart: %w", err)
	}
	return nil
}

// RenderRisk writes heart-attack, stroke and cancer risk over age as a PNG.
func RenderRisk(w io.Writer, samples []Sample) error {
	if len(samples) < 2 {
		return ErrNotEnoughPoints
	}
	ages := column(samples, func(s Sample) float64 { return s.Age })

	graph := chart.Chart{
		Title:  "Health Risks",
		Width:  chartWidth,
		Height: chartHeight,
		XAxis:  ageAxis(),
		YAxis: chart.YAxis{
			Name:  "Risk",
			Style: chart.Style{FontSize: 8},
			Range: &chart.ContinuousRange{Min: 0, Max: 1},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Heart Attack",
				XValues: ages,
				YValues: column(samples, func(s Sample) float64 { return s.HeartAttackRisk }),
				Style:   chart.Style{StrokeColor: colorExpectancy, StrokeWidth: 2},
			},
			chart.ContinuousSeries{
				Name:    "Stroke",
				XValues: ages,
				YValues: column(samples, func(s Sample) float64 { return s.StrokeRisk }),
				Style:   chart.Style{StrokeColor: colorBlue, StrokeWidth: 2},
			},
			chart.ContinuousSeries{
				Name:    "Cancer",
				XValues: ages,
				YValues: column(samples, func(s Sample) float64 { return s.CancerRisk }),
				Style:   chart.Style{StrokeColor: colorDanger, StrokeWidth: 2},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render risk chart: %w", err)
	}
	return nil
}
