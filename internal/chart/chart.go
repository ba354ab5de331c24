// Package chart renders a price series as a PNG line chart.
package chart

import (
	"bytes"
	"fmt"
	"image/color"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/schema"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/series"
)

const (
	DefaultName = "Акции"
	xLabel      = "Дата"
	yLabel      = "Цена закрытия (USD)"
)

var lineColor = color.RGBA{R: 0x00, G: 0x77, B: 0xc9, A: 0xff}

type Options struct {
	Width  vg.Length
	Height vg.Length
}

type Chart struct {
	PNG   []byte
	Title string
}

// Renderer is stateless; every call builds and discards its own plot.
type Renderer struct {
	width  vg.Length
	height vg.Length
}

func NewRenderer(opts Options) *Renderer {
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = 10 * vg.Inch
	}
	if height <= 0 {
		height = 6 * vg.Inch
	}
	return &Renderer{width: width, height: height}
}

// Render draws s. nameHint labels the series when the result carried no
// ticker or brand column.
func (r *Renderer) Render(s series.Series, nameHint string) (Chart, error) {
	if s.Len() == 0 {
		return Chart{}, fmt.Errorf("render chart: series has no points")
	}
	name := displayName(s, nameHint)
	title := Title(s, name)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	if s.Dated {
		p.X.Tick.Marker = plot.TimeTicks{Format: schema.DateLayout}
	}
	p.Add(plotter.NewGrid())

	line, points, err := plotter.NewLinePoints(toXYs(s))
	if err != nil {
		return Chart{}, fmt.Errorf("build chart series: %w", err)
	}
	line.Color = lineColor
	points.Shape = draw.CircleGlyph{}
	points.Radius = vg.Points(3)
	points.Color = lineColor
	p.Add(line, points)
	p.Legend.Add(name+" Цена закрытия", line, points)
	p.Legend.Top = true

	writer, err := p.WriterTo(r.width, r.height, "png")
	if err != nil {
		return Chart{}, fmt.Errorf("create png canvas: %w", err)
	}
	var buf bytes.Buffer
	if _, err := writer.WriteTo(&buf); err != nil {
		return Chart{}, fmt.Errorf("encode png: %w", err)
	}
	return Chart{PNG: buf.Bytes(), Title: title}, nil
}

// Title names the series and, for dated series, its observed date range.
func Title(s series.Series, name string) string {
	if !s.Dated || s.Len() == 0 {
		return fmt.Sprintf("Динамика цен: %s", name)
	}
	first, last := s.Range()
	return fmt.Sprintf("Динамика цен: %s (%s - %s)", name, first.Format(schema.DateLayout), last.Format(schema.DateLayout))
}

func displayName(s series.Series, hint string) string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	if hint = strings.TrimSpace(hint); hint != "" {
		return hint
	}
	return DefaultName
}

func toXYs(s series.Series) plotter.XYs {
	xys := make(plotter.XYs, s.Len())
	for i, point := range s.Points {
		if s.Dated {
			xys[i].X = float64(point.Date.Unix())
		} else {
			xys[i].X = float64(i)
		}
		xys[i].Y = point.Close
	}
	return xys
}
