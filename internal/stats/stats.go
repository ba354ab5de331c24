// Package stats summarizes a normalized price series.
package stats

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/series"
)

var ErrEmptySeries = errors.New("series has no points")

type Statistics struct {
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Delta float64 `json:"delta"`
	First float64 `json:"first"`
	Last  float64 `json:"last"`
}

// Summarize computes the aggregates over close values. Delta is last minus
// first by position, so the series must already be sorted.
func Summarize(s series.Series) (Statistics, error) {
	if s.Len() == 0 {
		return Statistics{}, ErrEmptySeries
	}
	closes := s.Closes()
	out := Statistics{
		Min:   closes[0],
		Max:   closes[0],
		First: closes[0],
		Last:  closes[len(closes)-1],
	}
	var sum float64
	for _, value := range closes {
		sum += value
		if value < out.Min {
			out.Min = value
		}
		if value > out.Max {
			out.Max = value
		}
	}
	out.Mean = sum / float64(len(closes))
	// Float rounding can push the mean a hair outside [min, max].
	out.Mean = clamp(out.Mean, out.Min, out.Max)
	out.Delta = out.Last - out.First
	return out, nil
}

type Line struct {
	Name  string
	Value float64
}

// Lines returns the four headline figures with their display names.
func (s Statistics) Lines() []Line {
	return []Line{
		{Name: "Средняя цена", Value: s.Mean},
		{Name: "Минимальная цена", Value: s.Min},
		{Name: "Максимальная цена", Value: s.Max},
		{Name: "Изменение (начало-конец)", Value: s.Delta},
	}
}

func (s Statistics) Text() string {
	var b strings.Builder
	for i, line := range s.Lines() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %.2f", line.Name, line.Value)
	}
	return b.String()
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
