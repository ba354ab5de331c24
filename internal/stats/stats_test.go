package stats

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/series"
)

func build(closes ...float64) series.Series {
	s := series.Series{Dated: true}
	for i, c := range closes {
		s.Points = append(s.Points, series.Point{Date: time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC), Close: c})
	}
	return s
}

func TestSummarize(t *testing.T) {
	got, err := Summarize(build(10, 14, 8, 12))
	require.NoError(t, err)
	assert.InDelta(t, 11.0, got.Mean, 1e-9)
	assert.Equal(t, 8.0, got.Min)
	assert.Equal(t, 14.0, got.Max)
	assert.Equal(t, 2.0, got.Delta)
	assert.Equal(t, 10.0, got.First)
	assert.Equal(t, 12.0, got.Last)
}

func TestSummarizeDeltaIsPositionalNotByValue(t *testing.T) {
	got, err := Summarize(build(20, 5, 30, 15))
	require.NoError(t, err)
	assert.Equal(t, -5.0, got.Delta)
}

func TestSummarizeSinglePoint(t *testing.T) {
	got, err := Summarize(build(42.5))
	require.NoError(t, err)
	assert.Equal(t, Statistics{Mean: 42.5, Min: 42.5, Max: 42.5, Delta: 0, First: 42.5, Last: 42.5}, got)
}

func TestSummarizeEmptySeries(t *testing.T) {
	_, err := Summarize(series.Series{})
	assert.ErrorIs(t, err, ErrEmptySeries)
}

func TestSummarizeBoundsHoldForRandomSeries(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 1; n <= 200; n++ {
		closes := make([]float64, n)
		for i := range closes {
			closes[i] = 50 + rng.Float64()*500
		}
		got, err := Summarize(build(closes...))
		require.NoError(t, err)
		assert.LessOrEqual(t, got.Min, got.Mean)
		assert.LessOrEqual(t, got.Mean, got.Max)
		assert.Equal(t, closes[n-1]-closes[0], got.Delta)
	}
}

func TestSummarizeEqualValues(t *testing.T) {
	got, err := Summarize(build(0.1, 0.1, 0.1))
	require.NoError(t, err)
	assert.Equal(t, got.Min, got.Mean)
	assert.Equal(t, got.Max, got.Mean)
}

func TestText(t *testing.T) {
	got := Statistics{Mean: 180.456, Min: 170, Max: 190.1, Delta: -4.5}.Text()
	want := "- Средняя цена: 180.46\n- Минимальная цена: 170.00\n- Максимальная цена: 190.10\n- Изменение (начало-конец): -4.50"
	assert.Equal(t, want, got)
}
