// Package series validates executor output and turns it into a typed,
// chronologically ordered price series.
package series

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/query"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/schema"
)

// ErrNoData means the statement ran but produced no usable rows.
var ErrNoData = errors.New("no data")

type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("result has no %q column", e.Column)
}

type Point struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

type Series struct {
	Name   string  `json:"name,omitempty"`
	Points []Point `json:"points"`
	// Dated is false when the result carried no date column; points then
	// keep the executor's order and have zero dates.
	Dated bool `json:"dated"`
}

func (s Series) Len() int { return len(s.Points) }

func (s Series) First() Point { return s.Points[0] }

func (s Series) Last() Point { return s.Points[len(s.Points)-1] }

// Range returns the earliest and latest dates of a dated series.
func (s Series) Range() (time.Time, time.Time) {
	if len(s.Points) == 0 || !s.Dated {
		return time.Time{}, time.Time{}
	}
	return s.Points[0].Date, s.Points[len(s.Points)-1].Date
}

func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Close
	}
	return out
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	schema.DateLayout,
}

// Normalize checks the required columns, drops rows without a finite close
// or a parseable date and sorts by date ascending. Rows with equal dates
// are ordered by close so that row order in the input never matters.
func Normalize(result query.Result) (Series, error) {
	if len(result.Rows) == 0 {
		return Series{}, ErrNoData
	}
	closeIdx := result.ColumnIndex(schema.ColumnClose)
	if closeIdx < 0 {
		return Series{}, &MissingColumnError{Column: schema.ColumnClose}
	}
	dateIdx := result.ColumnIndex(schema.ColumnDate)

	out := Series{Name: seriesName(result), Dated: dateIdx >= 0}
	out.Points = make([]Point, 0, len(result.Rows))
	for _, row := range result.Rows {
		value, ok := toFloat(cell(row, closeIdx))
		if !ok {
			continue
		}
		point := Point{Close: value}
		if dateIdx >= 0 {
			date, ok := toDate(cell(row, dateIdx))
			if !ok {
				continue
			}
			point.Date = date
		}
		out.Points = append(out.Points, point)
	}
	if len(out.Points) == 0 {
		return Series{}, ErrNoData
	}
	if out.Dated {
		sort.SliceStable(out.Points, func(i, j int) bool {
			a, b := out.Points[i], out.Points[j]
			if !a.Date.Equal(b.Date) {
				return a.Date.Before(b.Date)
			}
			return a.Close < b.Close
		})
	}
	return out, nil
}

func seriesName(result query.Result) string {
	for _, column := range []string{schema.ColumnTicker, schema.ColumnBrandName} {
		idx := result.ColumnIndex(column)
		if idx < 0 {
			continue
		}
		for _, row := range result.Rows {
			if name := strings.TrimSpace(fmt.Sprint(cell(row, idx))); name != "" && name != "<nil>" {
				return name
			}
		}
	}
	return ""
}

func cell(row []any, idx int) any {
	if idx < 0 || idx >= len(row) {
		return nil
	}
	return row[idx]
}

func toFloat(value any) (float64, bool) {
	var out float64
	switch typed := value.(type) {
	case float64:
		out = typed
	case float32:
		out = float64(typed)
	case int64:
		out = float64(typed)
	case int32:
		out = float64(typed)
	case int:
		out = float64(typed)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, false
		}
		out = parsed
	case []byte:
		return toFloat(string(typed))
	case fmt.Stringer:
		return toFloat(typed.String())
	default:
		return 0, false
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, false
	}
	return out, true
}

func toDate(value any) (time.Time, bool) {
	switch typed := value.(type) {
	case time.Time:
		return typed.UTC(), true
	case string:
		raw := strings.TrimSpace(typed)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return parsed.UTC(), true
			}
		}
		return time.Time{}, false
	case []byte:
		return toDate(string(typed))
	default:
		return time.Time{}, false
	}
}
