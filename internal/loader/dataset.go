// Package loader turns the daily-prices CSV into the stock_data table and
// its Parquet snapshot.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/schema"
)

const (
	DefaultCSVPath  = "filtered_tech_stocks_2024.csv"
	IndustryFilter  = "technology"
	columnCountry   = "country"
	columnVolume    = "volume"
	textColumnWidth = 100
)

var ErrNoRows = errors.New("no rows left after filtering")

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	schema.DateLayout,
}

// Dataset is the filtered CSV content. Each row has one value per column,
// typed according to ColumnType: time.Time, string, int64, float64 or nil.
type Dataset struct {
	Columns []string
	Rows    [][]any
	// Skipped counts rows dropped for an unparseable date.
	Skipped int
	// Filtered counts rows dropped by the year and industry filter.
	Filtered int
}

// ReadCSV parses r, derives year_extracted and keeps the 2024 technology rows.
func ReadCSV(r io.Reader) (Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Dataset{}, fmt.Errorf("csv header is missing")
		}
		return Dataset{}, fmt.Errorf("read csv header: %w", err)
	}
	columns := make([]string, 0, len(header)+1)
	seen := make(map[string]struct{}, len(header))
	for _, raw := range header {
		name := NormalizeColumnName(raw)
		if name == "" {
			return Dataset{}, fmt.Errorf("csv header %q normalizes to an empty name", raw)
		}
		if _, ok := seen[name]; ok {
			return Dataset{}, fmt.Errorf("duplicate csv column %q", name)
		}
		seen[name] = struct{}{}
		columns = append(columns, name)
	}
	dateIdx := indexOf(columns, schema.ColumnDate)
	industryIdx := indexOf(columns, schema.ColumnIndustryTag)
	if dateIdx < 0 {
		return Dataset{}, fmt.Errorf("csv has no %q column", schema.ColumnDate)
	}
	if industryIdx < 0 {
		return Dataset{}, fmt.Errorf("csv has no %q column", schema.ColumnIndustryTag)
	}
	yearIdx := indexOf(columns, schema.ColumnYear)
	if yearIdx < 0 {
		columns = append(columns, schema.ColumnYear)
		yearIdx = len(columns) - 1
	}

	ds := Dataset{Columns: columns}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return Dataset{}, fmt.Errorf("read csv line %d: %w", line, err)
		}
		date, ok := parseDate(field(record, dateIdx))
		if !ok {
			ds.Skipped++
			continue
		}
		if date.Year() != schema.Year || field(record, industryIdx) != IndustryFilter {
			ds.Filtered++
			continue
		}
		row := make([]any, len(columns))
		for i, name := range columns {
			switch i {
			case dateIdx:
				row[i] = date
			case yearIdx:
				row[i] = int64(date.Year())
			default:
				row[i] = convertValue(name, field(record, i))
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

// NormalizeColumnName lower-cases a header and collapses every run of
// non-alphanumeric characters into a single underscore.
func NormalizeColumnName(raw string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(raw) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// ColumnType maps a column name to its PostgreSQL type.
func ColumnType(name string) string {
	switch name {
	case schema.ColumnDate:
		return "TIMESTAMPTZ"
	case schema.ColumnBrandName, schema.ColumnTicker, schema.ColumnIndustryTag, columnCountry:
		return fmt.Sprintf("VARCHAR(%d)", textColumnWidth)
	case columnVolume:
		return "BIGINT"
	case schema.ColumnYear:
		return "INTEGER"
	default:
		return "DECIMAL"
	}
}

// StockRows projects the dataset onto the snapshot model.
func (d Dataset) StockRows() []schema.StockRow {
	idx := func(name string) int { return indexOf(d.Columns, name) }
	dateIdx, tickerIdx, brandIdx := idx(schema.ColumnDate), idx(schema.ColumnTicker), idx(schema.ColumnBrandName)
	closeIdx, industryIdx, yearIdx := idx(schema.ColumnClose), idx(schema.ColumnIndustryTag), idx(schema.ColumnYear)

	rows := make([]schema.StockRow, 0, len(d.Rows))
	for _, values := range d.Rows {
		row := schema.StockRow{}
		if t, ok := at(values, dateIdx).(time.Time); ok {
			row.Date = t
		}
		row.Ticker, _ = at(values, tickerIdx).(string)
		row.BrandName, _ = at(values, brandIdx).(string)
		row.IndustryTag, _ = at(values, industryIdx).(string)
		if v, ok := at(values, closeIdx).(float64); ok {
			row.Close = v
		} else {
			row.Close = math.NaN()
		}
		if v, ok := at(values, yearIdx).(int64); ok {
			row.Year = int32(v)
		}
		rows = append(rows, row)
	}
	return rows
}

func convertValue(column, raw string) any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	switch ColumnType(column) {
	case "BIGINT":
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return int64(v)
		}
		return nil
	case "DECIMAL":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return v
	default:
		return raw
	}
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return calendarDay(t), true
		}
	}
	return time.Time{}, false
}

// calendarDay keeps the trading day as written in the CSV, stored as UTC
// midnight so inclusive YYYY-MM-DD bounds match it.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func at(values []any, idx int) any {
	if idx < 0 || idx >= len(values) {
		return nil
	}
	return values[idx]
}

func indexOf(columns []string, name string) int {
	for i, col := range columns {
		if col == name {
			return i
		}
	}
	return -1
}
