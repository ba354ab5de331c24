// Package schema describes the single queryable table and the rules a
// generated query has to follow.
package schema

import (
	"fmt"
	"strings"
	"time"
)

const (
	TableName = "stock_data"
	Year      = 2024

	ColumnDate        = "date"
	ColumnTicker      = "ticker"
	ColumnBrandName   = "brand_name"
	ColumnClose       = "close"
	ColumnIndustryTag = "industry_tag"
	ColumnYear        = "year_extracted"

	DateLayout = "2006-01-02"
)

// StockRow is one daily price observation as stored in stock_data.
type StockRow struct {
	Date        time.Time `json:"date" parquet:"date,timestamp(millisecond)"`
	Ticker      string    `json:"ticker" parquet:"ticker"`
	BrandName   string    `json:"brand_name" parquet:"brand_name"`
	Close       float64   `json:"close" parquet:"close"`
	IndustryTag string    `json:"industry_tag" parquet:"industry_tag"`
	Year        int32     `json:"year_extracted" parquet:"year_extracted"`
}

type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Contract is the text injected verbatim into the translation prompt.
type Contract struct {
	Table   string   `json:"table"`
	Columns []Column `json:"columns"`
	Rules   []string `json:"rules"`
}

func Default() Contract {
	return Contract{
		Table: TableName,
		Columns: []Column{
			{Name: ColumnDate, Type: "TEXT", Description: "YYYY-MM-DD"},
			{Name: ColumnTicker, Type: "TEXT"},
			{Name: ColumnBrandName, Type: "TEXT"},
			{Name: ColumnClose, Type: "REAL"},
			{Name: ColumnIndustryTag, Type: "TEXT"},
			{Name: ColumnYear, Type: "INTEGER"},
		},
		Rules: []string{
			"ВСЕГДА выбирай колонки date и close.",
			"Фильтруй по brand_name (или ticker) и по date, используя BETWEEN 'YYYY-MM-DD' AND 'YYYY-MM-DD'.",
			"ВСЕГДА сортируй по date ASC.",
		},
	}
}

// Text renders the table description the way the model sees it.
func (c Contract) Text() string {
	parts := make([]string, 0, len(c.Columns))
	for _, col := range c.Columns {
		if col.Description != "" {
			parts = append(parts, fmt.Sprintf("%s (%s, %s)", col.Name, col.Type, col.Description))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", col.Name, col.Type))
	}
	return fmt.Sprintf("У тебя есть таблица '%s' с колонками: %s. Все данные за %d год.", c.Table, strings.Join(parts, ", "), Year)
}

// RulesText numbers the query rules starting at 1.
func (c Contract) RulesText() string {
	var b strings.Builder
	for i, rule := range c.Rules {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, rule)
	}
	return b.String()
}

func (c Contract) ColumnNames() []string {
	out := make([]string, 0, len(c.Columns))
	for _, col := range c.Columns {
		out = append(out, col.Name)
	}
	return out
}
