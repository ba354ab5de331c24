package schema

import (
	"strings"
	"testing"
)

func TestDefaultContractText(t *testing.T) {
	text := Default().Text()
	want := "У тебя есть таблица 'stock_data' с колонками: date (TEXT, YYYY-MM-DD), ticker (TEXT), brand_name (TEXT), close (REAL), industry_tag (TEXT), year_extracted (INTEGER). Все данные за 2024 год."
	if text != want {
		t.Fatalf("Text() = %q\nwant    %q", text, want)
	}
}

func TestRulesTextNumbersRules(t *testing.T) {
	rules := Default().RulesText()
	for _, prefix := range []string{"1. ", "2. ", "3. "} {
		if !strings.Contains(rules, prefix) {
			t.Fatalf("RulesText() missing %q in %q", prefix, rules)
		}
	}
	if !strings.Contains(rules, "date ASC") {
		t.Fatalf("RulesText() = %q", rules)
	}
}

func TestColumnNames(t *testing.T) {
	got := Default().ColumnNames()
	if len(got) != 6 || got[0] != ColumnDate || got[3] != ColumnClose {
		t.Fatalf("ColumnNames() = %v", got)
	}
}
