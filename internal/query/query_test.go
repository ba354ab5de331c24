package query

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsReadOnly(t *testing.T) {
	tests := map[string]bool{
		"SELECT date, close FROM stock_data":           true,
		"  with x as (select 1) select * from x":       true,
		"DELETE FROM stock_data":                       false,
		"drop table stock_data":                        false,
		"":                                             false,
		"INSERT INTO stock_data VALUES (1); SELECT 1": false,
	}
	for sqlText, want := range tests {
		if got := IsReadOnly(sqlText); got != want {
			t.Fatalf("IsReadOnly(%q) = %v, want %v", sqlText, got, want)
		}
	}
}

func TestStripTrailingSemicolons(t *testing.T) {
	if got := StripTrailingSemicolons(" SELECT 1 ; ;; "); got != "SELECT 1" {
		t.Fatalf("StripTrailingSemicolons() = %q", got)
	}
}

func TestFailureClass(t *testing.T) {
	if got := FailureClass(fmt.Errorf("ping: %w", ErrUnavailable)); got != "unavailable" {
		t.Fatalf("FailureClass() = %q", got)
	}
	if got := FailureClass(fmt.Errorf("%w: syntax", ErrStatement)); got != "statement" {
		t.Fatalf("FailureClass() = %q", got)
	}
	if got := FailureClass(errors.New("x")); got != "unknown" {
		t.Fatalf("FailureClass() = %q", got)
	}
	if got := FailureClass(nil); got != "" {
		t.Fatalf("FailureClass(nil) = %q", got)
	}
}

func TestColumnIndexIsCaseInsensitive(t *testing.T) {
	r := Result{Columns: []string{"Date", " CLOSE "}}
	if r.ColumnIndex("close") != 1 || r.ColumnIndex("date") != 0 || r.ColumnIndex("ticker") != -1 {
		t.Fatalf("ColumnIndex() mismatch for %v", r.Columns)
	}
}

func TestNormalizeValues(t *testing.T) {
	got := NormalizeValues([]any{[]byte("AAPL"), 1.5, nil})
	if got[0] != "AAPL" || got[1] != 1.5 || got[2] != nil {
		t.Fatalf("NormalizeValues() = %#v", got)
	}
}
