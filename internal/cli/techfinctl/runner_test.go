package techfinctl

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func TestRunHealthCommand(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "health"}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodGet || gotPath != "/v1/health" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if !strings.Contains(stdout.String(), `"status": "ok"`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunTranslateSendsQuestion(t *testing.T) {
	var gotPath string
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"sql":"SELECT date, close FROM stock_data"}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "translate", "Apple", "за", "март"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotPath != "/v1/translate" || payload["question"] != "Apple за март" {
		t.Fatalf("path=%s payload=%v", gotPath, payload)
	}
	if !strings.Contains(stdout.String(), "SELECT date, close") {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunAskPrintsStatsAndWritesChart(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ask" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"state":            "replied",
			"text":             "Цена выросла на 5%.",
			"chart_title":      "Динамика цен: AAPL (2024-03-01 - 2024-03-29)",
			"stats":            map[string]float64{"mean": 172.5, "min": 168.2, "max": 180.1, "delta": 5.25},
			"chart_png_base64": base64.StdEncoding.EncodeToString(png),
		})
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	var written []byte
	var writtenName string
	code := Run(context.Background(), []string{"-base-url", srv.URL, "-out", "chart.png", "-no-color", "ask", "Apple март"}, Options{
		Stdout: &stdout,
		Stderr: &stderr,
		WriteFile: func(name string, data []byte, _ os.FileMode) error {
			writtenName, written = name, data
			return nil
		},
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"Динамика цен: AAPL", "Средняя цена", "172.50", "+5.25 ▲", "Цена выросла на 5%.", "chart written to chart.png"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stdout missing %q:\n%s", want, out)
		}
	}
	if writtenName != "chart.png" || !bytes.Equal(written, png) {
		t.Fatalf("written %s = %v", writtenName, written)
	}
}

func TestRunAskAbortedExitsNonZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"state":"aborted","error_kind":"no_data","text":"нет данных","trace_id":"t1"}`)
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "ask", "Nokia"}, Options{Stderr: &stderr, NoColor: true})
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "нет данных") || !strings.Contains(stderr.String(), "error_kind=no_data") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error_code":"NOT_READY"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "ready"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	for _, args := range [][]string{{"unknown"}, {"ask"}, {}} {
		var stderr bytes.Buffer
		code := Run(context.Background(), args, Options{Stderr: &stderr})
		if code != 2 {
			t.Fatalf("args %v: exit code = %d", args, code)
		}
		if stderr.Len() == 0 {
			t.Fatalf("args %v: expected usage output", args)
		}
	}
}
