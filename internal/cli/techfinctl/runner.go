// Package techfinctl implements the operator CLI that talks to the bot's
// HTTP API.
package techfinctl

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/stats"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
	NoColor    bool
	// WriteFile defaults to os.WriteFile.
	WriteFile func(name string, data []byte, perm os.FileMode) error
}

type askResponse struct {
	TraceID    string            `json:"trace_id"`
	State      string            `json:"state"`
	ErrorKind  string            `json:"error_kind"`
	Text       string            `json:"text"`
	SQL        string            `json:"sql"`
	Rows       int               `json:"rows"`
	Stats      *stats.Statistics `json:"stats"`
	ChartTitle string            `json:"chart_title"`
	ChartPNG   string            `json:"chart_png_base64"`
	ChartKey   string            `json:"chart_key"`
	DurationMs int64             `json:"duration_ms"`
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	writeFile := defaults.WriteFile
	if writeFile == nil {
		writeFile = os.WriteFile
	}

	fs := flag.NewFlagSet("techfinctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "TechFin API base URL")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 60s)")
	out := fs.String("out", "", "write the chart PNG of an ask reply to this path")
	showSQL := fs.Bool("sql", false, "print the generated SQL of an ask reply")
	noColor := fs.Bool("no-color", defaults.NoColor, "disable coloured output")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	question := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
	method, path := "", ""
	var body []byte
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "schema":
		method, path = http.MethodGet, "/v1/schema"
	case "translate", "ask":
		if question == "" {
			_, _ = fmt.Fprintf(stderr, "%s requires a question\n\n", command)
			writeUsage(stderr)
			return 2
		}
		method, path = http.MethodPost, "/v1/"+command
		body, _ = json.Marshal(map[string]string{"question": question})
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if command == "ask" {
		p := printer{stdout: stdout, stderr: stderr, noColor: *noColor, writeFile: writeFile}
		return p.printAsk(responseBody, *out, *showSQL)
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

type printer struct {
	stdout    io.Writer
	stderr    io.Writer
	noColor   bool
	writeFile func(name string, data []byte, perm os.FileMode) error
}

func (p printer) colour(attrs ...color.Attribute) func(a ...any) string {
	c := color.New(attrs...)
	if p.noColor {
		c.DisableColor()
	}
	return c.SprintFunc()
}

func (p printer) printAsk(raw []byte, out string, showSQL bool) int {
	var reply askResponse
	if err := json.Unmarshal(raw, &reply); err != nil {
		_, _ = fmt.Fprintf(p.stderr, "decode ask reply: %v\n", err)
		return 1
	}
	red := p.colour(color.FgRed, color.Bold)

	if reply.State == "aborted" {
		_, _ = fmt.Fprintln(p.stderr, red(reply.Text))
		_, _ = fmt.Fprintf(p.stderr, "error_kind=%s trace_id=%s\n", reply.ErrorKind, reply.TraceID)
		return 1
	}

	if reply.ChartTitle != "" {
		_, _ = fmt.Fprintln(p.stdout, p.colour(color.Bold)(reply.ChartTitle))
	}
	if showSQL && reply.SQL != "" {
		_, _ = fmt.Fprintln(p.stdout, p.colour(color.FgHiBlack)(reply.SQL))
	}
	if reply.Stats != nil {
		if err := p.printStats(*reply.Stats); err != nil {
			_, _ = fmt.Fprintf(p.stderr, "render statistics: %v\n", err)
			return 1
		}
	}
	_, _ = fmt.Fprintln(p.stdout, reply.Text)

	if out != "" && reply.ChartPNG != "" {
		png, err := base64.StdEncoding.DecodeString(reply.ChartPNG)
		if err != nil {
			_, _ = fmt.Fprintf(p.stderr, "decode chart: %v\n", err)
			return 1
		}
		if err := p.writeFile(out, png, 0o644); err != nil {
			_, _ = fmt.Fprintf(p.stderr, "write chart: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(p.stdout, "chart written to %s\n", out)
	}
	if reply.ErrorKind != "" {
		_, _ = fmt.Fprintf(p.stderr, "warning: %s\n", reply.ErrorKind)
	}
	return 0
}

func (p printer) printStats(summary stats.Statistics) error {
	table := tablewriter.NewWriter(p.stdout)
	table.Header([]string{"Показатель", "Значение"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	red := p.colour(color.FgRed)
	green := p.colour(color.FgGreen)
	yellow := p.colour(color.FgYellow)

	var data [][]string
	lines := summary.Lines()
	for i, line := range lines {
		value := fmt.Sprintf("%.2f", line.Value)
		if i == len(lines)-1 {
			switch {
			case line.Value > 0:
				value = green(fmt.Sprintf("+%.2f ▲", line.Value))
			case line.Value < 0:
				value = red(fmt.Sprintf("%.2f ▼", line.Value))
			default:
				value = yellow(value)
			}
		}
		data = append(data, []string{line.Name, value})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func doRequest(ctx context.Context, client *http.Client, method, url string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: techfinctl [flags] <command> [question]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health           GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready            GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  schema           GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  translate <q>    POST /v1/translate")
	_, _ = fmt.Fprintln(w, "  ask <q>          POST /v1/ask (use -out chart.png to save the chart)")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
