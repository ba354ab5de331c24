package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/chart"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/history"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/llm"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/narrator"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/nl2sql"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/observability"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/query"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/schema"
)

const appleMarchSQL = "SELECT date, close, ticker FROM stock_data WHERE brand_name = 'Apple' AND date BETWEEN '2024-03-01' AND '2024-03-31' ORDER BY date ASC"

// scriptedGenerator answers SQL prompts and narration prompts separately.
type scriptedGenerator struct {
	mu           sync.Mutex
	sql          string
	sqlErr       error
	narration    string
	narrationErr error
	calls        int
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt llm.Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if strings.Contains(prompt.User, "SQL-запрос") {
		return g.sql, g.sqlErr
	}
	return g.narration, g.narrationErr
}

func (g *scriptedGenerator) Provider() string { return "scripted" }
func (g *scriptedGenerator) Model() string    { return "scripted-1" }

type fakeExecutor struct {
	result query.Result
	err    error
	calls  int
	sql    string
}

func (f *fakeExecutor) Execute(_ context.Context, sqlText string) (query.Result, error) {
	f.calls++
	f.sql = sqlText
	return f.result, f.err
}

type fakeArchive struct {
	err error
}

func (f *fakeArchive) SaveChart(_ context.Context, traceID string, _ []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "charts/date=2024-03-31/" + traceID + ".png", nil
}

type memoryHistory struct {
	history.Noop
	entries []history.Entry
	err     error
}

func (m *memoryHistory) Record(_ context.Context, entry history.Entry) error {
	m.entries = append(m.entries, entry)
	return m.err
}

func marchRows() query.Result {
	return query.Result{
		Columns: []string{"date", "close", "ticker"},
		Rows: [][]any{
			{time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), 175.10, "AAPL"},
			{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 179.66, "AAPL"},
			{time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC), 171.48, "AAPL"},
		},
	}
}

type harness struct {
	gen      *scriptedGenerator
	exec     *fakeExecutor
	history  *memoryHistory
	pipeline *Pipeline
	notices  []string
}

func newHarness(t *testing.T, gen *scriptedGenerator, exec *fakeExecutor, archive ChartArchive) *harness {
	t.Helper()
	h := &harness{gen: gen, exec: exec, history: &memoryHistory{}}
	var generator llm.Generator
	if gen != nil {
		generator = gen
	}
	p, err := New(Dependencies{
		Translator: nl2sql.NewGenerativeTranslator(generator, schema.Default(), nl2sql.Options{}),
		Executor:   exec,
		Renderer:   chart.NewRenderer(chart.Options{Width: 400, Height: 240}),
		Narrator:   narrator.New(generator, narrator.Options{Temperature: narrator.DefaultTemperature}),
		Archive:    archive,
		History:    h.history,
	}, Options{})
	require.NoError(t, err)
	h.pipeline = p
	return h
}

func (h *harness) run(request string) Reply {
	return h.pipeline.Run(context.Background(), request, func(_ context.Context, text string) {
		h.notices = append(h.notices, text)
	})
}

func TestScenarioAppleMarchReplies(t *testing.T) {
	gen := &scriptedGenerator{sql: "```sql\n" + appleMarchSQL + ";\n```", narration: "Цена Apple снизилась за март."}
	exec := &fakeExecutor{result: marchRows()}
	h := newHarness(t, gen, exec, &fakeArchive{})

	reply := h.run("Покажи график цен Apple за март")

	assert.Equal(t, StateReplied, reply.State)
	assert.Equal(t, KindNone, reply.Kind)
	assert.False(t, reply.Aborted())
	assert.Equal(t, appleMarchSQL+";", exec.sql)
	assert.Contains(t, exec.sql, "BETWEEN '2024-03-01' AND '2024-03-31'")
	assert.Contains(t, exec.sql, "ORDER BY date ASC")
	require.NotEmpty(t, reply.Image)
	assert.Equal(t, []byte("\x89PNG"), reply.Image[:4])
	assert.Equal(t, "Цена Apple снизилась за март.", reply.Text)
	assert.Equal(t, "Динамика цен: AAPL (2024-03-01 - 2024-03-28)", reply.ChartTitle)
	assert.Equal(t, 3, reply.Rows)
	require.NotNil(t, reply.Stats)
	assert.InDelta(t, 171.48-179.66, reply.Stats.Delta, 1e-9)
	assert.Equal(t, "charts/date=2024-03-31/"+reply.TraceID+".png", reply.ChartKey)
	assert.Equal(t, []string{MessageWorking, MessageDataReady}, h.notices)
	assert.Equal(t, 2, gen.calls)

	require.Len(t, h.history.entries, 1)
	entry := h.history.entries[0]
	assert.Equal(t, "replied", entry.State)
	assert.Equal(t, reply.ChartKey, entry.ChartKey)
	assert.Equal(t, reply.TraceID, entry.TraceID)
}

func TestScenarioZeroRowsAbortsWithNoData(t *testing.T) {
	gen := &scriptedGenerator{sql: "SELECT date, close FROM stock_data WHERE ticker = 'APPL'"}
	exec := &fakeExecutor{result: query.Result{Columns: []string{"date", "close"}}}
	h := newHarness(t, gen, exec, nil)

	reply := h.run("Покажи Appl")

	assert.Equal(t, StateAborted, reply.State)
	assert.Equal(t, KindNoData, reply.Kind)
	assert.Equal(t, MessageNoData, reply.Text)
	assert.Contains(t, reply.Text, "тикер")
	assert.Contains(t, reply.Text, "2024")
	assert.Empty(t, reply.Image)
	assert.Equal(t, 1, gen.calls, "narration must not run")
	assert.Equal(t, []string{MessageWorking}, h.notices)
}

func TestScenarioMissingCloseColumn(t *testing.T) {
	gen := &scriptedGenerator{sql: "SELECT date, ticker FROM stock_data"}
	exec := &fakeExecutor{result: query.Result{Columns: []string{"date", "ticker"}, Rows: [][]any{{"2024-03-01", "AAPL"}}}}
	h := newHarness(t, gen, exec, nil)

	reply := h.run("Покажи тикеры")

	assert.Equal(t, StateAborted, reply.State)
	assert.Equal(t, KindMissingColumn, reply.Kind)
	assert.Equal(t, "⚠️ Ошибка: В полученных данных нет колонки 'close' для анализа.", reply.Text)
	assert.Empty(t, reply.Image)
}

func TestScenarioGeneratorAbsentAtStartup(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHarness(t, nil, exec, nil)

	for i := 0; i < 3; i++ {
		reply := h.run("Покажи график цен Apple за март")
		assert.Equal(t, StateAborted, reply.State)
		assert.Equal(t, KindTranslationFailed, reply.Kind)
		assert.Equal(t, "ОШИБКА: Клиент Gemini не инициализирован. Проверьте GEMINI_API_KEY.", reply.Text)
	}
	assert.Zero(t, exec.calls)
}

func TestScenarioNarrationFailureStillReplies(t *testing.T) {
	gen := &scriptedGenerator{sql: appleMarchSQL, narrationErr: errors.New("status=503")}
	h := newHarness(t, gen, &fakeExecutor{result: marchRows()}, nil)

	reply := h.run("Покажи график цен Apple за март")

	assert.Equal(t, StateReplied, reply.State)
	assert.Equal(t, KindNarrationFailed, reply.Kind)
	assert.False(t, reply.Aborted())
	assert.NotEmpty(t, reply.Image)
	assert.Equal(t, narrator.FallbackText, reply.Text)
}

func TestTooLongRequestMakesNoExternalCalls(t *testing.T) {
	gen := &scriptedGenerator{sql: appleMarchSQL}
	exec := &fakeExecutor{result: marchRows()}
	h := newHarness(t, gen, exec, nil)

	reply := h.run(strings.Repeat("я", 151))

	assert.Equal(t, StateAborted, reply.State)
	assert.Equal(t, KindRequestTooLong, reply.Kind)
	assert.Equal(t, MessageTooLong, reply.Text)
	assert.Zero(t, gen.calls)
	assert.Zero(t, exec.calls)
	assert.Empty(t, h.notices)

	exact := h.run(strings.Repeat("я", 150))
	assert.NotEqual(t, KindRequestTooLong, exact.Kind)

	padded := h.run("  \n" + strings.Repeat("я", 150) + "\t ")
	assert.NotEqual(t, KindRequestTooLong, padded.Kind, "surrounding whitespace does not count toward the limit")
}

func TestTranslationFailureIsSurfacedVerbatim(t *testing.T) {
	gen := &scriptedGenerator{sqlErr: errors.New("status=403 body=API key not valid")}
	exec := &fakeExecutor{}
	h := newHarness(t, gen, exec, nil)

	reply := h.run("Покажи Apple")

	assert.Equal(t, KindTranslationFailed, reply.Kind)
	assert.Equal(t, "ОШИБКА: Не удалось сгенерировать SQL-запрос. Проверьте ваш API-ключ Gemini.", reply.Text)
	assert.NotContains(t, reply.Text, "403")
	assert.Zero(t, exec.calls)
}

func TestExecutionFaultsShareOneKind(t *testing.T) {
	for _, cause := range []error{query.ErrUnavailable, query.ErrStatement} {
		gen := &scriptedGenerator{sql: appleMarchSQL}
		h := newHarness(t, gen, &fakeExecutor{err: cause}, nil)

		reply := h.run("Покажи Apple")

		assert.Equal(t, StateAborted, reply.State)
		assert.Equal(t, KindExecutionFailed, reply.Kind)
		assert.Equal(t, MessageNoData, reply.Text)
		assert.Equal(t, appleMarchSQL, reply.SQL)
	}
}

func TestArchiveAndHistoryFailuresDoNotChangeReply(t *testing.T) {
	gen := &scriptedGenerator{sql: appleMarchSQL, narration: "ok"}
	h := newHarness(t, gen, &fakeExecutor{result: marchRows()}, &fakeArchive{err: errors.New("bucket gone")})
	h.history.err = errors.New("disk full")

	reply := h.run("Покажи Apple")

	assert.Equal(t, StateReplied, reply.State)
	assert.Empty(t, reply.ChartKey)
	assert.Equal(t, "ok", reply.Text)
}

func TestRunKeepsIncomingTraceID(t *testing.T) {
	h := newHarness(t, nil, &fakeExecutor{}, nil)
	ctx := observability.ContextWithTraceID(context.Background(), "upd-42")

	reply := h.pipeline.Run(ctx, "q", nil)

	assert.Equal(t, "upd-42", reply.TraceID)
	require.Len(t, h.history.entries, 1)
	assert.Equal(t, "upd-42", h.history.entries[0].TraceID)
	assert.Equal(t, "translation_failed", h.history.entries[0].ErrorKind)
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	gen := &scriptedGenerator{sql: appleMarchSQL, narration: "ok"}
	p, err := New(Dependencies{
		Translator: nl2sql.NewGenerativeTranslator(gen, schema.Default(), nl2sql.Options{}),
		Executor:   executorFunc(func(context.Context, string) (query.Result, error) { return marchRows(), nil }),
		Renderer:   chart.NewRenderer(chart.Options{Width: 300, Height: 200}),
		Narrator:   narrator.New(gen, narrator.Options{}),
	}, Options{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	replies := make([]Reply, 8)
	for i := range replies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replies[i] = p.Run(context.Background(), "Покажи Apple", nil)
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, reply := range replies {
		assert.Equal(t, StateReplied, reply.State)
		assert.False(t, seen[reply.TraceID])
		seen[reply.TraceID] = true
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(Dependencies{}, Options{})
	assert.Error(t, err)
}

type executorFunc func(ctx context.Context, sqlText string) (query.Result, error)

func (f executorFunc) Execute(ctx context.Context, sqlText string) (query.Result, error) {
	return f(ctx, sqlText)
}
