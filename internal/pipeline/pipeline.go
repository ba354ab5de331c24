// Package pipeline turns one question into a reply: translate, execute,
// validate, summarize, render and narrate.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/chart"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/history"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/narrator"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/nl2sql"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/observability"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/query"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/series"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/stats"
)

const DefaultMaxRequestLength = 150

type State string

const (
	StateReceived    State = "received"
	StateTranslating State = "translating"
	StateExecuting   State = "executing"
	StateValidating  State = "validating"
	StateSummarizing State = "summarizing"
	StateNarrating   State = "narrating"
	StateReplied     State = "replied"
	StateAborted     State = "aborted"
)

type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindRequestTooLong    ErrorKind = "request_too_long"
	KindTranslationFailed ErrorKind = "translation_failed"
	KindExecutionFailed   ErrorKind = "execution_failed"
	KindNoData            ErrorKind = "no_data"
	KindMissingColumn     ErrorKind = "missing_column"
	KindRenderFailed      ErrorKind = "render_failed"
	// KindNarrationFailed is the only kind that still ends in StateReplied.
	KindNarrationFailed ErrorKind = "narration_failed"
)

// Reply is produced exactly once per Run. Image is set only in
// StateReplied; Text is always set.
type Reply struct {
	TraceID    string            `json:"trace_id"`
	State      State             `json:"state"`
	Kind       ErrorKind         `json:"error_kind,omitempty"`
	Text       string            `json:"text"`
	Image      []byte            `json:"-"`
	ChartTitle string            `json:"chart_title,omitempty"`
	ChartKey   string            `json:"chart_key,omitempty"`
	SQL        string            `json:"sql,omitempty"`
	Stats      *stats.Statistics `json:"stats,omitempty"`
	Rows       int               `json:"rows"`
	Duration   time.Duration     `json:"duration"`
}

func (r Reply) Aborted() bool { return r.State == StateAborted }

// Progress receives interim notices that are not part of the reply.
type Progress func(ctx context.Context, text string)

type Renderer interface {
	Render(s series.Series, nameHint string) (chart.Chart, error)
}

type Narrator interface {
	Narrate(ctx context.Context, request string, s series.Series, summary stats.Statistics) (string, error)
}

type ChartArchive interface {
	SaveChart(ctx context.Context, traceID string, png []byte) (string, error)
}

type Dependencies struct {
	Translator nl2sql.Translator
	Executor   query.Executor
	Renderer   Renderer
	Narrator   Narrator
	// Archive and History are optional; their failures never change the reply.
	Archive ChartArchive
	History history.Recorder
	Logger  *slog.Logger
}

type Options struct {
	MaxRequestLength int
}

// Pipeline holds no per-request state and is safe for concurrent Run calls.
type Pipeline struct {
	deps      Dependencies
	maxLength int
	clock     func() time.Time
}

func New(deps Dependencies, opts Options) (*Pipeline, error) {
	switch {
	case deps.Translator == nil:
		return nil, errors.New("translator is required")
	case deps.Executor == nil:
		return nil, errors.New("executor is required")
	case deps.Renderer == nil:
		return nil, errors.New("renderer is required")
	case deps.Narrator == nil:
		return nil, errors.New("narrator is required")
	}
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.History == nil {
		deps.History = history.NewNoop()
	}
	maxLength := opts.MaxRequestLength
	if maxLength <= 0 {
		maxLength = DefaultMaxRequestLength
	}
	return &Pipeline{deps: deps, maxLength: maxLength, clock: time.Now}, nil
}

type run struct {
	p        *Pipeline
	ctx      context.Context
	request  string
	progress Progress
	reply    Reply
	start    time.Time
}

// Run answers one request. The length limit applies to the request without
// surrounding whitespace.
func (p *Pipeline) Run(ctx context.Context, request string, progress Progress) Reply {
	ctx, traceID := observability.EnsureTraceID(ctx)
	r := &run{
		p:        p,
		ctx:      ctx,
		request:  strings.TrimSpace(request),
		progress: progress,
		reply:    Reply{TraceID: traceID, State: StateReceived},
		start:    p.clock(),
	}
	r.execute()
	r.reply.Duration = p.clock().Sub(r.start)
	r.finish()
	return r.reply
}

func (r *run) execute() {
	if utf8.RuneCountInString(r.request) > r.p.maxLength {
		r.abort(KindRequestTooLong, MessageTooLong, nil)
		return
	}
	r.notify(MessageWorking)

	r.enter(StateTranslating)
	translated, err := r.p.deps.Translator.Translate(r.ctx, r.request)
	if err != nil {
		r.abort(KindTranslationFailed, nl2sql.UserMessage(err), err)
		return
	}
	r.reply.SQL = translated.SQL

	r.enter(StateExecuting)
	result, err := r.p.deps.Executor.Execute(r.ctx, translated.SQL)
	if err != nil {
		r.abort(KindExecutionFailed, MessageNoData, err)
		return
	}
	r.reply.Rows = len(result.Rows)

	r.enter(StateValidating)
	normalized, err := series.Normalize(result)
	if err != nil {
		var missing *series.MissingColumnError
		if errors.As(err, &missing) {
			r.abort(KindMissingColumn, missingColumnMessage(missing.Column), err)
			return
		}
		r.abort(KindNoData, MessageNoData, err)
		return
	}
	r.notify(MessageDataReady)

	r.enter(StateSummarizing)
	summary, err := stats.Summarize(normalized)
	if err != nil {
		r.abort(KindNoData, MessageNoData, err)
		return
	}
	r.reply.Stats = &summary
	rendered, err := r.p.deps.Renderer.Render(normalized, "")
	if err != nil {
		r.abort(KindRenderFailed, MessageRenderFailed, err)
		return
	}
	r.archive(rendered.PNG)

	r.enter(StateNarrating)
	text, err := r.p.deps.Narrator.Narrate(r.ctx, r.request, normalized, summary)
	if err != nil {
		r.reply.Kind = KindNarrationFailed
		r.log(slog.LevelWarn, "narration degraded", slog.Any("error", err))
		if strings.TrimSpace(text) == "" {
			text = narrator.FallbackText
		}
	}

	r.reply.State = StateReplied
	r.reply.Text = text
	r.reply.Image = rendered.PNG
	r.reply.ChartTitle = rendered.Title
}

func (r *run) enter(state State) {
	r.reply.State = state
	r.log(slog.LevelDebug, "pipeline_stage")
}

func (r *run) abort(kind ErrorKind, text string, cause error) {
	from := r.reply.State
	r.reply.State = StateAborted
	r.reply.Kind = kind
	r.reply.Text = text
	attrs := []any{slog.String("from_state", string(from))}
	if cause != nil {
		attrs = append(attrs, slog.Any("error", cause))
		if class := query.FailureClass(cause); kind == KindExecutionFailed && class != "" {
			attrs = append(attrs, slog.String("failure_class", class))
		}
	}
	r.log(slog.LevelWarn, "pipeline aborted", attrs...)
}

func (r *run) notify(text string) {
	if r.progress != nil {
		r.progress(r.ctx, text)
	}
}

func (r *run) archive(png []byte) {
	if r.p.deps.Archive == nil {
		return
	}
	key, err := r.p.deps.Archive.SaveChart(r.ctx, r.reply.TraceID, png)
	if err != nil {
		r.log(slog.LevelWarn, "chart archive failed", slog.Any("error", err))
		return
	}
	r.reply.ChartKey = key
}

func (r *run) finish() {
	observability.ObservePipeline(string(r.reply.State), string(r.reply.Kind), r.reply.Duration)
	r.log(slog.LevelInfo, "pipeline_completed",
		slog.String("error_kind", string(r.reply.Kind)),
		slog.Int("rows", r.reply.Rows),
		slog.String("duration", r.reply.Duration.String()),
	)
	err := r.p.deps.History.Record(r.ctx, history.Entry{
		TraceID:   r.reply.TraceID,
		Request:   r.request,
		SQL:       r.reply.SQL,
		State:     string(r.reply.State),
		ErrorKind: string(r.reply.Kind),
		Rows:      r.reply.Rows,
		Duration:  r.reply.Duration,
		ChartKey:  r.reply.ChartKey,
		CreatedAt: r.start,
	})
	if err != nil {
		r.log(slog.LevelWarn, "history record failed", slog.Any("error", err))
	}
}

func (r *run) log(level slog.Level, msg string, attrs ...any) {
	base := []any{
		slog.String("trace_id", r.reply.TraceID),
		slog.String("state", string(r.reply.State)),
	}
	r.p.deps.Logger.Log(r.ctx, level, msg, append(base, attrs...)...)
}
