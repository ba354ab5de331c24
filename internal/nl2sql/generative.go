package nl2sql

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/llm"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/observability"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/schema"
)

type Options struct {
	Temperature float64
	Logger      *slog.Logger
}

// GenerativeTranslator asks a text-generation model for one SQL statement
// over the schema contract.
type GenerativeTranslator struct {
	generator   llm.Generator
	contract    schema.Contract
	temperature float64
	logger      *slog.Logger
}

// NewGenerativeTranslator accepts a nil generator; every call then fails
// with ErrNotInitialized.
func NewGenerativeTranslator(generator llm.Generator, contract schema.Contract, opts Options) *GenerativeTranslator {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &GenerativeTranslator{
		generator:   generator,
		contract:    contract,
		temperature: opts.Temperature,
		logger:      logger,
	}
}

func (t *GenerativeTranslator) Translate(ctx context.Context, question string) (Result, error) {
	if t.generator == nil {
		return Result{}, ErrNotInitialized
	}
	raw, err := t.generator.Generate(ctx, llm.Prompt{
		User:        BuildPrompt(question, t.contract),
		Temperature: t.temperature,
	})
	observability.ObserveLLMCall("sql", err)
	if err != nil {
		t.logger.ErrorContext(ctx, "sql generation failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("provider", t.generator.Provider()),
			slog.Any("error", err),
		)
		return Result{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	sql := StripCodeFence(raw)
	if sql == "" {
		t.logger.ErrorContext(ctx, "sql generation returned no statement",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		)
		return Result{}, fmt.Errorf("%w: empty statement", ErrGenerationFailed)
	}
	return Result{
		SQL:      sql,
		Provider: t.generator.Provider(),
		Model:    t.generator.Model(),
	}, nil
}

// BuildPrompt renders the translation instruction for one question.
func BuildPrompt(question string, contract schema.Contract) string {
	return fmt.Sprintf(
		"Вы эксперт по SQL для PostgreSQL. Преобразуйте запрос пользователя ('%s') в ОДИН корректный SQL-запрос.\n"+
			"Используй ТОЛЬКО таблицу '%s'. Верни только SQL, без пояснений.\n\n"+
			"%s\n\nПравила:\n%s",
		strings.TrimSpace(question),
		contract.Table,
		contract.Text(),
		contract.RulesText(),
	)
}

// fencePattern matches an opening fence, an optional info string and the body
// up to the closing fence or the end of input. A SQL dialect tag may share the
// line with the statement; any other tag must end its line.
var fencePattern = regexp.MustCompile("(?s)`{3,}(?:(?i:postgresql|postgres|pgsql|psql|sqlite|duckdb|sql)\\b[ \t]*(?:\r?\n)?|[A-Za-z0-9_+-]*[ \t]*\r?\n)?(.*?)(?:`{3,}|$)")

// StripCodeFence returns the body of the first fenced block, or the trimmed
// input when there is none. An unterminated fence yields everything after it.
func StripCodeFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.Trim(trimmed, "`")
}
