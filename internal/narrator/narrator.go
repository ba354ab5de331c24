// Package narrator writes the short analytical summary that accompanies a
// chart.
package narrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/llm"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/observability"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/series"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/stats"
)

// FallbackText replaces the narration whenever generation fails.
const FallbackText = "❌ Ошибка: Не удалось сгенерировать аналитический текст. Проверьте ваш API-ключ Gemini."

const DefaultTemperature = 0.5

var ErrGenerationFailed = errors.New("narration generation failed")

type Options struct {
	Temperature float64
	Logger      *slog.Logger
}

type Narrator struct {
	generator   llm.Generator
	temperature float64
	logger      *slog.Logger
}

// New accepts a nil generator; Narrate then always fails.
func New(generator llm.Generator, opts Options) *Narrator {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Narrator{generator: generator, temperature: opts.Temperature, logger: logger}
}

// Narrate returns the generated text, or FallbackText together with an
// ErrGenerationFailed error. The text is always safe to show.
func (n *Narrator) Narrate(ctx context.Context, request string, s series.Series, summary stats.Statistics) (string, error) {
	if n.generator == nil {
		return FallbackText, fmt.Errorf("%w: text generation client is not initialized", ErrGenerationFailed)
	}
	text, err := n.generator.Generate(ctx, llm.Prompt{
		User:        BuildPrompt(request, s, summary),
		Temperature: n.temperature,
	})
	observability.ObserveLLMCall("narration", err)
	if err != nil {
		n.logger.ErrorContext(ctx, "narration generation failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Any("error", err),
		)
		return FallbackText, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	return strings.TrimSpace(text), nil
}

func BuildPrompt(request string, s series.Series, summary stats.Statistics) string {
	first, last := summary.First, summary.Last
	if s.Len() > 0 {
		first, last = s.First().Close, s.Last().Close
	}
	return fmt.Sprintf(
		"Пользователь запросил анализ данных: '%s'.\n"+
			"Предоставлены следующие статистические данные:\n%s\n"+
			"Начальная цена: %.2f, Конечная цена: %.2f.\n"+
			"Напишите краткий аналитический разбор (не более 4-5 предложений) для ответа боту.\n"+
			"Сфокусируйтесь на росте/падении, общей волатильности и основных выводах за период. НЕ упоминайте SQL или БД.",
		strings.TrimSpace(request),
		summary.Text(),
		first,
		last,
	)
}
