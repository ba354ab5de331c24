package nl2sql

import (
	"context"
	"errors"
)

var (
	// ErrNotInitialized is returned without any network call when no
	// text-generation client was configured.
	ErrNotInitialized = errors.New("text generation client is not initialized")
	// ErrGenerationFailed wraps any failure of the generation call.
	ErrGenerationFailed = errors.New("sql generation failed")
)

const (
	notInitializedMessage   = "ОШИБКА: Клиент Gemini не инициализирован. Проверьте GEMINI_API_KEY."
	generationFailedMessage = "ОШИБКА: Не удалось сгенерировать SQL-запрос. Проверьте ваш API-ключ Gemini."
)

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, question string) (Result, error)
}

// UserMessage returns the fixed text shown to a user for a translation
// error. Unknown errors get the generation failure text.
func UserMessage(err error) string {
	if errors.Is(err, ErrNotInitialized) {
		return notInitializedMessage
	}
	return generationFailedMessage
}
