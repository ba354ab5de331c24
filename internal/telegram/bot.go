package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/observability"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/pipeline"
)

// Answerer is satisfied by *pipeline.Pipeline.
type Answerer interface {
	Run(ctx context.Context, request string, progress pipeline.Progress) pipeline.Reply
}

// API is the subset of the Bot API the polling loop needs.
type API interface {
	GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) error
	SendWithRetry(ctx context.Context, maxRetries int, send func(ctx context.Context) error) error
}

type BotOptions struct {
	PollTimeout time.Duration
	SendRetries int
	MaxInFlight int
	// ErrorBackoff is the pause after a failed getUpdates call.
	ErrorBackoff time.Duration
	Logger       *slog.Logger
}

type Bot struct {
	api          API
	answerer     Answerer
	pollTimeout  time.Duration
	sendRetries  int
	errorBackoff time.Duration
	slots        chan struct{}
	logger       *slog.Logger
	wg           sync.WaitGroup
}

func NewBot(api API, answerer Answerer, opts BotOptions) (*Bot, error) {
	if api == nil {
		return nil, errors.New("telegram api is required")
	}
	if answerer == nil {
		return nil, errors.New("answerer is required")
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	maxInFlight := opts.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 16
	}
	errorBackoff := opts.ErrorBackoff
	if errorBackoff <= 0 {
		errorBackoff = 5 * time.Second
	}
	sendRetries := opts.SendRetries
	if sendRetries < 0 {
		sendRetries = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Bot{
		api:          api,
		answerer:     answerer,
		pollTimeout:  pollTimeout,
		sendRetries:  sendRetries,
		errorBackoff: errorBackoff,
		slots:        make(chan struct{}, maxInFlight),
		logger:       logger,
	}, nil
}

// Run polls until ctx is cancelled, then waits for in-flight messages.
// Each message is answered on its own goroutine so one slow request does
// not hold up other chats.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("telegram polling started", "poll_timeout", b.pollTimeout.String(), "max_in_flight", cap(b.slots))
	defer b.wg.Wait()

	var offset int64
	for {
		if ctx.Err() != nil {
			b.logger.Info("telegram polling stopped")
			return nil
		}
		updates, err := b.api.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			b.logger.Warn("telegram getUpdates failed", "error", err)
			_ = sleepContext(ctx, b.errorBackoff)
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if update.Message == nil || strings.TrimSpace(update.Message.Text) == "" {
				continue
			}
			if !b.acquire(ctx) {
				break
			}
			msg := *update.Message
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				defer b.release()
				b.HandleMessage(ctx, msg)
			}()
		}
	}
}

// HandleMessage answers a single chat message.
func (b *Bot) HandleMessage(ctx context.Context, msg Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	if isCommand(text, "/start") || isCommand(text, "/help") {
		b.send(ctx, chatID, pipeline.Greeting)
		return
	}
	if strings.HasPrefix(text, "/") {
		b.logger.DebugContext(ctx, "ignoring unsupported command", slog.Int64("chat_id", chatID), slog.String("command", strings.Fields(text)[0]))
		return
	}

	ctx = observability.ContextWithTraceID(ctx, observability.NewTraceID())
	progress := func(ctx context.Context, notice string) {
		b.send(ctx, chatID, notice)
	}
	reply := b.answerer.Run(ctx, text, progress)

	logger := b.logger.With("trace_id", reply.TraceID, "chat_id", chatID)
	if len(reply.Image) > 0 {
		err := b.api.SendWithRetry(ctx, b.sendRetries, func(ctx context.Context) error {
			return b.api.SendPhoto(ctx, chatID, reply.Image, reply.ChartTitle)
		})
		if err != nil {
			logger.Warn("telegram sendPhoto failed", "error", err)
		}
	}
	b.send(ctx, chatID, reply.Text)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	err := b.api.SendWithRetry(ctx, b.sendRetries, func(ctx context.Context) error {
		return b.api.SendMessage(ctx, chatID, text)
	})
	if err != nil {
		b.logger.Warn("telegram sendMessage failed", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) acquire(ctx context.Context) bool {
	select {
	case b.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (b *Bot) release() { <-b.slots }

// isCommand matches "/start" as well as "/start@SomeBot" and "/start args".
func isCommand(text, command string) bool {
	if !strings.HasPrefix(text, command) {
		return false
	}
	rest := text[len(command):]
	return rest == "" || rest[0] == '@' || rest[0] == ' '
}
