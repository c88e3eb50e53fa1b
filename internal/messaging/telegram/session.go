package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/metrics"
)

var errUpdatesClosed = errors.New("telegram updates channel closed")

// Session is one long-polling bot connection.
type Session struct {
	bot         *telego.Bot
	username    string
	pollTimeout int
	closeWait   time.Duration

	mu         sync.Mutex
	router     *messaging.Router
	closed     bool
	pollCancel context.CancelFunc // cancels the long polling context
	pollDone   chan struct{}      // closed when Receive returns
}

func (s *Session) Username() string { return s.username }

func (s *Session) Handle(routes []messaging.Route) {
	s.mu.Lock()
	s.router = messaging.NewRouter(routes)
	s.mu.Unlock()
}

// Receive long-polls Telegram and dispatches updates one at a time, in
// delivery order.
func (s *Session) Receive(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	pollCtx, cancel := context.WithCancel(ctx)
	s.pollCancel = cancel
	s.pollDone = make(chan struct{})
	done := s.pollDone
	router := s.router
	s.mu.Unlock()

	defer close(done)
	defer cancel()

	updates, err := s.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        s.pollTimeout,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	if router != nil {
		go s.syncMenu(pollCtx, router.MenuCommands())
	}

	for {
		select {
		case <-pollCtx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if pollCtx.Err() != nil {
					return nil
				}
				return errUpdatesClosed
			}
			s.dispatch(pollCtx, router, update)
		}
	}
}

// Close stops long polling and waits for Receive to exit so that Telegram
// releases the getUpdates lock before the token is polled again.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	cancel, done := s.pollCancel, s.pollDone
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.closeWait):
		slog.Warn("telegram polling goroutine did not exit within timeout", "username", s.username)
		return fmt.Errorf("polling did not stop within %s", s.closeWait)
	}
}

func (s *Session) dispatch(ctx context.Context, router *messaging.Router, update telego.Update) {
	u := convertUpdate(update)
	if u == nil {
		slog.Debug("telegram update skipped", "update_id", update.UpdateID, "username", s.username)
		return
	}
	kind := "message"
	if u.IsCallback() {
		kind = "callback"
	}
	metrics.UpdateReceived(kind)

	if router == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("bot handler panicked", "username", s.username, "update_id", u.ID, "panic", r)
		}
	}()

	handled, err := router.Dispatch(ctx, &messaging.Request{Update: u, Bot: s, BotUsername: s.username})
	if err != nil {
		slog.Warn("bot handler failed", "username", s.username, "update_id", u.ID, "error", err)
		return
	}
	if !handled && u.IsCallback() {
		// Unanswered callbacks leave a spinner on the button.
		_ = s.Answer(ctx, u.CallbackID, "")
	}
}

func (s *Session) Send(ctx context.Context, msg messaging.Message) (int, error) {
	params := tu.Message(tu.ID(msg.ChatID), msg.Text)
	if msg.Markdown {
		params.ParseMode = telego.ModeMarkdown
	}
	if markup := buildMarkup(msg.Keyboard); markup != nil {
		params.ReplyMarkup = markup
	}
	sent, err := s.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (s *Session) Edit(ctx context.Context, messageID int, msg messaging.Message) error {
	params := &telego.EditMessageTextParams{
		ChatID:      tu.ID(msg.ChatID),
		MessageID:   messageID,
		Text:        msg.Text,
		ReplyMarkup: buildMarkup(msg.Keyboard),
	}
	if msg.Markdown {
		params.ParseMode = telego.ModeMarkdown
	}
	_, err := s.bot.EditMessageText(ctx, params)
	return err
}

func (s *Session) Answer(ctx context.Context, callbackID, text string) error {
	return s.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
}
