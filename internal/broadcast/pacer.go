// Package broadcast sends one message to many chats at a rate the
// messaging platform tolerates.
package broadcast

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/metrics"
)

// Result counts deliveries of one broadcast.
type Result struct {
	Sent   int
	Failed int
	Total  int
}

// Pacer spaces sends by a fixed interval. One Pacer may serve many
// broadcasts; each Send gets its own limiter.
type Pacer struct {
	interval time.Duration
}

func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval}
}

// Send delivers msg to every chat id. Per-chat failures (blocked bot,
// deleted account) are counted and skipped. It stops early only when
// ctx is cancelled, returning the partial result with ctx's error.
func (p *Pacer) Send(ctx context.Context, sender messaging.Sender, chatIDs []int64, msg messaging.Message) (Result, error) {
	res := Result{Total: len(chatIDs)}
	lim := rate.NewLimiter(rate.Every(p.interval), 1)

	for _, id := range chatIDs {
		if err := lim.Wait(ctx); err != nil {
			return res, err
		}
		m := msg
		m.ChatID = id
		_, err := sender.Send(ctx, m)
		metrics.ObserveBroadcast(err)
		if err != nil {
			res.Failed++
			slog.Debug("broadcast send failed", "chat_id", id, "error", err)
			continue
		}
		res.Sent++
	}
	return res, nil
}
