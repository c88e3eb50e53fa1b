// Package telegram implements messaging.Gateway on the Telegram Bot API
// using telego long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/botfleet/internal/config"
	"github.com/nextlevelbuilder/botfleet/internal/messaging"
)

// Gateway connects bot tokens to the Telegram Bot API.
type Gateway struct {
	opts        []telego.BotOption
	pollTimeout int
	closeWait   time.Duration
}

// NewGateway builds a gateway from config. A proxy URL, when set, is used
// for every bot.
func NewGateway(cfg config.TelegramConfig) (*Gateway, error) {
	var opts []telego.BotOption

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, err)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}
	if cfg.APIServer != "" {
		opts = append(opts, telego.WithAPIServer(cfg.APIServer))
	}

	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 30
	}
	return &Gateway{opts: opts, pollTimeout: timeout, closeWait: 10 * time.Second}, nil
}

// Connect validates the token and asks Telegram who the bot is.
func (g *Gateway) Connect(ctx context.Context, token string) (messaging.Session, error) {
	bot, err := telego.NewBot(token, g.opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	me, err := bot.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("get bot info: %w", err)
	}
	slog.Info("telegram bot connected", "username", me.Username)
	return &Session{
		bot:         bot,
		username:    me.Username,
		pollTimeout: g.pollTimeout,
		closeWait:   g.closeWait,
	}, nil
}
