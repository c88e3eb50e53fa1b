package telegram

import (
	"context"
	"log/slog"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/botfleet/internal/messaging"
)

// syncMenu publishes the command menu with retry.
func (s *Session) syncMenu(ctx context.Context, routes []messaging.Route) {
	commands := menuCommands(routes)
	for attempt := 1; attempt <= 3; attempt++ {
		if err := s.syncMenuCommands(ctx, commands); err != nil {
			slog.Warn("failed to sync telegram menu commands", "username", s.username, "error", err, "attempt", attempt)
			if attempt < 3 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Duration(attempt*5) * time.Second):
				}
			}
			continue
		}
		slog.Debug("telegram menu commands synced", "username", s.username, "count", len(commands))
		return
	}
}

// syncMenuCommands registers bot commands with Telegram via setMyCommands.
func (s *Session) syncMenuCommands(ctx context.Context, commands []telego.BotCommand) error {
	if err := s.bot.DeleteMyCommands(ctx, nil); err != nil {
		slog.Debug("deleteMyCommands failed (may not exist)", "error", err)
	}
	if len(commands) == 0 {
		return nil
	}
	return s.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: commands,
	})
}

func menuCommands(routes []messaging.Route) []telego.BotCommand {
	commands := make([]telego.BotCommand, 0, len(routes))
	for _, r := range routes {
		commands = append(commands, telego.BotCommand{Command: r.Command, Description: r.Description})
	}
	if len(commands) > 100 {
		commands = commands[:100]
	}
	return commands
}
