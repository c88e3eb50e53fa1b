// Package custom is the minimal bot type: it registers users and greets
// them. It is the template for new bot types.
package custom

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/botfleet/internal/bots"
	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

type Variant struct{}

func (Variant) Kind() string { return store.BotTypeCustom }

func (Variant) Routes(env bots.BotEnv) []messaging.Route {
	return []messaging.Route{
		messaging.Command("start", "Mulai", func(ctx context.Context, req *messaging.Request) error {
			from := req.Update.From
			if _, err := env.Stores.BotUsers.GetOrCreate(ctx, env.Config.ID, from.ID, from.Username, from.FirstName); err != nil {
				return fmt.Errorf("register user: %w", err)
			}
			return req.Reply(ctx, fmt.Sprintf("👋 Halo, %s!\n\n"+
				"🤖 Bot ini dalam tahap pengembangan.\n"+
				"Silakan hubungi admin untuk informasi lebih lanjut.", from.FirstName), nil)
		}),
	}
}
