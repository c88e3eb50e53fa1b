// Package points is the points_verify bot type: users earn points through
// daily check-ins, invites and card keys, and spend them on verifications.
package points

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/botfleet/internal/bots"
	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// Point amounts.
const (
	verifyCost   = 1
	checkinBonus = 1
	inviteeBonus = 1
	inviterBonus = 2
)

type Variant struct{}

func (Variant) Kind() string { return store.BotTypePointsVerify }

func (Variant) Routes(env bots.BotEnv) []messaging.Route {
	h := &handler{env: env, now: time.Now}
	routes := []messaging.Route{
		messaging.Command("start", "Mulai bot", h.start),
		messaging.Command("about", "Tentang bot", h.about),
		messaging.Command("help", "Daftar perintah", h.help),
		messaging.Command("balance", "Cek saldo poin", h.balance),
		messaging.Command("qd", "Check-in harian", h.checkin),
		messaging.Command("invite", "Link undangan", h.invite),
		messaging.Command("use", "Tukar kode redeem", h.use),
		messaging.HiddenCommand("getV4Code", h.v4Code),

		messaging.HiddenCommand("addbalance", h.admin(h.addBalance)),
		messaging.HiddenCommand("block", h.admin(h.setBlocked(true))),
		messaging.HiddenCommand("white", h.admin(h.setBlocked(false))),
		messaging.HiddenCommand("blacklist", h.admin(h.blacklist)),
		messaging.HiddenCommand("genkey", h.admin(h.genKey)),
		messaging.HiddenCommand("listkeys", h.admin(h.listKeys)),
		messaging.HiddenCommand("broadcast", h.admin(h.broadcast)),
	}
	for _, k := range verifyKinds {
		routes = append(routes, messaging.Command(k.command, k.description, h.verify(k)))
	}
	return routes
}

type handler struct {
	env bots.BotEnv
	now func() time.Time
}

func (h *handler) admin(next messaging.HandlerFunc) messaging.HandlerFunc {
	return func(ctx context.Context, req *messaging.Request) error {
		if !h.env.IsOwner(req.UserID()) {
			return req.Reply(ctx, "⛔ Akses ditolak.", nil)
		}
		return next(ctx, req)
	}
}

// member loads the sender. It replies and returns nil when the sender is
// blocked or not registered yet.
func (h *handler) member(ctx context.Context, req *messaging.Request) (*store.PointsUser, error) {
	u, err := h.env.Stores.Points.Get(ctx, h.env.Config.ID, req.UserID())
	if errors.Is(err, store.ErrNotFound) {
		return nil, req.Reply(ctx, "Silakan /start terlebih dahulu.", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get points user: %w", err)
	}
	if u.IsBlocked {
		return nil, req.Reply(ctx, "⛔ Akun Anda diblokir.", nil)
	}
	return u, nil
}
