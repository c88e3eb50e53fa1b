package points

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// verifyKind is one paid verification service.
type verifyKind struct {
	command     string
	kind        string
	label       string
	description string
}

var verifyKinds = []verifyKind{
	{command: "verify", kind: "gemini", label: "Gemini", description: "Verifikasi Gemini"},
	{command: "verify2", kind: "k12", label: "K12", description: "Verifikasi K12"},
	{command: "verify3", kind: "spotify", label: "Spotify Student", description: "Verifikasi Spotify"},
	{command: "verify4", kind: "bolt", label: "Bolt.new", description: "Verifikasi Bolt.new"},
}

func (h *handler) verify(k verifyKind) messaging.HandlerFunc {
	return func(ctx context.Context, req *messaging.Request) error {
		u, err := h.member(ctx, req)
		if u == nil {
			return err
		}
		if u.Balance < verifyCost {
			return req.Reply(ctx, fmt.Sprintf("❌ Saldo tidak cukup.\nDibutuhkan: %d poin\nSaldo Anda: %d poin", verifyCost, u.Balance), nil)
		}
		if err := req.Reply(ctx, fmt.Sprintf("⏳ Memproses verifikasi %s...", k.label), nil); err != nil {
			return err
		}

		left, err := h.env.Stores.Points.AddVerification(ctx, h.env.Config.ID, u.TelegramID, k.kind, verifyCost)
		if errors.Is(err, store.ErrInsufficientBalance) {
			return req.Reply(ctx, fmt.Sprintf("❌ Saldo tidak cukup. Dibutuhkan: %d poin", verifyCost), nil)
		}
		if err != nil {
			slog.Error("verification failed", "bot_id", h.env.Config.ID, "user", u.TelegramID, "kind", k.kind, "error", err)
			return req.Reply(ctx, "❌ Gagal memproses verifikasi.", nil)
		}
		return req.Reply(ctx, fmt.Sprintf("✅ Verifikasi %s selesai!\nSaldo: %d poin", k.label, left), nil)
	}
}

func (h *handler) v4Code(ctx context.Context, req *messaging.Request) error {
	return req.Reply(ctx, "📋 Gunakan /verify4 untuk verifikasi Bolt.new.\nKode akan dikirim setelah verifikasi selesai.", nil)
}
