package points

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

const (
	keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keyLength   = 8
	maxGenKeys  = 10
	listLimit   = 20
)

func (h *handler) addBalance(ctx context.Context, req *messaging.Request) error {
	args := req.Args()
	if len(args) < 2 {
		return req.Reply(ctx, "Penggunaan: /addbalance <user_id> <jumlah>", nil)
	}
	target, err1 := strconv.ParseInt(args[0], 10, 64)
	amount, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		return req.Reply(ctx, "❌ Format salah.", nil)
	}
	balance, err := h.env.Stores.Points.AddBalance(ctx, h.env.Config.ID, target, amount)
	if errors.Is(err, store.ErrNotFound) {
		return req.Reply(ctx, "❌ User tidak ditemukan.", nil)
	}
	if err != nil {
		return fmt.Errorf("add balance: %w", err)
	}
	return req.Reply(ctx, fmt.Sprintf("✅ Berhasil menambah %d poin ke user %d\nSaldo baru: %d poin", amount, target, balance), nil)
}

func (h *handler) setBlocked(blocked bool) messaging.HandlerFunc {
	usage, done := "Penggunaan: /white <user_id>", "di-unblock"
	if blocked {
		usage, done = "Penggunaan: /block <user_id>", "diblokir"
	}
	return func(ctx context.Context, req *messaging.Request) error {
		args := req.Args()
		if len(args) == 0 {
			return req.Reply(ctx, usage, nil)
		}
		target, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return req.Reply(ctx, "❌ User ID harus angka.", nil)
		}
		err = h.env.Stores.Points.SetBlocked(ctx, h.env.Config.ID, target, blocked)
		if errors.Is(err, store.ErrNotFound) {
			return req.Reply(ctx, "❌ User tidak ditemukan.", nil)
		}
		if err != nil {
			return fmt.Errorf("set blocked: %w", err)
		}
		return req.Reply(ctx, fmt.Sprintf("✅ User %d %s.", target, done), nil)
	}
}

func (h *handler) blacklist(ctx context.Context, req *messaging.Request) error {
	users, err := h.env.Stores.Points.Blacklist(ctx, h.env.Config.ID, listLimit)
	if err != nil {
		return fmt.Errorf("blacklist: %w", err)
	}
	if len(users) == 0 {
		return req.Reply(ctx, "📋 Tidak ada user yang diblokir.", nil)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 *Blacklist (%d users)*\n\n", len(users))
	for _, u := range users {
		name := u.Username
		if name == "" {
			name = "N/A"
		}
		fmt.Fprintf(&b, "• %d - @%s\n", u.TelegramID, name)
	}
	return req.ReplyMarkdown(ctx, b.String(), nil)
}

// newKeyCode draws a card key code from crypto/rand.
func newKeyCode() (string, error) {
	radix := big.NewInt(int64(len(keyAlphabet)))
	b := make([]byte, keyLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, radix)
		if err != nil {
			return "", err
		}
		b[i] = keyAlphabet[n.Int64()]
	}
	return string(b), nil
}

func (h *handler) genKey(ctx context.Context, req *messaging.Request) error {
	args := req.Args()
	if len(args) == 0 {
		return req.Reply(ctx, "Penggunaan: /genkey <poin> [max_uses] [jumlah]\n"+
			"Contoh: /genkey 10 5 3 (3 kode, masing-masing 10 poin, max 5x pakai)", nil)
	}
	nums := []int{0, 1, 1}
	for i := 0; i < len(args) && i < len(nums); i++ {
		n, err := strconv.Atoi(args[i])
		if err != nil {
			return req.Reply(ctx, "❌ Format salah.", nil)
		}
		nums[i] = n
	}
	points, maxUses, count := nums[0], nums[1], min(nums[2], maxGenKeys)

	var codes []string
	for i := 0; i < count; i++ {
		code, err := newKeyCode()
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		k := &store.CardKey{BotID: h.env.Config.ID, Code: code, Balance: points, MaxUses: maxUses, CreatedBy: req.UserID()}
		if err := h.env.Stores.Points.CreateCardKey(ctx, k); err != nil {
			slog.Warn("create card key failed", "bot_id", h.env.Config.ID, "error", err)
			continue
		}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return req.Reply(ctx, "❌ Gagal membuat kode.", nil)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ *%d Kode Dibuat*\n\n", len(codes))
	for _, c := range codes {
		fmt.Fprintf(&b, "`%s` (%d poin, %dx)\n", c, points, maxUses)
	}
	return req.ReplyMarkdown(ctx, b.String(), nil)
}

func (h *handler) listKeys(ctx context.Context, req *messaging.Request) error {
	keys, err := h.env.Stores.Points.ListCardKeys(ctx, h.env.Config.ID, listLimit)
	if err != nil {
		return fmt.Errorf("list card keys: %w", err)
	}
	if len(keys) == 0 {
		return req.Reply(ctx, "📋 Belum ada kode.", nil)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 *Card Keys (%d)*\n\n", len(keys))
	for _, k := range keys {
		mark := "✅"
		if k.CurrentUses >= k.MaxUses {
			mark = "❌"
		}
		fmt.Fprintf(&b, "%s `%s` - %dpts (%d/%d)\n", mark, k.Code, k.Balance, k.CurrentUses, k.MaxUses)
	}
	return req.ReplyMarkdown(ctx, b.String(), nil)
}

func (h *handler) broadcast(ctx context.Context, req *messaging.Request) error {
	args := req.Args()
	if len(args) == 0 {
		return req.Reply(ctx, "Penggunaan: /broadcast <pesan>", nil)
	}
	text := strings.Join(args, " ")
	ids, err := h.env.Stores.Points.ListTelegramIDs(ctx, h.env.Config.ID)
	if err != nil {
		return fmt.Errorf("list recipients: %w", err)
	}
	if len(ids) == 0 {
		return req.Reply(ctx, "Tidak ada user untuk broadcast.", nil)
	}
	if err := req.Reply(ctx, fmt.Sprintf("📢 Mengirim ke %d users...", len(ids)), nil); err != nil {
		return err
	}

	rec := &store.Broadcast{BotID: h.env.Config.ID, Message: text, Status: store.BroadcastSending}
	if err := h.env.Stores.Broadcasts.Create(ctx, rec); err != nil {
		slog.Warn("failed to record broadcast", "bot_id", h.env.Config.ID, "error", err)
		rec = nil
	}
	res, err := h.env.Pacer.Send(ctx, req.Bot, ids, messaging.Message{Text: "📢 *Broadcast*\n\n" + text, Markdown: true})
	if rec != nil {
		if serr := h.env.Stores.Broadcasts.SetResult(ctx, rec.ID, res.Sent, store.BroadcastCompleted); serr != nil {
			slog.Warn("failed to record broadcast result", "broadcast_id", rec.ID, "error", serr)
		}
	}
	if err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	return req.Reply(ctx, fmt.Sprintf("✅ Terkirim ke %d/%d users.", res.Sent, res.Total), nil)
}
