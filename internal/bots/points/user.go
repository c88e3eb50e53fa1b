package points

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

func (h *handler) start(ctx context.Context, req *messaging.Request) error {
	from := req.Update.From
	var inviter *int64
	if args := req.Args(); len(args) > 0 {
		if id, err := strconv.ParseInt(args[0], 10, 64); err == nil && id != from.ID {
			inviter = &id
		}
	}

	u, created, err := h.env.Stores.Points.GetOrCreate(ctx, h.env.Config.ID, from.ID, from.Username, from.FullName(),
		inviter, inviteeBonus, inviterBonus)
	if err != nil {
		return fmt.Errorf("register points user: %w", err)
	}

	if created && u.InvitedBy != nil {
		return req.Reply(ctx, fmt.Sprintf("🎉 Selamat datang, %s!\n\nAnda terdaftar melalui link undangan.\n"+
			"💰 Bonus: +%d poin\n\nGunakan /help untuk melihat perintah.", from.FirstName, inviteeBonus), nil)
	}
	return req.Reply(ctx, fmt.Sprintf("👋 Selamat datang, %s!\n\n🤖 Bot Verifikasi Student\n\n"+
		"💰 Saldo Anda: %d poin\n\nGunakan /help untuk melihat perintah yang tersedia.", from.FirstName, u.Balance), nil)
}

func (h *handler) about(ctx context.Context, req *messaging.Request) error {
	return req.ReplyMarkdown(ctx, "🤖 *Bot Verifikasi Student*\n\n"+
		"Bot ini digunakan untuk verifikasi status pelajar/mahasiswa.\n\n"+
		"💰 Setiap verifikasi membutuhkan 1 poin.\n"+
		"📅 Dapatkan poin gratis dengan check-in harian.\n"+
		"🎁 Undang teman untuk bonus poin.", nil)
}

func (h *handler) help(ctx context.Context, req *messaging.Request) error {
	var b strings.Builder
	b.WriteString("📖 *Perintah Tersedia*\n\n👤 *User*\n" +
		"/start - Mulai bot\n" +
		"/balance - Cek saldo poin\n" +
		"/qd - Check-in harian (+1 poin)\n" +
		"/invite - Link undangan\n" +
		"/use <kode> - Tukar kode redeem\n\n" +
		"✅ *Verifikasi*\n")
	for _, k := range verifyKinds {
		fmt.Fprintf(&b, "/%s - %s\n", k.command, k.description)
	}
	if h.env.IsOwner(req.UserID()) {
		b.WriteString("\n🔧 *Admin*\n" +
			"/addbalance <id> <jumlah>\n" +
			"/block <id> - Blokir user\n" +
			"/white <id> - Unblock user\n" +
			"/blacklist - Daftar blokir\n" +
			"/genkey <jumlah> [max_uses]\n" +
			"/listkeys - Daftar kode\n" +
			"/broadcast <pesan>\n")
	}
	return req.ReplyMarkdown(ctx, b.String(), nil)
}

func (h *handler) balance(ctx context.Context, req *messaging.Request) error {
	u, err := h.member(ctx, req)
	if u == nil {
		return err
	}
	return req.ReplyMarkdown(ctx, fmt.Sprintf("💰 *Saldo Poin*\n\nPoin Anda: *%d* poin", u.Balance), nil)
}

func (h *handler) checkin(ctx context.Context, req *messaging.Request) error {
	u, err := h.member(ctx, req)
	if u == nil {
		return err
	}
	ok, err := h.env.Stores.Points.CheckIn(ctx, h.env.Config.ID, u.TelegramID, h.now(), checkinBonus)
	if err != nil {
		return fmt.Errorf("check in: %w", err)
	}
	if !ok {
		return req.Reply(ctx, "❌ Anda sudah check-in hari ini. Kembali besok!", nil)
	}
	return req.Reply(ctx, fmt.Sprintf("✅ Check-in berhasil!\nPoin: +%d\nSaldo: %d poin", checkinBonus, u.Balance+checkinBonus), nil)
}

func (h *handler) invite(ctx context.Context, req *messaging.Request) error {
	u, err := h.member(ctx, req)
	if u == nil {
		return err
	}
	link := fmt.Sprintf("https://t.me/%s?start=%d", req.BotUsername, u.TelegramID)
	return req.ReplyMarkdown(ctx, fmt.Sprintf("🎁 *Link Undangan Anda*\n\n`%s`\n\n"+
		"Setiap teman yang bergabung = +%d poin untuk Anda!", link, inviterBonus), nil)
}

// redeemFailures maps card key errors to their replies.
var redeemFailures = []struct {
	err   error
	reply string
}{
	{store.ErrKeyNotFound, "❌ Kode tidak ditemukan."},
	{store.ErrKeyExhausted, "❌ Kode sudah habis digunakan."},
	{store.ErrKeyExpired, "❌ Kode sudah expired."},
	{store.ErrKeyAlreadyUsed, "❌ Anda sudah menggunakan kode ini."},
}

func (h *handler) use(ctx context.Context, req *messaging.Request) error {
	u, err := h.member(ctx, req)
	if u == nil {
		return err
	}
	args := req.Args()
	if len(args) == 0 {
		return req.Reply(ctx, "Penggunaan: /use <kode>", nil)
	}
	code := strings.ToUpper(strings.TrimSpace(args[0]))

	added, err := h.env.Stores.Points.UseCardKey(ctx, h.env.Config.ID, code, u.TelegramID, h.now())
	for _, f := range redeemFailures {
		if errors.Is(err, f.err) {
			return req.Reply(ctx, f.reply, nil)
		}
	}
	if err != nil {
		return fmt.Errorf("use card key: %w", err)
	}
	return req.Reply(ctx, fmt.Sprintf("✅ Berhasil!\nPoin: +%d\nSaldo: %d poin", added, u.Balance+added), nil)
}
