package points

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/botfleet/internal/bots/botstest"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

func register(t *testing.T, h *botstest.Harness, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		require.True(t, h.Text(botstest.User(id), "/start"))
	}
}

func balanceOf(t *testing.T, h *botstest.Harness, id int64) int {
	t.Helper()
	u, err := h.Env.Stores.Points.Get(context.Background(), h.Env.Config.ID, id)
	require.NoError(t, err)
	return u.Balance
}

func TestStartWithInviter(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)
	register(t, h, 7)
	assert.Contains(t, h.Last().Text, "Saldo Anda: 0 poin")

	h.Text(botstest.User(8), "/start 7")
	assert.Contains(t, h.Last().Text, "link undangan")
	assert.Equal(t, 1, balanceOf(t, h, 8))
	assert.Equal(t, 2, balanceOf(t, h, 7))

	// A second /start never pays again.
	h.Text(botstest.User(8), "/start 7")
	assert.Equal(t, 2, balanceOf(t, h, 7))

	// Unknown inviters are ignored.
	h.Text(botstest.User(9), "/start 12345")
	assert.Contains(t, h.Last().Text, "Saldo Anda: 0 poin")
}

func TestUnregisteredAndBlockedUsers(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)

	h.Text(botstest.User(7), "/balance")
	assert.Equal(t, "Silakan /start terlebih dahulu.", h.Last().Text)

	register(t, h, 7)
	h.Text(botstest.User(botstest.OwnerID), "/block 7")
	assert.Equal(t, "✅ User 7 diblokir.", h.Last().Text)

	for _, cmd := range []string{"/balance", "/qd", "/invite", "/use ABC", "/verify"} {
		h.Text(botstest.User(7), cmd)
		assert.Equal(t, "⛔ Akun Anda diblokir.", h.Last().Text, cmd)
	}

	h.Text(botstest.User(botstest.OwnerID), "/blacklist")
	assert.Contains(t, h.Last().Text, "7 - @user7")

	h.Text(botstest.User(botstest.OwnerID), "/white 7")
	h.Text(botstest.User(7), "/balance")
	assert.Contains(t, h.Last().Text, "Poin Anda: *0* poin")
}

func TestDailyCheckIn(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)
	register(t, h, 7)

	h.Text(botstest.User(7), "/qd")
	assert.Contains(t, h.Last().Text, "Check-in berhasil")
	h.Text(botstest.User(7), "/qd")
	assert.Contains(t, h.Last().Text, "sudah check-in hari ini")
	assert.Equal(t, 1, balanceOf(t, h, 7))
}

func TestCheckInNextDay(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)
	register(t, h, 7)
	ctx := context.Background()
	day := time.Date(2026, 10, 19, 23, 0, 0, 0, time.UTC)

	ok, err := h.Env.Stores.Points.CheckIn(ctx, h.Env.Config.ID, 7, day, checkinBonus)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = h.Env.Stores.Points.CheckIn(ctx, h.Env.Config.ID, 7, day.Add(2*time.Hour), checkinBonus)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInviteLink(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)
	register(t, h, 7)
	h.Text(botstest.User(7), "/invite")
	assert.Contains(t, h.Last().Text, "https://t.me/testbot?start=7")
}

func TestVerifyChargesOnePoint(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)
	register(t, h, 7)

	h.Text(botstest.User(7), "/verify3")
	assert.Contains(t, h.Last().Text, "Saldo tidak cukup")
	assert.Empty(t, h.DB.VerificationKinds(h.Env.Config.ID, 7))

	h.Text(botstest.User(botstest.OwnerID), "/addbalance 7 2")
	assert.Contains(t, h.Last().Text, "Saldo baru: 2 poin")

	h.Text(botstest.User(7), "/verify3")
	assert.Equal(t, "✅ Verifikasi Spotify Student selesai!\nSaldo: 1 poin", h.Last().Text)
	h.Text(botstest.User(7), "/verify")
	assert.Contains(t, h.Last().Text, "Saldo: 0 poin")

	assert.Equal(t, []string{"spotify", "gemini"}, h.DB.VerificationKinds(h.Env.Config.ID, 7))
}

func TestCardKeys(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)
	owner := botstest.User(botstest.OwnerID)
	register(t, h, 7, 8)

	h.Text(owner, "/genkey 5 1 3")
	msg := h.Last().Text
	assert.Contains(t, msg, "3 Kode Dibuat")
	codes := regexp.MustCompile("`([A-Z0-9]{8})`").FindAllStringSubmatch(msg, -1)
	require.Len(t, codes, 3)
	code := codes[0][1]

	h.Text(botstest.User(7), "/use nope")
	assert.Equal(t, "❌ Kode tidak ditemukan.", h.Last().Text)

	h.Text(botstest.User(7), "/use "+strings.ToLower(code))
	assert.Equal(t, "✅ Berhasil!\nPoin: +5\nSaldo: 5 poin", h.Last().Text)

	h.Text(botstest.User(7), "/use "+code)
	assert.Equal(t, "❌ Kode sudah habis digunakan.", h.Last().Text)

	h.Text(owner, "/genkey 3 2")
	second := regexp.MustCompile("`([A-Z0-9]{8})`").FindStringSubmatch(h.Last().Text)[1]
	h.Text(botstest.User(7), "/use "+second)
	h.Text(botstest.User(7), "/use "+second)
	assert.Equal(t, "❌ Anda sudah menggunakan kode ini.", h.Last().Text)

	h.Text(owner, "/listkeys")
	assert.Contains(t, h.Last().Text, "Card Keys (4)")
	assert.Contains(t, h.Last().Text, "❌ `"+code+"`")
}

func TestExpiredCardKey(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)
	register(t, h, 7)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, h.Env.Stores.Points.CreateCardKey(context.Background(),
		&store.CardKey{BotID: h.Env.Config.ID, Code: "OLDCODE1", Balance: 5, MaxUses: 1, ExpiresAt: &past}))

	h.Text(botstest.User(7), "/use OLDCODE1")
	assert.Equal(t, "❌ Kode sudah expired.", h.Last().Text)
}

func TestGenKeyCapsCount(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)
	h.Text(botstest.User(botstest.OwnerID), "/genkey 1 1 50")
	assert.Contains(t, h.Last().Text, "10 Kode Dibuat")

	h.Text(botstest.User(botstest.OwnerID), "/genkey x")
	assert.Equal(t, "❌ Format salah.", h.Last().Text)
}

func TestAdminCommandsRequireOwner(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)
	register(t, h, 7)
	for _, cmd := range []string{"/addbalance 7 100", "/block 7", "/white 7", "/blacklist", "/genkey 5", "/listkeys", "/broadcast hi"} {
		h.Text(botstest.User(7), cmd)
		assert.Equal(t, "⛔ Akses ditolak.", h.Last().Text, cmd)
	}
	assert.Equal(t, 0, balanceOf(t, h, 7))
}

func TestHelpShowsAdminSectionToOwner(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)

	h.Text(botstest.User(7), "/help")
	assert.NotContains(t, h.Last().Text, "/genkey")
	assert.Contains(t, h.Last().Text, "/verify4 - Verifikasi Bolt.new")

	h.Text(botstest.User(botstest.OwnerID), "/help")
	assert.Contains(t, h.Last().Text, "/genkey")
}

func TestBroadcast(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)
	register(t, h, 7, 8, 9)
	h.Sender.FailSendTo(9)

	h.Text(botstest.User(botstest.OwnerID), "/broadcast Promo hari ini")
	assert.Equal(t, "✅ Terkirim ke 2/3 users.", h.Last().Text)

	got, ok := h.LastTo(8)
	require.True(t, ok)
	assert.Equal(t, "📢 *Broadcast*\n\nPromo hari ini", got.Text)

	history, err := h.Env.Stores.Broadcasts.ListByBot(context.Background(), h.Env.Config.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 2, history[0].RecipientsCount)
	assert.Equal(t, store.BroadcastCompleted, history[0].Status)
}
