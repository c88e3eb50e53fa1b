package verification

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/botfleet/internal/bots/botstest"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

func submit(t *testing.T, h *botstest.Harness, userID int64, studentID, name string) {
	t.Helper()
	u := botstest.User(userID)
	require.True(t, h.Text(u, "/verify"))
	require.True(t, h.Text(u, studentID))
	require.True(t, h.Text(u, name))
}

func TestStartOffersVerification(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)

	h.Text(botstest.User(7), "/start")
	msg := h.Last()
	assert.Contains(t, msg.Text, "Bot Verifikasi Mahasiswa")
	assert.True(t, botstest.HasButton(msg, "start_verify"))
	assert.False(t, botstest.HasButton(msg, "admin_pending"))

	h.Text(botstest.User(botstest.OwnerID), "/start")
	assert.True(t, botstest.HasButton(h.Last(), "admin_pending"))
}

func TestSubmitVerification(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)
	u := botstest.User(7)

	h.Press(u, "start_verify")
	assert.Contains(t, h.Last().Text, "masukkan NIM")

	h.Text(u, "123")
	assert.Equal(t, "❌ NIM terlalu pendek. Silakan masukkan NIM yang valid:", h.Last().Text)

	h.Text(u, "2021001234")
	assert.Contains(t, h.Last().Text, "nama lengkap")

	h.Text(u, "Budi Santoso")
	reply, ok := h.LastTo(7)
	require.True(t, ok)
	assert.Contains(t, reply.Text, "Verifikasi Terkirim")

	notice, ok := h.LastTo(botstest.OwnerID)
	require.True(t, ok)
	assert.Contains(t, notice.Text, "2021001234")
	assert.Contains(t, notice.Text, "@user7")

	v, err := h.Env.Stores.Verifications.GetLatest(context.Background(), h.Env.Config.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, "2021001234", v.StudentID)
	assert.Equal(t, "Budi Santoso", v.FullName)
	assert.Equal(t, store.VerificationPending, v.Status)

	h.Text(u, "/status")
	assert.Contains(t, h.Last().Text, "PENDING")
}

func TestVerifyRefusesWhilePending(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)
	submit(t, h, 7, "2021001234", "Budi")

	h.Text(botstest.User(7), "/verify")
	assert.Contains(t, h.Last().Text, "sudah memiliki verifikasi")

	before := len(h.Outputs())
	h.Text(botstest.User(7), "hello")
	assert.Len(t, h.Outputs(), before)
}

func TestCancelVerification(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)
	u := botstest.User(7)

	h.Text(u, "/verify")
	h.Press(u, "verify_cancel")
	assert.Equal(t, "❌ Verifikasi dibatalkan.", h.Last().Text)

	before := len(h.Outputs())
	h.Text(u, "2021001234")
	assert.Len(t, h.Outputs(), before)

	h.Text(u, "/status")
	assert.Contains(t, h.Last().Text, "belum memiliki verifikasi")
}

func TestOwnerApprovesAndRejects(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)
	owner := botstest.User(botstest.OwnerID)
	submit(t, h, 7, "2021000007", "Ani")
	submit(t, h, 8, "2021000008", "Budi")

	h.Press(owner, "admin_pending")
	msg := h.Last()
	assert.Contains(t, msg.Text, "Verifikasi Pending (2)")

	ani, err := h.Env.Stores.Verifications.GetLatest(context.Background(), h.Env.Config.ID, 7)
	require.NoError(t, err)
	budi, err := h.Env.Stores.Verifications.GetLatest(context.Background(), h.Env.Config.ID, 8)
	require.NoError(t, err)
	require.True(t, botstest.HasButton(msg, "approve_"+strconv.FormatInt(ani.ID, 10)))

	h.Press(owner, "approve_"+strconv.FormatInt(ani.ID, 10))
	assert.Contains(t, h.Last().Text, "Verifikasi Pending (1)")
	h.Press(owner, "reject_"+strconv.FormatInt(budi.ID, 10))
	assert.Contains(t, h.Last().Text, "Tidak ada verifikasi yang menunggu")

	h.Text(botstest.User(7), "/status")
	assert.Contains(t, h.Last().Text, "APPROVED")
	assert.Contains(t, h.Last().Text, "Diverifikasi:")

	h.Text(botstest.User(8), "/status")
	assert.Contains(t, h.Last().Text, "verifikasi ulang")

	h.Text(botstest.User(8), "/start")
	assert.True(t, botstest.HasButton(h.Last(), "start_verify"))
	h.Text(botstest.User(8), "/verify")
	assert.Contains(t, h.Last().Text, "masukkan NIM")
}

func TestAdminCallbacksRequireOwner(t *testing.T) {
	h := botstest.New(t, Variant{}, nil)
	submit(t, h, 7, "2021000007", "Ani")
	v, err := h.Env.Stores.Verifications.GetLatest(context.Background(), h.Env.Config.ID, 7)
	require.NoError(t, err)

	h.Press(botstest.User(7), "approve_"+strconv.FormatInt(v.ID, 10))
	answers := h.Sender.Answers()
	assert.Equal(t, "⛔ Akses ditolak.", answers[len(answers)-1])

	v, err = h.Env.Stores.Verifications.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.VerificationPending, v.Status)
}
