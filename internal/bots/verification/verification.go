// Package verification is the student verification bot type. Users submit
// their student id and name; the owner approves or rejects the requests.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/botfleet/internal/bots"
	"github.com/nextlevelbuilder/botfleet/internal/convstate"
	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// minStudentIDLen is the shortest student id accepted.
const minStudentIDLen = 5

// pendingPageSize caps the pending list shown to the owner.
const pendingPageSize = 10

type Variant struct{}

func (Variant) Kind() string { return store.BotTypeVerification }

func (Variant) Routes(env bots.BotEnv) []messaging.Route {
	h := &handler{env: env}
	return []messaging.Route{
		messaging.Command("start", "Mulai", h.start),
		messaging.Command("verify", "Mulai verifikasi", h.verify),
		messaging.Command("status", "Cek status verifikasi", h.status),
		messaging.HiddenCommand("cancel", h.cancel),
		messaging.Callback("start_verify", h.verify),
		messaging.Callback("verify_cancel", h.cancel),
		messaging.Callback("admin_pending", h.owner(h.pending)),
		messaging.CallbackPrefix("approve_", h.owner(h.decide("approve_", store.VerificationApproved, "✅ Verifikasi disetujui!"))),
		messaging.CallbackPrefix("reject_", h.owner(h.decide("reject_", store.VerificationRejected, "❌ Verifikasi ditolak!"))),
		messaging.Text(h.dialogText),
	}
}

type handler struct {
	env bots.BotEnv
}

// form is the in-progress submission of one user.
type form struct {
	StudentID string `json:"student_id,omitempty"`
}

func (h *handler) key(userID int64) string {
	return convstate.Key(h.env.Config.ID, userID) + "/verify"
}

var statusEmoji = map[string]string{
	store.VerificationPending:  "⏳",
	store.VerificationApproved: "✅",
	store.VerificationRejected: "❌",
}

func emojiFor(status string) string {
	if e, ok := statusEmoji[status]; ok {
		return e
	}
	return "❓"
}

func (h *handler) owner(next messaging.HandlerFunc) messaging.HandlerFunc {
	return func(ctx context.Context, req *messaging.Request) error {
		if !h.env.IsOwner(req.UserID()) {
			return req.Answer(ctx, "⛔ Akses ditolak.")
		}
		return next(ctx, req)
	}
}

// latest returns the user's most recent request, or nil.
func (h *handler) latest(ctx context.Context, userID int64) (*store.Verification, error) {
	v, err := h.env.Stores.Verifications.GetLatest(ctx, h.env.Config.ID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest verification: %w", err)
	}
	return v, nil
}

func (h *handler) start(ctx context.Context, req *messaging.Request) error {
	from := req.Update.From
	if _, err := h.env.Stores.BotUsers.GetOrCreate(ctx, h.env.Config.ID, from.ID, from.Username, from.FirstName); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	existing, err := h.latest(ctx, from.ID)
	if err != nil {
		return err
	}

	var text string
	var kb messaging.Keyboard
	if existing != nil {
		text = fmt.Sprintf("👋 Halo, %s!\n\n📋 Status verifikasi Anda: %s *%s*\n\nGunakan /status untuk detail lebih lanjut.",
			from.FirstName, emojiFor(existing.Status), strings.ToUpper(existing.Status))
		if existing.Status == store.VerificationRejected {
			kb = append(kb, messaging.Row(messaging.Button{Text: "🔄 Verifikasi Ulang", Data: "start_verify"}))
		}
	} else {
		text = fmt.Sprintf("👋 Selamat datang, %s!\n\n🎓 *Bot Verifikasi Mahasiswa*\n\n"+
			"Gunakan bot ini untuk memverifikasi status mahasiswa Anda.\n\n"+
			"Klik tombol di bawah atau gunakan /verify untuk memulai.", from.FirstName)
		kb = append(kb, messaging.Row(messaging.Button{Text: "✅ Mulai Verifikasi", Data: "start_verify"}))
	}
	if h.env.IsOwner(from.ID) {
		kb = append(kb, messaging.Row(messaging.Button{Text: "🔧 Admin - Pending", Data: "admin_pending"}))
	}
	return req.ReplyMarkdown(ctx, text, kb)
}

func (h *handler) verify(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	existing, err := h.latest(ctx, req.UserID())
	if err != nil {
		return err
	}
	if existing != nil && existing.Status != store.VerificationRejected {
		text := fmt.Sprintf("⚠️ Anda sudah memiliki verifikasi dengan status: *%s*\n\nGunakan /status untuk melihat detail.",
			strings.ToUpper(existing.Status))
		return req.Show(ctx, text, true, nil)
	}

	if err := h.env.State.Put(ctx, h.key(req.UserID()), form{}); err != nil {
		return fmt.Errorf("save form: %w", err)
	}
	kb := messaging.Keyboard{messaging.Row(messaging.Button{Text: "❌ Batal", Data: "verify_cancel"})}
	return req.Show(ctx, "🎓 *Verifikasi Mahasiswa*\n\nSilakan masukkan NIM (Nomor Induk Mahasiswa) Anda:", true, kb)
}

func (h *handler) cancel(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	if err := h.env.State.Delete(ctx, h.key(req.UserID())); err != nil {
		return fmt.Errorf("clear form: %w", err)
	}
	return req.Show(ctx, "❌ Verifikasi dibatalkan.", false, nil)
}

func (h *handler) dialogText(ctx context.Context, req *messaging.Request) error {
	var f form
	ok, err := h.env.State.Get(ctx, h.key(req.UserID()), &f)
	if err != nil {
		return fmt.Errorf("load form: %w", err)
	}
	if !ok {
		return nil
	}
	text := strings.TrimSpace(req.Update.Text)
	kb := messaging.Keyboard{messaging.Row(messaging.Button{Text: "❌ Batal", Data: "verify_cancel"})}

	if f.StudentID == "" {
		if len([]rune(text)) < minStudentIDLen {
			return req.Reply(ctx, "❌ NIM terlalu pendek. Silakan masukkan NIM yang valid:", nil)
		}
		f.StudentID = text
		if err := h.env.State.Put(ctx, h.key(req.UserID()), f); err != nil {
			return fmt.Errorf("save form: %w", err)
		}
		return req.Reply(ctx, "📝 Masukkan nama lengkap Anda (sesuai kartu mahasiswa):", kb)
	}

	from := req.Update.From
	v := &store.Verification{
		BotID:      h.env.Config.ID,
		TelegramID: from.ID,
		Username:   from.Username,
		StudentID:  f.StudentID,
		FullName:   text,
		Status:     store.VerificationPending,
	}
	if err := h.env.Stores.Verifications.Create(ctx, v); err != nil {
		return fmt.Errorf("create verification: %w", err)
	}
	if err := h.env.State.Delete(ctx, h.key(from.ID)); err != nil {
		slog.Warn("failed to clear verification form", "bot_id", h.env.Config.ID, "user", from.ID, "error", err)
	}

	reply := fmt.Sprintf("✅ *Verifikasi Terkirim!*\n\n📋 NIM: `%s`\n👤 Nama: %s\n\n⏳ Status: *PENDING*\n\n"+
		"Mohon tunggu persetujuan dari admin. Gunakan /status untuk mengecek status verifikasi.", v.StudentID, v.FullName)
	if err := req.ReplyMarkdown(ctx, reply, nil); err != nil {
		return err
	}
	h.notifyOwner(ctx, req, v)
	return nil
}

// notifyOwner tells the owner about a new request. Failures are logged only.
func (h *handler) notifyOwner(ctx context.Context, req *messaging.Request, v *store.Verification) {
	if h.env.OwnerID == 0 {
		return
	}
	username := req.Update.From.Username
	if username == "" {
		username = "N/A"
	}
	text := fmt.Sprintf("🔔 *Verifikasi Baru!*\n\n👤 User: %s (@%s)\n📋 NIM: `%s`\n👤 Nama: %s\n\nGunakan /start di bot untuk review.",
		req.Update.From.FirstName, username, v.StudentID, v.FullName)
	if _, err := req.Bot.Send(ctx, messaging.Message{ChatID: h.env.OwnerID, Text: text, Markdown: true}); err != nil {
		slog.Warn("failed to notify owner", "bot_id", h.env.Config.ID, "error", err)
	}
}

func (h *handler) status(ctx context.Context, req *messaging.Request) error {
	v, err := h.latest(ctx, req.UserID())
	if err != nil {
		return err
	}
	if v == nil {
		return req.Reply(ctx, "📋 Anda belum memiliki verifikasi.\n\nGunakan /verify untuk memulai proses verifikasi.", nil)
	}
	text := fmt.Sprintf("📋 *Status Verifikasi*\n\n📋 NIM: `%s`\n👤 Nama: %s\n📊 Status: %s *%s*\n",
		v.StudentID, v.FullName, emojiFor(v.Status), strings.ToUpper(v.Status))
	switch {
	case v.Status == store.VerificationApproved && v.VerifiedAt != nil:
		text += "✅ Diverifikasi: " + v.VerifiedAt.Format("02/01/2006 15:04")
	case v.Status == store.VerificationRejected:
		text += "\n💡 Anda dapat mengajukan verifikasi ulang dengan /verify"
	}
	return req.ReplyMarkdown(ctx, text, nil)
}

func (h *handler) pending(ctx context.Context, req *messaging.Request) error {
	_ = req.Answer(ctx, "")
	return h.showPending(ctx, req)
}

func (h *handler) showPending(ctx context.Context, req *messaging.Request) error {
	list, err := h.env.Stores.Verifications.ListPending(ctx, h.env.Config.ID, pendingPageSize)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	if len(list) == 0 {
		return req.Show(ctx, "📋 *Verifikasi Pending*\n\n✅ Tidak ada verifikasi yang menunggu.", true, nil)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 *Verifikasi Pending (%d)*\n\n", len(list))
	var kb messaging.Keyboard
	for _, v := range list {
		fmt.Fprintf(&b, "• NIM: `%s`\n  Nama: %s\n\n", v.StudentID, v.FullName)
		kb = append(kb, messaging.Row(
			messaging.Button{Text: "✅ " + v.StudentID, Data: fmt.Sprintf("approve_%d", v.ID)},
			messaging.Button{Text: "❌ " + v.StudentID, Data: fmt.Sprintf("reject_%d", v.ID)},
		))
	}
	return req.Show(ctx, b.String(), true, kb)
}

// decide sets the status named by the button and refreshes the list.
func (h *handler) decide(prefix, status, notice string) messaging.HandlerFunc {
	return func(ctx context.Context, req *messaging.Request) error {
		id, err := strconv.ParseInt(strings.TrimPrefix(req.Update.CallbackData, prefix), 10, 64)
		if err != nil {
			return req.Answer(ctx, "")
		}
		v, err := h.env.Stores.Verifications.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) || (err == nil && v.BotID != h.env.Config.ID) {
			_ = req.Answer(ctx, "❌ Verifikasi tidak ditemukan.")
			return h.showPending(ctx, req)
		}
		if err != nil {
			return fmt.Errorf("get verification %d: %w", id, err)
		}
		if err := h.env.Stores.Verifications.SetStatus(ctx, id, status); err != nil {
			return fmt.Errorf("set verification %d %s: %w", id, status, err)
		}
		slog.Info("verification decided", "bot_id", h.env.Config.ID, "verification_id", id, "status", status)
		_ = req.Answer(ctx, notice)
		return h.showPending(ctx, req)
	}
}
