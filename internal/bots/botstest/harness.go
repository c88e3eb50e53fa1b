// Package botstest drives a bot type's routes in tests without a gateway.
package botstest

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/botfleet/internal/bots"
	"github.com/nextlevelbuilder/botfleet/internal/broadcast"
	"github.com/nextlevelbuilder/botfleet/internal/convstate"
	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/messaging/messagingtest"
	"github.com/nextlevelbuilder/botfleet/internal/store"
	"github.com/nextlevelbuilder/botfleet/internal/store/storetest"
)

// OwnerID is the admin Telegram id of every harness.
const OwnerID int64 = 1000

// Harness wires one variant to in-memory stores and a recording sender.
type Harness struct {
	t      *testing.T
	Env    bots.BotEnv
	DB     *storetest.DB
	Sender *messagingtest.Sender
	router *messaging.Router
	msgID  int
}

// New builds a harness for variant. tweak may adjust the environment
// (payments, bot config) before the routes are built.
func New(t *testing.T, variant bots.Variant, tweak func(*bots.BotEnv)) *Harness {
	t.Helper()
	stores, db := storetest.New()
	env := bots.BotEnv{
		Config:  store.BotConfig{ID: 1, Name: "Test Bot", Username: "testbot", Type: variant.Kind(), IsActive: true},
		Stores:  stores,
		OwnerID: OwnerID,
		State:   convstate.NewMemory(time.Minute),
		Pacer:   broadcast.NewPacer(time.Millisecond),
	}
	if tweak != nil {
		tweak(&env)
	}
	return &Harness{
		t:      t,
		Env:    env,
		DB:     db,
		Sender: messagingtest.NewSender(),
		router: messaging.NewRouter(variant.Routes(env)),
	}
}

// User returns a Telegram user with a predictable name.
func User(id int64) messaging.User {
	return messaging.User{ID: id, Username: "user" + itoa(id), FirstName: "User" + itoa(id)}
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func (h *Harness) dispatch(u *messaging.Update) bool {
	h.t.Helper()
	handled, err := h.router.Dispatch(context.Background(), &messaging.Request{Update: u, Bot: h.Sender, BotUsername: h.Env.Config.Username})
	require.NoError(h.t, err)
	return handled
}

// Text sends a message from user in their private chat and reports
// whether a route handled it.
func (h *Harness) Text(from messaging.User, text string) bool {
	h.t.Helper()
	h.msgID++
	return h.dispatch(&messaging.Update{ChatID: from.ID, MessageID: h.msgID, From: from, Text: text})
}

// Press simulates a button press on the last message.
func (h *Harness) Press(from messaging.User, data string) bool {
	h.t.Helper()
	h.msgID++
	return h.dispatch(&messaging.Update{ChatID: from.ID, MessageID: h.msgID, From: from, CallbackID: "cb" + itoa(int64(h.msgID)), CallbackData: data})
}

// Last returns the latest message sent or edited, whichever came last in
// the handler's output. It fails the test when nothing was produced.
func (h *Harness) Last() messaging.Message {
	h.t.Helper()
	out := h.Outputs()
	require.NotEmpty(h.t, out, "no message sent")
	return out[len(out)-1]
}

// Outputs returns every sent and edited message in order.
func (h *Harness) Outputs() []messaging.Message {
	return h.Sender.Outputs()
}

// LastTo returns the latest message sent to chatID.
func (h *Harness) LastTo(chatID int64) (messaging.Message, bool) {
	out := h.Outputs()
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].ChatID == chatID {
			return out[i], true
		}
	}
	return messaging.Message{}, false
}

// HasButton reports whether msg carries a button with the given data.
func HasButton(msg messaging.Message, data string) bool {
	for _, row := range msg.Keyboard {
		for _, b := range row {
			if b.Data == data {
				return true
			}
		}
	}
	return false
}
