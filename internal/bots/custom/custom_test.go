package custom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/botfleet/internal/bots"
	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/messaging/messagingtest"
	"github.com/nextlevelbuilder/botfleet/internal/store"
	"github.com/nextlevelbuilder/botfleet/internal/store/storetest"
)

func TestStartRegistersAndGreets(t *testing.T) {
	stores, _ := storetest.New()
	env := bots.BotEnv{Config: store.BotConfig{ID: 5, Type: store.BotTypeCustom}, Stores: stores}

	s := messagingtest.NewSender()
	r := messaging.NewRouter(Variant{}.Routes(env))
	u := &messaging.Update{ChatID: 77, Text: "/start", From: messaging.User{ID: 77, FirstName: "Budi", Username: "budi"}}

	handled, err := r.Dispatch(context.Background(), &messaging.Request{Update: u, Bot: s})
	require.NoError(t, err)
	require.True(t, handled)

	require.Len(t, s.Sent(), 1)
	assert.Contains(t, s.Sent()[0].Text, "Halo, Budi!")

	ids, err := stores.BotUsers.ListTelegramIDs(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{77}, ids)
}
