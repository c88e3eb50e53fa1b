package bots

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/messaging/messagingtest"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

func TestNewInstanceValidation(t *testing.T) {
	variants := NewVariants(pingVariant{})
	gw := messagingtest.NewGateway()

	tests := []struct {
		name string
		cfg  store.BotConfig
	}{
		{"empty token", store.BotConfig{ID: 1, Type: store.BotTypeCustom}},
		{"malformed token", store.BotConfig{ID: 2, Type: store.BotTypeCustom, Token: "not-a-token"}},
		{"token without secret", store.BotConfig{ID: 3, Type: store.BotTypeCustom, Token: "123:"}},
		{"unknown type", store.BotConfig{ID: 4, Type: "casino", Token: "123:abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInstance(tt.cfg, gw, variants, BotEnv{})
			var cerr *ConfigurationError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, tt.cfg.ID, cerr.BotID)
		})
	}
	assert.Equal(t, 0, gw.Connects("123:abc"))
}

func TestValidToken(t *testing.T) {
	assert.True(t, ValidToken("123456789:AAH-x_yz"))
	assert.False(t, ValidToken("abc:def"))
	assert.False(t, ValidToken("123456789"))
	assert.False(t, ValidToken("123:has space"))
	assert.False(t, ValidToken("123:"))
	assert.False(t, ValidToken(":AAH"))
	assert.True(t, ValidToken("1:A"))
}

func TestInstanceStartStop(t *testing.T) {
	gw := messagingtest.NewGateway()
	inst, err := NewInstance(bot(1, "1:AAA"), gw, NewVariants(pingVariant{}), BotEnv{})
	require.NoError(t, err)

	assert.Equal(t, "configured_1:AAA", inst.Username())
	assert.Equal(t, StateStopped, inst.State())
	assert.Nil(t, inst.Session())

	ctx := context.Background()
	require.NoError(t, inst.Start(ctx))
	assert.Equal(t, StateRunning, inst.State())
	assert.Equal(t, "bot_1:AAA", inst.Username())
	require.NotNil(t, inst.Session())

	// routes of the variant are installed on the session
	sess := gw.Sessions("1:AAA")[0]
	handled, err := sess.Deliver(ctx, &messaging.Update{ChatID: 9, Text: "/ping"})
	require.NoError(t, err)
	assert.True(t, handled)
	require.Len(t, sess.Sent(), 1)
	assert.Equal(t, "pong from Bot 1:AAA", sess.Sent()[0].Text)

	require.NoError(t, inst.Stop(ctx))
	assert.Equal(t, StateStopped, inst.State())
	assert.Equal(t, 1, sess.Closes())
	assert.Nil(t, inst.Session())
}

func TestInstanceIdempotentStartStop(t *testing.T) {
	gw := messagingtest.NewGateway()
	inst, err := NewInstance(bot(1, "1:AAA"), gw, NewVariants(pingVariant{}), BotEnv{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, inst.Stop(ctx), "stop before start is a no-op")

	require.NoError(t, inst.Start(ctx))
	require.NoError(t, inst.Start(ctx))
	assert.Equal(t, 1, gw.Connects("1:AAA"))

	require.NoError(t, inst.Stop(ctx))
	require.NoError(t, inst.Stop(ctx))
	assert.Equal(t, 1, gw.Sessions("1:AAA")[0].Closes())
}

func TestInstanceConnectFailure(t *testing.T) {
	gw := messagingtest.NewGateway()
	gw.Reject("2:BBB", nil)
	inst, err := NewInstance(bot(2, "2:BBB"), gw, NewVariants(pingVariant{}), BotEnv{})
	require.NoError(t, err)

	err = inst.Start(context.Background())
	var cerr *ConnectionError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, int64(2), cerr.BotID)
	assert.ErrorIs(t, err, messagingtest.ErrRejected)

	assert.Equal(t, StateStopped, inst.State())
	assert.Equal(t, err, inst.LastError())
}

func TestInstanceSurvivesCallerContext(t *testing.T) {
	gw := messagingtest.NewGateway()
	inst, err := NewInstance(bot(1, "1:AAA"), gw, NewVariants(pingVariant{}), BotEnv{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, inst.Start(ctx))
	cancel()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateRunning, inst.State())
	require.NoError(t, inst.Stop(context.Background()))
}

func TestInstanceReceiveFailure(t *testing.T) {
	gw := messagingtest.NewGateway()
	inst, err := NewInstance(bot(1, "1:AAA"), gw, NewVariants(pingVariant{}), BotEnv{})
	require.NoError(t, err)
	require.NoError(t, inst.Start(context.Background()))

	sess := gw.Sessions("1:AAA")[0]
	sess.Fail(errBoom)

	require.Eventually(t, func() bool { return inst.State() == StateStopped }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, inst.LastError(), errBoom)
	require.Eventually(t, func() bool { return sess.Closes() == 1 }, time.Second, 5*time.Millisecond)

	// a later start opens a fresh session
	require.NoError(t, inst.Start(context.Background()))
	assert.Equal(t, 2, gw.Connects("1:AAA"))
	assert.Nil(t, inst.LastError())
	require.NoError(t, inst.Stop(context.Background()))
}

func TestRetiredInstanceRefusesStart(t *testing.T) {
	gw := messagingtest.NewGateway()
	inst, err := NewInstance(bot(1, "1:AAA"), gw, NewVariants(pingVariant{}), BotEnv{})
	require.NoError(t, err)

	inst.retire()
	assert.ErrorIs(t, inst.Start(context.Background()), errRetired)
	assert.Equal(t, 0, gw.Connects("1:AAA"))
}

func TestStateHook(t *testing.T) {
	gw := messagingtest.NewGateway()
	var seen []State
	inst, err := NewInstance(bot(1, "1:AAA"), gw, NewVariants(pingVariant{}), BotEnv{},
		WithStateHook(func(i *Instance) { seen = append(seen, i.State()) }))
	require.NoError(t, err)

	require.NoError(t, inst.Start(context.Background()))
	require.NoError(t, inst.Stop(context.Background()))
	assert.Equal(t, []State{StateRunning, StateStopped}, seen)
}
