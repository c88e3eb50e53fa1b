package bots

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/botfleet/internal/messaging/messagingtest"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

func TestStartAllIsolatesFailures(t *testing.T) {
	gw := messagingtest.NewGateway()
	gw.Reject("2:BBB", nil)
	m := newTestManager(newSource(bot(1, "1:AAA"), bot(2, "2:BBB"), bot(3, "3:CCC")), gw)

	n, err := m.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)

	out := m.StartAll(context.Background())
	assert.Len(t, out, 3)
	assert.Equal(t, []int64{2}, out.Failed())
	assert.Equal(t, []int64{1, 3}, out.Succeeded())

	var cerr *ConnectionError
	assert.True(t, errors.As(out[2], &cerr))

	running := 0
	for _, b := range m.Status().Bots {
		if b.State == StateRunning {
			running++
		}
	}
	assert.Equal(t, 2, running)
	m.StopAll(context.Background())
}

func TestConcreteFleetScenario(t *testing.T) {
	gw := messagingtest.NewGateway()
	gw.Reject("2:BBB", errors.New("Unauthorized: invalid token"))
	m := newTestManager(newSource(bot(1, "1:AAA"), bot(2, "2:BBB"), bot(3, "3:CCC")), gw)
	ctx := context.Background()

	_, err := m.Load(ctx)
	require.NoError(t, err)
	m.StartAll(ctx)

	st := m.Status()
	assert.Equal(t, 3, st.BotCount)
	want := map[int64]State{1: StateRunning, 2: StateStopped, 3: StateRunning}
	for id, state := range want {
		b, ok := st.Bot(id)
		require.True(t, ok, "bot %d", id)
		assert.Equal(t, state, b.State, "bot %d", id)
	}
	b2, _ := st.Bot(2)
	assert.Contains(t, b2.LastError, "invalid token")
	b1, _ := st.Bot(1)
	assert.NotNil(t, b1.StartedAt)
	assert.Equal(t, "bot_1:AAA", b1.Username)

	assert.True(t, m.StopBot(ctx, 2))
	_, ok := m.Status().Bot(2)
	assert.False(t, ok)
	assert.Equal(t, 2, m.Status().BotCount)

	m.StopAll(ctx)
	assert.Equal(t, 0, m.Status().BotCount)
	assert.Empty(t, m.Status().Bots)
}

func TestLoadSkipsMalformedRecords(t *testing.T) {
	bad := bot(2, "garbage")
	m := newTestManager(newSource(bot(1, "1:AAA"), bad, bot(3, "3:CCC")), messagingtest.NewGateway())

	n, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, ok := m.Lookup(2)
	assert.False(t, ok)

	// loading again keeps the existing instances
	first, _ := m.Lookup(1)
	n, err = m.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	again, _ := m.Lookup(1)
	assert.Same(t, first, again)
}

func TestLoadSourceFailure(t *testing.T) {
	src := newSource()
	src.err = errBoom
	_, err := newTestManager(src, messagingtest.NewGateway()).Load(context.Background())
	assert.ErrorIs(t, err, errBoom)
}

func TestAdd(t *testing.T) {
	src := newSource(bot(1, "1:AAA"), bot(2, "oops"))
	gw := messagingtest.NewGateway()
	m := newTestManager(src, gw)
	ctx := context.Background()

	inst, err := m.Add(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, inst.State(), "Add does not start")
	assert.Equal(t, 0, gw.Connects("1:AAA"))

	again, err := m.Add(ctx, 1)
	require.NoError(t, err)
	assert.Same(t, inst, again)

	_, err = m.Add(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = m.Add(ctx, 2)
	var cerr *ConfigurationError
	assert.True(t, errors.As(err, &cerr))
	assert.Equal(t, 1, m.Status().BotCount)
}

func TestStartBotAndStopBot(t *testing.T) {
	gw := messagingtest.NewGateway()
	m := newTestManager(newSource(bot(1, "1:AAA")), gw)
	ctx := context.Background()

	assert.False(t, m.StopBot(ctx, 1), "unregistered")
	assert.False(t, m.StartBot(ctx, 42), "unknown id")

	assert.True(t, m.StartBot(ctx, 1))
	assert.True(t, m.StartBot(ctx, 1))
	assert.Equal(t, 1, gw.Connects("1:AAA"))

	assert.True(t, m.StopBot(ctx, 1))
	assert.False(t, m.StopBot(ctx, 1))
}

func TestStopBotRemovesEntryWhenCloseFails(t *testing.T) {
	gw := messagingtest.NewGateway()
	gw.CloseErr = errors.New("network down")
	m := newTestManager(newSource(bot(1, "1:AAA")), gw)
	ctx := context.Background()

	require.True(t, m.StartBot(ctx, 1))
	assert.True(t, m.StopBot(ctx, 1))

	_, ok := m.Status().Bot(1)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Status().BotCount)
}

func TestStopBotOnFailedStartReturnsTrue(t *testing.T) {
	gw := messagingtest.NewGateway()
	gw.Reject("1:AAA", nil)
	m := newTestManager(newSource(bot(1, "1:AAA")), gw)
	ctx := context.Background()

	assert.False(t, m.StartBot(ctx, 1))
	b, ok := m.Status().Bot(1)
	require.True(t, ok, "failed bot stays registered")
	assert.Equal(t, StateStopped, b.State)

	assert.True(t, m.StopBot(ctx, 1))
	assert.Equal(t, 0, m.Status().BotCount)
}

func TestRestartBot(t *testing.T) {
	gw := messagingtest.NewGateway()
	m := newTestManager(newSource(bot(1, "1:AAA")), gw)
	ctx := context.Background()

	require.True(t, m.StartBot(ctx, 1))
	old, _ := m.Lookup(1)
	oldSess := old.Session()

	require.True(t, m.RestartBot(ctx, 1))

	sessions := gw.Sessions("1:AAA")
	require.Len(t, sessions, 2, "exactly one new connect")
	assert.Equal(t, 1, sessions[0].Closes())
	assert.Equal(t, 0, sessions[1].Closes())

	cur, ok := m.Lookup(1)
	require.True(t, ok)
	assert.NotSame(t, old, cur)
	assert.NotSame(t, oldSess, cur.Session())
	assert.Equal(t, StateRunning, cur.State())
	m.StopAll(ctx)
}

func TestRestartUnregisteredBotStillStarts(t *testing.T) {
	gw := messagingtest.NewGateway()
	m := newTestManager(newSource(bot(1, "1:AAA")), gw)

	assert.True(t, m.RestartBot(context.Background(), 1))
	assert.Equal(t, 1, gw.Connects("1:AAA"))
	m.StopAll(context.Background())
}

func TestStopAllEmptiesRegistry(t *testing.T) {
	gw := messagingtest.NewGateway()
	gw.CloseErr = errBoom
	m := newTestManager(newSource(bot(1, "1:AAA"), bot(2, "2:BBB")), gw)
	ctx := context.Background()

	_, err := m.Load(ctx)
	require.NoError(t, err)
	m.StartAll(ctx)

	out := m.StopAll(ctx)
	assert.Equal(t, []int64{1, 2}, out.Failed(), "close errors are reported")
	assert.Equal(t, 0, m.Status().BotCount)
	for _, tok := range []string{"1:AAA", "2:BBB"} {
		assert.Equal(t, 1, gw.Sessions(tok)[0].Closes())
	}
}

func TestStartAllRespectsMaxParallel(t *testing.T) {
	gw := messagingtest.NewGateway()
	m := NewManager(newSource(bot(1, "1:AAA"), bot(2, "2:BBB"), bot(3, "3:CCC")), gw,
		NewVariants(pingVariant{}), BotEnv{}, WithMaxParallel(1))
	ctx := context.Background()

	_, err := m.Load(ctx)
	require.NoError(t, err)
	out := m.StartAll(ctx)
	assert.Equal(t, []int64{1, 2, 3}, out.Succeeded())
	m.StopAll(ctx)
}

func TestConcurrentStartStop(t *testing.T) {
	gw := messagingtest.NewGateway()
	m := newTestManager(newSource(bot(1, "1:AAA")), gw)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); m.StartBot(ctx, 1) }()
		go func() { defer wg.Done(); m.StopBot(ctx, 1) }()
	}
	wg.Wait()
	m.StopBot(ctx, 1)

	// no session may be left open once the registry is empty
	assert.Equal(t, 0, m.Status().BotCount)
	for _, s := range gw.Sessions("1:AAA") {
		assert.Equal(t, 1, s.Closes())
	}
}

func TestSync(t *testing.T) {
	gw := messagingtest.NewGateway()
	src := newSource(bot(1, "1:AAA"), bot(2, "2:BBB"))
	m := newTestManager(src, gw)
	ctx := context.Background()

	_, err := m.Load(ctx)
	require.NoError(t, err)
	m.StartAll(ctx)

	// bot 1 deactivated, bot 2 edited, bot 3 added
	b1 := bot(1, "1:AAA")
	b1.IsActive = false
	src.put(b1)
	b2 := bot(2, "2:BBB")
	b2.Name = "Renamed"
	b2.UpdatedAt = b2.UpdatedAt.Add(time.Hour)
	src.put(b2)
	src.put(bot(3, "3:CCC"))

	res, err := m.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, res.Started)
	assert.Equal(t, []int64{1}, res.Stopped)
	assert.Equal(t, []int64{2}, res.Restarted)

	st := m.Status()
	assert.Equal(t, 2, st.BotCount)
	renamed, _ := st.Bot(2)
	assert.Equal(t, "Renamed", renamed.Name)

	// nothing changed: nothing to do
	res, err = m.Sync(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Started)
	assert.Empty(t, res.Stopped)
	assert.Empty(t, res.Restarted)

	src.remove(3)
	res, err = m.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, res.Stopped)
	m.StopAll(ctx)
}

func TestSubscribe(t *testing.T) {
	gw := messagingtest.NewGateway()
	m := newTestManager(newSource(bot(1, "1:AAA")), gw)

	var mu sync.Mutex
	var last Status
	m.Subscribe("ws-1", func(st Status) {
		mu.Lock()
		last = st
		mu.Unlock()
	})

	require.True(t, m.StartBot(context.Background(), 1))
	mu.Lock()
	b, ok := last.Bot(1)
	mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, StateRunning, b.State)

	m.Unsubscribe("ws-1")
	m.StopBot(context.Background(), 1)
	mu.Lock()
	assert.Equal(t, 1, last.BotCount, "no updates after unsubscribe")
	mu.Unlock()
}

func TestSenderFor(t *testing.T) {
	gw := messagingtest.NewGateway()
	m := newTestManager(newSource(bot(1, "1:AAA")), gw)
	ctx := context.Background()

	// not running: a temporary session is opened and closed by release
	s, release, err := m.SenderFor(ctx, bot(1, "1:AAA"))
	require.NoError(t, err)
	require.NotNil(t, s)
	release()
	assert.Equal(t, 1, gw.Sessions("1:AAA")[0].Closes())

	// running: the live session is reused
	require.True(t, m.StartBot(ctx, 1))
	inst, _ := m.Lookup(1)
	s, release, err = m.SenderFor(ctx, bot(1, "1:AAA"))
	require.NoError(t, err)
	assert.Equal(t, inst.Session(), s)
	release()
	assert.Equal(t, 2, gw.Connects("1:AAA"))

	gw.Reject("9:ZZZ", nil)
	_, _, err = m.SenderFor(ctx, bot(9, "9:ZZZ"))
	var cerr *ConnectionError
	assert.True(t, errors.As(err, &cerr))
	m.StopAll(ctx)
}

func TestDrainRefusesNewStarts(t *testing.T) {
	gw := messagingtest.NewGateway()
	m := newTestManager(newSource(bot(1, "1:AAA"), bot(2, "2:BBB")), gw)
	ctx := context.Background()

	_, err := m.Load(ctx)
	require.NoError(t, err)
	m.StartAll(ctx)
	assert.False(t, m.Draining())

	m.Drain()
	m.StopAll(ctx)
	assert.True(t, m.Draining())

	assert.False(t, m.StartBot(ctx, 1))
	_, err = m.Add(ctx, 2)
	assert.ErrorIs(t, err, ErrDraining)
	res, err := m.Sync(ctx)
	assert.ErrorIs(t, err, ErrDraining)
	assert.Empty(t, res.Started)
	_, err = m.Load(ctx)
	assert.ErrorIs(t, err, ErrDraining)

	assert.Equal(t, 0, m.Status().BotCount)
	assert.Equal(t, 1, gw.Connects("1:AAA"))
	assert.Equal(t, 1, gw.Connects("2:BBB"))
}

func TestStartRacingDrainNeverOutlivesStopAll(t *testing.T) {
	gw := messagingtest.NewGateway()
	src := newSource()
	for i := int64(1); i <= 20; i++ {
		src.put(bot(i, strconv.FormatInt(i, 10)+":TOK"))
	}
	m := newTestManager(src, gw)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.StartBot(ctx, i)
		}()
	}
	m.Drain()
	m.StopAll(ctx)
	wg.Wait()

	assert.Equal(t, 0, m.Status().BotCount)
	for i := int64(1); i <= 20; i++ {
		for _, sess := range gw.Sessions(strconv.FormatInt(i, 10) + ":TOK") {
			assert.Equal(t, 1, sess.Closes(), "bot %d", i)
		}
	}
}
