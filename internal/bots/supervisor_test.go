package bots

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/botfleet/internal/messaging/messagingtest"
)

// syncBuffer lets the test read what Run writes from another goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runAsync(ctx context.Context, s *Supervisor) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	return errc
}

func TestSupervisorShutdownConvergence(t *testing.T) {
	gw := messagingtest.NewGateway()
	gw.Reject("2:BBB", nil)
	m := newTestManager(newSource(bot(1, "1:AAA"), bot(2, "2:BBB"), bot(3, "3:CCC")), gw)
	out := &syncBuffer{}
	s := NewSupervisor(m, out, true)

	errc := runAsync(context.Background(), s)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "2/3 bot(s) running")
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, m.Status().Running)

	s.Shutdown()
	s.Shutdown() // idempotent

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}

	st := m.Status()
	assert.Equal(t, 0, st.BotCount)
	assert.False(t, st.Running)
	assert.Contains(t, out.String(), "Loaded 3 bot(s)")
	assert.Contains(t, out.String(), "All bots stopped. Goodbye!")
	for _, tok := range []string{"1:AAA", "3:CCC"} {
		assert.Equal(t, 1, gw.Sessions(tok)[0].Closes())
	}

	// late callers (admin API draining, an overlapping scheduled sync)
	assert.False(t, m.StartBot(context.Background(), 1))
	_, err := m.Sync(context.Background())
	assert.ErrorIs(t, err, ErrDraining)
	assert.Equal(t, 0, m.Status().BotCount)
	assert.Equal(t, 1, gw.Connects("1:AAA"))
}

func TestSupervisorStopsOnContextCancel(t *testing.T) {
	m := newTestManager(newSource(bot(1, "1:AAA")), messagingtest.NewGateway())
	s := NewSupervisor(m, nil, true)

	ctx, cancel := context.WithCancel(context.Background())
	errc := runAsync(ctx, s)
	require.Eventually(t, func() bool {
		b, ok := m.Status().Bot(1)
		return ok && b.State == StateRunning
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 0, m.Status().BotCount)
}

func TestSupervisorNoBots(t *testing.T) {
	out := &syncBuffer{}
	s := NewSupervisor(newTestManager(newSource(), messagingtest.NewGateway()), out, true)

	require.NoError(t, s.Run(context.Background()))
	assert.Contains(t, out.String(), "No active bots found.")
	assert.NotContains(t, out.String(), "Goodbye")
}

func TestSupervisorNoBotsKeepsWaiting(t *testing.T) {
	gw := messagingtest.NewGateway()
	src := newSource()
	m := newTestManager(src, gw)
	s := NewSupervisor(m, nil, false)

	errc := runAsync(context.Background(), s)
	require.Eventually(t, func() bool { return m.Status().Running }, time.Second, 5*time.Millisecond)

	// a bot added through the admin path while the fleet is idle
	src.put(bot(5, "5:EEE"))
	require.True(t, m.StartBot(context.Background(), 5))

	s.Shutdown()
	require.NoError(t, <-errc)
	assert.Equal(t, 0, m.Status().BotCount)
	assert.Equal(t, 1, gw.Sessions("5:EEE")[0].Closes())
}

func TestSupervisorLoadFailure(t *testing.T) {
	src := newSource()
	src.err = errBoom
	s := NewSupervisor(newTestManager(src, messagingtest.NewGateway()), nil, true)
	assert.ErrorIs(t, s.Run(context.Background()), errBoom)
}
