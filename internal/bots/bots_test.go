package bots

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// pingVariant answers /ping with "pong from <bot name>".
type pingVariant struct{}

func (pingVariant) Kind() string { return store.BotTypeCustom }

func (pingVariant) Routes(env BotEnv) []messaging.Route {
	return []messaging.Route{
		messaging.Command("ping", "Ping", func(ctx context.Context, req *messaging.Request) error {
			return req.Reply(ctx, "pong from "+env.Config.Name, nil)
		}),
	}
}

type fakeSource struct {
	mu   sync.Mutex
	bots map[int64]store.BotConfig
	err  error
}

func newSource(cfgs ...store.BotConfig) *fakeSource {
	s := &fakeSource{bots: make(map[int64]store.BotConfig)}
	for _, c := range cfgs {
		s.put(c)
	}
	return s
}

func (s *fakeSource) put(c store.BotConfig) {
	s.mu.Lock()
	s.bots[c.ID] = c
	s.mu.Unlock()
}

func (s *fakeSource) remove(id int64) {
	s.mu.Lock()
	delete(s.bots, id)
	s.mu.Unlock()
}

func (s *fakeSource) ListActive(ctx context.Context) ([]store.BotConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []store.BotConfig
	for _, c := range s.bots {
		if c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *fakeSource) Get(ctx context.Context, id int64) (*store.BotConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.bots[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

var errBoom = errors.New("boom")

func bot(id int64, token string) store.BotConfig {
	return store.BotConfig{
		ID:        id,
		Name:      "Bot " + token,
		Username:  "configured_" + token,
		Type:      store.BotTypeCustom,
		Token:     token,
		IsActive:  true,
		UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestManager(src ConfigSource, gw messaging.Gateway) *Manager {
	return NewManager(src, gw, NewVariants(pingVariant{}), BotEnv{},
		WithStartTimeout(time.Second), WithStopTimeout(time.Second))
}
