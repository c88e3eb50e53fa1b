// Package messagingtest provides in-memory Gateway and Session fakes.
package messagingtest

import (
	"context"
	"errors"
	"sync"

	"github.com/nextlevelbuilder/botfleet/internal/messaging"
)

// ErrRejected is returned by Connect for tokens listed in Gateway.Reject.
var ErrRejected = errors.New("token rejected")

// Gateway hands out Sessions and records every connect.
type Gateway struct {
	mu       sync.Mutex
	reject   map[string]error
	sessions []*Session
	// CloseErr, when set, is returned by every Session.Close.
	CloseErr error
}

func NewGateway() *Gateway {
	return &Gateway{reject: make(map[string]error)}
}

// Reject makes Connect fail for token. A nil err uses ErrRejected.
func (g *Gateway) Reject(token string, err error) {
	if err == nil {
		err = ErrRejected
	}
	g.mu.Lock()
	g.reject[token] = err
	g.mu.Unlock()
}

func (g *Gateway) Connect(ctx context.Context, token string) (messaging.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.reject[token]; ok {
		return nil, err
	}
	s := &Session{token: token, username: "bot_" + token, closeErr: g.CloseErr, stop: make(chan error, 1)}
	g.sessions = append(g.sessions, s)
	return s, nil
}

// Connects counts successful connects for token.
func (g *Gateway) Connects(token string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, s := range g.sessions {
		if s.token == token {
			n++
		}
	}
	return n
}

// Sessions returns every session opened for token, oldest first.
func (g *Gateway) Sessions(token string) []*Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*Session
	for _, s := range g.sessions {
		if s.token == token {
			out = append(out, s)
		}
	}
	return out
}

// Session is a fake connection that records what is sent through it.
type Session struct {
	token    string
	username string
	closeErr error
	stop     chan error

	mu       sync.Mutex
	router   *messaging.Router
	sent     []messaging.Message
	edits    []messaging.Message
	outputs  []messaging.Message
	answers  []string
	closes   int
	failSend map[int64]bool
}

func (s *Session) Username() string { return s.username }

func (s *Session) Handle(routes []messaging.Route) {
	s.mu.Lock()
	s.router = messaging.NewRouter(routes)
	s.mu.Unlock()
}

// Receive blocks until ctx is cancelled or Fail is called.
func (s *Session) Receive(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-s.stop:
		return err
	}
}

// Fail ends Receive with err, as a dropped connection would.
func (s *Session) Fail(err error) {
	select {
	case s.stop <- err:
	default:
	}
}

func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return s.closeErr
}

// Closes counts Close calls.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// FailSendTo makes Send fail for chatID.
func (s *Session) FailSendTo(chatID int64) {
	s.mu.Lock()
	if s.failSend == nil {
		s.failSend = make(map[int64]bool)
	}
	s.failSend[chatID] = true
	s.mu.Unlock()
}

func (s *Session) Send(ctx context.Context, msg messaging.Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSend[msg.ChatID] {
		return 0, errors.New("chat not found")
	}
	s.sent = append(s.sent, msg)
	s.outputs = append(s.outputs, msg)
	return len(s.sent), nil
}

func (s *Session) Edit(ctx context.Context, messageID int, msg messaging.Message) error {
	s.mu.Lock()
	s.edits = append(s.edits, msg)
	s.outputs = append(s.outputs, msg)
	s.mu.Unlock()
	return nil
}

func (s *Session) Answer(ctx context.Context, callbackID, text string) error {
	s.mu.Lock()
	s.answers = append(s.answers, text)
	s.mu.Unlock()
	return nil
}

// Sent returns the messages sent so far.
func (s *Session) Sent() []messaging.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messaging.Message(nil), s.sent...)
}

// Edits returns the message edits so far.
func (s *Session) Edits() []messaging.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messaging.Message(nil), s.edits...)
}

// Outputs returns sent and edited messages in the order they happened.
func (s *Session) Outputs() []messaging.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messaging.Message(nil), s.outputs...)
}

// Answers returns the callback answers so far.
func (s *Session) Answers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.answers...)
}

// Deliver dispatches u through the installed routes, as the receive loop would.
func (s *Session) Deliver(ctx context.Context, u *messaging.Update) (bool, error) {
	s.mu.Lock()
	r := s.router
	s.mu.Unlock()
	if r == nil {
		return false, errors.New("no routes installed")
	}
	return r.Dispatch(ctx, &messaging.Request{Update: u, Bot: s, BotUsername: s.username})
}

// Sender is a standalone Sender for handler tests.
type Sender struct {
	Session
}

func NewSender() *Sender {
	return &Sender{Session: Session{username: "testbot", stop: make(chan error, 1)}}
}
