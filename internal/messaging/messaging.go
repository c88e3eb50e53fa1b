// Package messaging defines the gateway-neutral model a bot runs on:
// updates, outgoing messages, routes and the Gateway/Session pair a bot
// instance drives.
package messaging

import (
	"context"
	"strings"
)

// User is the sender of an update.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Update is one inbound event: a text message or an inline button press.
type Update struct {
	ID        int
	ChatID    int64
	MessageID int
	From      User
	Text      string

	// Set only for callback queries.
	CallbackID   string
	CallbackData string
}

// IsCallback reports whether the update is an inline button press.
func (u *Update) IsCallback() bool {
	return u.CallbackID != ""
}

// Command parses "/name@bot arg1 arg2" into ("name", ["arg1", "arg2"]).
// It returns an empty name when the text is not a command.
func (u *Update) Command() (string, []string) {
	if u.IsCallback() || !strings.HasPrefix(u.Text, "/") {
		return "", nil
	}
	fields := strings.Fields(u.Text)
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return name, fields[1:]
}

// Button is an inline keyboard button. URL buttons ignore Data.
type Button struct {
	Text string
	Data string
	URL  string
}

// Keyboard is an inline keyboard, row by row.
type Keyboard [][]Button

// Row builds one keyboard row.
func Row(buttons ...Button) []Button {
	return buttons
}

// Message is an outgoing text message.
type Message struct {
	ChatID   int64
	Text     string
	Markdown bool
	Keyboard Keyboard
}

// Sender delivers messages through one bot account.
type Sender interface {
	Send(ctx context.Context, msg Message) (messageID int, err error)
	Edit(ctx context.Context, messageID int, msg Message) error
	Answer(ctx context.Context, callbackID, text string) error
}

// Session is an open connection of one bot account.
type Session interface {
	Sender
	// Username is the account name the platform reported on connect.
	Username() string
	// Handle installs the routes. It must be called before Receive.
	Handle(routes []Route)
	// Receive pulls and dispatches updates until ctx is cancelled or the
	// connection fails. It returns nil on cancellation.
	Receive(ctx context.Context) error
	// Close releases the session and waits for Receive to return.
	Close(ctx context.Context) error
}

// Gateway opens sessions for bot tokens.
type Gateway interface {
	Connect(ctx context.Context, token string) (Session, error)
}
