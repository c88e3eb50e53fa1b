package bots

import (
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// ErrNotFound is returned when the configuration source has no bot with
// the requested id. It matches store.ErrNotFound under errors.Is.
var ErrNotFound = fmt.Errorf("bot %w", store.ErrNotFound)

// ErrDraining is returned by registry operations once the fleet has
// begun its final shutdown.
var ErrDraining = errors.New("fleet is shutting down")

// errRetired is returned by Start on an instance already removed from the
// registry.
var errRetired = errors.New("bot instance removed from registry")

// ConfigurationError reports a bot record that cannot be turned into an
// instance (bad token, unknown type).
type ConfigurationError struct {
	BotID  int64
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("bot %d: invalid configuration: %s", e.BotID, e.Reason)
}

// ConnectionError reports that the messaging gateway refused or failed to
// open a session for a bot.
type ConnectionError struct {
	BotID int64
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("bot %d: connect: %v", e.BotID, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
