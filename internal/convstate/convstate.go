// Package convstate keeps the per-user conversation state of multi-step
// bot dialogs (add product, verification form) between updates.
package convstate

import (
	"context"
	"strconv"
)

// Store saves one JSON-encodable value per key. Entries expire after the
// store's TTL so abandoned dialogs do not linger.
type Store interface {
	// Get decodes the value into dst and reports whether the key existed.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Put(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key scopes a conversation to one user of one bot.
func Key(botID, userID int64) string {
	return "conv/" + strconv.FormatInt(botID, 10) + "/" + strconv.FormatInt(userID, 10)
}
