package pg

import (
	"database/sql"
	"fmt"

	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// NewPGStores opens the database and creates all stores backed by Postgres.
// The returned *sql.DB is owned by the caller.
func NewPGStores(cfg store.StoreConfig) (*store.Stores, *sql.DB, error) {
	db, err := OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewStores(db), db, nil
}

// NewStores wires every store to an already opened database.
func NewStores(db *sql.DB) *store.Stores {
	return &store.Stores{
		Bots:          NewPGBotStore(db),
		Users:         NewPGUserStore(db),
		BotUsers:      NewPGBotUserStore(db),
		Catalog:       NewPGCatalogStore(db),
		Orders:        NewPGOrderStore(db),
		Broadcasts:    NewPGBroadcastStore(db),
		Verifications: NewPGVerificationStore(db),
		Points:        NewPGPointsStore(db),
	}
}
