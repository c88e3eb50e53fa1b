package store

// StoreConfig configures the Postgres-backed stores.
type StoreConfig struct {
	PostgresDSN string
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Bots          BotStore
	Users         UserStore
	BotUsers      BotUserStore
	Catalog       CatalogStore
	Orders        OrderStore
	Broadcasts    BroadcastStore
	Verifications VerificationStore
	Points        PointsStore
}
