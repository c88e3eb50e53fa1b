package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/botfleet/internal/bots"
	"github.com/nextlevelbuilder/botfleet/internal/bots/custom"
	"github.com/nextlevelbuilder/botfleet/internal/bots/points"
	"github.com/nextlevelbuilder/botfleet/internal/bots/shop"
	"github.com/nextlevelbuilder/botfleet/internal/bots/verification"
	"github.com/nextlevelbuilder/botfleet/internal/broadcast"
	"github.com/nextlevelbuilder/botfleet/internal/config"
	"github.com/nextlevelbuilder/botfleet/internal/convstate"
	"github.com/nextlevelbuilder/botfleet/internal/fleet"
	httpapi "github.com/nextlevelbuilder/botfleet/internal/http"
	"github.com/nextlevelbuilder/botfleet/internal/logging"
	"github.com/nextlevelbuilder/botfleet/internal/messaging/telegram"
	"github.com/nextlevelbuilder/botfleet/internal/payment"
	"github.com/nextlevelbuilder/botfleet/internal/store"
	"github.com/nextlevelbuilder/botfleet/internal/tracing"
	"github.com/nextlevelbuilder/botfleet/internal/upgrade"
)

// variants lists every bot type this binary can run.
func variants() *bots.Variants {
	return bots.NewVariants(custom.Variant{}, shop.Variant{}, verification.Variant{}, points.Variant{})
}

func paymentFactory(cfg config.PaymentConfig) bots.PaymentFactory {
	opts := []payment.Option{payment.WithRetries(cfg.Retries)}
	if cfg.TimeoutSec > 0 {
		opts = append(opts, payment.WithTimeout(time.Duration(cfg.TimeoutSec)*time.Second))
	}
	return func(bot store.BotConfig) payment.Provider {
		return payment.New(cfg.BaseURL, bot.PaymentSlug, bot.PaymentAPIKey, opts...)
	}
}

func openState(cfg config.StateConfig) (convstate.Store, error) {
	if cfg.Dir == "" {
		return convstate.NewMemory(cfg.TTL()), nil
	}
	st, err := convstate.OpenBadger(config.ExpandHome(cfg.Dir), cfg.TTL())
	if err != nil {
		return nil, fmt.Errorf("open state dir: %w", err)
	}
	return st, nil
}

func runFleet() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logCloser, err := logging.Setup(cfg.Log, verbose)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	stores, db, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	schema, err := upgrade.CheckSchema(ctx, db)
	if err != nil {
		return err
	}
	if err := schema.Err(); err != nil {
		fmt.Fprint(os.Stderr, upgrade.Describe(schema))
		return err
	}
	if n, err := upgrade.RunPendingHooks(ctx, db, schema.CurrentVersion); err != nil {
		return err
	} else if n > 0 {
		slog.Info("data hooks applied", "count", n)
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("tracing shutdown", "error", err)
		}
	}()

	if cfg.HTTP.Enabled && cfg.HTTP.JWTSecret == "" {
		return fmt.Errorf("BOTFLEET_JWT_SECRET must be set when the admin API is enabled")
	}
	gateway, err := telegram.NewGateway(cfg.Telegram)
	if err != nil {
		return err
	}
	state, err := openState(cfg.State)
	if err != nil {
		return err
	}
	defer state.Close()

	pacer := broadcast.NewPacer(cfg.Broadcast.Interval())
	env := bots.BotEnv{
		Stores:   stores,
		OwnerID:  cfg.Telegram.OwnerID,
		Payments: paymentFactory(cfg.Payment),
		State:    state,
		Pacer:    pacer,
	}
	if cfg.HTTP.Enabled && len(cfg.HTTP.AdminEmails) == 0 {
		slog.Warn("BOTFLEET_ADMIN_EMAILS is not set; fleet sync and shutdown endpoints are disabled")
	}
	if env.OwnerID == 0 {
		slog.Warn("BOTFLEET_OWNER_TELEGRAM_ID is not set; bot admin commands are disabled")
	}
	manager := bots.NewManager(stores.Bots, gateway, variants(), env,
		bots.WithStartTimeout(cfg.Fleet.StartTimeout()),
		bots.WithStopTimeout(cfg.Fleet.StopTimeout()),
		bots.WithMaxParallel(cfg.Fleet.MaxParallelStarts),
	)
	supervisor := bots.NewSupervisor(manager, os.Stdout, cfg.Fleet.ShouldExitWhenEmpty())

	scheduler, err := fleet.NewScheduler(
		fleet.Job{Name: "fleet-sync", Schedule: cfg.Fleet.SyncSchedule, Run: func(ctx context.Context) error {
			_, err := manager.Sync(ctx)
			return err
		}},
		fleet.Job{Name: "expire-orders", Schedule: cfg.Fleet.ExpireSchedule, Run: func(ctx context.Context) error {
			n, err := stores.Orders.ExpirePending(ctx, time.Now())
			if n > 0 {
				slog.Info("expired pending orders", "count", n)
			}
			return err
		}},
	)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		defer stop()
		return supervisor.Run(runCtx)
	})
	g.Go(func() error {
		scheduler.Run(runCtx)
		return nil
	})
	if cfg.HTTP.Enabled {
		api := httpapi.NewServer(cfg.HTTP, cfg.Broadcast.MaxLength, httpapi.Deps{
			Stores:   stores,
			Manager:  manager,
			Pacer:    pacer,
			Shutdown: supervisor.Shutdown,
			Version:  Version,
		})
		g.Go(func() error { return api.Run(runCtx) })
	}
	return g.Wait()
}
