package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/botfleet/internal/bots"
	"github.com/nextlevelbuilder/botfleet/internal/config"
	"github.com/nextlevelbuilder/botfleet/internal/store/pg"
	"github.com/nextlevelbuilder/botfleet/internal/upgrade"
)

func doctorCmd() *cobra.Command {
	var showConfig bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, database and bot records",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(showConfig)
		},
	}
	cmd.Flags().BoolVar(&showConfig, "show-config", false, "print the effective config with secrets masked")
	return cmd
}

func runDoctor(showConfig bool) {
	fmt.Println("botfleet doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	fmt.Printf("  Hash:     %s\n", cfg.Hash())
	if showConfig {
		data, _ := json.MarshalIndent(cfg.MaskedCopy(), "  ", "  ")
		fmt.Printf("  %s\n", data)
	}

	fmt.Println()
	fmt.Println("  Environment:")
	checkEnv("BOTFLEET_POSTGRES_DSN", cfg.Database.PostgresDSN != "")
	checkEnv("BOTFLEET_JWT_SECRET", cfg.HTTP.JWTSecret != "")
	checkEnv("BOTFLEET_OWNER_TELEGRAM_ID", cfg.Telegram.OwnerID != 0)
	if cfg.HTTP.Enabled {
		fmt.Printf("    %-28s %s:%d\n", "Admin API:", cfg.HTTP.Host, cfg.HTTP.Port)
	} else {
		fmt.Printf("    %-28s disabled\n", "Admin API:")
	}
	if cfg.State.Dir != "" {
		fmt.Printf("    %-28s %s\n", "State dir:", config.ExpandHome(cfg.State.Dir))
	} else {
		fmt.Printf("    %-28s in memory\n", "State dir:")
	}

	if cfg.Database.PostgresDSN == "" {
		fmt.Println()
		fmt.Println("Doctor check complete.")
		return
	}

	fmt.Println()
	fmt.Println("  Database:")
	db, err := pg.OpenDB(cfg.Database.PostgresDSN)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()
	fmt.Printf("    %-12s connected\n", "Status:")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := upgrade.CheckSchema(ctx, db)
	switch {
	case err != nil:
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
	case s.Compatible():
		fmt.Printf("    %-12s v%d (up to date)\n", "Schema:", s.CurrentVersion)
	default:
		fmt.Printf("    %-12s %s", "Schema:", upgrade.Describe(s))
	}
	if pending, err := upgrade.PendingHooks(ctx, db); err == nil {
		if len(pending) > 0 {
			fmt.Printf("    %-12s %d pending\n", "Data hooks:", len(pending))
		} else {
			fmt.Printf("    %-12s all applied\n", "Data hooks:")
		}
	}

	if s != nil && s.Compatible() {
		fmt.Println()
		fmt.Println("  Bots:")
		checkBotTokens(ctx, db)
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkEnv(name string, set bool) {
	status := "set"
	if !set {
		status = "NOT SET"
	}
	fmt.Printf("    %-28s %s\n", name+":", status)
}

// checkBotTokens validates the token shape of every active bot without
// contacting Telegram.
func checkBotTokens(ctx context.Context, db *sql.DB) {
	cfgs, err := pg.NewPGBotStore(db).ListActive(ctx)
	if err != nil {
		fmt.Printf("    (could not list bots: %s)\n", err)
		return
	}
	if len(cfgs) == 0 {
		fmt.Println("    (no active bots)")
		return
	}
	for _, b := range cfgs {
		status := "token OK"
		if !bots.ValidToken(b.Token) {
			status = "INVALID TOKEN FORMAT"
		}
		label := fmt.Sprintf("#%d %s (%s)", b.ID, b.Name, b.Type)
		fmt.Printf("    %-32s %s\n", label+":", status)
	}
}
