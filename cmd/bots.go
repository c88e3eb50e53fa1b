package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/botfleet/internal/bots"
	"github.com/nextlevelbuilder/botfleet/internal/format"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

const nameWidth = 24

func botsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bots",
		Short: "Manage bot records",
	}
	cmd.AddCommand(botsListCmd())
	cmd.AddCommand(botsAddCmd())
	cmd.AddCommand(botsSetActiveCmd("enable", true))
	cmd.AddCommand(botsSetActiveCmd("disable", false))
	return cmd
}

// withStores loads config, opens the database and runs fn.
func withStores(fn func(ctx context.Context, stores *store.Stores) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stores, db, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(context.Background(), stores)
}

func botsListCmd() *cobra.Command {
	var all bool
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(func(ctx context.Context, stores *store.Stores) error {
				var (
					list []store.BotConfig
					err  error
				)
				switch {
				case owner != "":
					u, uerr := stores.Users.GetByEmail(ctx, strings.ToLower(owner))
					if uerr != nil {
						return fmt.Errorf("owner %s: %w", owner, uerr)
					}
					list, err = stores.Bots.ListByOwner(ctx, u.ID)
				default:
					list, err = stores.Bots.ListActive(ctx)
				}
				if err != nil {
					return err
				}
				if !all && owner != "" {
					list = activeOnly(list)
				}
				renderBots(list)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only bots of this dashboard account (e-mail)")
	cmd.Flags().BoolVar(&all, "all", false, "with --owner, include inactive bots")
	return cmd
}

func activeOnly(list []store.BotConfig) []store.BotConfig {
	out := list[:0]
	for _, b := range list {
		if b.IsActive {
			out = append(out, b)
		}
	}
	return out
}

func renderBots(list []store.BotConfig) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Username", "Type", "Active", "Payment"})
	for _, b := range list {
		payment := "-"
		if b.PaymentConfigured() {
			payment = "✓"
		}
		username := ""
		if b.Username != "" {
			username = "@" + b.Username
		}
		t.AppendRow(table.Row{b.ID, format.Truncate(b.Name, nameWidth), username, b.Type, b.IsActive, payment})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d bot(s)", len(list))})
	t.Render()
}

type botForm struct {
	owner, name, username, kind, token, slug, apiKey string
}

func (f *botForm) complete() bool {
	return f.owner != "" && f.name != "" && f.token != ""
}

// prompt asks for whatever the flags left empty.
func (f *botForm) prompt() error {
	if f.kind == "" {
		f.kind = store.BotTypeStore
	}
	required := func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New("required")
		}
		return nil
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Owner e-mail").Value(&f.owner).Validate(required),
			huh.NewInput().Title("Bot name").Value(&f.name).Validate(required),
			huh.NewInput().Title("Bot username (without @)").Value(&f.username),
			huh.NewSelect[string]().Title("Bot type").Options(huh.NewOptions(store.BotTypes...)...).Value(&f.kind),
			huh.NewInput().Title("Telegram token").EchoMode(huh.EchoModePassword).Value(&f.token).
				Validate(func(s string) error {
					if !bots.ValidToken(strings.TrimSpace(s)) {
						return errors.New("expected <digits>:<secret>")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().Title("Pakasir project slug (optional)").Value(&f.slug),
			huh.NewInput().Title("Pakasir API key (optional)").EchoMode(huh.EchoModePassword).Value(&f.apiKey),
		),
	)
	return form.Run()
}

func botsAddCmd() *cobra.Command {
	var f botForm
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a bot (prompts for missing fields)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !f.complete() {
				if err := f.prompt(); err != nil {
					return err
				}
			}
			if f.kind == "" {
				f.kind = store.BotTypeStore
			}
			token := strings.TrimSpace(f.token)
			if !bots.ValidToken(token) {
				return errors.New("invalid bot token")
			}
			if !store.ValidBotType(f.kind) {
				return fmt.Errorf("unknown bot type %q (one of %s)", f.kind, strings.Join(store.BotTypes, ", "))
			}

			return withStores(func(ctx context.Context, stores *store.Stores) error {
				u, err := stores.Users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(f.owner)))
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no dashboard account for %s; register it through the admin API first", f.owner)
				}
				if err != nil {
					return err
				}
				b := &store.BotConfig{
					OwnerID:       u.ID,
					Name:          strings.TrimSpace(f.name),
					Username:      strings.TrimPrefix(strings.TrimSpace(f.username), "@"),
					Type:          f.kind,
					Token:         token,
					PaymentSlug:   strings.TrimSpace(f.slug),
					PaymentAPIKey: strings.TrimSpace(f.apiKey),
					IsActive:      true,
				}
				if err := stores.Bots.Create(ctx, b); err != nil {
					if errors.Is(err, store.ErrDuplicate) {
						return errors.New("bot token already registered")
					}
					return err
				}
				fmt.Printf("✅ Bot #%d %q added. A running fleet picks it up at the next sync.\n", b.ID, b.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.owner, "owner", "", "owner dashboard e-mail")
	cmd.Flags().StringVar(&f.name, "name", "", "bot display name")
	cmd.Flags().StringVar(&f.username, "username", "", "bot username")
	cmd.Flags().StringVar(&f.kind, "type", "", "bot type: "+strings.Join(store.BotTypes, ", "))
	cmd.Flags().StringVar(&f.token, "token", "", "Telegram bot token")
	cmd.Flags().StringVar(&f.slug, "payment-slug", "", "Pakasir project slug")
	cmd.Flags().StringVar(&f.apiKey, "payment-key", "", "Pakasir API key")
	return cmd
}

func botsSetActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			return withStores(func(ctx context.Context, stores *store.Stores) error {
				if err := stores.Bots.SetActive(ctx, id, active); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("bot %d not found", id)
					}
					return err
				}
				fmt.Printf("Bot #%d %sd.\n", id, use)
				return nil
			})
		},
	}
}
