package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/botfleet/internal/bots"
	"github.com/nextlevelbuilder/botfleet/internal/legacy"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

func importSQLiteCmd() *cobra.Command {
	var (
		path string
		opts legacy.Options
		yes  bool
	)
	cmd := &cobra.Command{
		Use:   "import-sqlite",
		Short: "Import a single-bot SQLite store.db into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Token == "" {
				opts.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
			}
			if opts.PaymentSlug == "" {
				opts.PaymentSlug = os.Getenv("PAKASIR_PROJECT_SLUG")
			}
			if opts.PaymentAPIKey == "" {
				opts.PaymentAPIKey = os.Getenv("PAKASIR_API_KEY")
			}
			if err := promptImport(&opts, yes); err != nil {
				return err
			}

			src, err := legacy.Open(path)
			if err != nil {
				return err
			}
			defer src.Close()

			return withStores(func(ctx context.Context, stores *store.Stores) error {
				return runImport(ctx, legacy.NewImporter(src, stores), opts)
			})
		},
	}
	cmd.Flags().StringVar(&path, "db", "store.db", "path of the legacy SQLite database")
	cmd.Flags().StringVar(&opts.OwnerEmail, "owner", "", "dashboard e-mail that will own the bot")
	cmd.Flags().StringVar(&opts.Token, "token", "", "Telegram bot token (default $TELEGRAM_BOT_TOKEN)")
	cmd.Flags().StringVar(&opts.Username, "username", "", "bot username")
	cmd.Flags().StringVar(&opts.Name, "name", "", "bot display name")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not prompt; fail when required values are missing")
	return cmd
}

func promptImport(opts *legacy.Options, noPrompt bool) error {
	if opts.OwnerEmail != "" && bots.ValidToken(opts.Token) && opts.Name != "" {
		return nil
	}
	if noPrompt {
		return errors.New("--owner, --token and --name are required with --yes")
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("📧 Owner e-mail (dashboard login)").Value(&opts.OwnerEmail).
				Validate(func(s string) error {
					if !strings.Contains(s, "@") {
						return errors.New("enter an e-mail address")
					}
					return nil
				}),
			huh.NewInput().Title("🤖 Telegram bot token").EchoMode(huh.EchoModePassword).Value(&opts.Token).
				Validate(func(s string) error {
					if !bots.ValidToken(strings.TrimSpace(s)) {
						return errors.New("expected <digits>:<secret>")
					}
					return nil
				}),
			huh.NewInput().Title("🏷️ Bot username (without @)").Value(&opts.Username),
			huh.NewInput().Title("📝 Bot display name").Value(&opts.Name),
		),
	).Run()
}

func runImport(ctx context.Context, im *legacy.Importer, opts legacy.Options) error {
	opts.Token = strings.TrimSpace(opts.Token)
	sum, err := im.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if sum.CreatedOwner {
		fmt.Printf("✅ Created dashboard account %s\n", opts.OwnerEmail)
		fmt.Printf("⚠️ Default password: %s - please change it!\n", legacy.DefaultPassword)
	}
	if sum.CreatedBot {
		fmt.Printf("✅ Created bot #%d\n", sum.BotID)
	} else {
		fmt.Printf("✅ Found existing bot #%d\n", sum.BotID)
	}
	fmt.Println()
	fmt.Println("📊 Summary:")
	fmt.Printf("   • Categories: %d\n", sum.Categories)
	fmt.Printf("   • Products:   %d\n", sum.Products)
	fmt.Printf("   • Users:      %d\n", sum.Users)
	fmt.Printf("   • Orders:     %d (%d skipped)\n", sum.Orders, sum.SkippedOrders)
	return nil
}
