// Command athanctl scrapes prayer times and inspects alerts from a shell.
//
// Usage:
//
//	athanctl scrape
//	athanctl scrape --persist
//	athanctl next
//	athanctl migrate
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Nixie-Tech-LLC/athan/internal/alert"
	"github.com/Nixie-Tech-LLC/athan/internal/clock"
	"github.com/Nixie-Tech-LLC/athan/internal/config"
	"github.com/Nixie-Tech-LLC/athan/internal/db"
	"github.com/Nixie-Tech-LLC/athan/internal/model"
	"github.com/Nixie-Tech-LLC/athan/internal/refresh"
	"github.com/Nixie-Tech-LLC/athan/internal/scraper"
)

func main() {
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "athanctl",
		Short:         "Prayer times maintenance CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(scrapeCmd())
	root.AddCommand(nextCmd())
	root.AddCommand(migrateCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// runWithConfig loads configuration and runs fn until it returns or the
// process is interrupted.
func runWithConfig(fn func(ctx context.Context, cfg *config.Config) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	config.SetupLogging(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	return fn(ctx, cfg)
}

func newScraper(cfg *config.Config, clk clock.Clock) *scraper.Scraper {
	return scraper.New(scraper.NewHTTPFetcher(cfg.ScrapeTimeout), scraper.Config{
		URL:      cfg.ScrapeURL,
		Location: cfg.Location,
		TimeZone: cfg.TimeZone,
	}).WithClock(clk.Now)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func scrapeCmd() *cobra.Command {
	var persist bool
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape today's prayer times and print them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithConfig(func(ctx context.Context, cfg *config.Config) error {
				clk := clock.New(cfg.TimeZone)
				sc := newScraper(cfg, clk)

				if !persist {
					res := sc.Scrape(ctx)
					if res.Err != nil {
						log.Warn().Err(res.Err).Msg("fetch failed, printing fallback times")
					}
					return printJSON(res.Record)
				}

				if cfg.DatabaseURL == "" {
					return errors.New("--persist requires DATABASE_URL")
				}
				store, err := db.Open(cfg.DatabaseURL, cfg.MigrationsPath)
				if err != nil {
					return err
				}
				defer db.Close()

				record, err := refresh.New(sc, store, refresh.WithClock(clk)).RunOnce(ctx)
				if err != nil {
					return err
				}
				return printJSON(record)
			})
		},
	}
	cmd.Flags().BoolVar(&persist, "persist", false, "Store the scraped record in the database")
	return cmd
}

func nextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Show the next prayer and the next enabled alert",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithConfig(func(ctx context.Context, cfg *config.Config) error {
				clk := clock.New(cfg.TimeZone)
				now := clk.Now()

				store, err := db.Open(cfg.DatabaseURL, cfg.MigrationsPath)
				if err != nil {
					return err
				}
				defer db.Close()

				record, err := store.GetRecordByDate(ctx, model.DateOf(now))
				if errors.Is(err, db.ErrNotFound) {
					record = newScraper(cfg, clk).ScrapePrayerTimes(ctx)
				} else if err != nil {
					return err
				}
				settings, err := store.GetSettings(ctx, model.DefaultUserID)
				if err != nil {
					return err
				}

				if up, ok := model.UpcomingForDisplay(record, now); ok {
					when := "today"
					if up.Tomorrow {
						when = "tomorrow"
					}
					fmt.Printf("next prayer: %s %s at %s, %s\n", up.Name, when, up.FormattedTime, up.Countdown)
				}
				if a, ok := alert.NextAlert(record, settings, now); ok {
					fmt.Printf("next alert:  %s at %s, in %d min\n", a.Name, a.Time, a.Minutes)
				} else {
					fmt.Println("next alert:  none today")
				}
				return nil
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithConfig(func(ctx context.Context, cfg *config.Config) error {
				if cfg.DatabaseURL == "" {
					return errors.New("DATABASE_URL is required")
				}
				if err := db.Init(cfg.DatabaseURL); err != nil {
					return err
				}
				defer db.Close()
				if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
					return err
				}
				log.Info().Str("path", cfg.MigrationsPath).Msg("migrations applied")
				return nil
			})
		},
	}
}
