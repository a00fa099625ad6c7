package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nurpe/skillspot-settlement/internal/config"
	"github.com/nurpe/skillspot-settlement/internal/db"
	"github.com/nurpe/skillspot-settlement/internal/logger"
	"github.com/nurpe/skillspot-settlement/internal/notify"
	"github.com/nurpe/skillspot-settlement/internal/repository"
)

var Version = "dev"

// app holds what every subcommand needs once the config is loaded.
type app struct {
	cfg *config.Config
	log zerolog.Logger
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "settlementctl",
		Short:         "Operator tooling for the settlement service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			a.log = logger.New(cfg.Environment)
			return nil
		},
	}

	rootCmd.AddCommand(migrateCmd(a))
	rootCmd.AddCommand(replayCmd(a))
	rootCmd.AddCommand(exportCmd(a))
	rootCmd.AddCommand(tokenCmd(a))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) store() (*repository.Store, error) {
	database, err := db.New(a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	return repository.NewStore(database), nil
}

func (a *app) notifier() notify.Notifier {
	if a.cfg.Notify.WebhookURL != "" {
		return notify.NewWebhookNotifier(a.cfg.Notify.WebhookURL, a.log)
	}
	return notify.NewLogNotifier(a.log)
}
