package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/instructoria/internal/config"
	"github.com/abhisek/instructoria/internal/logger"
	"github.com/abhisek/instructoria/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "instructoria",
	Short:         "AI instructor that advances students once they show understanding",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (overrides INSTRUCTORIA_CONFIG env var)")
	rootCmd.PersistentFlags().String("db", "", "Database DSN or SQLite file path (overrides INSTRUCTORIA_DB env var)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(lessonCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file named by --config and applies --db.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dsn, _ := cmd.Flags().GetString("db"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	return cfg, nil
}

// openStore opens the configured database. SQLite without a DSN uses the
// default data path.
func openStore(cfg *config.Config) (*store.Store, error) {
	dsn := cfg.Database.DSN
	if cfg.Database.Driver == "sqlite" {
		var err error
		if dsn == "" {
			dsn, err = store.DefaultDBPath()
		} else {
			err = store.EnsureDir(dsn)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
	}
	st, err := store.Open(store.Config{Driver: cfg.Database.Driver, DSN: dsn, Debug: cfg.Database.Debug})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// setup loads configuration and opens the store for one-shot commands.
func setup(cmd *cobra.Command) (*config.Config, *store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.New(cfg.Logging.Mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}
