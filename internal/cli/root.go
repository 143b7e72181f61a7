// Package cli wires configuration, logging and the session manager into the
// mindfulweb commands.
package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mindfulweb/internal/adapter/sqldb"
	"mindfulweb/internal/config"
	"mindfulweb/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath  string
	DatabaseURL string

	// Getenv reads the environment; os.Getenv when nil.
	Getenv func(string) string
}

// NewRootCommand creates the root command for the mindfulweb CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mindfulweb",
		Short:         "Attention event backend",
		Long:          "Records per-user web-attention events (domain focus and blur) in a SQL database.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", "", "database connection string (overrides config and DATABASE_URL)")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewInitDBCommand(opts))

	return cmd
}

// setup loads the configuration and builds the logger shared by a command run.
func (o *RootOptions) setup(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	getenv := o.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg, err := config.Load(o.ConfigPath, getenv)
	if err != nil {
		return nil, nil, err
	}
	if o.DatabaseURL != "" {
		cfg.Database.URL = o.DatabaseURL
	}
	logger, err := logging.New(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openManager builds the session manager from the database section.
func openManager(db config.DatabaseConfig, logger *slog.Logger, extra ...sqldb.Option) (*sqldb.Manager, error) {
	opts := []sqldb.Option{
		sqldb.WithExtraSchemes(db.ExtraSchemes...),
		sqldb.WithPool(db.MaxOpenConns, db.MaxIdleConns, db.ConnMaxLifetime),
		sqldb.WithPingTimeout(db.PingTimeout),
	}
	return sqldb.New(logger.With("component", "sqldb"), db.URL, append(opts, extra...)...)
}
