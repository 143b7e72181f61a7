package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewInitDBCommand creates the init-db command.
func NewInitDBCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the database schema",
		Long: `Connect to the configured database, verify it answers, and create every
table that does not exist yet. Safe to run repeatedly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitDB(cmd, rootOpts)
		},
	}

	return cmd
}

func runInitDB(cmd *cobra.Command, opts *RootOptions) error {
	cfg, logger, err := opts.setup(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	manager, err := openManager(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer manager.Close() //nolint:errcheck

	ctx := cmd.Context()
	if err := manager.Ping(ctx); err != nil {
		return fmt.Errorf("init-db: database connection check failed: %w", err)
	}
	if err := manager.Migrate(ctx); err != nil {
		return fmt.Errorf("init-db: %w", err)
	}

	logger.Info("database tables created", "dialect", manager.Dialect(), "url", manager.Descriptor().Redacted())
	fmt.Fprintln(cmd.OutOrStdout(), "Database initialized")
	return nil
}
