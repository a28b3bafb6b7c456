package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for authctl.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "authctl",
		Short: "authctl - operate an authcore deployment",
		Long: `authctl loads an authcore configuration, connects to the configured
backend and runs registration, login, refresh, logout and password reset
operations. Results are printed as JSON.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file path (yaml)")
	flags.String("backend.kind", "memory", "store backend: postgres, redis or memory")
	flags.String("backend.dsn", "", "postgres connection string")
	flags.String("backend.redis_addr", "localhost:6379", "redis address")
	flags.String("backend.redis_prefix", "authcore", "redis key prefix")
	flags.String("log.level", "info", "log level: debug, info, warn, error")
	flags.String("log.format", "text", "log format: json or text")
	opts.flags = flags

	cmd.AddCommand(NewMigrateCmd(opts))
	cmd.AddCommand(NewConfigCmd(opts))
	cmd.AddCommand(NewRegisterCmd(opts))
	cmd.AddCommand(NewLoginCmd(opts))
	cmd.AddCommand(NewRefreshCmd(opts))
	cmd.AddCommand(NewLogoutCmd(opts))
	cmd.AddCommand(NewSessionsCmd(opts))
	cmd.AddCommand(NewResetCmd(opts))

	return cmd
}
