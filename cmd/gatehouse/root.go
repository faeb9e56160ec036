package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/xdg"
)

// configFile is the --config value, shared by every subcommand.
var configFile string

// NewRootCmd creates the root command for the gatehouse CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatehouse",
		Short: "Gatehouse - email and password authentication",
		Long: `Gatehouse manages accounts with argon2id password hashes, opaque
bearer sessions, and sliding-window rate limiting on login attempts.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file path (default: $XDG_CONFIG_HOME/gatehouse/gatehouse.yaml)")

	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewSweepCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// resolveConfigPath returns the config file to load. An explicit --config
// always wins; otherwise the default XDG path is used when it exists.
func resolveConfigPath() string {
	if configFile != "" {
		return configFile
	}
	if path := xdg.ConfigFile(); fileExists(path) {
		return path
	}
	return ""
}

// loadConfig resolves configuration for a command from the config file and
// its flags. Flags registered via registerConfigFlags carry defaults from
// config.Default(), so an unchanged flag never masks a file setting.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(resolveConfigPath(), cmd.Flags())
}

// registerConfigFlags declares flags mirroring config paths. config.Load
// layers explicitly set flags over the config file.
func registerConfigFlags(fs *pflag.FlagSet) {
	def := config.Default()
	fs.String("database.url", def.Database.URL, "PostgreSQL connection URL")
	fs.String("log.format", def.Log.Format, "log format (json or text)")
	fs.String("log.level", def.Log.Level, "log level (debug, info, warn, or error)")
	fs.Duration("session.idle-ttl", def.Session.IdleTTL, "how long a session survives without activity")
	fs.Duration("session.sweep-interval", def.Session.SweepInterval, "how often expired sessions are deleted")
	fs.Bool("redis.enabled", def.Redis.Enabled, "track rate limits in Redis instead of process memory")
	fs.String("redis.addr", def.Redis.Addr, "Redis address")
	fs.Bool("metrics.enabled", def.Metrics.Enabled, "expose Prometheus metrics and health probes")
	fs.String("metrics.addr", def.Metrics.Addr, "metrics/health HTTP listen address")
}

// fileExists returns true if the file exists, false otherwise.
// Permission errors are treated as "file exists" to avoid misreporting
// files we cannot stat.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !os.IsNotExist(err)
}
