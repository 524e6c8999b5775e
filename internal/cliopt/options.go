package cliopt

import (
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/nonibytes/jobboard/internal/config"
)

// GlobalOptions are resolved once at the CLI root and passed to subcommands.
//
// NOTE: This is a separate package to avoid import cycles between the root
// command and per-command code.
type GlobalOptions struct {
	ConfigFile string
	EnvFile    string
	Format     string

	// Config and Logger are filled in before any subcommand runs.
	Config config.Config
	Logger *slog.Logger
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{Format: "pretty"}
}

func BindGlobalFlags(fs *pflag.FlagSet, g *GlobalOptions) {
	fs.StringVar(&g.ConfigFile, "config", g.ConfigFile, "config file (default ./jobboard.yaml)")
	fs.StringVar(&g.EnvFile, "env-file", g.EnvFile, "dotenv file loaded before reading the environment (default ./.env)")
	fs.StringVarP(&g.Format, "format", "o", g.Format, "output format: pretty|json")
	config.BindFlags(fs)
}
