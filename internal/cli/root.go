package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nonibytes/jobboard/internal/cli/commands"
	"github.com/nonibytes/jobboard/internal/cliopt"
	"github.com/nonibytes/jobboard/internal/config"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// NewRootCmd builds the command tree around g. Config and logger are loaded
// before any subcommand runs.
func NewRootCmd(g *cliopt.GlobalOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "jobboard",
		Short:         "Schema-adaptive access to the job board's jobs and companies",
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.LoadOptions{
				File:    g.ConfigFile,
				EnvFile: g.EnvFile,
				Flags:   cmd.Flags(),
			})
			if err != nil {
				return usageError{err}
			}
			g.Config = cfg
			g.Logger = config.NewLogger(cfg.Log, os.Stderr)
			return nil
		},
	}
	cliopt.BindGlobalFlags(root.PersistentFlags(), g)

	root.AddCommand(
		commands.NewJobsCmd(g),
		commands.NewCompaniesCmd(g),
		commands.NewProbeCmd(g),
		commands.NewUpsertCmd(g),
		commands.NewServeCmd(g),
	)
	return root
}

type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

// Execute runs the CLI and returns an exit code.
func Execute(argv []string) int {
	g := cliopt.DefaultGlobalOptions()
	root := NewRootCmd(&g)
	root.SetArgs(argv)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ue usageError
		if errors.As(err, &ue) {
			return exitUsage
		}
		return exitError
	}
	return exitOK
}
