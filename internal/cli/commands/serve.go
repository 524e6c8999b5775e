package commands

import (
	"github.com/spf13/cobra"

	"github.com/nonibytes/jobboard/internal/cliopt"
	"github.com/nonibytes/jobboard/internal/cliutil"
	"github.com/nonibytes/jobboard/internal/config"
	"github.com/nonibytes/jobboard/internal/httpapi"
	"github.com/nonibytes/jobboard/pkg/jobboard"
)

func NewServeCmd(g *cliopt.GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API used by the web front end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cliutil.SignalContext(cmd.Context())
			defer cancel()
			opts := jobboard.OpenOptionsFromCLI(*g)
			opts.Logger = g.Logger
			client, err := jobboard.Open(ctx, opts)
			if err != nil {
				return err
			}
			defer client.Close()

			srv := httpapi.New(client, httpapi.Options{
				Addr:        g.Config.HTTP.Addr,
				CORSOrigins: g.Config.HTTP.CORSOrigins,
				Logger:      g.Logger,
			})
			return srv.ListenAndServe(ctx)
		},
	}
	config.BindServeFlags(cmd.Flags())
	return cmd
}
