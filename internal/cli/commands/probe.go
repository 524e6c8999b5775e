package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nonibytes/jobboard/internal/cliopt"
	"github.com/nonibytes/jobboard/internal/cliutil"
	"github.com/nonibytes/jobboard/pkg/jobboard"
	"github.com/nonibytes/jobboard/pkg/jobboard/metadata"
	"github.com/nonibytes/jobboard/pkg/jobboard/query"
)

type probeOutput struct {
	Metadata metadata.TableMetadata `json:"metadata"`
	// Columns is set with --resolve.
	Columns map[string]string `json:"columns,omitempty"`
	Error   *jobboard.Error   `json:"resolveError,omitempty"`
}

func NewProbeCmd(g *cliopt.GlobalOptions) *cobra.Command {
	var resolve bool
	cmd := &cobra.Command{
		Use:   "probe <table>...",
		Short: "Check which tables and columns the backend exposes",
		Args:  cobra.MinimumNArgs(1),
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

			out := cmd.OutOrStdout()
			var results []probeOutput
			for _, table := range args {
				md, err := client.Probe(ctx, table)
				if err != nil {
					return err
				}
				po := probeOutput{Metadata: md}
				if resolve {
					res, err := client.Fetch(ctx, table, query.Request{Page: 1, PageSize: 1})
					if err != nil {
						return err
					}
					po.Columns = res.Columns
					po.Error = res.Error
				}
				results = append(results, po)
			}

			if cliutil.ParseOutputFormat(g.Format) == cliutil.FormatJSON {
				cliutil.PrintJSON(out, results)
				return nil
			}
			for _, po := range results {
				md := po.Metadata
				fmt.Fprintf(out, "%s: exists=%s", md.Table, md.Exists)
				if len(md.Columns) > 0 {
					fmt.Fprintf(out, " columns=%s", strings.Join(md.Columns, ","))
				}
				if md.Err != nil {
					fmt.Fprintf(out, " (%s)", md.Err)
				}
				fmt.Fprintln(out)
				if resolve {
					keys := make([]string, 0, len(po.Columns))
					for k := range po.Columns {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					for _, k := range keys {
						fmt.Fprintf(out, "  %-20s -> %s\n", k, po.Columns[k])
					}
					if po.Error != nil {
						fmt.Fprintf(out, "  resolve: %s\n", po.Error)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&resolve, "resolve", false, "run a one-row read and print the resolved column map")
	return cmd
}
