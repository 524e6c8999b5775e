package commands

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nonibytes/jobboard/internal/cliopt"
	"github.com/nonibytes/jobboard/internal/cliutil"
	"github.com/nonibytes/jobboard/pkg/jobboard"
	"github.com/nonibytes/jobboard/pkg/jobboard/mutate"
)

func NewUpsertCmd(g *cliopt.GlobalOptions) *cobra.Command {
	var sets []string
	var onConflict string
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "upsert <table>",
		Short: "Write rows, pruning columns the table doesn't have",
		Long: `Write one row from --set key=value pairs, or one row per JSON line on
stdin with --json. Columns the backend rejects are dropped from the payload
and the write is retried.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := args[0]
			var payloads []map[string]any
			if fromStdin {
				var err error
				if payloads, err = readJSONLines(cmd.InOrStdin()); err != nil {
					return err
				}
			} else {
				p, err := cliutil.ParseSets(sets)
				if err != nil {
					return err
				}
				payloads = append(payloads, p)
			}
			if len(payloads) == 0 {
				return errors.New("nothing to write: use --set or --json")
			}

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
			format := cliutil.ParseOutputFormat(g.Format)
			failed := 0
			for _, p := range payloads {
				res, err := client.Save(ctx, mutate.Request{Table: table, Payload: p, OnConflict: onConflict})
				if err != nil {
					return err
				}
				if format == cliutil.FormatJSON {
					cliutil.PrintJSON(out, res)
				} else {
					printSave(out, res)
				}
				if res.Error != nil && res.Pending == nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d writes failed", failed, len(payloads))
			}
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringArrayVar(&sets, "set", nil, "column=value (repeatable, JSON values allowed)")
	fs.StringVar(&onConflict, "on-conflict", "", "upsert on this column instead of inserting")
	fs.BoolVar(&fromStdin, "json", false, "read one JSON object per line from stdin")
	return cmd
}

func readJSONLines(r io.Reader) ([]map[string]any, error) {
	var out []map[string]any
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var p map[string]any
		if err := json.Unmarshal([]byte(text), &p); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, p)
	}
	return out, sc.Err()
}

func printSave(w io.Writer, res jobboard.SaveResult) {
	switch {
	case res.Pending != nil:
		fmt.Fprintf(w, "queued %s (%s)\n", res.Pending.ID, res.Error.Msg)
	case res.Error != nil:
		fmt.Fprintf(w, "failed: %s\n", res.Error)
	default:
		fmt.Fprintf(w, "ok after %d attempt(s)", res.Attempts)
		if len(res.Removed) > 0 {
			fmt.Fprintf(w, ", dropped %s", strings.Join(res.Removed, ","))
		}
		fmt.Fprintln(w)
	}
}
