package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nonibytes/jobboard/internal/cliopt"
	"github.com/nonibytes/jobboard/internal/cliutil"
	"github.com/nonibytes/jobboard/pkg/jobboard"
	"github.com/nonibytes/jobboard/pkg/jobboard/paging"
	"github.com/nonibytes/jobboard/pkg/jobboard/query"
	"github.com/nonibytes/jobboard/pkg/jobboard/schema"
)

type listFlags struct {
	page       int
	pageSize   int
	search     string
	locations  []string
	categories []string
	all        bool
	maxPages   int
}

func (f *listFlags) filters() (query.Filters, error) {
	cats, err := cliutil.ParseCategories(f.categories)
	if err != nil {
		return query.Filters{}, err
	}
	return query.Filters{SearchTerm: f.search, Locations: f.locations, Categories: cats}.Clean(), nil
}

func NewJobsCmd(g *cliopt.GlobalOptions) *cobra.Command {
	return newListCmd(g, schema.JobsTable, "List job postings",
		[]string{"id", "title", "company_name", "location", "work_arrangement", "posted_ago"})
}

func NewCompaniesCmd(g *cliopt.GlobalOptions) *cobra.Command {
	return newListCmd(g, schema.CompaniesTable, "List companies",
		[]string{"id", "name", "industry", "location", "size", "open_positions"})
}

func newListCmd(g *cliopt.GlobalOptions, table, short string, columns []string) *cobra.Command {
	var f listFlags
	cmd := &cobra.Command{
		Use:   table,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := f.filters()
			if err != nil {
				return err
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
			start := time.Now()
			if f.all {
				view, err := loadAll(ctx, client, table, filters, f.pageSize, f.maxPages)
				if err != nil {
					return err
				}
				printView(out, format, view, columns, time.Since(start))
				return nil
			}
			res, err := client.Fetch(ctx, table, query.Request{Filters: filters, Page: f.page, PageSize: f.pageSize})
			if err != nil {
				return err
			}
			printResult(out, format, res, columns, time.Since(start))
			return nil
		},
	}
	fs := cmd.Flags()
	fs.IntVar(&f.page, "page", 1, "page number (1-based)")
	fs.IntVar(&f.pageSize, "limit", jobboard.DefaultPageSize, "rows per page")
	fs.StringVarP(&f.search, "search", "q", "", "free-text search term")
	fs.StringArrayVar(&f.locations, "location", nil, "location filter (repeatable)")
	fs.StringArrayVar(&f.categories, "category", nil, "category filter key=v1,v2 (repeatable)")
	fs.BoolVar(&f.all, "all", false, "page through every result")
	fs.IntVar(&f.maxPages, "max-pages", 50, "page limit for --all")
	return cmd
}

// loadAll walks a paging session until the backend reports no more rows.
func loadAll(ctx context.Context, c *jobboard.Client, table string, filters query.Filters, pageSize, maxPages int) (paging.View, error) {
	s, err := c.NewSession(table, paging.Options{PageSize: pageSize, Filters: filters})
	if err != nil {
		return paging.View{}, err
	}
	view, err := s.Load(ctx)
	for n := 1; err == nil && view.HasMore && n < maxPages; n++ {
		view, err = s.LoadMore(ctx)
	}
	return view, err
}

func printResult(w io.Writer, format cliutil.OutputFormat, res *query.Result, columns []string, elapsed time.Duration) {
	if format == cliutil.FormatJSON {
		cliutil.PrintJSON(w, res)
		return
	}
	cliutil.PrintRecords(w, res.Records, columns)
	footer := fmt.Sprintf("\npage %d, %d rows", res.Page, len(res.Records))
	if res.TotalCount != nil {
		footer += fmt.Sprintf(" of %d", *res.TotalCount)
	}
	if res.HasMore {
		footer += ", more available"
	}
	if res.FallbackUsed {
		footer += ", static data"
	}
	fmt.Fprintf(w, "%s (%s)\n", footer, elapsed.Round(time.Millisecond))
	if res.Error != nil {
		fmt.Fprintln(os.Stderr, "warning:", res.Error)
	}
}

func printView(w io.Writer, format cliutil.OutputFormat, v paging.View, columns []string, elapsed time.Duration) {
	if format == cliutil.FormatJSON {
		cliutil.PrintJSON(w, v)
		return
	}
	cliutil.PrintRecords(w, v.Records, columns)
	footer := fmt.Sprintf("\n%d rows over %d pages", len(v.Records), v.Page)
	if v.HasMore {
		footer += ", more available"
	}
	if v.FallbackUsed {
		footer += ", static data"
	}
	fmt.Fprintf(w, "%s (%s)\n", footer, elapsed.Round(time.Millisecond))
	if v.Error != nil {
		fmt.Fprintln(os.Stderr, "warning:", v.Error)
	}
}
