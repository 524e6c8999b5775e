package cliutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/iancoleman/strcase"

	"github.com/nonibytes/jobboard/pkg/jobboard/record"
)

type OutputFormat string

const (
	FormatPretty OutputFormat = "pretty"
	FormatJSON   OutputFormat = "json"
)

func ParseOutputFormat(s string) OutputFormat {
	switch OutputFormat(s) {
	case FormatPretty, FormatJSON:
		return OutputFormat(s)
	default:
		return FormatPretty
	}
}

func PrintJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

// SignalContext is cancelled on SIGINT/SIGTERM, which aborts in-flight calls.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// ParseSets turns repeated key=value flags into a payload. Keys are
// snake_cased ("logoUrl" becomes "logo_url"); values that parse as JSON keep
// their JSON type, anything else is a string.
func ParseSets(sets []string) (map[string]any, error) {
	out := make(map[string]any, len(sets))
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --set %q (expected key=value)", kv)
		}
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			parsed = v
		}
		out[strcase.ToSnake(strings.TrimSpace(k))] = parsed
	}
	return out, nil
}

// ParseCategories turns repeated key=v1,v2 flags into categorical filters.
func ParseCategories(pairs []string) (map[string][]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string][]string)
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --category %q (expected key=value[,value])", p)
		}
		key := strcase.ToSnake(k)
		for _, val := range strings.Split(v, ",") {
			if val = strings.TrimSpace(val); val != "" {
				out[key] = append(out[key], val)
			}
		}
	}
	return out, nil
}

// PrintRecords writes one row per record with the given logical columns.
func PrintRecords(w io.Writer, records []record.Record, columns []string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(columns, "\t")))
	for _, r := range records {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = cell(r[c])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		if r := []rune(t); len(r) > 40 {
			return string(r[:37]) + "..."
		}
		return t
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = fmt.Sprint(e)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}
