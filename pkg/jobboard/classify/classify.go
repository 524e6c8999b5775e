// Package classify turns the backend's free-text diagnostics into a
// structured failure reason. Every regular expression that inspects error
// text lives here.
package classify

import (
	"context"
	stderrors "errors"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/nonibytes/jobboard/pkg/jobboard/backend"
	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
)

type Kind int

const (
	Unclassified Kind = iota
	ColumnMissing
	TableMissing
	Authorization
	Aborted
)

func (k Kind) String() string {
	switch k {
	case ColumnMissing:
		return "missing_column"
	case TableMissing:
		return "table_missing"
	case Authorization:
		return "authorization"
	case Aborted:
		return "aborted"
	default:
		return "unclassified"
	}
}

type Classification struct {
	Kind   Kind
	Column string // ColumnMissing only
}

const ident = `([A-Za-z_][A-Za-z0-9_$]*)`

// generic patterns apply to any table.
var genericPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)column "([^"]+)" does not exist`),
	regexp.MustCompile(`(?i)missing column:?\s+['"` + "`" + `]?` + ident),
	regexp.MustCompile(`(?i)unknown column:?\s+['"` + "`" + `]?(?:[A-Za-z0-9_]+\.)?` + ident),
	regexp.MustCompile(`(?i)no such column:\s+(?:[A-Za-z0-9_]+\.)?` + ident),
}

// tablePatternCache holds the compiled tablePatterns per table name.
var tablePatternCache sync.Map

func tablePatterns(table string) []*regexp.Regexp {
	if v, ok := tablePatternCache.Load(table); ok {
		return v.([]*regexp.Regexp)
	}
	v, _ := tablePatternCache.LoadOrStore(table, compileTablePatterns(table))
	return v.([]*regexp.Regexp)
}

func compileTablePatterns(table string) []*regexp.Regexp {
	t := regexp.QuoteMeta(table)
	// PostgREST reports schema-qualified names ("public.jobs").
	qt := `(?:[A-Za-z0-9_]+\.)?` + t
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)column "([^"]+)" of relation "` + qt + `" does not exist`),
		regexp.MustCompile(`(?i)could not find the '([^']+)' column of '` + qt + `'`),
		regexp.MustCompile(`(?i)column ` + qt + `\.` + ident + ` does not exist`),
		regexp.MustCompile(`(?i)table "?` + qt + `"? has no column named ` + ident),
	}
}

// MissingColumn extracts the offending physical column from message, or
// returns "" when the message is not about a missing column.
func MissingColumn(message, table string) string {
	if message == "" {
		return ""
	}
	if table != "" {
		for _, re := range tablePatterns(table) {
			if m := re.FindStringSubmatch(message); m != nil {
				return m[1]
			}
		}
	}
	for _, re := range genericPatterns {
		if m := re.FindStringSubmatch(message); m != nil {
			return m[1]
		}
	}
	return ""
}

var (
	tableMissingCodes = map[string]bool{"42P01": true, "PGRST205": true, "PGRST106": true}
	authCodes         = map[string]bool{"42501": true, "PGRST301": true, "PGRST302": true}

	tableMissingRe = regexp.MustCompile(`(?i)(relation "[^"]+" does not exist|no such table|could not find the table|table "?[A-Za-z0-9_.]+"? does not exist|schema cache)`)
	otherColumnRe  = regexp.MustCompile(`(?i)column "[^"]+" of relation`)
	authRe         = regexp.MustCompile(`(?i)(permission denied|row-level security|violates row level security|not authorized|jwt expired|invalid api key)`)
)

// Classify decides why a backend call for table failed.
func Classify(err error, table string) Classification {
	if err == nil {
		return Classification{Kind: Unclassified}
	}
	if stderrors.Is(err, context.Canceled) || jberrors.IsCode(err, jberrors.ErrAbort) {
		return Classification{Kind: Aborted}
	}

	msg := err.Error()
	var code string
	var status int
	var be *backend.Error
	if stderrors.As(err, &be) {
		code = be.Code
		status = be.Status
		msg = strings.TrimSpace(be.Message + " " + be.Details + " " + be.Hint)
	}

	if col := MissingColumn(msg, table); col != "" {
		return Classification{Kind: ColumnMissing, Column: col}
	}
	if tableMissingCodes[code] || (tableMissingRe.MatchString(msg) && !otherColumnRe.MatchString(msg)) {
		return Classification{Kind: TableMissing}
	}
	if authCodes[code] || status == http.StatusUnauthorized || status == http.StatusForbidden || authRe.MatchString(msg) {
		return Classification{Kind: Authorization}
	}
	return Classification{Kind: Unclassified}
}

// ClassifyContext is Classify, but a cancelled ctx always wins: drivers don't
// all wrap context.Canceled in the error they return.
func ClassifyContext(ctx context.Context, err error, table string) Classification {
	if err != nil && stderrors.Is(ctx.Err(), context.Canceled) {
		return Classification{Kind: Aborted}
	}
	return Classify(err, table)
}

// Info converts err into the ErrorInfo callers see, carrying the backend's
// code, details and hint when err came from an adapter.
func Info(err error) *jberrors.Error {
	info := jberrors.Info(err)
	if info == nil {
		return nil
	}
	var be *backend.Error
	if stderrors.As(err, &be) {
		if info.BackendCode == "" {
			info.BackendCode = be.Code
		}
		if info.Details == "" {
			info.Details = be.Details
		}
		if info.Hint == "" {
			info.Hint = be.Hint
		}
	}
	return info
}
