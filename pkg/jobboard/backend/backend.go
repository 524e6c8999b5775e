package backend

import (
	"context"
	"fmt"
	"strings"

	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
)

// Op is a filter operator understood by every backend.
type Op string

const (
	OpEq    Op = "eq"
	OpILike Op = "ilike" // Value is a pattern with % wildcards
	OpIn    Op = "in"
)

type Condition struct {
	Column string
	Op     Op
	Value  any
	Values []any // OpIn only
}

// Filter is an OR-group of conditions. Filters in a request are ANDed.
type Filter struct {
	AnyOf []Condition
}

type Order struct {
	Column    string
	Desc      bool
	NullsLast bool
}

type SelectRequest struct {
	Table string
	// Columns nil selects every column.
	Columns []string
	Filters []Filter
	Order   []Order
	Offset  int
	// Limit caps the row count; 0 returns no rows (existence probes).
	Limit int
	// Ranged applies Offset; without it only Limit is sent.
	Ranged bool
	// Count asks for an authoritative row count of the filtered set.
	Count bool
}

type SelectResult struct {
	Rows []map[string]any
	// Columns is whatever column list the backend exposes; may be empty.
	Columns []string
	Count   *int64
}

type WriteRequest struct {
	Table   string
	Payload map[string]any
	// OnConflict turns the insert into an upsert keyed by this column.
	OnConflict string
}

type Backend interface {
	Name() string
	Configured() bool
	Capabilities() Capabilities
	Select(ctx context.Context, req SelectRequest) (SelectResult, error)
	Write(ctx context.Context, req WriteRequest) (map[string]any, error)
	Close() error
}

// Error is the uniform diagnostic every adapter produces. It mirrors the
// PostgREST error body so the classifier reads one text channel.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Code != "" {
		b.WriteString(e.Code)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Details != "" {
		fmt.Fprintf(&b, " (%s)", e.Details)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Unconfigured stands in when no backend connectivity is configured.
type Unconfigured struct{}

func (Unconfigured) Name() string               { return "unconfigured" }
func (Unconfigured) Configured() bool           { return false }
func (Unconfigured) Capabilities() Capabilities { return Capabilities{} }
func (Unconfigured) Close() error               { return nil }

func (Unconfigured) Select(ctx context.Context, req SelectRequest) (SelectResult, error) {
	_ = ctx
	return SelectResult{}, jberrors.NewError(jberrors.ErrNotConfigured, "backend not configured: select "+req.Table)
}

func (Unconfigured) Write(ctx context.Context, req WriteRequest) (map[string]any, error) {
	_ = ctx
	return nil, jberrors.NewError(jberrors.ErrNotConfigured, "backend not configured: write "+req.Table)
}
