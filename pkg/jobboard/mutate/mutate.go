// Package mutate runs inserts and upserts that prune columns the backend
// reports missing and retry.
package mutate

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/nonibytes/jobboard/pkg/jobboard/backend"
	"github.com/nonibytes/jobboard/pkg/jobboard/classify"
	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
)

// DefaultMaxAttempts bounds the write retry loop.
const DefaultMaxAttempts = 10

type Request struct {
	Table   string
	Payload map[string]any
	// Presence maps column -> known to exist. Columns mapped to false are
	// dropped before the first attempt.
	Presence               map[string]bool
	OnColumnMissing        func(column string)
	OnColumnPresenceUpdate func(columns []string)
	// OnConflict turns the insert into an upsert keyed by this column.
	OnConflict string
}

type Result struct {
	Data         map[string]any  `json:"data"`
	Error        *jberrors.Error `json:"error"`
	FinalPayload map[string]any  `json:"finalPayload"`
	// Removed lists the columns pruned during this call.
	Removed  []string `json:"removed,omitempty"`
	Attempts int      `json:"attempts"`
}

type Executor struct {
	backend     backend.Backend
	logger      *slog.Logger
	maxAttempts int
}

func New(b backend.Backend, logger *slog.Logger) *Executor {
	if b == nil {
		b = backend.Unconfigured{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{backend: b, logger: logger, maxAttempts: DefaultMaxAttempts}
}

// WithMaxAttempts returns a copy of e with a different retry budget.
func (e *Executor) WithMaxAttempts(n int) *Executor {
	out := *e
	if n > 0 {
		out.maxAttempts = n
	}
	return &out
}

// Write attempts req. The returned error is non-nil only for cancellation
// and malformed requests; backend failures land in Result.Error.
func (e *Executor) Write(ctx context.Context, req Request) (*Result, error) {
	if req.Table == "" {
		return nil, jberrors.NewError(jberrors.ErrInvalidRequest, "table is required")
	}
	if req.OnConflict != "" && !e.backend.Capabilities().Upsert && e.backend.Configured() {
		return nil, jberrors.NewError(jberrors.ErrInvalidRequest, "backend "+e.backend.Name()+" does not support upserts")
	}

	absent := make(map[string]bool)
	for col, present := range req.Presence {
		if !present {
			absent[strings.ToLower(col)] = true
		}
	}
	payload := make(map[string]any, len(req.Payload))
	for k, v := range req.Payload {
		if !absent[strings.ToLower(k)] {
			payload[k] = v
		}
	}

	res := &Result{FinalPayload: payload}
	if len(payload) == 0 {
		res.Error = jberrors.NewError(jberrors.ErrInvalidRequest, "payload has no writable columns")
		return res, nil
	}

	log := e.logger.With("table", req.Table)
	removed := make(map[string]bool)
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		res.Attempts = attempt
		data, err := e.backend.Write(ctx, backend.WriteRequest{Table: req.Table, Payload: clonePayload(payload), OnConflict: req.OnConflict})
		if err == nil {
			res.Data = data
			if req.OnColumnPresenceUpdate != nil {
				req.OnColumnPresenceUpdate(sortedKeys(payload))
			}
			return res, nil
		}
		lastErr = err

		c := classify.ClassifyContext(ctx, err, req.Table)
		switch c.Kind {
		case classify.Aborted:
			return nil, jberrors.Aborted(err)
		case classify.Authorization:
			res.Error = classify.Info(jberrors.Wrap(jberrors.ErrAuthorization, "write rejected by backend policy", err))
			return res, nil
		case classify.TableMissing:
			info := jberrors.TableNotFound(req.Table)
			info.Cause = err
			res.Error = info
			return res, nil
		case classify.ColumnMissing:
			key, ok := payloadKey(payload, c.Column)
			if !ok || removed[strings.ToLower(key)] {
				res.Error = classify.Info(err)
				return res, nil
			}
			delete(payload, key)
			removed[strings.ToLower(key)] = true
			res.Removed = append(res.Removed, key)
			log.Debug("pruned missing column", "column", key, "attempt", attempt)
			if req.OnColumnMissing != nil {
				req.OnColumnMissing(key)
			}
			if len(payload) == 0 {
				res.Error = classify.Info(err)
				return res, nil
			}
		default:
			res.Error = classify.Info(err)
			return res, nil
		}
	}
	log.Warn("write retry budget exhausted", "attempts", e.maxAttempts)
	res.Error = classify.Info(lastErr)
	return res, nil
}

func payloadKey(payload map[string]any, column string) (string, bool) {
	if _, ok := payload[column]; ok {
		return column, true
	}
	for k := range payload {
		if strings.EqualFold(k, column) {
			return k, true
		}
	}
	return "", false
}

func clonePayload(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
