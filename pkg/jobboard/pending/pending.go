// Package pending keeps writes the backend refused on authorization grounds
// so they can be shown as pending-sync and retried later. The queue lives for
// the process only.
package pending

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
	"github.com/nonibytes/jobboard/pkg/jobboard/mutate"
)

type Item struct {
	ID         uuid.UUID       `json:"id"`
	Table      string          `json:"table"`
	Payload    map[string]any  `json:"payload"`
	OnConflict string          `json:"onConflict,omitempty"`
	Reason     *jberrors.Error `json:"reason,omitempty"`
	QueuedAt   time.Time       `json:"queuedAt"`
	Attempts   int             `json:"attempts"`
}

// Writer is satisfied by *mutate.Executor and the jobboard client.
type Writer interface {
	Write(ctx context.Context, req mutate.Request) (*mutate.Result, error)
}

type Queue struct {
	mu    sync.Mutex
	items []Item
	now   func() time.Time
}

func NewQueue() *Queue {
	return &Queue{now: time.Now}
}

// Add queues the intended write behind req.
func (q *Queue) Add(req mutate.Request, reason *jberrors.Error) (Item, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Item{}, jberrors.Wrap(jberrors.ErrBackend, "generate pending id", err)
	}
	payload := make(map[string]any, len(req.Payload))
	for k, v := range req.Payload {
		payload[k] = v
	}
	it := Item{
		ID:         id,
		Table:      req.Table,
		Payload:    payload,
		OnConflict: req.OnConflict,
		Reason:     reason,
		QueuedAt:   q.now().UTC(),
	}
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()
	return it, nil
}

func (q *Queue) List() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Item(nil), q.items...)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Remove(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

type FlushReport struct {
	Synced []uuid.UUID `json:"synced"`
	Failed []Item      `json:"failed"`
}

// Flush retries every queued write in queue order. Synced items leave the
// queue; failed ones stay with their attempt count and latest reason.
// Cancellation stops the flush and is returned.
func (q *Queue) Flush(ctx context.Context, w Writer) (FlushReport, error) {
	var report FlushReport
	for _, it := range q.List() {
		res, err := w.Write(ctx, mutate.Request{Table: it.Table, Payload: it.Payload, OnConflict: it.OnConflict})
		if err != nil {
			return report, err
		}
		if res.Error == nil {
			q.Remove(it.ID)
			report.Synced = append(report.Synced, it.ID)
			continue
		}
		it = q.update(it.ID, res.Error)
		report.Failed = append(report.Failed, it)
	}
	return report, nil
}

func (q *Queue) update(id uuid.UUID, reason *jberrors.Error) Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].Attempts++
			q.items[i].Reason = reason
			return q.items[i]
		}
	}
	return Item{ID: id, Reason: reason}
}
