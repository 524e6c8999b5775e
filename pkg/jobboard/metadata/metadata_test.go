package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonibytes/jobboard/pkg/jobboard/adapters/memory"
	"github.com/nonibytes/jobboard/pkg/jobboard/backend"
	jberrors "github.com/nonibytes/jobboard/pkg/jobboard/errors"
)

func TestExistenceJSON(t *testing.T) {
	for _, e := range []Existence{Unknown, Exists, Missing} {
		b, err := json.Marshal(e)
		require.NoError(t, err)
		var back Existence
		require.NoError(t, json.Unmarshal(b, &back))
		assert.Equal(t, e, back)
	}
	b, _ := json.Marshal(Unknown)
	assert.Equal(t, "null", string(b))
}

func TestCacheFirstWriterWins(t *testing.T) {
	c := NewCache()
	got := c.Store(TableMetadata{Table: "jobs", Exists: Exists})
	assert.Equal(t, Exists, got.Exists)
	got = c.Store(TableMetadata{Table: "jobs", Exists: Missing})
	assert.Equal(t, Exists, got.Exists)
	assert.Equal(t, []string{"jobs"}, c.Tables())

	c.Clear()
	_, ok := c.Get("jobs")
	assert.False(t, ok)
}

func TestProbeExists(t *testing.T) {
	m := memory.New()
	m.CreateTable("jobs", "id", "title")
	m.SetCapabilities(backend.Capabilities{Range: true, ExposesColumns: true})
	p := NewProber(m, nil, nil)

	md, err := p.Probe(context.Background(), "jobs")
	require.NoError(t, err)
	assert.Equal(t, Exists, md.Exists)
	assert.Equal(t, []string{"id", "title"}, md.Columns)
	assert.Nil(t, md.Err)

	// Cached: no second backend call.
	calls := m.Calls()
	_, err = p.Probe(context.Background(), "jobs")
	require.NoError(t, err)
	assert.Equal(t, calls, m.Calls())
}

func TestProbeMissing(t *testing.T) {
	p := NewProber(memory.New(), nil, nil)
	md, err := p.Probe(context.Background(), "jobs")
	require.NoError(t, err)
	assert.Equal(t, Missing, md.Exists)
	require.NotNil(t, md.Err)
	assert.Equal(t, jberrors.ErrTableNotFound, md.Err.Code)
}

func TestProbeUnknownOnAuthorization(t *testing.T) {
	m := memory.New()
	m.CreateTable("jobs", "id")
	m.DenyReads("jobs", true)
	p := NewProber(m, nil, nil)
	md, err := p.Probe(context.Background(), "jobs")
	require.NoError(t, err)
	assert.Equal(t, Unknown, md.Exists)
	require.NotNil(t, md.Err)
	assert.Equal(t, "42501", md.Err.BackendCode)
	assert.Equal(t, jberrors.ErrBackend, md.Err.Code)

	// Unknown is cached too.
	m.DenyReads("jobs", false)
	md, _ = p.Probe(context.Background(), "jobs")
	assert.Equal(t, Unknown, md.Exists)
}

func TestProbeUnconfigured(t *testing.T) {
	p := NewProber(backend.Unconfigured{}, nil, nil)
	md, err := p.Probe(context.Background(), "jobs")
	require.NoError(t, err)
	assert.Equal(t, Missing, md.Exists)
	assert.Equal(t, jberrors.ErrNotConfigured, md.Err.Code)
}

func TestProbeAbortNotCached(t *testing.T) {
	m := memory.New()
	m.CreateTable("jobs", "id")
	p := NewProber(m, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Probe(ctx, "jobs")
	require.Error(t, err)
	assert.True(t, jberrors.IsCode(err, jberrors.ErrAbort))
	_, ok := p.Cache().Get("jobs")
	assert.False(t, ok)

	md, err := p.Probe(context.Background(), "jobs")
	require.NoError(t, err)
	assert.Equal(t, Exists, md.Exists)
}

// gate blocks every Select until released and counts calls.
type gate struct {
	backend.Backend
	release chan struct{}
	calls   atomic.Int32
}

func (g *gate) Select(ctx context.Context, req backend.SelectRequest) (backend.SelectResult, error) {
	g.calls.Add(1)
	select {
	case <-g.release:
	case <-ctx.Done():
		return backend.SelectResult{}, ctx.Err()
	}
	return g.Backend.Select(ctx, req)
}

func TestProbeCollapsesConcurrentCalls(t *testing.T) {
	m := memory.New()
	m.CreateTable("jobs", "id")
	g := &gate{Backend: m, release: make(chan struct{})}
	p := NewProber(g, nil, nil)

	var wg sync.WaitGroup
	results := make([]TableMetadata, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Probe(context.Background(), "jobs")
		}(i)
	}
	// Wait for the leader to reach the backend, then let it through.
	for g.calls.Load() == 0 {
		runtime.Gosched()
	}
	close(g.release)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, Exists, results[i].Exists)
	}
	// Callers share the in-flight probe or hit the cache it filled.
	assert.Equal(t, int32(1), g.calls.Load())
}

func TestProbeAfterAbortedLeader(t *testing.T) {
	m := memory.New()
	m.CreateTable("jobs", "id")
	g := &gate{Backend: m, release: make(chan struct{})}
	p := NewProber(g, nil, nil)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := p.Probe(leaderCtx, "jobs")
		leaderErr <- err
	}()
	for g.calls.Load() == 0 {
		runtime.Gosched()
	}
	cancelLeader()
	err := <-leaderErr
	require.True(t, errors.Is(err, context.Canceled) || jberrors.IsCode(err, jberrors.ErrAbort))

	close(g.release)
	md, err := p.Probe(context.Background(), "jobs")
	require.NoError(t, err)
	assert.Equal(t, Exists, md.Exists)
}

func TestProbeFollowerCancelsWhileLeaderBlocks(t *testing.T) {
	m := memory.New()
	m.CreateTable("jobs", "id")
	g := &gate{Backend: m, release: make(chan struct{})}
	p := NewProber(g, nil, nil)

	leaderDone := make(chan TableMetadata, 1)
	go func() {
		md, _ := p.Probe(context.Background(), "jobs")
		leaderDone <- md
	}()
	for g.calls.Load() == 0 {
		runtime.Gosched()
	}

	ctx, cancel := context.WithCancel(context.Background())
	followerErr := make(chan error, 1)
	go func() {
		_, err := p.Probe(ctx, "jobs")
		followerErr <- err
	}()
	cancel()

	select {
	case err := <-followerErr:
		assert.True(t, jberrors.IsCode(err, jberrors.ErrAbort))
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller still waiting on the shared probe")
	}

	close(g.release)
	md := <-leaderDone
	assert.Equal(t, Exists, md.Exists)
	assert.Equal(t, int32(1), g.calls.Load())
}
