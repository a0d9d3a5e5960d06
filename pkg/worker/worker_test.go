package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-tube-jobs/pkg/core"
	"github.com/jdziat/simple-tube-jobs/pkg/dispatch"
	"github.com/jdziat/simple-tube-jobs/pkg/envelope"
	"github.com/jdziat/simple-tube-jobs/pkg/registry"
)

type fakeUnit struct {
	id   string
	tube string
	body []byte

	mu      sync.Mutex
	deleted bool
	buried  bool
}

func (u *fakeUnit) ID() string   { return u.id }
func (u *fakeUnit) Body() []byte { return u.body }

func (u *fakeUnit) TimeToRun(context.Context) (time.Duration, error) {
	return 120 * time.Second, nil
}

func (u *fakeUnit) Delete(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deleted = true
	return nil
}

func (u *fakeUnit) Bury(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.buried = true
	return nil
}

func (u *fakeUnit) Touch(context.Context) error { return nil }

func (u *fakeUnit) isDeleted() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.deleted
}

// fakeBroker serves units from memory, honouring the watch list.
type fakeBroker struct {
	mu          sync.Mutex
	watched     []string
	ready       []*fakeUnit
	reserveErrs []error
	reserves    int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{watched: []string{"default"}}
}

func (b *fakeBroker) put(t *testing.T, tube string, args map[string]any) *fakeUnit {
	t.Helper()
	body, err := envelope.Encode(tube, args, core.StyleClassic, core.StyleOptions{})
	require.NoError(t, err)

	b.mu.Lock()
	defer b.mu.Unlock()
	u := &fakeUnit{id: tube + "-" + string(rune('a'+len(b.ready))), tube: tube, body: body}
	b.ready = append(b.ready, u)
	return u
}

func (b *fakeBroker) Reserve(ctx context.Context, timeout time.Duration) (core.Unit, error) {
	b.mu.Lock()
	b.reserves++
	if len(b.reserveErrs) > 0 {
		err := b.reserveErrs[0]
		b.reserveErrs = b.reserveErrs[1:]
		b.mu.Unlock()
		return nil, err
	}
	for i, u := range b.ready {
		if b.isWatched(u.tube) {
			b.ready = append(b.ready[:i], b.ready[i+1:]...)
			b.mu.Unlock()
			return u, nil
		}
	}
	b.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, core.ErrReserveTimeout
	}
}

func (b *fakeBroker) isWatched(tube string) bool {
	for _, w := range b.watched {
		if w == tube {
			return true
		}
	}
	return false
}

func (b *fakeBroker) Watch(_ context.Context, tube string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.isWatched(tube) {
		b.watched = append(b.watched, tube)
	}
	return nil
}

func (b *fakeBroker) Ignore(_ context.Context, tube string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, w := range b.watched {
		if w == tube {
			b.watched = append(b.watched[:i], b.watched[i+1:]...)
			return nil
		}
	}
	return nil
}

func (b *fakeBroker) ListWatched(context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.watched...), nil
}

func (b *fakeBroker) Close() error { return nil }

func testLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buf, nil)), buf
}

func fastRetry() WorkerOption {
	return WithRetry(RetryConfig{
		Attempts: 3,
		Base:     time.Millisecond,
		Cap:      5 * time.Millisecond,
		Factor:   2,
	})
}

func TestNewWorker_Defaults(t *testing.T) {
	w := NewWorker(newFakeBroker(), registry.New())

	assert.Equal(t, DefaultReserveTimeout, w.config.ReserveTimeout)
	assert.NotEmpty(t, w.config.WorkerID)
	require.NotNil(t, w.config.ReserveRetry)
	assert.Equal(t, DefaultRetryConfig(), *w.config.ReserveRetry)
	assert.Equal(t, w.config.WorkerID, w.Engine().WorkerID())
}

func TestNewWorker_WithEngine(t *testing.T) {
	reg := registry.New()
	e := dispatch.New(reg, dispatch.WithWorkerID("shared"))

	w := NewWorker(newFakeBroker(), registry.New(), WithEngine(e))

	assert.Same(t, e, w.Engine())
	assert.Same(t, reg, w.registry)
	assert.Equal(t, "shared", w.config.WorkerID)
}

func TestWithReserveTimeout_FallsBackToDefault(t *testing.T) {
	cfg := WorkerConfig{}
	WithReserveTimeout(0).ApplyWorker(&cfg)
	assert.Equal(t, DefaultReserveTimeout, cfg.ReserveTimeout)

	WithReserveTimeout(50 * time.Millisecond).ApplyWorker(&cfg)
	assert.Equal(t, 50*time.Millisecond, cfg.ReserveTimeout)
}

func TestPrepare_NoHandlers(t *testing.T) {
	w := NewWorker(newFakeBroker(), registry.New())

	_, err := w.Prepare(context.Background())
	assert.ErrorIs(t, err, core.ErrNoHandlersRegistered)
}

func TestPrepare_AllRegisteredJobs(t *testing.T) {
	reg := registry.New()
	reg.Register("b.job", func() error { return nil })
	reg.Register("a.job", func() error { return nil })

	b := newFakeBroker()
	logger, logs := testLogger()
	w := NewWorker(b, reg, WithLogger(logger))

	jobs, err := w.Prepare(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a.job", "b.job"}, jobs)
	assert.Equal(t, jobs, w.Jobs())

	watched, _ := b.ListWatched(context.Background())
	assert.ElementsMatch(t, []string{"a.job", "b.job"}, watched)
	assert.Contains(t, logs.String(), "Working 2 jobs: [ a.job b.job ]")
}

func TestPrepare_ExplicitSubset(t *testing.T) {
	reg := registry.New()
	reg.Register("a.job", func() error { return nil })
	reg.Register("b.job", func() error { return nil })

	b := newFakeBroker()
	b.watched = append(b.watched, "stale")
	logger, _ := testLogger()
	w := NewWorker(b, reg, WithLogger(logger))

	jobs, err := w.Prepare(context.Background(), "b.job", "b.job")
	require.NoError(t, err)

	assert.Equal(t, []string{"b.job"}, jobs)
	watched, _ := b.ListWatched(context.Background())
	assert.Equal(t, []string{"b.job"}, watched)
}

func TestPrepare_UnknownExplicitJob(t *testing.T) {
	reg := registry.New()
	reg.Register("a.job", func() error { return nil })

	b := newFakeBroker()
	w := NewWorker(b, reg)

	_, err := w.Prepare(context.Background(), "a.job", "missing")

	var unknown *core.UnknownJobError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing", unknown.Name)

	watched, _ := b.ListWatched(context.Background())
	assert.Equal(t, []string{"default"}, watched, "no subscription changes on failure")
}

func TestRun_DispatchesUntilCancelled(t *testing.T) {
	reg := registry.New()
	var (
		mu   sync.Mutex
		seen []float64
	)
	reg.Register("count", func(ctx context.Context, args map[string]any) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, args["n"].(float64))
		return nil
	})

	b := newFakeBroker()
	u1 := b.put(t, "count", map[string]any{"n": 1})
	u2 := b.put(t, "count", map[string]any{"n": 2})
	other := b.put(t, "other", nil)

	logger, _ := testLogger()
	w := NewWorker(b, reg, WithLogger(logger), WithReserveTimeout(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return u1.isDeleted() && u2.isDeleted()
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	mu.Lock()
	assert.Equal(t, []float64{1, 2}, seen)
	mu.Unlock()
	assert.False(t, other.isDeleted(), "units in unwatched tubes are never reserved")
}

func TestRun_PrepareFailure(t *testing.T) {
	w := NewWorker(newFakeBroker(), registry.New())
	assert.ErrorIs(t, w.Run(context.Background()), core.ErrNoHandlersRegistered)
}

func TestRun_DisconnectIsFatal(t *testing.T) {
	reg := registry.New()
	reg.Register("job", func() error { return nil })

	b := newFakeBroker()
	b.reserveErrs = []error{core.Disconnected("reserve", io.EOF)}

	logger, logs := testLogger()
	w := NewWorker(b, reg, WithLogger(logger), fastRetry())

	err := w.Run(context.Background())
	assert.True(t, core.IsDisconnected(err))
	assert.Equal(t, 1, b.reserves)
	assert.Contains(t, logs.String(), "lost broker connection")
}

func TestRun_RetriesTransientReserveErrors(t *testing.T) {
	reg := registry.New()
	reg.Register("job", func() error { return nil })

	b := newFakeBroker()
	b.reserveErrs = []error{errors.New("busy"), errors.New("busy")}
	u := b.put(t, "job", nil)

	logger, _ := testLogger()
	w := NewWorker(b, reg, WithLogger(logger), fastRetry(), WithReserveTimeout(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, u.isDeleted, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunOnce_DispatchesOneUnit(t *testing.T) {
	reg := registry.New()
	calls := 0
	reg.Register("job", func() error {
		calls++
		return nil
	})

	b := newFakeBroker()
	first := b.put(t, "job", nil)
	second := b.put(t, "job", nil)

	logger, _ := testLogger()
	w := NewWorker(b, reg, WithLogger(logger), WithReserveTimeout(10*time.Millisecond))

	require.NoError(t, w.RunOnce(context.Background()))

	assert.Equal(t, 1, calls)
	assert.True(t, first.isDeleted())
	assert.False(t, second.isDeleted())
	assert.Equal(t, []string{"job"}, w.Jobs())
}

func TestRunOnce_WaitsAcrossReserveTimeouts(t *testing.T) {
	reg := registry.New()
	reg.Register("job", func() error { return nil })

	b := newFakeBroker()
	logger, _ := testLogger()
	w := NewWorker(b, reg, WithLogger(logger), WithReserveTimeout(5*time.Millisecond))
	_, err := w.Prepare(context.Background())
	require.NoError(t, err)

	body, err := envelope.Encode("job", nil, core.StyleClassic, core.StyleOptions{})
	require.NoError(t, err)
	u := &fakeUnit{id: "late", tube: "job", body: body}
	go func() {
		time.Sleep(30 * time.Millisecond)
		b.mu.Lock()
		b.ready = append(b.ready, u)
		b.mu.Unlock()
	}()

	require.NoError(t, w.RunOnce(context.Background()))
	b.mu.Lock()
	assert.Greater(t, b.reserves, 1)
	b.mu.Unlock()
	assert.True(t, u.isDeleted())
}

func TestRunOnce_CancelledWhileWaiting(t *testing.T) {
	reg := registry.New()
	reg.Register("job", func() error { return nil })

	logger, _ := testLogger()
	w := NewWorker(newFakeBroker(), reg, WithLogger(logger), WithReserveTimeout(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, w.RunOnce(ctx), context.DeadlineExceeded)
}
