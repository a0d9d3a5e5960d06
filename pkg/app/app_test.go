package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-tube-jobs/pkg/config"
	"github.com/jdziat/simple-tube-jobs/pkg/core"
	"github.com/jdziat/simple-tube-jobs/pkg/metrics"
	"github.com/jdziat/simple-tube-jobs/pkg/producer"
	"github.com/jdziat/simple-tube-jobs/pkg/registry"
	"github.com/jdziat/simple-tube-jobs/pkg/schedule"
)

// syncBuffer guards a bytes.Buffer written by the worker goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func sqlConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Broker.Driver = config.DriverSQL
	cfg.Broker.DSN = ":memory:"
	cfg.Worker.ReserveTimeout = 20 * time.Millisecond
	return cfg
}

func TestExitCode(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))

	assert.Equal(t, 0, ExitCode(nil, logger))
	assert.Equal(t, 0, ExitCode(context.Canceled, logger))
	assert.Equal(t, 0, ExitCode(errors.Join(errors.New("x"), context.Canceled), logger))
	assert.Empty(t, buf.String())

	assert.Equal(t, 1, ExitCode(core.Disconnected("reserve", io.EOF), logger))
	assert.Equal(t, 1, ExitCode(core.ErrNoHandlersRegistered, nil))
	assert.Contains(t, buf.String(), "worker stopped")
}

func TestNewLogger(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	cfg.Log.Format = "json"
	NewLogger(cfg, buf).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	cfg.Log.Format = "text"
	cfg.Log.Level = "warn"
	logger := NewLogger(cfg, buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestOpenBroker(t *testing.T) {
	ctx := context.Background()

	b, err := OpenBroker(ctx, sqlConfig(t), "w1")
	require.NoError(t, err)
	_, err = b.Put(ctx, "job", []byte(`["job",{}]`), core.PutParams{TTR: time.Minute})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	cfg := sqlConfig(t)
	cfg.Broker.Driver = "carrier-pigeon"
	_, err = OpenBroker(ctx, cfg, "w1")
	assert.ErrorContains(t, err, "unknown broker driver")

	cfg.Broker.Driver = config.DriverBeanstalk
	cfg.Broker.URL = "http://nope"
	_, err = OpenBroker(ctx, cfg, "w1")
	assert.Error(t, err)
}

func TestServer_Routes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg).Record(&core.JobStarted{Name: "report.build"})

	srv := NewServer(reg, "/metrics", slog.Default())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tubejobs_jobs_started_total{job="report.build"} 1`)
}

func TestServer_StartStop(t *testing.T) {
	srv := NewServer(prometheus.NewRegistry(), "/metrics", slog.Default())
	require.NoError(t, srv.Start("127.0.0.1:0"))
	require.NotEmpty(t, srv.Addr())

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + srv.Addr() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Stop(ctx))
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := sqlConfig(t)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = "127.0.0.1:0"

	reg := registry.New()
	processed := make(chan float64, 10)
	reg.Register("demo.tick", func(ctx context.Context, args map[string]any) error {
		processed <- args["n"].(float64)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rt *Runtime
	logs := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg, reg,
			WithOutput(logs),
			WithReady(func(r *Runtime) { rt = r }),
			WithSchedules(func(p *producer.Producer) {
				p.Schedule("demo.tick", schedule.Every(10*time.Millisecond), map[string]any{"n": 3})
			}),
		)
	}()

	select {
	case n := <-processed:
		assert.Equal(t, 3.0, n)
	case <-time.After(5 * time.Second):
		t.Fatal("no job processed")
	}

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, ExitCode(err, nil))

	require.NotNil(t, rt)
	assert.NotNil(t, rt.Server)
	assert.Contains(t, logs.String(), "Working 1 jobs: [ demo.tick ]")
	assert.Contains(t, logs.String(), "Working demo.tick (n=3)")
	assert.Contains(t, logs.String(), "Finished demo.tick in")
}

func TestRun_NoHandlers(t *testing.T) {
	err := Run(context.Background(), sqlConfig(t), registry.New(), WithOutput(io.Discard))
	assert.ErrorIs(t, err, core.ErrNoHandlersRegistered)
	assert.Equal(t, 1, ExitCode(err, nil))
}
