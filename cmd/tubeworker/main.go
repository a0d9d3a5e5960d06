// Command tubeworker runs a worker with a handful of demo jobs registered.
//
// Usage:
//
//	tubeworker -config worker.yaml
//	BEANSTALK_URL=beanstalk://queue:11300/ tubeworker
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jdziat/simple-tube-jobs/pkg/app"
	"github.com/jdziat/simple-tube-jobs/pkg/config"
	"github.com/jdziat/simple-tube-jobs/pkg/core"
	"github.com/jdziat/simple-tube-jobs/pkg/jobctx"
	"github.com/jdziat/simple-tube-jobs/pkg/producer"
	"github.com/jdziat/simple-tube-jobs/pkg/registry"
	"github.com/jdziat/simple-tube-jobs/pkg/schedule"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	heartbeat := flag.Duration("heartbeat", 0, "enqueue demo.heartbeat at this interval (0 disables)")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []app.Option
	if *heartbeat > 0 {
		opts = append(opts, app.WithSchedules(func(p *producer.Producer) {
			p.Schedule("demo.heartbeat", schedule.Every(*heartbeat), nil)
		}))
	}

	err = app.Run(ctx, cfg, demoRegistry(), opts...)
	os.Exit(app.ExitCode(err, app.NewLogger(cfg, os.Stderr)))
}

func demoRegistry() *registry.Registry {
	reg := registry.New()

	reg.Register("demo.heartbeat", func(ctx context.Context) error {
		slog.Info("heartbeat", "worker_id", jobctx.WorkerIDFromContext(ctx))
		return nil
	})

	type EmailArgs struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
	}
	reg.Register("demo.email", func(ctx context.Context, args EmailArgs) error {
		if args.To == "" {
			return fmt.Errorf("demo.email: missing recipient")
		}
		slog.Info("sending email", "to", args.To, "subject", args.Subject)
		return nil
	})

	// Long running work keeps its reservation alive and resolves the unit
	// itself.
	reg.Register("demo.report", func(ctx context.Context, args map[string]any, unit core.Unit, opts core.StyleOptions) error {
		for i := 0; i < 3; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
			if err := unit.Touch(ctx); err != nil {
				return err
			}
		}
		if opts.ExplicitDelete {
			return unit.Delete(ctx)
		}
		return nil
	})

	reg.OnError(func(ctx context.Context, err error, name string, args map[string]any) {
		slog.Warn("demo job failed", "job", name, "error", err)
	})

	return reg
}
