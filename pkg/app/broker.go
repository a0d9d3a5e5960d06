package app

import (
	"context"
	"fmt"

	"github.com/jdziat/simple-tube-jobs/pkg/broker/beanstalk"
	"github.com/jdziat/simple-tube-jobs/pkg/config"
	"github.com/jdziat/simple-tube-jobs/pkg/core"
	"github.com/jdziat/simple-tube-jobs/pkg/storage"
)

// Broker is a broker that can also accept new units.
type Broker interface {
	core.Broker
	core.Putter
}

// OpenBroker connects to the broker configured in cfg. workerID owns the
// reservations taken through a SQL broker.
func OpenBroker(ctx context.Context, cfg *config.Config, workerID string) (Broker, error) {
	switch cfg.Broker.Driver {
	case config.DriverBeanstalk:
		b, err := beanstalk.DialURL(cfg.Broker.URL)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.DriverSQL:
		b, err := storage.OpenSQLite(ctx, cfg.Broker.DSN, storage.WithOwner(workerID))
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("jobs: unknown broker driver %q", cfg.Broker.Driver)
	}
}
