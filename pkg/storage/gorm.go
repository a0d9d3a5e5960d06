package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jdziat/simple-tube-jobs/pkg/core"
	"github.com/jdziat/simple-tube-jobs/pkg/security"
)

// DefaultPollInterval is how often Reserve re-checks an empty table.
const DefaultPollInterval = 50 * time.Millisecond

// Broker implements core.Broker and core.Putter on a GORM database.
type Broker struct {
	db           *gorm.DB
	workerID     string
	pollInterval time.Duration

	mu      sync.Mutex
	watched map[string]bool
}

var (
	_ core.Broker = (*Broker)(nil)
	_ core.Putter = (*Broker)(nil)
)

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithOwner sets the reservation owner recorded on claimed units.
func WithOwner(id string) BrokerOption {
	return func(b *Broker) {
		if id != "" {
			b.workerID = id
		}
	}
}

// WithPollInterval sets how often Reserve polls while waiting for work.
func WithPollInterval(d time.Duration) BrokerOption {
	return func(b *Broker) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// NewBroker creates a broker over db. Like a fresh beanstalkd connection it
// starts out watching the "default" tube.
func NewBroker(db *gorm.DB, opts ...BrokerOption) *Broker {
	b := &Broker{
		db:           db,
		workerID:     uuid.New().String(),
		pollInterval: DefaultPollInterval,
		watched:      map[string]bool{"default": true},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// DB returns the underlying database.
func (b *Broker) DB() *gorm.DB {
	return b.db
}

// Migrate creates the units table.
func (b *Broker) Migrate(ctx context.Context) error {
	return b.db.WithContext(ctx).AutoMigrate(&UnitRecord{})
}

// Put stores body in tube. Params follow beanstalkd: lower priority values
// are more urgent, Delay postpones readiness and TTR is clamped to at
// least one second.
func (b *Broker) Put(ctx context.Context, tube string, body []byte, params core.PutParams) (string, error) {
	if err := security.ValidateTubeName(tube); err != nil {
		return "", err
	}
	if len(body) > security.MaxEnvelopeSize {
		return "", core.ErrEnvelopeTooLarge
	}

	rec := &UnitRecord{
		Tube:       tube,
		State:      StateReady,
		Priority:   params.Priority,
		Body:       body,
		TTRSeconds: int(security.ClampTTR(params.TTR) / time.Second),
		ReadyAt:    time.Now().Add(params.Delay),
	}
	if err := b.db.WithContext(ctx).Create(rec).Error; err != nil {
		return "", translate("put", err)
	}
	return strconv.FormatUint(rec.ID, 10), nil
}

// Reserve claims the most urgent ready unit in the watched tubes, waiting
// up to timeout for one to appear. Units whose reservation deadline passed
// are ready again. An empty window yields core.ErrReserveTimeout.
func (b *Broker) Reserve(ctx context.Context, timeout time.Duration) (core.Unit, error) {
	deadline := time.Now().Add(timeout)

	for {
		rec, err := b.claim(ctx)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return &unit{broker: b, rec: *rec}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, core.ErrReserveTimeout
		}

		wait := b.pollInterval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// claim reserves one unit, returning nil when nothing is ready.
func (b *Broker) claim(ctx context.Context) (*UnitRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tubes := b.watchedTubes()
	var rec UnitRecord
	var claimed bool
	now := time.Now()

	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Where("tube IN ?", tubes).
			Where("(state = ? AND ready_at <= ?) OR (state = ? AND deadline < ?)",
				StateReady, now, StateReserved, now).
			Order("priority ASC, id ASC").
			First(&rec)

		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return nil
			}
			return result.Error
		}

		until := now.Add(rec.TTR())
		// Guard on the reserve count so a concurrent claimer loses cleanly.
		update := tx.Model(&UnitRecord{}).
			Where("id = ? AND reserves = ?", rec.ID, rec.Reserves).
			Updates(map[string]any{
				"state":       StateReserved,
				"reserved_by": b.workerID,
				"deadline":    until,
				"reserves":    rec.Reserves + 1,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return nil
		}

		rec.State = StateReserved
		rec.ReservedBy = b.workerID
		rec.Deadline = &until
		rec.Reserves++
		claimed = true
		return nil
	})

	if err != nil {
		return nil, translate("reserve", err)
	}
	if !claimed {
		return nil, nil
	}
	return &rec, nil
}

// Watch adds tube to the watch list.
func (b *Broker) Watch(_ context.Context, tube string) error {
	if err := security.ValidateTubeName(tube); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.watched[tube] = true
	return nil
}

// Ignore removes tube from the watch list. The last watched tube cannot be
// ignored.
func (b *Broker) Ignore(_ context.Context, tube string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.watched[tube] {
		return nil
	}
	if len(b.watched) == 1 {
		return fmt.Errorf("jobs: cannot ignore %q: it is the only watched tube", tube)
	}
	delete(b.watched, tube)
	return nil
}

// ListWatched returns the watched tubes in name order.
func (b *Broker) ListWatched(context.Context) ([]string, error) {
	return b.watchedTubes(), nil
}

func (b *Broker) watchedTubes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.watched))
	for name := range b.watched {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Kick moves up to n buried units of tube back to ready, oldest first, and
// reports how many moved.
func (b *Broker) Kick(ctx context.Context, tube string, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}

	var ids []uint64
	err := b.db.WithContext(ctx).
		Model(&UnitRecord{}).
		Where("tube = ? AND state = ?", tube, StateBuried).
		Order("buried_at ASC, id ASC").
		Limit(n).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, translate("kick", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := b.db.WithContext(ctx).
		Model(&UnitRecord{}).
		Where("id IN ? AND state = ?", ids, StateBuried).
		Updates(map[string]any{
			"state":     StateReady,
			"ready_at":  time.Now(),
			"buried_at": nil,
		})
	if result.Error != nil {
		return 0, translate("kick", result.Error)
	}
	return int(result.RowsAffected), nil
}

// Stats counts the units of tube by state.
func (b *Broker) Stats(ctx context.Context, tube string) (*TubeStats, error) {
	type row struct {
		State   UnitState
		Delayed bool
		Count   int64
	}

	var rows []row
	err := b.db.WithContext(ctx).
		Model(&UnitRecord{}).
		Select("state, ready_at > ? AS delayed, COUNT(*) AS count", time.Now()).
		Where("tube = ?", tube).
		Group("state, delayed").
		Scan(&rows).Error
	if err != nil {
		return nil, translate("stats", err)
	}

	stats := &TubeStats{Tube: tube}
	for _, r := range rows {
		switch {
		case r.State == StateReady && r.Delayed:
			stats.Delayed += r.Count
		case r.State == StateReady:
			stats.Ready += r.Count
		case r.State == StateReserved:
			stats.Reserved += r.Count
		case r.State == StateBuried:
			stats.Buried += r.Count
		}
	}
	return stats, nil
}

// Get returns the stored record for id.
func (b *Broker) Get(ctx context.Context, id string) (*UnitRecord, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, core.ErrUnitNotFound
	}

	var rec UnitRecord
	err = b.db.WithContext(ctx).First(&rec, "id = ?", n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrUnitNotFound
	}
	if err != nil {
		return nil, translate("get", err)
	}
	return &rec, nil
}

// Close closes the underlying connection pool.
func (b *Broker) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// owned scopes a query to the reservation described by rec.
func (b *Broker) owned(ctx context.Context, rec *UnitRecord) *gorm.DB {
	return b.db.WithContext(ctx).
		Model(&UnitRecord{}).
		Where("id = ? AND state = ? AND reserved_by = ? AND reserves = ?",
			rec.ID, StateReserved, b.workerID, rec.Reserves)
}

// unit is a reservation held by this broker.
type unit struct {
	broker *Broker
	rec    UnitRecord
}

func (u *unit) ID() string   { return strconv.FormatUint(u.rec.ID, 10) }
func (u *unit) Body() []byte { return u.rec.Body }

func (u *unit) TimeToRun(context.Context) (time.Duration, error) {
	return u.rec.TTR(), nil
}

// Delete removes the unit. It fails with core.ErrUnitNotOwned once the
// reservation has been lost.
func (u *unit) Delete(ctx context.Context) error {
	result := u.broker.db.WithContext(ctx).
		Where("id = ? AND state = ? AND reserved_by = ? AND reserves = ?",
			u.rec.ID, StateReserved, u.broker.workerID, u.rec.Reserves).
		Delete(&UnitRecord{})
	return checkOwned("delete", result)
}

// Bury parks the unit until it is kicked.
func (u *unit) Bury(ctx context.Context) error {
	now := time.Now()
	result := u.broker.owned(ctx, &u.rec).Updates(map[string]any{
		"state":       StateBuried,
		"reserved_by": "",
		"deadline":    nil,
		"buried_at":   now,
	})
	return checkOwned("bury", result)
}

// Touch restarts the unit's time-to-run.
func (u *unit) Touch(ctx context.Context) error {
	until := time.Now().Add(u.rec.TTR())
	result := u.broker.owned(ctx, &u.rec).Update("deadline", until)
	return checkOwned("touch", result)
}

func checkOwned(op string, result *gorm.DB) error {
	if result.Error != nil {
		return translate(op, result.Error)
	}
	if result.RowsAffected == 0 {
		return core.ErrUnitNotOwned
	}
	return nil
}

// translate maps database errors onto the core error vocabulary.
func translate(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return core.Disconnected(op, err)
	}
	return fmt.Errorf("jobs: storage %s: %w", op, err)
}
