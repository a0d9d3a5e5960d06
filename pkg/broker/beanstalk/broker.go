package beanstalk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/beanstalkd/go-beanstalk"

	"github.com/jdziat/simple-tube-jobs/pkg/core"
	"github.com/jdziat/simple-tube-jobs/pkg/security"
)

// Broker is a core.Broker and core.Putter over one beanstalkd connection.
type Broker struct {
	mu    sync.Mutex
	conn  *beanstalk.Conn
	tubes *beanstalk.TubeSet
}

var (
	_ core.Broker = (*Broker)(nil)
	_ core.Putter = (*Broker)(nil)
)

// Dial connects to the beanstalkd server at addr ("host:port").
func Dial(addr string) (*Broker, error) {
	conn, err := beanstalk.Dial("tcp", addr)
	if err != nil {
		return nil, core.Disconnected("dial "+addr, err)
	}
	return New(conn), nil
}

// DialURL connects to the server named by a beanstalk:// URL.
func DialURL(raw string) (*Broker, error) {
	addr, err := ParseURL(raw)
	if err != nil {
		return nil, err
	}
	return Dial(addr)
}

// New wraps an established connection. The connection starts out watching
// the "default" tube, as beanstalkd does.
func New(conn *beanstalk.Conn) *Broker {
	return &Broker{
		conn:  conn,
		tubes: beanstalk.NewTubeSet(conn, "default"),
	}
}

// Reserve waits up to timeout for a unit from the watched tubes. An empty
// window yields core.ErrReserveTimeout. The wait cannot be interrupted, so
// callers should keep timeout short.
func (b *Broker) Reserve(ctx context.Context, timeout time.Duration) (core.Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	id, body, err := b.tubes.Reserve(timeout)
	b.mu.Unlock()

	if err != nil {
		if isTimeout(err) {
			return nil, core.ErrReserveTimeout
		}
		return nil, translate("reserve", err)
	}
	return &unit{broker: b, id: id, body: body}, nil
}

// Watch adds tube to the watch list. The change is sent with the next reserve.
func (b *Broker) Watch(_ context.Context, tube string) error {
	if err := security.ValidateTubeName(tube); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.tubes.Name[tube] = true
	return nil
}

// Ignore removes tube from the watch list. beanstalkd refuses to ignore the
// last watched tube, and so does Ignore.
func (b *Broker) Ignore(_ context.Context, tube string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.tubes.Name[tube] {
		return nil
	}
	if len(b.tubes.Name) == 1 {
		return fmt.Errorf("jobs: cannot ignore %q: it is the only watched tube", tube)
	}
	delete(b.tubes.Name, tube)
	return nil
}

// ListWatched returns the watched tubes in name order.
func (b *Broker) ListWatched(context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.tubes.Name))
	for name := range b.tubes.Name {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Put inserts body into tube.
func (b *Broker) Put(ctx context.Context, tube string, body []byte, params core.PutParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := security.ValidateTubeName(tube); err != nil {
		return "", err
	}

	b.mu.Lock()
	id, err := beanstalk.NewTube(b.conn, tube).Put(body, params.Priority, params.Delay, params.TTR)
	b.mu.Unlock()

	if err != nil {
		return "", translate("put", err)
	}
	return strconv.FormatUint(id, 10), nil
}

// Stats returns the server-wide statistics.
func (b *Broker) Stats(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	stats, err := b.conn.Stats()
	b.mu.Unlock()
	return stats, translate("stats", err)
}

// Close closes the connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn.Close()
}

func (b *Broker) statsJob(id uint64) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	stats, err := b.conn.StatsJob(id)
	return stats, translate("stats-job", err)
}

// unit is a reserved beanstalkd job.
type unit struct {
	broker *Broker
	id     uint64
	body   []byte
}

func (u *unit) ID() string   { return strconv.FormatUint(u.id, 10) }
func (u *unit) Body() []byte { return u.body }

// TimeToRun reads the job's ttr from the server.
func (u *unit) TimeToRun(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	stats, err := u.broker.statsJob(u.id)
	if err != nil {
		return 0, err
	}
	secs, err := strconv.Atoi(stats["ttr"])
	if err != nil {
		return 0, fmt.Errorf("jobs: bad ttr %q for unit %d: %w", stats["ttr"], u.id, err)
	}
	return time.Duration(secs) * time.Second, nil
}

func (u *unit) Delete(context.Context) error {
	u.broker.mu.Lock()
	defer u.broker.mu.Unlock()
	return translate("delete", u.broker.conn.Delete(u.id))
}

// Bury buries the job at its current priority.
func (u *unit) Bury(context.Context) error {
	stats, err := u.broker.statsJob(u.id)
	if err != nil {
		return err
	}
	pri, err := strconv.ParseUint(stats["pri"], 10, 32)
	if err != nil {
		return fmt.Errorf("jobs: bad priority %q for unit %d: %w", stats["pri"], u.id, err)
	}

	u.broker.mu.Lock()
	defer u.broker.mu.Unlock()
	return translate("bury", u.broker.conn.Bury(u.id, uint32(pri)))
}

func (u *unit) Touch(context.Context) error {
	u.broker.mu.Lock()
	defer u.broker.mu.Unlock()
	return translate("touch", u.broker.conn.Touch(u.id))
}

func isTimeout(err error) bool {
	var cerr beanstalk.ConnError
	if !errors.As(err, &cerr) {
		return false
	}
	return errors.Is(cerr.Err, beanstalk.ErrTimeout) || errors.Is(cerr.Err, beanstalk.ErrDeadline)
}

// translate maps client errors onto the core error vocabulary.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	inner := err
	var cerr beanstalk.ConnError
	if errors.As(err, &cerr) {
		inner = cerr.Err
		if errors.Is(inner, beanstalk.ErrNotFound) {
			return fmt.Errorf("%w: %s: %v", core.ErrUnitNotFound, op, err)
		}
	}

	if isNetworkError(inner) {
		return core.Disconnected(op, err)
	}
	return fmt.Errorf("jobs: beanstalk %s: %w", op, err)
}

func isNetworkError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
