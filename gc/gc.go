// Package gc runs the background sweep that detects expired transactions
// and funnels them into notify_failure, so that a client that crashed
// mid-transaction does not hold its locks forever.
package gc

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/txcoord/txcoord"
	"github.com/txcoord/txcoord/executor"
	"github.com/txcoord/txcoord/notify"
	"github.com/txcoord/txcoord/pathbuilder"
	"github.com/txcoord/txcoord/session"
	"github.com/txcoord/txcoord/store"
)

// DefaultInterval is how often the collector wakes to sweep every
// application, and the minimum spacing between two sweeps of the same app.
const DefaultInterval = 30 * time.Second

// DefaultTxTimeout is how long a transaction node may exist, by its
// creation timestamp, before it is eligible for failure notification.
const DefaultTxTimeout = 30 * time.Second

// DefaultMaxConcurrentApps bounds how many applications are swept
// concurrently within one pass.
const DefaultMaxConcurrentApps = 8

// Policy overrides the default per-app eligibility rule (ts+TxTimeout<now).
// Ok=false falls back to the default rule.
type Policy interface {
	Eligible(app string, createdAt, now time.Time) (eligible, ok bool)
}

// Config configures a Collector. Zero values fall back to the package
// defaults.
type Config struct {
	Interval          time.Duration
	TxTimeout         time.Duration
	MaxConcurrentApps int
	Deadline          time.Duration
	Policy            Policy
	Now               func() time.Time
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.TxTimeout <= 0 {
		c.TxTimeout = DefaultTxTimeout
	}
	if c.MaxConcurrentApps <= 0 {
		c.MaxConcurrentApps = DefaultMaxConcurrentApps
	}
	if c.Deadline <= 0 {
		c.Deadline = 3 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Collector is the per-process garbage collector worker.
type Collector struct {
	exec     *executor.Executor
	sessions *session.Manager
	notifier *notify.Notifier
	cfg      Config

	stop chan struct{}
	done chan struct{}
	wake chan struct{}
}

// New returns a Collector. Call Start to begin the background sweep loop.
func New(exec *executor.Executor, sessions *session.Manager, notifier *notify.Notifier, cfg Config) *Collector {
	cfg.setDefaults()
	return &Collector{
		exec:     exec,
		sessions: sessions,
		notifier: notifier,
		cfg:      cfg,
		wake:     make(chan struct{}, 1),
	}
}

// Start launches the background sweep loop. Stop must be called before the
// coordinator closes its session.
func (c *Collector) Start(ctx context.Context) {
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.loop(ctx)
}

// Stop signals the sweep loop to exit and waits for it to finish. Calling
// it again after the loop has stopped is a no-op.
func (c *Collector) Stop() {
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stop = nil
}

// Wake requests an immediate sweep instead of waiting for the next tick.
func (c *Collector) Wake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Collector) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := c.SweepOnce(ctx); err != nil {
			slog.Error("gc sweep failed", "error", err)
		}
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		case <-c.wake:
		case <-ticker.C:
		}
	}
}

// SweepOnce runs one pass over every application, skipping any app swept
// less than Interval ago and any app currently being swept by another
// worker. A faulty app never stalls the sweep of the others.
func (c *Collector) SweepOnce(ctx context.Context) error {
	var apps []string
	err := c.exec.Run(ctx, "gc.list_apps", c.cfg.Deadline, func(ctx context.Context) error {
		a, err := c.sessions.Persistent().Children(ctx, pathbuilder.AppsRoot())
		if err == store.ErrNodeMissing {
			return nil
		}
		apps = a
		return err
	})
	if err != nil {
		return err
	}

	tr := txcoord.NewTaskRunner(ctx, c.cfg.MaxConcurrentApps)
	for _, encApp := range apps {
		encApp := encApp
		tr.Go(func() error {
			c.sweepApp(ctx, encApp)
			return nil
		})
	}
	return tr.Wait()
}

func (c *Collector) sweepApp(ctx context.Context, encApp string) {
	app, err := pathbuilder.Decode(encApp)
	if err != nil {
		slog.Error("gc: bad app segment", "segment", encApp, "error", err)
		return
	}

	now := c.cfg.Now()

	lastRun, err := c.readLastRunTime(ctx, app)
	if err != nil {
		slog.Error("gc: read gclast_time failed", "app", app, "error", err)
		return
	}
	if !lastRun.IsZero() && lastRun.Add(c.cfg.Interval).After(now) {
		return
	}

	value := []byte(strconv.FormatInt(now.Unix(), 10))
	var acquired bool
	err = c.exec.Run(ctx, "gc.acquire_lock", c.cfg.Deadline, func(ctx context.Context) error {
		ok, err := c.sessions.Ephemeral().Acquire(ctx, pathbuilder.GCLock(app), value, c.cfg.Interval)
		acquired = ok
		return err
	})
	if err != nil {
		slog.Error("gc: acquire gclock failed", "app", app, "error", err)
		return
	}
	if !acquired {
		return // another worker is already sweeping this app
	}

	if err := c.sweepTransactions(ctx, app, now); err != nil {
		slog.Error("gc: sweep failed", "app", app, "error", err)
		_ = c.exec.Run(ctx, "gc.release_lock", c.cfg.Deadline, func(ctx context.Context) error {
			return c.sessions.Ephemeral().Release(ctx, pathbuilder.GCLock(app))
		})
		return
	}

	if err := c.writeLastRunTime(ctx, app, now); err != nil {
		slog.Error("gc: write gclast_time failed", "app", app, "error", err)
	}
}

func (c *Collector) sweepTransactions(ctx context.Context, app string, now time.Time) error {
	var children []string
	err := c.exec.Run(ctx, "gc.list_transactions", c.cfg.Deadline, func(ctx context.Context) error {
		ch, err := c.sessions.Persistent().Children(ctx, pathbuilder.TxRoot(app))
		if err == store.ErrNodeMissing {
			return nil
		}
		children = ch
		return err
	})
	if err != nil {
		return err
	}

	for _, name := range children {
		tx, ok := parseTxChildName(name)
		if !ok {
			continue
		}

		createdAt, err := c.readCreatedAt(ctx, app, tx)
		if err == store.ErrNodeMissing {
			continue // raced with a concurrent release
		}
		if err != nil {
			return err
		}

		if !c.eligible(app, createdAt, now) {
			continue
		}
		if err := c.notifier.NotifyFailure(ctx, app, tx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) eligible(app string, createdAt, now time.Time) bool {
	if c.cfg.Policy != nil {
		if eligible, ok := c.cfg.Policy.Eligible(app, createdAt, now); ok {
			return eligible
		}
	}
	return createdAt.Add(c.cfg.TxTimeout).Before(now)
}

func (c *Collector) readCreatedAt(ctx context.Context, app string, tx uint64) (time.Time, error) {
	var value []byte
	err := c.exec.Run(ctx, "gc.read_tx_ctime", c.cfg.Deadline, func(ctx context.Context) error {
		v, err := c.sessions.Persistent().Get(ctx, pathbuilder.TxNode(app, tx))
		value = v
		return err
	})
	if err != nil {
		return time.Time{}, err
	}
	secs, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0), nil
}

func (c *Collector) readLastRunTime(ctx context.Context, app string) (time.Time, error) {
	var value []byte
	var found bool
	err := c.exec.Run(ctx, "gc.read_gclast_time", c.cfg.Deadline, func(ctx context.Context) error {
		v, err := c.sessions.Persistent().Get(ctx, pathbuilder.GCLastRunTime(app))
		if err == store.ErrNodeMissing {
			return nil
		}
		found = true
		value = v
		return err
	})
	if err != nil || !found {
		return time.Time{}, err
	}
	secs, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0), nil
}

func (c *Collector) writeLastRunTime(ctx context.Context, app string, at time.Time) error {
	value := []byte(strconv.FormatInt(at.Unix(), 10))
	return c.exec.Run(ctx, "gc.write_gclast_time", c.cfg.Deadline, func(ctx context.Context) error {
		return c.sessions.Persistent().Set(ctx, pathbuilder.GCLastRunTime(app), value)
	})
}

// parseTxChildName reports whether name matches "tx<digits>" (as opposed to
// the "blacklist"/"validlist" siblings also living under the tx root).
func parseTxChildName(name string) (uint64, bool) {
	digits, ok := strings.CutPrefix(name, "tx")
	if !ok || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	seq, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}
