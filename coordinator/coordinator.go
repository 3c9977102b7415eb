// Package coordinator wires every component into the single API surface
// callable from any language binding: begin_tx, acquire_lock, release_lock,
// register_updated_key, get_updated_key_list, notify_failure,
// is_blacklisted, get_valid_transaction_id, is_xg, and the datastore
// groomer lock.
package coordinator

import (
	"context"
	"time"

	"github.com/txcoord/txcoord/audit"
	"github.com/txcoord/txcoord/blacklist"
	"github.com/txcoord/txcoord/executor"
	"github.com/txcoord/txcoord/gc"
	"github.com/txcoord/txcoord/groomer"
	"github.com/txcoord/txcoord/idalloc"
	"github.com/txcoord/txcoord/journal"
	"github.com/txcoord/txcoord/lockmgr"
	"github.com/txcoord/txcoord/notify"
	"github.com/txcoord/txcoord/pathbuilder"
	"github.com/txcoord/txcoord/session"
)

// Config configures a Coordinator's timing constants. A zero CallDeadline
// falls back to 3s and a zero MaxCallRetries to executor.DefaultMaxRetries;
// GC is passed to package gc, which applies its own defaults.
type Config struct {
	CallDeadline   time.Duration
	MaxCallRetries int
	// MaxGroupsForXG bounds how many entity groups one XG transaction may
	// hold locks on simultaneously. Zero falls back to
	// lockmgr.DefaultMaxGroupsForXG.
	MaxGroupsForXG int
	GC             gc.Config

	// Audit, when AuditBucket is non-empty, enables ArchiveBlacklist uploads
	// to S3; with it empty ArchiveBlacklist is a no-op. The Coordinator does
	// not schedule uploads itself.
	AuditBucket string
	Audit       audit.Config
}

func (c *Config) setDefaults() {
	if c.CallDeadline <= 0 {
		c.CallDeadline = 3 * time.Second
	}
	if c.MaxCallRetries <= 0 {
		c.MaxCallRetries = executor.DefaultMaxRetries
	}
}

// Coordinator is the assembled transaction coordinator: one session, one
// executor, and every component built on top of them.
type Coordinator struct {
	sessions *session.Manager
	exec     *executor.Executor
	deadline time.Duration

	alloc     *idalloc.Allocator
	locks     *lockmgr.LockManager
	journal   *journal.Journal
	blacklist *blacklist.Blacklist
	notifier  *notify.Notifier
	groomer   *groomer.Lock
	gc        *gc.Collector
	archiver  *audit.Archiver
}

// New assembles a Coordinator over a freshly opened session (via open) and
// starts its garbage collector loop.
func New(ctx context.Context, open session.Opener, cfg Config) (*Coordinator, error) {
	cfg.setDefaults()

	sessions, err := session.New(open)
	if err != nil {
		return nil, err
	}

	exec := executor.New(sessions, cfg.MaxCallRetries)
	bl := blacklist.New(exec, sessions, cfg.CallDeadline)
	jr := journal.New(exec, sessions, cfg.CallDeadline)
	lm := lockmgr.New(exec, sessions, bl, cfg.CallDeadline, cfg.MaxGroupsForXG)
	nt := notify.New(exec, sessions, bl, jr, lm, cfg.CallDeadline)

	c := &Coordinator{
		sessions:  sessions,
		exec:      exec,
		deadline:  cfg.CallDeadline,
		alloc:     idalloc.New(exec, sessions, cfg.CallDeadline),
		locks:     lm,
		journal:   jr,
		blacklist: bl,
		notifier:  nt,
		groomer:   groomer.New(exec, sessions, cfg.CallDeadline),
		gc:        gc.New(exec, sessions, nt, cfg.GC),
	}
	if cfg.AuditBucket != "" {
		client := audit.Connect(cfg.Audit)
		c.archiver = audit.NewArchiver(client, cfg.AuditBucket, exec, sessions, cfg.CallDeadline)
	}
	c.gc.Start(ctx)
	return c, nil
}

// ListApps returns every application with at least one allocated
// transaction ID, for callers (e.g. a periodic audit loop) that need to
// enumerate applications without reaching into the session layer directly.
func (c *Coordinator) ListApps(ctx context.Context) ([]string, error) {
	var encoded []string
	err := c.exec.Run(ctx, "list_apps", c.deadline, func(ctx context.Context) error {
		names, err := c.sessions.Persistent().Children(ctx, pathbuilder.AppsRoot())
		encoded = names
		return err
	})
	if err != nil {
		return nil, err
	}
	apps := make([]string, 0, len(encoded))
	for _, name := range encoded {
		app, err := pathbuilder.Decode(name)
		if err != nil {
			continue
		}
		apps = append(apps, app)
	}
	return apps, nil
}

// ArchiveBlacklist uploads a point-in-time snapshot of app's blacklist to
// S3. It is a no-op if no audit bucket was configured.
func (c *Coordinator) ArchiveBlacklist(ctx context.Context, app string) error {
	if c.archiver == nil {
		return nil
	}
	return c.archiver.ArchiveBlacklist(ctx, app)
}

// BeginTx creates a new transaction for app, returning its assigned ID.
func (c *Coordinator) BeginTx(ctx context.Context, app string, isXG bool) (uint64, error) {
	return c.alloc.NewTxID(ctx, app, isXG)
}

// AcquireLock acquires key's lock root on behalf of tx.
func (c *Coordinator) AcquireLock(ctx context.Context, app string, tx uint64, key string) error {
	return c.locks.AcquireLock(ctx, app, tx, key)
}

// ReleaseLock commits tx, releasing every lock root it holds.
func (c *Coordinator) ReleaseLock(ctx context.Context, app string, tx uint64) error {
	return c.locks.ReleaseLock(ctx, app, tx)
}

// RegisterUpdatedKey records that currentTx touched key, to be rolled
// forward to targetTx if currentTx later fails.
func (c *Coordinator) RegisterUpdatedKey(ctx context.Context, app string, currentTx, targetTx uint64, key string) error {
	return c.journal.RegisterUpdatedKey(ctx, app, currentTx, targetTx, key)
}

// GetUpdatedKeyList returns every key tx registered via RegisterUpdatedKey.
func (c *Coordinator) GetUpdatedKeyList(ctx context.Context, app string, tx uint64) ([]journal.UpdatedKey, error) {
	return c.journal.GetUpdatedKeyList(ctx, app, tx)
}

// NotifyFailure invalidates tx, as a client reporting its own failure or
// the garbage collector reclaiming an expired one would.
func (c *Coordinator) NotifyFailure(ctx context.Context, app string, tx uint64) error {
	return c.notifier.NotifyFailure(ctx, app, tx)
}

// IsBlacklisted reports whether tx has been invalidated.
func (c *Coordinator) IsBlacklisted(ctx context.Context, app string, tx uint64) (bool, error) {
	return c.blacklist.IsBlacklisted(ctx, app, tx)
}

// GetValidTransactionID returns the transaction ID a reader should consider
// authoritative for key, or 0 if none is recorded.
func (c *Coordinator) GetValidTransactionID(ctx context.Context, app, key string) (uint64, error) {
	return c.notifier.GetValidTransactionID(ctx, app, key)
}

// IsXG reports whether tx was begun as a cross-group transaction.
func (c *Coordinator) IsXG(ctx context.Context, app string, tx uint64) (bool, error) {
	return c.locks.IsXG(ctx, app, tx)
}

// AcquireDatastoreGroomerLock acquires the single globally-named groomer
// lock, returning false if another holder already owns it.
func (c *Coordinator) AcquireDatastoreGroomerLock(ctx context.Context) (bool, error) {
	return c.groomer.Acquire(ctx)
}

// ReleaseDatastoreGroomerLock releases the groomer lock.
func (c *Coordinator) ReleaseDatastoreGroomerLock(ctx context.Context) error {
	return c.groomer.Release(ctx)
}

// WakeGC requests an immediate GC sweep instead of waiting for the next tick.
func (c *Coordinator) WakeGC() {
	c.gc.Wake()
}

// Close stops the GC loop and then the session, in that order.
func (c *Coordinator) Close() error {
	c.gc.Stop()
	return c.sessions.Stop()
}
