// Package segment provides a MySQL-backed, double-buffered range allocator
// for monotonically increasing int64 IDs, keyed by an arbitrary tag.
//
// It is a companion to the UUIDv7 generator, not a dependency of it: the
// core generator never talks to a database. This allocator exists for
// callers that need cross-process, compact integer IDs (e.g. a sharded
// counter column) alongside UUIDv7 values, and is grounded on the same
// double-buffer segment design the rest of this module's lineage uses for
// that problem.
package segment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Range is a contiguous block of IDs handed out by the database, consumed
// one at a time via Cursor.
type Range struct {
	Base   int64 // exclusive lower bound (last ID of the previous range)
	Max    int64 // inclusive upper bound
	Step   int   // width of the range
	Cursor int64 // last ID granted (starts at Base), advanced atomically
}

// Remaining reports how many IDs are left in r.
func (r *Range) Remaining() int64 {
	cur := atomic.LoadInt64(&r.Cursor)
	return r.Max - cur
}

// rangeFetcher is the dependency DoubleBuffer needs from its backing store.
// *DAO satisfies it against MySQL; tests substitute a fake.
type rangeFetcher interface {
	FetchNextRange(ctx context.Context, tag string) (*Range, error)
}

// DoubleBuffer serves IDs from a current Range while prefetching the next
// one in the background, so that callers rarely block on a database
// round-trip.
type DoubleBuffer struct {
	tag string
	dao rangeFetcher
	log *slog.Logger

	current *Range
	next    *Range

	nextReady bool
	isLoading int32
	mu        sync.Mutex
}

// NewDoubleBuffer constructs a DoubleBuffer for tag, backed by dao.
func NewDoubleBuffer(tag string, dao rangeFetcher, log *slog.Logger) *DoubleBuffer {
	if log == nil {
		log = slog.Default()
	}
	return &DoubleBuffer{tag: tag, dao: dao, log: log}
}

// Init loads the first Range for this buffer. Must be called before NextID.
func (b *DoubleBuffer) Init(ctx context.Context) error {
	r, err := b.dao.FetchNextRange(ctx, b.tag)
	if err != nil {
		return fmt.Errorf("segment: init %q: %w", b.tag, err)
	}
	b.current = r
	return nil
}

// NextID allocates and returns the next ID, transparently switching to a
// prefetched range or fetching synchronously if none is ready.
func (b *DoubleBuffer) NextID(ctx context.Context) (int64, error) {
	if b.current == nil {
		return 0, errors.New("segment: buffer not initialized")
	}

	id := atomic.AddInt64(&b.current.Cursor, 1)
	if id <= b.current.Max {
		b.checkAndLoadNext(ctx)
		return id, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if id := atomic.AddInt64(&b.current.Cursor, 1); id <= b.current.Max {
		return id, nil
	}

	if b.nextReady && b.next != nil {
		b.current = b.next
		b.next = nil
		b.nextReady = false
		return atomic.AddInt64(&b.current.Cursor, 1), nil
	}

	r, err := b.dao.FetchNextRange(ctx, b.tag)
	if err != nil {
		return 0, fmt.Errorf("segment: fallback fetch %q: %w", b.tag, err)
	}
	b.current = r
	b.next = nil
	b.nextReady = false
	return atomic.AddInt64(&b.current.Cursor, 1), nil
}

// checkAndLoadNext fires an asynchronous prefetch once the current range
// has dropped below 20% remaining, at most one prefetch in flight at a time.
func (b *DoubleBuffer) checkAndLoadNext(ctx context.Context) {
	if b.nextReady || atomic.LoadInt32(&b.isLoading) == 1 {
		return
	}

	threshold := int64(float64(b.current.Step) * 0.2)
	if b.current.Remaining() > threshold {
		return
	}

	if !atomic.CompareAndSwapInt32(&b.isLoading, 0, 1) {
		return
	}

	go func() {
		defer atomic.StoreInt32(&b.isLoading, 0)

		r, err := b.dao.FetchNextRange(ctx, b.tag)
		if err != nil {
			b.log.Warn("segment: prefetch failed", "tag", b.tag, "error", err)
			return
		}

		b.mu.Lock()
		b.next = r
		b.nextReady = true
		b.mu.Unlock()
		b.log.Debug("segment: prefetched range", "tag", b.tag, "base", r.Base, "max", r.Max)
	}()
}

// DAO performs the transactional range reservation against the
// leaf_alloc table: max_id BIGINT, step INT, keyed by biz_tag.
type DAO struct {
	db *sql.DB
}

// NewDAO opens a connection pool against dsn.
func NewDAO(dsn string) (*DAO, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("segment: open dsn: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	return &DAO{db: db}, nil
}

// FetchNextRange atomically reserves the next (max_id-step, max_id] block
// for tag.
func (d *DAO) FetchNextRange(ctx context.Context, tag string) (*Range, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE leaf_alloc SET max_id = max_id + step WHERE biz_tag = ?", tag); err != nil {
		return nil, err
	}

	var maxID int64
	var step int
	if err := tx.QueryRowContext(ctx,
		"SELECT max_id, step FROM leaf_alloc WHERE biz_tag = ?", tag).Scan(&maxID, &step); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &Range{
		Base:   maxID - int64(step),
		Max:    maxID,
		Step:   step,
		Cursor: maxID - int64(step),
	}, nil
}

// Allocator dispenses IDs for any number of tags, lazily creating a
// DoubleBuffer per tag on first use.
type Allocator struct {
	dao     rangeFetcher
	log     *slog.Logger
	buffers map[string]*DoubleBuffer
	mu      sync.RWMutex
}

// NewAllocator constructs an Allocator backed by dsn. A nil logger falls
// back to slog.Default().
func NewAllocator(dsn string, log *slog.Logger) (*Allocator, error) {
	dao, err := NewDAO(dsn)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Allocator{dao: dao, log: log, buffers: make(map[string]*DoubleBuffer)}, nil
}

// Next returns the next unique ID for tag, creating its buffer on first use.
func (a *Allocator) Next(ctx context.Context, tag string) (int64, error) {
	a.mu.RLock()
	buf, ok := a.buffers[tag]
	a.mu.RUnlock()
	if ok {
		return buf.NextID(ctx)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if buf, ok = a.buffers[tag]; ok {
		return buf.NextID(ctx)
	}

	buf = NewDoubleBuffer(tag, a.dao, a.log)
	if err := buf.Init(ctx); err != nil {
		return 0, fmt.Errorf("segment: allocate buffer for %q: %w", tag, err)
	}

	a.buffers[tag] = buf
	return buf.NextID(ctx)
}
