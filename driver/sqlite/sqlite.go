// Package sqlite is an embedded driver.Driver over SQLite.
//
// Queries may hold several statements separated by semicolons; each one
// yields its own result. Beyond plain SQL the driver understands:
//
//	BEGIN [TRANSACTION] / COMMIT [TRANSACTION] / CANCEL [TRANSACTION]
//	LIVE SELECT <* | fields> FROM <table> [WHERE <condition>]
//	KILL '<live id>' | KILL $param
//
// Parameters are referenced as $name. LIVE SELECT installs temporary
// triggers on the single pinned connection; their notifications reach the
// feed returned by Listen.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/seamlezz/livebridge/codec"
	"github.com/seamlezz/livebridge/driver"
)

// DriverName is the database/sql driver registered by Open.
const DriverName = "sqlite3_livebridge"

var (
	errLiveInTransaction = errors.New("live queries cannot run inside a transaction")
	errNestedTransaction = errors.New("cannot begin a transaction within a transaction")
)

var registerOnce sync.Once

func register() {
	registerOnce.Do(func() {
		sql.Register(DriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc(notifyFunc, notify, false)
			},
		})
	})
}

// Option configures a DB.
type Option func(*options)

type options struct {
	busyTimeout time.Duration
	foreignKeys bool
}

// WithBusyTimeout sets how long SQLite waits on a locked database file.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithForeignKeys enables foreign key enforcement.
func WithForeignKeys() Option {
	return func(o *options) { o.foreignKeys = true }
}

// DB is a SQLite database implementing driver.Driver.
type DB struct {
	db     *sqlx.DB
	feeds  map[*feed]struct{}
	mu     sync.Mutex
	closed bool
}

var _ driver.Driver = (*DB)(nil)

// Open opens the database at dsn on a single pinned connection. Temporary
// triggers and in-memory databases belong to a connection, so the pool
// never grows or recycles it.
func Open(dsn string, opts ...Option) (*DB, error) {
	register()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	x, err := sqlx.Open(DriverName, dsn)
	if err != nil {
		return nil, err
	}
	x.SetMaxOpenConns(1)
	x.SetMaxIdleConns(1)
	x.SetConnMaxLifetime(0)
	x.SetConnMaxIdleTime(0)

	if err := x.Ping(); err != nil {
		_ = x.Close()
		return nil, err
	}

	pragmas := make([]string, 0, 2)
	if o.busyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", o.busyTimeout.Milliseconds()))
	}
	if o.foreignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys = ON")
	}
	for _, p := range pragmas {
		if _, err := x.Exec(p); err != nil {
			_ = x.Close()
			return nil, err
		}
	}

	Logger().Debug("sqlite database opened", zap.String("dsn", dsn))
	return &DB{db: x, feeds: make(map[*feed]struct{})}, nil
}

// Execute runs every statement of query. Only an unsplittable query or a
// closed database fails the call; statement failures are results.
func (db *DB) Execute(ctx context.Context, query string, vars codec.Object) (*driver.Response, error) {
	if db.isClosed() {
		return nil, driver.ErrClosed
	}

	stmts, err := split(query)
	if err != nil {
		return nil, err
	}

	x := &execution{ctx: ctx, db: db, vars: vars, resp: &driver.Response{}, failed: -1}
	for _, st := range stmts {
		x.step(st)
	}
	x.finish()

	Logger().Debug("query executed", zap.Int("statements", len(x.resp.Results)))
	return x.resp, nil
}

// Listen returns the feed of the live statements in resp. Each feed has a
// single listener.
func (db *DB) Listen(_ context.Context, resp *driver.Response) (driver.Feed, error) {
	ids := resp.LiveIDs()
	if len(ids) == 0 {
		return nil, driver.ErrNoLiveQuery
	}
	f := routes.get(ids[0])
	if f == nil || f.db != db {
		return nil, fmt.Errorf("live query %s is no longer active", ids[0])
	}
	if !f.listen() {
		return nil, fmt.Errorf("live query %s already has a listener", ids[0])
	}
	return f, nil
}

// Close ends every feed and closes the database.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	feeds := db.feeds
	db.feeds = nil
	db.mu.Unlock()

	for f := range feeds {
		routes.remove(f.detach()...)
		f.signal()
	}

	Logger().Debug("sqlite database closed", zap.Int("feeds", len(feeds)))
	return db.db.Close()
}

func (db *DB) isClosed() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.closed
}

func (db *DB) newFeed() *feed {
	f := newFeed(db)
	db.mu.Lock()
	if db.feeds != nil {
		db.feeds[f] = struct{}{}
	}
	db.mu.Unlock()
	return f
}

// release forgets a closed feed and drops the triggers of its ids.
func (db *DB) release(f *feed, ids []string) error {
	routes.remove(ids...)

	db.mu.Lock()
	closed := db.closed
	delete(db.feeds, f)
	db.mu.Unlock()
	if closed {
		return nil
	}

	var errs []error
	for _, id := range ids {
		for _, stmt := range dropSQL(id) {
			if _, err := db.db.ExecContext(context.Background(), stmt); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// run executes one plain statement on ext.
func (db *DB) run(ctx context.Context, ext sqlx.ExtContext, st statement, vars codec.Object) (any, error) {
	args, err := bindArgs(st.params, vars)
	if err != nil {
		return nil, err
	}

	if st.kind != kindRows {
		_, err := ext.ExecContext(ctx, st.text, args...)
		return nil, err
	}

	rows, err := ext.QueryxContext(ctx, st.text, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]any, 0)
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// execution is the state of one Execute: the open transaction, if any,
// and the feed shared by its live statements.
type execution struct {
	ctx  context.Context
	db   *DB
	vars codec.Object
	resp *driver.Response
	tx   *sqlx.Tx
	feed *feed

	start  int // first result of the open transaction
	failed int // result that failed the open transaction, or -1
}

func (x *execution) add(r driver.Result) {
	x.resp.Results = append(x.resp.Results, r)
}

func (x *execution) step(st statement) {
	switch st.kind {
	case kindBegin:
		if x.tx != nil {
			x.txError(errNestedTransaction)
			return
		}
		tx, err := x.db.db.BeginTxx(x.ctx, nil)
		if err != nil {
			x.add(driver.Result{Err: err})
			return
		}
		x.tx, x.start, x.failed = tx, len(x.resp.Results), -1

	case kindCommit:
		if x.tx == nil {
			x.add(driver.Result{Err: errors.New("cannot COMMIT without starting a transaction")})
			return
		}
		x.commit()

	case kindCancel:
		if x.tx == nil {
			x.add(driver.Result{Err: errors.New("cannot CANCEL without starting a transaction")})
			return
		}
		x.rollback(driver.ErrCancelledTransaction)

	case kindLive:
		if x.tx != nil {
			x.txError(errLiveInTransaction)
			return
		}
		if x.feed == nil {
			x.feed = x.db.newFeed()
		}
		id, err := x.db.live(x.ctx, x.feed, st, x.vars)
		if err != nil {
			x.add(driver.Result{Err: err})
			return
		}
		x.add(driver.Result{Value: id, LiveID: id})

	case kindKill:
		if x.tx != nil {
			x.txError(errLiveInTransaction)
			return
		}
		x.add(driver.Result{Err: x.db.kill(x.ctx, st, x.vars)})

	default:
		if x.tx == nil {
			v, err := x.db.run(x.ctx, x.db.db, st, x.vars)
			x.add(driver.Result{Value: v, Err: err})
			return
		}
		if x.failed >= 0 {
			x.add(driver.Result{Err: driver.ErrFailedTransaction})
			return
		}
		v, err := x.db.run(x.ctx, x.tx, st, x.vars)
		if err != nil {
			x.failed = len(x.resp.Results)
		}
		x.add(driver.Result{Value: v, Err: err})
	}
}

// txError records err for a statement of the open transaction and fails
// the transaction if nothing else has.
func (x *execution) txError(err error) {
	if x.failed < 0 {
		x.failed = len(x.resp.Results)
	}
	x.add(driver.Result{Err: err})
}

func (x *execution) commit() {
	if x.failed >= 0 {
		if err := x.tx.Rollback(); err != nil {
			Logger().Warn("rollback failed transaction", zap.Error(err))
		}
		x.mark(driver.ErrFailedTransaction, x.failed)
	} else if err := x.tx.Commit(); err != nil {
		Logger().Debug("commit failed", zap.Error(err))
		x.mark(driver.ErrFailedTransaction, -1)
	}
	x.tx = nil
}

func (x *execution) rollback(reason error) {
	if err := x.tx.Rollback(); err != nil {
		Logger().Warn("rollback transaction", zap.Error(err))
	}
	x.mark(reason, -1)
	x.tx = nil
}

// mark replaces every result of the open transaction except keep with err.
func (x *execution) mark(err error, keep int) {
	for i := x.start; i < len(x.resp.Results); i++ {
		if i != keep {
			x.resp.Results[i] = driver.Result{Err: err}
		}
	}
}

// finish cancels a transaction left open and discards a feed no live
// statement attached to.
func (x *execution) finish() {
	if x.tx != nil {
		x.rollback(driver.ErrCancelledTransaction)
	}
	if x.feed != nil && x.feed.size() == 0 {
		_ = x.feed.Close()
	}
}
