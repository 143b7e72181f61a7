// Package sqldb owns the database engine and hands out scoped sessions over it.
// Postgres (lib/pq), MySQL/MariaDB (go-sql-driver/mysql) and SQLite
// (modernc.org/sqlite) are linked in; oracle and mssql URLs are accepted but
// need a driver registered by the embedding program.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mindfulweb/internal/domain"
)

type options struct {
	extraSchemes    []string
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	ping            bool
	pingTimeout     time.Duration
	migrate         bool
	openDB          func(driver, dsn string) (*sql.DB, error)
}

func defaultOptions() options {
	return options{
		maxOpenConns:    10,
		maxIdleConns:    5,
		connMaxLifetime: 5 * time.Minute,
		ping:            true,
		pingTimeout:     5 * time.Second,
		openDB:          sql.Open,
	}
}

// Option customises New.
type Option func(*options)

// WithExtraSchemes accepts additional scheme variants such as "postgresql+asyncpg".
func WithExtraSchemes(schemes ...string) Option {
	return func(o *options) { o.extraSchemes = append(o.extraSchemes, schemes...) }
}

// WithPool sets the connection pool limits. Zero values keep the defaults.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) Option {
	return func(o *options) {
		if maxOpen > 0 {
			o.maxOpenConns = maxOpen
		}
		if maxIdle > 0 {
			o.maxIdleConns = maxIdle
		}
		if lifetime > 0 {
			o.connMaxLifetime = lifetime
		}
	}
}

// WithPingTimeout bounds the connectivity check done by New. Default: 5s.
func WithPingTimeout(d time.Duration) Option { return func(o *options) { o.pingTimeout = d } }

// WithoutPing skips the connectivity check done by New.
func WithoutPing() Option { return func(o *options) { o.ping = false } }

// WithMigrate runs Migrate as part of New.
func WithMigrate() Option { return func(o *options) { o.migrate = true } }

// Manager owns the engine (the *sql.DB pool) and the session factory. It is
// built once at startup, shared by all requests and closed once at exit.
type Manager struct {
	logger  *slog.Logger
	desc    ConnectionDescriptor
	dialect *dialect
	engine  *sql.DB

	// open is the session factory.
	open func(ctx context.Context) (*Session, error)

	closeOnce sync.Once
	closeErr  error
}

// New validates rawURL, builds the engine and verifies it.
//
// Validation failures are KindConfiguration errors. Engine failures are
// KindConnection errors: ReasonInvalidEngineConfig when the driver or DSN is
// unusable, ReasonEngineCreationFailed for anything else (ping, migration).
func New(logger *slog.Logger, rawURL string, opts ...Option) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	desc, err := NewValidator(o.extraSchemes...).Validate(rawURL)
	if err != nil {
		logger.Error("database url rejected", "error", err)
		return nil, err
	}

	m := &Manager{logger: logger, desc: desc}
	if err := m.createEngine(o); err != nil {
		return nil, err
	}
	m.open = m.openSession

	if o.ping || o.migrate {
		ctx, cancel := context.WithTimeout(context.Background(), o.pingTimeout)
		defer cancel()
		if o.ping {
			if err := m.engine.PingContext(ctx); err != nil {
				_ = m.engine.Close()
				return nil, m.engineError(domain.ReasonEngineCreationFailed, err)
			}
		}
		if o.migrate {
			if err := m.Migrate(ctx); err != nil {
				_ = m.engine.Close()
				return nil, m.engineError(domain.ReasonEngineCreationFailed, err)
			}
		}
	}

	logger.Info("database engine ready", "dialect", m.dialect.name, "url", desc.Redacted())
	return m, nil
}

func (m *Manager) createEngine(o options) error {
	d, err := dialectFor(m.desc)
	if err != nil {
		return m.engineError(domain.ReasonInvalidEngineConfig, err)
	}
	dsn, err := d.dsn(m.desc)
	if err != nil {
		return m.engineError(domain.ReasonInvalidEngineConfig, err)
	}
	db, err := o.openDB(d.driver, dsn)
	if err != nil {
		return m.engineError(domain.ReasonInvalidEngineConfig, err)
	}

	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(o.maxIdleConns)
	db.SetConnMaxLifetime(o.connMaxLifetime)
	if d.isMemory(m.desc) {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	m.dialect = d
	m.engine = db
	return nil
}

func (m *Manager) engineError(reason domain.Reason, cause error) error {
	err := &domain.Error{Kind: domain.KindConnection, Reason: reason, Cause: cause}
	m.logger.Error(err.Error())
	return err
}

// Engine returns the underlying connection pool.
func (m *Manager) Engine() *sql.DB { return m.engine }

// Descriptor returns the validated connection string.
func (m *Manager) Descriptor() ConnectionDescriptor { return m.desc }

// Dialect returns the SQL dialect name: postgres, mysql, sqlite, oracle or mssql.
func (m *Manager) Dialect() string { return m.dialect.name }

// Ping verifies a connection can be established.
func (m *Manager) Ping(ctx context.Context) error {
	return classify(m.engine.PingContext(ctx))
}

// Close closes the engine. Only the first call has an effect.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		if m.engine != nil {
			m.closeErr = m.engine.Close()
		}
	})
	return m.closeErr
}

func (m *Manager) openSession(ctx context.Context) (*Session, error) {
	conn, err := m.engine.Conn(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return newSession(conn, m.dialect), nil
}

// Acquisition is one scoped session request. Next yields the session at most
// once; Release must be called exactly once when the caller is done.
type Acquisition struct {
	m        *Manager
	ctx      context.Context
	sess     *Session
	yielded  bool
	released bool
}

// Acquire starts a scoped session request. No connection is taken until Next.
func (m *Manager) Acquire(ctx context.Context) *Acquisition {
	return &Acquisition{m: m, ctx: ctx}
}

// Next opens and returns the session on the first call. Every later call
// returns ErrAcquisitionDone.
func (a *Acquisition) Next() (*Session, error) {
	if a.yielded || a.released {
		return nil, ErrAcquisitionDone
	}
	a.yielded = true
	sess, err := a.m.open(a.ctx)
	if err != nil {
		a.released = true
		return nil, a.m.translate(err)
	}
	a.sess = sess
	return sess, nil
}

// Release ends the scope. With a nil cause the session is closed and close
// failures are only logged. With a non-nil cause the session is rolled back
// and then closed, secondary failures are logged as warnings, and the
// translated cause is returned.
func (a *Acquisition) Release(cause error) error {
	if a.released {
		return cause
	}
	a.released = true

	if cause != nil && a.sess != nil {
		if err := a.sess.Rollback(); err != nil {
			a.m.logger.Warn(fmt.Sprintf("failed to rollback session: %v", err))
		}
	}
	if a.sess != nil {
		if err := a.sess.Close(); err != nil {
			a.m.logger.Warn(fmt.Sprintf("failed to close session gracefully: %v", err))
		}
	}
	if cause == nil {
		return nil
	}
	return a.m.translate(cause)
}

// translate maps a failure raised inside a session scope onto the taxonomy.
// Errors that already carry a domain kind pass through unchanged.
func (m *Manager) translate(err error) error {
	var typed *domain.Error
	if errors.As(err, &typed) {
		return err
	}
	kind := domain.KindUnexpectedSession
	if domain.IsPersistence(err) || isDriverError(err) {
		kind = domain.KindSession
	}
	out := domain.NewError(kind, "", err)
	m.logger.Error(out.Error())
	return out
}

// WithSession runs fn with a fresh session and releases it afterwards on
// every path, including a panic in fn, which is re-raised after cleanup.
// fn is responsible for committing; anything not committed is discarded.
func (m *Manager) WithSession(ctx context.Context, fn func(ctx context.Context, s *Session) error) (err error) {
	acq := m.Acquire(ctx)
	sess, err := acq.Next()
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = acq.Release(fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()
	return acq.Release(fn(ctx, sess))
}

// WithUnitOfWork implements domain.SessionProvider on top of WithSession.
func (m *Manager) WithUnitOfWork(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) error {
	return m.WithSession(ctx, func(ctx context.Context, s *Session) error {
		return fn(ctx, s)
	})
}

// String describes the manager without exposing credentials.
func (m *Manager) String() string {
	return fmt.Sprintf("sqldb.Manager(%s, %s)", m.dialect.name, strings.TrimSpace(m.desc.Redacted()))
}
