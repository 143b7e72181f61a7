package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// rowsPerInsert bounds a multi-row INSERT so bind parameters stay well below
// every dialect's limit.
const rowsPerInsert = 500

type txHandle interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Commit() error
	Rollback() error
}

type connHandle interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

var (
	_ txHandle   = (*sql.Tx)(nil)
	_ connHandle = (*sql.Conn)(nil)
)

// Insertable is a row staged with Session.Add and written on Flush.
type Insertable interface {
	Table() string
	Columns() []string
	Values() []any
}

// Session is a single-use handle over one pooled connection. The transaction
// begins with the first statement; rows added with Add are buffered until
// Flush or Commit. A Session is not safe for concurrent use.
type Session struct {
	conn    connHandle
	tx      txHandle
	dialect *dialect
	pending []Insertable
	closed  bool
}

func newSession(conn connHandle, d *dialect) *Session {
	return &Session{conn: conn, dialect: d}
}

// Dialect returns the name of the session's SQL dialect.
func (s *Session) Dialect() string { return s.dialect.name }

// InTx reports whether a transaction is currently open.
func (s *Session) InTx() bool { return s.tx != nil }

func (s *Session) ensureTx(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx != nil {
		return nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	s.tx = tx
	return nil
}

// Exec runs a statement written with '?' placeholders inside the session transaction.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := s.ensureTx(ctx); err != nil {
		return nil, err
	}
	res, err := s.tx.ExecContext(ctx, s.dialect.rebind(query), args...)
	return res, classify(err)
}

// Query runs a query written with '?' placeholders inside the session transaction.
func (s *Session) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := s.ensureTx(ctx); err != nil {
		return nil, err
	}
	rows, err := s.tx.QueryContext(ctx, s.dialect.rebind(query), args...)
	return rows, classify(err)
}

// Row is the result of QueryRow.
type Row struct {
	row *sql.Row
	err error
}

// Scan copies the row's columns into dest.
func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return classify(r.row.Scan(dest...))
}

// QueryRow runs a query expected to return at most one row.
func (s *Session) QueryRow(ctx context.Context, query string, args ...any) *Row {
	if err := s.ensureTx(ctx); err != nil {
		return &Row{err: err}
	}
	return &Row{row: s.tx.QueryRowContext(ctx, s.dialect.rebind(query), args...)}
}

// Add stages rows for insertion. Nothing is sent to the database until Flush.
func (s *Session) Add(rows ...Insertable) error {
	if s.closed {
		return ErrSessionClosed
	}
	s.pending = append(s.pending, rows...)
	return nil
}

// Pending returns the number of staged rows.
func (s *Session) Pending() int { return len(s.pending) }

// Flush writes staged rows with one multi-row INSERT per run of rows sharing
// a table. The buffer is emptied whether or not the write succeeds.
func (s *Session) Flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.ensureTx(ctx); err != nil {
		return err
	}
	pending := s.pending
	s.pending = nil

	for start := 0; start < len(pending); {
		end := start + 1
		for end < len(pending) && end-start < rowsPerInsert && pending[end].Table() == pending[start].Table() {
			end++
		}
		if err := s.insertRows(ctx, pending[start:end]); err != nil {
			return err
		}
		start = end
	}
	return nil
}

func (s *Session) insertRows(ctx context.Context, rows []Insertable) error {
	cols := rows[0].Columns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = s.dialect.quote(c)
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(rows[0].Table())
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") VALUES ")
	args := make([]any, 0, len(rows)*len(cols))
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
		args = append(args, r.Values()...)
	}
	_, err := s.tx.ExecContext(ctx, s.dialect.rebind(b.String()), args...)
	return classify(err)
}

// Commit flushes staged rows and commits the open transaction. A failed
// flush leaves the transaction open for the caller to roll back.
func (s *Session) Commit(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := s.Flush(ctx); err != nil {
		return err
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return classify(tx.Commit())
}

// Rollback discards staged rows and rolls back the open transaction, if any.
func (s *Session) Rollback() error {
	s.pending = nil
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return classify(err)
	}
	return nil
}

// Close abandons any open transaction and returns the connection to the pool.
// Calling Close more than once is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil

	var errs []error
	if s.tx != nil {
		if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, err)
		}
		s.tx = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
