package lock

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// MySQLLocker uses GET_LOCK advisory locks. A lock lives as long as the
// connection holding it, so the ttl passed to Acquire is not enforced.
type MySQLLocker struct {
	db    *sql.DB
	wait  time.Duration
	mu    sync.Mutex
	conns map[string]*sql.Conn
}

// NewMySQLLocker constructs a MySQL-based advisory lock manager. wait is how
// long GET_LOCK blocks for a lock held elsewhere; zero does not block.
func NewMySQLLocker(db *sql.DB, wait time.Duration) *MySQLLocker {
	return &MySQLLocker{
		db:    db,
		wait:  wait,
		conns: make(map[string]*sql.Conn),
	}
}

// Acquire obtains a named MySQL advisory lock and holds a connection.
func (l *MySQLLocker) Acquire(ctx context.Context, key string, _ time.Duration) error {
	l.mu.Lock()
	if _, exists := l.conns[key]; exists {
		l.mu.Unlock()
		return ErrAlreadyHeld
	}
	l.mu.Unlock()

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return err
	}

	var acquired sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", key, int(l.wait.Seconds())).Scan(&acquired); err != nil {
		_ = conn.Close()
		return err
	}
	if !acquired.Valid || acquired.Int64 != 1 {
		_ = conn.Close()
		return ErrNotAcquired
	}

	l.mu.Lock()
	l.conns[key] = conn
	l.mu.Unlock()

	return nil
}

// Release frees a named MySQL advisory lock and closes its connection.
func (l *MySQLLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	conn, ok := l.conns[key]
	if ok {
		delete(l.conns, key)
	}
	l.mu.Unlock()

	if !ok {
		return nil
	}

	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", key); err != nil {
		return err
	}
	return nil
}
