package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"decivue/application/ports"

	"github.com/jmoiron/sqlx"
)

// AdvisoryLocker hands out session level advisory locks. The lock lives
// on a dedicated connection until released, so ttl is not used.
type AdvisoryLocker struct {
	db *sqlx.DB
}

func NewAdvisoryLocker(db *sqlx.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

var _ ports.Locker = (*AdvisoryLocker)(nil)

func (l *AdvisoryLocker) TryLock(ctx context.Context, resource string, _ time.Duration) (ports.Lease, bool, error) {
	conn, err := l.db.Connx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get connection: %w", err)
	}

	var acquired bool
	if err := conn.GetContext(ctx, &acquired, `SELECT pg_try_advisory_lock(hashtext($1))`, resource); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}
	return &advisoryLease{conn: conn, resource: resource}, true, nil
}

type advisoryLease struct {
	conn     *sqlx.Conn
	resource string
}

func (l *advisoryLease) Release(ctx context.Context) error {
	defer l.conn.Close()
	var released bool
	err := l.conn.GetContext(ctx, &released, `SELECT pg_advisory_unlock(hashtext($1))`, l.resource)
	if err != nil && err != sql.ErrConnDone {
		return fmt.Errorf("failed to release advisory lock: %w", err)
	}
	return nil
}
