package postgres

import (
	"context"
	"fmt"
	"time"
)

// LockEmailTable marks (id, key) as being processed.
// Fails if the email was already sent or is being sent by another worker
func (db *DB) LockEmailTable(ctx context.Context, id, key string) error {
	rows, err := db.pool.Exec(ctx, `INSERT INTO email_lock(id, key, status, updated)
	VALUES($1, $2, 1, $3)
	ON CONFLICT (id, key) DO UPDATE SET
	status = 1,
	updated = EXCLUDED.updated
	WHERE email_lock.status = 0`, id, key, time.Now())
	if err != nil {
		return fmt.Errorf("can't lock email table: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't lock email table, already processed")
	}
	return nil
}

// UnLockEmailTable releases the lock, value 2 means the email was sent
func (db *DB) UnLockEmailTable(ctx context.Context, id, key string, value *int) error {
	rows, err := db.pool.Exec(ctx, `UPDATE email_lock SET
	status = $3,
	updated = $4
	WHERE id = $1 and key = $2`, id, key, *value, time.Now())
	if err != nil {
		return fmt.Errorf("can't unlock email table: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't unlock email table, no records found")
	}
	return nil
}
