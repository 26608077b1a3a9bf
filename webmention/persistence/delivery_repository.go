package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dfryer1193/webpress/shared/db"
	"github.com/dfryer1193/webpress/webmention/domain"
)

var _ domain.DeliveryRepository = (*SQLiteDeliveryRepository)(nil)

// SQLiteDeliveryRepository implements domain.DeliveryRepository using SQLite.
// Every attempt is appended to webmention_deliveries; webmention_targets keeps the
// latest state per source/target pair.
type SQLiteDeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *SQLiteDeliveryRepository {
	return &SQLiteDeliveryRepository{
		db: db,
	}
}

const insertDeliveryQuery = `
	INSERT INTO webmention_deliveries (source, target, endpoint, status_code, error, sent_at)
	VALUES (?, ?, ?, ?, ?, ?)
`

const upsertTargetQuery = `
	INSERT INTO webmention_targets (source, target, delivered, attempts, last_attempt_at)
	VALUES (?, ?, ?, 1, ?)
	ON CONFLICT(source, target) DO UPDATE SET
		delivered = webmention_targets.delivered OR excluded.delivered,
		attempts = webmention_targets.attempts + 1,
		last_attempt_at = excluded.last_attempt_at
`

// Record appends the attempt and updates the per-target state in one transaction.
func (r *SQLiteDeliveryRepository) Record(ctx context.Context, d domain.Delivery) error {
	if d.Source == "" || d.Target == "" {
		return errors.New("delivery source and target cannot be empty")
	}
	if d.SentAt.IsZero() {
		d.SentAt = time.Now().UTC()
	}

	return db.RunInTransaction(ctx, r.db, func(txCtx context.Context) error {
		executor := db.GetExecutor(txCtx, r.db)

		_, err := executor.ExecContext(txCtx, insertDeliveryQuery,
			d.Source,
			d.Target,
			d.Endpoint,
			d.StatusCode,
			d.Error,
			d.SentAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert delivery: %w", err)
		}

		_, err = executor.ExecContext(txCtx, upsertTargetQuery,
			d.Source,
			d.Target,
			d.Succeeded(),
			d.SentAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update delivery target: %w", err)
		}

		return nil
	})
}

const deliveredQuery = `
	SELECT delivered FROM webmention_targets WHERE source = ? AND target = ?
`

func (r *SQLiteDeliveryRepository) Delivered(ctx context.Context, source string, target string) (bool, error) {
	var delivered bool
	err := db.GetExecutor(ctx, r.db).QueryRowContext(ctx, deliveredQuery, source, target).Scan(&delivered)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query delivery state: %w", err)
	}
	return delivered, nil
}

const listBySourceQuery = `
	SELECT source, target, endpoint, status_code, error, sent_at
	FROM webmention_deliveries
	WHERE source = ?
	ORDER BY sent_at ASC, id ASC
`

// ListBySource returns every recorded attempt for source, oldest first.
func (r *SQLiteDeliveryRepository) ListBySource(ctx context.Context, source string) ([]domain.Delivery, error) {
	rows, err := db.GetExecutor(ctx, r.db).QueryContext(ctx, listBySourceQuery, source)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []domain.Delivery
	for rows.Next() {
		var d domain.Delivery
		if err := rows.Scan(&d.Source, &d.Target, &d.Endpoint, &d.StatusCode, &d.Error, &d.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deliveries: %w", err)
	}

	return deliveries, nil
}
