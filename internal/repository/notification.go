package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ppwm/matcher-server-go/internal/model"
)

type PairNotificationRepository interface {
	// Create inserts the outbox row for a code. created is false when the code
	// already has one, in which case the existing row is returned.
	Create(ctx context.Context, params model.CreatePairNotificationParams) (n *model.PairNotification, created bool, err error)
	FindByID(ctx context.Context, id string) (*model.PairNotification, error)
	// FindRetryable returns failed rows under maxAttempts, pending rows created
	// before staleBefore and sending rows claimed before staleBefore.
	FindRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]model.PairNotification, error)
	// Claim moves a pending or failed row, or a sending row claimed before
	// staleBefore, to sending. It reports false when another sender holds it.
	Claim(ctx context.Context, id string, staleBefore time.Time) (bool, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errorMsg string) error
}

type pairNotificationRepo struct {
	db sqlxDB
}

func NewPairNotificationRepository(db *sqlx.DB) PairNotificationRepository {
	return &pairNotificationRepo{db: db}
}

func (r *pairNotificationRepo) Create(ctx context.Context, params model.CreatePairNotificationParams) (*model.PairNotification, bool, error) {
	var n model.PairNotification
	err := r.db.GetContext(ctx, &n, `
		INSERT INTO pair_notifications (id, code_id, code_value, recipients, names)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code_id) DO NOTHING
		RETURNING *
	`, params.ID, params.CodeID, params.CodeValue, pq.Array(params.Recipients), pq.Array(params.Names))
	created, err := HandleNotFound(&n, err)
	if err != nil {
		return nil, false, err
	}
	if created != nil {
		return created, true, nil
	}

	var existing model.PairNotification
	if err := r.db.GetContext(ctx, &existing, `
		SELECT * FROM pair_notifications WHERE code_id = $1
	`, params.CodeID); err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *pairNotificationRepo) FindByID(ctx context.Context, id string) (*model.PairNotification, error) {
	var n model.PairNotification
	err := r.db.GetContext(ctx, &n, `SELECT * FROM pair_notifications WHERE id = $1`, id)
	return HandleNotFound(&n, err)
}

func (r *pairNotificationRepo) FindRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]model.PairNotification, error) {
	var ns []model.PairNotification
	err := r.db.SelectContext(ctx, &ns, `
		SELECT * FROM pair_notifications
		WHERE (status = $1 AND attempts < $2)
		   OR (status = $3 AND created_at < $4)
		   OR (status = $5 AND claimed_at < $4)
		ORDER BY created_at
		LIMIT $6
	`, model.NotificationStatusFailed, maxAttempts, model.NotificationStatusPending, staleBefore,
		model.NotificationStatusSending, limit)
	if err != nil {
		return nil, err
	}
	return ns, nil
}

func (r *pairNotificationRepo) Claim(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pair_notifications SET
			status = $2,
			claimed_at = $3
		WHERE id = $1
		  AND (status IN ($4, $5) OR (status = $2 AND claimed_at < $6))
	`, id, model.NotificationStatusSending, time.Now(),
		model.NotificationStatusPending, model.NotificationStatusFailed, staleBefore)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *pairNotificationRepo) MarkSent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE pair_notifications SET
			status = $2,
			attempts = attempts + 1,
			last_error = NULL,
			sent_at = $3
		WHERE id = $1
	`, id, model.NotificationStatusSent, time.Now())
	return err
}

func (r *pairNotificationRepo) MarkFailed(ctx context.Context, id string, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE pair_notifications SET
			status = $2,
			attempts = attempts + 1,
			last_error = $3
		WHERE id = $1
	`, id, model.NotificationStatusFailed, errorMsg)
	return err
}
