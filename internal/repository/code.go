package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ppwm/matcher-server-go/internal/database"
	"github.com/ppwm/matcher-server-go/internal/model"
)

type CodeRepository interface {
	// FindByValue returns the oldest code with exactly this value.
	FindByValue(ctx context.Context, value string) (*model.Code, error)
	FindByID(ctx context.Context, id int64) (*model.Code, error)
	CreateMany(ctx context.Context, values []string) ([]model.Code, error)
	List(ctx context.Context, limit, offset int) ([]model.CodeListing, error)
	Count(ctx context.Context) (int, error)
	// Members returns the users bound to a code in slot order.
	Members(ctx context.Context, codeID int64) ([]model.User, error)
	// Bind adds userID to the code and points the user at it, atomically.
	// It returns ErrConflict when a concurrent bind took the slot first.
	Bind(ctx context.Context, codeID, userID int64) (model.BindResult, error)
	// FindUnnotified returns full codes that have no pair notification row yet.
	FindUnnotified(ctx context.Context, limit int) ([]model.Code, error)
}

type codeRepo struct {
	db *sqlx.DB
}

func NewCodeRepository(db *sqlx.DB) CodeRepository {
	return &codeRepo{db: db}
}

func (r *codeRepo) FindByValue(ctx context.Context, value string) (*model.Code, error) {
	var code model.Code
	err := r.db.GetContext(ctx, &code, `
		SELECT * FROM codes
		WHERE value = $1
		ORDER BY id
		LIMIT 1
	`, value)
	return HandleNotFound(&code, err)
}

func (r *codeRepo) FindByID(ctx context.Context, id int64) (*model.Code, error) {
	var code model.Code
	err := r.db.GetContext(ctx, &code, `SELECT * FROM codes WHERE id = $1`, id)
	return HandleNotFound(&code, err)
}

func (r *codeRepo) CreateMany(ctx context.Context, values []string) ([]model.Code, error) {
	codes := make([]model.Code, 0, len(values))
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, value := range values {
			var code model.Code
			if err := tx.GetContext(ctx, &code, `
				INSERT INTO codes (value)
				VALUES ($1)
				RETURNING *
			`, value); err != nil {
				return fmt.Errorf("insert code: %w", err)
			}
			codes = append(codes, code)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *codeRepo) List(ctx context.Context, limit, offset int) ([]model.CodeListing, error) {
	var codes []model.CodeListing
	err := r.db.SelectContext(ctx, &codes, `
		SELECT c.*, COUNT(m.user_id) AS member_count
		FROM codes c
		LEFT JOIN code_members m ON m.code_id = c.id
		GROUP BY c.id
		ORDER BY c.id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *codeRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM codes`)
	return count, err
}

func (r *codeRepo) Members(ctx context.Context, codeID int64) ([]model.User, error) {
	var users []model.User
	err := r.db.SelectContext(ctx, &users, `
		SELECT u.* FROM users u
		JOIN code_members m ON m.user_id = u.id
		WHERE m.code_id = $1
		ORDER BY m.slot
	`, codeID)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *codeRepo) Bind(ctx context.Context, codeID, userID int64) (model.BindResult, error) {
	var result model.BindResult
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var members []model.Member
		if err := tx.SelectContext(ctx, &members, `
			SELECT * FROM code_members
			WHERE code_id = $1
			ORDER BY slot
		`, codeID); err != nil {
			return err
		}

		for _, m := range members {
			if m.UserID == userID {
				result = model.BindResult{Outcome: model.BindOutcomeAlreadyMember}
				return nil
			}
		}
		if len(members) >= model.CodeCapacity {
			result = model.BindResult{Outcome: model.BindOutcomeAlreadyPaired}
			return nil
		}

		slot := len(members) + 1
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO code_members (code_id, user_id, slot)
			VALUES ($1, $2, $3)
		`, codeID, userID, slot); err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET
				code_id = $2,
				updated_at = $3
			WHERE id = $1
		`, userID, codeID, time.Now()); err != nil {
			return err
		}

		result = model.BindResult{Outcome: model.BindOutcomeBound, Slot: slot}
		return nil
	})
	if err != nil {
		return model.BindResult{}, err
	}
	return result, nil
}

func (r *codeRepo) FindUnnotified(ctx context.Context, limit int) ([]model.Code, error) {
	var codes []model.Code
	err := r.db.SelectContext(ctx, &codes, `
		SELECT c.* FROM codes c
		WHERE (SELECT COUNT(*) FROM code_members m WHERE m.code_id = c.id) >= $1
		  AND NOT EXISTS (SELECT 1 FROM pair_notifications n WHERE n.code_id = c.id)
		ORDER BY c.id
		LIMIT $2
	`, model.CodeCapacity, limit)
	if err != nil {
		return nil, err
	}
	return codes, nil
}
