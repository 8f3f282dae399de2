package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ppwm/matcher-server-go/internal/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindByLogin(ctx context.Context, login string) (*model.User, error)
	// Upsert creates the user or overwrites email and name in place. code_id is never touched.
	Upsert(ctx context.Context, params model.UpsertUserParams) (*model.User, error)
}

type userRepo struct {
	db sqlxDB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	return HandleNotFound(&user, err)
}

func (r *userRepo) FindByLogin(ctx context.Context, login string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE login = $1`, login)
	return HandleNotFound(&user, err)
}

func (r *userRepo) Upsert(ctx context.Context, params model.UpsertUserParams) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		INSERT INTO users (login, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (login) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			updated_at = $4
		RETURNING *
	`, params.Login, params.Email, params.Name, time.Now())
	if err != nil {
		return nil, err
	}
	return &user, nil
}
