package model

import (
	"time"
)

type User struct {
	ID        int64     `db:"id" json:"id"`
	Login     string    `db:"login" json:"login"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	CodeID    *int64    `db:"code_id" json:"codeId,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

func (u *User) HasCode() bool {
	return u != nil && u.CodeID != nil
}

type UpsertUserParams struct {
	Login string `validate:"required,max=100"`
	Email string `validate:"required,email,max=254"`
	Name  string `validate:"max=255"`
}

// Identity is an already-authenticated caller as reported by the identity provider.
type Identity struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (i Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Login
}
