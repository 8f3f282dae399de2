package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/ppwm/matcher-server-go/internal/errors"
	"github.com/ppwm/matcher-server-go/internal/model"
	"github.com/ppwm/matcher-server-go/internal/repository"
)

type UserDirectory struct {
	users    repository.UserRepository
	validate *validator.Validate
}

func NewUserDirectory(users repository.UserRepository) *UserDirectory {
	return &UserDirectory{
		users:    users,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate returns human readable messages for every invalid field of params.
func (d *UserDirectory) Validate(params model.UpsertUserParams) []string {
	err := d.validate.Struct(params)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fieldMessage(fe))
	}
	return messages
}

// UpsertByLogin creates the user or overwrites email and name. An existing
// code binding is left as is.
func (d *UserDirectory) UpsertByLogin(ctx context.Context, params model.UpsertUserParams) (*model.User, error) {
	if messages := d.Validate(params); len(messages) > 0 {
		return nil, apperrors.ValidationError(messages[0]).WithDetails(messages)
	}

	user, err := d.users.Upsert(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return user, nil
}

// Current looks a user up by login without creating one.
func (d *UserDirectory) Current(ctx context.Context, login string) (*model.User, error) {
	if login == "" {
		return nil, nil
	}
	return d.users.FindByLogin(ctx, login)
}

func (d *UserDirectory) HasCode(user *model.User) bool {
	return user.HasCode()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s can't be blank", fe.Field())
	case "email":
		return fmt.Sprintf("%s is invalid", fe.Field())
	case "max":
		return fmt.Sprintf("%s is too long (maximum is %s characters)", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
