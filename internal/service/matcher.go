package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ppwm/matcher-server-go/internal/model"
)

// Matcher reconciles an authenticated identity with a submitted pairing code.
type Matcher struct {
	directory  *UserDirectory
	registry   *CodeRegistry
	onComplete CompletionFunc
}

func NewMatcher(directory *UserDirectory, registry *CodeRegistry, onComplete CompletionFunc) *Matcher {
	return &Matcher{
		directory:  directory,
		registry:   registry,
		onComplete: onComplete,
	}
}

// Reconcile upserts the caller, resolves the code and binds the caller to it.
// Unknown, full or conflicting codes are reported on the returned attempt;
// only storage failures come back as an error.
func (m *Matcher) Reconcile(ctx context.Context, identity model.Identity, email, submittedCode string) (*model.MatchAttempt, error) {
	attempt := &model.MatchAttempt{}

	email = strings.TrimSpace(email)
	if email == "" {
		email = identity.Email
	}
	params := model.UpsertUserParams{
		Login: identity.Login,
		Email: email,
		Name:  identity.DisplayName(),
	}

	if messages := m.directory.Validate(params); len(messages) > 0 {
		for _, msg := range messages {
			attempt.AddUserError(msg)
		}
		user, err := m.directory.Current(ctx, identity.Login)
		if err != nil {
			return nil, fmt.Errorf("find user: %w", err)
		}
		attempt.User = user
	} else {
		user, err := m.directory.UpsertByLogin(ctx, params)
		if err != nil {
			return nil, err
		}
		attempt.User = user
	}

	code, err := m.registry.Lookup(ctx, strings.TrimSpace(submittedCode))
	if err != nil {
		return nil, fmt.Errorf("lookup code: %w", err)
	}
	attempt.Code = code

	if code == nil || len(attempt.UserErrors) > 0 {
		m.logAttempt(identity, attempt)
		return attempt, nil
	}

	user := attempt.User
	if user.HasCode() && *user.CodeID != code.ID {
		attempt.AddCodeError(model.MsgCodeHeld)
		m.logAttempt(identity, attempt)
		return attempt, nil
	}

	result, err := m.registry.Bind(ctx, *code, *user, m.onComplete)
	switch {
	case errors.Is(err, ErrBindContended):
		attempt.AddCodeError(model.MsgTryAgain)
		m.logAttempt(identity, attempt)
		return attempt, nil
	case err != nil:
		return nil, err
	}

	if result.Outcome == model.BindOutcomeAlreadyPaired {
		attempt.AddCodeError(model.MsgAlreadyPaired)
		m.logAttempt(identity, attempt)
		return attempt, nil
	}

	codeID := code.ID
	user.CodeID = &codeID

	// The bind is stored; a failed read here only leaves the pair unreported.
	members, err := m.registry.Members(ctx, code.ID)
	if err != nil {
		log.Warn().Err(err).Str("login", identity.Login).Msg("failed to load pair after bind")
	} else {
		attempt.Pair = partners(members, user.ID)
	}

	m.logAttempt(identity, attempt)
	return attempt, nil
}

// Pair returns the users sharing user's code, excluding user.
func (m *Matcher) Pair(ctx context.Context, user *model.User) (*model.Code, []model.User, error) {
	if !user.HasCode() {
		return nil, nil, nil
	}
	code, err := m.registry.FindByID(ctx, *user.CodeID)
	if err != nil {
		return nil, nil, fmt.Errorf("find code: %w", err)
	}
	members, err := m.registry.Members(ctx, *user.CodeID)
	if err != nil {
		return nil, nil, fmt.Errorf("load pair: %w", err)
	}
	return code, partners(members, user.ID), nil
}

func (m *Matcher) logAttempt(identity model.Identity, attempt *model.MatchAttempt) {
	event := log.Info()
	if !attempt.Valid() {
		event = log.Warn().Strs("messages", attempt.Messages())
	}
	event.
		Str("login", identity.Login).
		Bool("valid", attempt.Valid()).
		Int("pairSize", len(attempt.Pair)).
		Msg("match attempt")
}

func partners(members []model.User, userID int64) []model.User {
	pair := make([]model.User, 0, len(members))
	for _, u := range members {
		if u.ID != userID {
			pair = append(pair, u)
		}
	}
	return pair
}
