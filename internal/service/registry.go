package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ppwm/matcher-server-go/internal/model"
	"github.com/ppwm/matcher-server-go/internal/repository"
	"github.com/ppwm/matcher-server-go/internal/util"
)

// ErrBindContended is returned when a bind lost the race for a slot twice in a row.
var ErrBindContended = errors.New("bind contended")

// CompletionFunc receives the pair formed when a bind fills a code's last slot.
type CompletionFunc func(ctx context.Context, completion model.Completion)

type CodeRegistry struct {
	codes repository.CodeRepository
}

func NewCodeRegistry(codes repository.CodeRepository) *CodeRegistry {
	return &CodeRegistry{codes: codes}
}

// Lookup matches value exactly. A missing code is (nil, nil).
func (r *CodeRegistry) Lookup(ctx context.Context, value string) (*model.Code, error) {
	if value == "" {
		return nil, nil
	}
	return r.codes.FindByValue(ctx, value)
}

// Bind adds user to code. onComplete runs once, after the bind that takes the
// last slot has been stored; it never runs for the first member or for a code
// that was already full. Work after the commit ignores ctx cancellation, and a
// failure there is logged rather than returned: the code stays visible to
// PendingCompletions until its notification is recorded.
func (r *CodeRegistry) Bind(
	ctx context.Context,
	code model.Code,
	user model.User,
	onComplete CompletionFunc,
) (model.BindResult, error) {
	result, err := r.codes.Bind(ctx, code.ID, user.ID)
	if errors.Is(err, repository.ErrConflict) {
		log.Debug().
			Str("code", util.MaskCode(code.Value)).
			Str("login", user.Login).
			Msg("bind conflict, retrying")
		result, err = r.codes.Bind(ctx, code.ID, user.ID)
	}
	if errors.Is(err, repository.ErrConflict) {
		return model.BindResult{}, ErrBindContended
	}
	if err != nil {
		return model.BindResult{}, fmt.Errorf("bind code: %w", err)
	}

	log.Info().
		Str("code", util.MaskCode(code.Value)).
		Str("login", user.Login).
		Str("outcome", string(result.Outcome)).
		Int("slot", result.Slot).
		Msg("code bind")

	if result.Outcome != model.BindOutcomeBound || result.Slot != model.CodeCapacity || onComplete == nil {
		return result, nil
	}

	completeCtx := context.WithoutCancel(ctx)
	completion, err := r.completion(completeCtx, code)
	if err != nil {
		log.Error().
			Err(err).
			Str("code", util.MaskCode(code.Value)).
			Msg("pair completed but not announced, leaving for retry")
		return result, nil
	}
	onComplete(completeCtx, completion)

	return result, nil
}

// PendingCompletions rebuilds the completion of every full code that has no
// notification recorded yet.
func (r *CodeRegistry) PendingCompletions(ctx context.Context, limit int) ([]model.Completion, error) {
	codes, err := r.codes.FindUnnotified(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("find unnotified codes: %w", err)
	}

	completions := make([]model.Completion, 0, len(codes))
	for _, code := range codes {
		completion, err := r.completion(ctx, code)
		if err != nil {
			return nil, err
		}
		completions = append(completions, completion)
	}
	return completions, nil
}

func (r *CodeRegistry) completion(ctx context.Context, code model.Code) (model.Completion, error) {
	members, err := r.codes.Members(ctx, code.ID)
	if err != nil {
		return model.Completion{}, fmt.Errorf("load pair: %w", err)
	}
	if len(members) != model.CodeCapacity {
		return model.Completion{}, fmt.Errorf("load pair: code %d has %d members", code.ID, len(members))
	}

	completion := model.Completion{Code: code}
	copy(completion.Pair[:], members)
	return completion, nil
}

// Members returns the users bound to code in slot order.
func (r *CodeRegistry) Members(ctx context.Context, codeID int64) ([]model.User, error) {
	return r.codes.Members(ctx, codeID)
}

func (r *CodeRegistry) FindByID(ctx context.Context, id int64) (*model.Code, error) {
	return r.codes.FindByID(ctx, id)
}

// Import creates one code per non-blank value. Duplicate values are kept.
func (r *CodeRegistry) Import(ctx context.Context, values []string) ([]model.Code, error) {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		cleaned = append(cleaned, v)
	}
	if len(cleaned) == 0 {
		return []model.Code{}, nil
	}

	codes, err := r.codes.CreateMany(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("import codes: %w", err)
	}

	log.Info().Int("count", len(codes)).Msg("codes imported")
	return codes, nil
}

// Listing returns a page of codes with membership counts and the total.
func (r *CodeRegistry) Listing(ctx context.Context, limit, offset int) ([]model.CodeListing, int, error) {
	codes, err := r.codes.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list codes: %w", err)
	}
	total, err := r.codes.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count codes: %w", err)
	}
	if codes == nil {
		codes = []model.CodeListing{}
	}
	return codes, total, nil
}

// ImportText splits a newline-separated body into code values.
func ImportText(body string) []string {
	return strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
}
