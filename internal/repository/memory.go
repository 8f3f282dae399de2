package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ppwm/matcher-server-go/internal/model"
)

// MemoryStore keeps codes, users and notifications in process memory.
// A single mutex serialises every operation, so each Bind is atomic.
type MemoryStore struct {
	mu sync.Mutex

	nextCodeID int64
	nextUserID int64

	codes         map[int64]model.Code
	users         map[int64]model.User
	usersByLogin  map[string]int64
	members       map[int64][]model.Member
	notifications map[string]model.PairNotification
	notifByCode   map[int64]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		codes:         make(map[int64]model.Code),
		users:         make(map[int64]model.User),
		usersByLogin:  make(map[string]int64),
		members:       make(map[int64][]model.Member),
		notifications: make(map[string]model.PairNotification),
		notifByCode:   make(map[int64]string),
	}
}

func (s *MemoryStore) Codes() CodeRepository {
	return &memoryCodeRepo{s}
}

func (s *MemoryStore) Users() UserRepository {
	return &memoryUserRepo{s}
}

func (s *MemoryStore) Notifications() PairNotificationRepository {
	return &memoryNotificationRepo{s}
}

type memoryCodeRepo struct {
	s *MemoryStore
}

func (r *memoryCodeRepo) FindByValue(ctx context.Context, value string) (*model.Code, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var found *model.Code
	for _, c := range r.s.codes {
		if c.Value != value {
			continue
		}
		if found == nil || c.ID < found.ID {
			c := c
			found = &c
		}
	}
	return found, nil
}

func (r *memoryCodeRepo) FindByID(ctx context.Context, id int64) (*model.Code, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.codes[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memoryCodeRepo) CreateMany(ctx context.Context, values []string) ([]model.Code, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	codes := make([]model.Code, 0, len(values))
	for _, value := range values {
		r.s.nextCodeID++
		c := model.Code{ID: r.s.nextCodeID, Value: value, CreatedAt: time.Now()}
		r.s.codes[c.ID] = c
		codes = append(codes, c)
	}
	return codes, nil
}

func (r *memoryCodeRepo) List(ctx context.Context, limit, offset int) ([]model.CodeListing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ids := make([]int64, 0, len(r.s.codes))
	for id := range r.s.codes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	listing := []model.CodeListing{}
	for i := offset; i < len(ids) && len(listing) < limit; i++ {
		id := ids[i]
		listing = append(listing, model.CodeListing{
			Code:        r.s.codes[id],
			MemberCount: len(r.s.members[id]),
		})
	}
	return listing, nil
}

func (r *memoryCodeRepo) Count(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.codes), nil
}

func (r *memoryCodeRepo) Members(ctx context.Context, codeID int64) ([]model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	members := r.s.members[codeID]
	users := make([]model.User, 0, len(members))
	for _, m := range members {
		users = append(users, r.s.users[m.UserID])
	}
	return users, nil
}

func (r *memoryCodeRepo) Bind(ctx context.Context, codeID, userID int64) (model.BindResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return model.BindResult{}, err
	}

	members := r.s.members[codeID]
	for _, m := range members {
		if m.UserID == userID {
			return model.BindResult{Outcome: model.BindOutcomeAlreadyMember}, nil
		}
	}
	if len(members) >= model.CodeCapacity {
		return model.BindResult{Outcome: model.BindOutcomeAlreadyPaired}, nil
	}

	user, ok := r.s.users[userID]
	if !ok {
		return model.BindResult{}, fmt.Errorf("bind code %d: user %d not found", codeID, userID)
	}
	// Mirrors the UNIQUE (user_id) constraint on code_members.
	if user.CodeID != nil {
		return model.BindResult{}, ErrConflict
	}

	now := time.Now()
	slot := len(members) + 1
	r.s.members[codeID] = append(members, model.Member{
		CodeID:  codeID,
		UserID:  userID,
		Slot:    slot,
		BoundAt: now,
	})

	id := codeID
	user.CodeID = &id
	user.UpdatedAt = now
	r.s.users[userID] = user

	return model.BindResult{Outcome: model.BindOutcomeBound, Slot: slot}, nil
}

func (r *memoryCodeRepo) FindUnnotified(ctx context.Context, limit int) ([]model.Code, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var codes []model.Code
	for id, members := range r.s.members {
		if len(members) < model.CodeCapacity {
			continue
		}
		if _, ok := r.s.notifByCode[id]; ok {
			continue
		}
		codes = append(codes, r.s.codes[id])
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i].ID < codes[j].ID })
	if len(codes) > limit {
		codes = codes[:limit]
	}
	return codes, nil
}

type memoryUserRepo struct {
	s *MemoryStore
}

func (r *memoryUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *memoryUserRepo) FindByLogin(ctx context.Context, login string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.usersByLogin[login]
	if !ok {
		return nil, nil
	}
	u := r.s.users[id]
	return &u, nil
}

func (r *memoryUserRepo) Upsert(ctx context.Context, params model.UpsertUserParams) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	if id, ok := r.s.usersByLogin[params.Login]; ok {
		u := r.s.users[id]
		u.Email = params.Email
		u.Name = params.Name
		u.UpdatedAt = now
		r.s.users[id] = u
		return &u, nil
	}

	r.s.nextUserID++
	u := model.User{
		ID:        r.s.nextUserID,
		Login:     params.Login,
		Name:      params.Name,
		Email:     params.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.s.users[u.ID] = u
	r.s.usersByLogin[u.Login] = u.ID
	return &u, nil
}

type memoryNotificationRepo struct {
	s *MemoryStore
}

func (r *memoryNotificationRepo) Create(ctx context.Context, params model.CreatePairNotificationParams) (*model.PairNotification, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if id, ok := r.s.notifByCode[params.CodeID]; ok {
		n := r.s.notifications[id]
		return &n, false, nil
	}

	n := model.PairNotification{
		ID:         params.ID,
		CodeID:     params.CodeID,
		CodeValue:  params.CodeValue,
		Recipients: append([]string(nil), params.Recipients...),
		Names:      append([]string(nil), params.Names...),
		Status:     model.NotificationStatusPending,
		CreatedAt:  time.Now(),
	}
	r.s.notifications[n.ID] = n
	r.s.notifByCode[n.CodeID] = n.ID
	return &n, true, nil
}

func (r *memoryNotificationRepo) FindByID(ctx context.Context, id string) (*model.PairNotification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n, ok := r.s.notifications[id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (r *memoryNotificationRepo) FindRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]model.PairNotification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var ns []model.PairNotification
	for _, n := range r.s.notifications {
		failed := n.Status == model.NotificationStatusFailed && n.Attempts < maxAttempts
		stale := n.Status == model.NotificationStatusPending && n.CreatedAt.Before(staleBefore)
		stuck := n.Status == model.NotificationStatusSending && n.ClaimedAt != nil && n.ClaimedAt.Before(staleBefore)
		if failed || stale || stuck {
			ns = append(ns, n)
		}
	}
	sort.Slice(ns, func(i, j int) bool { return ns[i].CreatedAt.Before(ns[j].CreatedAt) })
	if len(ns) > limit {
		ns = ns[:limit]
	}
	return ns, nil
}

func (r *memoryNotificationRepo) Claim(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n, ok := r.s.notifications[id]
	if !ok {
		return false, nil
	}
	switch n.Status {
	case model.NotificationStatusPending, model.NotificationStatusFailed:
	case model.NotificationStatusSending:
		if n.ClaimedAt == nil || !n.ClaimedAt.Before(staleBefore) {
			return false, nil
		}
	default:
		return false, nil
	}

	now := time.Now()
	n.Status = model.NotificationStatusSending
	n.ClaimedAt = &now
	r.s.notifications[id] = n
	return true, nil
}

func (r *memoryNotificationRepo) MarkSent(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n, ok := r.s.notifications[id]
	if !ok {
		return nil
	}
	now := time.Now()
	n.Status = model.NotificationStatusSent
	n.Attempts++
	n.LastError = nil
	n.SentAt = &now
	r.s.notifications[id] = n
	return nil
}

func (r *memoryNotificationRepo) MarkFailed(ctx context.Context, id string, errorMsg string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n, ok := r.s.notifications[id]
	if !ok {
		return nil
	}
	n.Status = model.NotificationStatusFailed
	n.Attempts++
	n.LastError = &errorMsg
	r.s.notifications[id] = n
	return nil
}
