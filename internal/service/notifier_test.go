package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ppwm/matcher-server-go/internal/model"
	"github.com/ppwm/matcher-server-go/internal/repository"
	"github.com/ppwm/matcher-server-go/internal/sse"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, login string, event sse.Event) error {
	args := m.Called(ctx, login, event)
	return args.Error(0)
}

func completion() model.Completion {
	return model.Completion{
		Code: model.Code{ID: 7, Value: "ABC123"},
		Pair: [2]model.User{
			{ID: 1, Login: "alice", Email: "a@x.com"},
			{ID: 2, Login: "bob", Email: "b@x.com"},
		},
	}
}

func TestNotifier_OnComplete(t *testing.T) {
	ctx := context.Background()

	t.Run("records and sends once per code", func(t *testing.T) {
		store := repository.NewMemoryStore()
		sender := &recordingSender{}
		n := NewNotifier(store.Notifications(), nil, sender, nil, 1, 3)
		n.Start()

		n.OnComplete(ctx, completion())
		n.OnComplete(ctx, completion())
		n.Stop()

		sent := sender.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, []string{"alice", "bob"}, []string(sent[0].Names))
	})

	t.Run("publishes paired event to both logins", func(t *testing.T) {
		store := repository.NewMemoryStore()
		publisher := new(mockPublisher)
		publisher.On("Publish", ctx, mock.Anything, mock.MatchedBy(func(e sse.Event) bool {
			var payload PairedEvent
			return e.Type == sse.EventPaired &&
				json.Unmarshal(e.Data, &payload) == nil &&
				payload.Code == "ABC123"
		})).Return(nil)

		n := NewNotifier(store.Notifications(), nil, &recordingSender{}, publisher, 1, 3)
		n.Start()
		n.OnComplete(ctx, completion())
		n.Stop()

		publisher.AssertNumberOfCalls(t, "Publish", 2)
		publisher.AssertCalled(t, "Publish", ctx, "alice", mock.Anything)
		publisher.AssertCalled(t, "Publish", ctx, "bob", mock.Anything)
	})

	t.Run("delivery failure leaves row failed", func(t *testing.T) {
		store := repository.NewMemoryStore()
		sender := &recordingSender{err: errors.New("smtp: connection refused")}
		n := NewNotifier(store.Notifications(), nil, sender, nil, 1, 3)
		n.newID = func() string { return "fixed-id" }
		n.Start()

		n.OnComplete(ctx, completion())
		n.Stop()

		row, err := store.Notifications().FindByID(ctx, "fixed-id")
		require.NoError(t, err)
		assert.Equal(t, model.NotificationStatusFailed, row.Status)
		assert.Equal(t, 1, row.Attempts)
		require.NotNil(t, row.LastError)
		assert.Contains(t, *row.LastError, "connection refused")
	})

	t.Run("after stop the row stays pending", func(t *testing.T) {
		store := repository.NewMemoryStore()
		sender := &recordingSender{}
		n := NewNotifier(store.Notifications(), nil, sender, nil, 1, 3)
		n.newID = func() string { return "late" }
		n.Start()
		n.Stop()

		n.OnComplete(ctx, completion())

		row, err := store.Notifications().FindByID(ctx, "late")
		require.NoError(t, err)
		assert.Equal(t, model.NotificationStatusPending, row.Status)
		assert.Empty(t, sender.Sent())
	})
}

func TestNotifier_Deliver(t *testing.T) {
	ctx := context.Background()

	t.Run("a row is sent once", func(t *testing.T) {
		store := repository.NewMemoryStore()
		sender := &recordingSender{}
		n := NewNotifier(store.Notifications(), nil, sender, nil, 1, 3)
		row, _, err := store.Notifications().Create(ctx, model.CreatePairNotificationParams{ID: "n-1", CodeID: 7})
		require.NoError(t, err)

		require.NoError(t, n.Deliver(ctx, *row))
		assert.ErrorIs(t, n.Deliver(ctx, *row), ErrNotificationClaimed)
		assert.Len(t, sender.Sent(), 1)
	})

	t.Run("queued row picked up by retry is not sent again", func(t *testing.T) {
		store := repository.NewMemoryStore()
		sender := &recordingSender{}
		n := NewNotifier(store.Notifications(), nil, sender, nil, 1, 3)
		n.newID = func() string { return "queued" }

		n.OnComplete(ctx, completion())
		sent, err := n.RetryPending(ctx, -time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(1), sent)

		n.Start()
		n.Stop()

		assert.Len(t, sender.Sent(), 1)
		row, _ := store.Notifications().FindByID(ctx, "queued")
		assert.Equal(t, model.NotificationStatusSent, row.Status)
		assert.Equal(t, 1, row.Attempts)
	})
}

type failingNotifications struct {
	repository.PairNotificationRepository
	failCreate atomic.Int32
}

func (f *failingNotifications) Create(ctx context.Context, params model.CreatePairNotificationParams) (*model.PairNotification, bool, error) {
	if f.failCreate.Add(-1) >= 0 {
		return nil, false, errors.New("connection reset")
	}
	return f.PairNotificationRepository.Create(ctx, params)
}

func TestNotifier_RecoversUnrecordedCompletion(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	registry := NewCodeRegistry(store.Codes())
	notifications := &failingNotifications{PairNotificationRepository: store.Notifications()}
	notifications.failCreate.Store(1)
	sender := &recordingSender{}

	n := NewNotifier(notifications, registry, sender, nil, 1, 3)
	n.Start()

	codes, err := registry.Import(ctx, []string{"ABC123"})
	require.NoError(t, err)
	for _, login := range []string{"alice", "bob"} {
		user, err := store.Users().Upsert(ctx, model.UpsertUserParams{Login: login, Email: login + "@x.com"})
		require.NoError(t, err)
		_, err = registry.Bind(ctx, codes[0], *user, n.OnComplete)
		require.NoError(t, err)
	}
	n.Stop()
	assert.Empty(t, sender.Sent(), "outbox write failed")

	sent, err := n.RetryPending(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sent)

	sent, err = n.RetryPending(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Zero(t, sent)

	delivered := sender.Sent()
	require.Len(t, delivered, 1)
	assert.Equal(t, []string{"alice@x.com", "bob@x.com"}, []string(delivered[0].Recipients))
}

func TestNotifier_RetryPending(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	sender := &recordingSender{err: errors.New("temporary failure")}
	n := NewNotifier(store.Notifications(), nil, sender, nil, 1, 2)
	n.newID = func() string { return "retry-me" }
	n.Start()
	n.OnComplete(ctx, completion())
	n.Stop()

	sent, err := n.RetryPending(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, sent)

	row, _ := store.Notifications().FindByID(ctx, "retry-me")
	assert.Equal(t, 2, row.Attempts)

	sender.mu.Lock()
	sender.err = nil
	sender.mu.Unlock()

	sent, err = n.RetryPending(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, sent, "attempt limit reached")

	n.maxAttempts = 3
	sent, err = n.RetryPending(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sent)

	row, _ = store.Notifications().FindByID(ctx, "retry-me")
	assert.Equal(t, model.NotificationStatusSent, row.Status)
	assert.Len(t, sender.Sent(), 1)
}
