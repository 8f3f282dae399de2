package repository

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppwm/matcher-server-go/internal/database"
	"github.com/ppwm/matcher-server-go/internal/model"
)

func TestCodeRepository_Bind(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	codes := NewCodeRepository(db.DB)
	users := NewUserRepository(db.DB)

	value := fmt.Sprintf("PG-%d", time.Now().UnixNano())
	created, err := codes.CreateMany(ctx, []string{value})
	require.NoError(t, err)
	code := created[0]

	newUser := func(login string) *model.User {
		u, err := users.Upsert(ctx, model.UpsertUserParams{Login: login, Email: login + "@x.com"})
		require.NoError(t, err)
		return u
	}

	t.Run("first bind takes slot one", func(t *testing.T) {
		u := newUser(value + "-a")
		r, err := codes.Bind(ctx, code.ID, u.ID)
		require.NoError(t, err)
		assert.Equal(t, model.BindResult{Outcome: model.BindOutcomeBound, Slot: 1}, r)

		reloaded, err := users.FindByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, reloaded.CodeID)
		assert.Equal(t, code.ID, *reloaded.CodeID)
	})

	t.Run("racing second binds admit exactly one", func(t *testing.T) {
		contenders := make([]*model.User, 8)
		for i := range contenders {
			contenders[i] = newUser(fmt.Sprintf("%s-r%d", value, i))
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		outcomes := map[string]int{}
		for _, u := range contenders {
			wg.Add(1)
			go func(userID int64) {
				defer wg.Done()
				r, err := codes.Bind(ctx, code.ID, userID)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					assert.ErrorIs(t, err, ErrConflict)
					outcomes["conflict"]++
					return
				}
				outcomes[string(r.Outcome)]++
			}(u.ID)
		}
		wg.Wait()

		assert.Equal(t, 1, outcomes[string(model.BindOutcomeBound)])

		members, err := codes.Members(ctx, code.ID)
		require.NoError(t, err)
		assert.Len(t, members, model.CodeCapacity)
	})
}

func TestUserRepository_Upsert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	users := NewUserRepository(db.DB)
	login := fmt.Sprintf("upsert-%d", time.Now().UnixNano())

	first, err := users.Upsert(ctx, model.UpsertUserParams{Login: login, Email: "a@x.com", Name: "A"})
	require.NoError(t, err)
	second, err := users.Upsert(ctx, model.UpsertUserParams{Login: login, Email: "b@x.com", Name: "B"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "b@x.com", second.Email)
	assert.Equal(t, "B", second.Name)
}

func TestPairNotificationRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	codes := NewCodeRepository(db.DB)
	repo := NewPairNotificationRepository(db.DB)

	created, err := codes.CreateMany(ctx, []string{fmt.Sprintf("N-%d", time.Now().UnixNano())})
	require.NoError(t, err)
	codeID := created[0].ID

	params := model.CreatePairNotificationParams{
		ID:         fmt.Sprintf("n-%d", time.Now().UnixNano()),
		CodeID:     codeID,
		CodeValue:  created[0].Value,
		Recipients: []string{"a@x.com", "b@x.com"},
		Names:      []string{"alice", "bob"},
	}
	n, isNew, err := repo.Create(ctx, params)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, []string(n.Recipients))

	params.ID = params.ID + "-dup"
	dup, isNew, err := repo.Create(ctx, params)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, n.ID, dup.ID)

	claimed, err := repo.Claim(ctx, n.ID, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = repo.Claim(ctx, n.ID, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, claimed)

	unnotified, err := codes.FindUnnotified(ctx, 1000)
	require.NoError(t, err)
	for _, c := range unnotified {
		assert.NotEqual(t, codeID, c.ID)
	}
}

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.Connect(url)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	return db
}
