package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ppwm/matcher-server-go/internal/model"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Identify(ctx context.Context, token string) (model.Identity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(model.Identity), args.Error(1)
}

func TestCachedSource(t *testing.T) {
	ctx := context.Background()

	t.Run("caches successful lookups", func(t *testing.T) {
		src := new(mockSource)
		src.On("Identify", ctx, "tok").Return(model.Identity{Login: "alice"}, nil).Once()

		c := NewCachedSource(src, time.Minute)
		defer c.Stop()

		for i := 0; i < 3; i++ {
			ident, err := c.Identify(ctx, "tok")
			require.NoError(t, err)
			assert.Equal(t, "alice", ident.Login)
		}
		src.AssertNumberOfCalls(t, "Identify", 1)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("does not cache failures", func(t *testing.T) {
		src := new(mockSource)
		src.On("Identify", ctx, "tok").Return(model.Identity{}, ErrInvalidToken).Once()
		src.On("Identify", ctx, "tok").Return(model.Identity{Login: "alice"}, nil).Once()

		c := NewCachedSource(src, time.Minute)
		defer c.Stop()

		_, err := c.Identify(ctx, "tok")
		assert.True(t, errors.Is(err, ErrInvalidToken))

		ident, err := c.Identify(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, "alice", ident.Login)
	})

	t.Run("expires entries", func(t *testing.T) {
		src := new(mockSource)
		src.On("Identify", ctx, "tok").Return(model.Identity{Login: "alice"}, nil)

		c := NewCachedSource(src, 20*time.Millisecond)
		defer c.Stop()

		_, _ = c.Identify(ctx, "tok")
		time.Sleep(40 * time.Millisecond)
		_, _ = c.Identify(ctx, "tok")

		src.AssertNumberOfCalls(t, "Identify", 2)
	})
}
