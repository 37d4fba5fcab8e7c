package session

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aniforum/internal/cache"
	"aniforum/internal/models"
	"aniforum/internal/store"
)

func TestUpdateProfileFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("requires a session", func(t *testing.T) {
		t.Parallel()
		s := NewSynchronizer(newStubProvider(), store.NewMemoryStore(), cache.NewMemory())
		err := s.UpdateUsername(ctx, "new-name")
		assert.True(t, models.HasCode(err, models.CodeAuthRequired))
	})

	t.Run("rejects blank username", func(t *testing.T) {
		t.Parallel()
		s := NewSynchronizer(newStubProvider(), store.NewMemoryStore(), cache.NewMemory())
		err := s.UpdateUsername(ctx, "   ")
		assert.True(t, models.HasCode(err, models.CodeValidation))
	})

	t.Run("propagates to store, cache and memory", func(t *testing.T) {
		t.Parallel()
		st := store.NewMemoryStore()
		plc := cache.NewMemory()
		s := NewSynchronizer(newStubProvider(), st, plc)
		_, _, err := s.SignIn(ctx, "a@b.c", "p")
		require.NoError(t, err)

		require.NoError(t, s.UpdateUsername(ctx, "renamed"))
		require.NoError(t, s.UpdateSignature(ctx, "new signature"))

		raw, err := st.Read(ctx, store.UserProfilePath("u1"))
		require.NoError(t, err)
		var profile models.Profile
		require.NoError(t, json.Unmarshal(raw, &profile))
		assert.Equal(t, "renamed", profile.Username)
		assert.Equal(t, "new signature", profile.Signature)

		cached, _ := plc.Get(ctx, cache.KeyUsername)
		assert.Equal(t, "renamed", cached)
		assert.Equal(t, "renamed", s.Session().Profile.Username)
	})

	t.Run("empty signature is allowed", func(t *testing.T) {
		t.Parallel()
		s := NewSynchronizer(newStubProvider(), store.NewMemoryStore(), cache.NewMemory())
		_, _, err := s.SignIn(ctx, "a@b.c", "p")
		require.NoError(t, err)

		require.NoError(t, s.UpdateSignature(ctx, ""))
		assert.Empty(t, s.Session().Profile.Signature)
	})

	t.Run("rejects empty avatar url", func(t *testing.T) {
		t.Parallel()
		s := NewSynchronizer(newStubProvider(), store.NewMemoryStore(), cache.NewMemory())
		_, _, err := s.SignIn(ctx, "a@b.c", "p")
		require.NoError(t, err)

		err = s.UpdateAvatar(ctx, "")
		assert.True(t, models.HasCode(err, models.CodeValidation))
	})
}
