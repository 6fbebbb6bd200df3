package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistryCreate(t *testing.T) {
	registry := NewMemoryRegistry(30 * time.Minute)
	ctx := context.Background()

	t.Run("issues distinct id and signature", func(t *testing.T) {
		session, err := registry.Create(ctx)
		require.NoError(t, err)

		assert.Len(t, session.ID, 32)
		assert.Len(t, session.Signature, 32)
		assert.NotEqual(t, session.ID, session.Signature)
		assert.True(t, session.ExpiresAt.After(session.CreatedAt))
	})

	t.Run("validates immediately after creation", func(t *testing.T) {
		session, err := registry.Create(ctx)
		require.NoError(t, err)

		assert.True(t, registry.Validate(ctx, session.ID, session.Signature))
	})

	t.Run("rejects any other signature for the same id", func(t *testing.T) {
		session, err := registry.Create(ctx)
		require.NoError(t, err)

		assert.False(t, registry.Validate(ctx, session.ID, "not-the-signature"))
		assert.False(t, registry.Validate(ctx, session.ID, ""))
		assert.False(t, registry.Validate(ctx, session.ID, session.Signature+"x"))
	})

	t.Run("rejects unknown id", func(t *testing.T) {
		assert.False(t, registry.Validate(ctx, "no-such-session", "whatever"))
	})
}

func TestMemoryRegistryExpiry(t *testing.T) {
	ctx := context.Background()

	t.Run("validate fails after TTL even before a sweep", func(t *testing.T) {
		registry := NewMemoryRegistry(10 * time.Millisecond)
		session, err := registry.Create(ctx)
		require.NoError(t, err)

		time.Sleep(20 * time.Millisecond)
		assert.False(t, registry.Validate(ctx, session.ID, session.Signature))
	})

	t.Run("expired session is lazily evicted on validate", func(t *testing.T) {
		registry := NewMemoryRegistry(10 * time.Millisecond)
		session, err := registry.Create(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, registry.Count(ctx))

		time.Sleep(20 * time.Millisecond)
		registry.Validate(ctx, session.ID, session.Signature)
		assert.Equal(t, 0, registry.Count(ctx))
	})

	t.Run("DeleteExpired removes only expired sessions", func(t *testing.T) {
		registry := NewMemoryRegistry(25 * time.Millisecond)
		expired, err := registry.Create(ctx)
		require.NoError(t, err)

		time.Sleep(40 * time.Millisecond)
		fresh, err := registry.Create(ctx)
		require.NoError(t, err)

		removed, err := registry.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		assert.False(t, registry.Validate(ctx, expired.ID, expired.Signature))
		assert.True(t, registry.Validate(ctx, fresh.ID, fresh.Signature))
	})
}

func TestMemoryRegistryRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("refresh on a valid session extends expiry", func(t *testing.T) {
		registry := NewMemoryRegistry(30 * time.Minute)
		session, err := registry.Create(ctx)
		require.NoError(t, err)
		before := session.ExpiresAt

		time.Sleep(5 * time.Millisecond)
		assert.True(t, registry.Refresh(ctx, session.ID, session.Signature))
		assert.True(t, session.ExpiresAt.After(before))
	})

	t.Run("refresh with wrong signature is a no-op", func(t *testing.T) {
		registry := NewMemoryRegistry(30 * time.Minute)
		session, err := registry.Create(ctx)
		require.NoError(t, err)
		before := session.ExpiresAt

		assert.False(t, registry.Refresh(ctx, session.ID, "wrong"))
		assert.Equal(t, before, session.ExpiresAt)
	})

	t.Run("refresh on an expired session is a no-op", func(t *testing.T) {
		registry := NewMemoryRegistry(10 * time.Millisecond)
		session, err := registry.Create(ctx)
		require.NoError(t, err)

		time.Sleep(20 * time.Millisecond)
		assert.False(t, registry.Refresh(ctx, session.ID, session.Signature))
		assert.False(t, registry.Validate(ctx, session.ID, session.Signature))
	})
}

func TestMemoryRegistryDisable(t *testing.T) {
	ctx := context.Background()

	t.Run("disable removes a valid session", func(t *testing.T) {
		registry := NewMemoryRegistry(30 * time.Minute)
		session, err := registry.Create(ctx)
		require.NoError(t, err)

		assert.True(t, registry.Disable(ctx, session.ID, session.Signature))
		assert.False(t, registry.Validate(ctx, session.ID, session.Signature))
		assert.Equal(t, 0, registry.Count(ctx))
	})

	t.Run("disable with wrong signature leaves the session", func(t *testing.T) {
		registry := NewMemoryRegistry(30 * time.Minute)
		session, err := registry.Create(ctx)
		require.NoError(t, err)

		assert.False(t, registry.Disable(ctx, session.ID, "wrong"))
		assert.True(t, registry.Validate(ctx, session.ID, session.Signature))
	})
}
