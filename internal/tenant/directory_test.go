package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/store/memory"
)

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	dir := NewDirectory(memory.NewDocumentStore(), func() time.Time { return now })

	t.Run("create and get", func(t *testing.T) {
		org, err := dir.Create(ctx, "acme", "Acme Ltd")
		require.NoError(t, err)
		require.True(t, org.Active)

		got, err := dir.Get(ctx, "acme")
		require.NoError(t, err)
		require.Equal(t, "Acme Ltd", got.Name)
		require.Equal(t, now, got.CreatedAt)
		require.NoError(t, dir.RequireActive(ctx, "acme"))
	})

	t.Run("duplicate organization", func(t *testing.T) {
		_, err := dir.Create(ctx, "acme", "Other")
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := dir.Create(ctx, "a/b", "Slash")
		require.ErrorIs(t, err, store.ErrInvalidArgument)
		_, err = dir.Create(ctx, "beta", "  ")
		require.ErrorIs(t, err, store.ErrInvalidArgument)
	})

	t.Run("deactivate", func(t *testing.T) {
		_, err := dir.Create(ctx, "beta", "Beta Corp")
		require.NoError(t, err)
		require.NoError(t, dir.Deactivate(ctx, "beta"))

		err = dir.RequireActive(ctx, "beta")
		require.ErrorIs(t, err, store.ErrInvalidState)

		require.ErrorIs(t, dir.Deactivate(ctx, "missing"), store.ErrNotFound)
		require.ErrorIs(t, dir.RequireActive(ctx, "missing"), store.ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		orgs, err := dir.List(ctx)
		require.NoError(t, err)
		require.Len(t, orgs, 2)
		require.Equal(t, "acme", orgs[0].OrgID)
		require.False(t, orgs[1].Active)
	})
}
