package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/caldora-recur/server/storage"
	"github.com/cyp0633/caldora-recur/server/storage/storagetest"
)

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend { return New() })
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := New()
	ctx := context.Background()
	scope := storage.Scope{Organization: "acme"}
	p := storage.NewMockPattern("p1", scope, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), 3, time.Hour)
	require.NoError(t, store.CreatePattern(ctx, p))

	p.Extensions["leak"] = "yes"
	got, err := store.GetPattern(ctx, "p1", scope)
	require.NoError(t, err)
	assert.NotContains(t, got.Extensions, "leak")

	got.Extensions["leak"] = "yes"
	again, err := store.GetPattern(ctx, "p1", scope)
	require.NoError(t, err)
	assert.NotContains(t, again.Extensions, "leak")
}

func TestStore_CanceledContext(t *testing.T) {
	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.GetPattern(ctx, "p1", storage.Scope{})
	assert.ErrorIs(t, err, context.Canceled)
	err = store.InTx(ctx, func(storage.Repository) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
