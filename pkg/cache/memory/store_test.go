package memory

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkexplorer/offworker/pkg/cache"
)

func TestMemory_PutMatchDelete(t *testing.T) {
	store := New()
	ctx := context.Background()

	ns, err := store.Open(cache.StaticNamespace)
	require.NoError(t, err)

	key := cache.RequestKey(http.MethodGet, "https://example.com/app.js")
	entry := &cache.Entry{
		Status:   200,
		Header:   http.Header{"Content-Type": []string{"text/javascript"}},
		Body:     []byte("export {}"),
		StoredAt: time.Now(),
	}
	require.NoError(t, ns.Put(ctx, key, entry))

	got, err := ns.Match(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, entry.Body, got.Body)

	require.NoError(t, ns.Delete(ctx, key))
	_, err = ns.Match(ctx, key)
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestMemory_CloneOnReadAndWrite(t *testing.T) {
	store := New()
	ctx := context.Background()

	ns, err := store.Open(cache.TileNamespace)
	require.NoError(t, err)

	entry := &cache.Entry{Status: 200, Body: []byte("abc"), StoredAt: time.Now()}
	require.NoError(t, ns.Put(ctx, "GET https://tiles.example.com/t", entry))

	// Mutating the caller's entry must not affect the stored copy.
	entry.Body[0] = 'x'

	got, err := ns.Match(ctx, "GET https://tiles.example.com/t")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got.Body)

	// Mutating a returned entry must not affect subsequent reads.
	got.Body[0] = 'z'
	again, err := ns.Match(ctx, "GET https://tiles.example.com/t")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again.Body)
}

func TestMemory_RejectsNonOK(t *testing.T) {
	store := New()
	ns, err := store.Open(cache.StaticNamespace)
	require.NoError(t, err)

	err = ns.Put(context.Background(), "GET https://example.com/x", &cache.Entry{Status: 500})
	assert.ErrorIs(t, err, cache.ErrNotCacheable)
}

func TestMemory_DropAndDropAll(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, name := range []string{cache.StaticNamespace, cache.TileNamespace, "pk-explorer-v0"} {
		ns, err := store.Open(name)
		require.NoError(t, err)
		require.NoError(t, ns.Put(ctx, "GET https://example.com/a", &cache.Entry{Status: 200}))
	}

	require.NoError(t, store.Drop("pk-explorer-v0"))
	names, err := store.Names()
	require.NoError(t, err)
	assert.ElementsMatch(t, cache.RecognizedNamespaces(), names)

	require.NoError(t, store.DropAll())
	names, err = store.Names()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMemory_Closed(t *testing.T) {
	store := New()
	ns, err := store.Open(cache.StaticNamespace)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Open(cache.TileNamespace)
	assert.ErrorIs(t, err, cache.ErrClosed)
	_, err = ns.Match(context.Background(), "k")
	assert.ErrorIs(t, err, cache.ErrClosed)
	assert.ErrorIs(t, ns.Put(context.Background(), "k", &cache.Entry{Status: 200}), cache.ErrClosed)
}
