package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/storage"
)

// setupTestRedis starts a Redis container and returns a connected client.
func setupTestRedis(t *testing.T) (*Client, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(30*time.Second),
			wait.ForListeningPort("6379/tcp"),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewClient(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()))
	require.NoError(t, err)

	cleanup := func() {
		client.Close()
		_ = container.Terminate(ctx)
	}

	return client, cleanup
}

func TestParseDSN(t *testing.T) {
	opts, err := parseDSN("redis://:secret@cache.local:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "cache.local:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	opts, err = parseDSN("redis://localhost")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 0, opts.DB)

	_, err = parseDSN("http://localhost")
	assert.Error(t, err)

	_, err = parseDSN("redis://localhost/abc")
	assert.Error(t, err)
}

func TestEntityStore_PutBatchAndGet(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewEntityStore(client, "test")
	ctx := context.Background()

	require.NoError(t, store.PutBatch(ctx, []storage.Record{
		{Kind: domain.KindTradingStat, Key: "total", Data: []byte(`{"id":"total"}`)},
		{Kind: domain.KindFastPrice, Key: "0xeth", Data: []byte(`{"value":"1"}`)},
		{Kind: domain.KindFastPrice, Key: "0xeth", Data: []byte(`{"value":"2"}`)},
	}))

	got, err := store.Get(ctx, domain.KindFastPrice, "0xeth")
	require.NoError(t, err)
	assert.Equal(t, `{"value":"2"}`, string(got))

	_, err = store.Get(ctx, domain.KindFastPrice, "0xbtc")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEntityStore_List(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewEntityStore(client, "")
	ctx := context.Background()

	require.NoError(t, store.PutBatch(ctx, []storage.Record{
		{Kind: domain.KindOrder, Key: "c", Data: []byte(`3`)},
		{Kind: domain.KindOrder, Key: "a", Data: []byte(`1`)},
		{Kind: domain.KindOrder, Key: "b", Data: []byte(`2`)},
	}))

	records, err := store.List(ctx, domain.KindOrder)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "a", records[0].Key)
	assert.Equal(t, "c", records[2].Key)

	empty, err := store.List(ctx, domain.KindOrderStat)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEntityStore_InvalidInput(t *testing.T) {
	store := NewEntityStore(nil, "")

	err := store.PutBatch(context.Background(), []storage.Record{{Kind: domain.KindOrder, Key: "", Data: []byte(`1`)}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
