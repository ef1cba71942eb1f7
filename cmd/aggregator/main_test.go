package main

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-stats-engine/internal/config"
	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/observability"
	"perp-stats-engine/internal/storage"
)

func TestOpenStore_MemoryIsInstrumented(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewMetrics("test")

	store, closeStore, err := openStore(ctx, config.StorageConfig{Backend: "memory"}, metrics, zerolog.Nop())
	require.NoError(t, err)
	defer closeStore()

	_, ok := store.(*observability.InstrumentedStore)
	require.True(t, ok, "memory store is not instrumented")

	require.NoError(t, store.PutBatch(ctx, []storage.Record{
		{Kind: domain.KindOrderStat, Key: domain.TotalKey, Data: []byte(`{"id":"total"}`)},
	}))
	_, err = store.Get(ctx, domain.KindOrderStat, domain.TotalKey)
	require.NoError(t, err)

	assert.Equal(t, 2, testutil.CollectAndCount(metrics.DBQueryDuration))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.DBQueryErrors.WithLabelValues("memory", "get")))
}
