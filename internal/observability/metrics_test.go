package observability

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/storage"
	"perp-stats-engine/internal/storage/memory"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics("test")

	m.RecordEvent("price_tick", 42, 1700000000, 5, time.Millisecond)
	m.RecordEvent("price_tick", 43, 1700000001, 3, time.Millisecond)
	m.RecordDuplicate()
	m.RecordAnomaly("order_not_found")
	m.RecordEventError("transfer", "invalid_event")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsProcessed.WithLabelValues("price_tick")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDuplicate))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Anomalies.WithLabelValues("order_not_found")))
	assert.Equal(t, 43.0, testutil.ToFloat64(m.LastBlock))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordEvent("price_tick", 1, 1, 1, time.Second)
	m.RecordDuplicate()
	m.RecordAnomaly("x")
	m.RecordPublishError()
	m.RecordDBQuery("postgres", "get", 0.1, nil)
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("")
	m.RecordReconnect("ws")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "perp_stats_source_reconnects_total"))
}

func TestInstrumentedStore(t *testing.T) {
	m := NewMetrics("test")
	store := InstrumentStore(memory.NewEntityStore(), m, "memory")
	ctx := context.Background()

	_, err := store.Get(ctx, domain.KindOrder, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.PutBatch(ctx, []storage.Record{
		{Kind: domain.KindOrder, Key: "a", Data: []byte(`{}`)},
	}))
	records, err := store.List(ctx, domain.KindOrder)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.DBQueryErrors.WithLabelValues("memory", "get")))
	// get, put_batch and list series
	assert.Equal(t, 3, testutil.CollectAndCount(m.DBQueryDuration))
}
