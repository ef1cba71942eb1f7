package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/fixedpoint"
	"perp-stats-engine/internal/period"
	"perp-stats-engine/internal/storage"
	"perp-stats-engine/internal/storage/memory"
)

func newStat() (*domain.TradingStat, error) {
	return &domain.TradingStat{ID: domain.TotalKey, Period: period.Total}, nil
}

func TestGetOrInsert_CreatesAndPersists(t *testing.T) {
	store := memory.NewEntityStore()
	repo := New(store, nil, zerolog.Nop())
	ctx := context.Background()

	s := repo.Begin()
	stat, err := GetOrInsert(ctx, s, domain.KindTradingStat, domain.TotalKey, newStat)
	require.NoError(t, err)
	require.NotNil(t, stat)
	stat.Profit = fixedpoint.FromInt64(500)

	// same handle within the session
	again, err := GetOrInsert(ctx, s, domain.KindTradingStat, domain.TotalKey, newStat)
	require.NoError(t, err)
	assert.Same(t, stat, again)
	assert.Equal(t, 1, s.Pending())

	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, 0, s.Pending())

	got, err := Fetch[domain.TradingStat](ctx, store, domain.KindTradingStat, domain.TotalKey)
	require.NoError(t, err)
	assert.Equal(t, "500", got.Profit.String())
	assert.Equal(t, period.Total, got.Period)
}

func TestGetOrInsert_LoadsExisting(t *testing.T) {
	store := memory.NewEntityStore()
	repo := New(store, nil, zerolog.Nop())
	ctx := context.Background()

	s := repo.Begin()
	stat, err := GetOrInsert(ctx, s, domain.KindTradingStat, domain.TotalKey, newStat)
	require.NoError(t, err)
	stat.Loss = fixedpoint.FromInt64(7)
	require.NoError(t, s.Commit(ctx))

	s = repo.Begin()
	calls := 0
	stat, err = GetOrInsert(ctx, s, domain.KindTradingStat, domain.TotalKey, func() (*domain.TradingStat, error) {
		calls++
		return newStat()
	})
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
	assert.Equal(t, "7", stat.Loss.String())
}

func TestGetOrInsert_FactoryError(t *testing.T) {
	repo := New(memory.NewEntityStore(), nil, zerolog.Nop())
	boom := errors.New("boom")

	_, err := GetOrInsert(context.Background(), repo.Begin(), domain.KindOrder, "k", func() (*domain.Order, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = GetOrInsert(context.Background(), repo.Begin(), domain.KindOrder, "k", func() (*domain.Order, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestLoad_NotFoundAndNotStaged(t *testing.T) {
	store := memory.NewEntityStore()
	repo := New(store, nil, zerolog.Nop())
	ctx := context.Background()

	s := repo.Begin()
	_, err := Load[domain.Order](ctx, s, domain.KindOrder, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	s.Put(domain.KindOrder, "a", &domain.Order{ID: "a", Status: domain.OrderStatusOpen})
	require.NoError(t, s.Commit(ctx))

	s = repo.Begin()
	o, err := Load[domain.Order](ctx, s, domain.KindOrder, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOpen, o.Status)
	assert.Equal(t, 0, s.Pending(), "load must not stage a write")
}

func TestSession_TypeMismatch(t *testing.T) {
	repo := New(memory.NewEntityStore(), nil, zerolog.Nop())
	s := repo.Begin()
	s.Put(domain.KindOrder, "a", &domain.Order{ID: "a"})

	_, err := Load[domain.OrderStat](context.Background(), s, domain.KindOrder, "a")
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestSession_DiscardDropsWrites(t *testing.T) {
	store := memory.NewEntityStore()
	repo := New(store, nil, zerolog.Nop())
	ctx := context.Background()

	s := repo.Begin()
	s.Put(domain.KindOrder, "a", &domain.Order{ID: "a"})
	s.Discard()
	require.NoError(t, s.Commit(ctx))

	_, err := store.Get(ctx, domain.KindOrder, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCommit_PublishesInWriteOrder(t *testing.T) {
	store := memory.NewEntityStore()
	sink := memory.NewChangeSink()
	repo := New(store, sink, zerolog.Nop())
	ctx := context.Background()

	s := repo.Begin()
	s.Put(domain.KindOrder, "b", &domain.Order{ID: "b"})
	s.Put(domain.KindOrderStat, domain.TotalKey, &domain.OrderStat{ID: domain.TotalKey})
	s.Put(domain.KindOrder, "b", &domain.Order{ID: "b", Index: 2})
	require.NoError(t, s.Commit(ctx))

	batches := sink.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, "b", batches[0][0].Key)
	assert.Equal(t, domain.KindOrderStat, batches[0][1].Kind)
	assert.Contains(t, string(batches[0][0].Data), `"index":2`)
}

type failingSink struct{}

func (failingSink) Publish(context.Context, []storage.Record) error {
	return errors.New("mirror down")
}

func TestCommit_SinkFailureAfterStoreWrite(t *testing.T) {
	store := memory.NewEntityStore()
	repo := New(store, failingSink{}, zerolog.Nop())
	ctx := context.Background()

	s := repo.Begin()
	s.Put(domain.KindOrder, "a", &domain.Order{ID: "a"})
	err := s.Commit(ctx)
	assert.ErrorIs(t, err, ErrPublish)

	_, err = store.Get(ctx, domain.KindOrder, "a")
	assert.NoError(t, err)
}
