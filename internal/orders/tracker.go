// Package orders tracks the open -> cancelled | executed order lifecycle and
// the order counters that move with it.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/repository"
	"perp-stats-engine/internal/storage"
)

var (
	// ErrOrderNotFound is returned when a transition references an unknown order.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderNotOpen is returned when a transition targets a terminal order.
	ErrOrderNotOpen = errors.New("order not open")

	// ErrInvalidOrder is returned for malformed order payloads.
	ErrInvalidOrder = errors.New("invalid order")
)

// Options configures a Tracker.
type Options struct {
	MissingOrderPolicy MissingOrderPolicy
	Logger             zerolog.Logger
	// OnSkip is called with the cause whenever an anomaly is skipped.
	OnSkip func(err error)
}

// Tracker applies order events.
type Tracker struct {
	policy MissingOrderPolicy
	logger zerolog.Logger
	onSkip func(error)
}

// New creates a Tracker. The zero policy is MissingOrderFail.
func New(opts Options) *Tracker {
	if opts.MissingOrderPolicy == 0 {
		opts.MissingOrderPolicy = MissingOrderFail
	}
	return &Tracker{
		policy: opts.MissingOrderPolicy,
		logger: opts.Logger.With().Str("component", "orders").Logger(),
		onSkip: opts.OnSkip,
	}
}

// Policy returns the configured missing order policy.
func (t *Tracker) Policy() MissingOrderPolicy {
	return t.policy
}

// Create stores an open order and increments its open counter.
// Creation always succeeds: an order already stored under the same
// account:kind:index is overwritten and re-seeded as open.
func (t *Tracker) Create(ctx context.Context, s *repository.Session, ch *domain.OrderChange, ts int64) (*domain.Order, error) {
	if err := validate(ch); err != nil {
		return nil, err
	}

	key := domain.OrderKey(ch.Account, ch.Kind, ch.Index)
	prev, err := repository.Load[domain.Order](ctx, s, domain.KindOrder, key)
	switch {
	case err == nil:
		t.logger.Warn().Str("order", key).Str("status", string(prev.Status)).Msg("order index reused, overwriting")
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	order := &domain.Order{
		ID:                    key,
		Kind:                  ch.Kind,
		Account:               ch.Account,
		Index:                 ch.Index,
		Status:                domain.OrderStatusOpen,
		Size:                  ch.Size,
		TriggerPrice:          ch.TriggerPrice,
		TriggerAboveThreshold: ch.TriggerAboveThreshold,
		IsLong:                ch.IsLong,
		IndexToken:            ch.IndexToken,
		CollateralToken:       ch.CollateralToken,
		CreatedTimestamp:      ts,
	}
	switch ch.Kind {
	case domain.OrderKindIncrease:
		order.PurchaseToken = ch.PurchaseToken
		order.PurchaseTokenAmount = ch.PurchaseTokenAmount
	case domain.OrderKindDecrease:
		order.CollateralDelta = ch.CollateralDelta
	case domain.OrderKindSwap:
		order.Path = append([]string(nil), ch.Path...)
		order.MinOut = ch.MinOut
		order.PurchaseTokenAmount = ch.PurchaseTokenAmount
	}
	s.Put(domain.KindOrder, key, order)

	if err := t.count(ctx, s, ch.Kind, domain.OrderStatusOpen, 1); err != nil {
		return nil, err
	}
	return order, nil
}

// Update changes the size and trigger of an open order. Counters do not move.
func (t *Tracker) Update(ctx context.Context, s *repository.Session, ch *domain.OrderChange, ts int64) (*domain.Order, error) {
	order, err := t.openOrder(ctx, s, ch)
	if err != nil || order == nil {
		return nil, err
	}

	order.Size = ch.Size
	order.TriggerPrice = ch.TriggerPrice
	order.TriggerAboveThreshold = ch.TriggerAboveThreshold
	if ch.Kind == domain.OrderKindDecrease {
		order.CollateralDelta = ch.CollateralDelta
	}
	if ch.Kind == domain.OrderKindSwap {
		order.MinOut = ch.MinOut
	}
	order.UpdatedTimestamp = ts
	s.Put(domain.KindOrder, order.ID, order)
	return order, nil
}

// Cancel moves an open order to cancelled.
func (t *Tracker) Cancel(ctx context.Context, s *repository.Session, ch *domain.OrderChange, ts int64) (*domain.Order, error) {
	return t.close(ctx, s, ch, ts, domain.OrderStatusCancelled)
}

// Execute moves an open order to executed.
func (t *Tracker) Execute(ctx context.Context, s *repository.Session, ch *domain.OrderChange, ts int64) (*domain.Order, error) {
	return t.close(ctx, s, ch, ts, domain.OrderStatusExecuted)
}

func (t *Tracker) close(ctx context.Context, s *repository.Session, ch *domain.OrderChange, ts int64, to domain.OrderStatus) (*domain.Order, error) {
	order, err := t.openOrder(ctx, s, ch)
	if err != nil || order == nil {
		return nil, err
	}

	order.Status = to
	switch to {
	case domain.OrderStatusCancelled:
		order.CancelledTimestamp = ts
	case domain.OrderStatusExecuted:
		order.ExecutedTimestamp = ts
		order.ExecutionPrice = ch.ExecutionPrice
	}
	s.Put(domain.KindOrder, order.ID, order)

	if err := t.count(ctx, s, order.Kind, domain.OrderStatusOpen, -1); err != nil {
		return nil, err
	}
	if err := t.count(ctx, s, order.Kind, to, 1); err != nil {
		return nil, err
	}
	return order, nil
}

// openOrder loads the open order referenced by ch. A nil order with a nil
// error means the anomaly was skipped.
func (t *Tracker) openOrder(ctx context.Context, s *repository.Session, ch *domain.OrderChange) (*domain.Order, error) {
	if err := validate(ch); err != nil {
		return nil, err
	}

	key := domain.OrderKey(ch.Account, ch.Kind, ch.Index)
	order, err := repository.Load[domain.Order](ctx, s, domain.KindOrder, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, t.anomaly(fmt.Errorf("%w: %s", ErrOrderNotFound, key))
	case err != nil:
		return nil, err
	}

	if order.Status != domain.OrderStatusOpen {
		return nil, t.anomaly(fmt.Errorf("%w: %s is %s", ErrOrderNotOpen, key, order.Status))
	}
	return order, nil
}

// anomaly applies the missing order policy to err.
func (t *Tracker) anomaly(err error) error {
	if t.policy == MissingOrderFail {
		return err
	}
	t.logger.Warn().Err(err).Msg("order anomaly skipped")
	if t.onSkip != nil {
		t.onSkip(err)
	}
	return nil
}

func (t *Tracker) count(ctx context.Context, s *repository.Session, kind domain.OrderKind, status domain.OrderStatus, delta int64) error {
	stat, err := repository.GetOrInsert(ctx, s, domain.KindOrderStat, domain.TotalKey, func() (*domain.OrderStat, error) {
		return &domain.OrderStat{ID: domain.TotalKey}, nil
	})
	if err != nil {
		return err
	}

	c := stat.Counter(status, kind)
	if c == nil {
		return fmt.Errorf("%w: no counter for %s/%s", ErrInvalidOrder, status, kind)
	}
	*c += delta
	return nil
}

func validate(ch *domain.OrderChange) error {
	switch {
	case ch == nil:
		return fmt.Errorf("%w: missing payload", ErrInvalidOrder)
	case ch.Account == "":
		return fmt.Errorf("%w: empty account", ErrInvalidOrder)
	case !ch.Kind.IsValid():
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOrder, ch.Kind)
	case ch.Index < 0:
		return fmt.Errorf("%w: negative index %d", ErrInvalidOrder, ch.Index)
	}
	return nil
}
