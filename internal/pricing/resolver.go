// Package pricing records price observations and resolves a token's current
// USD price through the fallback chain
// alias -> fast price -> oracle -> governance pool -> default table.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"perp-stats-engine/internal/config"
	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/fixedpoint"
	"perp-stats-engine/internal/period"
	"perp-stats-engine/internal/repository"
	"perp-stats-engine/internal/storage"
)

var (
	// ErrNoPrice is returned when no tier of the chain has a price.
	ErrNoPrice = errors.New("no price")

	// ErrDegeneratePool is returned when pool amounts cannot produce a price.
	ErrDegeneratePool = errors.New("degenerate pool")

	// ErrInvalidObservation is returned for malformed ticks and swaps.
	ErrInvalidObservation = errors.New("invalid price observation")
)

// Source names the tier a resolved price came from.
type Source string

const (
	SourceFastPrice Source = "fast_price"
	SourceOracle    Source = "oracle_price"
	SourcePool      Source = "pool_price"
	SourceDefault   Source = "default"
)

// Resolution is a resolved price.
type Resolution struct {
	Token  string // canonical identity used for lookup
	Value  fixedpoint.Value
	Source Source
}

// Options configures a Resolver.
type Options struct {
	Deployment *config.Deployment
	// Periods get a periodic price snapshot besides last and any.
	// Defaults to period.StatPeriods.
	Periods []period.Period
	Logger  zerolog.Logger
}

// Resolver resolves and records prices.
type Resolver struct {
	deployment *config.Deployment
	periods    []period.Period
	logger     zerolog.Logger
}

// New creates a Resolver.
func New(opts Options) (*Resolver, error) {
	if opts.Deployment == nil {
		return nil, errors.New("pricing: deployment is required")
	}
	if opts.Periods == nil {
		opts.Periods = period.StatPeriods
	}
	for _, p := range opts.Periods {
		if !p.IsTimeAligned() {
			return nil, fmt.Errorf("%w: %s has no price snapshots", period.ErrUnknownPeriod, p)
		}
	}

	return &Resolver{
		deployment: opts.Deployment,
		periods:    opts.Periods,
		logger:     opts.Logger.With().Str("component", "pricing").Logger(),
	}, nil
}

// Resolve returns the current 30-decimal USD price of token.
func (r *Resolver) Resolve(ctx context.Context, s *repository.Session, token string) (Resolution, error) {
	canonical := r.deployment.Canonical(domain.NormalizeAddress(token))
	res := Resolution{Token: canonical}

	for _, feed := range []domain.PriceKind{domain.PriceKindFast, domain.PriceKindOracle} {
		point, err := Latest(ctx, s, feed, canonical)
		switch {
		case err == nil:
			res.Value = point.USD()
			res.Source = Source(feed)
			return res, nil
		case !errors.Is(err, storage.ErrNotFound):
			return res, err
		}
	}

	if r.deployment.IsGovernanceToken(canonical) {
		point, err := Latest(ctx, s, domain.PriceKindPool, canonical)
		switch {
		case err == nil:
			res.Value = point.USD()
			res.Source = SourcePool
			return res, nil
		case !errors.Is(err, storage.ErrNotFound):
			return res, err
		}
	}

	if v, ok := r.deployment.DefaultPrice(canonical); ok {
		res.Value = v
		res.Source = SourceDefault
		return res, nil
	}

	return res, fmt.Errorf("%w: %s", ErrNoPrice, canonical)
}

// Latest returns the last snapshot of kind for token.
func Latest(ctx context.Context, s *repository.Session, kind domain.PriceKind, token string) (*domain.PricePoint, error) {
	return repository.Load[domain.PricePoint](ctx, s, kind.EntityKind(), domain.PriceLastKey(token))
}
