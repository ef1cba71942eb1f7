package tradingstats

import (
	"context"
	"fmt"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/period"
	"perp-stats-engine/internal/repository"
)

// ApplyTransfer updates the supply statistics of the transferred token.
// Mints come from the zero address and burns go to it.
func (a *Aggregator) ApplyTransfer(ctx context.Context, s *repository.Session, ts int64, tr *domain.Transfer) error {
	if tr == nil || tr.Token == "" {
		return fmt.Errorf("%w: incomplete transfer", ErrInvalidAmount)
	}
	if tr.Amount.IsNegative() {
		return fmt.Errorf("%w: transfer amount %s", ErrInvalidAmount, tr.Amount)
	}

	// a zero -> zero transfer moves nothing
	mint := tr.IsMint() && !tr.IsBurn()
	burn := tr.IsBurn() && !tr.IsMint()

	total, err := a.supplyStat(ctx, s, tr.Token, period.Total, 0)
	if err != nil {
		return err
	}
	applySupply(total, tr, mint, burn)
	switch {
	case mint:
		total.Supply = total.Supply.Add(tr.Amount)
		total.MintedCumulative = total.MintedCumulative.Add(tr.Amount)
	case burn:
		total.Supply = total.Supply.Sub(tr.Amount)
		total.BurnedCumulative = total.BurnedCumulative.Add(tr.Amount)
	}
	total.Timestamp = ts

	for _, p := range a.periods {
		start, err := period.BucketStart(ts, p)
		if err != nil {
			return err
		}
		st, err := a.supplyStat(ctx, s, tr.Token, p, start)
		if err != nil {
			return err
		}
		applySupply(st, tr, mint, burn)
		st.Supply = total.Supply
		st.MintedCumulative = total.MintedCumulative
		st.BurnedCumulative = total.BurnedCumulative
	}
	return nil
}

// applySupply applies the period-local effects of one transfer.
func applySupply(st *domain.SupplyStat, tr *domain.Transfer, mint, burn bool) {
	st.TransferCount++
	st.TransferVolume = st.TransferVolume.Add(tr.Amount)
	switch {
	case mint:
		st.Minted = st.Minted.Add(tr.Amount)
	case burn:
		st.Burned = st.Burned.Add(tr.Amount)
	}
}

func (a *Aggregator) supplyStat(ctx context.Context, s *repository.Session, token string, p period.Period, start int64) (*domain.SupplyStat, error) {
	key := domain.SupplyStatKey(token, p, start)
	return repository.GetOrInsert(ctx, s, domain.KindSupplyStat, key, func() (*domain.SupplyStat, error) {
		return &domain.SupplyStat{ID: key, Token: token, Period: p, Timestamp: start}, nil
	})
}
