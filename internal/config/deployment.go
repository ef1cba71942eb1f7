package config

import (
	"errors"
	"fmt"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/fixedpoint"
)

// ErrMissingDecimals is returned when a token without a configured decimal
// count takes part in a computation that needs it.
var ErrMissingDecimals = errors.New("missing token decimals")

// maxDecimals bounds token precision to what Decimal(76, 0) mirrors can hold.
const maxDecimals = 36

// Deployment is the resolved, read-only token table of one deployment.
// It is built once and injected into the components that need it.
type Deployment struct {
	name            string
	governanceToken string
	decimals        map[string]int
	defaultPrices   map[string]fixedpoint.Value
	aliases         map[string]string
}

// Build validates the deployment section and resolves it.
// Addresses are normalized to lowercase.
func (d DeploymentConfig) Build() (*Deployment, error) {
	out := &Deployment{
		name:            d.Name,
		governanceToken: domain.NormalizeAddress(d.GovernanceToken),
		decimals:        make(map[string]int, len(d.Tokens)),
		defaultPrices:   make(map[string]fixedpoint.Value),
		aliases:         make(map[string]string, len(d.Aliases)),
	}

	for i, t := range d.Tokens {
		addr := domain.NormalizeAddress(t.Address)
		if addr == "" {
			return nil, fmt.Errorf("deployment.tokens[%d].address is required", i)
		}
		if _, dup := out.decimals[addr]; dup {
			return nil, fmt.Errorf("deployment.tokens[%d]: duplicate address %s", i, addr)
		}
		if t.Decimals == nil {
			return nil, fmt.Errorf("deployment.tokens[%d] (%s): %w", i, addr, ErrMissingDecimals)
		}
		if *t.Decimals < 0 || *t.Decimals > maxDecimals {
			return nil, fmt.Errorf("deployment.tokens[%d].decimals must be between 0 and %d, got %d", i, maxDecimals, *t.Decimals)
		}
		out.decimals[addr] = *t.Decimals

		if t.DefaultPrice != "" {
			price, err := fixedpoint.FromUSD(t.DefaultPrice)
			if err != nil {
				return nil, fmt.Errorf("deployment.tokens[%d].default_price: %w", i, err)
			}
			if price.Sign() <= 0 {
				return nil, fmt.Errorf("deployment.tokens[%d].default_price must be positive", i)
			}
			out.defaultPrices[addr] = price
		}
	}

	for from, to := range d.Aliases {
		f, t := domain.NormalizeAddress(from), domain.NormalizeAddress(to)
		if f == "" || t == "" {
			return nil, errors.New("deployment.aliases: empty address")
		}
		if f == t {
			return nil, fmt.Errorf("deployment.aliases: %s aliases itself", f)
		}
		out.aliases[f] = t
	}
	for from, to := range out.aliases {
		if _, chained := out.aliases[to]; chained {
			return nil, fmt.Errorf("deployment.aliases: chained alias %s -> %s", from, to)
		}
	}

	return out, nil
}

// Name returns the deployment name.
func (d *Deployment) Name() string { return d.name }

// GovernanceToken returns the token priced from pool swaps, or "".
func (d *Deployment) GovernanceToken() string { return d.governanceToken }

// IsGovernanceToken reports whether token is the pool-priced governance token.
func (d *Deployment) IsGovernanceToken(token string) bool {
	return d.governanceToken != "" && token == d.governanceToken
}

// Canonical resolves an alias to its canonical identity.
func (d *Deployment) Canonical(token string) string {
	if to, ok := d.aliases[token]; ok {
		return to
	}
	return token
}

// Decimals returns the decimal count of token, after alias resolution.
func (d *Deployment) Decimals(token string) (int, error) {
	if n, ok := d.decimals[token]; ok {
		return n, nil
	}
	if n, ok := d.decimals[d.Canonical(token)]; ok {
		return n, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrMissingDecimals, token)
}

// DefaultPrice returns the static 30-decimal USD bootstrap price of token.
func (d *Deployment) DefaultPrice(token string) (fixedpoint.Value, bool) {
	p, ok := d.defaultPrices[token]
	return p, ok
}

// Tokens returns the number of configured tokens.
func (d *Deployment) Tokens() int { return len(d.decimals) }
