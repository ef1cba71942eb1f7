package candles

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPolicy is returned for unsupported policy names.
var ErrUnknownPolicy = errors.New("unknown candle policy")

// OpenPolicy decides the open price of a newly created bucket.
type OpenPolicy int

const (
	// OpenStrictAdjacent seeds open from the immediately preceding bucket's
	// close, or from the triggering price when that bucket does not exist.
	OpenStrictAdjacent OpenPolicy = iota + 1
	// OpenCarryForward seeds open from the close of the most recent earlier
	// bucket, however far back, or from the triggering price for the first one.
	OpenCarryForward
)

// ExtremaPolicy decides high and low of a newly created bucket.
type ExtremaPolicy int

const (
	// ExtremaIncludeOpen sets high = max(open, price), low = min(open, price),
	// so low <= open, close <= high holds from creation.
	ExtremaIncludeOpen ExtremaPolicy = iota + 1
	// ExtremaTradeOnly sets high = low = price; open may lie outside the range.
	ExtremaTradeOnly
)

var openPolicies = map[string]OpenPolicy{
	"strict_adjacent": OpenStrictAdjacent,
	"carry_forward":   OpenCarryForward,
}

var extremaPolicies = map[string]ExtremaPolicy{
	"include_open": ExtremaIncludeOpen,
	"trade_only":   ExtremaTradeOnly,
}

// ParseOpenPolicy parses strict_adjacent or carry_forward.
func ParseOpenPolicy(s string) (OpenPolicy, error) {
	p, ok := openPolicies[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: open policy %q", ErrUnknownPolicy, s)
	}
	return p, nil
}

// ParseExtremaPolicy parses include_open or trade_only.
func ParseExtremaPolicy(s string) (ExtremaPolicy, error) {
	p, ok := extremaPolicies[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: extrema policy %q", ErrUnknownPolicy, s)
	}
	return p, nil
}

func (p OpenPolicy) String() string {
	for name, v := range openPolicies {
		if v == p {
			return name
		}
	}
	return "unknown"
}

func (p ExtremaPolicy) String() string {
	for name, v := range extremaPolicies {
		if v == p {
			return name
		}
	}
	return "unknown"
}
