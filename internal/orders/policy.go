package orders

import (
	"errors"
	"fmt"
	"strings"
)

// MissingOrderPolicy decides what happens when a transition references an
// order that does not exist or is no longer open.
type MissingOrderPolicy int

const (
	// MissingOrderFail aborts processing of the event.
	MissingOrderFail MissingOrderPolicy = iota + 1
	// MissingOrderSkip logs the anomaly and acknowledges the event without effect.
	MissingOrderSkip
)

// ErrUnknownPolicy is returned for unsupported policy names.
var ErrUnknownPolicy = errors.New("unknown missing order policy")

// ParseMissingOrderPolicy parses fail or skip.
func ParseMissingOrderPolicy(s string) (MissingOrderPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fail":
		return MissingOrderFail, nil
	case "skip":
		return MissingOrderSkip, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

func (p MissingOrderPolicy) String() string {
	switch p {
	case MissingOrderFail:
		return "fail"
	case MissingOrderSkip:
		return "skip"
	}
	return "unknown"
}
