// Package period maps event timestamps onto fixed-length, aligned time buckets.
package period

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownPeriod is returned when a granularity tag is not supported.
// It is a configuration error and must not be defaulted.
var ErrUnknownPeriod = errors.New("unknown period")

// Period is a closed enumeration of supported granularities.
type Period int

// Supported periods.
const (
	Any Period = iota + 1 // tick-level, keyed per event, not time-aligned
	FiveMinutes
	FifteenMinutes
	Hourly
	FourHours
	Daily
	Weekly
	Total // aggregate rows, not time-aligned
)

// Period lengths in seconds.
const (
	SecondsFiveMinutes    int64 = 5 * 60
	SecondsFifteenMinutes int64 = 15 * 60
	SecondsHourly         int64 = 60 * 60
	SecondsFourHours      int64 = 4 * 60 * 60
	SecondsDaily          int64 = 24 * 60 * 60
	SecondsWeekly         int64 = 7 * 24 * 60 * 60
)

var names = map[Period]string{
	Any:            "any",
	FiveMinutes:    "5m",
	FifteenMinutes: "15m",
	Hourly:         "hourly",
	FourHours:      "4h",
	Daily:          "daily",
	Weekly:         "weekly",
	Total:          "total",
}

var aliases = map[string]Period{
	"any":    Any,
	"5m":     FiveMinutes,
	"15m":    FifteenMinutes,
	"hourly": Hourly,
	"1h":     Hourly,
	"4h":     FourHours,
	"daily":  Daily,
	"1d":     Daily,
	"weekly": Weekly,
	"1w":     Weekly,
	"total":  Total,
}

// CandlePeriods is the default candle granularity set.
var CandlePeriods = []Period{Any, FiveMinutes, FifteenMinutes, Hourly, FourHours, Daily, Weekly}

// StatPeriods is the default trading stat granularity set.
var StatPeriods = []Period{Hourly, Daily, Weekly}

// Parse converts a tag into a Period. Returns ErrUnknownPeriod for anything else.
func Parse(s string) (Period, error) {
	p, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
	}
	return p, nil
}

// MustParse is Parse for static tables; it panics on unknown tags.
func MustParse(s string) Period {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseList parses a list of tags, failing on the first unknown one.
func ParseList(tags []string) ([]Period, error) {
	out := make([]Period, 0, len(tags))
	for _, tag := range tags {
		p, err := Parse(tag)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// String returns the canonical tag used in entity keys.
func (p Period) String() string {
	if name, ok := names[p]; ok {
		return name
	}
	return "period(" + strconv.Itoa(int(p)) + ")"
}

// Valid reports whether p is one of the declared periods.
func (p Period) Valid() bool {
	_, ok := names[p]
	return ok
}

// IsTimeAligned reports whether the period groups events into fixed windows.
func (p Period) IsTimeAligned() bool {
	return p.Seconds() > 0
}

// Seconds returns the bucket length. Zero for Any and Total.
func (p Period) Seconds() int64 {
	switch p {
	case FiveMinutes:
		return SecondsFiveMinutes
	case FifteenMinutes:
		return SecondsFifteenMinutes
	case Hourly:
		return SecondsHourly
	case FourHours:
		return SecondsFourHours
	case Daily:
		return SecondsDaily
	case Weekly:
		return SecondsWeekly
	default:
		return 0
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Period) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPeriod, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Period) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// BucketStart aligns ts to the start of its enclosing window.
// Floor division keeps start <= ts < start+len for negative timestamps too.
func BucketStart(ts int64, p Period) (int64, error) {
	length := p.Seconds()
	if length == 0 {
		return 0, fmt.Errorf("%w: %s is not time-aligned", ErrUnknownPeriod, p)
	}
	return floorDiv(ts, length) * length, nil
}

// PrevStart returns the start of the bucket immediately preceding start.
func PrevStart(start int64, p Period) int64 {
	return start - p.Seconds()
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Bucket is a resolved window for one timestamp.
type Bucket struct {
	Start int64
	Key   string // start rendered for entity keys
}

// Bucket resolves ts into its window for p.
func (p Period) Bucket(ts int64) (Bucket, error) {
	start, err := BucketStart(ts, p)
	if err != nil {
		return Bucket{}, err
	}
	return Bucket{Start: start, Key: strconv.FormatInt(start, 10)}, nil
}
