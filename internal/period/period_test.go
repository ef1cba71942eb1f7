package period

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Period
	}{
		{"any", Any},
		{"5m", FiveMinutes},
		{"15m", FifteenMinutes},
		{"hourly", Hourly},
		{"1h", Hourly},
		{"4h", FourHours},
		{"daily", Daily},
		{"1d", Daily},
		{"weekly", Weekly},
		{"1W", Weekly},
		{" total ", Total},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Unknown(t *testing.T) {
	for _, in := range []string{"", "2h", "monthly", "1m"} {
		_, err := Parse(in)
		if !errors.Is(err, ErrUnknownPeriod) {
			t.Errorf("Parse(%q): expected ErrUnknownPeriod, got %v", in, err)
		}
	}
}

func TestParseList_FailsFast(t *testing.T) {
	_, err := ParseList([]string{"hourly", "bogus", "daily"})
	assert.ErrorIs(t, err, ErrUnknownPeriod)

	got, err := ParseList([]string{"hourly", "daily", "weekly"})
	require.NoError(t, err)
	assert.Equal(t, StatPeriods, got)
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("fortnight") })
}

func TestBucketStart(t *testing.T) {
	tests := []struct {
		name string
		ts   int64
		p    Period
		want int64
	}{
		{"zero", 0, FiveMinutes, 0},
		{"inside first bucket", 100, FiveMinutes, 0},
		{"mid bucket", 4000, FiveMinutes, 3900},
		{"exact boundary", 3900, FiveMinutes, 3900},
		{"last second of bucket", 4199, FiveMinutes, 3900},
		{"hourly", 7325, Hourly, 7200},
		{"four hours", 50000, FourHours, 43200},
		{"daily", 1704067234, Daily, 1704067200},
		{"weekly", 1704067234, Weekly, 1703721600},
		{"negative", -1, FiveMinutes, -300},
		{"negative boundary", -300, FiveMinutes, -300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BucketStart(tt.ts, tt.p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBucketStart_NotTimeAligned(t *testing.T) {
	_, err := BucketStart(100, Any)
	assert.ErrorIs(t, err, ErrUnknownPeriod)

	_, err = BucketStart(100, Total)
	assert.ErrorIs(t, err, ErrUnknownPeriod)
}

// Every timestamp lies inside its bucket and bucketing is idempotent.
func TestBucketStart_Properties(t *testing.T) {
	timestamps := []int64{-86401, -7, 0, 1, 299, 300, 301, 3599, 3600, 1704067234, 1 << 40}
	for _, p := range []Period{FiveMinutes, FifteenMinutes, Hourly, FourHours, Daily, Weekly} {
		for _, ts := range timestamps {
			start, err := BucketStart(ts, p)
			require.NoError(t, err)

			if start > ts || ts >= start+p.Seconds() {
				t.Errorf("%s: ts=%d not in [%d, %d)", p, ts, start, start+p.Seconds())
			}

			again, err := BucketStart(start, p)
			require.NoError(t, err)
			if again != start {
				t.Errorf("%s: BucketStart not idempotent for ts=%d: %d != %d", p, ts, again, start)
			}
		}
	}
}

func TestPrevStart(t *testing.T) {
	assert.Equal(t, int64(3600), PrevStart(3900, FiveMinutes))
	assert.Equal(t, int64(0), PrevStart(3600, Hourly))
}

func TestTextRoundTrip(t *testing.T) {
	var p Period
	require.NoError(t, p.UnmarshalText([]byte("1d")))
	assert.Equal(t, Daily, p)

	text, err := p.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "daily", string(text))

	_, err = Period(99).MarshalText()
	assert.ErrorIs(t, err, ErrUnknownPeriod)
}

func TestBucket(t *testing.T) {
	b, err := FiveMinutes.Bucket(4000)
	require.NoError(t, err)
	assert.Equal(t, Bucket{Start: 3900, Key: "3900"}, b)

	_, err = Any.Bucket(4000)
	assert.ErrorIs(t, err, ErrUnknownPeriod)
}
