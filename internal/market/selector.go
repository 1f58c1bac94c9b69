package market

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// RotationKey holds the next city offset in the external store.
	RotationKey = "markets:city-rotation-index"

	// MaxDailyMarkets is a hard product ceiling.
	MaxDailyMarkets = 5
)

var (
	ErrNoCitiesConfigured = errors.New("no cities configured")
	ErrTooManyMarkets     = fmt.Errorf("daily market count exceeds %d", MaxDailyMarkets)
	ErrInvalidMarketCount = errors.New("daily market count must not be negative")
)

// KV is the slice of the external key-value store the market jobs use.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// SelectMarketsForDay picks dailyCount cities round-robin starting at the
// stored rotation index and schedules them at baseTime + (i+1)*spacing, so
// no slot resolves at baseTime itself. The index is then advanced by
// dailyCount.
//
// The read and the write-back are two separate store calls with no
// compare-and-swap: overlapping runs can read the same index and assign
// duplicate cities. Runs are expected to be exclusive.
func SelectMarketsForDay(ctx context.Context, kv KV, dailyCount int, baseTimeSec, spacingSec int64, cities []City) ([]Config, error) {
	if dailyCount > MaxDailyMarkets {
		return nil, ErrTooManyMarkets
	}
	if dailyCount < 0 {
		return nil, ErrInvalidMarketCount
	}
	if len(cities) == 0 {
		return nil, ErrNoCitiesConfigured
	}

	start, err := readRotationIndex(ctx, kv)
	if err != nil {
		return nil, err
	}

	configs := make([]Config, 0, dailyCount)
	for i := 0; i < dailyCount; i++ {
		city := cities[int((start+int64(i))%int64(len(cities)))]
		configs = append(configs, Config{
			City:           city,
			CityHash:       city.Hash(),
			ResolveTimeSec: baseTimeSec + int64(i+1)*spacingSec,
		})
	}

	next := strconv.FormatInt(start+int64(dailyCount), 10)
	if err := kv.Set(ctx, RotationKey, next, 0); err != nil {
		return nil, fmt.Errorf("write rotation index: %w", err)
	}
	return configs, nil
}

func readRotationIndex(ctx context.Context, kv KV) (int64, error) {
	raw, ok, err := kv.Get(ctx, RotationKey)
	if err != nil {
		return 0, fmt.Errorf("read rotation index: %w", err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("rotation index %q is not a non-negative integer", raw)
	}
	return n, nil
}
