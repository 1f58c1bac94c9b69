// Package settlement finds markets whose resolve time has passed and
// resolves them with the first observed reading at or after that time.
package settlement

import (
	"context"
	"fmt"
	"strconv"

	"github.com/i474232898/weather-markets/internal/market"
)

// MarketReader is the read side of the market contract.
type MarketReader interface {
	GetMarketCount(ctx context.Context) (uint64, error)
	GetMarket(ctx context.Context, id uint64) (market.Market, error)
}

// FetchPendingMarkets reads markets 0..count-1 and keeps those whose derived
// status is not terminal at nowSec. A market that cannot be read is reported
// in the returned item errors and the scan moves on; only a failed count read
// fails the scan.
func FetchPendingMarkets(ctx context.Context, reader MarketReader, nowSec int64) ([]market.Market, []market.ItemError, error) {
	count, err := reader.GetMarketCount(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("market count: %w", err)
	}

	pending := make([]market.Market, 0)
	var readErrs []market.ItemError
	for id := uint64(0); id < count; id++ {
		m, err := reader.GetMarket(ctx, id)
		if err != nil {
			readErrs = append(readErrs, market.ItemError{
				ID:      strconv.FormatUint(id, 10),
				Message: fmt.Sprintf("read market: %v", err),
			})
			continue
		}
		if m.Status(nowSec).Terminal() {
			continue
		}
		pending = append(pending, m)
	}
	return pending, readErrs, nil
}

// SelectReadyMarkets keeps markets whose resolve time is at or before nowSec.
func SelectReadyMarkets(pending []market.Market, nowSec int64) []market.Market {
	ready := make([]market.Market, 0, len(pending))
	for _, m := range pending {
		if m.ResolveTimeSec <= nowSec {
			ready = append(ready, m)
		}
	}
	return ready
}
