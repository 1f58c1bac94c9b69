package market

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	internalcommon "github.com/i474232898/weather-markets/internal/common"
	"github.com/i474232898/weather-markets/internal/metrics"
	"github.com/i474232898/weather-markets/internal/weather"
)

// Contract is the write side the creator needs from the market contract.
type Contract interface {
	CreateMarket(ctx context.Context, cityHash common.Hash, resolveTimeSec, thresholdTenths int64, currency Currency) (uint64, error)
}

// CreatorOptions configures a creation run.
type CreatorOptions struct {
	DailyCount int
	Spacing    time.Duration
	Currency   Currency
}

// Creator runs the daily market creation job.
type Creator struct {
	provider weather.Provider
	contract Contract
	kv       KV
	registry *Registry
	opts     CreatorOptions
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewCreator(provider weather.Provider, contract Contract, kv KV, registry *Registry, opts CreatorOptions, logger logrus.FieldLogger) *Creator {
	return &Creator{
		provider: provider,
		contract: contract,
		kv:       kv,
		registry: registry,
		opts:     opts,
		logger:   logger.WithField("component", "market-creator"),
		now:      time.Now,
	}
}

// ThresholdFromForecast rounds a forecast to the nearest whole degree, in
// tenths: 753 -> 750, 755 -> 760.
func ThresholdFromForecast(forecastTenths int64) int64 {
	return internalcommon.RoundHalfUp(float64(forecastTenths)/10) * 10
}

// Run selects today's cities and creates one market per slot. Selection
// errors are fatal; a failure on one market is recorded and the batch
// continues. Markets are created one at a time.
func (c *Creator) Run(ctx context.Context) (CreateResult, error) {
	res := CreateResult{RunID: uuid.NewString(), MarketIDs: []uint64{}, Errors: []ItemError{}}
	log := c.logger.WithField("run_id", res.RunID)

	configs, err := SelectMarketsForDay(ctx, c.kv, c.opts.DailyCount, c.now().Unix(), int64(c.opts.Spacing/time.Second), c.registry.Cities())
	if err != nil {
		return res, err
	}

	for _, cfg := range configs {
		entry := log.WithFields(logrus.Fields{
			"city":         cfg.City.ID,
			"resolve_time": cfg.ResolveTimeSec,
		})

		id, threshold, err := c.createOne(ctx, cfg)
		metrics.MarketsCreated.WithLabelValues(metrics.OutcomeOf(err)).Inc()
		if err != nil {
			entry.WithError(err).Error("market creation failed")
			res.Failed++
			res.Errors = append(res.Errors, ItemError{ID: cfg.City.ID, Message: err.Error()})
			continue
		}

		entry.WithFields(logrus.Fields{"market_id": id, "threshold": threshold}).Info("market created")
		res.Created++
		res.MarketIDs = append(res.MarketIDs, id)
	}

	log.WithFields(logrus.Fields{"created": res.Created, "failed": res.Failed}).Info("market creation run finished")
	return res, nil
}

func (c *Creator) createOne(ctx context.Context, cfg Config) (uint64, int64, error) {
	forecast, err := c.provider.GetForecast(ctx, cfg.City.Latitude, cfg.City.Longitude, cfg.ResolveTimeSec)
	if err != nil {
		return 0, 0, err
	}
	threshold := ThresholdFromForecast(forecast)
	id, err := c.contract.CreateMarket(ctx, cfg.CityHash, cfg.ResolveTimeSec, threshold, c.opts.Currency)
	if err != nil {
		return 0, threshold, err
	}
	return id, threshold, nil
}
