package settlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/weather-markets/internal/market"
	"github.com/i474232898/weather-markets/internal/metrics"
	"github.com/i474232898/weather-markets/internal/weather"
)

// NothingReadyMessage is reported when no market has reached its resolve time.
const NothingReadyMessage = "No markets ready for settlement"

// ErrUnknownCity means a market references a city hash that is no longer
// configured.
var ErrUnknownCity = errors.New("unknown city hash")

// HealthRecorder receives the outcome of each provider reading call.
type HealthRecorder interface {
	RecordSuccess(ctx context.Context)
	RecordError(ctx context.Context)
}

// Canceller cancels a market that can never be resolved.
type Canceller interface {
	CancelMarketBySettler(ctx context.Context, id uint64) (common.Hash, error)
}

// Result is the outcome of one settlement run. Pending counts markets that
// are not resolved after this run and did not fail: not yet due, or due but
// still without an observation.
type Result struct {
	RunID     string             `json:"runId"`
	Settled   int                `json:"settled"`
	Failed    int                `json:"failed"`
	Pending   int                `json:"pending"`
	Cancelled int                `json:"cancelled"`
	Errors    []market.ItemError `json:"errors"`
	Message   string             `json:"message,omitempty"`
}

// Options configures a Settler.
type Options struct {
	// StaleAfter cancels a due market that still has no reading this long
	// after its resolve time. Zero disables cancellation.
	StaleAfter time.Duration
}

type Settler struct {
	reader    MarketReader
	provider  weather.Provider
	registry  *market.Registry
	resolver  Resolver
	canceller Canceller
	health    HealthRecorder
	opts      Options
	logger    logrus.FieldLogger
	now       func() time.Time
}

func NewSettler(
	reader MarketReader,
	provider weather.Provider,
	registry *market.Registry,
	resolver Resolver,
	canceller Canceller,
	health HealthRecorder,
	opts Options,
	logger logrus.FieldLogger,
) *Settler {
	return &Settler{
		reader:    reader,
		provider:  provider,
		registry:  registry,
		resolver:  resolver,
		canceller: canceller,
		health:    health,
		opts:      opts,
		logger:    logger.WithField("component", "settler"),
		now:       time.Now,
	}
}

// Pending lists markets that are not yet resolved or cancelled. Markets that
// could not be read are logged and left out.
func (s *Settler) Pending(ctx context.Context) ([]market.Market, error) {
	pending, readErrs, err := FetchPendingMarkets(ctx, s.reader, s.now().Unix())
	for _, e := range readErrs {
		s.logger.WithField("market_id", e.ID).Warn(e.Message)
	}
	return pending, err
}

// Run settles every due market, one at a time. A failure on one market is
// recorded and the run moves on; only reading the market count can fail the run.
func (s *Settler) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString(), Errors: []market.ItemError{}}
	log := s.logger.WithField("run_id", res.RunID)
	now := s.now()

	pending, readErrs, err := FetchPendingMarkets(ctx, s.reader, now.Unix())
	if err != nil {
		return res, err
	}
	for _, e := range readErrs {
		log.WithField("market_id", e.ID).Error(e.Message)
		res.Failed++
		res.Errors = append(res.Errors, e)
		metrics.MarketsSettled.WithLabelValues(metrics.OutcomeError).Inc()
	}
	ready := SelectReadyMarkets(pending, now.Unix())
	res.Pending = len(pending) - len(ready)

	if len(ready) == 0 {
		res.Message = NothingReadyMessage
		log.WithFields(logrus.Fields{"pending": res.Pending, "failed": res.Failed}).Info(NothingReadyMessage)
		return res, nil
	}

	for _, m := range ready {
		entry := log.WithField("market_id", m.ID)
		outcome, err := s.settleOne(ctx, m, now, entry)
		switch {
		case err != nil:
			entry.WithError(err).Error("market settlement failed")
			res.Failed++
			res.Errors = append(res.Errors, market.ItemError{ID: strconv.FormatUint(m.ID, 10), Message: err.Error()})
			metrics.MarketsSettled.WithLabelValues(metrics.OutcomeError).Inc()
		case outcome == outcomeSettled:
			res.Settled++
			metrics.MarketsSettled.WithLabelValues(metrics.OutcomeSuccess).Inc()
		case outcome == outcomeCancelled:
			res.Cancelled++
			metrics.MarketsSettled.WithLabelValues("cancelled").Inc()
		default:
			res.Pending++
		}
	}

	log.WithFields(logrus.Fields{
		"settled":   res.Settled,
		"failed":    res.Failed,
		"pending":   res.Pending,
		"cancelled": res.Cancelled,
	}).Info("settlement run finished")
	return res, nil
}

type outcome int

const (
	outcomeSettled outcome = iota
	outcomeWaiting
	outcomeCancelled
)

func (s *Settler) settleOne(ctx context.Context, m market.Market, now time.Time, log logrus.FieldLogger) (outcome, error) {
	city, ok := s.registry.Lookup(m.CityHash)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCity, m.CityHash.Hex())
	}
	log = log.WithField("city", city.ID)

	reading, err := s.provider.GetFirstReadingAtOrAfter(ctx, city.Latitude, city.Longitude, m.ResolveTimeSec)
	if err != nil {
		if weather.IsNoData(err) {
			// The providers answered; the observation just does not exist yet.
			s.health.RecordSuccess(ctx)
			return s.handleNoData(ctx, m, now, log)
		}
		s.health.RecordError(ctx)
		return 0, err
	}
	s.health.RecordSuccess(ctx)

	tx, err := s.resolver.Resolve(ctx, m, city, reading)
	if err != nil {
		return 0, err
	}
	log.WithFields(logrus.Fields{
		"temp_tenths": reading.TempTenths,
		"observed_at": reading.ObservedTimestamp,
		"source":      reading.Source,
		"tx":          tx.Hex(),
	}).Info("market resolved")
	return outcomeSettled, nil
}

func (s *Settler) handleNoData(ctx context.Context, m market.Market, now time.Time, log logrus.FieldLogger) (outcome, error) {
	overdue := now.Sub(time.Unix(m.ResolveTimeSec, 0))
	if s.opts.StaleAfter <= 0 || overdue < s.opts.StaleAfter || s.canceller == nil {
		log.WithField("overdue", overdue.String()).Info("no reading yet, market stays pending")
		return outcomeWaiting, nil
	}

	tx, err := s.canceller.CancelMarketBySettler(ctx, m.ID)
	if err != nil {
		return 0, fmt.Errorf("cancel stale market: %w", err)
	}
	log.WithFields(logrus.Fields{"overdue": overdue.String(), "tx": tx.Hex()}).Warn("stale market cancelled")
	return outcomeCancelled, nil
}
