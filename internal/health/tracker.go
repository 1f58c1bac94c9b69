// Package health tracks the weather provider's settlement-time health in the
// shared store and derives a coarse status from it.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/i474232898/weather-markets/internal/store"
	"github.com/i474232898/weather-markets/internal/weather"
)

// RecordKey is where the record lives in the store.
const RecordKey = "weather:provider-health"

const (
	DownAfter        = 60 * time.Minute
	RecentErrorSpan  = 30 * time.Minute
	ErrorsDegradedAt = 3
)

// Status is the derived provider status.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Record is the persisted health state.
type Record struct {
	LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`
	LastErrorAt   *time.Time `json:"lastErrorAt,omitempty"`
	RecentErrors  int        `json:"recentErrors"`
}

// DeriveProviderStatus applies the decaying windows. A nil record is
// degraded: no history is not evidence of health.
func DeriveProviderStatus(rec *Record, now time.Time) Status {
	if rec == nil {
		return StatusDegraded
	}
	if rec.LastSuccessAt == nil || now.Sub(*rec.LastSuccessAt) > DownAfter {
		return StatusDown
	}
	if (rec.LastErrorAt != nil && now.Sub(*rec.LastErrorAt) <= RecentErrorSpan) || rec.RecentErrors >= ErrorsDegradedAt {
		return StatusDegraded
	}
	return StatusHealthy
}

// TrafficLight maps a derived status onto the dashboard colours.
func TrafficLight(s Status) weather.HealthStatus {
	switch s {
	case StatusHealthy:
		return weather.HealthGreen
	case StatusDegraded:
		return weather.HealthYellow
	default:
		return weather.HealthRed
	}
}

// Tracker reads and updates the record. Updates are a plain
// read-modify-write: overlapping runs are last-write-wins and can lose an
// error count.
type Tracker struct {
	kv     store.KV
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewTracker(kv store.KV, logger logrus.FieldLogger) *Tracker {
	return &Tracker{kv: kv, logger: logger.WithField("component", "health-tracker"), now: time.Now}
}

// Load returns the current record, or nil when none was written yet.
func (t *Tracker) Load(ctx context.Context) (*Record, error) {
	var rec Record
	if err := store.GetJSON(ctx, t.kv, RecordKey, &rec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load provider health: %w", err)
	}
	return &rec, nil
}

// Status loads the record and derives the status at the current time.
func (t *Tracker) Status(ctx context.Context) (Status, *Record, error) {
	rec, err := t.Load(ctx)
	if err != nil {
		return StatusDegraded, nil, err
	}
	return DeriveProviderStatus(rec, t.now()), rec, nil
}

// RecordSuccess sets lastSuccessAt and clears the error count.
func (t *Tracker) RecordSuccess(ctx context.Context) {
	t.update(ctx, func(rec *Record, now time.Time) {
		rec.LastSuccessAt = &now
		rec.RecentErrors = 0
	})
}

// RecordError sets lastErrorAt and bumps the error count.
func (t *Tracker) RecordError(ctx context.Context) {
	t.update(ctx, func(rec *Record, now time.Time) {
		rec.LastErrorAt = &now
		rec.RecentErrors++
	})
}

// update never fails the caller; health bookkeeping must not break settlement.
func (t *Tracker) update(ctx context.Context, mutate func(*Record, time.Time)) {
	rec, err := t.Load(ctx)
	if err != nil {
		t.logger.WithError(err).Warn("provider health record unreadable, starting fresh")
	}
	if rec == nil {
		rec = &Record{}
	}
	mutate(rec, t.now().UTC())
	if err := store.SetJSON(ctx, t.kv, RecordKey, rec, 0); err != nil {
		t.logger.WithError(err).Warn("failed to persist provider health")
	}
}
