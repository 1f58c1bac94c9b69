package weather

import (
	"time"
)

// Reading is a single observed temperature. TempTenths is °F x10.
type Reading struct {
	TempTenths        int64  `json:"tempTenths"`
	ObservedTimestamp int64  `json:"observedTimestamp"` // unix seconds
	Source            string `json:"source"`
}

// HealthStatus is the traffic-light state reported by a health probe.
type HealthStatus string

const (
	HealthGreen  HealthStatus = "green"
	HealthYellow HealthStatus = "yellow"
	HealthRed    HealthStatus = "red"
)

// severity orders statuses from healthy to degraded.
func (s HealthStatus) severity() int {
	switch s {
	case HealthGreen:
		return 0
	case HealthYellow:
		return 1
	default:
		return 2
	}
}

// Worse reports whether s is more degraded than other.
func (s HealthStatus) Worse(other HealthStatus) bool {
	return s.severity() > other.severity()
}

// ProviderHealth is the result of one liveness probe. Only the latest value
// is meaningful; it is never stored as history.
type ProviderHealth struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	LatencyMs     int64        `json:"latencyMs"`
	LastCheckedAt time.Time    `json:"lastCheckedAt"`
	ErrorMessage  string       `json:"errorMessage,omitempty"`
}
