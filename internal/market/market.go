package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RawStatus is the contract's status field. Transitions run
// Open -> Closed -> Resolved|Cancelled; the last two are terminal.
type RawStatus uint8

const (
	RawOpen RawStatus = iota
	RawClosed
	RawResolved
	RawCancelled
)

// Status is the derived status used by settlement and the dashboard. It is
// never stored.
type Status string

const (
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
	StatusResolved  Status = "resolved"
	StatusCancelled Status = "cancelled"
)

// DeriveStatus maps the raw contract status, treating an open market past
// its betting deadline as closed.
func DeriveStatus(raw RawStatus, bettingDeadlineSec, nowSec int64) Status {
	switch raw {
	case RawOpen:
		if nowSec >= bettingDeadlineSec {
			return StatusClosed
		}
		return StatusOpen
	case RawClosed:
		return StatusClosed
	case RawResolved:
		return StatusResolved
	default:
		return StatusCancelled
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// Currency selects the pool token of a market.
type Currency uint8

const (
	CurrencyNative Currency = iota
	CurrencyStable
)

// ParseCurrency maps a config value to a Currency.
func ParseCurrency(s string) Currency {
	if s == "stable" {
		return CurrencyStable
	}
	return CurrencyNative
}

// Decimals is the fixed-point precision of the pool token.
func (c Currency) Decimals() int32 {
	if c == CurrencyStable {
		return 6
	}
	return 18
}

func (c Currency) String() string {
	if c == CurrencyStable {
		return "stable"
	}
	return "native"
}

// Config is a market about to be created for one city/slot.
type Config struct {
	City           City        `json:"city"`
	CityHash       common.Hash `json:"cityHash"`
	ResolveTimeSec int64       `json:"resolveTimeSec"`
}

// Market mirrors the contract's market struct. Pools are in the token's
// smallest unit.
type Market struct {
	ID                 uint64      `json:"id"`
	CityHash           common.Hash `json:"cityHash"`
	ResolveTimeSec     int64       `json:"resolveTimeSec"`
	BettingDeadlineSec int64       `json:"bettingDeadlineSec"`
	ThresholdTenths    int64       `json:"thresholdTenths"`
	Currency           Currency    `json:"currency"`
	RawStatus          RawStatus   `json:"rawStatus"`
	YesPool            *big.Int    `json:"yesPool"`
	NoPool             *big.Int    `json:"noPool"`
	TotalFees          *big.Int    `json:"totalFees"`

	// Set once resolved.
	ResolvedTempTenths *int64 `json:"resolvedTempTenths,omitempty"`
	ObservedTimestamp  *int64 `json:"observedTimestamp,omitempty"`
	Outcome            *bool  `json:"outcome,omitempty"`
}

// Status derives the logical status at nowSec.
func (m Market) Status(nowSec int64) Status {
	return DeriveStatus(m.RawStatus, m.BettingDeadlineSec, nowSec)
}
