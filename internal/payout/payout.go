// Package payout mirrors the market contract's parimutuel math. Every value
// that decides a payout is computed on big.Int with truncating division;
// floats appear only in display estimates.
package payout

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// FeeBasisPoints is the protocol fee taken from the losing pool (1%).
	FeeBasisPoints = 100
	basisPoints    = 10000

	// MaxMultiplier caps the displayed implied multiplier.
	MaxMultiplier = 99.0
	// EmptyPoolMultiplier is shown for both sides before any bet.
	EmptyPoolMultiplier = 2.0
)

// Side is the outcome a bet backs.
type Side string

const (
	Yes Side = "yes"
	No  Side = "no"
)

var ErrInvalidSide = errors.New("side must be yes or no")

// ParseSide validates a side string.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Yes, No:
		return Side(s), nil
	}
	return "", ErrInvalidSide
}

var (
	bigFeeBps = big.NewInt(FeeBasisPoints)
	bigBps    = big.NewInt(basisPoints)
	big100    = big.NewInt(100)
)

// FeeFromLosingPool returns losingPool * 100 / 10000, truncated.
func FeeFromLosingPool(losingPool *big.Int) *big.Int {
	fee := new(big.Int).Mul(losingPool, bigFeeBps)
	return fee.Quo(fee, bigBps)
}

// PayoutForWinner returns stake + (losingPool - fee) * stake / winningPool,
// or zero when the winning pool or the stake is zero.
func PayoutForWinner(winningPool, losingPool, stake *big.Int) *big.Int {
	if winningPool.Sign() == 0 || stake.Sign() == 0 {
		return new(big.Int)
	}
	distributable := new(big.Int).Sub(losingPool, FeeFromLosingPool(losingPool))
	share := distributable.Mul(distributable, stake)
	share.Quo(share, winningPool)
	return share.Add(share, stake)
}

// Preview is the outcome of a hypothetical bet.
type Preview struct {
	Payout        *big.Int `json:"payout"`
	NewYesPercent int64    `json:"newYesPercent"`
	NewNoPercent  int64    `json:"newNoPercent"`
}

// PotentialPayout adds betAmount to the chosen side, then computes the payout
// if that side wins and the resulting odds. The percentages always sum to 100.
func PotentialPayout(yesPool, noPool, betAmount *big.Int, side Side) Preview {
	yes := new(big.Int).Set(yesPool)
	no := new(big.Int).Set(noPool)

	var payout *big.Int
	if side == Yes {
		yes.Add(yes, betAmount)
		payout = PayoutForWinner(yes, no, betAmount)
	} else {
		no.Add(no, betAmount)
		payout = PayoutForWinner(no, yes, betAmount)
	}

	yesPct, noPct := Percentages(yes, no)
	return Preview{Payout: payout, NewYesPercent: yesPct, NewNoPercent: noPct}
}

// Percentages returns the truncated yes share and its complement. An empty
// market is 50/50.
func Percentages(yesPool, noPool *big.Int) (int64, int64) {
	total := new(big.Int).Add(yesPool, noPool)
	if total.Sign() == 0 {
		return 50, 50
	}
	pct := new(big.Int).Mul(yesPool, big100)
	pct.Quo(pct, total)
	y := pct.Int64()
	return y, 100 - y
}

// ImpliedMultiplier estimates the marginal return of a tiny bet on side,
// after the fee. Display only.
func ImpliedMultiplier(yesPool, noPool *big.Int, side Side) float64 {
	if yesPool.Sign() == 0 && noPool.Sign() == 0 {
		return EmptyPoolMultiplier
	}
	winning, losing := yesPool, noPool
	if side == No {
		winning, losing = noPool, yesPool
	}
	if winning.Sign() == 0 {
		return MaxMultiplier
	}

	w, _ := new(big.Float).SetInt(winning).Float64()
	l, _ := new(big.Float).SetInt(losing).Float64()
	m := 1 + l*(1-float64(FeeBasisPoints)/basisPoints)/w
	if m > MaxMultiplier {
		return MaxMultiplier
	}
	return m
}

// FormatMultiplier renders a multiplier as "2.35x".
func FormatMultiplier(m float64) string {
	return decimal.NewFromFloat(m).StringFixed(2) + "x"
}

// FormatAmount renders a fixed-point amount with the given token decimals,
// rounded to places.
func FormatAmount(amount *big.Int, decimals, places int32) string {
	return decimal.NewFromBigInt(amount, -decimals).StringFixed(places)
}
