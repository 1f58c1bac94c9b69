package payout

import (
	"math/big"
	"testing"
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad number %q", s)
	}
	return v
}

func TestFeeFromLosingPool(t *testing.T) {
	if got := FeeFromLosingPool(eth(100)); got.Cmp(eth(1)) != 0 {
		t.Fatalf("expected 1e18, got %s", got)
	}
	if got := FeeFromLosingPool(big.NewInt(0)); got.Sign() != 0 {
		t.Fatalf("expected 0, got %s", got)
	}
	// 99 * 100 / 10000 truncates to 0.
	if got := FeeFromLosingPool(big.NewInt(99)); got.Sign() != 0 {
		t.Fatalf("expected truncation to 0, got %s", got)
	}
}

func TestPayoutForWinner(t *testing.T) {
	if got := PayoutForWinner(big.NewInt(0), eth(5), eth(1)); got.Sign() != 0 {
		t.Fatalf("expected 0 for empty winning pool, got %s", got)
	}
	if got := PayoutForWinner(eth(1), eth(5), big.NewInt(0)); got.Sign() != 0 {
		t.Fatalf("expected 0 for zero stake, got %s", got)
	}

	got := PayoutForWinner(eth(1), eth(2), eth(1))
	if want := mustBig(t, "2980000000000000000"); got.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}

	// (1000 - 10) * 1 / 3 = 330 truncated, plus stake.
	if got := PayoutForWinner(big.NewInt(3), big.NewInt(1000), big.NewInt(1)); got.Int64() != 331 {
		t.Fatalf("expected 331, got %s", got)
	}
}

func TestPotentialPayoutPercentagesSumTo100(t *testing.T) {
	pools := []int64{0, 1, 2, 3, 7, 33, 1000, 999999}
	for _, y := range pools {
		for _, n := range pools {
			for _, side := range []Side{Yes, No} {
				p := PotentialPayout(big.NewInt(y), big.NewInt(n), big.NewInt(5), side)
				if p.NewYesPercent+p.NewNoPercent != 100 {
					t.Fatalf("yes=%d no=%d side=%s: percentages %d+%d", y, n, side, p.NewYesPercent, p.NewNoPercent)
				}
			}
		}
	}
}

func TestPotentialPayoutAddsBetFirst(t *testing.T) {
	p := PotentialPayout(eth(0), eth(2), eth(1), Yes)
	// Pools become yes=1, no=2: same as the reference payout.
	if want := mustBig(t, "2980000000000000000"); p.Payout.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, p.Payout)
	}
	if p.NewYesPercent != 33 || p.NewNoPercent != 67 {
		t.Fatalf("unexpected odds %d/%d", p.NewYesPercent, p.NewNoPercent)
	}

	yes := eth(3)
	_ = PotentialPayout(yes, eth(1), eth(1), Yes)
	if yes.Cmp(eth(3)) != 0 {
		t.Fatal("input pools must not be mutated")
	}
}

func TestPercentagesEmptyMarket(t *testing.T) {
	y, n := Percentages(big.NewInt(0), big.NewInt(0))
	if y != 50 || n != 50 {
		t.Fatalf("expected 50/50, got %d/%d", y, n)
	}
}

func TestImpliedMultiplier(t *testing.T) {
	if got := ImpliedMultiplier(big.NewInt(0), big.NewInt(0), Yes); got != 2.0 {
		t.Fatalf("expected 2.0 for empty pools, got %v", got)
	}
	if got := ImpliedMultiplier(big.NewInt(0), big.NewInt(0), No); got != 2.0 {
		t.Fatalf("expected 2.0 for empty pools, got %v", got)
	}
	if got := ImpliedMultiplier(big.NewInt(0), eth(1), Yes); got != MaxMultiplier {
		t.Fatalf("expected cap for empty side, got %v", got)
	}
	if got := ImpliedMultiplier(big.NewInt(1), eth(1000), Yes); got != MaxMultiplier {
		t.Fatalf("expected cap, got %v", got)
	}
	got := ImpliedMultiplier(eth(1), eth(1), No)
	if got < 1.989 || got > 1.991 {
		t.Fatalf("expected ~1.99, got %v", got)
	}
}

func TestFormatters(t *testing.T) {
	if got := FormatMultiplier(1.99); got != "1.99x" {
		t.Fatalf("unexpected multiplier %q", got)
	}
	if got := FormatMultiplier(2); got != "2.00x" {
		t.Fatalf("unexpected multiplier %q", got)
	}
	if got := FormatAmount(mustBig(t, "2980000000000000000"), 18, 4); got != "2.9800" {
		t.Fatalf("unexpected amount %q", got)
	}
	if got := FormatAmount(big.NewInt(1234567), 6, 2); got != "1.23" {
		t.Fatalf("unexpected stable amount %q", got)
	}
}
