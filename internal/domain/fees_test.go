package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPlatformFeeAndReferralCredit(t *testing.T) {
	cases := []struct {
		amount   uint64
		fee      uint64
		referral uint64
	}{
		{amount: 0, fee: 0, referral: 0},
		{amount: 99, fee: 0, referral: 0},
		{amount: 10_000, fee: 100, referral: 25},
		{amount: 10_399, fee: 103, referral: 25},
		{amount: 500_000_000, fee: 5_000_000, referral: 1_250_000},
		{amount: 1_000_000_007, fee: 10_000_000, referral: 2_500_000},
	}

	for _, tc := range cases {
		fee := PlatformFee(tc.amount)
		if fee != tc.fee {
			t.Errorf("PlatformFee(%d) = %d, want %d", tc.amount, fee, tc.fee)
		}
		if got := ReferralCredit(fee); got != tc.referral {
			t.Errorf("ReferralCredit(%d) = %d, want %d", fee, got, tc.referral)
		}
	}
}

func TestReferralCreditMatchesQuarterFloor(t *testing.T) {
	for fee := uint64(0); fee < 1000; fee++ {
		want := decimal.NewFromUint64(fee).Mul(decimal.NewFromFloat(0.25)).Floor().IntPart()
		if got := ReferralCredit(fee); int64(got) != want {
			t.Fatalf("ReferralCredit(%d) = %d, want %d", fee, got, want)
		}
	}
}

func TestToLamports(t *testing.T) {
	cases := []struct {
		sol  string
		want uint64
	}{
		{"0", 0},
		{"-1", 0},
		{"0.5", 500_000_000},
		{"1", 1_000_000_000},
		{"0.0000000019", 1},
		{"2.123456789", 2_123_456_789},
	}

	for _, tc := range cases {
		got := ToLamports(decimal.RequireFromString(tc.sol))
		if got != tc.want {
			t.Errorf("ToLamports(%s) = %d, want %d", tc.sol, got, tc.want)
		}
	}
}

func TestPortionOf(t *testing.T) {
	cases := []struct {
		balance uint64
		percent string
		want    uint64
	}{
		{1_000_000, "50", 500_000},
		{1_000_000, "100", 1_000_000},
		{3, "50", 1},
		{1, "50", 0},
		{0, "50", 0},
		{1_000_000, "0", 0},
		{1_000_000, "33.3", 333_000},
	}

	for _, tc := range cases {
		got := PortionOf(tc.balance, decimal.RequireFromString(tc.percent))
		if got != tc.want {
			t.Errorf("PortionOf(%d, %s) = %d, want %d", tc.balance, tc.percent, got, tc.want)
		}
	}
}
