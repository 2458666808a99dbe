package domain

import "github.com/shopspring/decimal"

// PlatformFeeDivisor takes 1% of the relevant amount.
const PlatformFeeDivisor = 100

// ReferralShareDivisor earmarks 25% of the platform fee for the referrer.
const ReferralShareDivisor = 4

// PlatformFee returns floor(amount / 100).
func PlatformFee(amount uint64) uint64 {
	return amount / PlatformFeeDivisor
}

// ReferralCredit returns floor(fee * 0.25).
func ReferralCredit(fee uint64) uint64 {
	return fee / ReferralShareDivisor
}

// ToLamports converts a SOL quantity to lamports, truncating sub-lamport dust.
func ToLamports(sol decimal.Decimal) uint64 {
	if !sol.IsPositive() {
		return 0
	}
	return sol.Shift(9).Floor().BigInt().Uint64()
}

// LamportsToSOL converts lamports to SOL for presentation.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Shift(-9)
}

// PortionOf returns floor(balance * percent / 100).
func PortionOf(balance uint64, percent decimal.Decimal) uint64 {
	if balance == 0 || !percent.IsPositive() {
		return 0
	}
	v := decimal.NewFromUint64(balance).Mul(percent).Div(decimal.NewFromInt(100)).Floor()
	if !v.IsPositive() {
		return 0
	}
	return v.BigInt().Uint64()
}
