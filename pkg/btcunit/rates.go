// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package btcunit provides a set of types for dealing with bitcoin units.
package btcunit

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
)

const (
	// kilo is a generic multiplier for kilo units.
	kilo = 1000

	// floatStringPrecision is the number of decimal places to use when
	// converting a fee rate to a string. We use 3 decimal places to ensure
	// that low fee rates (e.g., 1 sat/kvb = 0.001 sat/vbyte) are displayed
	// with sufficient precision and not rounded to zero.
	floatStringPrecision = 3
)

var (
	// ErrInvalidFeeRate is returned when a fee rate string cannot be
	// parsed or describes a negative rate.
	ErrInvalidFeeRate = errors.New("invalid fee rate")

	// ZeroSatPerVByte is a fee rate of 0 sat/vb.
	ZeroSatPerVByte = NewSatPerVByte(0)

	// ZeroSatPerKVByte is a fee rate of 0 sat/kvb.
	ZeroSatPerKVByte = NewSatPerKVByte(0)
)

// baseFeeRate stores the canonical representation of a fee rate, which is
// satoshis per kilo-weight-unit (sat/kwu). All other fee rate units are
// derived from this.
type baseFeeRate struct {
	// satsPerKWU is the fee rate in satoshis per kilo-weight-unit. This is
	// the canonical representation for all fee rates within this package,
	// chosen for its direct alignment with Bitcoin's weight unit for fee
	// calculations and to minimize rounding errors.
	satsPerKWU *big.Rat
}

// newBaseFeeRate creates a new baseFeeRate with the given numerator and
// denominator. It handles the zero denominator case by returning a zero fee
// rate.
func newBaseFeeRate(numerator btcutil.Amount, denominator uint64) baseFeeRate {
	if denominator == 0 {
		return baseFeeRate{satsPerKWU: big.NewRat(0, 1)}
	}

	return baseFeeRate{satsPerKWU: big.NewRat(
		int64(numerator),
		safeUint64ToInt64(denominator),
	)}
}

// rate returns the canonical rate, treating the zero value as 0 sat/kwu.
func (f baseFeeRate) rate() *big.Rat {
	if f.satsPerKWU == nil {
		return new(big.Rat)
	}

	return f.satsPerKWU
}

// ExactFeeForWeight returns the unrounded fee for the given weight as a
// rational number of satoshis. Callers that accumulate several partial fees
// use this to round only once at the end.
func (f baseFeeRate) ExactFeeForWeight(weightUnit WeightUnit) *big.Rat {
	fee := big.NewRat(0, 1)
	fee.Mul(
		f.rate(),
		big.NewRat(safeUint64ToInt64(weightUnit.wu), kilo),
	)

	return fee
}

// FeeForWeight calculates the fee resulting from this fee rate and the given
// weight in weight units (wu). The result is rounded down.
func (f baseFeeRate) FeeForWeight(weightUnit WeightUnit) btcutil.Amount {
	return FloorAmount(f.ExactFeeForWeight(weightUnit))
}

// FeeForWeightRoundUp calculates the fee resulting from this fee rate and the
// given weight in weight units (wu), rounding up to the nearest satoshi.
func (f baseFeeRate) FeeForWeightRoundUp(weightUnit WeightUnit) btcutil.Amount {
	return CeilAmount(f.ExactFeeForWeight(weightUnit))
}

// FeeForVByte calculates the fee resulting from this fee rate and the given
// size in vbytes (vb), rounded down.
func (f baseFeeRate) FeeForVByte(vb VByte) btcutil.Amount {
	return f.FeeForWeight(vb.ToWU())
}

// FeeForVByteRoundUp calculates the fee resulting from this fee rate and the
// given size in vbytes (vb), rounding up to the nearest satoshi.
func (f baseFeeRate) FeeForVByteRoundUp(vb VByte) btcutil.Amount {
	return f.FeeForWeightRoundUp(vb.ToWU())
}

// IsZero returns true if the fee rate is zero.
func (f baseFeeRate) IsZero() bool {
	return f.rate().Sign() == 0
}

// IsNegative returns true if the fee rate is below zero.
func (f baseFeeRate) IsNegative() bool {
	return f.rate().Sign() < 0
}

// SatPerVByte represents a fee rate in sat/vbyte. Internally, all fee rates
// are stored and operated on as satoshis per kilo-weight-unit (sat/kw).
// Conversions to other units and fee calculations are performed using this
// canonical internal representation.
type SatPerVByte struct {
	baseFeeRate
}

// NewSatPerVByte creates a new fee rate in sat/vb.
func NewSatPerVByte(rate btcutil.Amount) SatPerVByte {
	return CalcSatPerVByte(rate, NewVByte(1))
}

// CalcSatPerVByte calculates the fee rate in sat/vb for a given fee and size.
func CalcSatPerVByte(fee btcutil.Amount, vb VByte) SatPerVByte {
	// To convert the rate to the canonical sat/kwu unit, we use the
	// formula: (fee * 1000) / size_in_wu.
	//
	// vb.wu provides the size in weight units (wu), implicitly accounting
	// for the WitnessScaleFactor.
	numerator := fee * kilo
	denominator := vb.wu

	return SatPerVByte{newBaseFeeRate(numerator, denominator)}
}

// ParseSatPerVByte parses a decimal sat/vb fee rate such as "1", "1.3" or
// "0.25". The value is kept exact, so "1.3" is 13/10 sat/vb and not the
// nearest binary float.
func ParseSatPerVByte(s string) (SatPerVByte, error) {
	rate, ok := new(big.Rat).SetString(s)
	if !ok {
		return SatPerVByte{}, fmt.Errorf("%w: %q", ErrInvalidFeeRate, s)
	}

	if rate.Sign() < 0 {
		return SatPerVByte{}, fmt.Errorf("%w: negative rate %q",
			ErrInvalidFeeRate, s)
	}

	// sat/vb -> sat/kwu is a multiplication by 1000/4.
	rate.Mul(rate, big.NewRat(kilo, blockchain.WitnessScaleFactor))

	return SatPerVByte{baseFeeRate{satsPerKWU: rate}}, nil
}

// ToSatPerKVByte converts the fee rate to sat/kvb.
func (s SatPerVByte) ToSatPerKVByte() SatPerKVByte {
	return SatPerKVByte{s.baseFeeRate}
}

// String returns a human-readable string of the fee rate.
func (s SatPerVByte) String() string {
	// Calculate the fee rate in sat/vb from the canonical sat/kwu.
	// The WitnessScaleFactor (4) is used to convert weight units to vbytes.
	// The `kilo` constant is used to scale kilo-weight-units.
	kwToVbRate := big.NewRat(0, 1)
	kwToVbRate.Mul(s.rate(),
		big.NewRat(blockchain.WitnessScaleFactor, kilo),
	)

	return kwToVbRate.FloatString(floatStringPrecision) + " sat/vb"
}

// Equal returns true if the fee rate is equal to the other fee rate.
func (s SatPerVByte) Equal(other SatPerVByte) bool {
	return s.rate().Cmp(other.rate()) == 0
}

// GreaterThan returns true if the fee rate is greater than the other fee rate.
func (s SatPerVByte) GreaterThan(other SatPerVByte) bool {
	return s.rate().Cmp(other.rate()) > 0
}

// LessThan returns true if the fee rate is less than the other fee rate.
func (s SatPerVByte) LessThan(other SatPerVByte) bool {
	return s.rate().Cmp(other.rate()) < 0
}

// SatPerKVByte represents a fee rate in sat/kvb, the unit used by relay
// policy.
type SatPerKVByte struct {
	baseFeeRate
}

// NewSatPerKVByte creates a new fee rate in sat/kvb.
func NewSatPerKVByte(rate btcutil.Amount) SatPerKVByte {
	return CalcSatPerKVByte(rate, NewKVByte(1))
}

// CalcSatPerKVByte calculates the fee rate in sat/kvb for a given fee and size.
func CalcSatPerKVByte(fee btcutil.Amount, kvb KVByte) SatPerKVByte {
	numerator := fee * kilo
	denominator := kvb.wu

	return SatPerKVByte{newBaseFeeRate(numerator, denominator)}
}

// ToSatPerVByte converts the fee rate to sat/vb.
func (s SatPerKVByte) ToSatPerVByte() SatPerVByte {
	return SatPerVByte{s.baseFeeRate}
}

// Amount returns the rate as whole satoshis per kvb, rounded down, which is
// the form the relay policy helpers take.
func (s SatPerKVByte) Amount() btcutil.Amount {
	return s.FeeForKVByte(NewKVByte(1))
}

// FeeForKVByte calculates the fee resulting from this fee rate and the given
// vsize in kilo-vbytes.
func (s SatPerKVByte) FeeForKVByte(kvb KVByte) btcutil.Amount {
	return s.FeeForWeight(kvb.ToWU())
}

// String returns a human-readable string of the fee rate.
func (s SatPerKVByte) String() string {
	kwToKvbRate := big.NewRat(0, 1)
	kwToKvbRate.Mul(s.rate(),
		big.NewRat(blockchain.WitnessScaleFactor, 1),
	)

	return kwToKvbRate.FloatString(floatStringPrecision) + " sat/kvb"
}

// CeilAmount rounds a rational satoshi value up to the next whole satoshi.
func CeilAmount(r *big.Rat) btcutil.Amount {
	// The rounding logic for ceiling division is based on the formula:
	// (numerator + denominator - 1) / denominator. big.Int.Div rounds
	// towards negative infinity (Euclidean), so negative values are
	// handled by the same formula.
	numerator := r.Num()
	denominator := r.Denom()

	result := big.NewInt(0)
	result.Add(numerator, denominator)
	result.Sub(result, big.NewInt(1))
	result.Div(result, denominator)

	return btcutil.Amount(result.Int64())
}

// FloorAmount rounds a rational satoshi value down to a whole satoshi.
func FloorAmount(r *big.Rat) btcutil.Amount {
	quotient := big.NewInt(0)
	quotient.Div(r.Num(), r.Denom())

	return btcutil.Amount(quotient.Int64())
}

// safeUint64ToInt64 converts a uint64 to an int64, capping at math.MaxInt64.
// This is used to silence gosec warnings about integer overflows. In practice,
// the values being converted are transaction weights or sizes, which are
// limited by consensus rules and are not expected to overflow an int64.
func safeUint64ToInt64(u uint64) int64 {
	if u > math.MaxInt64 {
		slog.Warn("Capping uint64 value to math.MaxInt64",
			slog.Uint64("old", u), slog.Int64("new", math.MaxInt64))

		return math.MaxInt64
	}

	return int64(u)
}
