// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package btcunit provides the size and fee rate units used when reporting
// the cost of a transaction under review.
package btcunit

import (
	"math"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
)

const (
	// kilo is a generic multiplier for kilo units.
	kilo = 1000

	// floatStringPrecision is the number of decimal places shown when a
	// fee rate is rendered. Three places keep sub-satoshi rates visible.
	floatStringPrecision = 3
)

// SatPerVByte is a fee rate in sat/vbyte. The rate is held as satoshis per
// kilo-weight-unit so that fees computed from a weight never go through an
// intermediate rounded vbyte count.
type SatPerVByte struct {
	satsPerKWU *big.Rat
}

// NewSatPerVByte creates a new fee rate in sat/vb.
func NewSatPerVByte(rate btcutil.Amount) SatPerVByte {
	return CalcSatPerVByte(rate, NewVByte(1))
}

// CalcSatPerVByte calculates the fee rate in sat/vb for a given fee and size.
// A zero size yields a zero rate.
func CalcSatPerVByte(fee btcutil.Amount, vb VByte) SatPerVByte {
	if vb.wu == 0 {
		return SatPerVByte{satsPerKWU: big.NewRat(0, 1)}
	}

	return SatPerVByte{satsPerKWU: big.NewRat(
		int64(fee)*kilo, safeUint64ToInt64(vb.wu),
	)}
}

// Equal returns true if the fee rate is equal to the other fee rate.
func (s SatPerVByte) Equal(other SatPerVByte) bool {
	return s.satsPerKWU.Cmp(other.satsPerKWU) == 0
}

// LessThan returns true if the fee rate is less than the other fee rate.
func (s SatPerVByte) LessThan(other SatPerVByte) bool {
	return s.satsPerKWU.Cmp(other.satsPerKWU) < 0
}

// String returns a human-readable string of the fee rate.
func (s SatPerVByte) String() string {
	perVByte := new(big.Rat).Mul(
		s.satsPerKWU, big.NewRat(blockchain.WitnessScaleFactor, kilo),
	)

	return perVByte.FloatString(floatStringPrecision) + " sat/vb"
}

// safeUint64ToInt64 converts a uint64 to an int64, capping at math.MaxInt64.
// Transaction weights never get near the cap.
func safeUint64ToInt64(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(u)
}
