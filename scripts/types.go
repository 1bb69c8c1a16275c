// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package scripts builds and recognizes the output script templates a
// signing device can own.
package scripts

// ScriptType is the closed set of output templates the classifier knows
// how to re-derive. Any other script is NonStandard.
type ScriptType uint8

const (
	// NonStandard is any script outside the supported templates.
	NonStandard ScriptType = iota

	// P2PKH is a legacy pay-to-pubkey-hash output.
	P2PKH

	// P2SH is a legacy pay-to-script-hash output whose redeem script is
	// not a witness program.
	P2SH

	// P2SHP2WPKH is a P2WPKH program nested in P2SH.
	P2SHP2WPKH

	// P2WPKH is a native segwit v0 pubkey-hash output.
	P2WPKH

	// P2WSH is a native segwit v0 script-hash output.
	P2WSH

	// P2SHP2WSH is a P2WSH program nested in P2SH.
	P2SHP2WSH

	// P2TR is a segwit v1 taproot output.
	P2TR
)

// String returns the short tag of the script type.
func (t ScriptType) String() string {
	switch t {
	case P2PKH:
		return "p2pkh"

	case P2SH:
		return "p2sh"

	case P2SHP2WPKH:
		return "p2sh-p2wpkh"

	case P2WPKH:
		return "p2wpkh"

	case P2WSH:
		return "p2wsh"

	case P2SHP2WSH:
		return "p2sh-p2wsh"

	case P2TR:
		return "p2tr"

	case NonStandard:
		return "nonstandard"
	}

	return "unknown"
}

// IsScriptHash reports whether the template commits to a script rather
// than a single key.
func (t ScriptType) IsScriptHash() bool {
	switch t {
	case P2SH, P2WSH, P2SHP2WSH:
		return true

	case NonStandard, P2PKH, P2SHP2WPKH, P2WPKH, P2TR:
		return false
	}

	return false
}

// IsTaproot reports whether keys for this template are found in the taproot
// derivation fields of a PSBT.
func (t ScriptType) IsTaproot() bool {
	return t == P2TR
}
