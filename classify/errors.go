// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package classify

import "errors"

var (
	// ErrInvalidMultisig is returned when a witness or redeem script does
	// not follow the bare multisig template.
	ErrInvalidMultisig = errors.New("invalid multisig script")

	// ErrMissingUtxo is returned when an input carries no usable UTXO
	// information, so its value cannot be known.
	ErrMissingUtxo = errors.New("input is missing utxo information")

	// ErrMixedInputs is returned when an input's policy differs from the
	// policy established by the first input.
	ErrMixedInputs = errors.New("mixed inputs in the transaction")

	// ErrNegativeFee is returned when the outputs spend more than the
	// declared input value.
	ErrNegativeFee = errors.New("outputs exceed declared input value")

	// ErrMissingDerivation is returned when a multisig key has no
	// declared derivation.
	ErrMissingDerivation = errors.New("missing derivation for multisig key")

	// ErrUnresolvedCosigners is returned when not every multisig key can
	// be traced back to a global xpub.
	ErrUnresolvedCosigners = errors.New("unable to resolve all cosigners")

	// ErrNotParsed is returned by queries that need a successful Parse.
	ErrNotParsed = errors.New("psbt has not been parsed")

	// ErrNoChangeOutput is returned when a change entry is requested
	// beyond the number of change outputs.
	ErrNoChangeOutput = errors.New("no such change output")
)
