// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package classify

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/psbtcheck/pkg/btcunit"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ChangeEntry describes an output that pays back to the signer.
type ChangeEntry struct {
	// OutputIndex is the position of the output in the transaction.
	OutputIndex int

	// Address is the rendered output script.
	Address string

	// Amount is the output value.
	Amount btcutil.Amount

	// Fingerprints are the hex master fingerprints of every declared
	// derivation, non-taproot ones first.
	Fingerprints []string

	// DerivationPaths are the declared paths, in the same order as
	// Fingerprints, e.g. "m/86h/1h/0h/1/1".
	DerivationPaths []string
}

// Ledger is the outcome of one classification pass. It is filled once by
// Parser.Parse and must be treated as read-only afterwards.
//
// The amounts always balance:
//
//	InputAmount + ExternalInputAmount ==
//		SpendAmount + ChangeAmount + FeeAmount
type Ledger struct {
	// NumInputs is the number of inputs the signer controls.
	NumInputs int

	// NumExternalInputs is the number of inputs contributed by other
	// parties.
	NumExternalInputs int

	// InputAmount is the value of the signer's inputs.
	InputAmount btcutil.Amount

	// ExternalInputAmount is the value of the other parties' inputs.
	ExternalInputAmount btcutil.Amount

	// DestinationAddresses are the external outputs in transaction
	// order. Outputs without an address are shown disassembled.
	DestinationAddresses []string

	// DestinationAmounts are the values of DestinationAddresses.
	DestinationAmounts []btcutil.Amount

	// ChangeData holds one entry per output paying back to the signer,
	// in transaction order.
	ChangeData []ChangeEntry

	// SpendAmount is the value leaving to external destinations.
	SpendAmount btcutil.Amount

	// ChangeAmount is the value returning to the signer.
	ChangeAmount btcutil.Amount

	// FeeAmount is the declared input value minus the output value.
	FeeAmount btcutil.Amount

	// Policy is the policy every input shares. It is None for a
	// transaction without inputs.
	Policy fn.Option[Policy]

	// EstimatedVSize is the expected size of the fully signed
	// transaction, when the policy allows estimating it.
	EstimatedVSize fn.Option[btcunit.VByte]

	// FeeRate is FeeAmount over EstimatedVSize.
	FeeRate fn.Option[btcunit.SatPerVByte]

	// DustOutputs are the indexes of outputs below the relay dust limit.
	DustOutputs []int
}

// NumDestinations returns the number of external outputs.
func (l *Ledger) NumDestinations() int {
	return len(l.DestinationAddresses)
}

// NumChangeOutputs returns the number of outputs paying the signer.
func (l *Ledger) NumChangeOutputs() int {
	return len(l.ChangeData)
}

// IsMultisig reports whether the inputs are spent from a multisig wallet.
func (l *Ledger) IsMultisig() bool {
	return l.Policy.UnwrapOr(Policy{}).IsMultisig()
}

// IsCooperative reports whether other parties contributed inputs, as in a
// payjoin or coinjoin.
func (l *Ledger) IsCooperative() bool {
	return l.NumExternalInputs > 0
}

// Balanced reports whether the ledger amounts reconcile.
func (l *Ledger) Balanced() bool {
	return l.InputAmount+l.ExternalInputAmount ==
		l.SpendAmount+l.ChangeAmount+l.FeeAmount
}
