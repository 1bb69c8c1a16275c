// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package classify

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtcheck/scripts"
)

// Policy is the spending policy of an input or output: its script template
// and, for multisig, the threshold and the cosigner set.
type Policy struct {
	// Type is the script template.
	Type scripts.ScriptType

	// M is the number of signatures required. Zero for single-key
	// templates.
	M int

	// N is the number of multisig keys. Zero for single-key templates.
	N int

	// Cosigners are the sorted base58 xpubs of a multisig wallet. They are
	// nil when the keys could not all be traced to a global xpub.
	Cosigners []string
}

// Equal reports whether both policies are identical.
func (p Policy) Equal(other Policy) bool {
	return p.Type == other.Type && p.M == other.M && p.N == other.N &&
		slices.Equal(p.Cosigners, other.Cosigners)
}

// IsMultisig reports whether the policy carries a multisig threshold.
func (p Policy) IsMultisig() bool {
	return p.N > 0
}

// String returns a short description such as "p2wsh 2-of-3".
func (p Policy) String() string {
	if !p.IsMultisig() {
		return p.Type.String()
	}

	return fmt.Sprintf("%v %d-of-%d", p.Type, p.M, p.N)
}

// Scope is the part of a PSBT input or output the classifier looks at: the
// script and value being spent or created, and the metadata describing how
// it was built.
type Scope struct {
	// PkScript is the output script.
	PkScript []byte

	// Value is the output value in satoshis.
	Value int64

	// RedeemScript is the P2SH redeem script, if declared.
	RedeemScript []byte

	// WitnessScript is the P2WSH witness script, if declared.
	WitnessScript []byte

	// Bip32Derivation holds the non-taproot key derivations.
	Bip32Derivation []*psbt.Bip32Derivation

	// TaprootBip32Derivation holds the taproot key derivations.
	TaprootBip32Derivation []*psbt.TaprootBip32Derivation
}

// InputScope returns the scope of input i. The previous output is taken
// from the full previous transaction when present, which must hash to the
// outpoint being spent, and otherwise from the witness UTXO. A witness UTXO
// that disagrees with the previous transaction is rejected, since only the
// latter is bound to the outpoint.
func InputScope(packet *psbt.Packet, i int) (Scope, error) {
	in := &packet.Inputs[i]
	txIn := packet.UnsignedTx.TxIn[i]

	var utxo *wire.TxOut
	switch {
	case in.NonWitnessUtxo != nil:
		prevOut := txIn.PreviousOutPoint
		if in.NonWitnessUtxo.TxHash() != prevOut.Hash {
			return Scope{}, fmt.Errorf("%w: input %d previous "+
				"transaction does not match %v", ErrMissingUtxo,
				i, prevOut)
		}

		if prevOut.Index >= uint32(len(in.NonWitnessUtxo.TxOut)) {
			return Scope{}, fmt.Errorf("%w: input %d spends missing "+
				"output %v", ErrMissingUtxo, i, prevOut)
		}

		utxo = in.NonWitnessUtxo.TxOut[prevOut.Index]

		if in.WitnessUtxo != nil &&
			(in.WitnessUtxo.Value != utxo.Value ||
				!bytes.Equal(in.WitnessUtxo.PkScript, utxo.PkScript)) {

			return Scope{}, fmt.Errorf("%w: input %d witness utxo "+
				"disagrees with previous transaction output %v",
				ErrMissingUtxo, i, prevOut)
		}

	case in.WitnessUtxo != nil:
		utxo = in.WitnessUtxo

	default:
		return Scope{}, fmt.Errorf("%w: input %d", ErrMissingUtxo, i)
	}

	if utxo.Value < 0 || utxo.Value > btcutil.MaxSatoshi {
		return Scope{}, fmt.Errorf("%w: input %d spends value %d out "+
			"of range", psbt.ErrInvalidPsbtFormat, i, utxo.Value)
	}

	return Scope{
		PkScript:               utxo.PkScript,
		Value:                  utxo.Value,
		RedeemScript:           in.RedeemScript,
		WitnessScript:          in.WitnessScript,
		Bip32Derivation:        in.Bip32Derivation,
		TaprootBip32Derivation: in.TaprootBip32Derivation,
	}, nil
}

// OutputScope returns the scope of output i.
func OutputScope(packet *psbt.Packet, i int) Scope {
	out := &packet.Outputs[i]
	txOut := packet.UnsignedTx.TxOut[i]

	return Scope{
		PkScript:               txOut.PkScript,
		Value:                  txOut.Value,
		RedeemScript:           out.RedeemScript,
		WitnessScript:          out.WitnessScript,
		Bip32Derivation:        out.Bip32Derivation,
		TaprootBip32Derivation: out.TaprootBip32Derivation,
	}
}

// PolicyFor derives the policy of a scope.
//
// P2SH outputs are refined using the declared scripts: a witness script
// makes them P2SH-P2WSH and a P2WPKH redeem script makes them P2SH-P2WPKH.
// Multisig scopes additionally get their threshold decoded and their
// cosigners resolved against the global xpubs. A malformed multisig script
// is an error, while unresolved cosigners only leave Cosigners empty.
func PolicyFor(scope Scope, lib scripts.Deriver,
	xpubs []psbt.XPub) (Policy, error) {

	scriptType := lib.Classify(scope.PkScript)
	if scriptType == scripts.P2SH {
		switch {
		case len(scope.WitnessScript) > 0:
			scriptType = scripts.P2SHP2WSH

		case len(scope.RedeemScript) > 0 &&
			lib.Classify(scope.RedeemScript) == scripts.P2WPKH:

			scriptType = scripts.P2SHP2WPKH
		}
	}

	policy := Policy{Type: scriptType}

	multisigScript := multisigScriptOf(scope, scriptType)
	if multisigScript == nil {
		return policy, nil
	}

	m, n, pubKeys, err := ParseMultisig(multisigScript)
	if err != nil {
		return Policy{}, err
	}
	policy.M, policy.N = m, n

	cosigners, err := ResolveCosigners(pubKeys, scope.Bip32Derivation, xpubs)
	if err != nil {
		log.Debugf("Keeping %v without cosigner identity: %v", policy,
			err)

		return policy, nil
	}
	policy.Cosigners = cosigners

	return policy, nil
}

// multisigScriptOf returns the script holding the multisig keys of a scope,
// or nil when the scope is not a multisig.
func multisigScriptOf(scope Scope, scriptType scripts.ScriptType) []byte {
	if !scriptType.IsScriptHash() {
		return nil
	}

	switch scriptType {
	case scripts.P2WSH, scripts.P2SHP2WSH:
		if len(scope.WitnessScript) == 0 {
			return nil
		}

		return scope.WitnessScript

	case scripts.P2SH:
		// Legacy P2SH is only treated as multisig when the redeem
		// script says so. Other redeem scripts stay plain P2SH.
		if txscript.GetScriptClass(scope.RedeemScript) !=
			txscript.MultiSigTy {

			return nil
		}

		return scope.RedeemScript

	case scripts.NonStandard, scripts.P2PKH, scripts.P2SHP2WPKH,
		scripts.P2WPKH, scripts.P2TR:
	}

	return nil
}
