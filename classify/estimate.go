// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package classify

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/btcsuite/psbtcheck/pkg/btcunit"
	"github.com/btcsuite/psbtcheck/scripts"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// inputBaseSize is the outpoint and sequence of every input.
	inputBaseSize = 32 + 4 + 4

	// maxSigSize is a DER signature with sighash flag and its push.
	maxSigSize = 1 + 73

	// nestedWitnessSigScriptSize pushes a 34 byte P2WSH program.
	nestedWitnessSigScriptSize = 1 + 34

	// segwitMarkerWeight is the marker and flag of a witness
	// transaction.
	segwitMarkerWeight = 2
)

// estimateVSize predicts the virtual size of the transaction once all
// inputs are signed. Single-key templates are sized by txsizes. Multisig
// templates are sized from the threshold and key count. Other policies
// cannot be estimated.
func estimateVSize(policy Policy, numInputs int,
	txOuts []*wire.TxOut) fn.Option[btcunit.VByte] {

	switch policy.Type {
	case scripts.P2PKH:
		return vbytes(txsizes.EstimateVirtualSize(
			numInputs, 0, 0, 0, txOuts, 0,
		))

	case scripts.P2TR:
		return vbytes(txsizes.EstimateVirtualSize(
			0, numInputs, 0, 0, txOuts, 0,
		))

	case scripts.P2WPKH:
		return vbytes(txsizes.EstimateVirtualSize(
			0, 0, numInputs, 0, txOuts, 0,
		))

	case scripts.P2SHP2WPKH:
		return vbytes(txsizes.EstimateVirtualSize(
			0, 0, 0, numInputs, txOuts, 0,
		))

	case scripts.P2WSH, scripts.P2SHP2WSH, scripts.P2SH:
		if !policy.IsMultisig() {
			return fn.None[btcunit.VByte]()
		}

		return fn.Some(multisigVSize(policy, numInputs, txOuts))

	case scripts.NonStandard:
	}

	return fn.None[btcunit.VByte]()
}

// vbytes wraps a txsizes result.
func vbytes(size int) fn.Option[btcunit.VByte] {
	return fn.Some(btcunit.NewVByte(uint64(size)))
}

// multisigVSize sizes a transaction spending numInputs multisig inputs.
func multisigVSize(policy Policy, numInputs int,
	txOuts []*wire.TxOut) btcunit.VByte {

	// Start from the transaction without inputs, which txsizes sizes
	// as all non-witness data.
	base := txsizes.EstimateVirtualSize(0, 0, 0, 0, txOuts, 0)
	weight := btcunit.NewVByte(uint64(base)).ToWU()

	scriptLen := 1 + policy.N*(1+multisigKeyLen) + 2
	sigs := policy.M * maxSigSize

	var perInput btcunit.WeightUnit
	switch policy.Type {
	case scripts.P2SH:
		// OP_0 <sigs> <push redeem script> all in the script sig.
		sigScript := 1 + sigs + pushSize(scriptLen) + scriptLen
		perInput = nonWitness(
			inputBaseSize + wire.VarIntSerializeSize(
				uint64(sigScript),
			) + sigScript,
		)

	default:
		sigScript := 0
		if policy.Type == scripts.P2SHP2WSH {
			sigScript = nestedWitnessSigScriptSize
		}

		// Item count, the empty dummy, the signatures and the script.
		witness := 1 + 1 + sigs +
			wire.VarIntSerializeSize(uint64(scriptLen)) + scriptLen

		perInput = nonWitness(inputBaseSize + 1 + sigScript).Add(
			btcunit.NewWeightUnit(uint64(witness)),
		)
		weight = weight.Add(btcunit.NewWeightUnit(segwitMarkerWeight))
	}

	for range numInputs {
		weight = weight.Add(perInput)
	}

	return weight.ToVB()
}

// nonWitness returns the weight of non-witness bytes.
func nonWitness(size int) btcunit.WeightUnit {
	return btcunit.NewWeightUnit(
		uint64(size) * blockchain.WitnessScaleFactor,
	)
}

// pushSize is the size of the opcode pushing n bytes.
func pushSize(n int) int {
	switch {
	case n <= 75:
		return 1

	case n <= 0xff:
		return 2

	default:
		return 3
	}
}
