// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package classify

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/psbtcheck/keychain"
	"github.com/btcsuite/psbtcheck/pkg/btcunit"
	"github.com/btcsuite/psbtcheck/scripts"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// classifier runs one classification pass over a packet for a root key.
type classifier struct {
	packet *psbt.Packet
	root   keychain.RootKey
	lib    scripts.Deriver
	ledger *Ledger
}

// establishPolicy folds the policy of input i into the transaction policy.
// The first input establishes it, every later input must match it.
func establishPolicy(txPolicy fn.Option[Policy], policy Policy,
	i int) (fn.Option[Policy], error) {

	if txPolicy.IsNone() {
		return fn.Some(policy), nil
	}

	established := txPolicy.UnwrapOr(Policy{})
	if !established.Equal(policy) {
		return txPolicy, fmt.Errorf("%w: input %d is %v, expected %v",
			ErrMixedInputs, i, policy, established)
	}

	return txPolicy, nil
}

// classifyInputs splits the inputs into the signer's and everybody else's
// and establishes the transaction policy.
func (c *classifier) classifyInputs() error {
	txPolicy := fn.None[Policy]()

	for i := range c.packet.Inputs {
		scope, err := InputScope(c.packet, i)
		if err != nil {
			return err
		}

		policy, err := PolicyFor(scope, c.lib, c.packet.XPubs)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}

		txPolicy, err = establishPolicy(txPolicy, policy, i)
		if err != nil {
			return err
		}

		amount := btcutil.Amount(scope.Value)
		if c.owns(scope, policy) {
			log.Debugf("Input %d (%v, %v) is controlled by the "+
				"signer", i, policy, amount)

			c.ledger.NumInputs++
			c.ledger.InputAmount += amount

			continue
		}

		log.Debugf("Input %d (%v, %v) is external", i, policy, amount)

		c.ledger.NumExternalInputs++
		c.ledger.ExternalInputAmount += amount
	}

	c.ledger.Policy = txPolicy

	return nil
}

// classifyOutputs splits the outputs into change and destinations. An
// output can only be change when its policy equals the transaction policy.
func (c *classifier) classifyOutputs() error {
	for i := range c.packet.Outputs {
		scope := OutputScope(c.packet, i)
		if scope.Value < 0 || scope.Value > btcutil.MaxSatoshi {
			return fmt.Errorf("%w: output %d value %d out of range",
				psbt.ErrInvalidPsbtFormat, i, scope.Value)
		}

		policy, err := PolicyFor(scope, c.lib, c.packet.XPubs)
		if err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}

		owned := false
		c.ledger.Policy.WhenSome(func(txPolicy Policy) {
			owned = txPolicy.Equal(policy) && c.owns(scope, policy)
		})

		amount := btcutil.Amount(scope.Value)
		if !owned {
			addr := c.render(scope.PkScript)
			log.Debugf("Output %d pays %v to %s", i, amount, addr)

			c.ledger.DestinationAddresses = append(
				c.ledger.DestinationAddresses, addr,
			)
			c.ledger.DestinationAmounts = append(
				c.ledger.DestinationAmounts, amount,
			)
			c.ledger.SpendAmount += amount

			continue
		}

		entry := ChangeEntry{
			OutputIndex: i,
			Address:     c.render(scope.PkScript),
			Amount:      amount,
		}
		for _, der := range scope.Bip32Derivation {
			entry.addDerivation(der.MasterKeyFingerprint, der.Bip32Path)
		}
		for _, der := range scope.TaprootBip32Derivation {
			entry.addDerivation(der.MasterKeyFingerprint, der.Bip32Path)
		}

		log.Debugf("Output %d returns %v to the signer at %s", i,
			amount, entry.Address)

		c.ledger.ChangeData = append(c.ledger.ChangeData, entry)
		c.ledger.ChangeAmount += amount
	}

	return nil
}

// addDerivation records one declared derivation of a change output.
func (e *ChangeEntry) addDerivation(fingerprint uint32, path []uint32) {
	e.Fingerprints = append(e.Fingerprints,
		keychain.FingerprintHex(fingerprint))
	e.DerivationPaths = append(e.DerivationPaths,
		keychain.FormatPath(path))
}

// settle computes the fee and the figures derived from it.
func (c *classifier) settle(relayFeePerKb btcutil.Amount) error {
	// The input amounts were taken from the checked input scopes, so
	// they are the only input values trusted here.
	inputSum := c.ledger.InputAmount + c.ledger.ExternalInputAmount

	var outputSum btcutil.Amount
	for _, txOut := range c.packet.UnsignedTx.TxOut {
		outputSum += btcutil.Amount(txOut.Value)
	}

	fee := inputSum - outputSum
	if fee < 0 {
		return fmt.Errorf("%w: inputs %v, outputs %v", ErrNegativeFee,
			inputSum, outputSum)
	}
	c.ledger.FeeAmount = fee

	c.ledger.Policy.WhenSome(func(policy Policy) {
		vsize := estimateVSize(
			policy, len(c.packet.Inputs), c.packet.UnsignedTx.TxOut,
		)
		c.ledger.EstimatedVSize = vsize

		vsize.WhenSome(func(vb btcunit.VByte) {
			c.ledger.FeeRate = fn.Some(btcunit.CalcSatPerVByte(fee, vb))
		})
	})

	for i, txOut := range c.packet.UnsignedTx.TxOut {
		if txrules.IsDustOutput(txOut, relayFeePerKb) {
			c.ledger.DustOutputs = append(c.ledger.DustOutputs, i)
		}
	}

	return nil
}

// owns reports whether the scope's script is the one the signer would have
// built for the policy.
func (c *classifier) owns(scope Scope, policy Policy) bool {
	expected, err := c.expectedScript(scope, policy)
	if err != nil {
		log.Debugf("Unable to re-derive %v script: %v", policy, err)
		return false
	}

	return expected != nil && bytes.Equal(expected, scope.PkScript)
}

// expectedScript rebuilds the script of a scope from its metadata and the
// root key. A nil script means the scope offers nothing to rebuild from.
//
// Multisig scripts are rebuilt from the declared witness or redeem script,
// whose keys were already checked against the global xpubs by PolicyFor.
// Single-key scripts use the first declared derivation of the matching kind
// and derive that path from the root key.
func (c *classifier) expectedScript(scope Scope,
	policy Policy) ([]byte, error) {

	switch policy.Type {
	case scripts.P2WSH, scripts.P2SHP2WSH:
		if len(scope.WitnessScript) == 0 {
			return nil, nil
		}

		return c.lib.PayToScript(scope.WitnessScript, policy.Type)

	case scripts.P2SH:
		if !policy.IsMultisig() {
			return nil, nil
		}

		return c.lib.PayToScript(scope.RedeemScript, scripts.P2SH)

	case scripts.P2PKH, scripts.P2WPKH, scripts.P2SHP2WPKH, scripts.P2TR:
		var path []uint32
		switch {
		case policy.Type.IsTaproot() &&
			len(scope.TaprootBip32Derivation) > 0:

			path = scope.TaprootBip32Derivation[0].Bip32Path

		case !policy.Type.IsTaproot() && len(scope.Bip32Derivation) > 0:
			path = scope.Bip32Derivation[0].Bip32Path

		default:
			return nil, nil
		}

		return c.payToPath(path, policy.Type)

	case scripts.NonStandard:
	}

	return nil, nil
}

// payToPath derives the key at path and builds its template.
func (c *classifier) payToPath(path []uint32,
	scriptType scripts.ScriptType) ([]byte, error) {

	pubKey, err := c.root.DerivePubKey(path)
	if err != nil {
		return nil, err
	}

	return c.lib.PayToKey(pubKey, scriptType)
}

// render returns the address of a script, falling back to its disassembly
// for scripts without one.
func (c *classifier) render(pkScript []byte) string {
	addr, err := c.lib.Address(pkScript)
	if err == nil {
		return addr
	}

	disasm, err := txscript.DisasmString(pkScript)
	if err != nil {
		return hex.EncodeToString(pkScript)
	}

	return disasm
}
