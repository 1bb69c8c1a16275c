// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scripts

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

var (
	// ErrUnsupportedType is returned when a template cannot be built
	// from the kind of input given.
	ErrUnsupportedType = errors.New("unsupported script type")

	// ErrNoAddress is returned for scripts that have no address
	// encoding.
	ErrNoAddress = errors.New("script has no address")
)

// Deriver builds output scripts for keys and scripts, and classifies and
// renders existing ones.
type Deriver interface {
	// PayToKey builds the single-key template of the given type. P2TR
	// outputs are BIP-86 key-path-only outputs committing to no script.
	PayToKey(pubKey *btcec.PublicKey, scriptType ScriptType) ([]byte,
		error)

	// PayToScript builds the script-hash template of the given type
	// around a witness or redeem script.
	PayToScript(script []byte, scriptType ScriptType) ([]byte, error)

	// Classify returns the outer template of a pkScript. Nested types
	// cannot be told apart from P2SH by the pkScript alone.
	Classify(pkScript []byte) ScriptType

	// Address renders the pkScript as an address.
	Address(pkScript []byte) (string, error)
}

// Library is the txscript backed Deriver for one network.
type Library struct {
	net *chaincfg.Params
}

// A compile time check to ensure Library implements Deriver.
var _ Deriver = (*Library)(nil)

// NewLibrary creates a Library for the given network.
func NewLibrary(net *chaincfg.Params) *Library {
	return &Library{net: net}
}

// PayToKey builds the single-key template of the given type.
//
// NOTE: This is part of the Deriver interface.
func (l *Library) PayToKey(pubKey *btcec.PublicKey,
	scriptType ScriptType) ([]byte, error) {

	switch scriptType {
	case P2PKH:
		addr, err := btcutil.NewAddressPubKeyHash(
			btcutil.Hash160(pubKey.SerializeCompressed()), l.net,
		)
		if err != nil {
			return nil, err
		}

		return txscript.PayToAddrScript(addr)

	case P2WPKH:
		return l.witnessKeyHash(pubKey)

	case P2SHP2WPKH:
		program, err := l.witnessKeyHash(pubKey)
		if err != nil {
			return nil, err
		}

		return l.scriptHash(program)

	case P2TR:
		outputKey := txscript.ComputeTaprootKeyNoScript(pubKey)

		return txscript.PayToTaprootScript(outputKey)

	case NonStandard, P2SH, P2WSH, P2SHP2WSH:
	}

	return nil, fmt.Errorf("%w: %v from a key", ErrUnsupportedType,
		scriptType)
}

// PayToScript builds the script-hash template of the given type.
//
// NOTE: This is part of the Deriver interface.
func (l *Library) PayToScript(script []byte,
	scriptType ScriptType) ([]byte, error) {

	switch scriptType {
	case P2SH:
		return l.scriptHash(script)

	case P2WSH:
		return l.witnessScriptHash(script)

	case P2SHP2WSH:
		program, err := l.witnessScriptHash(script)
		if err != nil {
			return nil, err
		}

		return l.scriptHash(program)

	case NonStandard, P2PKH, P2SHP2WPKH, P2WPKH, P2TR:
	}

	return nil, fmt.Errorf("%w: %v from a script", ErrUnsupportedType,
		scriptType)
}

// Classify returns the outer template of a pkScript.
//
// NOTE: This is part of the Deriver interface.
func (l *Library) Classify(pkScript []byte) ScriptType {
	switch txscript.GetScriptClass(pkScript) {
	case txscript.PubKeyHashTy:
		return P2PKH

	case txscript.ScriptHashTy:
		return P2SH

	case txscript.WitnessV0PubKeyHashTy:
		return P2WPKH

	case txscript.WitnessV0ScriptHashTy:
		return P2WSH

	case txscript.WitnessV1TaprootTy:
		return P2TR

	default:
		return NonStandard
	}
}

// Address renders the pkScript as an address on the library's network.
//
// NOTE: This is part of the Deriver interface.
func (l *Library) Address(pkScript []byte) (string, error) {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, l.net)
	if err != nil {
		return "", err
	}

	if len(addrs) != 1 {
		return "", fmt.Errorf("%w: %d addresses extracted",
			ErrNoAddress, len(addrs))
	}

	return addrs[0].EncodeAddress(), nil
}

// witnessKeyHash builds a P2WPKH program.
func (l *Library) witnessKeyHash(pubKey *btcec.PublicKey) ([]byte, error) {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(pubKey.SerializeCompressed()), l.net,
	)
	if err != nil {
		return nil, err
	}

	return txscript.PayToAddrScript(addr)
}

// witnessScriptHash builds a P2WSH program.
func (l *Library) witnessScriptHash(script []byte) ([]byte, error) {
	hash := sha256.Sum256(script)

	addr, err := btcutil.NewAddressWitnessScriptHash(hash[:], l.net)
	if err != nil {
		return nil, err
	}

	return txscript.PayToAddrScript(addr)
}

// scriptHash wraps a script in P2SH.
func (l *Library) scriptHash(script []byte) ([]byte, error) {
	addr, err := btcutil.NewAddressScriptHash(script, l.net)
	if err != nil {
		return nil, err
	}

	return txscript.PayToAddrScript(addr)
}
