// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package classify

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
)

const (
	// multisigKeyLen is the size of a compressed key in a multisig
	// script, and also the push opcode in front of it.
	multisigKeyLen = btcec.PubKeyBytesLenCompressed

	// minMultisigLen is the size of a 1-of-1 multisig script.
	minMultisigLen = 1 + 1 + multisigKeyLen + 1 + 1

	// maxMultisigKeys is the largest n a small integer opcode encodes.
	maxMultisigKeys = 16
)

// ParseMultisig decodes a bare multisig script of the form
//
//	OP_m <33-byte key> ... <33-byte key> OP_n OP_CHECKMULTISIG
//
// and returns the threshold, the number of keys and the keys in script
// order. Any deviation from the template, including uncompressed keys or
// trailing data, is reported as ErrInvalidMultisig.
func ParseMultisig(script []byte) (int, int, []*btcec.PublicKey, error) {
	if len(script) < minMultisigLen ||
		script[len(script)-1] != txscript.OP_CHECKMULTISIG {

		return 0, 0, nil, fmt.Errorf("%w: not a multisig script",
			ErrInvalidMultisig)
	}

	m := smallInt(script[0])
	if m < 1 || m > maxMultisigKeys {
		return 0, 0, nil, fmt.Errorf("%w: bad threshold opcode 0x%02x",
			ErrInvalidMultisig, script[0])
	}

	n := smallInt(script[len(script)-2])
	if n < m || n > maxMultisigKeys {
		return 0, 0, nil, fmt.Errorf("%w: bad key count opcode 0x%02x "+
			"for threshold %d", ErrInvalidMultisig,
			script[len(script)-2], m)
	}

	// The keys must fill the space between the two small integers
	// exactly, one push opcode and key per cosigner.
	if len(script) != 1+n*(1+multisigKeyLen)+2 {
		return 0, 0, nil, fmt.Errorf("%w: %d bytes cannot hold %d keys",
			ErrInvalidMultisig, len(script), n)
	}

	pubKeys := make([]*btcec.PublicKey, 0, n)
	for i := range n {
		offset := 1 + i*(1+multisigKeyLen)
		if script[offset] != txscript.OP_DATA_33 {
			return 0, 0, nil, fmt.Errorf("%w: key %d has push "+
				"opcode 0x%02x", ErrInvalidMultisig, i,
				script[offset])
		}

		keyBytes := script[offset+1 : offset+1+multisigKeyLen]
		pubKey, err := btcec.ParsePubKey(keyBytes)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("%w: key %d: %w",
				ErrInvalidMultisig, i, err)
		}

		pubKeys = append(pubKeys, pubKey)
	}

	return m, n, pubKeys, nil
}

// smallInt decodes OP_1 through OP_16, returning a value outside that range
// for any other opcode.
func smallInt(op byte) int {
	return int(op) - int(txscript.OP_1-1)
}
