// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package classify

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

// HasMatchingInputFingerprint reports whether any input declares a
// derivation, taproot or not, from the seed's master key.
func HasMatchingInputFingerprint(packet *psbt.Packet, seed []byte,
	cfg *Config) (bool, error) {

	if packet == nil || len(seed) == 0 {
		return false, nil
	}

	root, err := cfg.KeyProvider.DeriveRoot(seed, cfg.Net)
	if err != nil {
		return false, fmt.Errorf("unable to derive root key: %w", err)
	}
	fingerprint := root.Fingerprint()

	for i := range packet.Inputs {
		in := &packet.Inputs[i]

		for _, der := range in.Bip32Derivation {
			if der.MasterKeyFingerprint == fingerprint {
				return true, nil
			}
		}

		for _, der := range in.TaprootBip32Derivation {
			if der.MasterKeyFingerprint == fingerprint {
				return true, nil
			}
		}
	}

	return false, nil
}

// Trim returns a packet over the same unsigned transaction that keeps only
// the signatures of each input: the final scripts when the input is
// finalized, the taproot key spend signature when present, and the partial
// signatures otherwise. Everything else is dropped to keep the exported
// payload small.
func Trim(packet *psbt.Packet) (*psbt.Packet, error) {
	err := psbt.VerifyInputOutputLen(packet, false, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", psbt.ErrInvalidPsbtFormat, err)
	}

	trimmed, err := psbt.NewFromUnsignedTx(packet.UnsignedTx.Copy())
	if err != nil {
		return nil, err
	}

	for i := range packet.Inputs {
		in, out := &packet.Inputs[i], &trimmed.Inputs[i]

		switch {
		case isFinalized(in):
			out.FinalScriptSig = bytes.Clone(in.FinalScriptSig)
			out.FinalScriptWitness = bytes.Clone(in.FinalScriptWitness)

		case len(in.TaprootKeySpendSig) > 0:
			out.TaprootKeySpendSig = bytes.Clone(in.TaprootKeySpendSig)

		default:
			out.PartialSigs = make(
				[]*psbt.PartialSig, 0, len(in.PartialSigs),
			)
			for _, sig := range in.PartialSigs {
				out.PartialSigs = append(out.PartialSigs,
					&psbt.PartialSig{
						PubKey:    bytes.Clone(sig.PubKey),
						Signature: bytes.Clone(sig.Signature),
					})
			}
		}
	}

	return trimmed, nil
}

// SigCount counts the signatures in a packet. A finalized input or one
// with a taproot key spend signature counts once, since it is complete.
// Other inputs count their partial signatures.
func SigCount(packet *psbt.Packet) int {
	count := 0
	for i := range packet.Inputs {
		in := &packet.Inputs[i]

		switch {
		case isFinalized(in), len(in.TaprootKeySpendSig) > 0:
			count++

		default:
			count += len(in.PartialSigs)
		}
	}

	return count
}

// isFinalized reports whether the input carries its final scripts.
func isFinalized(in *psbt.PInput) bool {
	return len(in.FinalScriptWitness) > 0 || len(in.FinalScriptSig) > 0
}
