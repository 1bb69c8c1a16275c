// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package classify

import (
	"bytes"
	"fmt"
	"slices"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
)

// ResolveCosigners traces every multisig key back to the global xpub it was
// derived from and returns those xpubs in sorted base58 form.
//
// A key is only attributed to an xpub when the xpub's fingerprint matches
// the key's declared derivation, the xpub's path is the key's path without
// its last two components, and deriving those two components from the xpub
// reproduces the key. Declared metadata alone is never trusted. Every key
// must resolve, otherwise ErrUnresolvedCosigners is returned.
func ResolveCosigners(pubKeys []*btcec.PublicKey,
	derivations []*psbt.Bip32Derivation, xpubs []psbt.XPub) ([]string,
	error) {

	cosigners := make([]string, 0, len(pubKeys))
	for i, pubKey := range pubKeys {
		der := findDerivation(derivations, pubKey)
		if der == nil {
			return nil, fmt.Errorf("%w: key %d", ErrMissingDerivation,
				i)
		}

		xpub, ok := resolveXPub(pubKey, der, xpubs)
		if !ok {
			continue
		}

		cosigners = append(cosigners, xpub)
	}

	if len(cosigners) != len(pubKeys) {
		return nil, fmt.Errorf("%w: resolved %d of %d",
			ErrUnresolvedCosigners, len(cosigners), len(pubKeys))
	}

	sort.Strings(cosigners)

	return cosigners, nil
}

// findDerivation returns the derivation declared for the key, or nil.
func findDerivation(derivations []*psbt.Bip32Derivation,
	pubKey *btcec.PublicKey) *psbt.Bip32Derivation {

	serialized := pubKey.SerializeCompressed()
	for _, der := range derivations {
		if bytes.Equal(der.PubKey, serialized) {
			return der
		}
	}

	return nil
}

// resolveXPub searches the global xpubs for the one that derives the key.
func resolveXPub(pubKey *btcec.PublicKey, der *psbt.Bip32Derivation,
	xpubs []psbt.XPub) (string, bool) {

	path := der.Bip32Path
	if len(path) < 2 {
		return "", false
	}
	prefix, tail := path[:len(path)-2], path[len(path)-2:]

	for _, xpub := range xpubs {
		if xpub.MasterKeyFingerprint != der.MasterKeyFingerprint ||
			!slices.Equal(xpub.Bip32Path, prefix) {

			continue
		}

		// DecodeExtendedKey appends the checksum to its argument, so
		// hand it a copy to leave the packet untouched.
		key, err := psbt.DecodeExtendedKey(bytes.Clone(xpub.ExtendedKey))
		if err != nil {
			log.Debugf("Skipping undecodable global xpub: %v", err)
			continue
		}

		derived, err := deriveChild(key, tail)
		if err != nil {
			log.Debugf("Unable to derive %v from global xpub: %v",
				tail, err)

			continue
		}

		if derived.IsEqual(pubKey) {
			return key.String(), true
		}
	}

	return "", false
}

// deriveChild derives the public key at path below key.
func deriveChild(key *hdkeychain.ExtendedKey,
	path []uint32) (*btcec.PublicKey, error) {

	for _, index := range path {
		child, err := key.Derive(index)
		if err != nil {
			return nil, err
		}

		key = child
	}

	return key.ECPubKey()
}
