// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keychain turns wallet seed material into the BIP-32 root key used
// to re-derive the keys a PSBT claims belong to the signer.
package keychain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

var (
	// ErrNoSeed is returned when a root key is requested for an empty
	// seed.
	ErrNoSeed = errors.New("no seed provided")

	// ErrNoNetwork is returned when a root key is requested without
	// network parameters.
	ErrNoNetwork = errors.New("no network parameters provided")
)

// RootKey is the master private key of a seed. It only hands out public
// keys so that nothing above this package can leak private key material.
type RootKey interface {
	// DerivePubKey derives the public key at the given BIP-32 path,
	// relative to the master key. Indexes at or above
	// hdkeychain.HardenedKeyStart are hardened.
	DerivePubKey(path []uint32) (*btcec.PublicKey, error)

	// Fingerprint returns the master key fingerprint in the little-endian
	// integer form used by the psbt package.
	Fingerprint() uint32
}

// SeedKeyProvider derives a RootKey from raw seed bytes for a network.
type SeedKeyProvider interface {
	// DeriveRoot returns the root key of the seed on the given network.
	DeriveRoot(seed []byte, net *chaincfg.Params) (RootKey, error)
}

// HDKeyProvider is a SeedKeyProvider backed by hdkeychain.
type HDKeyProvider struct{}

// A compile time check to ensure HDKeyProvider implements SeedKeyProvider.
var _ SeedKeyProvider = (*HDKeyProvider)(nil)

// DeriveRoot returns the BIP-32 master key of the seed.
//
// NOTE: This is part of the SeedKeyProvider interface.
func (HDKeyProvider) DeriveRoot(seed []byte,
	net *chaincfg.Params) (RootKey, error) {

	if len(seed) == 0 {
		return nil, ErrNoSeed
	}

	if net == nil {
		return nil, ErrNoNetwork
	}

	master, err := hdkeychain.NewMaster(seed, net)
	if err != nil {
		return nil, fmt.Errorf("unable to create master key: %w", err)
	}

	masterPub, err := master.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("unable to derive master pubkey: %w", err)
	}

	root := &hdRootKey{
		master:      master,
		fingerprint: Fingerprint(masterPub),
	}

	log.Debugf("Derived root key with fingerprint %s on %s",
		FingerprintHex(root.fingerprint), net.Name)

	return root, nil
}

// hdRootKey is the RootKey returned by HDKeyProvider.
type hdRootKey struct {
	master      *hdkeychain.ExtendedKey
	fingerprint uint32
}

// A compile time check to ensure hdRootKey implements RootKey.
var _ RootKey = (*hdRootKey)(nil)

// derive walks the path from the master key.
func (r *hdRootKey) derive(path []uint32) (*hdkeychain.ExtendedKey, error) {
	key := r.master
	for depth, index := range path {
		child, err := key.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("unable to derive %s at depth "+
				"%d: %w", FormatPath(path), depth, err)
		}

		key = child
	}

	return key, nil
}

// DerivePubKey derives the public key at the given path.
//
// NOTE: This is part of the RootKey interface.
func (r *hdRootKey) DerivePubKey(path []uint32) (*btcec.PublicKey, error) {
	key, err := r.derive(path)
	if err != nil {
		return nil, err
	}

	return key.ECPubKey()
}

// Fingerprint returns the master key fingerprint.
//
// NOTE: This is part of the RootKey interface.
func (r *hdRootKey) Fingerprint() uint32 {
	return r.fingerprint
}

// Fingerprint returns the BIP-32 fingerprint of a public key, which is the
// first four bytes of its HASH160, read as a little-endian integer the way
// the psbt package stores it.
func Fingerprint(pubKey *btcec.PublicKey) uint32 {
	hash := btcutil.Hash160(pubKey.SerializeCompressed())

	return binary.LittleEndian.Uint32(hash[:4])
}
