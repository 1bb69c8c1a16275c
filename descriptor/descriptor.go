// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package descriptor parses the multisig wallet output descriptors a
// coordinator exports, so that change outputs can be checked against a
// wallet definition that does not come from the PSBT itself.
package descriptor

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/psbtcheck/keychain"
	"github.com/btcsuite/psbtcheck/scripts"
)

const (
	// maxKeys is the largest multisig a bare multisig script encodes
	// with small-integer opcodes.
	maxKeys = 16

	// maxLegacyKeys is the largest multisig whose script still fits the
	// 520 byte P2SH redeem script limit.
	maxLegacyKeys = 15
)

var (
	// ErrInvalidDescriptor is returned when a descriptor cannot be
	// parsed.
	ErrInvalidDescriptor = errors.New("invalid descriptor")

	// ErrUnknownBranch is returned when deriving on a branch that a key
	// does not declare.
	ErrUnknownBranch = errors.New("branch not declared by descriptor")
)

// Key is one cosigner of a multisig descriptor.
type Key struct {
	// Fingerprint is the master fingerprint of the key origin. Keys
	// without an origin use the fingerprint of the xpub itself.
	Fingerprint uint32

	// Origin is the path from the master key to XPub.
	Origin []uint32

	// XPub is the account level extended public key.
	XPub *hdkeychain.ExtendedKey

	// Branches are the unhardened child indexes allowed directly below
	// XPub, e.g. {0, 1} for "/<0;1>/*".
	Branches []uint32
}

// String renders the key in descriptor form.
func (k *Key) String() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(keychain.FingerprintHex(k.Fingerprint))
	b.WriteString(strings.TrimPrefix(keychain.FormatPath(k.Origin), "m"))
	b.WriteByte(']')
	b.WriteString(k.XPub.String())
	b.WriteByte('/')

	if len(k.Branches) == 1 {
		b.WriteString(strconv.FormatUint(uint64(k.Branches[0]), 10))
	} else {
		parts := make([]string, len(k.Branches))
		for i, branch := range k.Branches {
			parts[i] = strconv.FormatUint(uint64(branch), 10)
		}
		b.WriteString("<" + strings.Join(parts, ";") + ">")
	}
	b.WriteString("/*")

	return b.String()
}

// pubKey derives the key at branch/index below the xpub.
func (k *Key) pubKey(branch, index uint32) (*btcec.PublicKey, error) {
	if !slices.Contains(k.Branches, branch) {
		return nil, fmt.Errorf("%w: %d for %s", ErrUnknownBranch,
			branch, keychain.FingerprintHex(k.Fingerprint))
	}

	child, err := k.XPub.Derive(branch)
	if err != nil {
		return nil, err
	}

	child, err = child.Derive(index)
	if err != nil {
		return nil, err
	}

	return child.ECPubKey()
}

// match returns the branch and index a PSBT derivation points to when it
// descends from this key.
func (k *Key) match(der *psbt.Bip32Derivation) (uint32, uint32, bool) {
	if der.MasterKeyFingerprint != k.Fingerprint {
		return 0, 0, false
	}

	if len(der.Bip32Path) != len(k.Origin)+2 {
		return 0, 0, false
	}

	if !slices.Equal(der.Bip32Path[:len(k.Origin)], k.Origin) {
		return 0, 0, false
	}

	branch := der.Bip32Path[len(k.Origin)]
	index := der.Bip32Path[len(k.Origin)+1]
	if !slices.Contains(k.Branches, branch) ||
		index >= hdkeychain.HardenedKeyStart {

		return 0, 0, false
	}

	return branch, index, true
}

// Descriptor is a multisig wallet descriptor of the form
// wsh(multi(...)), sh(wsh(multi(...))) or sh(multi(...)), with sortedmulti
// accepted in place of multi.
type Descriptor struct {
	// Type is the script-hash template wrapping the multisig script.
	Type scripts.ScriptType

	// Threshold is the number of signatures required.
	Threshold int

	// Sorted is true for sortedmulti, where keys are ordered by their
	// serialization at every index.
	Sorted bool

	// Keys are the cosigners in descriptor order.
	Keys []*Key

	lib *scripts.Library
}

// Parse parses a descriptor for the given network. A trailing '#checksum'
// is verified when present.
func Parse(s string, net *chaincfg.Params) (*Descriptor, error) {
	body, err := splitChecksum(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}

	desc := &Descriptor{lib: scripts.NewLibrary(net)}

	var inner string
	switch {
	case unwrap(body, "sh(wsh(", "))", &inner):
		desc.Type = scripts.P2SHP2WSH

	case unwrap(body, "wsh(", ")", &inner):
		desc.Type = scripts.P2WSH

	case unwrap(body, "sh(", ")", &inner):
		desc.Type = scripts.P2SH

	default:
		return nil, fmt.Errorf("%w: unsupported wrapper in %q",
			ErrInvalidDescriptor, body)
	}

	var args string
	switch {
	case unwrap(inner, "sortedmulti(", ")", &args):
		desc.Sorted = true

	case unwrap(inner, "multi(", ")", &args):

	default:
		return nil, fmt.Errorf("%w: expected multi or sortedmulti, "+
			"got %q", ErrInvalidDescriptor, inner)
	}

	fields := strings.Split(args, ",")
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: no keys", ErrInvalidDescriptor)
	}

	limit := maxKeys
	if desc.Type == scripts.P2SH {
		limit = maxLegacyKeys
	}

	numKeys := len(fields) - 1
	if numKeys > limit {
		return nil, fmt.Errorf("%w: %d keys exceeds %d",
			ErrInvalidDescriptor, numKeys, limit)
	}

	desc.Threshold, err = strconv.Atoi(fields[0])
	if err != nil || desc.Threshold < 1 || desc.Threshold > numKeys {
		return nil, fmt.Errorf("%w: bad threshold %q for %d keys",
			ErrInvalidDescriptor, fields[0], numKeys)
	}

	for _, field := range fields[1:] {
		key, err := parseKey(field, net)
		if err != nil {
			return nil, err
		}

		desc.Keys = append(desc.Keys, key)
	}

	log.Debugf("Parsed %d-of-%d %v descriptor", desc.Threshold,
		len(desc.Keys), desc.Type)

	return desc, nil
}

// unwrap strips prefix and suffix from s into inner when both are present.
func unwrap(s, prefix, suffix string, inner *string) bool {
	if !strings.HasPrefix(s, prefix) || !strings.HasSuffix(s, suffix) ||
		len(s) < len(prefix)+len(suffix) {

		return false
	}

	*inner = s[len(prefix) : len(s)-len(suffix)]

	return true
}

// parseKey parses "[fingerprint/origin]xpub/<a;b>/*" or "xpub/a/*".
func parseKey(s string, net *chaincfg.Params) (*Key, error) {
	var (
		key       = &Key{}
		hasOrigin bool
	)

	if rest, ok := strings.CutPrefix(s, "["); ok {
		origin, tail, found := strings.Cut(rest, "]")
		if !found {
			return nil, fmt.Errorf("%w: unterminated origin in %q",
				ErrInvalidDescriptor, s)
		}

		fpHex, path, _ := strings.Cut(origin, "/")
		fingerprint, err := keychain.ParseFingerprint(fpHex)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
		}

		key.Fingerprint = fingerprint
		key.Origin, err = keychain.ParsePath(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
		}

		hasOrigin = true
		s = tail
	}

	parts := strings.Split(s, "/")
	if len(parts) != 3 || parts[2] != "*" {
		return nil, fmt.Errorf("%w: key %q must end in /<branch>/*",
			ErrInvalidDescriptor, s)
	}

	xpub, err := hdkeychain.NewKeyFromString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}

	switch {
	case xpub.IsPrivate():
		return nil, fmt.Errorf("%w: private keys are not accepted",
			ErrInvalidDescriptor)

	case !xpub.IsForNet(net):
		return nil, fmt.Errorf("%w: key %s is not for %s",
			ErrInvalidDescriptor, parts[0], net.Name)
	}
	key.XPub = xpub

	if !hasOrigin {
		pubKey, err := xpub.ECPubKey()
		if err != nil {
			return nil, err
		}

		key.Fingerprint = keychain.Fingerprint(pubKey)
		key.Origin = []uint32{}
	}

	key.Branches, err = parseBranches(parts[1])
	if err != nil {
		return nil, err
	}

	return key, nil
}

// parseBranches parses "<0;1>" or a single unhardened index.
func parseBranches(s string) ([]uint32, error) {
	list := []string{s}
	if inner, ok := strings.CutPrefix(s, "<"); ok {
		inner, ok = strings.CutSuffix(inner, ">")
		if !ok {
			return nil, fmt.Errorf("%w: unterminated multipath %q",
				ErrInvalidDescriptor, s)
		}
		list = strings.Split(inner, ";")
	}

	branches := make([]uint32, 0, len(list))
	for _, item := range list {
		index, err := keychain.ParseIndex(item)
		if err != nil || index >= hdkeychain.HardenedKeyStart {
			return nil, fmt.Errorf("%w: bad branch %q",
				ErrInvalidDescriptor, item)
		}

		if slices.Contains(branches, index) {
			return nil, fmt.Errorf("%w: duplicate branch %d",
				ErrInvalidDescriptor, index)
		}

		branches = append(branches, index)
	}

	return branches, nil
}

// MultisigScript returns the bare multisig script at branch/index, the
// witness script for P2WSH forms or the redeem script for legacy P2SH.
func (d *Descriptor) MultisigScript(branch, index uint32) ([]byte, error) {
	if index >= hdkeychain.HardenedKeyStart {
		return nil, fmt.Errorf("hardened index %d not derivable", index)
	}

	keys := make([][]byte, 0, len(d.Keys))
	for _, key := range d.Keys {
		pubKey, err := key.pubKey(branch, index)
		if err != nil {
			return nil, err
		}

		keys = append(keys, pubKey.SerializeCompressed())
	}

	if d.Sorted {
		slices.SortFunc(keys, bytes.Compare)
	}

	builder := txscript.NewScriptBuilder().AddInt64(int64(d.Threshold))
	for _, key := range keys {
		builder.AddData(key)
	}

	return builder.AddInt64(int64(len(keys))).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
}

// Derive returns the output script at branch/index.
func (d *Descriptor) Derive(branch, index uint32) ([]byte, error) {
	script, err := d.MultisigScript(branch, index)
	if err != nil {
		return nil, err
	}

	return d.lib.PayToScript(script, d.Type)
}

// Address returns the address at branch/index.
func (d *Descriptor) Address(branch, index uint32) (string, error) {
	pkScript, err := d.Derive(branch, index)
	if err != nil {
		return "", err
	}

	return d.lib.Address(pkScript)
}

// Owns reports whether pkScript is produced by this descriptor at the
// branch/index one of the derivations points to. Only derivations that
// descend from one of the descriptor's own key origins are tried, so the
// PSBT metadata can select an index but never the keys.
func (d *Descriptor) Owns(pkScript []byte,
	derivations []*psbt.Bip32Derivation) bool {

	for _, der := range derivations {
		for _, key := range d.Keys {
			branch, index, ok := key.match(der)
			if !ok {
				continue
			}

			derived, err := d.Derive(branch, index)
			if err != nil {
				log.Debugf("Unable to derive %d/%d: %v", branch,
					index, err)

				continue
			}

			if bytes.Equal(derived, pkScript) {
				return true
			}
		}
	}

	return false
}

// String renders the descriptor in canonical form with its checksum.
func (d *Descriptor) String() string {
	keys := make([]string, len(d.Keys))
	for i, key := range d.Keys {
		keys[i] = key.String()
	}

	multi := "multi"
	if d.Sorted {
		multi = "sortedmulti"
	}

	body := fmt.Sprintf("%s(%d,%s)", multi, d.Threshold,
		strings.Join(keys, ","))

	switch d.Type {
	case scripts.P2WSH:
		body = "wsh(" + body + ")"

	case scripts.P2SHP2WSH:
		body = "sh(wsh(" + body + "))"

	case scripts.P2SH:
		body = "sh(" + body + ")"

	case scripts.NonStandard, scripts.P2PKH, scripts.P2SHP2WPKH,
		scripts.P2WPKH, scripts.P2TR:
	}

	sum, err := Checksum(body)
	if err != nil {
		log.Errorf("Unable to checksum descriptor %s: %v", body, err)
		return body
	}

	return body + "#" + sum
}
