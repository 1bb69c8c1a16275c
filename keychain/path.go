// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keychain

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// ErrInvalidPath is returned when a derivation path string is malformed.
var ErrInvalidPath = errors.New("invalid derivation path")

// FingerprintHex renders a fingerprint as the eight hex characters of its
// raw bytes, e.g. "394aed14".
func FingerprintHex(fingerprint uint32) string {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], fingerprint)

	return hex.EncodeToString(raw[:])
}

// ParseFingerprint is the inverse of FingerprintHex.
func ParseFingerprint(s string) (uint32, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}

	if len(raw) != 4 {
		return 0, fmt.Errorf("invalid fingerprint %q: want 4 bytes, "+
			"got %d", s, len(raw))
	}

	return binary.LittleEndian.Uint32(raw), nil
}

// FormatPath renders a derivation path with an "m" prefix and "h" marking
// hardened indexes, e.g. "m/86h/1h/0h/1/1".
func FormatPath(path []uint32) string {
	var b strings.Builder
	b.WriteString("m")

	for _, index := range path {
		b.WriteByte('/')
		if index >= hdkeychain.HardenedKeyStart {
			b.WriteString(strconv.FormatUint(
				uint64(index-hdkeychain.HardenedKeyStart), 10,
			))
			b.WriteByte('h')

			continue
		}

		b.WriteString(strconv.FormatUint(uint64(index), 10))
	}

	return b.String()
}

// ParsePath parses a derivation path. The leading "m" is optional and a
// hardened index may be marked with "h", "H" or an apostrophe.
func ParsePath(s string) ([]uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "m"), "/")
	if s == "" {
		return []uint32{}, nil
	}

	parts := strings.Split(s, "/")
	path := make([]uint32, 0, len(parts))
	for _, part := range parts {
		index, err := ParseIndex(part)
		if err != nil {
			return nil, err
		}

		path = append(path, index)
	}

	return path, nil
}

// ParseIndex parses a single path component such as "48h" or "7".
func ParseIndex(s string) (uint32, error) {
	hardened := false
	if trimmed := strings.TrimRight(s, "hH'"); len(trimmed) == len(s)-1 {
		hardened = true
		s = trimmed
	}

	value, err := strconv.ParseUint(s, 10, 32)
	if err != nil || value >= hdkeychain.HardenedKeyStart {
		return 0, fmt.Errorf("%w: bad index %q", ErrInvalidPath, s)
	}

	index := uint32(value)
	if hardened {
		index += hdkeychain.HardenedKeyStart
	}

	return index, nil
}
