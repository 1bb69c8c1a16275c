// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keychain

import (
	"crypto/sha512"
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

const (
	// seedIterations is the PBKDF2 round count fixed by BIP-39.
	seedIterations = 2048

	// seedLen is the length of a BIP-39 seed in bytes.
	seedLen = 64
)

// ErrInvalidMnemonic is returned when a mnemonic has an unsupported number of
// words, uses a word outside the English BIP-39 list or fails its checksum.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// SeedFromMnemonic stretches a BIP-39 mnemonic and optional passphrase into
// the 64-byte seed that DeriveRoot expects. Words are separated by any run of
// whitespace and must come from the English word list with a valid checksum,
// so a mistyped word is an error rather than a different wallet.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	words := strings.Fields(mnemonic)
	switch len(words) {
	case 12, 15, 18, 21, 24:
	default:
		return nil, fmt.Errorf("%w: got %d words", ErrInvalidMnemonic,
			len(words))
	}

	phrase := strings.Join(words, " ")

	// The words themselves are secret, so the library error, which names
	// the offending word, is not passed on.
	_, err := bip39.EntropyFromMnemonic(phrase)
	switch {
	case errors.Is(err, bip39.ErrChecksumIncorrect):
		return nil, fmt.Errorf("%w: checksum mismatch",
			ErrInvalidMnemonic)

	case err != nil:
		return nil, fmt.Errorf("%w: unknown word", ErrInvalidMnemonic)
	}

	password := norm.NFKD.String(phrase)
	salt := norm.NFKD.String("mnemonic" + passphrase)

	return pbkdf2.Key(
		[]byte(password), []byte(salt), seedIterations, seedLen,
		sha512.New,
	), nil
}
