// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package descriptor

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// inputCharset maps every character a descriptor may contain to a
	// symbol. Its order groups characters so that case errors and
	// common substitutions stay within one group.
	inputCharset = "0123456789()[],'/*abcdefgh@:$%{}" +
		"IJKLMNOPQRSTUVWXYZ&+-.;<=>?!^_|~" +
		"ijklmnopqrstuvwxyzABCDEFGH`#\"\\ "

	// checksumCharset is the bech32 character set.
	checksumCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

	// checksumLen is the number of characters after the '#'.
	checksumLen = 8
)

// generator holds the BCH code generator constants of the checksum.
var generator = [5]uint64{
	0xf5dee51989, 0xa9fdca3312, 0x1bab10e32d, 0x3706b1677a, 0x644d626ffd,
}

// ErrBadChecksum is returned when a descriptor checksum does not match.
var ErrBadChecksum = errors.New("descriptor checksum mismatch")

// polymod folds symbols into the 40-bit checksum state.
func polymod(checksum uint64, value uint64) uint64 {
	top := checksum >> 35
	checksum = (checksum&0x7ffffffff)<<5 ^ value

	for i, gen := range generator {
		if (top>>uint(i))&1 == 1 {
			checksum ^= gen
		}
	}

	return checksum
}

// Checksum computes the eight character checksum of a descriptor without
// its '#' suffix.
func Checksum(desc string) (string, error) {
	var (
		checksum   uint64 = 1
		groups     [3]uint64
		groupCount int
	)

	for i, r := range desc {
		pos := strings.IndexRune(inputCharset, r)
		if pos < 0 {
			return "", fmt.Errorf("%w: character %q at %d is not "+
				"allowed", ErrInvalidDescriptor, r, i)
		}

		checksum = polymod(checksum, uint64(pos&31))
		groups[groupCount] = uint64(pos >> 5)
		groupCount++

		if groupCount == 3 {
			checksum = polymod(
				checksum, groups[0]*9+groups[1]*3+groups[2],
			)
			groupCount = 0
		}
	}

	switch groupCount {
	case 1:
		checksum = polymod(checksum, groups[0])

	case 2:
		checksum = polymod(checksum, groups[0]*3+groups[1])
	}

	for range checksumLen {
		checksum = polymod(checksum, 0)
	}
	checksum ^= 1

	out := make([]byte, checksumLen)
	for i := range out {
		shift := uint(5 * (checksumLen - 1 - i))
		out[i] = checksumCharset[(checksum>>shift)&31]
	}

	return string(out), nil
}

// splitChecksum separates an optional '#checksum' suffix and verifies it.
func splitChecksum(s string) (string, error) {
	body, sum, found := strings.Cut(s, "#")
	if !found {
		return s, nil
	}

	want, err := Checksum(body)
	if err != nil {
		return "", err
	}

	if sum != want {
		return "", fmt.Errorf("%w: got %q, want %q", ErrBadChecksum,
			sum, want)
	}

	return body, nil
}
