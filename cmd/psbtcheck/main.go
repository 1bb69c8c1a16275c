// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/psbtcheck/classify"
	"github.com/btcsuite/psbtcheck/descriptor"
	"github.com/btcsuite/psbtcheck/keychain"
	flags "github.com/jessevdk/go-flags"
	"golang.org/x/term"
)

// errChangeNotVerified is returned when a change output does not match the
// operator supplied descriptor.
var errChangeNotVerified = errors.New("change output not produced by " +
	"descriptor")

// errUnbalancedLedger is returned when the classified amounts do not add up
// to the declared input value.
var errUnbalancedLedger = errors.New("ledger amounts do not balance")

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		// The flags parser already printed its own errors.
		var e *flags.Error
		switch {
		case errors.As(err, &e) && e.Type == flags.ErrHelp:
			os.Exit(0)

		case errors.As(err, &e):

		default:
			fmt.Fprintln(os.Stderr, err)
		}

		os.Exit(1)
	}

	// Keep the mnemonic out of the shell history when reviewing
	// interactively.
	if cfg.Mnemonic == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		cfg.Mnemonic, err = promptSecret(os.Stdin, "Mnemonic: ")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	err = initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logRotator.Close()

	if err := run(cfg, os.Stdout); err != nil {
		pchkLog.Errorf("%v", err)
		logRotator.Close()
		os.Exit(1)
	}
}

// run reviews the configured packet and writes the report to w.
func run(cfg *config, w io.Writer) error {
	packet, err := readPacket(cfg)
	if err != nil {
		return err
	}

	var seed []byte
	if cfg.Mnemonic != "" {
		seed, err = keychain.SeedFromMnemonic(
			cfg.Mnemonic, cfg.Passphrase,
		)
		if err != nil {
			return err
		}
	}

	var desc *descriptor.Descriptor
	if cfg.Descriptor != "" {
		desc, err = descriptor.Parse(cfg.Descriptor, cfg.netParams)
		if err != nil {
			return err
		}
	}

	parserCfg := classify.DefaultConfig(cfg.netParams)

	matched, err := classify.HasMatchingInputFingerprint(
		packet, seed, parserCfg,
	)
	if err != nil {
		return err
	}
	if !matched {
		pchkLog.Warnf("No input is derived from this seed, the wallet " +
			"may not be able to sign")
	}

	parser := classify.NewParser(packet, seed, parserCfg)
	ok, err := parser.Parse()
	if err != nil {
		return fmt.Errorf("unable to parse psbt: %w", err)
	}
	if !ok {
		fmt.Fprintln(w, "Nothing to review: missing psbt or seed")

		if cfg.Trim {
			return writeTrimmed(w, packet)
		}

		return nil
	}

	ledger := parser.Ledger()
	if !ledger.Balanced() {
		return errUnbalancedLedger
	}

	if err := writeReport(w, ledger); err != nil {
		return err
	}

	if cfg.MaxFeeRate > 0 {
		err := writeFeeWarning(w, ledger, btcutil.Amount(cfg.MaxFeeRate))
		if err != nil {
			return err
		}
	}

	if desc != nil {
		if err := verifyChange(w, parser, desc); err != nil {
			return err
		}
	}

	if cfg.Trim {
		if err := writeTrimmed(w, packet); err != nil {
			return err
		}
	}

	return nil
}

// verifyChange checks every change output against desc.
func verifyChange(w io.Writer, parser *classify.Parser,
	desc *descriptor.Descriptor) error {

	for i := range parser.Ledger().NumChangeOutputs() {
		owned, err := parser.VerifyMultisigOutput(desc, i)
		if err != nil {
			return err
		}

		entry, err := parser.ChangeData(i)
		if err != nil {
			return err
		}

		if !owned {
			return fmt.Errorf("%w: output %d", errChangeNotVerified,
				entry.OutputIndex)
		}

		fmt.Fprintf(w, "Verified:      change #%d matches descriptor\n",
			entry.OutputIndex)
	}

	return nil
}

// writeTrimmed prints the signature-only packet in base64.
func writeTrimmed(w io.Writer, packet *psbt.Packet) error {
	trimmed, err := classify.Trim(packet)
	if err != nil {
		return err
	}

	b64, err := trimmed.B64Encode()
	if err != nil {
		return fmt.Errorf("unable to encode psbt: %w", err)
	}

	fmt.Fprintf(w, "Signatures:    %d\n", classify.SigCount(trimmed))
	fmt.Fprintln(w, b64)

	return nil
}

// promptSecret reads a line from the terminal f without echoing it.
func promptSecret(f *os.File, prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	secret, err := term.ReadPassword(int(f.Fd()))
	if err != nil {
		return "", fmt.Errorf("unable to read mnemonic: %w", err)
	}

	return strings.TrimSpace(string(secret)), nil
}
