// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package classify verifies and classifies PSBTs for a signing device. It
// works out which inputs and outputs belong to the signer's wallet, checks
// that every input follows the same spending policy and summarizes the
// amounts the operator is asked to approve.
package classify

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/psbtcheck/descriptor"
	"github.com/btcsuite/psbtcheck/keychain"
	"github.com/btcsuite/psbtcheck/scripts"
	"github.com/davecgh/go-spew/spew"
)

// Config holds the collaborators of a Parser.
type Config struct {
	// Net is the network the seed's keys are derived for.
	Net *chaincfg.Params

	// KeyProvider turns the seed into a root key.
	KeyProvider keychain.SeedKeyProvider

	// Scripts builds and classifies output scripts.
	Scripts scripts.Deriver

	// RelayFeePerKb is the relay fee rate used to flag dust outputs.
	RelayFeePerKb btcutil.Amount
}

// DefaultConfig returns a Config using hdkeychain and txscript for net.
func DefaultConfig(net *chaincfg.Params) *Config {
	return &Config{
		Net:           net,
		KeyProvider:   keychain.HDKeyProvider{},
		Scripts:       scripts.NewLibrary(net),
		RelayFeePerKb: txrules.DefaultRelayFeePerKb,
	}
}

// Parser classifies one PSBT for one seed. A Parser is not safe for
// concurrent use. A different seed or network needs a new Parser.
type Parser struct {
	packet *psbt.Packet
	seed   []byte
	cfg    *Config
	ledger *Ledger
}

// NewParser creates a Parser. Nothing is computed until Parse is called.
func NewParser(packet *psbt.Packet, seed []byte, cfg *Config) *Parser {
	return &Parser{
		packet: packet,
		seed:   seed,
		cfg:    cfg,
	}
}

// Parse classifies the packet and stores the resulting ledger.
//
// It returns false with a nil error when the packet or the seed is
// missing, so callers can check whether a review is possible. Any other
// failure is returned as an error and leaves no ledger behind, and the
// transaction must then not be signed. Every call starts from an empty
// ledger and derives the root key afresh.
func (p *Parser) Parse() (bool, error) {
	p.ledger = nil

	if p.packet == nil {
		log.Debugf("Nothing to parse: no psbt")
		return false, nil
	}

	if len(p.seed) == 0 {
		log.Debugf("Nothing to parse: no seed")
		return false, nil
	}

	err := psbt.VerifyInputOutputLen(p.packet, false, false)
	if err != nil {
		return false, fmt.Errorf("%w: %w", psbt.ErrInvalidPsbtFormat, err)
	}

	root, err := p.cfg.KeyProvider.DeriveRoot(p.seed, p.cfg.Net)
	if err != nil {
		return false, fmt.Errorf("unable to derive root key: %w", err)
	}

	c := &classifier{
		packet: p.packet,
		root:   root,
		lib:    p.cfg.Scripts,
		ledger: &Ledger{},
	}

	if err := c.classifyInputs(); err != nil {
		return false, err
	}

	if err := c.classifyOutputs(); err != nil {
		return false, err
	}

	if err := c.settle(p.cfg.RelayFeePerKb); err != nil {
		return false, err
	}

	p.ledger = c.ledger

	log.Infof("Classified %v: %d own inputs, %d external inputs, %d "+
		"destinations, %d change outputs, fee %v",
		p.packet.UnsignedTx.TxHash(), p.ledger.NumInputs,
		p.ledger.NumExternalInputs, p.ledger.NumDestinations(),
		p.ledger.NumChangeOutputs(), p.ledger.FeeAmount)
	log.Tracef("Ledger: %v", newLogClosure(func() string {
		return spew.Sdump(p.ledger)
	}))

	return true, nil
}

// Ledger returns the result of the last successful Parse, or nil.
func (p *Parser) Ledger() *Ledger {
	return p.ledger
}

// ChangeData returns the num-th change entry.
func (p *Parser) ChangeData(num int) (ChangeEntry, error) {
	if p.ledger == nil {
		return ChangeEntry{}, ErrNotParsed
	}

	if num < 0 || num >= len(p.ledger.ChangeData) {
		return ChangeEntry{}, fmt.Errorf("%w: %d of %d", ErrNoChangeOutput,
			num, len(p.ledger.ChangeData))
	}

	return p.ledger.ChangeData[num], nil
}

// VerifyMultisigOutput checks the num-th change output against a wallet
// descriptor the operator trusts. Unlike Parse, which rebuilds change from
// the scripts declared in the PSBT, the output script is derived from the
// descriptor's own keys at the branch and index the output's derivations
// point to. It returns true only if that script is the output's script.
func (p *Parser) VerifyMultisigOutput(desc *descriptor.Descriptor,
	num int) (bool, error) {

	change, err := p.ChangeData(num)
	if err != nil {
		return false, err
	}

	i := change.OutputIndex
	owned := desc.Owns(
		p.packet.UnsignedTx.TxOut[i].PkScript,
		p.packet.Outputs[i].Bip32Derivation,
	)

	log.Debugf("Change output %d verified against descriptor: %v", i,
		owned)

	return owned, nil
}
