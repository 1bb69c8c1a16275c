// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package classify

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtcheck/keychain"
	"github.com/btcsuite/psbtcheck/scripts"
	"github.com/stretchr/testify/require"
)

const h = hdkeychain.HardenedKeyStart

// testNet is the network every generated packet is built for.
var testNet = &chaincfg.RegressionNetParams

// testLib builds the scripts of generated packets.
var testLib = scripts.NewLibrary(testNet)

// testWallet is a deterministic single seed.
type testWallet struct {
	seed        []byte
	master      *hdkeychain.ExtendedKey
	fingerprint uint32
}

// newTestWallet creates a wallet whose seed is a repeated byte.
func newTestWallet(t *testing.T, b byte) *testWallet {
	t.Helper()

	seed := bytes.Repeat([]byte{b}, 32)
	master, err := hdkeychain.NewMaster(seed, testNet)
	require.NoError(t, err)

	pubKey, err := master.ECPubKey()
	require.NoError(t, err)

	return &testWallet{
		seed:        seed,
		master:      master,
		fingerprint: keychain.Fingerprint(pubKey),
	}
}

// extendedKey derives the private extended key at path.
func (w *testWallet) extendedKey(t *testing.T,
	path []uint32) *hdkeychain.ExtendedKey {

	t.Helper()

	key := w.master
	for _, index := range path {
		child, err := key.Derive(index)
		require.NoError(t, err)

		key = child
	}

	return key
}

// privKey derives the private key at path.
func (w *testWallet) privKey(t *testing.T, path []uint32) *btcec.PrivateKey {
	t.Helper()

	key, err := w.extendedKey(t, path).ECPrivKey()
	require.NoError(t, err)

	return key
}

// singleSigPath returns the BIP-44 style regtest path for purpose.
func singleSigPath(purpose, branch, index uint32) []uint32 {
	return []uint32{purpose + h, 1 + h, h, branch, index}
}

// purposeOf maps a single-key template to its BIP-44 style purpose.
func purposeOf(scriptType scripts.ScriptType) uint32 {
	switch scriptType {
	case scripts.P2PKH:
		return 44

	case scripts.P2SHP2WPKH:
		return 49

	case scripts.P2TR:
		return 86

	default:
		return 84
	}
}

// keyScope is a single-key script together with the metadata a wallet
// would attach to it.
type keyScope struct {
	pkScript     []byte
	redeemScript []byte
	bip32        []*psbt.Bip32Derivation
	taproot      []*psbt.TaprootBip32Derivation
}

// key builds the single-key scope of the wallet at branch/index.
func (w *testWallet) key(t *testing.T, scriptType scripts.ScriptType,
	branch, index uint32) keyScope {

	t.Helper()

	path := singleSigPath(purposeOf(scriptType), branch, index)
	pubKey := w.privKey(t, path).PubKey()

	pkScript, err := testLib.PayToKey(pubKey, scriptType)
	require.NoError(t, err)

	scope := keyScope{pkScript: pkScript}
	if scriptType == scripts.P2TR {
		scope.taproot = []*psbt.TaprootBip32Derivation{{
			XOnlyPubKey:          schnorr.SerializePubKey(pubKey),
			MasterKeyFingerprint: w.fingerprint,
			Bip32Path:            path,
		}}

		return scope
	}

	scope.bip32 = []*psbt.Bip32Derivation{{
		PubKey:               pubKey.SerializeCompressed(),
		MasterKeyFingerprint: w.fingerprint,
		Bip32Path:            path,
	}}

	if scriptType == scripts.P2SHP2WPKH {
		scope.redeemScript, err = testLib.PayToKey(pubKey, scripts.P2WPKH)
		require.NoError(t, err)
	}

	return scope
}

// bare drops the metadata, as a counterparty that does not know the
// script's origin would.
func (s keyScope) bare() keyScope {
	return keyScope{pkScript: s.pkScript}
}

// testInput describes one input of a generated packet.
type testInput struct {
	value int64
	scope keyScope

	// legacy puts the previous transaction in NonWitnessUtxo instead of
	// the previous output in WitnessUtxo.
	legacy bool

	witnessScript []byte
}

// testOutput describes one output of a generated packet.
type testOutput struct {
	value         int64
	scope         keyScope
	witnessScript []byte
}

// buildPacket assembles a packet from the described inputs and outputs.
func buildPacket(t *testing.T, inputs []testInput,
	outputs []testOutput) *psbt.Packet {

	t.Helper()

	tx := wire.NewMsgTx(2)
	prevTxs := make([]*wire.MsgTx, len(inputs))
	for i, in := range inputs {
		outPoint := wire.OutPoint{
			Hash:  chainhash.Hash{byte(i + 1)},
			Index: uint32(i),
		}

		if in.legacy {
			prevTx := wire.NewMsgTx(2)
			prevTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
			prevTx.AddTxOut(wire.NewTxOut(in.value, in.scope.pkScript))

			outPoint = wire.OutPoint{Hash: prevTx.TxHash(), Index: 0}
			prevTxs[i] = prevTx
		}

		tx.AddTxIn(wire.NewTxIn(&outPoint, nil, nil))
	}

	for _, out := range outputs {
		tx.AddTxOut(wire.NewTxOut(out.value, out.scope.pkScript))
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)

	for i, in := range inputs {
		pIn := &packet.Inputs[i]
		if in.legacy {
			pIn.NonWitnessUtxo = prevTxs[i]
		} else {
			pIn.WitnessUtxo = wire.NewTxOut(in.value, in.scope.pkScript)
		}

		pIn.RedeemScript = in.scope.redeemScript
		pIn.WitnessScript = in.witnessScript
		pIn.Bip32Derivation = in.scope.bip32
		pIn.TaprootBip32Derivation = in.scope.taproot
	}

	for i, out := range outputs {
		pOut := &packet.Outputs[i]
		pOut.RedeemScript = out.scope.redeemScript
		pOut.WitnessScript = out.witnessScript
		pOut.Bip32Derivation = out.scope.bip32
		pOut.TaprootBip32Derivation = out.scope.taproot
	}

	return packet
}

// parse runs a full classification on the test network.
func parse(t *testing.T, packet *psbt.Packet, seed []byte) *Ledger {
	t.Helper()

	parser := NewParser(packet, seed, DefaultConfig(testNet))
	ok, err := parser.Parse()
	require.NoError(t, err)
	require.True(t, ok)

	ledger := parser.Ledger()
	require.True(t, ledger.Balanced(), "unbalanced ledger: %+v", ledger)

	return ledger
}

// multisigAccount is the BIP-48 account path of a script type on regtest.
func multisigAccount(scriptType scripts.ScriptType) []uint32 {
	scriptIndex := uint32(2)
	switch scriptType {
	case scripts.P2SHP2WSH:
		scriptIndex = 1

	case scripts.P2SH:
		// Legacy multisig has no BIP-48 script index, so it uses BIP-45
		// style account zero below purpose 45.
		return []uint32{45 + h}
	}

	return []uint32{48 + h, 1 + h, h, scriptIndex + h}
}

// testMultisig is an m-of-n wallet over test wallets.
type testMultisig struct {
	wallets    []*testWallet
	threshold  int
	scriptType scripts.ScriptType
	account    []uint32
}

// newTestMultisig creates a threshold-of-len(seeds) multisig wallet.
func newTestMultisig(t *testing.T, scriptType scripts.ScriptType,
	threshold int, seeds ...byte) *testMultisig {

	t.Helper()

	wallets := make([]*testWallet, len(seeds))
	for i, b := range seeds {
		wallets[i] = newTestWallet(t, b)
	}

	return &testMultisig{
		wallets:    wallets,
		threshold:  threshold,
		scriptType: scriptType,
		account:    multisigAccount(scriptType),
	}
}

// accountXPub returns the neutered account key of cosigner i.
func (m *testMultisig) accountXPub(t *testing.T,
	i int) *hdkeychain.ExtendedKey {

	t.Helper()

	xpub, err := m.wallets[i].extendedKey(t, m.account).Neuter()
	require.NoError(t, err)

	return xpub
}

// xpubs returns the global xpub table a coordinator would attach.
func (m *testMultisig) xpubs(t *testing.T) []psbt.XPub {
	t.Helper()

	xpubs := make([]psbt.XPub, len(m.wallets))
	for i, w := range m.wallets {
		xpubs[i] = psbt.XPub{
			ExtendedKey:          psbt.EncodeExtendedKey(m.accountXPub(t, i)),
			MasterKeyFingerprint: w.fingerprint,
			Bip32Path:            slices.Clone(m.account),
		}
	}

	return xpubs
}

// cosigners returns the sorted base58 account xpubs.
func (m *testMultisig) cosigners(t *testing.T) []string {
	t.Helper()

	cosigners := make([]string, len(m.wallets))
	for i := range m.wallets {
		cosigners[i] = m.accountXPub(t, i).String()
	}
	slices.Sort(cosigners)

	return cosigners
}

// keyPath is the full path of a multisig key at branch/index.
func (m *testMultisig) keyPath(branch, index uint32) []uint32 {
	return append(slices.Clone(m.account), branch, index)
}

// multisigScope is a multisig output with its scripts and derivations.
type multisigScope struct {
	keyScope
	witnessScript []byte
}

// key builds the scope at branch/index using a sortedmulti script.
func (m *testMultisig) key(t *testing.T, branch,
	index uint32) multisigScope {

	t.Helper()

	path := m.keyPath(branch, index)

	type cosignerKey struct {
		pubKey []byte
		der    *psbt.Bip32Derivation
	}
	keys := make([]cosignerKey, len(m.wallets))
	for i, w := range m.wallets {
		pubKey := w.privKey(t, path).PubKey().SerializeCompressed()
		keys[i] = cosignerKey{
			pubKey: pubKey,
			der: &psbt.Bip32Derivation{
				PubKey:               pubKey,
				MasterKeyFingerprint: w.fingerprint,
				Bip32Path:            path,
			},
		}
	}
	slices.SortFunc(keys, func(a, b cosignerKey) int {
		return bytes.Compare(a.pubKey, b.pubKey)
	})

	builder := txscript.NewScriptBuilder().AddInt64(int64(m.threshold))
	scope := multisigScope{}
	for _, key := range keys {
		builder.AddData(key.pubKey)
		scope.bip32 = append(scope.bip32, key.der)
	}
	script, err := builder.AddInt64(int64(len(keys))).
		AddOp(txscript.OP_CHECKMULTISIG).Script()
	require.NoError(t, err)

	scope.pkScript, err = testLib.PayToScript(script, m.scriptType)
	require.NoError(t, err)

	switch m.scriptType {
	case scripts.P2SH:
		scope.redeemScript = script

	case scripts.P2SHP2WSH:
		scope.witnessScript = script
		scope.redeemScript, err = testLib.PayToScript(
			script, scripts.P2WSH,
		)
		require.NoError(t, err)

	default:
		scope.witnessScript = script
	}

	return scope
}

// input turns the scope into a spendable input.
func (s multisigScope) input(value int64) testInput {
	return testInput{
		value:         value,
		scope:         s.keyScope,
		witnessScript: s.witnessScript,
	}
}

// output turns the scope into an output.
func (s multisigScope) output(value int64) testOutput {
	return testOutput{
		value:         value,
		scope:         s.keyScope,
		witnessScript: s.witnessScript,
	}
}

// descriptor renders the wallet as a sortedmulti descriptor.
func (m *testMultisig) descriptor(t *testing.T) string {
	t.Helper()

	keys := make([]string, len(m.wallets))
	for i, w := range m.wallets {
		keys[i] = fmt.Sprintf("[%s%s]%s/<0;1>/*",
			keychain.FingerprintHex(w.fingerprint),
			strings.TrimPrefix(keychain.FormatPath(m.account), "m"),
			m.accountXPub(t, i))
	}

	body := fmt.Sprintf("sortedmulti(%d,%s)", m.threshold,
		strings.Join(keys, ","))

	switch m.scriptType {
	case scripts.P2SHP2WSH:
		return "sh(wsh(" + body + "))"

	case scripts.P2SH:
		return "sh(" + body + ")"

	default:
		return "wsh(" + body + ")"
	}
}

// sign adds cosigner i's signature for input idx through the updater.
func (m *testMultisig) sign(t *testing.T, packet *psbt.Packet, idx int,
	i int, branch, index uint32) {

	t.Helper()

	in := &packet.Inputs[idx]
	prevOut := in.WitnessUtxo
	require.NotNil(t, prevOut, "segwit multisig inputs only")

	sigHashes := txscript.NewTxSigHashes(
		packet.UnsignedTx, txscript.NewCannedPrevOutputFetcher(
			prevOut.PkScript, prevOut.Value,
		),
	)

	privKey := m.wallets[i].privKey(t, m.keyPath(branch, index))
	sig, err := txscript.RawTxInWitnessSignature(
		packet.UnsignedTx, sigHashes, idx, prevOut.Value,
		in.WitnessScript, txscript.SigHashAll, privKey,
	)
	require.NoError(t, err)

	updater, err := psbt.NewUpdater(packet)
	require.NoError(t, err)

	outcome, err := updater.Sign(
		idx, sig, privKey.PubKey().SerializeCompressed(),
		in.RedeemScript, in.WitnessScript,
	)
	require.NoError(t, err)
	require.Equal(t, psbt.SignOutcome(psbt.SignSuccesful), outcome)
}
