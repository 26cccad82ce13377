package sighash

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

var (
	legacyHashTypes = []txscript.SigHashType{
		txscript.SigHashAll,
		txscript.SigHashNone,
		txscript.SigHashSingle,
		txscript.SigHashAll | txscript.SigHashAnyOneCanPay,
		txscript.SigHashNone | txscript.SigHashAnyOneCanPay,
		txscript.SigHashSingle | txscript.SigHashAnyOneCanPay,
	}

	taprootHashTypes = append([]txscript.SigHashType{
		txscript.SigHashDefault,
	}, legacyHashTypes...)
)

// testTx returns a transaction with three inputs and two outputs together
// with the outputs its inputs spend.
func testTx() (*wire.MsgTx, []*wire.TxOut) {
	tx := wire.NewMsgTx(2)
	tx.LockTime = 650000

	prevOuts := make([]*wire.TxOut, 3)
	for i := range prevOuts {
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: wire.OutPoint{
				Hash:  chainhash.Hash{byte(i + 1), 0xaa},
				Index: uint32(i),
			},
			Sequence: 0xfffffffd - uint32(i),
		})

		script := append([]byte{txscript.OP_1, txscript.OP_DATA_32},
			bytes.Repeat([]byte{byte(0x10 + i)}, 32)...)
		prevOuts[i] = wire.NewTxOut(int64(10000*(i+1)), script)
	}

	tx.AddTxOut(wire.NewTxOut(12000, []byte{txscript.OP_TRUE}))
	tx.AddTxOut(wire.NewTxOut(13000, []byte{
		txscript.OP_RETURN, txscript.OP_DATA_1, 0x07,
	}))

	return tx, prevOuts
}

// witnessV0PrevOuts returns the previous outputs of testTx rewritten as
// P2WPKH outputs of the same value. txscript only computes the BIP143
// midstates for transactions that spend witness v0 outputs.
func witnessV0PrevOuts(prevOuts []*wire.TxOut) []*wire.TxOut {
	v0 := make([]*wire.TxOut, len(prevOuts))
	for i, prevOut := range prevOuts {
		script := append([]byte{txscript.OP_0, txscript.OP_DATA_20},
			bytes.Repeat([]byte{byte(0x20 + i)}, 20)...)
		v0[i] = wire.NewTxOut(prevOut.Value, script)
	}

	return v0
}

func fetcherFor(tx *wire.MsgTx,
	prevOuts []*wire.TxOut) *txscript.MultiPrevOutFetcher {

	m := make(map[wire.OutPoint]*wire.TxOut, len(prevOuts))
	for i, in := range tx.TxIn {
		m[in.PreviousOutPoint] = prevOuts[i]
	}

	return txscript.NewMultiPrevOutFetcher(m)
}

// TestLegacyMatchesTxscript checks the legacy digest against the btcd
// implementation for every hash type and input, including a script that
// contains OP_CODESEPARATOR.
func TestLegacyMatchesTxscript(t *testing.T) {
	t.Parallel()

	tx, _ := testTx()
	engine := New(tx)

	script := []byte{
		txscript.OP_1, txscript.OP_CODESEPARATOR, txscript.OP_DUP,
		txscript.OP_DATA_2, 0x01, 0x02, txscript.OP_CODESEPARATOR,
	}

	for _, hashType := range legacyHashTypes {
		for idx := range tx.TxIn {
			name := fmt.Sprintf("%v/%d", hashType, idx)
			expected, err := txscript.CalcSignatureHash(
				script, hashType, tx, idx,
			)
			require.NoError(t, err, name)

			digest, err := engine.Legacy(idx, script, hashType)
			require.NoError(t, err, name)
			require.Equal(t, expected, digest, name)
		}
	}
}

// TestLegacyOneHash checks the fixed digest for SIGHASH_SINGLE without a
// matching output and for an out of range input.
func TestLegacyOneHash(t *testing.T) {
	t.Parallel()

	tx, _ := testTx()
	engine := New(tx)

	one := make([]byte, 32)
	one[0] = 0x01

	digest, err := engine.Legacy(2, []byte{txscript.OP_TRUE},
		txscript.SigHashSingle)
	require.NoError(t, err)
	require.Equal(t, one, digest)

	digest, err = engine.Legacy(5, []byte{txscript.OP_TRUE},
		txscript.SigHashAll)
	require.NoError(t, err)
	require.Equal(t, one, digest)

	// The transaction itself is left untouched.
	fresh, _ := testTx()
	require.Equal(t, fresh, tx)
}

// TestWitnessV0MatchesTxscript checks the BIP143 digest against the btcd
// implementation.
func TestWitnessV0MatchesTxscript(t *testing.T) {
	t.Parallel()

	tx, prevOuts := testTx()
	prevOuts = witnessV0PrevOuts(prevOuts)
	engine := New(tx)
	sigHashes := txscript.NewTxSigHashes(tx, fetcherFor(tx, prevOuts))

	witnessScript := []byte{
		txscript.OP_2, txscript.OP_3, txscript.OP_ADD, txscript.OP_5,
		txscript.OP_EQUAL,
	}

	for _, hashType := range legacyHashTypes {
		for idx := range tx.TxIn {
			name := fmt.Sprintf("%v/%d", hashType, idx)
			amount := prevOuts[idx].Value

			expected, err := txscript.CalcWitnessSigHash(
				witnessScript, sigHashes, hashType, tx, idx,
				amount,
			)
			require.NoError(t, err, name)

			digest, err := engine.WitnessV0(
				idx, witnessScript, amount, hashType,
			)
			require.NoError(t, err, name)
			require.Equal(t, expected, digest, name)

			// Repeated calls reuse the cached midstates.
			again, err := engine.WitnessV0(
				idx, witnessScript, amount, hashType,
			)
			require.NoError(t, err, name)
			require.Equal(t, digest, again, name)
		}
	}

	_, err := engine.WitnessV0(3, witnessScript, 1, txscript.SigHashAll)
	require.ErrorIs(t, err, ErrInputIndex)
}

// TestWitnessV0P2WPKH checks that signing a P2WPKH input over its P2PKH
// script code gives the same digest btcd derives from the witness program.
func TestWitnessV0P2WPKH(t *testing.T) {
	t.Parallel()

	tx, prevOuts := testTx()
	prevOuts = witnessV0PrevOuts(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcherFor(tx, prevOuts))

	keyHash := bytes.Repeat([]byte{0x42}, 20)
	p2wpkh := append([]byte{txscript.OP_0, txscript.OP_DATA_20},
		keyHash...)
	p2pkh := append(append([]byte{
		txscript.OP_DUP, txscript.OP_HASH160, txscript.OP_DATA_20,
	}, keyHash...), txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIG)

	expected, err := txscript.CalcWitnessSigHash(
		p2wpkh, sigHashes, txscript.SigHashAll, tx, 1, 20000,
	)
	require.NoError(t, err)

	digest, err := New(tx).WitnessV0(1, p2pkh, 20000, txscript.SigHashAll)
	require.NoError(t, err)
	require.Equal(t, expected, digest)
}

// TestTaprootMatchesTxscript checks the BIP341 key path and script path
// digests against the btcd implementation.
func TestTaprootMatchesTxscript(t *testing.T) {
	t.Parallel()

	tx, prevOuts := testTx()
	engine := New(tx)
	fetcher := fetcherFor(tx, prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	leaf := txscript.NewBaseTapLeaf([]byte{
		txscript.OP_DATA_32,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		txscript.OP_CHECKSIG,
	})
	leafHash := leaf.TapHash()

	for _, hashType := range taprootHashTypes {
		for idx := range tx.TxIn {
			name := fmt.Sprintf("%v/%d", hashType, idx)

			if hashType&0x03 == txscript.SigHashSingle &&
				idx >= len(tx.TxOut) {

				_, err := engine.Taproot(idx, prevOuts, hashType)
				require.ErrorIs(t, err, ErrSigHashSingleIndex,
					name)

				continue
			}

			expected, err := txscript.CalcTaprootSignatureHash(
				sigHashes, hashType, tx, idx, fetcher,
			)
			require.NoError(t, err, name)

			digest, err := engine.Taproot(idx, prevOuts, hashType)
			require.NoError(t, err, name)
			require.Equal(t, expected, digest, name)

			expected, err = txscript.CalcTapscriptSignaturehash(
				sigHashes, hashType, tx, idx, fetcher, leaf,
			)
			require.NoError(t, err, name)

			digest, err = engine.Taproot(
				idx, prevOuts, hashType, WithLeafHash(leafHash),
			)
			require.NoError(t, err, name)
			require.Equal(t, expected, digest, name)
		}
	}
}

// TestTaprootErrors checks argument validation of the taproot digest.
func TestTaprootErrors(t *testing.T) {
	t.Parallel()

	tx, prevOuts := testTx()
	engine := New(tx)

	_, err := engine.Taproot(0, prevOuts[:2], txscript.SigHashDefault)
	require.ErrorIs(t, err, ErrPrevOutCount)

	_, err = engine.Taproot(0, []*wire.TxOut{prevOuts[0], nil, prevOuts[2]},
		txscript.SigHashDefault)
	require.ErrorIs(t, err, ErrPrevOutCount)

	_, err = engine.Taproot(3, prevOuts, txscript.SigHashDefault)
	require.ErrorIs(t, err, ErrInputIndex)

	_, err = engine.Taproot(0, prevOuts, 0x04)
	require.ErrorIs(t, err, ErrInvalidHashType)

	_, err = engine.Taproot(0, prevOuts, txscript.SigHashDefault,
		WithAnnex([]byte{0x51}))
	require.ErrorIs(t, err, ErrInvalidAnnex)

	// An annex changes the spend type and so the digest.
	plain, err := engine.Taproot(0, prevOuts, txscript.SigHashDefault)
	require.NoError(t, err)
	withAnnex, err := engine.Taproot(0, prevOuts, txscript.SigHashDefault,
		WithAnnex([]byte{annexTag, 0x01}))
	require.NoError(t, err)
	require.NotEqual(t, plain, withAnnex)
	require.Len(t, withAnnex, chainhash.HashSize)
}
