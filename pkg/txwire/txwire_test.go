package txwire

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

const (
	// signedSegwitTx is a P2SH-P2WPKH spend with one input and one output.
	signedSegwitTx = "02000000000101f0a816905457348a6e90f589059bde4bafdc" +
		"89f76536586d9dbec457039e8e330300000017160014ec535b08b68903" +
		"3c8afc6a3a7b46489d4f72b55cffffffff01e80300000000000017a914" +
		"21be9d00c3305b9e5a9eb628953ef7071c003fc6870247304402204df9" +
		"7bec6b47d54f417dd94d952d5ec1f02a488f7a1250088ae1987142c704" +
		"1902204038b187cdae431b2ef4a14e5851c1a7089d8e60db8fa47c214b" +
		"07f0482c6fa10121038fc16615f500148a371d4052823311a321567af7" +
		"73c261c34dd410ce5a4e526e00000000"

	// signedSegwitTxID is the txid of signedSegwitTx.
	signedSegwitTxID = "016e06d74fa961f374c9aa43627b764391d332c944768412aa" +
		"3c93cd4f561bd7"
)

// newLegacyTx returns a small transaction without witness data.
func newLegacyTx() *wire.MsgTx {
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Hash:  chainhash.Hash{0x01, 0x02},
			Index: 7,
		},
		SignatureScript: []byte{0x51},
		Sequence:        wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(5000, []byte{0x6a, 0x01, 0x00}))
	tx.LockTime = 500

	return tx
}

// TestDecodeSegwit checks that a witness transaction decodes, re-encodes to
// the same bytes and reports the right size metrics.
func TestDecodeSegwit(t *testing.T) {
	t.Parallel()

	tx, err := DecodeHex(signedSegwitTx)
	require.NoError(t, err)

	require.True(t, HasWitness(tx))
	require.Len(t, tx.TxIn, 1)
	require.Len(t, tx.TxIn[0].Witness, 2)
	require.Equal(t, signedSegwitTxID, tx.TxHash().String())

	encoded, err := EncodeHex(tx)
	require.NoError(t, err)
	require.Equal(t, signedSegwitTx, encoded)

	require.Equal(t, 106, BaseSize(tx))
	require.Equal(t, 215, TotalSize(tx))
	require.EqualValues(t, 533, Weight(tx).Uint64())
	require.EqualValues(t, 134, VirtualSize(tx))
}

// TestLegacyRoundTrip checks that a transaction without witnesses has no
// marker and that its weight is exactly four times its size.
func TestLegacyRoundTrip(t *testing.T) {
	t.Parallel()

	tx := newLegacyTx()
	require.False(t, HasWitness(tx))

	raw, err := Encode(tx)
	require.NoError(t, err)

	// Version is followed directly by the input count, not a marker.
	require.Equal(t, byte(0x01), raw[4])

	decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, tx, decoded)

	require.Equal(t, BaseSize(tx), TotalSize(tx))
	require.EqualValues(t, 4*len(raw), Weight(tx).Uint64())
	require.EqualValues(t, len(raw), VirtualSize(tx))

	stripped, err := EncodeNoWitness(tx)
	require.NoError(t, err)
	require.Equal(t, raw, stripped)
}

// TestDecodeMalformed checks that truncated, oversized and padded buffers are
// rejected instead of being read out of bounds.
func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	raw, err := Encode(newLegacyTx())
	require.NoError(t, err)

	testCases := []struct {
		name        string
		raw         []byte
		expectedErr error
	}{
		{
			name:        "empty",
			raw:         nil,
			expectedErr: ErrMalformedTx,
		},
		{
			name:        "truncated",
			raw:         raw[:len(raw)-2],
			expectedErr: ErrMalformedTx,
		},
		{
			name:        "trailing byte",
			raw:         append(bytes.Clone(raw), 0x00),
			expectedErr: ErrTrailingBytes,
		},
		{
			name: "script length beyond buffer",
			raw: func() []byte {
				b := bytes.Clone(raw)

				// Byte 41 is the input script length.
				b[41] = 0xfc
				return b
			}(),
			expectedErr: ErrMalformedTx,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(tc.raw)
			require.ErrorIs(t, err, tc.expectedErr)
		})
	}

	_, err = DecodeHex("zz")
	require.ErrorIs(t, err, ErrMalformedTx)
}

// TestDecodeNoWitnessEmptyInputs checks that a transaction without inputs is
// readable in the no-witness form, which is how PSBTs carry it.
func TestDecodeNoWitnessEmptyInputs(t *testing.T) {
	t.Parallel()

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x51}))

	raw, err := EncodeNoWitness(tx)
	require.NoError(t, err)

	decoded, err := DecodeNoWitness(raw)
	require.NoError(t, err)
	require.Empty(t, decoded.TxIn)
	require.Len(t, decoded.TxOut, 1)
	require.EqualValues(t, 1000, decoded.TxOut[0].Value)
}

// TestTxOutCodec checks the standalone output encoding used by PSBT witness
// UTXO records.
func TestTxOutCodec(t *testing.T) {
	t.Parallel()

	raw, err := hex.DecodeString(
		"6ebf00000000000017a91421be9d00c3305b9e5a9eb628953ef7071c003" +
			"fc687",
	)
	require.NoError(t, err)

	txOut, err := DecodeTxOut(raw)
	require.NoError(t, err)
	require.EqualValues(t, 0xbf6e, txOut.Value)
	require.Len(t, txOut.PkScript, 23)

	encoded, err := EncodeTxOut(txOut)
	require.NoError(t, err)
	require.Equal(t, raw, encoded)

	_, err = DecodeTxOut(raw[:5])
	require.ErrorIs(t, err, ErrMalformedTxOut)

	_, err = DecodeTxOut(append(bytes.Clone(raw), 0x01))
	require.ErrorIs(t, err, ErrTrailingBytes)
}

// TestWitnessCodec checks the serialized witness stack format.
func TestWitnessCodec(t *testing.T) {
	t.Parallel()

	witness := wire.TxWitness{{}, {0x01, 0x02}, bytes.Repeat([]byte{7}, 300)}

	raw, err := SerializeWitness(witness)
	require.NoError(t, err)

	// Count, empty item, two byte item, then a 0xfd prefixed long item.
	require.Equal(t, []byte{0x03, 0x00, 0x02, 0x01, 0x02, 0xfd, 0x2c, 0x01},
		raw[:8])

	parsed, err := ParseWitness(raw)
	require.NoError(t, err)
	require.Len(t, parsed, 3)
	require.Empty(t, parsed[0])
	require.Equal(t, witness[1], []byte(parsed[1]))
	require.Equal(t, witness[2], []byte(parsed[2]))

	_, err = ParseWitness([]byte{0x05, 0x00})
	require.ErrorIs(t, err, ErrMalformedWitness)

	_, err = ParseWitness([]byte{0x01, 0x03, 0x00})
	require.ErrorIs(t, err, ErrMalformedWitness)

	_, err = ParseWitness(append(bytes.Clone(raw), 0x00))
	require.ErrorIs(t, err, ErrTrailingBytes)
}
