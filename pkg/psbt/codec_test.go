package psbt

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtkit/pkg/txwire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

const (
	// nestedSegwitPsbt spends a P2SH-P2WPKH output to a P2SH output and
	// carries the witness UTXO and redeem script of its only input.
	nestedSegwitPsbt = "70736274ff0100530200000001f0a816905457348a6e90f5" +
		"89059bde4bafdc89f76536586d9dbec457039e8e330300000000ffffffff" +
		"01e80300000000000017a91421be9d00c3305b9e5a9eb628953ef7071c00" +
		"3fc68700000000000101206ebf00000000000017a91421be9d00c3305b9e" +
		"5a9eb628953ef7071c003fc6870104160014ec535b08b689033c8afc6a3a" +
		"7b46489d4f72b55c0000"

	nestedSegwitPrevHash = "338e9e0357c4be9d6d583665f789dcaf4bde9b0589f" +
		"5906e8a3457549016a8f0"

	nestedSegwitScript = "a91421be9d00c3305b9e5a9eb628953ef7071c003fc687"
	nestedSegwitRedeem = "0014ec535b08b689033c8afc6a3a7b46489d4f72b55c"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()

	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}

// testKey returns a deterministic private key whose scalar is b repeated.
func testKey(b byte) *btcec.PrivateKey {
	key, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{b}, 32))
	return key
}

// TestBuildNestedSegwitPacket checks that a packet assembled with the creator
// helpers serializes to the known encoding and parses back to it.
func TestBuildNestedSegwitPacket(t *testing.T) {
	t.Parallel()

	prevHash, err := chainhash.NewHashFromStr(nestedSegwitPrevHash)
	require.NoError(t, err)

	script := mustHex(t, nestedSegwitScript)

	p := NewEmpty()
	p.AddInput(
		wire.OutPoint{Hash: *prevHash, Index: 3},
		wire.MaxTxInSequenceNum,
		PInput{
			WitnessUtxo:  wire.NewTxOut(49006, script),
			RedeemScript: mustHex(t, nestedSegwitRedeem),
		},
	)
	p.AddOutput(wire.NewTxOut(1000, script), POutput{})

	encoded, err := p.Hex()
	require.NoError(t, err)
	require.Equal(t, nestedSegwitPsbt, encoded)

	parsed, err := ParseHex(encoded)
	require.NoError(t, err)
	require.Len(t, parsed.Inputs, 1)
	require.Len(t, parsed.Outputs, 1)
	require.EqualValues(t, 49006, parsed.Inputs[0].WitnessUtxo.Value)
	require.Equal(t, p.Inputs[0].RedeemScript, parsed.Inputs[0].RedeemScript)
	require.False(t, parsed.IsComplete())
	require.False(t, parsed.IsTaprootInput(0))

	reencoded, err := parsed.Hex()
	require.NoError(t, err)
	require.Equal(t, nestedSegwitPsbt, reencoded)

	fee, err := parsed.Fee()
	require.NoError(t, err)
	require.EqualValues(t, 48006, fee)

	b64, err := parsed.Base64()
	require.NoError(t, err)

	fromB64, err := ParseBase64(b64)
	require.NoError(t, err)

	again, err := fromB64.Hex()
	require.NoError(t, err)
	require.Equal(t, nestedSegwitPsbt, again)
}

// TestNewRejectsScripts checks that a transaction that already carries input
// scripts cannot become a packet.
func TestNewRejectsScripts(t *testing.T) {
	t.Parallel()

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{SignatureScript: []byte{txscript.OP_TRUE}})

	_, err := New(tx)
	require.ErrorIs(t, err, ErrUnsignedTxHasScripts)

	tx.TxIn[0].SignatureScript = nil
	tx.TxIn[0].Witness = wire.TxWitness{{0x01}}

	_, err = New(tx)
	require.ErrorIs(t, err, ErrUnsignedTxHasScripts)
}

// TestFullRoundTrip fills every field type and checks that the encoding is
// stable across a parse.
func TestFullRoundTrip(t *testing.T) {
	t.Parallel()

	key := testKey(1)
	pubKey := key.PubKey().SerializeCompressed()
	xOnly := schnorr.SerializePubKey(key.PubKey())

	master, err := hdkeychain.NewMaster(
		bytes.Repeat([]byte{0x42}, 32), &chaincfg.MainNetParams,
	)
	require.NoError(t, err)
	neutered, err := master.Neuter()
	require.NoError(t, err)

	path := []uint32{hdkeychain.HardenedKeyStart + 86, 0, 7}
	xpub, err := NewXPub(neutered, 0xdeadbeef, path)
	require.NoError(t, err)

	extended, err := xpub.ExtendedKey()
	require.NoError(t, err)
	require.Equal(t, neutered.String(), extended.String())

	_, err = NewXPub(master, 0, nil)
	require.Error(t, err)

	leafScript := append(append([]byte{txscript.OP_DATA_32}, xOnly...),
		txscript.OP_CHECKSIG)
	leafHash := txscript.NewBaseTapLeaf(leafScript).TapHash()
	controlBlock := append([]byte{0xc0}, xOnly...)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: 1},
		Sequence:         0xfffffffd,
	})
	tx.AddTxOut(wire.NewTxOut(5000, []byte{txscript.OP_TRUE}))

	p, err := New(tx)
	require.NoError(t, err)

	p.XPubs = []*XPub{xpub}
	p.Unknowns = []*Unknown{{Key: []byte{0xfc, 0x01}, Value: []byte{0x02}}}

	p.Inputs[0] = PInput{
		WitnessUtxo: wire.NewTxOut(6000, []byte{txscript.OP_TRUE}),
		PartialSigs: []*PartialSig{{
			PubKey:    pubKey,
			Signature: []byte{0x30, 0x01},
		}},
		SighashType:   fn.Some(txscript.SigHashAll),
		RedeemScript:  []byte{txscript.OP_1},
		WitnessScript: []byte{txscript.OP_2},
		Bip32Derivation: []*Bip32Derivation{{
			PubKey:               pubKey,
			MasterKeyFingerprint: 0x01020304,
			Bip32Path:            path,
		}},
		PorCommitment:      fn.Some("proof of reserves"),
		TaprootKeySpendSig: bytes.Repeat([]byte{0x11}, 64),
		TaprootScriptSpendSig: []*TaprootScriptSpendSig{{
			XOnlyPubKey: xOnly,
			LeafHash:    leafHash[:],
			Signature:   bytes.Repeat([]byte{0x22}, 64),
			SigHash:     txscript.SigHashSingle,
		}},
		TaprootLeafScript: []*TaprootTapLeafScript{{
			ControlBlock: controlBlock,
			Script:       leafScript,
			LeafVersion:  txscript.BaseLeafVersion,
		}},
		TaprootBip32Derivation: []*TaprootBip32Derivation{{
			XOnlyPubKey:          xOnly,
			LeafHashes:           [][]byte{leafHash[:]},
			MasterKeyFingerprint: 0x0a0b0c0d,
			Bip32Path:            path,
		}},
		TaprootInternalKey: xOnly,
		TaprootMerkleRoot:  leafHash[:],
		Unknowns: []*Unknown{
			{Key: []byte{0xfc, 0xaa}, Value: []byte{0x01}},
		},
	}
	p.Outputs[0] = POutput{
		RedeemScript:  []byte{txscript.OP_3},
		WitnessScript: []byte{txscript.OP_4},
		Bip32Derivation: []*Bip32Derivation{{
			PubKey:               pubKey,
			MasterKeyFingerprint: 0x01020304,
			Bip32Path:            path,
		}},
		TaprootInternalKey: xOnly,
		TaprootTapTree: []*TaprootTapLeaf{{
			Depth:       0,
			LeafVersion: txscript.BaseLeafVersion,
			Script:      leafScript,
		}},
		TaprootBip32Derivation: []*TaprootBip32Derivation{{
			XOnlyPubKey: xOnly,
			Bip32Path:   path,
		}},
		Unknowns: []*Unknown{{Key: []byte{0xfd}, Value: nil}},
	}

	raw, err := p.Serialize()
	require.NoError(t, err)

	parsed, err := Parse(raw)
	require.NoError(t, err)

	reencoded, err := parsed.Serialize()
	require.NoError(t, err)
	require.Equal(t, raw, reencoded)

	in := parsed.Inputs[0]
	require.Equal(t, txscript.SigHashAll,
		in.SighashType.UnwrapOr(txscript.SigHashDefault))
	require.Equal(t, "proof of reserves", in.PorCommitment.UnwrapOr(""))
	require.Len(t, in.TaprootScriptSpendSig, 1)
	require.Equal(t, txscript.SigHashSingle,
		in.TaprootScriptSpendSig[0].SigHash)
	require.Len(t, in.TaprootScriptSpendSig[0].RawSignature(), 65)
	require.Equal(t, leafHash, in.TaprootLeafScript[0].LeafHash())
	require.Equal(t, path, in.Bip32Derivation[0].Bip32Path)
	require.True(t, parsed.IsTaprootInput(0))

	require.Len(t, parsed.XPubs, 1)
	require.EqualValues(t, 0xdeadbeef, parsed.XPubs[0].MasterKeyFingerprint)
	require.Equal(t, path, parsed.XPubs[0].Bip32Path)

	require.Equal(t, p.Unknowns, parsed.Unknowns)
	require.Equal(t, p.Outputs[0].TaprootTapTree,
		parsed.Outputs[0].TaprootTapTree)
}

// TestBip32DerivationKeys checks which public key encodings a BIP32
// derivation may be keyed by.
func TestBip32DerivationKeys(t *testing.T) {
	t.Parallel()

	pubKey := testKey(3).PubKey()
	origin := serializeKeyOrigin(0x01020304, []uint32{44, 0})

	testCases := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{
			name: "compressed",
			key:  pubKey.SerializeCompressed(),
		},
		{
			name: "uncompressed",
			key:  pubKey.SerializeUncompressed(),
		},
		{
			name:    "x-only",
			key:     schnorr.SerializePubKey(pubKey),
			wantErr: true,
		},
		{
			name:    "not on the curve",
			key:     append([]byte{0x04}, bytes.Repeat([]byte{0x01}, 64)...),
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d, err := parseBip32Derivation(tc.key, origin)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidKeyData)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.key, d.PubKey)
			require.EqualValues(t, 0x01020304, d.MasterKeyFingerprint)
			require.Equal(t, []uint32{44, 0}, d.Bip32Path)
		})
	}
}

// writeMap appends the given pairs followed by the map separator.
func writeMap(w *bytes.Buffer, pairs ...func(w *bytes.Buffer)) {
	for _, pair := range pairs {
		pair(w)
	}
	w.WriteByte(0x00)
}

func pair(keyType byte, keyData, value []byte) func(w *bytes.Buffer) {
	return func(w *bytes.Buffer) {
		writePair(w, keyType, keyData, value)
	}
}

// TestParseErrors checks that malformed packets are rejected with the error
// describing what is wrong with them.
func TestParseErrors(t *testing.T) {
	t.Parallel()

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 2}})
	tx.AddTxOut(wire.NewTxOut(1000, []byte{txscript.OP_TRUE}))

	rawTx, err := txwire.EncodeNoWitness(tx)
	require.NoError(t, err)

	scriptTx := tx.Copy()
	scriptTx.TxIn[0].SignatureScript = []byte{txscript.OP_TRUE}
	rawScriptTx, err := txwire.EncodeNoWitness(scriptTx)
	require.NoError(t, err)

	global := pair(GlobalUnsignedTxType, nil, rawTx)
	witnessUtxo := pair(InputWitnessUtxoType, nil, mustHex(
		t, "e80300000000000001"+"51",
	))

	build := func(maps ...[]func(w *bytes.Buffer)) []byte {
		var w bytes.Buffer
		w.Write(magic[:])
		for _, m := range maps {
			writeMap(&w, m...)
		}

		return w.Bytes()
	}
	pairs := func(p ...func(w *bytes.Buffer)) []func(w *bytes.Buffer) {
		return p
	}

	testCases := []struct {
		name    string
		raw     []byte
		err     error
		mapKind fn.Option[MapKind]
	}{
		{
			name: "bad magic",
			raw:  mustHex(t, "70736274fe00"),
			err:  ErrInvalidMagic,
		},
		{
			name: "short input",
			raw:  mustHex(t, "7073"),
			err:  ErrInvalidMagic,
		},
		{
			name: "no unsigned tx",
			raw:  build(pairs()),
			err:  ErrMissingUnsignedTx,
		},
		{
			name:    "two unsigned txs",
			raw:     build(pairs(global, global)),
			err:     ErrMultipleUnsignedTx,
			mapKind: fn.Some(MapGlobal),
		},
		{
			name:    "unsigned tx with scripts",
			raw:     build(pairs(pair(0, nil, rawScriptTx))),
			err:     ErrUnsignedTxHasScripts,
			mapKind: fn.Some(MapGlobal),
		},
		{
			name: "duplicate unknown key",
			raw: build(pairs(
				global,
				pair(0xfc, []byte{0x01}, nil),
				pair(0xfc, []byte{0x01}, nil),
			)),
			err:     ErrDuplicateKey,
			mapKind: fn.Some(MapGlobal),
		},
		{
			name: "duplicate input field",
			raw: build(
				pairs(global), pairs(witnessUtxo, witnessUtxo),
				pairs(),
			),
			err:     ErrDuplicateField,
			mapKind: fn.Some(MapInput),
		},
		{
			name: "missing input map",
			raw:  build(pairs(global)),
			err:  ErrInputCountMismatch,
		},
		{
			name: "missing output map",
			raw:  build(pairs(global), pairs()),
			err:  ErrOutputCountMismatch,
		},
		{
			name: "trailing bytes",
			raw: append(
				build(pairs(global), pairs(), pairs()), 0x00,
			),
			err: txwire.ErrTrailingBytes,
		},
		{
			name: "truncated witness utxo",
			raw: build(
				pairs(global),
				pairs(pair(InputWitnessUtxoType, nil, []byte{1})),
				pairs(),
			),
			err:     ErrInvalidValue,
			mapKind: fn.Some(MapInput),
		},
		{
			name: "key data on sighash type",
			raw: build(
				pairs(global),
				pairs(pair(InputSighashType, []byte{0x01},
					[]byte{1, 0, 0, 0})),
				pairs(),
			),
			err:     ErrInvalidKeyData,
			mapKind: fn.Some(MapInput),
		},
		{
			name: "short taproot key signature",
			raw: build(
				pairs(global),
				pairs(pair(InputTapKeySigType, nil,
					make([]byte, 63))),
				pairs(),
			),
			err:     ErrInvalidValue,
			mapKind: fn.Some(MapInput),
		},
		{
			name: "explicit default sighash on taproot signature",
			raw: build(
				pairs(global),
				pairs(pair(InputTapKeySigType, nil,
					make([]byte, 65))),
				pairs(),
			),
			err:     ErrInvalidValue,
			mapKind: fn.Some(MapInput),
		},
		{
			name: "bad partial signature key",
			raw: build(
				pairs(global),
				pairs(pair(InputPartialSigType,
					[]byte{0x02, 0x01}, []byte{0x30})),
				pairs(),
			),
			err:     ErrInvalidKeyData,
			mapKind: fn.Some(MapInput),
		},
		{
			name: "empty tap tree",
			raw: build(
				pairs(global), pairs(),
				pairs(pair(OutputTapTreeType, nil, nil)),
			),
			err:     ErrInvalidValue,
			mapKind: fn.Some(MapOutput),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(tc.raw)
			require.ErrorIs(t, err, tc.err)

			var fieldErr *FieldError
			isField := errors.As(err, &fieldErr)
			require.Equal(t, tc.mapKind.IsSome(), isField)

			tc.mapKind.WhenSome(func(kind MapKind) {
				require.Equal(t, kind, fieldErr.Map)
				require.Equal(t, 0, fieldErr.Index)
			})
		})
	}
}

// TestSerializeSanity checks that a packet whose maps are out of step with
// its transaction cannot be serialized.
func TestSerializeSanity(t *testing.T) {
	t.Parallel()

	p := NewEmpty()
	p.UnsignedTx.AddTxIn(&wire.TxIn{})

	_, err := p.Serialize()
	require.ErrorIs(t, err, ErrInputCountMismatch)

	p.Inputs = append(p.Inputs, PInput{})
	p.UnsignedTx.AddTxOut(wire.NewTxOut(1, nil))

	_, err = p.Serialize()
	require.ErrorIs(t, err, ErrOutputCountMismatch)

	p.Outputs = append(p.Outputs, POutput{})

	_, err = p.Serialize()
	require.NoError(t, err)

	require.NoError(t, p.RemoveOutput(0))
	require.NoError(t, p.RemoveInput(0))
	require.ErrorIs(t, p.RemoveInput(0), ErrIndexOutOfBounds)

	_, err = (&Packet{}).Serialize()
	require.ErrorIs(t, err, ErrMissingUnsignedTx)
}

// TestInterop checks that packets move between this package and
// btcutil/psbt without loss.
func TestInterop(t *testing.T) {
	t.Parallel()

	p, err := ParseHex(nestedSegwitPsbt)
	require.NoError(t, err)

	packet, err := p.ToPacket()
	require.NoError(t, err)
	require.Len(t, packet.Inputs, 1)
	require.EqualValues(t, 49006, packet.Inputs[0].WitnessUtxo.Value)
	require.Equal(t, mustHex(t, nestedSegwitRedeem),
		packet.Inputs[0].RedeemScript)
	require.Equal(t, p.UnsignedTx.TxHash(), packet.UnsignedTx.TxHash())

	back, err := FromPacket(packet)
	require.NoError(t, err)

	encoded, err := back.Hex()
	require.NoError(t, err)
	require.Equal(t, nestedSegwitPsbt, encoded)
}
