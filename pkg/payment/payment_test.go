package payment

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

const (
	// segwitPubKey is a compressed key whose nested P2WPKH address is
	// 34mSZvCAzpwMHq17YzEFNaNPr67xvDEjKn.
	segwitPubKey = "038fc16615f500148a371d4052823311a321567af773c261c34dd4" +
		"10ce5a4e526e"

	// bip86InternalKey is the first BIP86 test vector internal key.
	bip86InternalKey = "cc8a4bc64d897bddc5fbc2f670f7a8ba0b386779106cf1223c6" +
		"fc5d7cd6fc115"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()

	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}

func newKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return priv
}

// TestKeyHashTemplates checks the scripts and addresses derived from a single
// public key.
func TestKeyHashTemplates(t *testing.T) {
	t.Parallel()

	pubKey := mustHex(t, segwitPubKey)
	net := &chaincfg.MainNetParams

	p2pkh, err := NewP2PKH(pubKey)
	require.NoError(t, err)
	require.Equal(t, "76a914ec535b08b689033c8afc6a3a7b46489d4f72b55c88ac",
		hex.EncodeToString(p2pkh.Script()))

	addr, err := p2pkh.Address(net)
	require.NoError(t, err)
	require.Equal(t, "1NYaKvQJSZuKEKmtq6VoZCwarjHfYYnDAH", addr.String())

	p2wpkh, err := NewP2WPKH(pubKey)
	require.NoError(t, err)
	require.Equal(t, "0014ec535b08b689033c8afc6a3a7b46489d4f72b55c",
		hex.EncodeToString(p2wpkh.Script()))
	require.Equal(t, p2pkh.Script(), p2wpkh.SigningScript())

	addr, err = p2wpkh.Address(net)
	require.NoError(t, err)
	require.Equal(t, "bc1qa3f4kz9k3ypnezhudga8k3jgn48h9d2uet6ysa",
		addr.String())

	nested := NewP2SH(p2wpkh)
	require.Equal(t, "a91421be9d00c3305b9e5a9eb628953ef7071c003fc687",
		hex.EncodeToString(nested.Script()))

	addr, err = nested.Address(net)
	require.NoError(t, err)
	require.Equal(t, "34mSZvCAzpwMHq17YzEFNaNPr67xvDEjKn", addr.String())

	// Witness programs only take compressed keys.
	uncompressed := newKey(t).PubKey().SerializeUncompressed()
	_, err = NewP2WPKH(uncompressed)
	require.ErrorIs(t, err, ErrInvalidPubKey)

	_, err = NewP2PKH([]byte{0x02, 0x01})
	require.ErrorIs(t, err, ErrInvalidPubKey)
}

// TestTaprootBIP86 checks the BIP86 key path output key derivation.
func TestTaprootBIP86(t *testing.T) {
	t.Parallel()

	internal := mustHex(t, bip86InternalKey)

	p2tr, err := NewP2TR(internal)
	require.NoError(t, err)
	require.Equal(t, "5120a60869f0dbcf1dc659c9cecbaf8050135ea9e8cdc487053f"+
		"1dc6880949dc684c", hex.EncodeToString(p2tr.Script()))

	addr, err := p2tr.Address(&chaincfg.MainNetParams)
	require.NoError(t, err)
	require.Equal(t, "bc1p5cyxnuxmeuwuvkwfem96lqzszd02n6xdcjrs20cac6yqjjwu"+
		"dpxqkedrcr", addr.String())

	// The compressed form of the same key yields the same output key.
	withPrefix := append([]byte{0x02}, internal...)
	p2tr2, err := NewP2TR(withPrefix)
	require.NoError(t, err)
	require.Equal(t, p2tr.OutputKey, p2tr2.OutputKey)

	parsed, err := FromAddress(addr.String(), &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.Equal(t, KindP2TR, parsed.Kind())
	require.Equal(t, p2tr.Script(), parsed.Script())

	_, err = NewP2TR(internal[:31])
	require.ErrorIs(t, err, ErrInvalidPubKey)
}

// TestClassify checks template recognition for each kind and a few near
// misses.
func TestClassify(t *testing.T) {
	t.Parallel()

	pub := newKey(t).PubKey().SerializeCompressed()
	pub2 := newKey(t).PubKey().SerializeCompressed()

	p2pk, err := NewP2PK(pub)
	require.NoError(t, err)
	p2pkh, err := NewP2PKH(pub)
	require.NoError(t, err)
	p2wpkh, err := NewP2WPKH(pub)
	require.NoError(t, err)
	p2tr, err := NewP2TR(pub)
	require.NoError(t, err)
	multi, err := NewMultisig(1, [][]byte{pub, pub2})
	require.NoError(t, err)

	testCases := []struct {
		name   string
		script []byte
		kind   Kind
	}{
		{"p2pk", p2pk.Script(), KindP2PK},
		{"p2pkh", p2pkh.Script(), KindP2PKH},
		{"p2sh", NewP2SH(multi).Script(), KindP2SH},
		{"p2wpkh", p2wpkh.Script(), KindP2WPKH},
		{"p2wsh", NewP2WSH(multi).Script(), KindP2WSH},
		{"p2tr", p2tr.Script(), KindP2TR},
		{"multisig", multi.Script(), KindMultisig},
		{"empty", nil, KindUnknown},
		{"op_return", []byte{txscript.OP_RETURN, 0x01, 0x00}, KindUnknown},
		{"truncated p2pkh", p2pkh.Script()[:24], KindUnknown},
		{"witness v2", append([]byte{txscript.OP_2, 0x20},
			make([]byte, 32)...), KindUnknown},
		{"truncated push", []byte{txscript.OP_DATA_33, 0x02},
			KindUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.kind, Classify(tc.script))

			p, err := FromScript(tc.script)
			if tc.kind == KindUnknown {
				require.ErrorIs(t, err, ErrOutputScriptInvalid)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.kind, p.Kind())
			require.Equal(t, tc.script, p.Script())
		})
	}
}

// TestMultisig checks construction bounds, parsing and the ordering of the
// unlock signatures.
func TestMultisig(t *testing.T) {
	t.Parallel()

	keys := make([][]byte, 3)
	for i := range keys {
		keys[i] = newKey(t).PubKey().SerializeCompressed()
	}

	_, err := NewMultisig(0, keys)
	require.ErrorIs(t, err, ErrInvalidMultisig)
	_, err = NewMultisig(4, keys)
	require.ErrorIs(t, err, ErrInvalidMultisig)

	multi, err := NewMultisig(2, keys)
	require.NoError(t, err)

	parsed, err := ParseMultisig(multi.Script())
	require.NoError(t, err)
	require.Equal(t, multi, parsed)

	_, err = multi.Address(&chaincfg.MainNetParams)
	require.ErrorIs(t, err, ErrAddressInvalid)

	sigs := []Signature{
		{PubKey: keys[2], Sig: []byte{0xc2}},
		{PubKey: keys[0], Sig: []byte{0xc0}},
	}

	unlock, err := multi.Unlock(sigs)
	require.NoError(t, err)
	require.Equal(t, []byte{txscript.OP_0, 0x01, 0xc0, 0x01, 0xc2},
		unlock.ScriptSig)
	require.Empty(t, unlock.Witness)

	_, err = multi.Unlock(sigs[:1])
	require.ErrorIs(t, err, ErrMissingSignature)

	// Wrapped in P2WSH the pushes move onto the witness stack, followed
	// by the witness script.
	unlock, err = NewP2WSH(multi).Unlock(sigs)
	require.NoError(t, err)
	require.Empty(t, unlock.ScriptSig)
	require.Len(t, unlock.Witness, 4)
	require.Empty(t, unlock.Witness[0])
	require.Equal(t, []byte{0xc0}, unlock.Witness[1])
	require.Equal(t, []byte{0xc2}, unlock.Witness[2])
	require.Equal(t, multi.Script(), unlock.Witness[3])
}

// TestNestedUnlock checks that P2SH wrapping of a witness template pushes
// the inner script and keeps the inner witness.
func TestNestedUnlock(t *testing.T) {
	t.Parallel()

	pubKey := mustHex(t, segwitPubKey)
	p2wpkh, err := NewP2WPKH(pubKey)
	require.NoError(t, err)

	sig := Signature{PubKey: pubKey, Sig: []byte{0x30, 0x01}}

	unlock, err := NewP2SH(p2wpkh).Unlock([]Signature{sig})
	require.NoError(t, err)
	require.Equal(t, "160014ec535b08b689033c8afc6a3a7b46489d4f72b55c",
		hex.EncodeToString(unlock.ScriptSig))
	require.Len(t, unlock.Witness, 2)
	require.Equal(t, sig.Sig, unlock.Witness[0])
	require.Equal(t, pubKey, unlock.Witness[1])

	// A template recognized from its hash cannot be unlocked.
	parsed, err := ParseP2SH(NewP2SH(p2wpkh).Script())
	require.NoError(t, err)
	_, err = parsed.Unlock([]Signature{sig})
	require.ErrorIs(t, err, ErrMissingRedeem)

	// Signatures for other keys are not used.
	other := newKey(t).PubKey().SerializeCompressed()
	_, err = p2wpkh.Unlock([]Signature{{PubKey: other, Sig: sig.Sig}})
	require.ErrorIs(t, err, ErrMissingSignature)
}

// TestFromAddress checks address decoding and the network check.
func TestFromAddress(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		addr   string
		net    *chaincfg.Params
		kind   Kind
		script string
		err    error
	}{
		{
			name:   "p2pkh",
			addr:   "1NYaKvQJSZuKEKmtq6VoZCwarjHfYYnDAH",
			net:    &chaincfg.MainNetParams,
			kind:   KindP2PKH,
			script: "76a914ec535b08b689033c8afc6a3a7b46489d4f72b55c88ac",
		},
		{
			name:   "p2sh",
			addr:   "34mSZvCAzpwMHq17YzEFNaNPr67xvDEjKn",
			net:    &chaincfg.MainNetParams,
			kind:   KindP2SH,
			script: "a91421be9d00c3305b9e5a9eb628953ef7071c003fc687",
		},
		{
			name:   "p2wpkh",
			addr:   "bc1qa3f4kz9k3ypnezhudga8k3jgn48h9d2uet6ysa",
			net:    &chaincfg.MainNetParams,
			kind:   KindP2WPKH,
			script: "0014ec535b08b689033c8afc6a3a7b46489d4f72b55c",
		},
		{
			name: "wrong network",
			addr: "bc1qa3f4kz9k3ypnezhudga8k3jgn48h9d2uet6ysa",
			net:  &chaincfg.TestNet3Params,
			err:  ErrAddressInvalid,
		},
		{
			name: "garbage",
			addr: "not-an-address",
			net:  &chaincfg.MainNetParams,
			err:  ErrAddressInvalid,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p, err := FromAddress(tc.addr, tc.net)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.kind, p.Kind())
			require.Equal(t, tc.script, hex.EncodeToString(p.Script()))
		})
	}
}

// TestKeyPosition checks lookup of a key by its full, hashed and x-only
// forms.
func TestKeyPosition(t *testing.T) {
	t.Parallel()

	pubKey := mustHex(t, segwitPubKey)
	p2pkh, err := NewP2PKH(pubKey)
	require.NoError(t, err)

	// OP_DUP OP_HASH160 <hash> ...
	require.Equal(t, 2, KeyPosition(p2pkh.Script(), pubKey))

	xOnlyScript, err := txscript.NewScriptBuilder().
		AddData(ToXOnly(pubKey)).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)
	require.Equal(t, 0, KeyPosition(xOnlyScript, pubKey))

	other := newKey(t).PubKey().SerializeCompressed()
	require.Equal(t, -1, KeyPosition(p2pkh.Script(), other))
	require.False(t, ContainsKey([]byte{txscript.OP_0}, pubKey))
	require.Equal(t, -1, KeyPosition([]byte{txscript.OP_DATA_20}, pubKey))
}
