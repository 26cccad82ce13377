// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbt

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// parseKeyOrigin decodes a master key fingerprint followed by a list of
// 32-bit derivation steps.
func parseKeyOrigin(value []byte) (uint32, []uint32, error) {
	if len(value) < 4 || len(value)%4 != 0 {
		return 0, nil, fmt.Errorf("%w: key origin of %d bytes",
			ErrInvalidValue, len(value))
	}

	fingerprint := binary.LittleEndian.Uint32(value[:4])

	path := make([]uint32, 0, len(value)/4-1)
	for i := 4; i < len(value); i += 4 {
		path = append(path, binary.LittleEndian.Uint32(value[i:i+4]))
	}

	return fingerprint, path, nil
}

// serializeKeyOrigin encodes a fingerprint and derivation path.
func serializeKeyOrigin(fingerprint uint32, path []uint32) []byte {
	b := make([]byte, 4*(len(path)+1))
	binary.LittleEndian.PutUint32(b[:4], fingerprint)
	for i, step := range path {
		binary.LittleEndian.PutUint32(b[4*(i+1):], step)
	}

	return b
}

// checkPubKey validates a compressed or uncompressed public key.
func checkPubKey(pubKey []byte) error {
	if len(pubKey) != btcec.PubKeyBytesLenCompressed &&
		len(pubKey) != secp256k1.PubKeyBytesLenUncompressed {

		return fmt.Errorf("%w: public key of %d bytes",
			ErrInvalidKeyData, len(pubKey))
	}

	if _, err := btcec.ParsePubKey(pubKey); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKeyData, err)
	}

	return nil
}

// checkXOnlyKey validates a 32-byte x-only public key.
func checkXOnlyKey(key []byte) error {
	if len(key) != schnorr.PubKeyBytesLen {
		return fmt.Errorf("x-only key of %d bytes", len(key))
	}

	if _, err := schnorr.ParsePubKey(key); err != nil {
		return err
	}

	return nil
}

// parseBip32Derivation decodes a BIP32 derivation whose key data is a public
// key.
func parseBip32Derivation(keyData, value []byte) (*Bip32Derivation, error) {
	if err := checkPubKey(keyData); err != nil {
		return nil, err
	}

	fingerprint, path, err := parseKeyOrigin(value)
	if err != nil {
		return nil, err
	}

	return &Bip32Derivation{
		PubKey:               bytes.Clone(keyData),
		MasterKeyFingerprint: fingerprint,
		Bip32Path:            path,
	}, nil
}

// parseTaprootBip32Derivation decodes a taproot derivation: a varint count of
// leaf hashes, the hashes, then the key origin.
func parseTaprootBip32Derivation(keyData,
	value []byte) (*TaprootBip32Derivation, error) {

	if err := checkXOnlyKey(keyData); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyData, err)
	}

	r := bytes.NewReader(value)
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: leaf hash count: %w",
			ErrInvalidValue, err)
	}

	if count > uint64(r.Len()/32) {
		return nil, fmt.Errorf("%w: %d leaf hashes in %d bytes",
			ErrInvalidValue, count, r.Len())
	}

	leafHashes := make([][]byte, count)
	for i := range leafHashes {
		leafHashes[i] = make([]byte, 32)
		_, _ = r.Read(leafHashes[i])
	}

	rest := value[len(value)-r.Len():]
	fingerprint, path, err := parseKeyOrigin(rest)
	if err != nil {
		return nil, err
	}

	return &TaprootBip32Derivation{
		XOnlyPubKey:          bytes.Clone(keyData),
		LeafHashes:           leafHashes,
		MasterKeyFingerprint: fingerprint,
		Bip32Path:            path,
	}, nil
}

// serializeTaprootBip32Derivation encodes the value of a taproot derivation.
func serializeTaprootBip32Derivation(d *TaprootBip32Derivation) []byte {
	var b bytes.Buffer
	_ = wire.WriteVarInt(&b, 0, uint64(len(d.LeafHashes)))
	for _, h := range d.LeafHashes {
		b.Write(h)
	}
	b.Write(serializeKeyOrigin(d.MasterKeyFingerprint, d.Bip32Path))

	return b.Bytes()
}
