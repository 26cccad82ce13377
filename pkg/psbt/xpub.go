// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbt

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// xpubLen is the length of a serialized BIP32 extended key.
	xpubLen = 78

	// xpubKeyOffset is the offset of the serialized public key inside an
	// extended key.
	xpubKeyOffset = 45
)

// errPrivateXPub is returned when an extended private key is given where a
// public one is required.
var errPrivateXPub = errors.New("extended key is private")

// XPub is a global extended public key record.
type XPub struct {
	// Key is the 78-byte BIP32 serialization of the extended public key.
	Key []byte

	MasterKeyFingerprint uint32
	Bip32Path            []uint32
}

// NewXPub builds a global record for an extended public key.
func NewXPub(key *hdkeychain.ExtendedKey, fingerprint uint32,
	path []uint32) (*XPub, error) {

	if key.IsPrivate() {
		return nil, errPrivateXPub
	}

	// The text form is the base58 encoding of the 78 serialized bytes and
	// a four byte checksum.
	decoded := base58.Decode(key.String())
	if len(decoded) != xpubLen+4 {
		return nil, fmt.Errorf("%w: extended key of %d bytes",
			ErrInvalidKeyData, len(decoded)-4)
	}

	return &XPub{
		Key:                  decoded[:xpubLen],
		MasterKeyFingerprint: fingerprint,
		Bip32Path:            append([]uint32(nil), path...),
	}, nil
}

// ExtendedKey returns the record's key as an hdkeychain extended key.
func (x *XPub) ExtendedKey() (*hdkeychain.ExtendedKey, error) {
	if err := checkXPubKeyData(x.Key); err != nil {
		return nil, err
	}

	checksum := chainhash.DoubleHashB(x.Key)[:4]
	encoded := base58.Encode(append(bytes.Clone(x.Key), checksum...))

	return hdkeychain.NewKeyFromString(encoded)
}

// checkXPubKeyData checks the length of a serialized extended key and that
// it holds a compressed public key.
func checkXPubKeyData(keyData []byte) error {
	if len(keyData) != xpubLen {
		return fmt.Errorf("%w: xpub of %d bytes", ErrInvalidKeyData,
			len(keyData))
	}

	if prefix := keyData[xpubKeyOffset]; prefix != 0x02 && prefix != 0x03 {
		return fmt.Errorf("%w: xpub key prefix %#02x",
			ErrInvalidKeyData, prefix)
	}

	return nil
}

// parseXPub decodes a global xpub record.
func parseXPub(keyData, value []byte) (*XPub, error) {
	if err := checkXPubKeyData(keyData); err != nil {
		return nil, err
	}

	fingerprint, path, err := parseKeyOrigin(value)
	if err != nil {
		return nil, err
	}

	return &XPub{
		Key:                  bytes.Clone(keyData),
		MasterKeyFingerprint: fingerprint,
		Bip32Path:            path,
	}, nil
}
