// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbt

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtkit/pkg/txwire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// magic is the five byte prefix of every serialized packet.
var magic = [5]byte{0x70, 0x73, 0x62, 0x74, 0xff}

// readBytes reads a varint length prefixed byte string. The length is checked
// against the bytes left in r before anything is allocated.
func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}

	if n > uint64(r.Len()) {
		return nil, io.ErrUnexpectedEOF
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}

	return b, nil
}

// readPair reads one key-value pair. It returns a nil key at the map
// separator.
func readPair(r *bytes.Reader) ([]byte, []byte, error) {
	key, err := readBytes(r)
	if err != nil {
		return nil, nil, err
	}

	if len(key) == 0 {
		return nil, nil, nil
	}

	value, err := readBytes(r)
	if err != nil {
		return nil, nil, err
	}

	return key, value, nil
}

// writePair appends a key-value pair made of a type byte, key data and value.
func writePair(w *bytes.Buffer, keyType byte, keyData, value []byte) {
	_ = wire.WriteVarInt(w, 0, uint64(1+len(keyData)))
	w.WriteByte(keyType)
	w.Write(keyData)
	_ = wire.WriteVarBytes(w, 0, value)
}

// writeUnknowns appends the preserved unknown pairs of a map.
func writeUnknowns(w *bytes.Buffer, unknowns []*Unknown) {
	for _, u := range unknowns {
		_ = wire.WriteVarBytes(w, 0, u.Key)
		_ = wire.WriteVarBytes(w, 0, u.Value)
	}
}

// mapDecoder decodes one field of a map. singleValued reports whether the
// key type may occur only once.
type mapDecoder interface {
	decodeField(keyType byte, keyData, value []byte) error
	singleValued(keyType byte) bool
}

// readMap reads pairs until the separator and hands each to d. Duplicate
// keys are rejected before d sees them.
func readMap(r *bytes.Reader, kind MapKind, index int, d mapDecoder) error {
	seen := fn.NewSet[string]()

	for {
		key, value, err := readPair(r)
		if err != nil {
			return err
		}
		if key == nil {
			return nil
		}

		keyType := key[0]
		fieldErr := func(err error) error {
			return &FieldError{
				Map:     kind,
				Index:   index,
				KeyType: keyType,
				Key:     key,
				Value:   value,
				Err:     err,
			}
		}

		if seen.Contains(string(key)) {
			switch {
			case kind == MapGlobal && len(key) == 1 &&
				keyType == GlobalUnsignedTxType:

				return fieldErr(ErrMultipleUnsignedTx)

			case len(key) == 1 && d.singleValued(keyType):
				return fieldErr(ErrDuplicateField)

			default:
				return fieldErr(ErrDuplicateKey)
			}
		}
		seen.Add(string(key))

		if err := d.decodeField(keyType, key[1:], value); err != nil {
			return fieldErr(err)
		}
	}
}

// requireNoKeyData rejects key data on a field that is keyed by its type
// alone.
func requireNoKeyData(keyData []byte) error {
	if len(keyData) != 0 {
		return fmt.Errorf("%w: unexpected key data %x",
			ErrInvalidKeyData, keyData)
	}

	return nil
}

// globalDecoder decodes the global map into a packet.
type globalDecoder struct {
	p *Packet
}

func (g *globalDecoder) singleValued(keyType byte) bool {
	return keyType == GlobalUnsignedTxType
}

func (g *globalDecoder) decodeField(keyType byte, keyData,
	value []byte) error {

	switch keyType {
	case GlobalUnsignedTxType:
		if err := requireNoKeyData(keyData); err != nil {
			return err
		}
		if g.p.UnsignedTx != nil {
			return ErrMultipleUnsignedTx
		}

		tx, err := txwire.DecodeNoWitness(value)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}

		for _, in := range tx.TxIn {
			if len(in.SignatureScript) != 0 || len(in.Witness) != 0 {
				return ErrUnsignedTxHasScripts
			}
		}
		g.p.UnsignedTx = tx

	case GlobalXPubType:
		xpub, err := parseXPub(keyData, value)
		if err != nil {
			return err
		}
		g.p.XPubs = append(g.p.XPubs, xpub)

	default:
		g.p.Unknowns = append(g.p.Unknowns, &Unknown{
			Key:   append([]byte{keyType}, keyData...),
			Value: value,
		})
	}

	return nil
}

// Parse decodes a serialized packet. The buffer must hold exactly one packet.
func Parse(raw []byte) (*Packet, error) {
	if len(raw) < len(magic) || !bytes.Equal(raw[:len(magic)], magic[:]) {
		return nil, ErrInvalidMagic
	}

	r := bytes.NewReader(raw[len(magic):])

	p := &Packet{}
	if err := readMap(r, MapGlobal, 0, &globalDecoder{p: p}); err != nil {
		return nil, fmt.Errorf("global map: %w", err)
	}

	if p.UnsignedTx == nil {
		return nil, ErrMissingUnsignedTx
	}

	p.Inputs = make([]PInput, len(p.UnsignedTx.TxIn))
	for i := range p.Inputs {
		err := readMap(r, MapInput, i, &inputDecoder{in: &p.Inputs[i]})
		if err != nil {
			if isTruncated(err) {
				return nil, fmt.Errorf("%w: input map %d: %w",
					ErrInputCountMismatch, i, err)
			}

			return nil, err
		}
	}

	p.Outputs = make([]POutput, len(p.UnsignedTx.TxOut))
	for i := range p.Outputs {
		err := readMap(
			r, MapOutput, i, &outputDecoder{out: &p.Outputs[i]},
		)
		if err != nil {
			if isTruncated(err) {
				return nil, fmt.Errorf("%w: output map %d: %w",
					ErrOutputCountMismatch, i, err)
			}

			return nil, err
		}
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes after last output map",
			txwire.ErrTrailingBytes, r.Len())
	}

	log.Tracef("Parsed psbt: %v", newLogClosure(func() string {
		return spewPacket(p)
	}))

	return p, nil
}

// isTruncated reports whether err comes from running out of bytes rather
// than from a malformed field.
func isTruncated(err error) bool {
	var fieldErr *FieldError
	if errors.As(err, &fieldErr) {
		return false
	}

	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// ParseHex decodes a hex encoded packet.
func ParseHex(s string) (*Packet, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}

	return Parse(raw)
}

// ParseBase64 decodes a base64 encoded packet.
func ParseBase64(s string) (*Packet, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}

	return Parse(raw)
}

// Serialize encodes the packet. Fields are written in ascending key type
// order, repeated fields in slice order and unknown pairs last.
func (p *Packet) Serialize() ([]byte, error) {
	if err := p.checkSanity(); err != nil {
		return nil, err
	}

	var w bytes.Buffer
	w.Write(magic[:])

	tx, err := txwire.EncodeNoWitness(p.UnsignedTx)
	if err != nil {
		return nil, err
	}
	writePair(&w, GlobalUnsignedTxType, nil, tx)

	for _, xpub := range p.XPubs {
		writePair(&w, GlobalXPubType, xpub.Key, serializeKeyOrigin(
			xpub.MasterKeyFingerprint, xpub.Bip32Path,
		))
	}
	writeUnknowns(&w, p.Unknowns)
	w.WriteByte(0x00)

	for i := range p.Inputs {
		if err := p.Inputs[i].serialize(&w); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		w.WriteByte(0x00)
	}

	for i := range p.Outputs {
		p.Outputs[i].serialize(&w)
		w.WriteByte(0x00)
	}

	return w.Bytes(), nil
}

// Hex returns the hex encoding of the serialized packet.
func (p *Packet) Hex() (string, error) {
	raw, err := p.Serialize()
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(raw), nil
}

// Base64 returns the base64 encoding of the serialized packet.
func (p *Packet) Base64() (string, error) {
	raw, err := p.Serialize()
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(raw), nil
}
