// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payment

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

// Chunk is a single element of a decomposed script: an opcode together with
// the data it pushes, if any.
type Chunk struct {
	Opcode byte
	Data   []byte
}

// IsPush reports whether the chunk only pushes data (including the small
// integer opcodes) onto the stack.
func (c Chunk) IsPush() bool {
	return c.Opcode <= txscript.OP_16
}

// Decompile splits a script into its chunks. A push whose length runs past
// the end of the script is an error.
func Decompile(script []byte) ([]Chunk, error) {
	var chunks []Chunk

	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		chunks = append(chunks, Chunk{
			Opcode: tokenizer.Opcode(),
			Data:   tokenizer.Data(),
		})
	}

	if err := tokenizer.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutputScriptInvalid, err)
	}

	return chunks, nil
}

// stackItems converts a push-only unlocking script into the equivalent stack
// items, which is how a legacy-style unlock is carried inside a witness.
func stackItems(scriptSig []byte) ([][]byte, error) {
	chunks, err := Decompile(scriptSig)
	if err != nil {
		return nil, err
	}

	items := make([][]byte, 0, len(chunks))
	for _, c := range chunks {
		switch {
		case c.Opcode == txscript.OP_0:
			items = append(items, []byte{})

		case c.Opcode == txscript.OP_1NEGATE:
			items = append(items, []byte{0x81})

		case c.Opcode >= txscript.OP_1 && c.Opcode <= txscript.OP_16:
			items = append(items,
				[]byte{c.Opcode - (txscript.OP_1 - 1)})

		case c.Data != nil:
			items = append(items, c.Data)

		default:
			return nil, fmt.Errorf("%w: non-push opcode %#x in "+
				"unlocking script", ErrOutputScriptInvalid, c.Opcode)
		}
	}

	return items, nil
}

// KeyPosition returns the index of the first chunk of script that pushes the
// given public key, its HASH160, or its x-only form. It returns -1 when the
// key does not appear or the script cannot be decomposed.
func KeyPosition(script, pubKey []byte) int {
	if len(pubKey) == 0 {
		return -1
	}

	chunks, err := Decompile(script)
	if err != nil {
		return -1
	}

	keyHash := btcutil.Hash160(pubKey)
	xOnly := ToXOnly(pubKey)

	for i, c := range chunks {
		if len(c.Data) == 0 {
			continue
		}

		if bytes.Equal(c.Data, pubKey) || bytes.Equal(c.Data, keyHash) ||
			(xOnly != nil && bytes.Equal(c.Data, xOnly)) {

			return i
		}
	}

	return -1
}

// ContainsKey reports whether script references the given public key.
func ContainsKey(script, pubKey []byte) bool {
	return KeyPosition(script, pubKey) >= 0
}

// ToXOnly returns the 32-byte x-only form of a serialized public key. Keys
// that are already 32 bytes are returned as-is, any other length yields nil.
func ToXOnly(pubKey []byte) []byte {
	switch len(pubKey) {
	case schnorr.PubKeyBytesLen:
		return pubKey

	case 33:
		return pubKey[1:]

	case 65:
		return pubKey[1:33]

	default:
		return nil
	}
}

// isStrictPubKey reports whether b has the byte layout of a compressed or
// uncompressed public key. It does not check that the point is on the curve.
func isStrictPubKey(b []byte) bool {
	switch len(b) {
	case 33:
		return b[0] == 0x02 || b[0] == 0x03

	case 65:
		return b[0] == 0x04

	default:
		return false
	}
}
