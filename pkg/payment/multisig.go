// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payment

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// maxMultisigKeys is the largest n that can be expressed with a small integer
// opcode.
const maxMultisigKeys = 16

// Multisig is a bare m-of-n script:
// OP_m <pubkey>... OP_n OP_CHECKMULTISIG.
type Multisig struct {
	M       int
	PubKeys [][]byte
}

// NewMultisig returns the m-of-n template over the given keys, in order.
func NewMultisig(m int, pubKeys [][]byte) (*Multisig, error) {
	n := len(pubKeys)
	if m < 1 || m > n || n > maxMultisigKeys {
		return nil, fmt.Errorf("%w: %d-of-%d", ErrInvalidMultisig, m, n)
	}

	keys := make([][]byte, 0, n)
	for _, pubKey := range pubKeys {
		key, err := parsePubKey(pubKey)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return &Multisig{M: m, PubKeys: keys}, nil
}

// smallInt returns the value of an OP_1..OP_16 opcode.
func smallInt(op byte) (int, bool) {
	if op < txscript.OP_1 || op > txscript.OP_16 {
		return 0, false
	}

	return int(op-txscript.OP_1) + 1, true
}

// IsMultisig reports whether script is a well-formed bare multisig script.
func IsMultisig(script []byte) bool {
	_, err := ParseMultisig(script)
	return err == nil
}

// ParseMultisig decomposes a bare multisig script.
func ParseMultisig(script []byte) (*Multisig, error) {
	invalid := fmt.Errorf("%w: not multisig", ErrOutputScriptInvalid)

	if len(script) == 0 ||
		script[len(script)-1] != txscript.OP_CHECKMULTISIG {

		return nil, invalid
	}

	chunks, err := Decompile(script)
	if err != nil || len(chunks) < 4 {
		return nil, invalid
	}

	m, ok := smallInt(chunks[0].Opcode)
	if !ok {
		return nil, invalid
	}

	n, ok := smallInt(chunks[len(chunks)-2].Opcode)
	if !ok || m > n || len(chunks) != n+3 {
		return nil, invalid
	}

	keys := make([][]byte, 0, n)
	for _, c := range chunks[1 : n+1] {
		if !isStrictPubKey(c.Data) {
			return nil, invalid
		}
		keys = append(keys, bytes.Clone(c.Data))
	}

	return &Multisig{M: m, PubKeys: keys}, nil
}

func (p *Multisig) payment() {}

// Kind returns KindMultisig.
func (p *Multisig) Kind() Kind { return KindMultisig }

// Script returns the locking script.
func (p *Multisig) Script() []byte {
	b := txscript.NewScriptBuilder().AddInt64(int64(p.M))
	for _, key := range p.PubKeys {
		b.AddData(key)
	}
	script, _ := b.AddInt64(int64(len(p.PubKeys))).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()

	return script
}

// Address always fails: bare multisig has no address encoding.
func (p *Multisig) Address(*chaincfg.Params) (btcutil.Address, error) {
	return nil, fmt.Errorf("%w: bare multisig has no address",
		ErrAddressInvalid)
}

// Unlock returns OP_0 followed by the first M signatures taken in the order
// their keys appear in the script. The leading OP_0 is consumed by the
// CHECKMULTISIG off-by-one.
func (p *Multisig) Unlock(sigs []Signature) (*Unlock, error) {
	b := txscript.NewScriptBuilder().AddOp(txscript.OP_0)

	found := 0
	for _, key := range p.PubKeys {
		if found == p.M {
			break
		}

		sig, ok := findSig(sigs, func(pubKey []byte) bool {
			return bytes.Equal(pubKey, key)
		})
		if !ok {
			continue
		}

		b.AddData(sig.Sig)
		found++
	}

	if found < p.M {
		return nil, fmt.Errorf("%w: have %d of %d signatures",
			ErrMissingSignature, found, p.M)
	}

	scriptSig, err := b.Script()
	if err != nil {
		return nil, err
	}

	return &Unlock{ScriptSig: scriptSig}, nil
}
