// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbt

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// maxTapTreeDepth is the deepest a leaf may sit in a taproot script tree.
const maxTapTreeDepth = 128

// outputDecoder decodes an output map.
type outputDecoder struct {
	out *POutput
}

func (d *outputDecoder) singleValued(keyType byte) bool {
	switch keyType {
	case OutputRedeemScriptType, OutputWitnessScriptType,
		OutputTapInternalKeyType, OutputTapTreeType:

		return true

	default:
		return false
	}
}

// parseTapTree decodes a sequence of (depth, leaf version, script) triples.
func parseTapTree(value []byte) ([]*TaprootTapLeaf, error) {
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: empty tap tree", ErrInvalidValue)
	}

	var leaves []*TaprootTapLeaf

	r := bytes.NewReader(value)
	for r.Len() > 0 {
		depth, _ := r.ReadByte()
		version, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated leaf", ErrInvalidValue)
		}

		if depth > maxTapTreeDepth {
			return nil, fmt.Errorf("%w: leaf depth %d",
				ErrInvalidValue, depth)
		}

		script, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("%w: leaf script: %w",
				ErrInvalidValue, err)
		}

		leaves = append(leaves, &TaprootTapLeaf{
			Depth:       depth,
			LeafVersion: txscript.TapscriptLeafVersion(version),
			Script:      script,
		})
	}

	return leaves, nil
}

func (d *outputDecoder) decodeField(keyType byte, keyData,
	value []byte) error {

	out := d.out

	switch keyType {
	case OutputRedeemScriptType:
		if err := requireNoKeyData(keyData); err != nil {
			return err
		}
		out.RedeemScript = value

	case OutputWitnessScriptType:
		if err := requireNoKeyData(keyData); err != nil {
			return err
		}
		out.WitnessScript = value

	case OutputBip32DerivationType:
		derivation, err := parseBip32Derivation(keyData, value)
		if err != nil {
			return err
		}
		out.Bip32Derivation = append(out.Bip32Derivation, derivation)

	case OutputTapInternalKeyType:
		if err := requireNoKeyData(keyData); err != nil {
			return err
		}
		if err := checkXOnlyKey(value); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		out.TaprootInternalKey = value

	case OutputTapTreeType:
		if err := requireNoKeyData(keyData); err != nil {
			return err
		}

		leaves, err := parseTapTree(value)
		if err != nil {
			return err
		}
		out.TaprootTapTree = leaves

	case OutputTapBip32DerivationType:
		derivation, err := parseTaprootBip32Derivation(keyData, value)
		if err != nil {
			return err
		}
		out.TaprootBip32Derivation = append(
			out.TaprootBip32Derivation, derivation,
		)

	default:
		out.Unknowns = append(out.Unknowns, &Unknown{
			Key:   append([]byte{keyType}, keyData...),
			Value: value,
		})
	}

	return nil
}

// serialize appends the output map, without its separator.
func (o *POutput) serialize(w *bytes.Buffer) {
	if o.RedeemScript != nil {
		writePair(w, OutputRedeemScriptType, nil, o.RedeemScript)
	}

	if o.WitnessScript != nil {
		writePair(w, OutputWitnessScriptType, nil, o.WitnessScript)
	}

	for _, d := range o.Bip32Derivation {
		writePair(w, OutputBip32DerivationType, d.PubKey,
			serializeKeyOrigin(d.MasterKeyFingerprint, d.Bip32Path))
	}

	if o.TaprootInternalKey != nil {
		writePair(w, OutputTapInternalKeyType, nil, o.TaprootInternalKey)
	}

	if len(o.TaprootTapTree) > 0 {
		var tree bytes.Buffer
		for _, leaf := range o.TaprootTapTree {
			tree.WriteByte(leaf.Depth)
			tree.WriteByte(byte(leaf.LeafVersion))
			_ = wire.WriteVarBytes(&tree, 0, leaf.Script)
		}
		writePair(w, OutputTapTreeType, nil, tree.Bytes())
	}

	for _, d := range o.TaprootBip32Derivation {
		writePair(w, OutputTapBip32DerivationType, d.XOnlyPubKey,
			serializeTaprootBip32Derivation(d))
	}

	writeUnknowns(w, o.Unknowns)
}
