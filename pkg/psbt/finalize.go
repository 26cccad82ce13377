// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbt

import (
	"bytes"
	"fmt"
	"slices"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtkit/pkg/payment"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// FinalizeAllInputs finalizes every input. It stops at the first input that
// cannot be finalized.
func (p *Packet) FinalizeAllInputs() error {
	for i := range p.Inputs {
		if err := p.FinalizeInput(i); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
	}

	return nil
}

// FinalizeInput builds the final scriptSig and witness of input index from
// its signatures and clears the fields that were only needed for signing.
// Finalizing an input that is already final does nothing.
func (p *Packet) FinalizeInput(index int) error {
	return p.finalize(index, fn.None[chainhash.Hash]())
}

// FinalizeTaprootLeaf finalizes a taproot input through the script path of
// the given leaf. A key path signature still takes precedence.
func (p *Packet) FinalizeTaprootLeaf(index int, leafHash chainhash.Hash) error {
	return p.finalize(index, fn.Some(leafHash))
}

func (p *Packet) finalize(index int, leafHash fn.Option[chainhash.Hash]) error {
	if err := p.checkSanity(); err != nil {
		return err
	}
	if err := p.checkIndex(index); err != nil {
		return err
	}

	in := &p.Inputs[index]
	if in.IsFinalized() {
		log.Debugf("Input %d already finalized", index)
		return nil
	}

	var err error
	if p.IsTaprootInput(index) {
		err = in.finalizeTaproot(leafHash)
	} else {
		err = p.finalizeNonTaproot(index)
	}
	if err != nil {
		return err
	}

	in.clearFinalized()

	log.Debugf("Finalized input %d", index)

	return nil
}

// finalizeNonTaproot satisfies the innermost script of a legacy or segwit v0
// input and wraps the result in P2WSH and P2SH as the input's scripts say.
func (p *Packet) finalizeNonTaproot(index int) error {
	in := &p.Inputs[index]

	var script []byte
	switch {
	case in.WitnessScript != nil:
		script = in.WitnessScript

	case in.RedeemScript != nil:
		script = in.RedeemScript

	default:
		prevOut, err := p.PrevOut(index)
		if err != nil {
			return err
		}
		script = prevOut.PkScript
	}

	inner, err := payment.FromScript(script)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCannotFinalize, err)
	}

	switch inner.Kind() {
	case payment.KindMultisig, payment.KindP2PK, payment.KindP2PKH,
		payment.KindP2WPKH:

	default:
		return fmt.Errorf("%w: cannot satisfy %v script",
			ErrCannotFinalize, inner.Kind())
	}

	spend := inner
	if in.WitnessScript != nil {
		spend = payment.NewP2WSH(spend)
	}
	if in.RedeemScript != nil {
		spend = payment.NewP2SH(spend)
	}

	sigs := make([]payment.Signature, 0, len(in.PartialSigs))
	for _, sig := range in.PartialSigs {
		sigs = append(sigs, payment.Signature{
			PubKey: sig.PubKey,
			Sig:    sig.Signature,
		})
	}

	unlock, err := spend.Unlock(sigs)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCannotFinalize, err)
	}

	if len(unlock.ScriptSig) > 0 {
		in.FinalScriptSig = unlock.ScriptSig
	}
	if len(unlock.Witness) > 0 {
		in.FinalScriptWitness = unlock.Witness
	}

	return nil
}

// finalizeTaproot builds a key path witness when a key path signature exists
// and otherwise a script path witness for the first usable leaf.
func (i *PInput) finalizeTaproot(leafHash fn.Option[chainhash.Hash]) error {
	if i.WitnessUtxo == nil {
		return fmt.Errorf("%w: taproot input without witness utxo",
			ErrMissingUtxoInfo)
	}

	if i.TaprootKeySpendSig != nil {
		i.FinalScriptWitness = wire.TxWitness{
			bytes.Clone(i.TaprootKeySpendSig),
		}

		return nil
	}

	witness, err := i.tapScriptWitness(leafHash)
	if err != nil {
		return err
	}
	i.FinalScriptWitness = witness

	return nil
}

// tapScriptWitness picks the leaf with the longest control block that has a
// signature and, if requested, the given hash. The witness holds that leaf's
// signatures, the last key in the script first, then the script and the
// control block.
func (i *PInput) tapScriptWitness(
	want fn.Option[chainhash.Hash]) (wire.TxWitness, error) {

	leaves := slices.Clone(i.TaprootLeafScript)
	sort.SliceStable(leaves, func(a, b int) bool {
		return len(leaves[a].ControlBlock) > len(leaves[b].ControlBlock)
	})

	for _, leaf := range leaves {
		hash := leaf.LeafHash()
		if want.IsSome() && want.UnwrapOr(chainhash.Hash{}) != hash {
			continue
		}

		var sigs []*TaprootScriptSpendSig
		for _, sig := range i.TaprootScriptSpendSig {
			if bytes.Equal(sig.LeafHash, hash[:]) {
				sigs = append(sigs, sig)
			}
		}
		if len(sigs) == 0 {
			continue
		}

		sort.SliceStable(sigs, func(a, b int) bool {
			return payment.KeyPosition(leaf.Script, sigs[a].XOnlyPubKey) >
				payment.KeyPosition(leaf.Script, sigs[b].XOnlyPubKey)
		})

		witness := make(wire.TxWitness, 0, len(sigs)+2)
		for _, sig := range sigs {
			witness = append(witness, sig.RawSignature())
		}
		witness = append(witness, bytes.Clone(leaf.Script),
			bytes.Clone(leaf.ControlBlock))

		return witness, nil
	}

	return nil, fmt.Errorf("%w: no key path signature and no signed leaf",
		ErrCannotFinalize)
}
