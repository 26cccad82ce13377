// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/psbtkit/pkg/btcunit"
	"github.com/btcsuite/psbtkit/pkg/psbt"
	"github.com/btcsuite/psbtkit/pkg/txwire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// DustLimit is the smallest output value the builder creates. A change
	// output at or below it is dropped and left to the fee.
	DustLimit btcutil.Amount = 546

	// dummyInputAmount is the value of the placeholder input used while
	// estimating the fee. It is large enough that the estimate never sees
	// a negative change.
	dummyInputAmount btcutil.Amount = 2_100_000_000_000_000

	// SequenceRBF is the input sequence that signals BIP125
	// replaceability.
	SequenceRBF uint32 = wire.MaxTxInSequenceNum - 2

	// segwitHeaderWeight is the weight of the marker and flag bytes a
	// transaction carries once any of its inputs has a witness.
	segwitHeaderWeight = 2

	// emptyWitnessWeight is the weight of the zero item count a legacy
	// input takes in a segwit transaction.
	emptyWitnessWeight = 1
)

var (
	// ErrIllegalParameter is returned when the build arguments are
	// inconsistent, such as a different number of destinations and
	// amounts or no UTXOs at all.
	ErrIllegalParameter = errors.New("illegal parameter")

	// ErrInsufficientUTXO is returned when the UTXOs cannot pay for the
	// outputs and the fee.
	ErrInsufficientUTXO = errors.New("insufficient utxo")

	// ErrFeeRateTooLarge is returned when the fee rate exceeds the cap set
	// in BuildParams.
	ErrFeeRateTooLarge = errors.New("fee rate too large")

	// ErrDuplicatedUtxo is returned when a UTXO is specified multiple
	// times.
	ErrDuplicatedUtxo = errors.New("duplicated utxo")
)

// BuildParams holds the optional knobs of Build and BuildAll. The zero value
// builds a replaceable transaction from the UTXOs in the given order.
type BuildParams struct {
	// DisableRBF sets every input sequence to the final value instead of
	// SequenceRBF.
	DisableRBF bool

	// MaxFeeRate rejects fee rates above it. The zero value disables the
	// check.
	MaxFeeRate btcunit.SatPerVByte

	// Strategy orders the UTXOs before selection. A nil strategy keeps
	// the caller's order.
	Strategy CoinSelectionStrategy
}

// sequence returns the sequence number of every input.
func (p *BuildParams) sequence() uint32 {
	if p.DisableRBF {
		return wire.MaxTxInSequenceNum
	}

	return SequenceRBF
}

// BuildResult is an unsigned PSBT produced by Build or BuildAll.
type BuildResult struct {
	// Packet spends the selected UTXOs. Every input carries its witness
	// UTXO, so it can be signed without further decoration.
	Packet *psbt.Packet

	// ToSign lists the inputs to sign and the public key expected for
	// each of them.
	ToSign []ToSignInput

	// Fee is the fee the transaction pays.
	Fee btcutil.Amount

	// ChangeIndex is the index of the change output, or -1 if the change
	// was dust and no change output was added.
	ChangeIndex int32
}

// txBuilder accumulates the inputs and outputs of a transaction being built.
type txBuilder struct {
	feeRate  btcunit.SatPerVByte
	sequence uint32

	inputs      []Utxo
	outputs     []*wire.TxOut
	changeIndex int

	// segwit is set once the running fee pays for the segwit marker and
	// flag.
	segwit bool
}

func newTxBuilder(feeRate btcunit.SatPerVByte, params *BuildParams) *txBuilder {
	return &txBuilder{
		feeRate:     feeRate,
		sequence:    params.sequence(),
		changeIndex: -1,
	}
}

func (b *txBuilder) totalInput() btcutil.Amount {
	var total btcutil.Amount
	for _, u := range b.inputs {
		total += u.Amount
	}

	return total
}

func (b *txBuilder) totalOutput() btcutil.Amount {
	var total btcutil.Amount
	for _, out := range b.outputs {
		total += btcutil.Amount(out.Value)
	}

	return total
}

func (b *txBuilder) addOutput(pkScript []byte, amount btcutil.Amount) {
	b.outputs = append(b.outputs, wire.NewTxOut(int64(amount), pkScript))
}

func (b *txBuilder) addChangeOutput(pkScript []byte, amount btcutil.Amount) {
	b.addOutput(pkScript, amount)
	b.changeIndex = len(b.outputs) - 1
}

func (b *txBuilder) removeChangeOutput() {
	if b.changeIndex < 0 {
		return
	}

	b.outputs = append(
		b.outputs[:b.changeIndex], b.outputs[b.changeIndex+1:]...,
	)
	b.changeIndex = -1
}

// toPacket turns the accumulated inputs and outputs into a PSBT.
func (b *txBuilder) toPacket() (*psbt.Packet, error) {
	packet := psbt.NewEmpty()
	for _, u := range b.inputs {
		in, err := u.pInput()
		if err != nil {
			return nil, err
		}
		packet.AddInput(u.OutPoint, b.sequence, in)
	}

	for _, out := range b.outputs {
		packet.AddOutput(
			wire.NewTxOut(out.Value, out.PkScript), psbt.POutput{},
		)
	}

	return packet, nil
}

// signedEstimate returns a fully signed copy of the transaction as it stands.
// Every input of the copy is rewritten to pay to a freshly generated key of
// the same address type, so no caller key is involved.
func (b *txBuilder) signedEstimate() (*wire.MsgTx, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	pubKey := key.PubKey().SerializeCompressed()

	estimate := &txBuilder{
		feeRate:     b.feeRate,
		sequence:    b.sequence,
		inputs:      make([]Utxo, len(b.inputs)),
		outputs:     b.outputs,
		changeIndex: b.changeIndex,
	}

	toSign := make([]ToSignInput, len(b.inputs))
	for i, u := range b.inputs {
		pkScript, err := u.AddrType.PkScript(pubKey)
		if err != nil {
			return nil, err
		}

		u.PkScript = pkScript
		u.PubKey = pubKey
		estimate.inputs[i] = u

		toSign[i] = ToSignInput{Index: i, PubKey: pubKey}
	}

	packet, err := estimate.toPacket()
	if err != nil {
		return nil, err
	}

	_, err = SignPsbt(key, &SignPsbtParams{
		Packet:       packet,
		Inputs:       toSign,
		AutoFinalize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("sign fee estimate: %w", err)
	}

	tx, err := packet.Extract()
	if err != nil {
		return nil, fmt.Errorf("extract fee estimate: %w", err)
	}

	return tx, nil
}

// estimateFee returns the fee of the transaction as it stands, measured on a
// fully signed copy.
func (b *txBuilder) estimateFee() (btcutil.Amount, error) {
	tx, err := b.signedEstimate()
	if err != nil {
		return 0, err
	}

	vsize := txwire.VirtualSize(tx)
	fee := b.feeRate.FeeForVByteRoundUp(btcunit.NewVByte(vsize))

	log.Tracef("Estimated %v for %d vbytes at %v", fee, vsize, b.feeRate)

	return fee, nil
}

// feeForWeight returns the fee for weight rounded up to whole vbytes, the
// way the fee of a finished transaction is measured.
func (b *txBuilder) feeForWeight(weight btcunit.WeightUnit) btcutil.Amount {
	return b.feeRate.FeeForVByteRoundUp(
		btcunit.NewVByte(weight.ToVB().Ceil()),
	)
}

// measuredInputWeight returns the weight input index adds to tx, counting
// its witness only when tx is serialized with one.
func measuredInputWeight(tx *wire.MsgTx, index int) btcunit.WeightUnit {
	txIn := tx.TxIn[index]

	weight := txIn.SerializeSize() * blockchain.WitnessScaleFactor
	if tx.HasWitness() {
		weight += txIn.Witness.SerializeSize()
	}

	return btcunit.NewWeightUnit(uint64(weight))
}

// spendWeight returns the weight that adding a spend of addrType adds to the
// transaction. A legacy spend in a segwit transaction pays for its empty
// witness. The first witness spend in a legacy transaction also pays for the
// marker and flag and for the empty witness of every legacy input already
// selected.
func (b *txBuilder) spendWeight(addrType AddressType) (btcunit.WeightUnit,
	error) {

	weight, err := addrType.InputWeight()
	if err != nil {
		return btcunit.WeightUnit{}, err
	}

	extra := uint64(0)
	switch {
	case !addrType.IsWitness():
		if b.segwit {
			extra = emptyWitnessWeight
		}

	case !b.segwit:
		extra = segwitHeaderWeight
		for _, u := range b.inputs {
			if !u.AddrType.IsWitness() {
				extra += emptyWitnessWeight
			}
		}
	}

	return weight.Add(btcunit.NewWeightUnit(extra)), nil
}

// selectUtxos adds UTXOs from the pool until the inputs pay for the outputs
// and the fee of the running weight, which grows with every input added. It
// returns the final fee.
func (b *txBuilder) selectUtxos(pool []Utxo,
	weight btcunit.WeightUnit) ([]ToSignInput, btcutil.Amount, error) {

	var toSign []ToSignInput
	for {
		fee := b.feeForWeight(weight)

		shortfall := b.totalOutput() + fee - b.totalInput()
		if shortfall <= 0 {
			return toSign, fee, nil
		}

		selected, remaining := pickUtxos(pool, shortfall)
		if len(selected) == 0 {
			return nil, 0, fmt.Errorf("%w: short of %v",
				ErrInsufficientUTXO, shortfall)
		}

		for _, u := range selected {
			spend, err := b.spendWeight(u.AddrType)
			if err != nil {
				return nil, 0, err
			}

			b.inputs = append(b.inputs, u)
			if u.AddrType.IsWitness() {
				b.segwit = true
			}
			toSign = append(toSign, ToSignInput{
				Index:  len(b.inputs) - 1,
				PubKey: u.PubKey,
			})
			weight = weight.Add(spend)
		}

		pool = remaining
	}
}

// pickUtxos takes UTXOs from the front of the pool until their sum covers
// amount. The rest of the pool is returned as remaining.
func pickUtxos(pool []Utxo, amount btcutil.Amount) ([]Utxo, []Utxo) {
	var (
		selected  []Utxo
		remaining []Utxo
		total     btcutil.Amount
	)
	for _, u := range pool {
		if total < amount {
			total += u.Amount
			selected = append(selected, u)

			continue
		}

		remaining = append(remaining, u)
	}

	return selected, remaining
}

// validateUtxos checks that there is at least one UTXO, that no outpoint
// repeats and that every address type is spendable.
func validateUtxos(utxos []Utxo) error {
	if len(utxos) == 0 {
		return fmt.Errorf("%w: no utxos", ErrIllegalParameter)
	}

	seen := fn.NewSet[wire.OutPoint]()
	for _, u := range utxos {
		if seen.Contains(u.OutPoint) {
			return fmt.Errorf("%w: %v", ErrDuplicatedUtxo, u.OutPoint)
		}
		seen.Add(u.OutPoint)

		if _, err := u.AddrType.InputWeight(); err != nil {
			return err
		}
	}

	return nil
}

// validateFeeRate rejects negative rates and rates above the cap.
func validateFeeRate(feeRate btcunit.SatPerVByte, params *BuildParams) error {
	if feeRate.IsNegative() {
		return fmt.Errorf("%w: negative fee rate %v", ErrIllegalParameter,
			feeRate)
	}

	if !params.MaxFeeRate.IsZero() &&
		feeRate.GreaterThan(params.MaxFeeRate) {

		return fmt.Errorf("%w: fee rate of %v is above the max of %v",
			ErrFeeRateTooLarge, feeRate, params.MaxFeeRate)
	}

	return nil
}

// outputScript returns the output script for addr.
func outputScript(addr btcutil.Address) ([]byte, error) {
	if addr == nil {
		return nil, fmt.Errorf("%w: nil address", ErrIllegalParameter)
	}

	return txscript.PayToAddrScript(addr)
}

// arrange applies the selection strategy of params, if any.
func arrange(utxos []Utxo, feeRate btcunit.SatPerVByte,
	params *BuildParams) ([]Utxo, error) {

	if params.Strategy == nil {
		return utxos, nil
	}

	arranged, err := params.Strategy.ArrangeCoins(
		append([]Utxo(nil), utxos...), feeRate,
	)
	if err != nil {
		return nil, err
	}
	if len(arranged) == 0 {
		return nil, fmt.Errorf("%w: strategy left no utxos",
			ErrInsufficientUTXO)
	}

	return arranged, nil
}

// Build creates an unsigned PSBT paying amounts[i] to to[i], funded from
// utxos, with any change above DustLimit paid to change.
//
// The fee is estimated by signing a copy of the transaction that spends a
// single oversized placeholder input shaped like utxos[0]. The measured
// weight of the placeholder is then replaced by the largest weight of every
// input actually selected. UTXOs are taken from the front of the list until
// they cover the outputs and the fee.
func Build(utxos []Utxo, to []btcutil.Address, amounts []btcutil.Amount,
	change btcutil.Address, feeRate btcunit.SatPerVByte,
	params BuildParams) (*BuildResult, error) {

	if len(to) == 0 || len(to) != len(amounts) {
		return nil, fmt.Errorf("%w: %d destinations and %d amounts",
			ErrIllegalParameter, len(to), len(amounts))
	}
	if err := validateUtxos(utxos); err != nil {
		return nil, err
	}
	if err := validateFeeRate(feeRate, &params); err != nil {
		return nil, err
	}

	changeScript, err := outputScript(change)
	if err != nil {
		return nil, fmt.Errorf("change address: %w", err)
	}

	utxos, err = arrange(utxos, feeRate, &params)
	if err != nil {
		return nil, err
	}

	b := newTxBuilder(feeRate, &params)
	for i, addr := range to {
		pkScript, err := outputScript(addr)
		if err != nil {
			return nil, fmt.Errorf("destination %d: %w", i, err)
		}

		out := wire.NewTxOut(int64(amounts[i]), pkScript)
		err = txrules.CheckOutput(out, txrules.DefaultRelayFeePerKb)
		if err != nil {
			return nil, fmt.Errorf("%w: destination %d: %w",
				ErrIllegalParameter, i, err)
		}

		b.addOutput(pkScript, amounts[i])
	}

	// Measure the outputs plus a zero change output on a signed copy that
	// spends one placeholder input, then take the placeholder off again.
	// The marker and flag stay in the weight only if the placeholder has
	// a witness.
	dummy := utxos[0]
	dummy.Amount = dummyInputAmount
	b.inputs = append(b.inputs, dummy)
	b.addChangeOutput(changeScript, 0)

	estimate, err := b.signedEstimate()
	if err != nil {
		return nil, err
	}

	weight := btcunit.NewWeightUnit(
		txwire.Weight(estimate).Uint64() -
			measuredInputWeight(estimate, 0).Uint64(),
	)

	b.inputs = b.inputs[:0]
	b.segwit = txwire.HasWitness(estimate)

	toSign, fee, err := b.selectUtxos(utxos, weight)
	if err != nil {
		return nil, err
	}

	changeAmount := b.totalInput() - b.totalOutput() - fee
	b.removeChangeOutput()
	if changeAmount > DustLimit {
		b.addChangeOutput(changeScript, changeAmount)
	} else {
		log.Debugf("Dropping change of %v at or below dust limit %v",
			changeAmount, DustLimit)
	}

	return b.result(toSign)
}

// BuildAll creates an unsigned PSBT that spends every UTXO to a single
// output, paying the fee out of it. It fails with ErrInsufficientUTXO when
// what is left after the fee is below DustLimit.
func BuildAll(utxos []Utxo, to btcutil.Address, feeRate btcunit.SatPerVByte,
	params BuildParams) (*BuildResult, error) {

	if err := validateUtxos(utxos); err != nil {
		return nil, err
	}
	if err := validateFeeRate(feeRate, &params); err != nil {
		return nil, err
	}

	pkScript, err := outputScript(to)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}

	b := newTxBuilder(feeRate, &params)
	b.addOutput(pkScript, DustLimit)

	toSign := make([]ToSignInput, 0, len(utxos))
	for i, u := range utxos {
		b.inputs = append(b.inputs, u)
		toSign = append(toSign, ToSignInput{Index: i, PubKey: u.PubKey})
	}

	fee, err := b.estimateFee()
	if err != nil {
		return nil, err
	}

	unspent := b.totalInput() - fee
	if unspent < DustLimit {
		return nil, fmt.Errorf("%w: %v left after a fee of %v",
			ErrInsufficientUTXO, unspent, fee)
	}
	b.outputs[0].Value = int64(unspent)

	return b.result(toSign)
}

// result packages the builder state into a BuildResult.
func (b *txBuilder) result(toSign []ToSignInput) (*BuildResult, error) {
	packet, err := b.toPacket()
	if err != nil {
		return nil, err
	}

	fee := b.totalInput() - b.totalOutput()

	log.Debugf("Built transaction with %d inputs, %d outputs, fee %v",
		len(b.inputs), len(b.outputs), fee)
	log.Tracef("Built transaction: %v", spewTx(packet))

	return &BuildResult{
		Packet:      packet,
		ToSign:      toSign,
		Fee:         fee,
		ChangeIndex: int32(b.changeIndex),
	}, nil
}
