// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"math/rand"
	"sort"

	"github.com/btcsuite/psbtkit/pkg/btcunit"
)

// CoinSelectionStrategy is an interface that represents a coin selection
// strategy. A coin selection strategy is responsible for ordering, shuffling or
// filtering a list of coins before they are passed to the coin selection
// algorithm.
type CoinSelectionStrategy interface {
	// ArrangeCoins takes a list of coins and arranges them according to the
	// specified coin selection strategy and fee rate.
	ArrangeCoins(eligible []Utxo, feeRate btcunit.SatPerVByte) ([]Utxo,
		error)
}

var (
	// CoinSelectionLargest always picks the largest available utxo to add
	// to the transaction next.
	CoinSelectionLargest CoinSelectionStrategy = &LargestFirstCoinSelector{}

	// CoinSelectionRandom randomly selects the next utxo to add to the
	// transaction. This strategy prevents the creation of ever smaller
	// utxos over time.
	CoinSelectionRandom CoinSelectionStrategy = &RandomCoinSelector{}
)

// sortByAmount is a generic sortable type for sorting coins by their amount.
type sortByAmount []Utxo

func (s sortByAmount) Len() int { return len(s) }
func (s sortByAmount) Less(i, j int) bool {
	return s[i].Amount < s[j].Amount
}
func (s sortByAmount) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

// LargestFirstCoinSelector is an implementation of the CoinSelectionStrategy
// that always selects the largest coins first.
type LargestFirstCoinSelector struct{}

// ArrangeCoins takes a list of coins and arranges them according to the
// specified coin selection strategy and fee rate.
func (*LargestFirstCoinSelector) ArrangeCoins(eligible []Utxo,
	_ btcunit.SatPerVByte) ([]Utxo, error) {

	sort.Stable(sort.Reverse(sortByAmount(eligible)))

	return eligible, nil
}

// RandomCoinSelector is an implementation of the CoinSelectionStrategy that
// selects coins at random. This prevents the creation of ever smaller UTXOs
// over time that may never become economical to spend.
type RandomCoinSelector struct{}

// ArrangeCoins takes a list of coins and arranges them according to the
// specified coin selection strategy and fee rate.
func (*RandomCoinSelector) ArrangeCoins(eligible []Utxo,
	feeRate btcunit.SatPerVByte) ([]Utxo, error) {

	// Skip inputs that do not raise the total transaction output
	// value at the requested fee rate.
	positivelyYielding := make([]Utxo, 0, len(eligible))
	for _, utxo := range eligible {
		if !inputYieldsPositively(&utxo, feeRate) {
			continue
		}

		positivelyYielding = append(positivelyYielding, utxo)
	}

	rand.Shuffle(len(positivelyYielding), func(i, j int) {
		positivelyYielding[i], positivelyYielding[j] =
			positivelyYielding[j], positivelyYielding[i]
	})

	return positivelyYielding, nil
}

// inputYieldsPositively returns a boolean indicating whether this input yields
// positively if added to a transaction, that is whether its value exceeds the
// fee its own weight costs at the given rate.
func inputYieldsPositively(utxo *Utxo, feeRate btcunit.SatPerVByte) bool {
	weight, err := utxo.AddrType.InputWeight()
	if err != nil {
		return false
	}

	return utxo.Amount > feeRate.FeeForWeightRoundUp(weight)
}
