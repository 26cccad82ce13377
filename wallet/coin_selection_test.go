package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/psbtkit/pkg/btcunit"
	"github.com/stretchr/testify/require"
)

// TestLargestFirstCoinSelector verifies that coins are sorted by descending
// amount, keeping the order of equal amounts.
func TestLargestFirstCoinSelector(t *testing.T) {
	t.Parallel()

	key := testKey(0x51)
	coins := []Utxo{
		testUtxo(t, key, WitnessPubKey, 1_000, 0),
		testUtxo(t, key, WitnessPubKey, 5_000, 1),
		testUtxo(t, key, WitnessPubKey, 1_000, 2),
		testUtxo(t, key, WitnessPubKey, 9_000, 3),
	}

	arranged, err := CoinSelectionLargest.ArrangeCoins(
		coins, btcunit.NewSatPerVByte(1),
	)
	require.NoError(t, err)

	indexes := make([]uint32, len(arranged))
	for i, u := range arranged {
		indexes[i] = u.OutPoint.Index
	}
	require.Equal(t, []uint32{3, 1, 0, 2}, indexes)
}

// TestRandomCoinSelector verifies that the random strategy drops coins that
// cost more to spend than they are worth and keeps every other coin.
func TestRandomCoinSelector(t *testing.T) {
	t.Parallel()

	key := testKey(0x52)

	testCases := []struct {
		name    string
		rate    btcunit.SatPerVByte
		amounts []btcutil.Amount
		want    int
	}{
		{
			name:    "all coins yield",
			rate:    btcunit.NewSatPerVByte(1),
			amounts: []btcutil.Amount{500, 5_000, 50_000},
			want:    3,
		},
		{
			name:    "small coin dropped",
			rate:    btcunit.NewSatPerVByte(10),
			amounts: []btcutil.Amount{500, 5_000, 50_000},
			want:    2,
		},
		{
			name:    "nothing yields",
			rate:    btcunit.NewSatPerVByte(1_000),
			amounts: []btcutil.Amount{500, 5_000, 50_000},
			want:    0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			coins := make([]Utxo, len(tc.amounts))
			for i, amount := range tc.amounts {
				coins[i] = testUtxo(
					t, key, WitnessPubKey, amount, uint32(i),
				)
			}

			arranged, err := CoinSelectionRandom.ArrangeCoins(
				coins, tc.rate,
			)
			require.NoError(t, err)
			require.Len(t, arranged, tc.want)

			for _, u := range arranged {
				require.Contains(t, coins, u)
			}
		})
	}
}

// TestBuildRandomStrategyEmpty verifies that a build fails when the strategy
// filters out every coin.
func TestBuildRandomStrategyEmpty(t *testing.T) {
	t.Parallel()

	from, to := testKey(0x53), testKey(0x54)

	_, err := Build(
		[]Utxo{testUtxo(t, from, WitnessPubKey, 1_000, 0)},
		[]btcutil.Address{testAddr(t, to, WitnessPubKey)},
		[]btcutil.Amount{600}, testAddr(t, from, WitnessPubKey),
		btcunit.NewSatPerVByte(100),
		BuildParams{Strategy: CoinSelectionRandom},
	)
	require.ErrorIs(t, err, ErrInsufficientUTXO)
}
