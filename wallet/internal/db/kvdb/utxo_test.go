package kvdb

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/psbtkit/wallet/internal/db"
	"github.com/stretchr/testify/require"
)

// testUtxo returns a record whose fields are all derived from n.
func testUtxo(n byte) db.UtxoInfo {
	return db.UtxoInfo{
		OutPoint: wire.OutPoint{Hash: [32]byte{n}, Index: uint32(n)},
		Amount:   btcutil.Amount(1000 * int64(n)),
		AddrType: db.AddressType(n % 4),
		PkScript: []byte{0x00, 0x14, n, n, n},
		PubKey:   append([]byte{0x02}, make([]byte, 32)...),
	}
}

// TestPutGetUtxo verifies that a stored UTXO reads back unchanged.
func TestPutGetUtxo(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	utxo := testUtxo(1)

	// Act: Store the UTXO and read it back.
	err := store.PutUtxo(t.Context(), utxo)
	require.NoError(t, err)

	got, err := store.GetUtxo(t.Context(), utxo.OutPoint)

	// Assert: The record is identical.
	require.NoError(t, err)
	require.Equal(t, utxo, *got)
}

// TestListUtxosInsertionOrder verifies that UTXOs are listed in the order
// they were first inserted, and that replacing a record keeps its position.
func TestListUtxosInsertionOrder(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	// Arrange: Insert the outpoints in an order that differs from their
	// key order.
	order := []byte{5, 1, 3, 2}
	for _, n := range order {
		require.NoError(t, store.PutUtxo(t.Context(), testUtxo(n)))
	}

	// Act: Replace the second record with a new amount.
	replaced := testUtxo(1)
	replaced.Amount = 42
	require.NoError(t, store.PutUtxo(t.Context(), replaced))

	utxos, err := store.ListUtxos(t.Context())
	require.NoError(t, err)

	// Assert: The listing follows the insertion order and the replaced
	// record stayed in place.
	require.Len(t, utxos, len(order))
	for i, n := range order {
		require.Equal(t, wire.OutPoint{
			Hash: [32]byte{n}, Index: uint32(n),
		}, utxos[i].OutPoint)
	}
	require.Equal(t, replaced, utxos[1])
}

// TestDeleteUtxo verifies removal and the not-found error for unknown
// outpoints.
func TestDeleteUtxo(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	// Arrange: Two records.
	first, second := testUtxo(1), testUtxo(2)
	require.NoError(t, store.PutUtxo(t.Context(), first))
	require.NoError(t, store.PutUtxo(t.Context(), second))

	// Act: Delete the first one.
	err := store.DeleteUtxo(t.Context(), first.OutPoint)
	require.NoError(t, err)

	// Assert: It is gone, the other one is still listed, and a second
	// delete reports it as missing.
	_, err = store.GetUtxo(t.Context(), first.OutPoint)
	require.ErrorIs(t, err, db.ErrUtxoNotFound)

	utxos, err := store.ListUtxos(t.Context())
	require.NoError(t, err)
	require.Equal(t, []db.UtxoInfo{second}, utxos)

	err = store.DeleteUtxo(t.Context(), first.OutPoint)
	require.ErrorIs(t, err, db.ErrUtxoNotFound)
}

// TestListUtxosEmpty verifies an empty store lists nothing.
func TestListUtxosEmpty(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	utxos, err := store.ListUtxos(t.Context())
	require.NoError(t, err)
	require.Empty(t, utxos)
}

// TestNewStoreReopen verifies that creating a store on a database that
// already holds the buckets keeps the existing records.
func TestNewStoreReopen(t *testing.T) {
	t.Parallel()

	dbConn, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	store, err := NewStore(dbConn)
	require.NoError(t, err)
	require.NoError(t, store.PutUtxo(t.Context(), testUtxo(7)))

	reopened, err := NewStore(dbConn)
	require.NoError(t, err)

	utxos, err := reopened.ListUtxos(t.Context())
	require.NoError(t, err)
	require.Equal(t, []db.UtxoInfo{testUtxo(7)}, utxos)
}

// TestCanceledContext verifies that every operation honors a canceled
// context.
func TestCanceledContext(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	op := testUtxo(1).OutPoint

	require.ErrorIs(t, store.PutUtxo(ctx, testUtxo(1)), context.Canceled)

	_, err := store.GetUtxo(ctx, op)
	require.ErrorIs(t, err, context.Canceled)

	_, err = store.ListUtxos(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.ErrorIs(t, store.DeleteUtxo(ctx, op), context.Canceled)
}

// TestCorruptRecord verifies that undecodable records surface as
// ErrCorruptRecord instead of bad data.
func TestCorruptRecord(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{
			name: "truncated",
			mutate: func(v []byte) []byte {
				return v[:10]
			},
		},
		{
			name: "unknown address type",
			mutate: func(v []byte) []byte {
				v[outPointKeySize+8] = 0xff
				return v
			},
		},
		{
			name: "trailing bytes",
			mutate: func(v []byte) []byte {
				return append(v, 0x00)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dbConn, cleanup := newTestDB(t)
			t.Cleanup(cleanup)

			store, err := NewStore(dbConn)
			require.NoError(t, err)

			utxo := testUtxo(3)
			require.NoError(t, store.PutUtxo(t.Context(), utxo))

			// Arrange: Overwrite the stored record with a
			// corrupted copy.
			err = walletdb.Update(dbConn,
				func(tx walletdb.ReadWriteTx) error {
					utxos, _, err := utxoBuckets(tx)
					if err != nil {
						return err
					}

					key := seqKey(1)
					value := append(
						[]byte(nil), utxos.Get(key)...,
					)

					return utxos.Put(key, tc.mutate(value))
				},
			)
			require.NoError(t, err)

			// Act and assert.
			_, err = store.GetUtxo(t.Context(), utxo.OutPoint)
			require.True(t, db.IsError(err, db.ErrCorruptRecord),
				"unexpected error: %v", err)
		})
	}
}
