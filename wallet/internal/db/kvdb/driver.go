// Package kvdb provides a walletdb (kvdb) backed implementation of the
// wallet/internal/db UTXO store interface.
package kvdb

import (
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/psbtkit/wallet/internal/db"
)

var (
	// utxoNamespaceKey is the top-level bucket holding the UTXO pool.
	utxoNamespaceKey = []byte("utxopool")

	// bucketUtxos maps an insertion sequence number to a UTXO record.
	bucketUtxos = []byte("utxos")

	// bucketOutPoints maps an outpoint to the sequence number of its
	// record in bucketUtxos.
	bucketOutPoints = []byte("outpoints")
)

// Store is the kvdb (walletdb) implementation of the db.UtxoStore interface.
type Store struct {
	db walletdb.DB
}

// A compile-time assertion to ensure that Store implements the db.UtxoStore
// interface.
var _ db.UtxoStore = (*Store)(nil)

// NewStore creates a kvdb-backed UTXO store, creating its buckets if this is
// a fresh database.
func NewStore(dbConn walletdb.DB) (*Store, error) {
	err := walletdb.Update(dbConn, func(tx walletdb.ReadWriteTx) error {
		ns := tx.ReadWriteBucket(utxoNamespaceKey)
		if ns == nil {
			var err error
			ns, err = tx.CreateTopLevelBucket(utxoNamespaceKey)
			if err != nil {
				return err
			}
		}

		if _, err := ns.CreateBucketIfNotExists(bucketUtxos); err != nil {
			return err
		}

		_, err := ns.CreateBucketIfNotExists(bucketOutPoints)

		return err
	})
	if err != nil {
		return nil, db.NewError(db.ErrDatabase, "create utxo buckets", err)
	}

	return &Store{db: dbConn}, nil
}
