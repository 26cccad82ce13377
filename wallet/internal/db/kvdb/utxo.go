package kvdb

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/psbtkit/wallet/internal/db"
)

// utxoBuckets returns the two UTXO buckets inside a read-write transaction.
func utxoBuckets(tx walletdb.ReadWriteTx) (walletdb.ReadWriteBucket,
	walletdb.ReadWriteBucket, error) {

	ns := tx.ReadWriteBucket(utxoNamespaceKey)
	if ns == nil {
		return nil, nil, db.NewError(
			db.ErrDatabase, "utxo namespace not found", nil,
		)
	}

	utxos := ns.NestedReadWriteBucket(bucketUtxos)
	outPoints := ns.NestedReadWriteBucket(bucketOutPoints)
	if utxos == nil || outPoints == nil {
		return nil, nil, db.NewError(
			db.ErrDatabase, "utxo bucket not found", nil,
		)
	}

	return utxos, outPoints, nil
}

// PutUtxo inserts a UTXO or replaces the record with the same outpoint in
// place.
func (s *Store) PutUtxo(ctx context.Context, utxo db.UtxoInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := serializeUtxo(&utxo)
	if err != nil {
		return fmt.Errorf("serialize utxo %v: %w", utxo.OutPoint, err)
	}

	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		utxos, outPoints, err := utxoBuckets(tx)
		if err != nil {
			return err
		}

		opKey := outPointKey(utxo.OutPoint)

		// An existing record is overwritten under its old sequence
		// number so the listing order does not change.
		var key []byte
		if existing := outPoints.Get(opKey); existing != nil {
			key = append(key, existing...)
		} else {
			seq, err := utxos.NextSequence()
			if err != nil {
				return err
			}

			key = seqKey(seq)
			if err := outPoints.Put(opKey, key); err != nil {
				return err
			}
		}

		return utxos.Put(key, value)
	})
}

// GetUtxo returns the UTXO for the outpoint.
func (s *Store) GetUtxo(ctx context.Context,
	op wire.OutPoint) (*db.UtxoInfo, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var utxo *db.UtxoInfo
	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		ns := tx.ReadBucket(utxoNamespaceKey)
		if ns == nil {
			return db.NewError(
				db.ErrDatabase, "utxo namespace not found", nil,
			)
		}

		key := ns.NestedReadBucket(bucketOutPoints).Get(outPointKey(op))
		if key == nil {
			return fmt.Errorf("%w: %v", db.ErrUtxoNotFound, op)
		}

		value := ns.NestedReadBucket(bucketUtxos).Get(key)
		if value == nil {
			return db.NewError(db.ErrCorruptRecord, fmt.Sprintf(
				"outpoint %v indexed without a record", op,
			), nil)
		}

		var err error
		utxo, err = deserializeUtxo(value)

		return err
	})
	if err != nil {
		return nil, err
	}

	return utxo, nil
}

// ListUtxos returns every UTXO in insertion order.
func (s *Store) ListUtxos(ctx context.Context) ([]db.UtxoInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var utxos []db.UtxoInfo
	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		ns := tx.ReadBucket(utxoNamespaceKey)
		if ns == nil {
			return db.NewError(
				db.ErrDatabase, "utxo namespace not found", nil,
			)
		}

		return ns.NestedReadBucket(bucketUtxos).ForEach(
			func(_, v []byte) error {
				utxo, err := deserializeUtxo(v)
				if err != nil {
					return err
				}
				utxos = append(utxos, *utxo)

				return nil
			},
		)
	})
	if err != nil {
		return nil, err
	}

	return utxos, nil
}

// DeleteUtxo removes the UTXO for the outpoint.
func (s *Store) DeleteUtxo(ctx context.Context, op wire.OutPoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		utxos, outPoints, err := utxoBuckets(tx)
		if err != nil {
			return err
		}

		opKey := outPointKey(op)
		key := outPoints.Get(opKey)
		if key == nil {
			return fmt.Errorf("%w: %v", db.ErrUtxoNotFound, op)
		}

		// The key slice is only valid until the bucket is modified.
		seq := append([]byte(nil), key...)

		if err := outPoints.Delete(opKey); err != nil {
			return err
		}

		return utxos.Delete(seq)
	})
}
