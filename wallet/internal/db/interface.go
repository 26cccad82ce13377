// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package db

import (
	"context"

	"github.com/btcsuite/btcd/wire"
)

// UtxoStore defines the database actions for managing a pool of spendable
// outputs.
type UtxoStore interface {
	// PutUtxo inserts a UTXO or replaces the record with the same outpoint.
	// A replaced record keeps its position in the listing order.
	PutUtxo(ctx context.Context, utxo UtxoInfo) error

	// GetUtxo returns the UTXO for the outpoint, or ErrUtxoNotFound.
	GetUtxo(ctx context.Context, op wire.OutPoint) (*UtxoInfo, error)

	// ListUtxos returns every UTXO in the order they were first inserted.
	ListUtxos(ctx context.Context) ([]UtxoInfo, error)

	// DeleteUtxo removes the UTXO for the outpoint, or returns
	// ErrUtxoNotFound.
	DeleteUtxo(ctx context.Context, op wire.OutPoint) error
}
