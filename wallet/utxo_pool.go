// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/psbtkit/pkg/btcunit"
	"github.com/btcsuite/psbtkit/pkg/psbt"
	"github.com/btcsuite/psbtkit/wallet/internal/db"
	"github.com/btcsuite/psbtkit/wallet/internal/db/kvdb"
)

// ErrUtxoNotFound is returned when a UTXO is not in the pool.
var ErrUtxoNotFound = db.ErrUtxoNotFound

// UtxoPool is a persistent set of spendable outputs that Build and BuildAll
// can draw from.
type UtxoPool struct {
	store db.UtxoStore
}

// NewUtxoPool creates a pool on top of a UTXO store.
func NewUtxoPool(store db.UtxoStore) *UtxoPool {
	return &UtxoPool{store: store}
}

// OpenUtxoPool creates a pool backed by a walletdb database, creating its
// buckets on first use.
func OpenUtxoPool(dbConn walletdb.DB) (*UtxoPool, error) {
	store, err := kvdb.NewStore(dbConn)
	if err != nil {
		return nil, err
	}

	return NewUtxoPool(store), nil
}

// toDBAddressType maps an address type to its stored form.
func toDBAddressType(a AddressType) (db.AddressType, error) {
	switch a {
	case PubKeyHash:
		return db.PubKeyHash, nil

	case WitnessPubKey:
		return db.WitnessPubKey, nil

	case NestedWitnessPubKey:
		return db.NestedWitnessPubKey, nil

	case TaprootPubKey:
		return db.TaprootPubKey, nil

	default:
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedAddressType, a)
	}
}

// fromDBAddressType maps a stored address type back.
func fromDBAddressType(a db.AddressType) (AddressType, error) {
	switch a {
	case db.PubKeyHash:
		return PubKeyHash, nil

	case db.WitnessPubKey:
		return WitnessPubKey, nil

	case db.NestedWitnessPubKey:
		return NestedWitnessPubKey, nil

	case db.TaprootPubKey:
		return TaprootPubKey, nil

	default:
		return 0, fmt.Errorf("%w: stored type %d",
			ErrUnsupportedAddressType, a)
	}
}

func fromUtxoInfo(info *db.UtxoInfo) (Utxo, error) {
	addrType, err := fromDBAddressType(info.AddrType)
	if err != nil {
		return Utxo{}, err
	}

	return Utxo{
		OutPoint: info.OutPoint,
		Amount:   info.Amount,
		AddrType: addrType,
		PkScript: info.PkScript,
		PubKey:   info.PubKey,
	}, nil
}

// Put adds a UTXO to the pool, replacing a UTXO with the same outpoint. The
// output script must be the one the address type derives from the public
// key.
func (p *UtxoPool) Put(ctx context.Context, u Utxo) error {
	if u.Amount <= 0 {
		return fmt.Errorf("%w: utxo %v has amount %v",
			ErrIllegalParameter, u.OutPoint, u.Amount)
	}

	addrType, err := toDBAddressType(u.AddrType)
	if err != nil {
		return err
	}

	pkScript, err := u.AddrType.PkScript(u.PubKey)
	if err != nil {
		return fmt.Errorf("utxo %v: %w", u.OutPoint, err)
	}
	if !bytes.Equal(pkScript, u.PkScript) {
		return fmt.Errorf("%w: utxo %v script %x is not the %v "+
			"script of its key", ErrIllegalParameter, u.OutPoint,
			u.PkScript, u.AddrType)
	}

	err = p.store.PutUtxo(ctx, db.UtxoInfo{
		OutPoint: u.OutPoint,
		Amount:   u.Amount,
		AddrType: addrType,
		PkScript: u.PkScript,
		PubKey:   u.PubKey,
	})
	if err != nil {
		return err
	}

	log.Debugf("Added %v utxo %v worth %v to the pool", u.AddrType,
		u.OutPoint, u.Amount)

	return nil
}

// Get returns the UTXO for the outpoint.
func (p *UtxoPool) Get(ctx context.Context, op wire.OutPoint) (*Utxo, error) {
	info, err := p.store.GetUtxo(ctx, op)
	if err != nil {
		return nil, err
	}

	u, err := fromUtxoInfo(info)
	if err != nil {
		return nil, err
	}

	return &u, nil
}

// List returns every UTXO in the order it was first added.
func (p *UtxoPool) List(ctx context.Context) ([]Utxo, error) {
	infos, err := p.store.ListUtxos(ctx)
	if err != nil {
		return nil, err
	}

	utxos := make([]Utxo, 0, len(infos))
	for i := range infos {
		u, err := fromUtxoInfo(&infos[i])
		if err != nil {
			return nil, err
		}
		utxos = append(utxos, u)
	}

	return utxos, nil
}

// Remove deletes the UTXO for the outpoint.
func (p *UtxoPool) Remove(ctx context.Context, op wire.OutPoint) error {
	if err := p.store.DeleteUtxo(ctx, op); err != nil {
		return err
	}

	log.Debugf("Removed utxo %v from the pool", op)

	return nil
}

// Balance returns the total value of the pool.
func (p *UtxoPool) Balance(ctx context.Context) (btcutil.Amount, error) {
	utxos, err := p.List(ctx)
	if err != nil {
		return 0, err
	}

	var total btcutil.Amount
	for _, u := range utxos {
		total += u.Amount
	}

	return total, nil
}

// Build runs Build over the pool's UTXOs in pool order.
func (p *UtxoPool) Build(ctx context.Context, to []btcutil.Address,
	amounts []btcutil.Amount, change btcutil.Address,
	feeRate btcunit.SatPerVByte, params BuildParams) (*BuildResult, error) {

	utxos, err := p.List(ctx)
	if err != nil {
		return nil, err
	}

	return Build(utxos, to, amounts, change, feeRate, params)
}

// BuildAll runs BuildAll over every UTXO of the pool.
func (p *UtxoPool) BuildAll(ctx context.Context, to btcutil.Address,
	feeRate btcunit.SatPerVByte, params BuildParams) (*BuildResult, error) {

	utxos, err := p.List(ctx)
	if err != nil {
		return nil, err
	}

	return BuildAll(utxos, to, feeRate, params)
}

// MarkSpent removes every pool UTXO that an input of the packet spends. It
// is meant to be called once the packet's transaction is broadcast.
func (p *UtxoPool) MarkSpent(ctx context.Context, packet *psbt.Packet) error {
	for _, txIn := range packet.UnsignedTx.TxIn {
		err := p.store.DeleteUtxo(ctx, txIn.PreviousOutPoint)
		switch {
		case err == nil:
			log.Debugf("Spent utxo %v", txIn.PreviousOutPoint)

		case errors.Is(err, ErrUtxoNotFound):

		default:
			return err
		}
	}

	return nil
}
