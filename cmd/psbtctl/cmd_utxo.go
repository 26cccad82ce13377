// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtkit/wallet"
	"github.com/jessevdk/go-flags"
)

type listedUtxo struct {
	OutPoint string `json:"outpoint"`
	Amount   int64  `json:"amount"`
	Type     string `json:"type"`
	Address  string `json:"address"`
	PubKey   string `json:"pubkey"`
}

// utxoCommand groups the commands that manage the UTXO pool.
type utxoCommand struct {
	Add     *utxoAddCommand     `command:"add" description:"Add a UTXO to the pool"`
	List    *utxoListCommand    `command:"list" description:"List the UTXOs of the pool"`
	Remove  *utxoRemoveCommand  `command:"remove" description:"Remove a UTXO from the pool"`
	Balance *utxoBalanceCommand `command:"balance" description:"Print the total value of the pool"`
	Spend   *utxoSpendCommand   `command:"spend" description:"Remove the UTXOs a PSBT spends"`
}

func newUtxoCommand(cfg *config) *utxoCommand {
	return &utxoCommand{
		Add:     &utxoAddCommand{cfg: cfg},
		List:    &utxoListCommand{cfg: cfg},
		Remove:  &utxoRemoveCommand{cfg: cfg},
		Balance: &utxoBalanceCommand{cfg: cfg},
		Spend:   &utxoSpendCommand{cfg: cfg},
	}
}

func (x *utxoCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"utxo",
		"Manage the UTXO pool",
		"Add, list and remove the UTXOs that build and buildall "+
			"spend",
		x,
	)
	return err
}

// withPool opens the pool of cfg, runs f on it and closes it again.
func withPool(cfg *config, f func(*wallet.UtxoPool) error) error {
	pool, closeDB, err := openPool(cfg.dbPath())
	if err != nil {
		return err
	}
	defer closeDB()

	return f(pool)
}

type utxoAddCommand struct {
	OutPoint string `long:"outpoint" description:"Outpoint of the UTXO as <txid>:<index>" required:"true"`
	Amount   int64  `long:"amount" description:"Value of the UTXO in satoshis" required:"true"`
	Type     string `long:"type" description:"Script type of the UTXO" choice:"p2pkh" choice:"p2wpkh" choice:"np2wpkh" choice:"p2tr" required:"true"`
	PubKey   string `long:"pubkey" description:"Compressed public key that controls the UTXO (hex)" required:"true"`

	cfg *config
}

func (x *utxoAddCommand) Execute(_ []string) error {
	op, err := wire.NewOutPointFromString(x.OutPoint)
	if err != nil {
		return fmt.Errorf("outpoint: %w", err)
	}

	addrType, err := wallet.ParseAddressType(x.Type)
	if err != nil {
		return err
	}

	pubKey, err := hex.DecodeString(x.PubKey)
	if err != nil {
		return fmt.Errorf("pubkey: %w", err)
	}

	pkScript, err := addrType.PkScript(pubKey)
	if err != nil {
		return err
	}

	u := wallet.Utxo{
		OutPoint: *op,
		Amount:   btcutil.Amount(x.Amount),
		AddrType: addrType,
		PkScript: pkScript,
		PubKey:   pubKey,
	}

	return withPool(x.cfg, func(pool *wallet.UtxoPool) error {
		if err := pool.Put(context.Background(), u); err != nil {
			return err
		}

		log.Infof("Added %v utxo %v worth %v", addrType, op, u.Amount)

		return nil
	})
}

type utxoListCommand struct {
	cfg *config
}

func (x *utxoListCommand) Execute(_ []string) error {
	return withPool(x.cfg, func(pool *wallet.UtxoPool) error {
		utxos, err := pool.List(context.Background())
		if err != nil {
			return err
		}

		listed := make([]listedUtxo, 0, len(utxos))
		for _, u := range utxos {
			addr, err := u.AddrType.Address(u.PubKey, x.cfg.params)
			if err != nil {
				return err
			}

			listed = append(listed, listedUtxo{
				OutPoint: u.OutPoint.String(),
				Amount:   int64(u.Amount),
				Type:     u.AddrType.String(),
				Address:  addr.EncodeAddress(),
				PubKey:   hex.EncodeToString(u.PubKey),
			})
		}

		return printJSON(x.cfg.stdout, listed)
	})
}

type utxoRemoveCommand struct {
	OutPoint string `long:"outpoint" description:"Outpoint of the UTXO as <txid>:<index>" required:"true"`

	cfg *config
}

func (x *utxoRemoveCommand) Execute(_ []string) error {
	op, err := wire.NewOutPointFromString(x.OutPoint)
	if err != nil {
		return fmt.Errorf("outpoint: %w", err)
	}

	return withPool(x.cfg, func(pool *wallet.UtxoPool) error {
		return pool.Remove(context.Background(), *op)
	})
}

type utxoBalanceCommand struct {
	cfg *config
}

func (x *utxoBalanceCommand) Execute(_ []string) error {
	return withPool(x.cfg, func(pool *wallet.UtxoPool) error {
		balance, err := pool.Balance(context.Background())
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(x.cfg.stdout, int64(balance))
		return err
	})
}

type utxoSpendCommand struct {
	cfg *config
}

func (x *utxoSpendCommand) Execute(args []string) error {
	packet, err := readPacket(args, x.cfg.stdin)
	if err != nil {
		return err
	}

	return withPool(x.cfg, func(pool *wallet.UtxoPool) error {
		return pool.MarkSpent(context.Background(), packet)
	})
}
