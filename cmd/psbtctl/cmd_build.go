// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/psbtkit/pkg/btcunit"
	"github.com/btcsuite/psbtkit/wallet"
	"github.com/jessevdk/go-flags"
)

// buildOptions are the options build and buildall share.
type buildOptions struct {
	FeeRate    string `long:"feerate" description:"Fee rate in sat/vbyte, fractions allowed" required:"true"`
	MaxFeeRate string `long:"maxfeerate" description:"Refuse fee rates above this many sat/vbyte"`
	NoRBF      bool   `long:"norbf" description:"Do not signal replaceability (BIP125)"`
	Strategy   string `long:"strategy" description:"Order in which UTXOs are selected" choice:"pool" choice:"largest" choice:"random" default:"pool"`
	Hex        bool   `long:"hex" description:"Print the PSBT as hex instead of base64"`
}

// params turns the options into a fee rate and build parameters.
func (o *buildOptions) params() (btcunit.SatPerVByte, wallet.BuildParams,
	error) {

	var params wallet.BuildParams

	feeRate, err := btcunit.ParseSatPerVByte(o.FeeRate)
	if err != nil {
		return feeRate, params, err
	}

	if o.MaxFeeRate != "" {
		params.MaxFeeRate, err = btcunit.ParseSatPerVByte(o.MaxFeeRate)
		if err != nil {
			return feeRate, params, fmt.Errorf("max fee rate: %w",
				err)
		}
	}

	params.DisableRBF = o.NoRBF

	switch o.Strategy {
	case "largest":
		params.Strategy = wallet.CoinSelectionLargest

	case "random":
		params.Strategy = wallet.CoinSelectionRandom
	}

	return feeRate, params, nil
}

// report logs the outcome of a build and prints its packet.
func (o *buildOptions) report(cfg *config, result *wallet.BuildResult) error {
	if result.ChangeIndex < 0 {
		log.Infof("Built PSBT with fee %v and no change", result.Fee)
	} else {
		log.Infof("Built PSBT with fee %v, change at output %d",
			result.Fee, result.ChangeIndex)
	}

	return writePacket(cfg.stdout, result.Packet, o.Hex)
}

type buildCommand struct {
	buildOptions

	To     []string `long:"to" description:"Pay <address>:<satoshis>; may be repeated" required:"true"`
	Change string   `long:"change" description:"Address that receives the change" required:"true"`

	cfg *config
}

func newBuildCommand(cfg *config) *buildCommand {
	return &buildCommand{cfg: cfg}
}

func (x *buildCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"build",
		"Fund a payment from the UTXO pool",
		"Select UTXOs from the pool, in pool order unless --strategy "+
			"says otherwise, to pay every --to destination plus "+
			"the fee, and print the unsigned PSBT. Change at or "+
			"below the dust limit is left to the fee",
		x,
	)
	return err
}

func (x *buildCommand) Execute(_ []string) error {
	params := x.cfg.params

	to := make([]btcutil.Address, 0, len(x.To))
	amounts := make([]btcutil.Amount, 0, len(x.To))
	for _, dest := range x.To {
		addr, amount, err := parseDestination(dest, params)
		if err != nil {
			return err
		}
		to = append(to, addr)
		amounts = append(amounts, amount)
	}

	change, err := parseAddress(x.Change, params)
	if err != nil {
		return fmt.Errorf("change address: %w", err)
	}

	feeRate, buildParams, err := x.params()
	if err != nil {
		return err
	}

	pool, closeDB, err := openPool(x.cfg.dbPath())
	if err != nil {
		return err
	}
	defer closeDB()

	result, err := pool.Build(
		context.Background(), to, amounts, change, feeRate,
		buildParams,
	)
	if err != nil {
		return err
	}

	return x.report(x.cfg, result)
}

type buildAllCommand struct {
	buildOptions

	To string `long:"to" description:"Address that receives everything" required:"true"`

	cfg *config
}

func newBuildAllCommand(cfg *config) *buildAllCommand {
	return &buildAllCommand{cfg: cfg}
}

func (x *buildAllCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"buildall",
		"Sweep the UTXO pool to one address",
		"Spend every UTXO of the pool to a single output that pays "+
			"the fee, and print the unsigned PSBT",
		x,
	)
	return err
}

func (x *buildAllCommand) Execute(_ []string) error {
	to, err := parseAddress(x.To, x.cfg.params)
	if err != nil {
		return err
	}

	feeRate, buildParams, err := x.params()
	if err != nil {
		return err
	}

	pool, closeDB, err := openPool(x.cfg.dbPath())
	if err != nil {
		return err
	}
	defer closeDB()

	result, err := pool.BuildAll(
		context.Background(), to, feeRate, buildParams,
	)
	if err != nil {
		return err
	}

	return x.report(x.cfg, result)
}
