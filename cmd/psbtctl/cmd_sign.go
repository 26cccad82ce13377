// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/psbtkit/wallet"
	"github.com/jessevdk/go-flags"
)

var (
	// errNothingToSign is returned when the key controls none of the
	// selected inputs.
	errNothingToSign = errors.New("key signs none of the inputs")

	// sigHashTypes maps the --sighash names to their types.
	sigHashTypes = map[string]txscript.SigHashType{
		"default":             txscript.SigHashDefault,
		"all":                 txscript.SigHashAll,
		"none":                txscript.SigHashNone,
		"single":              txscript.SigHashSingle,
		"all|anyonecanpay":    txscript.SigHashAll | txscript.SigHashAnyOneCanPay,
		"none|anyonecanpay":   txscript.SigHashNone | txscript.SigHashAnyOneCanPay,
		"single|anyonecanpay": txscript.SigHashSingle | txscript.SigHashAnyOneCanPay,
	}
)

type signCommand struct {
	WIFFile  string   `long:"wiffile" description:"Read the WIF private key from this file instead of prompting for it"`
	Inputs   []int    `long:"input" description:"Only sign this input index; may be repeated"`
	SigHash  []string `long:"sighash" description:"Allow an input to request this sighash type; may be repeated" choice:"default" choice:"all" choice:"none" choice:"single" choice:"all|anyonecanpay" choice:"none|anyonecanpay" choice:"single|anyonecanpay"`
	Finalize bool     `long:"finalize" description:"Finalize the signed inputs"`
	Hex      bool     `long:"hex" description:"Print the PSBT as hex instead of base64"`

	cfg *config
}

func newSignCommand(cfg *config) *signCommand {
	return &signCommand{cfg: cfg}
}

func (x *signCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"sign",
		"Sign the inputs of a PSBT that a key controls",
		"Sign every input of the PSBT that spends to the private key, "+
			"or only the inputs given with --input. The PSBT must "+
			"be given as the argument when the key is read from "+
			"the terminal",
		x,
	)
	return err
}

func (x *signCommand) Execute(args []string) error {
	packet, err := readPacket(args, x.cfg.stdin)
	if err != nil {
		return err
	}

	key, err := readWIF(x.WIFFile, x.cfg.params)
	if err != nil {
		return err
	}

	toSign := keyInputs(packet, key.PubKey())
	if len(x.Inputs) > 0 {
		toSign = slices.DeleteFunc(toSign, func(opt wallet.ToSignInput) bool {
			return !slices.Contains(x.Inputs, opt.Index)
		})
	}
	if len(toSign) == 0 {
		return errNothingToSign
	}

	allowed := make([]txscript.SigHashType, 0, len(x.SigHash))
	for _, name := range x.SigHash {
		allowed = append(allowed, sigHashTypes[name])
	}
	for i := range toSign {
		toSign[i].SigHashTypes = allowed
	}

	result, err := wallet.SignPsbt(key, &wallet.SignPsbtParams{
		Packet:       packet,
		Inputs:       toSign,
		AutoFinalize: x.Finalize,
	})
	if err != nil {
		return err
	}

	log.Infof("Signed inputs %v", result.SignedInputs)
	if x.Finalize && packet.IsComplete() {
		log.Infof("PSBT is complete")
	}

	return writePacket(x.cfg.stdout, packet, x.Hex)
}

type finalizeCommand struct {
	Input    int    `long:"input" description:"Only finalize this input index; -1 finalizes every input" default:"-1"`
	LeafHash string `long:"leafhash" description:"Finalize the taproot input given with --input through this leaf (hex)"`
	Extract  bool   `long:"extract" description:"Print the raw transaction instead of the PSBT"`
	Hex      bool   `long:"hex" description:"Print the PSBT as hex instead of base64"`

	cfg *config
}

func newFinalizeCommand(cfg *config) *finalizeCommand {
	return &finalizeCommand{Input: -1, cfg: cfg}
}

func (x *finalizeCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"finalize",
		"Finalize the inputs of a signed PSBT",
		"Build the final scriptSig and witness of every input, or "+
			"of the input given with --input, from the signatures "+
			"the PSBT carries",
		x,
	)
	return err
}

func (x *finalizeCommand) Execute(args []string) error {
	packet, err := readPacket(args, x.cfg.stdin)
	if err != nil {
		return err
	}

	switch {
	case x.Input < 0 && x.LeafHash != "":
		return errors.New("--leafhash needs --input")

	case x.Input < 0:
		err = wallet.FinalizePsbt(packet)

	case x.LeafHash != "":
		leafHash, herr := parseHash(x.LeafHash)
		if herr != nil {
			return fmt.Errorf("leaf hash: %w", herr)
		}
		err = packet.FinalizeTaprootLeaf(x.Input, *leafHash)

	default:
		err = packet.FinalizeInput(x.Input)
	}
	if err != nil {
		return err
	}

	if x.Extract {
		return writeTx(x.cfg.stdout, packet)
	}

	return writePacket(x.cfg.stdout, packet, x.Hex)
}

type extractCommand struct {
	cfg *config
}

func newExtractCommand(cfg *config) *extractCommand {
	return &extractCommand{cfg: cfg}
}

func (x *extractCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"extract",
		"Print the network transaction of a finalized PSBT",
		"Print the raw transaction of a PSBT whose inputs are all "+
			"finalized, as hex",
		x,
	)
	return err
}

func (x *extractCommand) Execute(args []string) error {
	packet, err := readPacket(args, x.cfg.stdin)
	if err != nil {
		return err
	}

	return writeTx(x.cfg.stdout, packet)
}
