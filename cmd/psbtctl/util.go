// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/btcsuite/psbtkit/pkg/payment"
	"github.com/btcsuite/psbtkit/pkg/psbt"
	"github.com/btcsuite/psbtkit/pkg/txwire"
	"github.com/btcsuite/psbtkit/wallet"
	"golang.org/x/term"
)

var (
	// errMissingArg is returned when a command is run without its
	// positional argument.
	errMissingArg = errors.New("missing argument")

	// errWrongNetwork is returned when a key or address belongs to a
	// different network than --network.
	errWrongNetwork = errors.New("wrong network")
)

// stdinArg is the positional argument that reads the value from stdin.
const stdinArg = "-"

// readArg returns the single positional argument of a command, reading it
// from stdin when it is "-" or absent.
func readArg(args []string, stdin io.Reader) (string, error) {
	switch {
	case len(args) > 1:
		return "", fmt.Errorf("expected one argument, got %d",
			len(args))

	case len(args) == 1 && args[0] != stdinArg:
		return strings.TrimSpace(args[0]), nil
	}

	raw, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}

	arg := strings.TrimSpace(string(raw))
	if arg == "" {
		return "", errMissingArg
	}

	return arg, nil
}

// isHex reports whether s is non-empty, even-length lowercase or uppercase
// hex.
func isHex(s string) bool {
	if s == "" || len(s)%2 != 0 {
		return false
	}

	_, err := hex.DecodeString(s)
	return err == nil
}

// parsePacket decodes a packet from its hex or base64 text form. A base64
// PSBT always starts with "cHNid", which is not hex, so the forms never
// collide.
func parsePacket(s string) (*psbt.Packet, error) {
	if isHex(s) {
		return psbt.ParseHex(s)
	}

	return psbt.ParseBase64(s)
}

// readPacket reads and decodes the packet argument of a command.
func readPacket(args []string, stdin io.Reader) (*psbt.Packet, error) {
	arg, err := readArg(args, stdin)
	if err != nil {
		return nil, err
	}

	return parsePacket(arg)
}

// writePacket prints the packet to w in base64, or in hex when asHex is set.
func writePacket(w io.Writer, packet *psbt.Packet, asHex bool) error {
	var (
		text string
		err  error
	)
	if asHex {
		text, err = packet.Hex()
	} else {
		text, err = packet.Base64()
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, text)
	return err
}

// writeTx extracts the network transaction of a finalized packet and prints
// it to w as hex.
func writeTx(w io.Writer, packet *psbt.Packet) error {
	tx, err := wallet.ExtractTx(packet)
	if err != nil {
		return err
	}

	text, err := txwire.EncodeHex(tx)
	if err != nil {
		return err
	}

	log.Infof("Extracted transaction %v (%d vbytes)", tx.TxHash(),
		txwire.VirtualSize(tx))

	_, err = fmt.Fprintln(w, text)
	return err
}

// parseHash decodes a 32-byte hash given as hex in byte order.
func parseHash(s string) (*chainhash.Hash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}

	return chainhash.NewHash(raw)
}

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return err
	}

	_, err := out.WriteTo(w)
	return err
}

// parseAddress decodes an address of the given network.
func parseAddress(s string, params *chaincfg.Params) (btcutil.Address,
	error) {

	p, err := payment.FromAddress(s, params)
	if err != nil {
		return nil, err
	}

	return p.Address(params)
}

// parseDestination parses a destination of the form <address>:<satoshis>.
func parseDestination(s string, params *chaincfg.Params) (btcutil.Address,
	btcutil.Amount, error) {

	i := strings.LastIndex(s, ":")
	if i < 0 {
		return nil, 0, fmt.Errorf("destination %q is not "+
			"<address>:<satoshis>", s)
	}

	addr, err := parseAddress(s[:i], params)
	if err != nil {
		return nil, 0, err
	}

	amount, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("destination %q amount: %w", s, err)
	}
	if amount <= 0 {
		return nil, 0, fmt.Errorf("destination %q amount must be "+
			"positive", s)
	}

	return addr, btcutil.Amount(amount), nil
}

// decodeWIF decodes a WIF private key and checks its network.
func decodeWIF(s string, params *chaincfg.Params) (*btcec.PrivateKey, error) {
	wif, err := btcutil.DecodeWIF(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode wif: %w", err)
	}

	if !wif.IsForNet(params) {
		return nil, fmt.Errorf("%w: key is not for %s", errWrongNetwork,
			params.Name)
	}

	return wif.PrivKey, nil
}

// readWIF reads a WIF private key from path, or from the terminal without
// echo when path is empty.
func readWIF(path string, params *chaincfg.Params) (*btcec.PrivateKey,
	error) {

	if path != "" {
		raw, err := os.ReadFile(cleanAndExpandPath(path))
		if err != nil {
			return nil, fmt.Errorf("read wif file: %w", err)
		}

		return decodeWIF(string(raw), params)
	}

	fmt.Fprint(os.Stderr, "Private key (WIF): ")

	// The variable syscall.Stdin is of a different type in the Windows
	// API that's why we need the explicit cast.
	raw, err := term.ReadPassword(int(syscall.Stdin)) // nolint:unconvert
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read wif: %w", err)
	}

	return decodeWIF(string(raw), params)
}

// keyInputs returns a ToSignInput for every unfinalized input of the packet
// that pubKey can sign for. Taproot inputs whose internal key is pubKey are
// signed on the key path with the tweaked key. Taproot inputs that only
// reference pubKey in a leaf script are signed with the untweaked key.
func keyInputs(packet *psbt.Packet, pubKey *btcec.PublicKey) []wallet.ToSignInput {
	compressed := pubKey.SerializeCompressed()
	xOnly := schnorr.SerializePubKey(pubKey)

	var toSign []wallet.ToSignInput
	for i := range packet.Inputs {
		in := &packet.Inputs[i]
		if in.IsFinalized() {
			continue
		}

		prevOut, err := packet.PrevOut(i)
		if err != nil {
			log.Debugf("Skipping input %d: %v", i, err)
			continue
		}

		opt := wallet.ToSignInput{Index: i, PubKey: compressed}

		if packet.IsTaprootInput(i) {
			if bytes.Equal(in.TaprootInternalKey, xOnly) {
				toSign = append(toSign, opt)
				continue
			}

			for _, leaf := range in.TaprootLeafScript {
				if payment.ContainsKey(leaf.Script, compressed) {
					opt.DisableTweakSigner = true
					toSign = append(toSign, opt)
					break
				}
			}

			continue
		}

		script := prevOut.PkScript
		switch {
		case in.WitnessScript != nil:
			script = in.WitnessScript

		case in.RedeemScript != nil:
			script = in.RedeemScript
		}

		if payment.ContainsKey(script, compressed) {
			toSign = append(toSign, opt)
		}
	}

	return toSign
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// openPool opens the UTXO pool database at dbPath, creating it on first use.
// The returned function closes the database.
func openPool(dbPath string) (*wallet.UtxoPool, func(), error) {
	var (
		dbConn walletdb.DB
		err    error
	)
	if fileExists(dbPath) {
		dbConn, err = walletdb.Open(
			"bdb", dbPath, true, defaultDBTimeout, false,
		)
	} else {
		err = os.MkdirAll(filepath.Dir(dbPath), 0700)
		if err != nil {
			return nil, nil, err
		}

		log.Infof("Creating UTXO pool at %s", dbPath)
		dbConn, err = walletdb.Create(
			"bdb", dbPath, true, defaultDBTimeout, false,
		)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open utxo pool: %w", err)
	}

	closeDB := func() {
		if err := dbConn.Close(); err != nil {
			log.Errorf("Unable to close utxo pool: %v", err)
		}
	}

	pool, err := wallet.OpenUtxoPool(dbConn)
	if err != nil {
		closeDB()
		return nil, nil, err
	}

	return pool, closeDB, nil
}
