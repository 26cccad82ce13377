// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

const (
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "psbtctl.log"
	defaultDBFilename     = "utxos.db"
	defaultNetwork        = "mainnet"
	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10
	defaultDBTimeout      = 10 * time.Second
)

var (
	defaultAppDataDir = btcutil.AppDataDir("psbtctl", false)
	defaultLogDir     = filepath.Join(defaultAppDataDir, defaultLogDirname)

	// errUnknownNetwork is returned for a --network value with no chain
	// parameters.
	errUnknownNetwork = errors.New("unknown network")
)

// config holds the global options shared by every command.
type config struct {
	Network        string `short:"n" long:"network" description:"Bitcoin network addresses and keys belong to" choice:"mainnet" choice:"testnet" choice:"regtest" choice:"signet"`
	DataDir        string `short:"b" long:"datadir" description:"Directory to store the UTXO pool database"`
	LogDir         string `long:"logdir" description:"Directory to log output"`
	DebugLevel     string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`
	MaxLogFiles    int    `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Maximum logfile size in MB"`

	// params are the chain parameters of Network, set by validate.
	params *chaincfg.Params

	// stdin and stdout carry command input and output.
	stdin  io.Reader
	stdout io.Writer
}

// defaultConfig returns a config with every option at its default.
func defaultConfig() *config {
	return &config{
		Network:        defaultNetwork,
		DataDir:        defaultAppDataDir,
		LogDir:         defaultLogDir,
		DebugLevel:     defaultLogLevel,
		MaxLogFiles:    defaultMaxLogFiles,
		MaxLogFileSize: defaultMaxLogFileSize,
		stdin:          os.Stdin,
		stdout:         os.Stdout,
	}
}

// netParams returns the chain parameters for a --network value.
func netParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil

	case "testnet":
		return &chaincfg.TestNet3Params, nil

	case "regtest":
		return &chaincfg.RegressionNetParams, nil

	case "signet":
		return &chaincfg.SigNetParams, nil

	default:
		return nil, fmt.Errorf("%w: %q", errUnknownNetwork, network)
	}
}

// cleanAndExpandPath expands environment variables and a leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultAppDataDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validate resolves the network and normalizes the paths. The data and log
// directories are namespaced by network so pools of different networks
// never mix.
func (c *config) validate() error {
	params, err := netParams(c.Network)
	if err != nil {
		return err
	}
	c.params = params

	if c.MaxLogFiles < 0 {
		return fmt.Errorf("maxlogfiles must not be negative, got %d",
			c.MaxLogFiles)
	}
	if c.MaxLogFileSize <= 0 {
		return fmt.Errorf("maxlogfilesize must be positive, got %d",
			c.MaxLogFileSize)
	}

	c.DataDir = filepath.Join(cleanAndExpandPath(c.DataDir), c.Network)
	c.LogDir = filepath.Join(cleanAndExpandPath(c.LogDir), c.Network)

	if c.stdin == nil {
		c.stdin = os.Stdin
	}
	if c.stdout == nil {
		c.stdout = os.Stdout
	}

	return nil
}

// dbPath returns the path of the UTXO pool database.
func (c *config) dbPath() string {
	return filepath.Join(c.DataDir, defaultDBFilename)
}

// logFile returns the path of the log file.
func (c *config) logFile() string {
	return filepath.Join(c.LogDir, defaultLogFilename)
}
