// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// psbtctl builds, inspects, signs and finalizes PSBTs offline, funding new
// transactions from a local pool of UTXOs.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

// subCommand is a psbtctl command that knows how to add itself to the
// parser.
type subCommand interface {
	Register(parser *flags.Parser) error
}

// newParser returns a parser for cfg with every command registered. Before a
// command runs the config is validated and logging is set up.
func newParser(cfg *config) (*flags.Parser, error) {
	parser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)

	commands := []subCommand{
		newDecodeCommand(cfg),
		newSignCommand(cfg),
		newFinalizeCommand(cfg),
		newExtractCommand(cfg),
		newBuildCommand(cfg),
		newBuildAllCommand(cfg),
		newUtxoCommand(cfg),
	}
	for _, command := range commands {
		if err := command.Register(parser); err != nil {
			return nil, err
		}
	}

	parser.CommandHandler = func(command flags.Commander,
		args []string) error {

		if command == nil {
			return nil
		}

		if err := setup(cfg); err != nil {
			return err
		}
		defer closeLogRotator()

		return command.Execute(args)
	}

	return parser, nil
}

// setup validates the config and starts logging to the log file.
func setup(cfg *config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return err
	}

	err := initLogRotator(
		cfg.logFile(), cfg.MaxLogFileSize, cfg.MaxLogFiles,
	)
	if err != nil {
		return err
	}

	log.Debugf("Using network %s, data directory %s", cfg.params.Name,
		cfg.DataDir)

	return nil
}

func main() {
	parser, err := newParser(defaultConfig())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	_, err = parser.Parse()

	var flagsErr *flags.Error
	switch {
	case err == nil:

	case errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp:
		fmt.Fprintln(os.Stdout, err)

	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
