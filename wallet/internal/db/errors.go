// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package db

import "errors"

var (
	// ErrUtxoNotFound is returned when a requested UTXO is not in the
	// store.
	ErrUtxoNotFound = errors.New("utxo not found")
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrDatabase indicates a database error.
	ErrDatabase ErrorCode = iota

	// ErrCorruptRecord indicates a stored record that cannot be decoded.
	ErrCorruptRecord
)

// String returns the ErrorCode as a human-readable name.
func (c ErrorCode) String() string {
	switch c {
	case ErrDatabase:
		return "ErrDatabase"

	case ErrCorruptRecord:
		return "ErrCorruptRecord"

	default:
		return "ErrUnknown"
	}
}

// Error identifies a store error. It has an error code and a descriptive
// message.
type Error struct {
	Code ErrorCode
	Desc string
	Err  error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Err != nil {
		return e.Desc + ": " + e.Err.Error()
	}

	return e.Desc
}

// Unwrap returns the underlying error, if any.
func (e Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error given a set of arguments.
func NewError(c ErrorCode, desc string, err error) Error {
	return Error{Code: c, Desc: desc, Err: err}
}

// IsError returns whether err is an Error with the given code.
func IsError(err error, code ErrorCode) bool {
	var dbErr Error
	if !errors.As(err, &dbErr) {
		return false
	}

	return dbErr.Code == code
}
