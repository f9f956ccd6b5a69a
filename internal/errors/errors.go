// Package errors defines the journal's error vocabulary. Callers branch on the
// sentinels with Is; the typed errors carry detail and unwrap to a sentinel.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInputValidation   = errors.New("input validation failed")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrSessionExpired    = errors.New("session expired")
	ErrBrokerUnavailable = errors.New("broker not configured")
	ErrDatabaseError     = errors.New("database error")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrMalformedData     = errors.New("malformed market data")
)

// NotFoundError reports an unknown trade or snapshot identifier.
type NotFoundError struct {
	Entity string
	ID     int64
}

func NewNotFoundError(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %d not found", e.Entity, e.ID) }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError rejects caller input: a leg field, an id argument, a CSV row.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInputValidation }

// BrokerError is a failed Kite call that was not a session problem.
// Code is the Kite error type when known.
type BrokerError struct {
	Code    string
	Message string
	Err     error
}

func NewBrokerError(code, message string, err error) *BrokerError {
	return &BrokerError{Code: code, Message: message, Err: err}
}

func (e *BrokerError) Error() string {
	msg := fmt.Sprintf("broker error [%s]: %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BrokerError) Unwrap() error { return e.Err }

// DataError is a contract master or quote record that could not be decoded.
type DataError struct {
	Source string // origin of the record, e.g. "csv"
	Symbol string
	Field  string
	Err    error
}

func NewDataError(source, symbol, field string, err error) *DataError {
	return &DataError{Source: source, Symbol: symbol, Field: field, Err: err}
}

func (e *DataError) Error() string {
	msg := fmt.Sprintf("%s record", e.Source)
	if e.Symbol != "" {
		msg += " " + e.Symbol
	}
	msg += ": bad " + e.Field
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedData}
	}
	return []error{ErrMalformedData, e.Err}
}

// Wrap annotates err with message; a nil err stays nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }
