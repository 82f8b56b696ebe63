// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrConcurrentMutation     = errors.New("concurrent mutation in flight")
	ErrCommitWithoutReserve   = errors.New("commit without prior reserve")
	ErrRollbackWithoutReserve = errors.New("rollback without prior reserve")
	ErrUnknownSymbol          = errors.New("unknown symbol")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInsufficientMargin     = errors.New("insufficient margin")
	ErrMinHoldingPeriod       = errors.New("minimum holding period not elapsed")
	ErrStalePrice             = errors.New("stale price")
	ErrInvalidPrice           = errors.New("invalid price")
	ErrOrderNotFound          = errors.New("order not found")
	ErrBrokerTimeout          = errors.New("broker poll timed out")
	ErrManualIntervention     = errors.New("manual intervention required")
	ErrCircuitOpen            = errors.New("circuit breaker open")
	ErrConfigInvalid          = errors.New("invalid configuration")
)

// Class buckets errors by how the engine is allowed to react to them.
type Class string

const (
	// ClassRejection marks expected pre-trade failures: reported, never retried.
	ClassRejection Class = "REJECTION"
	// ClassTransient marks contention and broker timeouts: retried with
	// bounded backoff, then surfaced.
	ClassTransient Class = "TRANSIENT"
	// ClassFatal marks violated programming invariants: abort, never retry.
	ClassFatal Class = "FATAL"
	// ClassDegraded marks failures the trade survives with compensation.
	ClassDegraded Class = "DEGRADED"
)

// classified is implemented by errors that carry an explicit class.
type classified interface {
	Class() Class
}

// ClassOf returns the class of err, defaulting to transient for plain errors
// so unknown broker failures stay retryable.
func ClassOf(err error) Class {
	var c classified
	if errors.As(err, &c) {
		return c.Class()
	}
	switch {
	case errors.Is(err, ErrCommitWithoutReserve),
		errors.Is(err, ErrRollbackWithoutReserve):
		return ClassFatal
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInsufficientMargin),
		errors.Is(err, ErrMinHoldingPeriod),
		errors.Is(err, ErrInvalidPrice):
		return ClassRejection
	default:
		return ClassTransient
	}
}

// RejectionError reports a pre-trade gate failure (risk or compliance).
// It never follows ledger or broker side effects.
type RejectionError struct {
	Rule   string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("trade rejected [%s]: %s", e.Rule, e.Reason)
}

// Class implements the error taxonomy.
func (e *RejectionError) Class() Class { return ClassRejection }

// NewRejectionError creates a new RejectionError.
func NewRejectionError(rule, reason string) *RejectionError {
	return &RejectionError{Rule: rule, Reason: reason}
}

// BrokerError represents an error from the broker gateway.
type BrokerError struct {
	Op      string
	OrderID string
	Err     error
}

func (e *BrokerError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("broker %s [%s]: %v", e.Op, e.OrderID, e.Err)
	}
	return fmt.Sprintf("broker %s: %v", e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// Class implements the error taxonomy.
func (e *BrokerError) Class() Class { return ClassTransient }

// NewBrokerError creates a new BrokerError.
func NewBrokerError(op, orderID string, err error) *BrokerError {
	return &BrokerError{Op: op, OrderID: orderID, Err: err}
}

// FatalError represents a violated engine invariant. The attempt must abort
// and the condition must be alerted, never retried.
type FatalError struct {
	Invariant string
	Err       error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal [%s]: %v", e.Invariant, e.Err)
	}
	return fmt.Sprintf("fatal [%s]", e.Invariant)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Class implements the error taxonomy.
func (e *FatalError) Class() Class { return ClassFatal }

// NewFatalError creates a new FatalError.
func NewFatalError(invariant string, err error) *FatalError {
	return &FatalError{Invariant: invariant, Err: err}
}

// DegradedError reports a failure the committed trade survives, such as a
// protective order that could not be placed at the broker.
type DegradedError struct {
	Op           string
	Symbol       string
	Compensation string
	Err          error
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("degraded [%s] %s: %v (compensation: %s)", e.Op, e.Symbol, e.Err, e.Compensation)
}

func (e *DegradedError) Unwrap() error {
	return e.Err
}

// Class implements the error taxonomy.
func (e *DegradedError) Class() Class { return ClassDegraded }

// NewDegradedError creates a new DegradedError.
func NewDegradedError(op, symbol, compensation string, err error) *DegradedError {
	return &DegradedError{Op: op, Symbol: symbol, Compensation: compensation, Err: err}
}

// RiskError represents a sizing or exposure limit violation.
type RiskError struct {
	Rule    string
	Current float64
	Limit   float64
	Message string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("risk violation [%s]: %s (current: %.2f, limit: %.2f)", e.Rule, e.Message, e.Current, e.Limit)
}

// Class implements the error taxonomy.
func (e *RiskError) Class() Class { return ClassRejection }

// NewRiskError creates a new RiskError.
func NewRiskError(rule string, current, limit float64, message string) *RiskError {
	return &RiskError{Rule: rule, Current: current, Limit: limit, Message: message}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
