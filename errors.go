package evmloader

import (
	"errors"
	"fmt"
	"time"

	"github.com/blockberries/evmloader/types"
)

// Sentinel errors for misuse of the execution state machine.
var (
	ErrAlreadyStarted = errors.New("evmloader: execution already started")
	ErrNotRunning     = errors.New("evmloader: execution is not running")
	ErrCompleted      = errors.New("evmloader: execution already completed")
)

// TransportError signals that a chunk write was rejected or never
// confirmed. Offset and Length identify the chunk.
type TransportError struct {
	Offset uint32
	Length int
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("chunk write at offset %d (len %d): %v", e.Offset, e.Length, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport checks whether an error is a TransportError and returns it.
func IsTransport(err error) (*TransportError, bool) {
	var t *TransportError
	if errors.As(err, &t) {
		return t, true
	}
	return nil, false
}

// ConfirmationTimeoutError signals that a submitted transaction was not
// observed as confirmed within the timeout.
type ConfirmationTimeoutError struct {
	Signature types.Signature
	Timeout   time.Duration
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed within %s", e.Signature, e.Timeout)
}

// IsConfirmationTimeout checks whether an error is a
// ConfirmationTimeoutError and returns it.
func IsConfirmationTimeout(err error) (*ConfirmationTimeoutError, bool) {
	var c *ConfirmationTimeoutError
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}

// RejectedError signals that the ledger refused the transaction or
// reported an execution failure for it. Failures to reach the ledger
// are not rejections.
type RejectedError struct {
	// Signature is zero if the transaction was refused at submission.
	Signature types.Signature
	Reason    string
	Logs      []string
	// Err is the ledger's refusal cause, if it has one.
	Err error
}

func (e *RejectedError) Error() string {
	if e.Signature == (types.Signature{}) {
		return fmt.Sprintf("transaction rejected: %s", e.Reason)
	}
	return fmt.Sprintf("transaction %s rejected: %s", e.Signature, e.Reason)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// IsRejected checks whether an error is a RejectedError and returns it.
func IsRejected(err error) (*RejectedError, bool) {
	var r *RejectedError
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// MalformedLogError signals that a transaction's logs do not follow the
// protocol (missing success sentinel, undecodable record data, a Return
// record that is not last).
type MalformedLogError struct {
	Reason string
}

func (e *MalformedLogError) Error() string {
	return "malformed program logs: " + e.Reason
}

// IsMalformedLog checks whether an error is a MalformedLogError and
// returns it.
func IsMalformedLog(err error) (*MalformedLogError, bool) {
	var m *MalformedLogError
	if errors.As(err, &m) {
		return m, true
	}
	return nil, false
}

// UnknownMarkerError signals a log record whose leading byte is neither
// Return nor Event.
type UnknownMarkerError struct {
	Index  int
	Marker byte
}

func (e *UnknownMarkerError) Error() string {
	return fmt.Sprintf("log record %d: unknown marker 0x%02x", e.Index, e.Marker)
}

// IsUnknownMarker checks whether an error is an UnknownMarkerError and
// returns it.
func IsUnknownMarker(err error) (*UnknownMarkerError, bool) {
	var u *UnknownMarkerError
	if errors.As(err, &u) {
		return u, true
	}
	return nil, false
}

// TruncatedEventError signals an Event record shorter than its header
// claims, or whose data section is not a whole number of words.
type TruncatedEventError struct {
	Index int
	Need  int
	Have  int
}

func (e *TruncatedEventError) Error() string {
	return fmt.Sprintf("log record %d: truncated event: need %d bytes, have %d", e.Index, e.Need, e.Have)
}

// IsTruncatedEvent checks whether an error is a TruncatedEventError and
// returns it.
func IsTruncatedEvent(err error) (*TruncatedEventError, bool) {
	var t *TruncatedEventError
	if errors.As(err, &t) {
		return t, true
	}
	return nil, false
}

// AddressDerivationError signals seeds the ledger's addressing scheme
// cannot accept.
type AddressDerivationError struct {
	Seed   string
	Reason string
}

func (e *AddressDerivationError) Error() string {
	return fmt.Sprintf("derive address from seed %q: %s", e.Seed, e.Reason)
}

// IsAddressDerivation checks whether an error is an
// AddressDerivationError and returns it.
func IsAddressDerivation(err error) (*AddressDerivationError, bool) {
	var a *AddressDerivationError
	if errors.As(err, &a) {
		return a, true
	}
	return nil, false
}

// StepLimitExceededError signals that an execution run did not observe
// its Return record within the configured bounds.
type StepLimitExceededError struct {
	Steps   int
	Limit   int
	Elapsed time.Duration
}

func (e *StepLimitExceededError) Error() string {
	return fmt.Sprintf("execution not completed after %d continue calls (limit %d, elapsed %s)",
		e.Steps, e.Limit, e.Elapsed)
}

// IsStepLimitExceeded checks whether an error is a
// StepLimitExceededError and returns it.
func IsStepLimitExceeded(err error) (*StepLimitExceededError, bool) {
	var s *StepLimitExceededError
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}

// StepError attributes a failure to one call of an execution run.
// Step 0 is the BeginPartial call; step n > 0 is the n-th Continue.
type StepError struct {
	Step int
	Err  error
}

func (e *StepError) Error() string {
	if e.Step == 0 {
		return fmt.Sprintf("begin: %v", e.Err)
	}
	return fmt.Sprintf("continue %d: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// IsStep checks whether an error is a StepError and returns it.
func IsStep(err error) (*StepError, bool) {
	var s *StepError
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}
