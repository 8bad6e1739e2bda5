package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "connect", "read", "write")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrConnectionFailed is returned when websocket connection fails. It's usually retriable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrInvalidSymbol is returned when an instrument is not supported or malformed. Not retriable.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)

// Book maintenance faults. None of them escape the sequencer: the offending
// message is dropped, logged and counted, and the previous book is kept.
var (
	// ErrMalformedMessage: the feed message does not have the expected shape.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrOutOfSequenceDelta: a delta arrived before a snapshot for the tracked instrument.
	ErrOutOfSequenceDelta = errors.New("delta before snapshot")

	// ErrStaleDuringTransition: market data arrived while an instrument switch is pending.
	ErrStaleDuringTransition = errors.New("stale message during subscription switch")

	// ErrStuckTransition: a subscribe/unsubscribe request was never acknowledged.
	ErrStuckTransition = errors.New("subscription acknowledgement timed out")

	// ErrDuplicatePrice: a batch carries the same price twice on one side.
	ErrDuplicatePrice = errors.New("duplicate price in batch")

	// ErrInvalidTick: the tick increment is not positive or not representable at the price precision.
	ErrInvalidTick = errors.New("invalid tick increment")

	// ErrGridTooWide: the merge span would take too many grid steps.
	ErrGridTooWide = errors.New("price grid too wide")

	// ErrSwitchPending is returned to callers asking for a switch while one is in flight.
	ErrSwitchPending = errors.New("instrument switch already pending")
)
