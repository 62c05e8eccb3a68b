package types

import "github.com/ethereum/go-ethereum/common"

// Marker is the leading byte of a log record emitted by the loader.
type Marker byte

const (
	MarkerReturn Marker = 0x06
	MarkerEvent  Marker = 0x07
)

func (m Marker) String() string {
	switch m {
	case MarkerReturn:
		return "Return"
	case MarkerEvent:
		return "Event"
	default:
		return "unknown"
	}
}

// Event is an application event emitted by the executed contract.
type Event struct {
	Address common.Address `cramberry:"1"`
	Topics  []common.Hash  `cramberry:"2"`
	// Data is the sequence of 32-byte data words, concatenated.
	Data []byte `cramberry:"3"`
}

// LogRecord is one decoded record of the loader's log stream.
// Exactly one of Event and Return is meaningful, selected by Marker.
type LogRecord struct {
	Marker Marker `cramberry:"1"`
	Event  *Event `cramberry:"2"`
	Return []byte `cramberry:"3"`
}

// IsReturn reports whether the record terminates an execution.
func (r LogRecord) IsReturn() bool { return r.Marker == MarkerReturn }

// ExecutionResult accumulates the decoded output of one execution,
// however many ledger transactions it spanned.
type ExecutionResult struct {
	// Events in emission order, across all steps.
	Events []Event `cramberry:"1"`
	// Return is the raw return value. Valid only when Completed.
	Return []byte `cramberry:"2"`
	// Completed is set once the terminal Return record was observed.
	Completed bool `cramberry:"3"`
	// Calls is the number of ledger transactions the execution took.
	Calls int `cramberry:"4"`
}
