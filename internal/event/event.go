package event

import (
	"sync/atomic"

	"orderbook_go/internal/domain"
)

// Type identifies an event kind flowing through the sequencer.
type Type int

const (
	TypeSnapshot Type = iota + 1
	TypeDelta
	TypeAck
	TypeSwitchRequest
	TypeConnection
)

// String returns the string representation of Type
func (t Type) String() string {
	switch t {
	case TypeSnapshot:
		return "snapshot"
	case TypeDelta:
		return "delta"
	case TypeAck:
		return "ack"
	case TypeSwitchRequest:
		return "switch_request"
	case TypeConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Event is anything the sequencer consumes. Feed events carry a non-zero
// sequence number stamped by the transport; control events carry zero.
type Event interface {
	GetSeq() uint64
	GetType() Type
	Stamp(seq uint64, ts int64)
}

// BaseEvent carries ordering metadata.
type BaseEvent struct {
	Seq uint64 `json:"seq"`
	Ts  int64  `json:"ts"` // unix micros at receipt
}

func (b *BaseEvent) GetSeq() uint64 { return b.Seq }

// Stamp sets the feed sequence number and receipt time.
func (b *BaseEvent) Stamp(seq uint64, ts int64) {
	b.Seq = seq
	b.Ts = ts
}

// SnapshotEvent replaces the whole book.
type SnapshotEvent struct {
	BaseEvent
	Instrument domain.Instrument
	Bids       []domain.RawLevelUpdate
	Asks       []domain.RawLevelUpdate
}

func (*SnapshotEvent) GetType() Type { return TypeSnapshot }

// DeltaEvent carries absolute resting sizes for a handful of prices.
type DeltaEvent struct {
	BaseEvent
	Instrument domain.Instrument
	Bids       []domain.RawLevelUpdate
	Asks       []domain.RawLevelUpdate
}

func (*DeltaEvent) GetType() Type { return TypeDelta }

// AckEvent acknowledges a subscribe or unsubscribe request.
type AckEvent struct {
	BaseEvent
	Kind        domain.AckKind
	Instruments []domain.Instrument
}

func (*AckEvent) GetType() Type { return TypeAck }

// SwitchRequestEvent asks the controller to track another instrument.
// With Toggle set, Target is ignored and the other instrument is chosen.
type SwitchRequestEvent struct {
	BaseEvent
	Target domain.Instrument
	Toggle bool
	Result chan bool // optional, buffered; receives whether the switch started
}

func (*SwitchRequestEvent) GetType() Type { return TypeSwitchRequest }

// ConnectionEvent reports transport connect/disconnect.
type ConnectionEvent struct {
	BaseEvent
	Connected bool
	SessionID string
}

func (*ConnectionEvent) GetType() Type { return TypeConnection }

// NextSeq returns the current value of *seq and advances it.
func NextSeq(seq *uint64) uint64 {
	return atomic.AddUint64(seq, 1) - 1
}
