// Package events carries domain events from a WeighingWorker to whatever
// consumes them (ordinarily a GatewayAgent) over a bounded, single-writer
// channel.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is implemented by every event this package defines. It exists to
// keep the sink's channel element type closed to this package's events
// without resorting to `any`.
type Event interface {
	isEvent()
	EventUUID() string
	EventTimestamp() time.Time
}

type base struct {
	UUID      string
	Timestamp time.Time
}

func newBase() base {
	return base{UUID: uuid.NewString(), Timestamp: time.Now()}
}

func (b base) isEvent() {}
func (b base) EventUUID() string           { return b.UUID }
func (b base) EventTimestamp() time.Time   { return b.Timestamp }

// RFIDTagged fires when the indicator reports a card UID other than the
// "no card" sentinel.
type RFIDTagged struct {
	base
	RFIDCardUID string
}

// NewRFIDTagged stamps a fresh RFIDTagged event with a new UUID and the
// current time.
func NewRFIDTagged(rfidCardUID string) RFIDTagged {
	return RFIDTagged{base: newBase(), RFIDCardUID: rfidCardUID}
}

// WeighingCompleted fires once the MEASURE voice sequence has run to
// completion for a tagged vehicle.
type WeighingCompleted struct {
	base
	RFIDCardUID string
	Weight      int
}

// NewWeighingCompleted stamps a fresh WeighingCompleted event.
func NewWeighingCompleted(rfidCardUID string, weight int) WeighingCompleted {
	return WeighingCompleted{base: newBase(), RFIDCardUID: rfidCardUID, Weight: weight}
}
