package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind names what happened to a transaction.
type EventKind string

const (
	TransactionCreated EventKind = "transaction.created"
	TransactionUpdated EventKind = "transaction.updated"
	TransactionDeleted EventKind = "transaction.deleted"
	TransferCreated    EventKind = "transfer.created"
)

func (k EventKind) Valid() bool {
	switch k {
	case TransactionCreated, TransactionUpdated, TransactionDeleted, TransferCreated:
		return true
	default:
		return false
	}
}

// LedgerEvent announces a committed change to a transaction. It carries
// only identifiers; consumers load the current state from the store.
type LedgerEvent struct {
	ID            string    `json:"id"`
	Kind          EventKind `json:"kind"`
	OwnerID       int64     `json:"owner_id"`
	TransactionID int64     `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event with a fresh id.
func NewLedgerEvent(kind EventKind, ownerID, transactionID int64) *LedgerEvent {
	return &LedgerEvent{
		ID:            uuid.NewString(),
		Kind:          kind,
		OwnerID:       ownerID,
		TransactionID: transactionID,
		Timestamp:     time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event and rejects unknown kinds.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if !ev.Kind.Valid() {
		return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	if _, err := uuid.Parse(ev.ID); err != nil {
		return nil, fmt.Errorf("invalid event id: %w", err)
	}
	return &ev, nil
}
