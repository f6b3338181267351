package fiscal

import (
	"github.com/facturo/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constant
const AggregateTypeFiscalDocument = "FiscalDocument"

// Event type constants
const (
	EventTypeDocumentEmitted      = "FiscalDocumentEmitted"
	EventTypeDocumentStateChanged = "FiscalDocumentStateChanged"
)

// DocumentEmittedEvent is published when a document takes its chain position
type DocumentEmittedEvent struct {
	shared.BaseDomainEvent
	DocumentType   DocumentType `json:"document_type"`
	Series         SeriesKey    `json:"series"`
	SequenceNumber int64        `json:"sequence_number"`
	NetTotal       string       `json:"net_total"`
	Hash           string       `json:"hash"`
}

// NewDocumentEmittedEvent creates a new DocumentEmittedEvent
func NewDocumentEmittedEvent(doc *FiscalDocument) *DocumentEmittedEvent {
	return &DocumentEmittedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDocumentEmitted, AggregateTypeFiscalDocument, doc.ID, uuid.Nil),
		DocumentType:    doc.Type,
		Series:          doc.Series,
		SequenceNumber:  doc.SequenceNumber,
		NetTotal:        doc.NetTotal.String(),
		Hash:            doc.Hash,
	}
}

// DocumentStateChangedEvent is published on every state transition
type DocumentStateChangedEvent struct {
	shared.BaseDomainEvent
	Series    SeriesKey     `json:"series"`
	Number    int64         `json:"sequence_number"`
	FromState DocumentState `json:"from_state"`
	ToState   DocumentState `json:"to_state"`
	Reason    string        `json:"reason,omitempty"`
}

// NewDocumentStateChangedEvent creates a new DocumentStateChangedEvent
func NewDocumentStateChangedEvent(doc *FiscalDocument, from, to DocumentState, reason string) *DocumentStateChangedEvent {
	return &DocumentStateChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDocumentStateChanged, AggregateTypeFiscalDocument, doc.ID, uuid.Nil),
		Series:          doc.Series,
		Number:          doc.SequenceNumber,
		FromState:       from,
		ToState:         to,
		Reason:          reason,
	}
}
