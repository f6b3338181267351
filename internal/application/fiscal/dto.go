package fiscal

import (
	"fmt"
	"time"

	"github.com/facturo/backend/internal/domain/fiscal"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineRequest is one line of a document emission payload
type LineRequest struct {
	Description     string          `json:"description" binding:"required"`
	Quantity        decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice       decimal.Decimal `json:"unit_price" binding:"required"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxRatePercent  decimal.Decimal `json:"tax_rate_percent"`
}

// EmitDocumentRequest is the payload for emitting a proforma, invoice or
// advance. Receipts and notes are emitted through their dedicated
// operations so their document graph edges cannot be skipped.
type EmitDocumentRequest struct {
	Type               string          `json:"type" binding:"required"`
	IssueDate          time.Time       `json:"issue_date"`
	DueDate            *time.Time      `json:"due_date"`
	Currency           string          `json:"currency"`
	WithholdingPercent decimal.Decimal `json:"withholding_percent"`
	CustomerID         *uuid.UUID      `json:"customer_id"`
	Lines              []LineRequest   `json:"lines" binding:"required,min=1"`
}

// SettleRequest is the payload for settling an invoice with a receipt
type SettleRequest struct {
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	IssueDate time.Time       `json:"issue_date"`
}

// ApplyAdvanceRequest is the payload for consuming an advance against an
// invoice
type ApplyAdvanceRequest struct {
	AdvanceID uuid.UUID `json:"advance_id" binding:"required"`
}

// CancelRequest is the payload for cancelling a document
type CancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ConvertRequest is the payload for converting a proforma to an invoice
type ConvertRequest struct {
	IssueDate time.Time  `json:"issue_date"`
	DueDate   *time.Time `json:"due_date"`
}

// NoteRequest is the payload for deriving a credit or debit note from an
// invoice
type NoteRequest struct {
	IssueDate time.Time     `json:"issue_date"`
	Lines     []LineRequest `json:"lines" binding:"required,min=1"`
}

// LineResponse is the API representation of a document line
type LineResponse struct {
	Position        int             `json:"position"`
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxRatePercent  decimal.Decimal `json:"tax_rate_percent"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
}

// DocumentResponse is the API representation of a fiscal document
type DocumentResponse struct {
	ID                uuid.UUID       `json:"id"`
	Type              string          `json:"type"`
	Series            string          `json:"series"`
	SequenceNumber    int64           `json:"sequence_number"`
	Number            string          `json:"number"`
	State             string          `json:"state"`
	Currency          string          `json:"currency"`
	TaxableBase       decimal.Decimal `json:"taxable_base"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	WithholdingAmount decimal.Decimal `json:"withholding_amount"`
	NetTotal          decimal.Decimal `json:"net_total"`
	SettledAmount     decimal.Decimal `json:"settled_amount"`
	Outstanding       decimal.Decimal `json:"outstanding"`
	IssueDate         time.Time       `json:"issue_date"`
	DueDate           *time.Time      `json:"due_date,omitempty"`
	CustomerID        *uuid.UUID      `json:"customer_id,omitempty"`
	OriginDocumentID  *uuid.UUID      `json:"origin_document_id,omitempty"`
	CancelReason      string          `json:"cancel_reason,omitempty"`
	Hash              string          `json:"hash"`
	PreviousHash      string          `json:"previous_hash"`
	Lines             []LineResponse  `json:"lines,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// ToDocumentResponse converts a document to its API representation
func ToDocumentResponse(doc *fiscal.FiscalDocument) DocumentResponse {
	lines := make([]LineResponse, len(doc.Lines))
	for i, line := range doc.Lines {
		lines[i] = LineResponse{
			Position:        line.Position,
			Description:     line.Description,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			DiscountPercent: line.DiscountPercent,
			TaxRatePercent:  line.TaxRatePercent,
			Subtotal:        line.Subtotal,
			TaxAmount:       line.TaxAmount(),
		}
	}
	return DocumentResponse{
		ID:                doc.ID,
		Type:              string(doc.Type),
		Series:            string(doc.Series),
		SequenceNumber:    doc.SequenceNumber,
		Number:            FormatDocumentNumber(doc.Series, doc.SequenceNumber),
		State:             string(doc.State),
		Currency:          string(doc.Currency),
		TaxableBase:       doc.TaxableBase,
		TaxAmount:         doc.TaxAmount,
		WithholdingAmount: doc.WithholdingAmount,
		NetTotal:          doc.NetTotal,
		SettledAmount:     doc.SettledAmount,
		Outstanding:       doc.Outstanding(),
		IssueDate:         doc.IssueDate,
		DueDate:           doc.DueDate,
		CustomerID:        doc.CustomerID,
		OriginDocumentID:  doc.OriginDocumentID,
		CancelReason:      doc.CancelReason,
		Hash:              doc.Hash,
		PreviousHash:      doc.PreviousHash,
		Lines:             lines,
		CreatedAt:         doc.CreatedAt,
	}
}

// FormatDocumentNumber renders the display number of a chain position,
// e.g. "INV-2026-000007"
func FormatDocumentNumber(series fiscal.SeriesKey, number int64) string {
	if series == "" || number <= 0 {
		return ""
	}
	return fmt.Sprintf("%s-%06d", series, number)
}

// StateChangeResponse is the API representation of a journal entry
type StateChangeResponse struct {
	ID           uuid.UUID `json:"id"`
	DocumentID   uuid.UUID `json:"document_id"`
	FromState    string    `json:"from_state"`
	ToState      string    `json:"to_state"`
	Reason       string    `json:"reason,omitempty"`
	ChangedAt    time.Time `json:"changed_at"`
	PreviousHash string    `json:"previous_hash"`
	Hash         string    `json:"hash"`
}

// ToStateChangeResponse converts a journal entry to its API representation
func ToStateChangeResponse(change *fiscal.StateChange) StateChangeResponse {
	return StateChangeResponse{
		ID:           change.ID,
		DocumentID:   change.DocumentID,
		FromState:    string(change.FromState),
		ToState:      string(change.ToState),
		Reason:       change.Reason,
		ChangedAt:    change.ChangedAt,
		PreviousHash: change.PreviousHash,
		Hash:         change.Hash,
	}
}

// RelationResponse is the API representation of a document graph edge
type RelationResponse struct {
	ID             uuid.UUID `json:"id"`
	FromDocumentID uuid.UUID `json:"from_document_id"`
	ToDocumentID   uuid.UUID `json:"to_document_id"`
	Kind           string    `json:"kind"`
	CreatedAt      time.Time `json:"created_at"`
}

// ToRelationResponse converts a graph edge to its API representation
func ToRelationResponse(rel *fiscal.DocumentRelation) RelationResponse {
	return RelationResponse{
		ID:             rel.ID,
		FromDocumentID: rel.FromDocumentID,
		ToDocumentID:   rel.ToDocumentID,
		Kind:           string(rel.Kind),
		CreatedAt:      rel.CreatedAt,
	}
}

// SeriesResponse is the API representation of a series counter
type SeriesResponse struct {
	Series       string    `json:"series"`
	DocumentType string    `json:"document_type"`
	FiscalYear   int       `json:"fiscal_year,omitempty"`
	LastNumber   int64     `json:"last_number"`
	Halted       bool      `json:"halted"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ToSeriesResponse converts a series counter to its API representation
func ToSeriesResponse(counter *fiscal.SeriesCounter) SeriesResponse {
	return SeriesResponse{
		Series:       string(counter.Series),
		DocumentType: string(counter.DocumentType),
		FiscalYear:   counter.FiscalYear,
		LastNumber:   counter.LastNumber,
		Halted:       counter.Halted,
		UpdatedAt:    counter.UpdatedAt,
	}
}

// VerifySeriesResponse reports the outcome of a hash chain audit over one
// series
type VerifySeriesResponse struct {
	Series    string `json:"series"`
	Documents int64  `json:"documents"`
	Intact    bool   `json:"intact"`
	BrokenAt  int64  `json:"broken_at,omitempty"`
	Halted    bool   `json:"halted"`
}

// DocumentGraphResponse bundles the incoming and outgoing edges of a
// document
type DocumentGraphResponse struct {
	DocumentID uuid.UUID          `json:"document_id"`
	Outgoing   []RelationResponse `json:"outgoing"`
	Incoming   []RelationResponse `json:"incoming"`
}
