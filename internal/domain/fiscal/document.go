package fiscal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/facturo/backend/internal/domain/shared"
	"github.com/facturo/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CancelReasonConverted marks a proforma that was converted to an invoice.
// The marker is terminal so a proforma can never be converted twice.
const CancelReasonConverted = "converted"

// FiscalDocument is the aggregate root of the fiscal ledger. A document is
// created at emission, never before; once emitted everything except the
// state is frozen. State advances only forward through the transition
// table, and every state change is journaled into the tamper-evidence
// chain.
type FiscalDocument struct {
	shared.BaseAggregateRoot
	Type              DocumentType         `gorm:"type:varchar(20);not null;index:idx_doc_series,priority:3"`
	Series            SeriesKey            `gorm:"type:varchar(30);not null;index:idx_doc_series,priority:1;uniqueIndex:uniq_series_number,priority:1"`
	SequenceNumber    int64                `gorm:"not null;uniqueIndex:uniq_series_number,priority:2"`
	State             DocumentState        `gorm:"type:varchar(20);not null;index"`
	Currency          valueobject.Currency `gorm:"type:char(3);not null"`
	TaxableBase       decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	TaxAmount         decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	WithholdingAmount decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	NetTotal          decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	SettledAmount     decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	IssueDate         time.Time            `gorm:"not null"`
	DueDate           *time.Time
	CustomerID        *uuid.UUID `gorm:"type:uuid;index"`
	OriginDocumentID  *uuid.UUID `gorm:"type:uuid;index"`
	CancelReason      string     `gorm:"type:varchar(500)"`
	Hash              string     `gorm:"type:char(64);not null"`
	PreviousHash      string     `gorm:"type:char(64);not null;default:''"`
	JournalTailHash   string     `gorm:"type:char(64);not null;default:''"`
	Lines             []DocumentLine `gorm:"foreignKey:DocumentID"`
}

// TableName returns the table name for GORM
func (FiscalDocument) TableName() string {
	return "fiscal_documents"
}

// NewFiscalDocument builds an unemitted document from its line items and
// computes the monetary totals. Series, sequence number and hash are
// assigned by AssignChainPosition inside the emitting transaction.
func NewFiscalDocument(docType DocumentType, issueDate time.Time, dueDate *time.Time, currency valueobject.Currency, withholdingPercent decimal.Decimal, lines []DocumentLine) (*FiscalDocument, error) {
	if err := docType.Validate(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, shared.NewDomainError("INVALID_DOCUMENT", "A document requires at least one line")
	}
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}
	if !currency.IsValid() {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Unsupported currency: "+string(currency))
	}
	if withholdingPercent.IsNegative() || withholdingPercent.GreaterThan(oneHundred) {
		return nil, shared.NewDomainError("INVALID_DOCUMENT", "Withholding must be between 0 and 100")
	}
	if dueDate != nil && dueDate.Before(issueDate) {
		return nil, shared.NewDomainError("INVALID_DOCUMENT", "Due date cannot precede issue date")
	}

	base := decimal.Zero
	tax := decimal.Zero
	for _, line := range lines {
		base = base.Add(line.Subtotal)
		tax = tax.Add(line.TaxAmount())
	}
	withholding := base.Mul(withholdingPercent).Div(oneHundred).Round(2)
	net := base.Add(tax).Sub(withholding)
	if !net.IsPositive() {
		return nil, shared.NewDomainError("INVALID_DOCUMENT", "Document net total must be positive")
	}

	doc := &FiscalDocument{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Type:              docType,
		State:             DocumentStateEmitted,
		Currency:          currency,
		TaxableBase:       base,
		TaxAmount:         tax,
		WithholdingAmount: withholding,
		NetTotal:          net,
		SettledAmount:     decimal.Zero,
		IssueDate:         issueDate,
		DueDate:           dueDate,
	}
	for i := range lines {
		lines[i].DocumentID = doc.ID
	}
	doc.Lines = lines

	return doc, nil
}

// SetOrigin links the document to the origin it derives from
func (d *FiscalDocument) SetOrigin(originID uuid.UUID) {
	d.OriginDocumentID = &originID
}

// SetCustomer links the document to a customer in the tenant datastore
func (d *FiscalDocument) SetCustomer(customerID uuid.UUID) {
	d.CustomerID = &customerID
}

// AssignChainPosition fixes the document's place in its series: number,
// previous hash and the resulting hash. It must be called exactly once,
// inside the same transaction that persists the document.
func (d *FiscalDocument) AssignChainPosition(series SeriesKey, number int64, previousHash string) error {
	if d.Hash != "" {
		return shared.NewDomainError("ALREADY_EMITTED", "Document already holds a chain position")
	}
	if number <= 0 {
		return shared.ErrDuplicateSequence
	}
	d.Series = series
	d.SequenceNumber = number
	d.PreviousHash = previousHash
	d.Hash = ComputeHash(previousHash, d)
	d.JournalTailHash = d.Hash

	d.AddDomainEvent(NewDocumentEmittedEvent(d))

	return nil
}

// IsEmitted returns true once the document holds a chain position
func (d *FiscalDocument) IsEmitted() bool {
	return d.Hash != ""
}

// Outstanding returns the unsettled remainder of the net total
func (d *FiscalDocument) Outstanding() decimal.Decimal {
	return d.NetTotal.Sub(d.SettledAmount)
}

// ApplySettlement records a receipt settling part or all of the document.
// Emitted moves to PartiallyPaid or Paid depending on the cumulative
// settled amount; over-settlement is rejected.
func (d *FiscalDocument) ApplySettlement(amount decimal.Decimal) (*StateChange, error) {
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_SETTLEMENT", "Settlement amount must be positive")
	}
	if d.State != DocumentStateEmitted && d.State != DocumentStatePartiallyPaid {
		return nil, shared.NewInvalidTransition(string(d.State), string(DocumentStatePaid),
			"document is not open for settlement")
	}
	if amount.GreaterThan(d.Outstanding()) {
		return nil, shared.NewDomainError("INVALID_SETTLEMENT",
			fmt.Sprintf("Settlement of %s exceeds outstanding %s", amount.String(), d.Outstanding().String()))
	}

	d.SettledAmount = d.SettledAmount.Add(amount)
	target := DocumentStatePartiallyPaid
	if d.SettledAmount.Equal(d.NetTotal) {
		target = DocumentStatePaid
	}
	if target == d.State {
		// Another partial receipt on an already partially paid document
		d.UpdatedAt = time.Now()
		d.IncrementVersion()
		return nil, nil
	}
	return d.transition(target, "")
}

// Cancel moves the document to Cancelled. A reason is mandatory and the
// document must not be fully settled. The document and its hash are kept;
// the cancellation is journaled into the tamper-evidence chain.
func (d *FiscalDocument) Cancel(reason string) (*StateChange, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, shared.NewDomainError("INVALID_CANCEL_REASON", "Cancellation requires a reason")
	}
	if !d.State.CanTransitionTo(DocumentStateCancelled) {
		return nil, shared.NewInvalidTransition(string(d.State), string(DocumentStateCancelled),
			"state does not permit cancellation")
	}
	if d.SettledAmount.Equal(d.NetTotal) {
		return nil, shared.NewInvalidTransition(string(d.State), string(DocumentStateCancelled),
			"document is fully settled")
	}

	change, err := d.transition(DocumentStateCancelled, reason)
	if err != nil {
		return nil, err
	}
	d.CancelReason = reason
	return change, nil
}

// MarkConverted terminally marks a proforma that has been converted to an
// invoice, so it can never be converted again.
func (d *FiscalDocument) MarkConverted() (*StateChange, error) {
	if d.Type != DocumentTypeProforma {
		return nil, shared.NewInvalidTransition(string(d.State), string(DocumentStateCancelled),
			"only proformas can be converted")
	}
	if d.State != DocumentStateEmitted {
		return nil, shared.NewInvalidTransition(string(d.State), string(DocumentStateCancelled),
			"proforma is not convertible in its current state")
	}
	change, err := d.transition(DocumentStateCancelled, CancelReasonConverted)
	if err != nil {
		return nil, err
	}
	d.CancelReason = CancelReasonConverted
	return change, nil
}

// ExpireIfDue lazily expires an unsettled document whose due date has
// passed. It is evaluated on read, not by a background job. The returned
// bool reports whether the state changed.
func (d *FiscalDocument) ExpireIfDue(now time.Time) (*StateChange, bool) {
	if d.State != DocumentStateEmitted || d.DueDate == nil || !now.After(*d.DueDate) {
		return nil, false
	}
	change, err := d.transition(DocumentStateExpired, "")
	if err != nil {
		return nil, false
	}
	return change, true
}

// CanDeriveNote returns the guard error for creating a credit or debit
// note against this document
func (d *FiscalDocument) CanDeriveNote() error {
	if d.State == DocumentStateCancelled {
		return shared.NewInvalidTransition(string(d.State), string(DocumentStateEmitted),
			"cannot derive a note from a cancelled document")
	}
	return nil
}

// transition applies a table-checked state change and journals it. The
// journal entry hash commits to the previous journal tail (initially the
// document hash), so retroactively editing a cancellation is detectable.
func (d *FiscalDocument) transition(target DocumentState, reason string) (*StateChange, error) {
	if !d.State.CanTransitionTo(target) {
		return nil, shared.NewInvalidTransition(string(d.State), string(target), "transition not in table")
	}

	change := newStateChange(d.ID, d.State, target, reason, d.JournalTailHash)
	oldState := d.State
	d.State = target
	d.JournalTailHash = change.Hash
	d.UpdatedAt = time.Now()
	d.IncrementVersion()

	d.AddDomainEvent(NewDocumentStateChangedEvent(d, oldState, target, reason))

	return &change, nil
}

// StateChange is one append-only journal row recording a document state
// transition. Entries chain from the document's emission hash.
type StateChange struct {
	shared.BaseEntity
	DocumentID   uuid.UUID     `gorm:"type:uuid;not null;index"`
	FromState    DocumentState `gorm:"type:varchar(20);not null"`
	ToState      DocumentState `gorm:"type:varchar(20);not null"`
	Reason       string        `gorm:"type:varchar(500)"`
	ChangedAt    time.Time     `gorm:"not null"`
	PreviousHash string        `gorm:"type:char(64);not null"`
	Hash         string        `gorm:"type:char(64);not null"`
}

// TableName returns the table name for GORM
func (StateChange) TableName() string {
	return "document_state_changes"
}

func newStateChange(documentID uuid.UUID, from, to DocumentState, reason, previousHash string) StateChange {
	changedAt := time.Now().UTC()
	h := sha256.New()
	h.Write([]byte(previousHash))
	h.Write([]byte(strings.Join([]string{
		documentID.String(), string(from), string(to), reason, changedAt.Format(time.RFC3339),
	}, "|")))

	return StateChange{
		BaseEntity:   shared.NewBaseEntity(),
		DocumentID:   documentID,
		FromState:    from,
		ToState:      to,
		Reason:       reason,
		ChangedAt:    changedAt,
		PreviousHash: previousHash,
		Hash:         hex.EncodeToString(h.Sum(nil)),
	}
}
