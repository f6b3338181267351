package fiscal

import "github.com/facturo/backend/internal/domain/shared"

// DocumentType represents the kind of fiscal document
type DocumentType string

const (
	DocumentTypeProforma   DocumentType = "proforma"
	DocumentTypeInvoice    DocumentType = "invoice"
	DocumentTypeReceipt    DocumentType = "receipt"
	DocumentTypeCreditNote DocumentType = "credit_note"
	DocumentTypeDebitNote  DocumentType = "debit_note"
	DocumentTypeAdvance    DocumentType = "advance"
)

// seriesPrefixes maps each document type to its default series prefix
var seriesPrefixes = map[DocumentType]string{
	DocumentTypeProforma:   "PRO",
	DocumentTypeInvoice:    "INV",
	DocumentTypeReceipt:    "REC",
	DocumentTypeCreditNote: "CRN",
	DocumentTypeDebitNote:  "DBN",
	DocumentTypeAdvance:    "ADV",
}

// Validate checks that the document type is known
func (t DocumentType) Validate() error {
	if _, ok := seriesPrefixes[t]; !ok {
		return shared.NewDomainError("INVALID_DOCUMENT_TYPE", "Unknown document type: "+string(t))
	}
	return nil
}

// SeriesPrefix returns the default series prefix for the type
func (t DocumentType) SeriesPrefix() string {
	return seriesPrefixes[t]
}

// IsFiscal returns true for government-auditable document types whose
// numbering must be gap-free. Proformas are pre-fiscal: their numbers stay
// monotonic but gaps are tolerated.
func (t DocumentType) IsFiscal() bool {
	return t != DocumentTypeProforma
}

// IsDerived returns true for types that require an origin document
func (t DocumentType) IsDerived() bool {
	switch t {
	case DocumentTypeCreditNote, DocumentTypeDebitNote:
		return true
	default:
		return false
	}
}

// CanSettle returns true if the type can settle an invoice
func (t DocumentType) CanSettle() bool {
	return t == DocumentTypeReceipt
}
