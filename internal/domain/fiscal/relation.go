package fiscal

import (
	"github.com/facturo/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// RelationKind classifies a directed edge between two documents
type RelationKind string

const (
	// RelationDerivesFrom links a credit/debit note to its origin document
	RelationDerivesFrom RelationKind = "derives_from"
	// RelationSettles links a receipt to the invoice it pays
	RelationSettles RelationKind = "settles"
	// RelationConverts links an invoice to the proforma it was converted from
	RelationConverts RelationKind = "converts"
	// RelationAdvances links an advance to the invoice it prepays
	RelationAdvances RelationKind = "advances"
)

// Validate checks that the relation kind is known
func (k RelationKind) Validate() error {
	switch k {
	case RelationDerivesFrom, RelationSettles, RelationConverts, RelationAdvances:
		return nil
	default:
		return shared.NewDomainError("INVALID_RELATION_KIND", "Unknown relation kind: "+string(k))
	}
}

// SingleParent returns true for kinds where a document may carry at most
// one outgoing edge of this kind. A receipt may settle only one invoice per
// edge but an invoice may have many settles children.
func (k RelationKind) SingleParent() bool {
	return k == RelationDerivesFrom || k == RelationConverts
}

// DocumentRelation is a directed, append-only edge in the document graph.
// FromDocumentID is the newer document (credit note, receipt, invoice from
// conversion); ToDocumentID is the origin it points back at.
type DocumentRelation struct {
	shared.BaseEntity
	FromDocumentID uuid.UUID    `gorm:"type:uuid;not null;index:idx_relation_from"`
	ToDocumentID   uuid.UUID    `gorm:"type:uuid;not null;index:idx_relation_to"`
	Kind           RelationKind `gorm:"type:varchar(20);not null"`
}

// TableName returns the table name for GORM
func (DocumentRelation) TableName() string {
	return "document_relations"
}

// NewDocumentRelation creates an edge between two documents
func NewDocumentRelation(from, to uuid.UUID, kind RelationKind) (DocumentRelation, error) {
	if err := kind.Validate(); err != nil {
		return DocumentRelation{}, err
	}
	if from == uuid.Nil || to == uuid.Nil {
		return DocumentRelation{}, shared.NewDomainError("INVALID_RELATION", "Relation endpoints cannot be empty")
	}
	if from == to {
		return DocumentRelation{}, shared.NewDomainError("INVALID_RELATION", "A document cannot relate to itself")
	}
	return DocumentRelation{
		BaseEntity:     shared.NewBaseEntity(),
		FromDocumentID: from,
		ToDocumentID:   to,
		Kind:           kind,
	}, nil
}
