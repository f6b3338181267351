package fiscal

import (
	"context"

	"github.com/facturo/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// EmissionSideEffect pairs a document whose state changed as part of an
// emission (an invoice being settled, a proforma being converted) with the
// journal entry recording the change. Side effects commit in the same
// transaction as the emitted document.
type EmissionSideEffect struct {
	Document *FiscalDocument
	Change   *StateChange
}

// DocumentRepository defines persistence for fiscal documents in the
// tenant datastore. Implementations read the datastore handle from the
// TenancyContext carried by ctx.
type DocumentRepository interface {
	// FindByID loads a document with its lines
	FindByID(ctx context.Context, id uuid.UUID) (*FiscalDocument, error)

	// FindBySeriesAndNumber loads a document by its chain position
	FindBySeriesAndNumber(ctx context.Context, series SeriesKey, number int64) (*FiscalDocument, error)

	// ListBySeries returns a series' documents with lines, ordered by
	// sequence number ascending
	ListBySeries(ctx context.Context, series SeriesKey, filter shared.Filter) ([]FiscalDocument, error)

	// ListAll lists documents across series
	ListAll(ctx context.Context, filter shared.Filter) ([]FiscalDocument, error)

	// Count counts documents matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// Emit atomically assigns the document's sequence number and chain
	// position and persists the document, its lines, its relations and any
	// side effects. A failure rolls the whole emission back; partial
	// documents must never exist.
	Emit(ctx context.Context, doc *FiscalDocument, relations []DocumentRelation, sideEffects []EmissionSideEffect) error

	// SaveStateChange persists a document's updated state together with its
	// journal entry in one transaction
	SaveStateChange(ctx context.Context, doc *FiscalDocument, change *StateChange) error

	// Link persists a new graph edge together with the state changes it
	// caused on the linked documents, in one transaction
	Link(ctx context.Context, relation *DocumentRelation, effects []EmissionSideEffect) error

	// ListStateChanges returns a document's journal ordered by change time
	ListStateChanges(ctx context.Context, documentID uuid.UUID) ([]StateChange, error)
}

// RelationRepository defines read access to the document graph
type RelationRepository interface {
	// ListFrom returns edges originating at the document
	ListFrom(ctx context.Context, documentID uuid.UUID) ([]DocumentRelation, error)

	// ListTo returns edges pointing at the document
	ListTo(ctx context.Context, documentID uuid.UUID) ([]DocumentRelation, error)

	// ExistsFrom reports whether the document already has an outgoing edge
	// of the given kind (single-parent enforcement)
	ExistsFrom(ctx context.Context, documentID uuid.UUID, kind RelationKind) (bool, error)
}

// SeriesRepository defines access to the per-series counters
type SeriesRepository interface {
	// Find returns the counter for a series, or nil if never used
	Find(ctx context.Context, series SeriesKey) (*SeriesCounter, error)

	// List returns all counters of the tenant datastore
	List(ctx context.Context) ([]SeriesCounter, error)

	// Halt flips the halted flag, blocking further emissions in the series
	Halt(ctx context.Context, series SeriesKey) error

	// ClearHalt reopens a halted series after a manual audit
	ClearHalt(ctx context.Context, series SeriesKey) error
}
