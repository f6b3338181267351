package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/facturo/backend/internal/domain/fiscal"
	"github.com/facturo/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormDocumentRepository implements fiscal.DocumentRepository on the tenant
// datastore. It owns the numbering sequencer: the per-series counter row is
// advanced with an atomic row-locking UPDATE inside the emitting
// transaction, and the lock is held until commit. A rollback rolls the
// counter back with it, which is what keeps every series gap-free.
type GormDocumentRepository struct {
	resetPolicy fiscal.ResetPolicy
}

var _ fiscal.DocumentRepository = (*GormDocumentRepository)(nil)

// NewGormDocumentRepository creates a document repository with the given
// series reset policy
func NewGormDocumentRepository(resetPolicy fiscal.ResetPolicy) *GormDocumentRepository {
	return &GormDocumentRepository{resetPolicy: resetPolicy}
}

// preloadLines orders lines by position so hash verification sees the same
// serialization that was hashed at emission
func preloadLines(db *gorm.DB) *gorm.DB {
	return db.Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

// FindByID loads a document with its lines
func (r *GormDocumentRepository) FindByID(ctx context.Context, id uuid.UUID) (*fiscal.FiscalDocument, error) {
	db, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	var doc fiscal.FiscalDocument
	if err := preloadLines(db).First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// FindBySeriesAndNumber loads a document by its chain position
func (r *GormDocumentRepository) FindBySeriesAndNumber(ctx context.Context, series fiscal.SeriesKey, number int64) (*fiscal.FiscalDocument, error) {
	db, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	var doc fiscal.FiscalDocument
	if err := preloadLines(db).
		Where("series = ? AND sequence_number = ?", series, number).
		First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// ListBySeries returns a series' documents with lines, ordered by sequence
// number ascending so the result is directly verifiable as a chain
func (r *GormDocumentRepository) ListBySeries(ctx context.Context, series fiscal.SeriesKey, filter shared.Filter) ([]fiscal.FiscalDocument, error) {
	db, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	var docs []fiscal.FiscalDocument
	query := preloadLines(db).
		Where("series = ?", series).
		Order("sequence_number ASC")
	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}
	if err := query.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// ListAll lists documents across series
func (r *GormDocumentRepository) ListAll(ctx context.Context, filter shared.Filter) ([]fiscal.FiscalDocument, error) {
	db, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	var docs []fiscal.FiscalDocument

	sortField := validateSortField(filter.OrderBy, documentSortFields, "created_at")
	sortOrder := validateSortOrder(filter.OrderDir)
	query := preloadLines(db).Order(sortField + " " + sortOrder)

	limit := filter.PageSize
	if limit <= 0 {
		limit = 20
	}
	query = query.Offset(filter.Offset()).Limit(limit)

	if err := query.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// Count counts documents matching the filter
func (r *GormDocumentRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	db, err := tenantDB(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.Model(&fiscal.FiscalDocument{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Emit atomically assigns the document's sequence number and chain position
// and persists the document, its lines, its relations and any side effects.
// A failure rolls the whole emission back, counter increment included, so
// partial documents and numbering gaps cannot exist.
func (r *GormDocumentRepository) Emit(ctx context.Context, doc *fiscal.FiscalDocument, relations []fiscal.DocumentRelation, sideEffects []fiscal.EmissionSideEffect) error {
	db, err := tenantDB(ctx)
	if err != nil {
		return err
	}
	if doc.IsEmitted() {
		return shared.NewDomainError("ALREADY_EMITTED", "Document already holds a chain position")
	}

	series := fiscal.BuildSeriesKey(doc.Type, doc.IssueDate, r.resetPolicy)

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := setLockTimeout(tx); err != nil {
			return err
		}
		number, previousHash, err := r.nextChainPosition(tx, series, doc)
		if err != nil {
			return err
		}
		if err := doc.AssignChainPosition(series, number, previousHash); err != nil {
			return err
		}
		if err := tx.Create(doc).Error; err != nil {
			if isDuplicateKey(err) {
				return shared.ErrDuplicateSequence
			}
			return err
		}
		for i := range relations {
			if err := tx.Create(&relations[i]).Error; err != nil {
				return err
			}
		}
		for _, se := range sideEffects {
			if err := saveWithVersion(tx, se.Document); err != nil {
				return err
			}
			if se.Change != nil {
				if err := tx.Create(se.Change).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})

	if err != nil {
		// A broken chain tail is a data-integrity alarm: the emission rolled
		// back, but the halt must stick, so it is written outside the
		// transaction.
		var derr *shared.DomainError
		if errors.As(err, &derr) && derr.Code == shared.CodeHashChainMismatch {
			db.Model(&fiscal.SeriesCounter{}).
				Where("series = ?", series).
				Update("halted", true)
		}
		// AssignChainPosition mutated the document before the rollback; undo
		// it, pending events included, so a retry starts clean and publishes
		// its emission event exactly once.
		doc.Series = ""
		doc.SequenceNumber = 0
		doc.PreviousHash = ""
		doc.Hash = ""
		doc.JournalTailHash = ""
		doc.ClearDomainEvents()
		return err
	}
	return nil
}

// nextChainPosition advances the series counter and returns the assigned
// number together with the verified hash of the predecessor document
func (r *GormDocumentRepository) nextChainPosition(tx *gorm.DB, series fiscal.SeriesKey, doc *fiscal.FiscalDocument) (int64, string, error) {
	fiscalYear := 0
	if r.resetPolicy == fiscal.ResetYearly {
		fiscalYear = doc.IssueDate.Year()
	}

	// Create-on-first-use; a concurrent creator winning the race is fine,
	// the increment below locks whichever row exists
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fiscal.SeriesCounter{
		Series:       series,
		DocumentType: doc.Type,
		FiscalYear:   fiscalYear,
	}).Error; err != nil {
		return 0, "", err
	}

	result := tx.Model(&fiscal.SeriesCounter{}).
		Where("series = ? AND halted = ?", series, false).
		Update("last_number", gorm.Expr("last_number + 1"))
	if result.Error != nil {
		if isLockTimeout(result.Error) {
			return 0, "", shared.ErrSeriesLockTimeout
		}
		return 0, "", result.Error
	}
	if result.RowsAffected == 0 {
		return 0, "", shared.NewDomainError(shared.CodeSeriesHalted,
			fmt.Sprintf("Series %s is halted pending manual audit", series))
	}

	var counter fiscal.SeriesCounter
	if err := tx.First(&counter, "series = ?", series).Error; err != nil {
		return 0, "", err
	}
	number := counter.LastNumber

	if number == 1 {
		return number, fiscal.GenesisHash, nil
	}

	var prev fiscal.FiscalDocument
	if err := preloadLines(tx).
		Where("series = ? AND sequence_number = ?", series, number-1).
		First(&prev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Counter says number-1 exists but the row is gone: the ledger
			// has been tampered with or corrupted
			return 0, "", shared.ErrHashChainMismatch
		}
		return 0, "", err
	}
	if err := fiscal.VerifyDocumentHash(&prev); err != nil {
		return 0, "", err
	}
	return number, prev.Hash, nil
}

// SaveStateChange persists a document's updated state together with its
// journal entry in one transaction. The update is version-checked, so two
// requests racing on the same document (settle vs. settle, cancel vs.
// settle) cannot both commit against the same loaded state.
func (r *GormDocumentRepository) SaveStateChange(ctx context.Context, doc *fiscal.FiscalDocument, change *fiscal.StateChange) error {
	db, err := tenantDB(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := saveWithVersion(tx, doc); err != nil {
			return err
		}
		if change != nil {
			if err := tx.Create(change).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Link persists a new graph edge together with the version-checked state
// changes it caused on the linked documents. Used when an existing document
// is applied against another (an advance consumed by an invoice) without a
// new document being emitted.
func (r *GormDocumentRepository) Link(ctx context.Context, relation *fiscal.DocumentRelation, effects []fiscal.EmissionSideEffect) error {
	db, err := tenantDB(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(relation).Error; err != nil {
			return err
		}
		for _, se := range effects {
			if err := saveWithVersion(tx, se.Document); err != nil {
				return err
			}
			if se.Change != nil {
				if err := tx.Create(se.Change).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// mutableColumns are the only columns a document transition may touch;
// everything else is frozen at emission.
var mutableColumns = []string{"state", "settled_amount", "cancel_reason", "journal_tail_hash", "version", "updated_at"}

// saveWithVersion persists a transitioned document guarded by an optimistic
// version predicate. The aggregate incremented its version in memory, so
// the row must still hold the version it was loaded with; zero rows
// affected means a concurrent writer got there first.
func saveWithVersion(tx *gorm.DB, doc *fiscal.FiscalDocument) error {
	result := tx.Model(&fiscal.FiscalDocument{}).
		Where("id = ? AND version = ?", doc.ID, doc.Version-1).
		Select(mutableColumns).
		Updates(doc)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// seriesLockTimeout bounds how long an emission waits on a contended series
// counter before failing with SERIES_LOCK_TIMEOUT
const seriesLockTimeout = "5s"

// setLockTimeout bounds row-lock waits for the emitting transaction. Only
// postgres supports a per-transaction lock timeout; the sqlite test driver
// serializes writers on its own.
func setLockTimeout(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SET LOCAL lock_timeout = '" + seriesLockTimeout + "'").Error
}

// isLockTimeout detects a postgres lock_timeout expiry (SQLSTATE 55P03)
func isLockTimeout(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "55P03") || strings.Contains(msg, "lock timeout")
}

// ListStateChanges returns a document's journal ordered by change time
func (r *GormDocumentRepository) ListStateChanges(ctx context.Context, documentID uuid.UUID) ([]fiscal.StateChange, error) {
	db, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	var changes []fiscal.StateChange
	if err := db.
		Where("document_id = ?", documentID).
		Order("changed_at ASC, created_at ASC").
		Find(&changes).Error; err != nil {
		return nil, err
	}
	return changes, nil
}

// isDuplicateKey detects unique-constraint violations across the postgres
// production driver and the sqlite test driver
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
