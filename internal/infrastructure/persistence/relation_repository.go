package persistence

import (
	"context"

	"github.com/facturo/backend/internal/domain/fiscal"
	"github.com/google/uuid"
)

// GormRelationRepository implements fiscal.RelationRepository on the tenant
// datastore. Edges are written only as part of an emission, so this
// repository is read-only.
type GormRelationRepository struct{}

var _ fiscal.RelationRepository = (*GormRelationRepository)(nil)

// NewGormRelationRepository creates a new GormRelationRepository
func NewGormRelationRepository() *GormRelationRepository {
	return &GormRelationRepository{}
}

// ListFrom returns edges originating at the document
func (r *GormRelationRepository) ListFrom(ctx context.Context, documentID uuid.UUID) ([]fiscal.DocumentRelation, error) {
	db, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	var relations []fiscal.DocumentRelation
	if err := db.
		Where("from_document_id = ?", documentID).
		Order("created_at ASC").
		Find(&relations).Error; err != nil {
		return nil, err
	}
	return relations, nil
}

// ListTo returns edges pointing at the document
func (r *GormRelationRepository) ListTo(ctx context.Context, documentID uuid.UUID) ([]fiscal.DocumentRelation, error) {
	db, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	var relations []fiscal.DocumentRelation
	if err := db.
		Where("to_document_id = ?", documentID).
		Order("created_at ASC").
		Find(&relations).Error; err != nil {
		return nil, err
	}
	return relations, nil
}

// ExistsFrom reports whether the document already has an outgoing edge of
// the given kind
func (r *GormRelationRepository) ExistsFrom(ctx context.Context, documentID uuid.UUID, kind fiscal.RelationKind) (bool, error) {
	db, err := tenantDB(ctx)
	if err != nil {
		return false, err
	}
	var count int64
	if err := db.Model(&fiscal.DocumentRelation{}).
		Where("from_document_id = ? AND kind = ?", documentID, kind).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
