package persistence

import (
	"context"
	"errors"

	"github.com/facturo/backend/internal/domain/fiscal"
	"github.com/facturo/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormSeriesRepository implements fiscal.SeriesRepository on the tenant
// datastore. Counter advancement lives in the document repository's Emit;
// this repository only inspects and administrates counters.
type GormSeriesRepository struct{}

var _ fiscal.SeriesRepository = (*GormSeriesRepository)(nil)

// NewGormSeriesRepository creates a new GormSeriesRepository
func NewGormSeriesRepository() *GormSeriesRepository {
	return &GormSeriesRepository{}
}

// Find returns the counter for a series, or nil if the series was never used
func (r *GormSeriesRepository) Find(ctx context.Context, series fiscal.SeriesKey) (*fiscal.SeriesCounter, error) {
	db, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	var counter fiscal.SeriesCounter
	if err := db.First(&counter, "series = ?", series).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &counter, nil
}

// List returns all counters of the tenant datastore
func (r *GormSeriesRepository) List(ctx context.Context) ([]fiscal.SeriesCounter, error) {
	db, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	var counters []fiscal.SeriesCounter
	if err := db.Order("series ASC").Find(&counters).Error; err != nil {
		return nil, err
	}
	return counters, nil
}

// Halt flips the halted flag, blocking further emissions in the series
func (r *GormSeriesRepository) Halt(ctx context.Context, series fiscal.SeriesKey) error {
	return r.setHalted(ctx, series, true)
}

// ClearHalt reopens a halted series after a manual audit
func (r *GormSeriesRepository) ClearHalt(ctx context.Context, series fiscal.SeriesKey) error {
	return r.setHalted(ctx, series, false)
}

func (r *GormSeriesRepository) setHalted(ctx context.Context, series fiscal.SeriesKey, halted bool) error {
	db, err := tenantDB(ctx)
	if err != nil {
		return err
	}
	result := db.Model(&fiscal.SeriesCounter{}).
		Where("series = ?", series).
		Update("halted", halted)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
