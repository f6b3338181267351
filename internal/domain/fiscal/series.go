package fiscal

import (
	"fmt"
	"time"

	"github.com/facturo/backend/internal/domain/shared"
)

// ResetPolicy controls when a series restarts its numbering at 1
type ResetPolicy string

const (
	// ResetNever keeps one continuous numbering stream
	ResetNever ResetPolicy = "never"
	// ResetYearly starts a fresh series per fiscal year by embedding the
	// year in the series key, so every key stays gap-free on its own
	ResetYearly ResetPolicy = "yearly"
)

// SeriesKey identifies one numbering stream within a tenant datastore
type SeriesKey string

// BuildSeriesKey derives the series key for a document type at the given
// issue time under the configured reset policy. Yearly reset embeds the
// fiscal year, e.g. "INV-2026"; a never-reset series is just the prefix.
func BuildSeriesKey(docType DocumentType, issuedAt time.Time, policy ResetPolicy) SeriesKey {
	if policy == ResetYearly {
		return SeriesKey(fmt.Sprintf("%s-%d", docType.SeriesPrefix(), issuedAt.Year()))
	}
	return SeriesKey(docType.SeriesPrefix())
}

// SeriesCounter is the tenant-local counter row backing the numbering
// sequencer for one series. last_number is advanced with an atomic
// row-locking UPDATE inside the emitting transaction. Halted is flipped on
// a hash-chain mismatch and blocks further emissions until a manual audit
// clears it.
type SeriesCounter struct {
	Series       SeriesKey    `gorm:"type:varchar(30);primaryKey"`
	DocumentType DocumentType `gorm:"type:varchar(20);not null"`
	FiscalYear   int          `gorm:"not null"`
	LastNumber   int64        `gorm:"not null;default:0"`
	Halted       bool         `gorm:"not null;default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName returns the table name for GORM
func (SeriesCounter) TableName() string {
	return "series_counters"
}

// CheckOpen returns the typed error when the series is halted
func (c *SeriesCounter) CheckOpen() error {
	if c.Halted {
		return shared.NewDomainError(shared.CodeSeriesHalted,
			fmt.Sprintf("Series %s is halted pending manual audit", c.Series))
	}
	return nil
}
