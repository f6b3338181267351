package persistence

import (
	"testing"

	"github.com/facturo/backend/internal/domain/fiscal"
	"github.com/facturo/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesRepository(t *testing.T) {
	ctx := setupTenantCtx(t)
	docRepo := NewGormDocumentRepository(fiscal.ResetNever)
	repo := NewGormSeriesRepository()

	t.Run("find unknown series returns nil", func(t *testing.T) {
		counter, err := repo.Find(ctx, "INV")
		require.NoError(t, err)
		assert.Nil(t, counter)
	})

	t.Run("emission creates the counter", func(t *testing.T) {
		emit(t, ctx, docRepo, fiscal.DocumentTypeInvoice)
		emit(t, ctx, docRepo, fiscal.DocumentTypeInvoice)

		counter, err := repo.Find(ctx, "INV")
		require.NoError(t, err)
		require.NotNil(t, counter)
		assert.Equal(t, int64(2), counter.LastNumber)
		assert.Equal(t, fiscal.DocumentTypeInvoice, counter.DocumentType)
		assert.False(t, counter.Halted)
	})

	t.Run("halt and clear", func(t *testing.T) {
		require.NoError(t, repo.Halt(ctx, "INV"))
		counter, err := repo.Find(ctx, "INV")
		require.NoError(t, err)
		assert.True(t, counter.Halted)
		assert.Error(t, counter.CheckOpen())

		require.NoError(t, repo.ClearHalt(ctx, "INV"))
		counter, err = repo.Find(ctx, "INV")
		require.NoError(t, err)
		assert.False(t, counter.Halted)
	})

	t.Run("halt unknown series", func(t *testing.T) {
		assert.ErrorIs(t, repo.Halt(ctx, "CRN"), shared.ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		emit(t, ctx, docRepo, fiscal.DocumentTypeProforma)

		counters, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, counters, 2)
		assert.Equal(t, fiscal.SeriesKey("INV"), counters[0].Series)
		assert.Equal(t, fiscal.SeriesKey("PRO"), counters[1].Series)
	})
}
