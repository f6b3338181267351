package persistence

import (
	"testing"

	"github.com/facturo/backend/internal/domain/partner"
	"github.com/facturo/backend/internal/domain/shared"
	"github.com/facturo/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomerRepository(t *testing.T) {
	ctx := setupTenantCtx(t)
	repo := NewGormCustomerRepository()

	newCustomer := func(t *testing.T, code, name string) *partner.Customer {
		t.Helper()
		customer, err := partner.NewCustomer(code, name, partner.CustomerTypeOrganization)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, customer))
		return customer
	}

	t.Run("save and find by id", func(t *testing.T) {
		customer := newCustomer(t, "ACME-01", "Acme GmbH")

		found, err := repo.FindByID(ctx, customer.ID)
		require.NoError(t, err)
		assert.Equal(t, "ACME-01", found.Code)
		assert.Equal(t, "Acme GmbH", found.Name)
	})

	t.Run("find by code uppercases input", func(t *testing.T) {
		newCustomer(t, "GLOBEX", "Globex Corp")

		found, err := repo.FindByCode(ctx, " globex ")
		require.NoError(t, err)
		assert.Equal(t, "GLOBEX", found.Code)
	})

	t.Run("unknown customer yields not found", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)

		_, err = repo.FindByCode(ctx, "GHOST")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("exists by code", func(t *testing.T) {
		exists, err := repo.ExistsByCode(ctx, "acme-01")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = repo.ExistsByCode(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("find all with search", func(t *testing.T) {
		newCustomer(t, "INITECH", "Initech LLC")

		filter := shared.DefaultFilter()
		filter.Search = "Initech"
		customers, err := repo.FindAll(ctx, filter)
		require.NoError(t, err)
		require.Len(t, customers, 1)
		assert.Equal(t, "INITECH", customers[0].Code)

		count, err := repo.Count(ctx, shared.Filter{})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, int64(3))
	})

	t.Run("update round-trips the address json", func(t *testing.T) {
		customer := newCustomer(t, "ADDR", "Address Co")
		customer.SetAddress(valueobject.NewAddress("Calle Mayor 1", "Madrid", "Madrid", "28013", "ES"))

		require.NoError(t, repo.Save(ctx, customer))

		found, err := repo.FindByID(ctx, customer.ID)
		require.NoError(t, err)
		assert.False(t, found.Address.IsEmpty())
	})

	t.Run("delete", func(t *testing.T) {
		customer := newCustomer(t, "DOOMED", "Doomed Inc")
		require.NoError(t, repo.Delete(ctx, customer.ID))
		assert.ErrorIs(t, repo.Delete(ctx, customer.ID), shared.ErrNotFound)
	})
}
