package partner

import (
	"context"
	"errors"
	"testing"

	"github.com/facturo/backend/internal/domain/shared"
	"github.com/facturo/backend/internal/infrastructure/persistence"
	"github.com/facturo/backend/internal/infrastructure/tenancy"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupCustomerService(t *testing.T) (context.Context, *CustomerService) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, persistence.AutoMigrateTenant(db))

	ctx := tenancy.NewContext(context.Background(), &tenancy.TenancyContext{
		TenantID: uuid.New(),
		DB:       db,
	})
	return ctx, NewCustomerService(persistence.NewGormCustomerRepository(), nil, nil)
}

func TestCustomerServiceCreate(t *testing.T) {
	ctx, svc := setupCustomerService(t)

	t.Run("creates with contact and address", func(t *testing.T) {
		resp, err := svc.Create(ctx, CreateCustomerRequest{
			Code:        "acme-01",
			Name:        "Acme S.L.",
			Type:        "organization",
			FiscalID:    "B12345678",
			ContactName: "Ana",
			Email:       "Billing@Acme.example",
			Address: &AddressRequest{
				Street: "Calle Mayor 1", City: "Madrid", Region: "Madrid",
				PostalCode: "28013", Country: "ES",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "ACME-01", resp.Code)
		assert.Equal(t, "organization", resp.Type)
		assert.Equal(t, "billing@acme.example", resp.Email)
		assert.Equal(t, "Madrid", resp.Address.City)
	})

	t.Run("rejects duplicate code", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateCustomerRequest{Code: "ACME-01", Name: "Other"})
		require.Error(t, err)
		var derr *shared.DomainError
		require.True(t, errors.As(err, &derr))
		assert.Equal(t, "ALREADY_EXISTS", derr.Code)
	})

	t.Run("defaults to individual type", func(t *testing.T) {
		resp, err := svc.Create(ctx, CreateCustomerRequest{Code: "IND-1", Name: "Juan"})
		require.NoError(t, err)
		assert.Equal(t, "individual", resp.Type)
	})

	t.Run("rejects invalid code", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateCustomerRequest{Code: "bad code!", Name: "X"})
		require.Error(t, err)
	})
}

func TestCustomerServiceLifecycle(t *testing.T) {
	ctx, svc := setupCustomerService(t)

	created, err := svc.Create(ctx, CreateCustomerRequest{Code: "CUST-1", Name: "Initial"})
	require.NoError(t, err)

	t.Run("get by id and code", func(t *testing.T) {
		byID, err := svc.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "CUST-1", byID.Code)

		byCode, err := svc.GetByCode(ctx, "cust-1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byCode.ID)
	})

	t.Run("update", func(t *testing.T) {
		updated, err := svc.Update(ctx, created.ID, UpdateCustomerRequest{
			Name:     "Renamed",
			FiscalID: "X99",
			Phone:    "+34 600 000 000",
		})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Name)
		assert.Equal(t, "X99", updated.FiscalID)
	})

	t.Run("deactivate and activate", func(t *testing.T) {
		require.NoError(t, svc.Deactivate(ctx, created.ID))
		resp, err := svc.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "inactive", resp.Status)

		assert.Error(t, svc.Deactivate(ctx, created.ID))
		require.NoError(t, svc.Activate(ctx, created.ID))
	})

	t.Run("list with search", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateCustomerRequest{Code: "CUST-2", Name: "Second"})
		require.NoError(t, err)

		filter := shared.DefaultFilter()
		filter.Search = "Renamed"
		responses, total, err := svc.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, responses, 1)
		assert.Equal(t, created.ID, responses[0].ID)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, created.ID))
		_, err := svc.GetByID(ctx, created.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.ErrorIs(t, svc.Delete(ctx, created.ID), shared.ErrNotFound)
	})
}
