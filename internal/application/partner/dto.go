package partner

import (
	"time"

	"github.com/facturo/backend/internal/domain/partner"
	"github.com/facturo/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// AddressRequest is the payload for a billing address
type AddressRequest struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (r AddressRequest) toAddress() valueobject.Address {
	return valueobject.NewAddress(r.Street, r.City, r.Region, r.PostalCode, r.Country)
}

// CreateCustomerRequest is the payload for creating a customer
type CreateCustomerRequest struct {
	Code        string          `json:"code" binding:"required"`
	Name        string          `json:"name" binding:"required"`
	Type        string          `json:"type"`
	FiscalID    string          `json:"fiscal_id"`
	ContactName string          `json:"contact_name"`
	Phone       string          `json:"phone"`
	Email       string          `json:"email"`
	Address     *AddressRequest `json:"address"`
	Notes       string          `json:"notes"`
}

// UpdateCustomerRequest is the payload for updating a customer
type UpdateCustomerRequest struct {
	Name        string          `json:"name" binding:"required"`
	FiscalID    string          `json:"fiscal_id"`
	ContactName string          `json:"contact_name"`
	Phone       string          `json:"phone"`
	Email       string          `json:"email"`
	Address     *AddressRequest `json:"address"`
	Notes       string          `json:"notes"`
}

// CustomerResponse is the API representation of a customer
type CustomerResponse struct {
	ID          uuid.UUID           `json:"id"`
	Code        string              `json:"code"`
	Name        string              `json:"name"`
	Type        string              `json:"type"`
	Status      string              `json:"status"`
	FiscalID    string              `json:"fiscal_id,omitempty"`
	ContactName string              `json:"contact_name,omitempty"`
	Phone       string              `json:"phone,omitempty"`
	Email       string              `json:"email,omitempty"`
	Address     valueobject.Address `json:"address"`
	Notes       string              `json:"notes,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// ToCustomerResponse converts a customer to its API representation
func ToCustomerResponse(customer *partner.Customer) CustomerResponse {
	return CustomerResponse{
		ID:          customer.ID,
		Code:        customer.Code,
		Name:        customer.Name,
		Type:        string(customer.Type),
		Status:      string(customer.Status),
		FiscalID:    customer.FiscalID,
		ContactName: customer.ContactName,
		Phone:       customer.Phone,
		Email:       customer.Email,
		Address:     customer.Address,
		Notes:       customer.Notes,
		CreatedAt:   customer.CreatedAt,
		UpdatedAt:   customer.UpdatedAt,
	}
}
