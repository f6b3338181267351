package partner

import (
	"strings"
	"time"

	"github.com/facturo/backend/internal/domain/shared"
	"github.com/facturo/backend/internal/domain/shared/valueobject"
)

// CustomerStatus represents the status of a customer
type CustomerStatus string

const (
	CustomerStatusActive   CustomerStatus = "active"
	CustomerStatusInactive CustomerStatus = "inactive"
)

// CustomerType represents the type of customer
type CustomerType string

const (
	CustomerTypeIndividual   CustomerType = "individual"
	CustomerTypeOrganization CustomerType = "organization"
)

// Customer is a billing counterparty stored in the tenant datastore. There
// is no tenant id column: isolation comes from the datastore itself, every
// access goes through the request's TenancyContext.
type Customer struct {
	shared.BaseAggregateRoot
	Code        string              `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name        string              `gorm:"type:varchar(200);not null"`
	Type        CustomerType        `gorm:"type:varchar(20);not null;default:'individual'"`
	Status      CustomerStatus      `gorm:"type:varchar(20);not null;default:'active'"`
	FiscalID    string              `gorm:"type:varchar(50);index"`
	ContactName string              `gorm:"type:varchar(100)"`
	Phone       string              `gorm:"type:varchar(50)"`
	Email       string              `gorm:"type:varchar(200);index"`
	Address     valueobject.Address `gorm:"type:jsonb"`
	Notes       string              `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (Customer) TableName() string {
	return "customers"
}

// NewCustomer creates a new active customer
func NewCustomer(code, name string, customerType CustomerType) (*Customer, error) {
	if err := validateCustomerCode(code); err != nil {
		return nil, err
	}
	if err := validateCustomerName(name); err != nil {
		return nil, err
	}
	if customerType != CustomerTypeIndividual && customerType != CustomerTypeOrganization {
		return nil, shared.NewDomainError("INVALID_CUSTOMER_TYPE", "Invalid customer type")
	}

	customer := &Customer{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              strings.ToUpper(code),
		Name:              name,
		Type:              customerType,
		Status:            CustomerStatusActive,
	}

	customer.AddDomainEvent(NewCustomerCreatedEvent(customer))

	return customer, nil
}

// Update updates the customer's basic information
func (c *Customer) Update(name, fiscalID string) error {
	if err := validateCustomerName(name); err != nil {
		return err
	}
	if len(fiscalID) > 50 {
		return shared.NewDomainError("INVALID_FISCAL_ID", "Fiscal ID cannot exceed 50 characters")
	}

	c.Name = name
	c.FiscalID = fiscalID
	c.UpdatedAt = time.Now()
	c.IncrementVersion()

	return nil
}

// SetContact sets the customer's contact information
func (c *Customer) SetContact(contactName, phone, email string) error {
	if len(contactName) > 100 {
		return shared.NewDomainError("INVALID_CONTACT_NAME", "Contact name cannot exceed 100 characters")
	}
	if len(phone) > 50 {
		return shared.NewDomainError("INVALID_PHONE", "Phone cannot exceed 50 characters")
	}
	if email != "" && !strings.Contains(email, "@") {
		return shared.NewDomainError("INVALID_EMAIL", "Email address is invalid")
	}

	c.ContactName = contactName
	c.Phone = phone
	c.Email = strings.ToLower(email)
	c.UpdatedAt = time.Now()
	c.IncrementVersion()

	return nil
}

// SetAddress sets the customer's billing address
func (c *Customer) SetAddress(address valueobject.Address) {
	c.Address = address
	c.UpdatedAt = time.Now()
	c.IncrementVersion()
}

// Deactivate deactivates the customer
func (c *Customer) Deactivate() error {
	if c.Status == CustomerStatusInactive {
		return shared.NewDomainError("ALREADY_INACTIVE", "Customer is already inactive")
	}

	c.Status = CustomerStatusInactive
	c.UpdatedAt = time.Now()
	c.IncrementVersion()

	return nil
}

// Activate re-activates the customer
func (c *Customer) Activate() error {
	if c.Status == CustomerStatusActive {
		return shared.NewDomainError("ALREADY_ACTIVE", "Customer is already active")
	}

	c.Status = CustomerStatusActive
	c.UpdatedAt = time.Now()
	c.IncrementVersion()

	return nil
}

// IsActive returns true if the customer is active
func (c *Customer) IsActive() bool {
	return c.Status == CustomerStatusActive
}

func validateCustomerCode(code string) error {
	if code == "" {
		return shared.NewDomainError("INVALID_CODE", "Customer code cannot be empty")
	}
	if len(code) > 50 {
		return shared.NewDomainError("INVALID_CODE", "Customer code cannot exceed 50 characters")
	}
	for _, r := range code {
		if !((r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-') {
			return shared.NewDomainError("INVALID_CODE", "Customer code can only contain letters, numbers, underscores, and hyphens")
		}
	}
	return nil
}

func validateCustomerName(name string) error {
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Customer name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewDomainError("INVALID_NAME", "Customer name cannot exceed 200 characters")
	}
	return nil
}
