package partner

import (
	"context"

	"github.com/facturo/backend/internal/domain/partner"
	"github.com/facturo/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CustomerService handles customer management in the tenant datastore
type CustomerService struct {
	customerRepo partner.CustomerRepository
	events       shared.EventPublisher
	logger       *zap.Logger
}

// NewCustomerService creates a new CustomerService. A nil publisher
// disables event publication.
func NewCustomerService(customerRepo partner.CustomerRepository, events shared.EventPublisher, logger *zap.Logger) *CustomerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CustomerService{
		customerRepo: customerRepo,
		events:       events,
		logger:       logger,
	}
}

func (s *CustomerService) publishEvents(ctx context.Context, customer *partner.Customer) {
	if s.events == nil {
		return
	}
	if evts := customer.GetDomainEvents(); len(evts) > 0 {
		if err := s.events.Publish(ctx, evts...); err != nil {
			s.logger.Warn("Event publication failed", zap.Error(err))
		}
		customer.ClearDomainEvents()
	}
}

// Create creates a new customer
func (s *CustomerService) Create(ctx context.Context, req CreateCustomerRequest) (*CustomerResponse, error) {
	exists, err := s.customerRepo.ExistsByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "Customer with this code already exists")
	}

	customerType := partner.CustomerType(req.Type)
	if customerType == "" {
		customerType = partner.CustomerTypeIndividual
	}
	customer, err := partner.NewCustomer(req.Code, req.Name, customerType)
	if err != nil {
		return nil, err
	}
	if req.FiscalID != "" {
		if err := customer.Update(req.Name, req.FiscalID); err != nil {
			return nil, err
		}
	}
	if err := customer.SetContact(req.ContactName, req.Phone, req.Email); err != nil {
		return nil, err
	}
	if req.Address != nil {
		customer.SetAddress(req.Address.toAddress())
	}
	customer.Notes = req.Notes

	if err := s.customerRepo.Save(ctx, customer); err != nil {
		return nil, err
	}

	s.logger.Info("Customer created",
		zap.String("customer_id", customer.ID.String()),
		zap.String("code", customer.Code))
	s.publishEvents(ctx, customer)

	response := ToCustomerResponse(customer)
	return &response, nil
}

// GetByID retrieves a customer by ID
func (s *CustomerService) GetByID(ctx context.Context, id uuid.UUID) (*CustomerResponse, error) {
	customer, err := s.customerRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToCustomerResponse(customer)
	return &response, nil
}

// GetByCode retrieves a customer by its unique code
func (s *CustomerService) GetByCode(ctx context.Context, code string) (*CustomerResponse, error) {
	customer, err := s.customerRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	response := ToCustomerResponse(customer)
	return &response, nil
}

// List retrieves customers with pagination
func (s *CustomerService) List(ctx context.Context, filter shared.Filter) ([]CustomerResponse, int64, error) {
	customers, err := s.customerRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.customerRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]CustomerResponse, len(customers))
	for i := range customers {
		responses[i] = ToCustomerResponse(&customers[i])
	}
	return responses, total, nil
}

// Update updates a customer's information
func (s *CustomerService) Update(ctx context.Context, id uuid.UUID, req UpdateCustomerRequest) (*CustomerResponse, error) {
	customer, err := s.customerRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := customer.Update(req.Name, req.FiscalID); err != nil {
		return nil, err
	}
	if err := customer.SetContact(req.ContactName, req.Phone, req.Email); err != nil {
		return nil, err
	}
	if req.Address != nil {
		customer.SetAddress(req.Address.toAddress())
	}
	customer.Notes = req.Notes

	if err := s.customerRepo.Save(ctx, customer); err != nil {
		return nil, err
	}

	response := ToCustomerResponse(customer)
	return &response, nil
}

// Deactivate deactivates a customer
func (s *CustomerService) Deactivate(ctx context.Context, id uuid.UUID) error {
	customer, err := s.customerRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := customer.Deactivate(); err != nil {
		return err
	}
	return s.customerRepo.Save(ctx, customer)
}

// Activate re-activates a customer
func (s *CustomerService) Activate(ctx context.Context, id uuid.UUID) error {
	customer, err := s.customerRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := customer.Activate(); err != nil {
		return err
	}
	return s.customerRepo.Save(ctx, customer)
}

// Delete removes a customer
func (s *CustomerService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.customerRepo.FindByID(ctx, id); err != nil {
		return err
	}
	return s.customerRepo.Delete(ctx, id)
}
