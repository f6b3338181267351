package fiscal

import (
	"github.com/facturo/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentLine is one priced line of a fiscal document. Lines are created
// atomically with their parent document and are never mutated afterwards.
type DocumentLine struct {
	shared.BaseEntity
	DocumentID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	Position        int             `gorm:"not null"`
	Description     string          `gorm:"type:varchar(500);not null"`
	Quantity        decimal.Decimal `gorm:"type:decimal(14,4);not null"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	DiscountPercent decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	TaxRatePercent  decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (DocumentLine) TableName() string {
	return "document_lines"
}

var oneHundred = decimal.NewFromInt(100)

// NewDocumentLine creates a line and computes its discounted subtotal
// (quantity x unit price, less the discount percentage, before tax).
func NewDocumentLine(position int, description string, quantity, unitPrice, discountPercent, taxRatePercent decimal.Decimal) (DocumentLine, error) {
	if description == "" {
		return DocumentLine{}, shared.NewDomainError("INVALID_LINE", "Line description cannot be empty")
	}
	if !quantity.IsPositive() {
		return DocumentLine{}, shared.NewDomainError("INVALID_LINE", "Line quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return DocumentLine{}, shared.NewDomainError("INVALID_LINE", "Line unit price cannot be negative")
	}
	if discountPercent.IsNegative() || discountPercent.GreaterThan(oneHundred) {
		return DocumentLine{}, shared.NewDomainError("INVALID_LINE", "Line discount must be between 0 and 100")
	}
	if taxRatePercent.IsNegative() || taxRatePercent.GreaterThan(oneHundred) {
		return DocumentLine{}, shared.NewDomainError("INVALID_LINE", "Line tax rate must be between 0 and 100")
	}

	gross := quantity.Mul(unitPrice)
	subtotal := gross.Sub(gross.Mul(discountPercent).Div(oneHundred)).Round(2)

	return DocumentLine{
		BaseEntity:      shared.NewBaseEntity(),
		Position:        position,
		Description:     description,
		Quantity:        quantity,
		UnitPrice:       unitPrice,
		DiscountPercent: discountPercent,
		TaxRatePercent:  taxRatePercent,
		Subtotal:        subtotal,
	}, nil
}

// TaxAmount returns the tax charged on the line's subtotal
func (l DocumentLine) TaxAmount() decimal.Decimal {
	return l.Subtotal.Mul(l.TaxRatePercent).Div(oneHundred).Round(2)
}
