package valueobject

// Currency is an ISO 4217 currency code
type Currency string

const (
	EUR Currency = "EUR" // Euro (default)
	USD Currency = "USD" // US Dollar
	GBP Currency = "GBP" // British Pound
	CHF Currency = "CHF" // Swiss Franc
	RON Currency = "RON" // Romanian Leu
	PLN Currency = "PLN" // Polish Zloty
)

// DefaultCurrency is applied when a document is emitted without one
const DefaultCurrency = EUR

var supportedCurrencies = map[Currency]bool{
	EUR: true,
	USD: true,
	GBP: true,
	CHF: true,
	RON: true,
	PLN: true,
}

// IsValid reports whether the platform can invoice in this currency
func (c Currency) IsValid() bool {
	return supportedCurrencies[c]
}

// String returns the currency code
func (c Currency) String() string {
	return string(c)
}
