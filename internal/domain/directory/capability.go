package directory

import "strings"

// Capability names one action a credential is allowed to perform. Routes
// declare the capability they require and a single gate evaluates
// membership, independent of the resource being acted upon.
type Capability string

const (
	CapabilityFiscalEmit   Capability = "fiscal:emit"
	CapabilityFiscalSettle Capability = "fiscal:settle"
	CapabilityFiscalCancel Capability = "fiscal:cancel"
	CapabilityFiscalRead   Capability = "fiscal:read"
	CapabilityPartnerWrite Capability = "partner:write"
	CapabilityPartnerRead  Capability = "partner:read"
	CapabilityTenantAdmin  Capability = "tenant:admin"
)

// DefaultCapabilities is the set granted to a regular tenant user
var DefaultCapabilities = CapabilitySet{
	CapabilityFiscalEmit,
	CapabilityFiscalSettle,
	CapabilityFiscalCancel,
	CapabilityFiscalRead,
	CapabilityPartnerWrite,
	CapabilityPartnerRead,
}

// CapabilitySet is an ordered list of capabilities. It is stored as a
// comma-separated string column on the access credential.
type CapabilitySet []Capability

// Has returns true if the set contains the capability
func (s CapabilitySet) Has(c Capability) bool {
	for _, have := range s {
		if have == c {
			return true
		}
	}
	return false
}

// String renders the set as a comma-separated string
func (s CapabilitySet) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

// ParseCapabilitySet parses a comma-separated capability string
func ParseCapabilitySet(raw string) CapabilitySet {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	set := make(CapabilitySet, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			set = append(set, Capability(p))
		}
	}
	return set
}
