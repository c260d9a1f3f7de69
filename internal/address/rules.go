// Package address gates shipping address updates to the pricing backend.
// An address is only forwarded once it passes the rule set for its country,
// and edits are debounced so each keystroke does not trigger a shipping
// recalculation.
package address

import (
	"strings"

	"storefront/internal/model"
)

// DefaultDomesticCountry is the country whose postcode rules are enforced
// strictly when no other is configured.
const DefaultDomesticCountry = "IN"

// domesticPostcodeDigits is the exact digit count of a domestic postcode.
const domesticPostcodeDigits = 6

// Kind tags which rule set applies to an address.
type Kind int

const (
	Domestic Kind = iota
	International
)

func (k Kind) String() string {
	if k == Domestic {
		return "domestic"
	}
	return "international"
}

// RuleSet is the per-country validity predicate.
type RuleSet struct {
	Kind    Kind
	Country string
}

// RulesFor selects the rule set for an address country. Countries compare
// case-insensitively; a blank country uses the international rules, which
// then reject it.
func RulesFor(country, domestic string) RuleSet {
	country = strings.ToUpper(strings.TrimSpace(country))
	if domestic == "" {
		domestic = DefaultDomesticCountry
	}
	if country != "" && country == strings.ToUpper(domestic) {
		return RuleSet{Kind: Domestic, Country: country}
	}
	return RuleSet{Kind: International, Country: country}
}

// Check returns a validation error naming the first violated rule.
func (r RuleSet) Check(addr model.Address) error {
	switch r.Kind {
	case Domestic:
		return checkDomestic(addr)
	default:
		return checkInternational(addr)
	}
}

// Valid reports whether addr may be forwarded.
func (r RuleSet) Valid(addr model.Address) bool {
	return r.Check(addr) == nil
}

func checkDomestic(addr model.Address) error {
	postcode := addr.Postcode
	digits := 0
	for _, ch := range postcode {
		switch {
		case ch >= '0' && ch <= '9':
			digits++
		case ch == ' ':
		default:
			return model.NewValidationError("postcode", "must contain only digits")
		}
	}
	if digits != domesticPostcodeDigits {
		return model.NewValidationError("postcode", "must be exactly 6 digits")
	}
	if strings.TrimSpace(addr.City) == "" {
		return model.NewValidationError("city", "is required")
	}
	return nil
}

func checkInternational(addr model.Address) error {
	if len(strings.TrimSpace(addr.Postcode)) < 3 {
		return model.NewValidationError("postcode", "must be at least 3 characters")
	}
	if strings.TrimSpace(addr.City) == "" {
		return model.NewValidationError("city", "is required")
	}
	if strings.TrimSpace(addr.Country) == "" {
		return model.NewValidationError("country", "is required")
	}
	return nil
}
