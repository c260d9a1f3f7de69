package storeapi

import (
	"errors"
	"fmt"

	"github.com/dunglas/httpsfv"

	"storefront/internal/model"
)

// HintHeader carries checkout hints as an RFC 8941 dictionary.
// Example: Checkout-Hint: payment-method=cod
const HintHeader = "Checkout-Hint"

const hintPaymentMethod = "payment-method"

// FormatHint serializes the payment-method hint. An empty method yields "".
func FormatHint(pm model.PaymentMethod) (string, error) {
	if pm == "" {
		return "", nil
	}
	dict := httpsfv.NewDictionary()
	dict.Add(hintPaymentMethod, httpsfv.NewItem(httpsfv.Token(pm)))
	return httpsfv.Marshal(dict)
}

// ParseHint extracts the payment method from a Checkout-Hint header value.
// An absent header or key yields "" with no error; unknown methods are rejected.
//
// Examples:
//
//	payment-method=cod        → cod
//	payment-method="card", v=1 → card
func ParseHint(header string) (model.PaymentMethod, error) {
	if header == "" {
		return "", nil
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return "", fmt.Errorf("invalid %s header: %w", HintHeader, err)
	}

	member, ok := dict.Get(hintPaymentMethod)
	if !ok {
		return "", nil
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", errors.New("payment-method must be an item")
	}

	var raw string
	switch v := item.Value.(type) {
	case httpsfv.Token:
		raw = string(v)
	case string:
		raw = v
	default:
		return "", errors.New("payment-method must be a token or string")
	}
	return model.ParsePaymentMethod(raw)
}
