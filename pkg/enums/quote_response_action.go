package enums

import "fmt"

// QuoteResponseAction is the decision a customer records against a sent quote.
type QuoteResponseAction string

const (
	QuoteResponseActionAccepted QuoteResponseAction = "accepted"
	QuoteResponseActionDeclined QuoteResponseAction = "declined"
)

var validQuoteResponseActions = []QuoteResponseAction{
	QuoteResponseActionAccepted,
	QuoteResponseActionDeclined,
}

// IsValid reports whether the value matches the canonical response action enum.
func (q QuoteResponseAction) IsValid() bool {
	for _, candidate := range validQuoteResponseActions {
		if candidate == q {
			return true
		}
	}
	return false
}

// ParseQuoteResponseAction converts the raw string to QuoteResponseAction.
func ParseQuoteResponseAction(value string) (QuoteResponseAction, error) {
	for _, candidate := range validQuoteResponseActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid quote response action %q", value)
}
