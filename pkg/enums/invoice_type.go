package enums

import "fmt"

// InvoiceType distinguishes the payment stage an invoice covers.
type InvoiceType string

const (
	InvoiceTypeDownPayment InvoiceType = "down_payment"
	InvoiceTypeMilestone   InvoiceType = "milestone"
	InvoiceTypeFinal       InvoiceType = "final"
)

var validInvoiceTypes = []InvoiceType{
	InvoiceTypeDownPayment,
	InvoiceTypeMilestone,
	InvoiceTypeFinal,
}

// IsValid reports whether the value matches the canonical invoice type enum.
func (i InvoiceType) IsValid() bool {
	for _, candidate := range validInvoiceTypes {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseInvoiceType converts the raw string to InvoiceType.
func ParseInvoiceType(value string) (InvoiceType, error) {
	for _, candidate := range validInvoiceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid invoice type %q", value)
}
