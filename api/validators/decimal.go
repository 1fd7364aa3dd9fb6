package validators

import (
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/stonebridge-contracting/stonebridge-backend/pkg/errors"
)

// ParseDecimal converts a JSON string field to a fixed-point decimal. Monetary
// amounts travel as strings so float rounding never touches them.
func ParseDecimal(field, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "must be a decimal number").WithDetails(map[string]any{"field": field})
	}
	return value, nil
}

// ParseOptionalDecimal converts an optional JSON string field, passing nil
// through untouched.
func ParseOptionalDecimal(field string, raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	value, err := ParseDecimal(field, *raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}
