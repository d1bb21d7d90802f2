package enums

import "fmt"

// AdjustmentType is the direction of a stock adjustment.
type AdjustmentType string

const (
	AdjustmentTypeIn  AdjustmentType = "IN"
	AdjustmentTypeOut AdjustmentType = "OUT"
)

var validAdjustmentTypes = []AdjustmentType{
	AdjustmentTypeIn,
	AdjustmentTypeOut,
}

// String implements fmt.Stringer.
func (a AdjustmentType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AdjustmentType.
func (a AdjustmentType) IsValid() bool {
	for _, candidate := range validAdjustmentTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAdjustmentType converts raw input into a AdjustmentType.
func ParseAdjustmentType(value string) (AdjustmentType, error) {
	for _, candidate := range validAdjustmentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid adjustment type %q", value)
}
