package enums

import "fmt"

// AdjustmentReason explains why stock on hand changed.
type AdjustmentReason string

const (
	AdjustmentReasonSupplierDelivery AdjustmentReason = "SUPPLIER_DELIVERY"
	AdjustmentReasonCustomerReturn   AdjustmentReason = "CUSTOMER_RETURN"
	AdjustmentReasonDamage           AdjustmentReason = "DAMAGE"
	AdjustmentReasonTheft            AdjustmentReason = "THEFT"
	AdjustmentReasonManualCount      AdjustmentReason = "MANUAL_COUNT"
	AdjustmentReasonOther            AdjustmentReason = "OTHER"
)

var validAdjustmentReasons = []AdjustmentReason{
	AdjustmentReasonSupplierDelivery,
	AdjustmentReasonCustomerReturn,
	AdjustmentReasonDamage,
	AdjustmentReasonTheft,
	AdjustmentReasonManualCount,
	AdjustmentReasonOther,
}

// String implements fmt.Stringer.
func (a AdjustmentReason) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AdjustmentReason.
func (a AdjustmentReason) IsValid() bool {
	for _, candidate := range validAdjustmentReasons {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAdjustmentReason converts raw input into a AdjustmentReason.
func ParseAdjustmentReason(value string) (AdjustmentReason, error) {
	for _, candidate := range validAdjustmentReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid adjustment reason %q", value)
}
