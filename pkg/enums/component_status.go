package enums

import "fmt"

// ComponentStatus is the lifecycle state of one serialized unit.
type ComponentStatus string

const (
	ComponentStatusInWarehouse ComponentStatus = "IN_WAREHOUSE"
	ComponentStatusReserved    ComponentStatus = "RESERVED"
	ComponentStatusShipped     ComponentStatus = "SHIPPED"
	ComponentStatusInstalled   ComponentStatus = "INSTALLED"
	ComponentStatusDefective   ComponentStatus = "DEFECTIVE"
)

var validComponentStatuses = []ComponentStatus{
	ComponentStatusInWarehouse,
	ComponentStatusReserved,
	ComponentStatusShipped,
	ComponentStatusInstalled,
	ComponentStatusDefective,
}

// String implements fmt.Stringer.
func (c ComponentStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ComponentStatus.
func (c ComponentStatus) IsValid() bool {
	for _, candidate := range validComponentStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseComponentStatus converts raw input into a ComponentStatus.
func ParseComponentStatus(value string) (ComponentStatus, error) {
	for _, candidate := range validComponentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid component status %q", value)
}
