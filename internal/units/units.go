// Package units provides shared constants and validation for depth units
package units

import "fmt"

// Unit constants
const (
	UM = "um"
	MM = "mm"
	M  = "m"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{UM, MM, M}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "um, mm, m"
}

// ToMicrometres converts a depth in the given units to micrometres.
// The store keeps depths in micrometres; an empty unit means micrometres.
func ToMicrometres(depth float64, unit string) (float64, error) {
	switch unit {
	case UM, "":
		return depth, nil
	case MM:
		return depth * 1e3, nil
	case M:
		return depth * 1e6, nil
	default:
		return 0, fmt.Errorf("invalid depth unit %q, must be one of: %s", unit, GetValidUnitsString())
	}
}

// ConvertDepth converts a depth from micrometres to the target units.
// Unknown units leave the value in micrometres.
func ConvertDepth(depthUM float64, targetUnits string) float64 {
	switch targetUnits {
	case MM:
		return depthUM / 1e3
	case M:
		return depthUM / 1e6
	default:
		return depthUM
	}
}
