// Defines SimTime, the unit-aware scalar used for every point and interval
// of simulated time, plus the TimeUnit constants.

package sim

import (
	"fmt"
	"math"
)

// TimeUnit identifies the unit a SimTime value is denominated in.
type TimeUnit int

// Supported time units. Conversion between adjacent units is a factor of 60.
const (
	Seconds TimeUnit = iota
	Minutes
	Hours
)

var unitNames = [...]string{"second", "minute", "hour"}

// validUnit reports whether u is one of the defined TimeUnit constants.
func validUnit(u TimeUnit) bool {
	return u >= Seconds && u <= Hours
}

// SimTime is a simulated time or interval in seconds, minutes or hours.
// It is an immutable value type: all arithmetic returns new values.
// Arithmetic and comparison normalize units; results take the unit of the
// left operand.
type SimTime struct {
	value float64
	unit  TimeUnit
}

// NewSimTime returns a SimTime of the given value and unit.
// It panics if unit is not a defined TimeUnit constant.
func NewSimTime(value float64, unit TimeUnit) SimTime {
	if !validUnit(unit) {
		panic(fmt.Sprintf("invalid time unit: %d", int(unit)))
	}
	return SimTime{value: value, unit: unit}
}

// conversionFactor returns the multiplier converting a value in unit from
// to a value in unit to. Adjacent units differ by a factor of 60.
func conversionFactor(from, to TimeUnit) float64 {
	return math.Pow(60, float64(from-to))
}

// Value returns the scalar magnitude, without units.
func (t SimTime) Value() float64 { return t.value }

// Unit returns the time unit the value is denominated in.
func (t SimTime) Unit() TimeUnit { return t.unit }

// ToUnit returns an equivalent SimTime denominated in the given unit.
// It panics if unit is not a defined TimeUnit constant.
func (t SimTime) ToUnit(unit TimeUnit) SimTime {
	if !validUnit(unit) {
		panic(fmt.Sprintf("invalid time unit passed to ToUnit: %d", int(unit)))
	}
	return SimTime{value: t.value * conversionFactor(t.unit, unit), unit: unit}
}

// Seconds returns the time as a scalar number of seconds.
func (t SimTime) Seconds() float64 {
	return t.value * conversionFactor(t.unit, Seconds)
}

// converted returns other's value expressed in t's units.
func (t SimTime) converted(other SimTime) float64 {
	return other.value * conversionFactor(other.unit, t.unit)
}

// Add returns t + other, in t's units.
func (t SimTime) Add(other SimTime) SimTime {
	return SimTime{value: t.value + t.converted(other), unit: t.unit}
}

// Sub returns t - other, in t's units.
func (t SimTime) Sub(other SimTime) SimTime {
	return SimTime{value: t.value - t.converted(other), unit: t.unit}
}

// Scale returns t multiplied by the scalar k, in t's units.
func (t SimTime) Scale(k float64) SimTime {
	return SimTime{value: t.value * k, unit: t.unit}
}

// Ratio returns t divided by other as a dimensionless scalar.
func (t SimTime) Ratio(other SimTime) float64 {
	return t.value / t.converted(other)
}

// Compare returns -1 if t is before other, 0 if they denote the same
// instant, and +1 if t is after other.
func (t SimTime) Compare(other SimTime) int {
	o := t.converted(other)
	switch {
	case t.value < o:
		return -1
	case t.value > o:
		return 1
	default:
		return 0
	}
}

// Before reports whether t is strictly earlier than other.
func (t SimTime) Before(other SimTime) bool { return t.Compare(other) < 0 }

// After reports whether t is strictly later than other.
func (t SimTime) After(other SimTime) bool { return t.Compare(other) > 0 }

// Equal reports whether t and other denote the same instant, regardless
// of unit.
func (t SimTime) Equal(other SimTime) bool { return t.Compare(other) == 0 }

// IsZero reports whether t is exactly zero.
func (t SimTime) IsZero() bool { return t.value == 0 }

// String renders the time with a singular or plural unit name,
// e.g. "1 minute" or "90 seconds".
func (t SimTime) String() string {
	name := unitNames[t.unit]
	if t.value != 1 {
		name += "s"
	}
	return fmt.Sprintf("%v %s", t.value, name)
}
