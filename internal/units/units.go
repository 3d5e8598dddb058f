// Package units converts formulation concentrations and EU restriction
// limits to parts per million so they can be compared.
//
// The conversion is density-agnostic: volume based units are treated as if
// the product had the density of water.
package units

import "strings"

// Unit is a recognised concentration unit.
type Unit int

const (
	Unknown Unit = iota
	PPM
	MgPerKg
	GPerKg
	Percent
	PercentVV
	GPerL
	MLPerL
)

var unitNames = map[Unit]string{
	Unknown:   "unknown",
	PPM:       "ppm",
	MgPerKg:   "mg/kg",
	GPerKg:    "g/kg",
	Percent:   "%",
	PercentVV: "%(v/v)",
	GPerL:     "g/L",
	MLPerL:    "mL/L",
}

// multipliers to ppm. Unknown keeps the value as is.
var multipliers = map[Unit]float64{
	Unknown:   1,
	PPM:       1,
	MgPerKg:   1,
	GPerKg:    1000,
	Percent:   10000,
	PercentVV: 10000,
	GPerL:     1000,
	MLPerL:    1000,
}

// Parse maps a unit label to a Unit. Matching ignores case and surrounding
// whitespace; "% (v/v)" and "%v/v" are accepted spellings of %(v/v).
func Parse(label string) Unit {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.ReplaceAll(key, " ", "")
	switch key {
	case "ppm":
		return PPM
	case "mg/kg":
		return MgPerKg
	case "g/kg":
		return GPerKg
	case "%":
		return Percent
	case "%(v/v)", "%v/v":
		return PercentVV
	case "g/l":
		return GPerL
	case "ml/l":
		return MLPerL
	default:
		return Unknown
	}
}

func (u Unit) String() string {
	if name, ok := unitNames[u]; ok {
		return name
	}
	return unitNames[Unknown]
}

// Multiplier returns the factor converting a value in u to ppm.
func (u Unit) Multiplier() float64 {
	if m, ok := multipliers[u]; ok {
		return m
	}
	return 1
}

// ToPPM converts value expressed in unit to ppm. It reports false when either
// the value or the unit is absent.
func ToPPM(value *float64, unit *string) (float64, bool) {
	if value == nil || unit == nil {
		return 0, false
	}
	return *value * Parse(*unit).Multiplier(), true
}
