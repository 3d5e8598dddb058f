package models

import (
	"gorm.io/gorm"
)

// Concentration units accepted on a formula ingredient.
const (
	UnitPPM       = "ppm"
	UnitGPerKg    = "g/kg"
	UnitPercentVV = "%(v/v)"
	UnitPercent   = "%"
	UnitGPerL     = "g/L"
	UnitMgPerKg   = "mg/kg"
	UnitMLPerL    = "mL/L"
)

// ConcentrationUnits lists the declared units in display order.
var ConcentrationUnits = []string{
	UnitPPM,
	UnitGPerKg,
	UnitPercentVV,
	UnitPercent,
	UnitGPerL,
	UnitMgPerKg,
	UnitMLPerL,
}

type FormulaIngredient struct {
	gorm.Model
	FormulaID uint `gorm:"not null;index" json:"formula_id"` // Parent Formula

	// Concentration in the finished product. Both are optional; an ingredient
	// without a declared concentration cannot be checked against limits.
	Concentration *float64 `json:"concentration,omitempty"`
	Unit          *string  `gorm:"type:varchar(16)" json:"unit,omitempty"`

	SubstanceID uint       `gorm:"not null;index" json:"substance_id"`
	Substance   *Substance `gorm:"foreignKey:SubstanceID" json:"substance,omitempty"`
}

// ValidConcentrationUnit reports whether unit is one of ConcentrationUnits.
func ValidConcentrationUnit(unit string) bool {
	for _, candidate := range ConcentrationUnits {
		if candidate == unit {
			return true
		}
	}
	return false
}
