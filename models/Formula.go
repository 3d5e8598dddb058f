package models

import (
	"gorm.io/gorm"
)

// Formulation kinds.
const (
	FormulaKindFlavor    = "flavor"
	FormulaKindFragrance = "fragrance"
	FormulaKindCosmetic  = "cosmetic"
)

// Formula is a versioned formulation made of substances at declared
// concentrations.
type Formula struct {
	gorm.Model
	Name        string              `gorm:"not null" json:"name"`
	Kind        string              `gorm:"type:varchar(16);not null;default:flavor" json:"kind"`
	Notes       string              `gorm:"type:text" json:"notes"`
	Version     int                 `gorm:"not null;default:1" json:"version"`
	Ingredients []FormulaIngredient `gorm:"foreignKey:FormulaID" json:"ingredients"`
}
