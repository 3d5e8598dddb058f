package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Substance is a flavour or fragrance material in the shared library.
type Substance struct {
	gorm.Model
	CommonName string `gorm:"uniqueIndex;not null" json:"common_name"`
	CASNumber  string `gorm:"index" json:"cas_number"`
	FEMANumber string `json:"fema_number"`
	Notes      string `gorm:"type:text" json:"notes"`

	// AlternativeNames holds a JSON array of synonyms. Older rows written by
	// the importer may contain a JSON-encoded string of that array instead.
	AlternativeNames datatypes.JSON `gorm:"type:json" json:"alternative_names"`
}
