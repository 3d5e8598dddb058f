// Package formulations reads formulations and their ingredients for the
// compliance checker.
package formulations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	applog "formulary/internal/log"
	"formulary/models"
)

// ErrNotFound is returned when a formulation id does not exist.
var ErrNotFound = errors.New("formulations: formulation not found")

// Formulation identifies a formulation.
type Formulation struct {
	ID      uint
	Name    string
	Kind    string
	Version int
}

// Ingredient is one substance row of a formulation with its alternative
// names already decoded.
type Ingredient struct {
	SubstanceID      uint
	CommonName       string
	AlternativeNames []string
	Concentration    *float64
	Unit             *string
}

// Repository is the gorm-backed persistence collaborator.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FormulationByID loads a formulation header.
func (r *Repository) FormulationByID(ctx context.Context, id uint) (Formulation, error) {
	if r == nil || r.db == nil {
		return Formulation{}, gorm.ErrInvalidDB
	}

	var formula models.Formula
	if err := r.db.WithContext(ctx).First(&formula, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Formulation{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return Formulation{}, fmt.Errorf("load formulation %d: %w", id, err)
	}

	return Formulation{
		ID:      formula.ID,
		Name:    formula.Name,
		Kind:    formula.Kind,
		Version: formula.Version,
	}, nil
}

// IngredientsForFormulation returns the substance rows of a formulation in
// insertion order.
func (r *Repository) IngredientsForFormulation(ctx context.Context, id uint) ([]Ingredient, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var rows []models.FormulaIngredient
	if err := r.db.WithContext(ctx).
		Preload("Substance").
		Where("formula_id = ?", id).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load ingredients for formulation %d: %w", id, err)
	}

	ingredients := make([]Ingredient, 0, len(rows))
	for _, row := range rows {
		if row.Substance == nil {
			applog.Warn(ctx, "formula ingredient references missing substance", "formulaID", id, "substanceID", row.SubstanceID)
			continue
		}
		ingredients = append(ingredients, Ingredient{
			SubstanceID:      row.SubstanceID,
			CommonName:       row.Substance.CommonName,
			AlternativeNames: ParseAlternativeNames(row.Substance.AlternativeNames),
			Concentration:    row.Concentration,
			Unit:             row.Unit,
		})
	}
	return ingredients, nil
}

// ParseAlternativeNames decodes the alternative_names column. It accepts a
// JSON array of strings or a JSON string holding such an array; anything
// else yields an empty list.
func ParseAlternativeNames(raw []byte) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var items []any
	if err := json.Unmarshal(raw, &items); err == nil {
		return cleanNames(items)
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		encoded = strings.TrimSpace(encoded)
		if strings.HasPrefix(encoded, "[") {
			return ParseAlternativeNames([]byte(encoded))
		}
	}
	return nil
}

func cleanNames(items []any) []string {
	names := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		name, ok := item.(string)
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}
	return names
}
