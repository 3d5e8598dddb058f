package mock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	applog "formulary/internal/log"
	"formulary/models"
)

var instances atomic.Int64

// New returns an in-memory sqlite database seeded with a small substance
// library and formulations that exercise each compliance outcome.
func New(ctx context.Context) (*gorm.DB, error) {
	applog.Debug(ctx, "initialising mock database")

	dsn := fmt.Sprintf("file:formulary-mock-%d?mode=memory&cache=shared", instances.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		PrepareStmt:                              true,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.Substance{},
		&models.Formula{},
		&models.FormulaIngredient{},
	); err != nil {
		return nil, err
	}

	if err := seed(ctx, db); err != nil {
		return nil, err
	}

	applog.Debug(ctx, "mock database ready")
	return db, nil
}

func concentration(value float64, unit string) (*float64, *string) {
	return &value, &unit
}

func seed(ctx context.Context, db *gorm.DB) error {
	applog.Debug(ctx, "seeding mock database")

	vanillin := models.Substance{
		CommonName:       "Vanillin",
		CASNumber:        "121-33-5",
		FEMANumber:       "3107",
		Notes:            "Sweet creamy vanilla character.",
		AlternativeNames: datatypes.JSON(`["4-Hydroxy-3-methoxybenzaldehyde","Vanillic aldehyde"]`),
	}

	linalool := models.Substance{
		CommonName:       "Linalool",
		CASNumber:        "78-70-6",
		FEMANumber:       "2635",
		Notes:            "Fresh floral woody lift.",
		AlternativeNames: datatypes.JSON(`["Linalol","3,7-Dimethylocta-1,6-dien-3-ol"]`),
	}

	quinine := models.Substance{
		CommonName: "Quinine hydrochloride",
		CASNumber:  "130-89-2",
		FEMANumber: "2976",
		Notes:      "Bitter tonic note.",
	}

	tartrazine := models.Substance{
		CommonName: "Tartrazine",
		CASNumber:  "1934-21-0",
		Notes:      "Lemon yellow colour.",
		// Legacy importer rows store the array as an encoded string.
		AlternativeNames: datatypes.JSON(`"[\"E 102 Tartrazine\",\"FD&C Yellow 5\"]"`),
	}

	citric := models.Substance{
		CommonName:       "Citric acid",
		CASNumber:        "77-92-9",
		AlternativeNames: datatypes.JSON(`["E 330 Citric acid"]`),
	}

	ambroxan := models.Substance{
		CommonName: "Ambroxan",
		CASNumber:  "6790-58-5",
		Notes:      "Fragrance material without a food listing.",
	}

	substances := []*models.Substance{&vanillin, &linalool, &quinine, &tartrazine, &citric, &ambroxan}
	for _, substance := range substances {
		if err := db.WithContext(ctx).Create(substance).Error; err != nil {
			return err
		}
	}

	tonic := models.Formula{
		Name:    "Citrus Tonic",
		Kind:    models.FormulaKindFlavor,
		Notes:   "Bitter lemon soft drink flavour.",
		Version: 3,
	}

	custard := models.Formula{
		Name:    "Vanilla Custard",
		Kind:    models.FormulaKindFlavor,
		Notes:   "Dessert flavour with a colour boost.",
		Version: 1,
	}

	if err := db.WithContext(ctx).Create(&tonic).Error; err != nil {
		return err
	}
	if err := db.WithContext(ctx).Create(&custard).Error; err != nil {
		return err
	}

	ingredients := []models.FormulaIngredient{
		{FormulaID: tonic.ID, SubstanceID: citric.ID},
		{FormulaID: tonic.ID, SubstanceID: linalool.ID},
		{FormulaID: tonic.ID, SubstanceID: quinine.ID},
		{FormulaID: custard.ID, SubstanceID: vanillin.ID},
		{FormulaID: custard.ID, SubstanceID: tartrazine.ID},
		{FormulaID: custard.ID, SubstanceID: ambroxan.ID},
	}
	ingredients[0].Concentration, ingredients[0].Unit = concentration(2.5, models.UnitGPerL)
	ingredients[1].Concentration, ingredients[1].Unit = concentration(15, models.UnitPPM)
	ingredients[2].Concentration, ingredients[2].Unit = concentration(0.012, models.UnitPercent)
	ingredients[3].Concentration, ingredients[3].Unit = concentration(0.05, models.UnitPercent)
	ingredients[4].Concentration, ingredients[4].Unit = concentration(0.2, models.UnitGPerKg)

	for _, ingredient := range ingredients {
		ingredientCopy := ingredient
		if err := db.WithContext(ctx).Create(&ingredientCopy).Error; err != nil {
			return err
		}
	}

	applog.Debug(ctx, "mock database seeded")
	return nil
}
