package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"formulary/internal/config"
	"formulary/internal/db"
	"formulary/internal/formulations"
	applog "formulary/internal/log"
	"formulary/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	bracketPattern  = regexp.MustCompile(`\[[^\]]*\]`)
	cleanWhitespace = regexp.MustCompile(`\s+`)
)

func main() {
	csvPath := "substances.csv"
	if len(os.Args) > 1 {
		csvPath = os.Args[1]
	}

	if err := run(context.Background(), csvPath); err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, csvPath string) error {
	if strings.TrimSpace(csvPath) == "" {
		return fmt.Errorf("csv path must not be empty")
	}

	file, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("locate csv: %w", err)
	}
	defer file.Close()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applog.Configure(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	database, err := db.Initialize(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(database); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	records, err := readCSV(file)
	if err != nil {
		return fmt.Errorf("read csv: %w", err)
	}

	imported, err := importRecords(ctx, database, records)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Imported %d substances from %s\n", imported, filepath.Base(csvPath))
	return nil
}

// importRecords upserts one Substance per row, matching existing rows by
// common name and then by CAS number. Alternative names are merged with the
// stored ones and written back as a JSON array.
func importRecords(ctx context.Context, database *gorm.DB, records []map[string]string) (int, error) {
	imported := 0
	for idx, record := range records {
		substance := buildSubstance(record)
		if substance.CommonName == "" {
			applog.Warn(ctx, "skipping row without common name", "row", idx+1)
			continue
		}

		if err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var existing models.Substance
			foundByName := false
			foundByCAS := false

			err := tx.Where("lower(common_name) = ?", strings.ToLower(substance.CommonName)).First(&existing).Error
			if err == nil {
				foundByName = true
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("find substance by name %q: %w", substance.CommonName, err)
			}

			if !foundByName && substance.CASNumber != "" {
				err = tx.Where("cas_number = ?", substance.CASNumber).First(&existing).Error
				if err == nil {
					foundByCAS = true
				} else if !errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("find substance by CAS %q (%s): %w", substance.CASNumber, substance.CommonName, err)
				}
			}

			newNames := splitOtherNames(record["Other Names"])

			if !foundByName && !foundByCAS {
				encoded, err := encodeNames(mergeNames(substance.CommonName, nil, newNames))
				if err != nil {
					return err
				}
				substance.AlternativeNames = encoded
				if err := tx.Create(&substance).Error; err != nil {
					return fmt.Errorf("create substance %q: %w", substance.CommonName, err)
				}
				return nil
			}

			canonical := existing.CommonName
			if foundByCAS && !strings.EqualFold(existing.CommonName, substance.CommonName) {
				// A second name for a known CAS number becomes an alias.
				newNames = append(newNames, substance.CommonName)
			}

			encoded, err := encodeNames(mergeNames(canonical, formulations.ParseAlternativeNames(existing.AlternativeNames), newNames))
			if err != nil {
				return err
			}

			updates := map[string]any{
				"alternative_names": encoded,
			}
			if substance.CASNumber != "" {
				updates["cas_number"] = substance.CASNumber
			}
			if substance.FEMANumber != "" {
				updates["fema_number"] = substance.FEMANumber
			}
			if substance.Notes != "" {
				updates["notes"] = substance.Notes
			}

			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return fmt.Errorf("update substance %q: %w", canonical, err)
			}
			return nil
		}); err != nil {
			return imported, fmt.Errorf("record %d (%s): %w", idx+1, substance.CommonName, err)
		}
		imported++
	}
	return imported, nil
}

func readCSV(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, errors.New("csv is empty")
	}

	header := rows[0]
	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}

		record := make(map[string]string, len(header))
		for idx, key := range header {
			if idx >= len(row) {
				continue
			}
			record[strings.TrimSpace(key)] = strings.TrimSpace(row[idx])
		}
		records = append(records, record)
	}

	return records, nil
}

func buildSubstance(row map[string]string) models.Substance {
	name := normalizeText(row["Common Name"])
	if name == "" {
		name = normalizeText(row["Ingredient Name"])
	}
	return models.Substance{
		CommonName: name,
		CASNumber:  normalizeValue(row["CAS Number"]),
		FEMANumber: normalizeValue(row["FEMA Number"]),
		Notes:      normalizeText(row["Notes"]),
	}
}

func normalizeValue(value string) string {
	value = strings.TrimSpace(value)
	switch strings.ToUpper(value) {
	case "", "N/A", "NA", "NONE", "UNKNOWN":
		return ""
	}
	return value
}

func normalizeText(value string) string {
	value = normalizeValue(value)
	if value == "" {
		return value
	}
	value = cleanWhitespace.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

// splitOtherNames splits a list on ";" when present and on "," otherwise, so
// chemical names with commas survive. Footnote markers such as "[1]" and
// placeholder values are dropped.
func splitOtherNames(value string) []string {
	value = normalizeValue(value)
	if value == "" {
		return nil
	}

	sep := ","
	if strings.Contains(value, ";") {
		sep = ";"
	}
	var names []string
	for _, part := range strings.Split(value, sep) {
		clean := strings.TrimSpace(bracketPattern.ReplaceAllString(part, ""))
		clean = normalizeValue(strings.Trim(clean, ";,"))
		if clean != "" {
			names = append(names, clean)
		}
	}
	return names
}

// mergeNames returns the case-insensitively unique union of current and
// added, sorted, without the canonical name itself.
func mergeNames(canonical string, current, added []string) []string {
	nameMap := make(map[string]string)
	addName := func(value string) {
		value = strings.TrimSpace(value)
		if value == "" || strings.EqualFold(value, canonical) {
			return
		}
		key := strings.ToLower(value)
		if _, ok := nameMap[key]; !ok {
			nameMap[key] = value
		}
	}
	for _, name := range current {
		addName(name)
	}
	for _, name := range added {
		addName(name)
	}

	keys := make([]string, 0, len(nameMap))
	for key := range nameMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, nameMap[key])
	}
	return names
}

func encodeNames(names []string) (datatypes.JSON, error) {
	if names == nil {
		names = []string{}
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return nil, fmt.Errorf("encode alternative names: %w", err)
	}
	return datatypes.JSON(raw), nil
}
