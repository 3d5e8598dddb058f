package eu

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const maxLineBytes = 16 << 20

type additiveRow struct {
	PolicyItemCode       flexString `json:"policy_item_code"`
	AdditiveECode        flexString `json:"additive_e_code"`
	AdditiveName         flexString `json:"additive_name"`
	AdditiveSynonyms     flexString `json:"additive_synonyms"`
	AdditiveIsAGroup     flexBool   `json:"additive_is_a_group"`
	MemberOfGroups       flexString `json:"member_of_groups"`
	FipURL               flexString `json:"fip_url"`
	FoodCategory         flexString `json:"food_category"`
	RestrictionType      flexString `json:"restriction_type"`
	RestrictionValue     flexFloat  `json:"restriction_value"`
	RestrictionUnit      flexString `json:"restriction_unit"`
	RestrictionComment   flexString `json:"restriction_comment"`
	LegislationReference flexString `json:"legislation_reference"`
}

type flavouringRow struct {
	PolicyItemCode       flexString `json:"policy_item_code"`
	FoodFlavouringName   flexString `json:"food_flavouring_name"`
	FipURL               flexString `json:"fip_url"`
	FoodCategory         flexString `json:"food_category"`
	RestrictionType      flexString `json:"restriction_type"`
	RestrictionValue     flexFloat  `json:"restriction_value"`
	RestrictionUnit      flexString `json:"restriction_unit"`
	RestrictionComment   flexString `json:"restriction_comment"`
	LegislationShort     flexString `json:"legislation_short"`
	LegislationReference flexString `json:"legislation_reference"`
}

// ParseAdditives reads the additives NDJSON feed. Rows sharing a policy item
// code are folded into one record; any malformed line fails the whole parse.
func ParseAdditives(r io.Reader, fetchedAt time.Time) (*AdditiveSet, error) {
	var records []*AdditiveRecord
	byCode := make(map[string]*AdditiveRecord)

	err := scanLines(r, DatasetAdditives, func(line int, raw []byte) error {
		var row additiveRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return err
		}

		name := StripHTML(string(row.AdditiveName))
		code := strings.TrimSpace(string(row.PolicyItemCode))
		key := code
		if key == "" {
			key = "name:" + Key(name)
		}

		rec, ok := byCode[key]
		if !ok {
			rec = &AdditiveRecord{
				PolicyItemCode:       code,
				ECode:                strings.TrimSpace(string(row.AdditiveECode)),
				Name:                 name,
				Synonyms:             splitSynonyms(string(row.AdditiveSynonyms)),
				IsGroup:              bool(row.AdditiveIsAGroup),
				MemberOfGroups:       strings.TrimSpace(string(row.MemberOfGroups)),
				LegislationReference: strings.TrimSpace(string(row.LegislationReference)),
				URL:                  strings.TrimSpace(string(row.FipURL)),
			}
			byCode[key] = rec
			records = append(records, rec)
		}

		if restriction, ok := buildRestriction(row.FoodCategory, row.RestrictionType, row.RestrictionValue, row.RestrictionUnit, row.RestrictionComment); ok {
			rec.RestrictionRows = append(rec.RestrictionRows, restriction)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return NewAdditiveSet(records, fetchedAt), nil
}

// ParseFlavourings reads the flavourings NDJSON feed, folding rows by policy
// item code the same way ParseAdditives does.
func ParseFlavourings(r io.Reader, fetchedAt time.Time) (*FlavouringSet, error) {
	var records []*FlavouringRecord
	byCode := make(map[string]*FlavouringRecord)

	err := scanLines(r, DatasetFlavourings, func(line int, raw []byte) error {
		var row flavouringRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return err
		}

		name := strings.TrimSpace(string(row.FoodFlavouringName))
		code := strings.TrimSpace(string(row.PolicyItemCode))
		key := code
		if key == "" {
			key = "name:" + Key(name)
		}

		rec, ok := byCode[key]
		if !ok {
			rec = &FlavouringRecord{
				PolicyItemCode:       code,
				Name:                 name,
				LegislationShort:     strings.TrimSpace(string(row.LegislationShort)),
				LegislationReference: strings.TrimSpace(string(row.LegislationReference)),
				URL:                  strings.TrimSpace(string(row.FipURL)),
			}
			byCode[key] = rec
			records = append(records, rec)
		}

		if category := strings.TrimSpace(string(row.FoodCategory)); category != "" {
			rec.FoodCategories = appendUnique(rec.FoodCategories, category)
		}
		if restriction, ok := buildRestriction(row.FoodCategory, row.RestrictionType, row.RestrictionValue, row.RestrictionUnit, row.RestrictionComment); ok && restriction.Kind != KindUnrestricted {
			rec.RestrictionRows = append(rec.RestrictionRows, restriction)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return NewFlavouringSet(records, fetchedAt), nil
}

// scanLines calls fn for every non-blank line. JSON failures are reported as
// *ParseError; read failures are returned as is.
func scanLines(r io.Reader, dataset Dataset, fn func(line int, raw []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if err := fn(line, raw); err != nil {
			return &ParseError{Dataset: dataset, Line: line, Err: err}
		}
	}
	return scanner.Err()
}

func buildRestriction(category, restrictionType flexString, value flexFloat, unit, comment flexString) (Restriction, bool) {
	r := Restriction{
		FoodCategory: strings.TrimSpace(string(category)),
		Type:         strings.TrimSpace(string(restrictionType)),
		Value:        value.ptr(),
		Comment:      strings.TrimSpace(string(comment)),
	}
	if u := strings.TrimSpace(string(unit)); u != "" {
		r.Unit = &u
	}
	if r.FoodCategory == "" && r.Type == "" && r.Value == nil && r.Comment == "" {
		return Restriction{}, false
	}
	r.Kind = classify(r.Type, r.Value)
	return r, true
}

func splitSynonyms(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	synonyms := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			synonyms = append(synonyms, part)
		}
	}
	return synonyms
}

func appendUnique(values []string, value string) []string {
	for _, existing := range values {
		if existing == value {
			return values
		}
	}
	return append(values, value)
}

// StripHTML removes markup from s, decodes entities and collapses whitespace.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}

	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(tokenizer.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			// Separate adjacent block contents such as "<p>a</p><p>b</p>".
			b.WriteByte(' ')
		}
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// flexString accepts a JSON string, number, boolean, null, or array of strings
// (joined with "; ").
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
	case '[':
		var items []flexString
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if v := strings.TrimSpace(string(item)); v != "" {
				parts = append(parts, v)
			}
		}
		*s = flexString(strings.Join(parts, "; "))
	case '{':
		return fmt.Errorf("unexpected object for string field")
	default:
		*s = flexString(string(data))
	}
	return nil
}

// flexFloat accepts a JSON number, a numeric string (comma decimals allowed)
// or null. Non-numeric strings decode as absent.
type flexFloat struct {
	value float64
	valid bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*f = flexFloat{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		v = strings.ReplaceAll(strings.TrimSpace(v), ",", ".")
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*f = flexFloat{value: parsed, valid: true}
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat{value: v, valid: true}
	return nil
}

func (f flexFloat) ptr() *float64 {
	if !f.valid {
		return nil
	}
	v := f.value
	return &v
}

// flexBool accepts booleans, "yes"/"no" style strings, numbers and null.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case bool:
		*b = flexBool(v)
	case float64:
		*b = v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "y", "true", "1":
			*b = true
		default:
			*b = false
		}
	default:
		*b = false
	}
	return nil
}
