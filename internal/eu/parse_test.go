package eu

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const additivesFixture = `{"policy_item_code":"POL-FAD-IMPORT-3001","additive_e_code":"E 102","additive_name":"<p>E 102 <b>Tartrazine</b></p>","additive_synonyms":"FD&C Yellow 5; CI 19140","additive_is_a_group":"No","member_of_groups":"Group IV","fip_url":"https://food.ec.europa.eu/fa/3001","food_category":"Non-alcoholic flavoured drinks","restriction_type":"Maximum level","restriction_value":100,"restriction_unit":"mg/kg","restriction_comment":null,"legislation_reference":"Regulation (EC) No 1333/2008"}

{"policy_item_code":"POL-FAD-IMPORT-3001","additive_e_code":"E 102","additive_name":"<p>E 102 <b>Tartrazine</b></p>","additive_synonyms":"FD&C Yellow 5; CI 19140","additive_is_a_group":"No","food_category":"Edible ices","restriction_type":"Maximum level","restriction_value":"150","restriction_unit":"mg/kg","restriction_comment":"only for fruit ices","legislation_reference":"Regulation (EC) No 1333/2008"}
{"policy_item_code":"POL-FAD-IMPORT-3002","additive_e_code":"E 330","additive_name":"E 330 Citric acid","additive_synonyms":null,"additive_is_a_group":false,"food_category":"All categories","restriction_type":"quantum satis","restriction_value":null,"restriction_unit":null,"legislation_reference":"Regulation (EC) No 1333/2008"}
{"policy_item_code":"POL-FAD-IMPORT-3003","additive_e_code":"E 950","additive_name":"E 950 Acesulfame K","additive_synonyms":"Acesulfame potassium","additive_is_a_group":"Yes","food_category":"Table-top sweeteners","restriction_type":"only energy-reduced products","restriction_value":"","restriction_unit":"","legislation_reference":"Regulation (EC) No 1333/2008"}
`

const flavouringsFixture = `{"policy_item_code":"POL-FFL-IMPORT-1","food_flavouring_name":"Vanillin","fip_url":"https://food.ec.europa.eu/fl/1","food_category":null,"restriction_type":null,"restriction_value":null,"restriction_unit":null,"restriction_comment":null,"legislation_short":"Reg 872/2012","legislation_reference":"Commission Implementing Regulation (EU) No 872/2012"}
{"policy_item_code":"POL-FFL-IMPORT-2","food_flavouring_name":"Linalool","fip_url":"https://food.ec.europa.eu/fl/2","legislation_short":"Reg 872/2012"}
{"policy_item_code":"POL-FFL-IMPORT-3","food_flavouring_name":"Quinine hydrochloride","food_category":"Non-alcoholic beverages","restriction_type":"Maximum level","restriction_value":100,"restriction_unit":"mg/kg","legislation_short":"Reg 1334/2008"}
`

func TestParseAdditivesFoldsRowsByCode(t *testing.T) {
	t.Parallel()

	fetchedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	set, err := ParseAdditives(strings.NewReader(additivesFixture), fetchedAt)
	if err != nil {
		t.Fatalf("ParseAdditives returned error: %v", err)
	}
	if set.Len() != 3 {
		t.Fatalf("expected 3 additives, got %d", set.Len())
	}
	if !set.FetchedAt().Equal(fetchedAt) {
		t.Fatalf("FetchedAt = %v, want %v", set.FetchedAt(), fetchedAt)
	}

	tartrazine := set.Records[0]
	if tartrazine.Name != "E 102 Tartrazine" {
		t.Fatalf("expected HTML stripped name, got %q", tartrazine.Name)
	}
	if len(tartrazine.Synonyms) != 2 || tartrazine.Synonyms[0] != "FD&C Yellow 5" || tartrazine.Synonyms[1] != "CI 19140" {
		t.Fatalf("unexpected synonyms %#v", tartrazine.Synonyms)
	}
	if len(tartrazine.RestrictionRows) != 2 {
		t.Fatalf("expected 2 restriction rows, got %d", len(tartrazine.RestrictionRows))
	}
	second := tartrazine.RestrictionRows[1]
	if second.Kind != KindQuantitative || second.Value == nil || *second.Value != 150 {
		t.Fatalf("expected numeric string restriction value 150, got %#v", second)
	}
	if second.Comment != "only for fruit ices" {
		t.Fatalf("unexpected comment %q", second.Comment)
	}
	if !tartrazine.IsRestricted() {
		t.Fatal("expected tartrazine to be restricted")
	}

	citric := set.Records[1]
	if citric.IsRestricted() {
		t.Fatal("expected quantum satis additive to be unrestricted")
	}
	if citric.RestrictionRows[0].Kind != KindQuantumSatis {
		t.Fatalf("expected quantum satis kind, got %s", citric.RestrictionRows[0].Kind)
	}

	acesulfame := set.Records[2]
	if !acesulfame.IsGroup {
		t.Fatal("expected \"Yes\" to decode as group membership")
	}
	if acesulfame.RestrictionRows[0].Kind != KindQualitative {
		t.Fatalf("expected qualitative kind, got %s", acesulfame.RestrictionRows[0].Kind)
	}
	if acesulfame.RestrictionRows[0].Unit != nil {
		t.Fatal("expected blank unit to be absent")
	}

	if rec, ok := set.ByName(Key(" e 102 TARTRAZINE ")); !ok || rec != tartrazine {
		t.Fatal("expected case-insensitive name index hit")
	}
	if rec, ok := set.BySynonym(Key("ci 19140")); !ok || rec != tartrazine {
		t.Fatal("expected synonym index hit")
	}
}

func TestParseFlavouringsTreatsMissingRestrictionAsApproved(t *testing.T) {
	t.Parallel()

	set, err := ParseFlavourings(strings.NewReader(flavouringsFixture), time.Now())
	if err != nil {
		t.Fatalf("ParseFlavourings returned error: %v", err)
	}
	if set.Len() != 3 {
		t.Fatalf("expected 3 flavourings, got %d", set.Len())
	}

	vanillin, ok := set.ByName(Key("VANILLIN"))
	if !ok {
		t.Fatal("expected vanillin in index")
	}
	if vanillin.IsRestricted() || len(vanillin.Restrictions()) != 0 {
		t.Fatalf("expected vanillin to be unrestricted, got %#v", vanillin.Restrictions())
	}
	if vanillin.DetailsURL() != "https://food.ec.europa.eu/fl/1" {
		t.Fatalf("unexpected details url %q", vanillin.DetailsURL())
	}

	quinine, _ := set.ByName(Key("quinine hydrochloride"))
	if quinine == nil || !quinine.IsRestricted() {
		t.Fatal("expected quinine to be restricted")
	}
	if quinine.Dataset() != DatasetFlavourings {
		t.Fatalf("unexpected dataset %s", quinine.Dataset())
	}
}

func TestParseRejectsMalformedLine(t *testing.T) {
	t.Parallel()

	body := flavouringsFixture + "{not json}\n"
	set, err := ParseFlavourings(strings.NewReader(body), time.Now())
	if err == nil {
		t.Fatal("expected parse error")
	}
	if set != nil {
		t.Fatal("expected no partial dataset")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if parseErr.Line != 4 || parseErr.Dataset != DatasetFlavourings {
		t.Fatalf("unexpected parse error details %+v", parseErr)
	}
	if !errors.Is(err, ErrParse) {
		t.Fatal("expected errors.Is(err, ErrParse)")
	}
}

func TestParseRejectsObjectForStringField(t *testing.T) {
	t.Parallel()

	_, err := ParseAdditives(strings.NewReader(`{"policy_item_code":"X","additive_name":{"nested":true}}`), time.Now())
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Plain name":                        "Plain name",
		"  spaced   out ":                   "spaced out",
		"<span>E 160a</span> (iv)":          "E 160a (iv)",
		"<p>Caf&eacute; extract</p>":        "Café extract",
		"<p>Riboflavin</p><p>E 101</p>":     "Riboflavin E 101",
		"Sodium &amp; potassium <br/>salts": "Sodium & potassium salts",
		"<i></i>":                           "",
	}
	for input, want := range cases {
		if got := StripHTML(input); got != want {
			t.Fatalf("StripHTML(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestRestrictionDescribe(t *testing.T) {
	t.Parallel()

	value := 200.0
	unit := "mg/kg"
	cases := []struct {
		r    Restriction
		want string
	}{
		{Restriction{Kind: KindQuantitative, Value: &value, Unit: &unit}, "200 mg/kg"},
		{Restriction{Kind: KindQuantumSatis, Type: "quantum satis"}, "quantum satis"},
		{Restriction{Kind: KindQualitative, Type: "only in sugar-free products", Comment: "see note 3"}, "only in sugar-free products - see note 3"},
	}
	for _, tt := range cases {
		if got := tt.r.Describe(); got != tt.want {
			t.Fatalf("Describe() = %q, want %q", got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	value := 1.0
	cases := []struct {
		kindType string
		value    *float64
		want     RestrictionKind
	}{
		{"", nil, KindUnrestricted},
		{"  Quantum Satis ", nil, KindQuantumSatis},
		{"Maximum level", nil, KindQualitative},
		{"Maximum level", &value, KindQuantitative},
		{"", &value, KindQuantitative},
	}
	for _, tt := range cases {
		if got := classify(tt.kindType, tt.value); got != tt.want {
			t.Fatalf("classify(%q, %v) = %s, want %s", tt.kindType, tt.value, got, tt.want)
		}
	}
}
