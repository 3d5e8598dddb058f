package eu

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Dataset names one of the EU reference lists.
type Dataset string

const (
	DatasetAdditives   Dataset = "additives"
	DatasetFlavourings Dataset = "flavourings"
)

// RestrictionKind classifies a restriction row.
type RestrictionKind int

const (
	// KindUnrestricted rows carry neither a restriction type nor a value.
	KindUnrestricted RestrictionKind = iota
	// KindQuantumSatis rows allow use "as much as needed".
	KindQuantumSatis
	// KindQualitative rows restrict use without a numeric ceiling.
	KindQualitative
	// KindQuantitative rows carry a numeric maximum level.
	KindQuantitative
)

const quantumSatis = "quantum satis"

func (k RestrictionKind) String() string {
	switch k {
	case KindQuantumSatis:
		return "quantum_satis"
	case KindQualitative:
		return "qualitative"
	case KindQuantitative:
		return "quantitative"
	default:
		return "unrestricted"
	}
}

// Restriction is one (food category, rule) tuple of a regulated substance.
type Restriction struct {
	FoodCategory string          `json:"food_category"`
	Type         string          `json:"type,omitempty"`
	Kind         RestrictionKind `json:"-"`
	Value        *float64        `json:"value,omitempty"`
	Unit         *string         `json:"unit,omitempty"`
	Comment      string          `json:"comment,omitempty"`
}

// Restricted reports whether the row limits use of the substance.
func (r Restriction) Restricted() bool {
	return r.Kind == KindQualitative || r.Kind == KindQuantitative
}

// Describe renders the rule as short human-readable text.
func (r Restriction) Describe() string {
	var b strings.Builder
	switch r.Kind {
	case KindQuantitative:
		b.WriteString(formatFloat(*r.Value))
		if r.Unit != nil && strings.TrimSpace(*r.Unit) != "" {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(*r.Unit))
		}
	case KindQuantumSatis:
		b.WriteString(quantumSatis)
	default:
		b.WriteString(r.Type)
	}
	if r.Comment != "" {
		if b.Len() > 0 {
			b.WriteString(" - ")
		}
		b.WriteString(r.Comment)
	}
	return strings.TrimSpace(b.String())
}

func classify(restrictionType string, value *float64) RestrictionKind {
	switch {
	case value != nil:
		return KindQuantitative
	case strings.TrimSpace(restrictionType) == "":
		return KindUnrestricted
	case strings.EqualFold(strings.TrimSpace(restrictionType), quantumSatis):
		return KindQuantumSatis
	default:
		return KindQualitative
	}
}

// Reference is a matched record from either dataset.
type Reference interface {
	Code() string
	DisplayName() string
	Dataset() Dataset
	IsRestricted() bool
	Restrictions() []Restriction
	DetailsURL() string
}

// AdditiveRecord is one food additive with its per-category restrictions.
type AdditiveRecord struct {
	PolicyItemCode       string        `json:"policy_item_code"`
	ECode                string        `json:"e_code"`
	Name                 string        `json:"name"`
	Synonyms             []string      `json:"synonyms,omitempty"`
	IsGroup              bool          `json:"is_group"`
	MemberOfGroups       string        `json:"member_of_groups,omitempty"`
	RestrictionRows      []Restriction `json:"restrictions"`
	LegislationReference string        `json:"legislation_reference,omitempty"`
	URL                  string        `json:"details_url,omitempty"`
}

func (a *AdditiveRecord) Code() string                { return a.PolicyItemCode }
func (a *AdditiveRecord) DisplayName() string         { return a.Name }
func (a *AdditiveRecord) Dataset() Dataset            { return DatasetAdditives }
func (a *AdditiveRecord) Restrictions() []Restriction { return a.RestrictionRows }
func (a *AdditiveRecord) DetailsURL() string          { return a.URL }

// IsRestricted is true unless every row is quantum satis or carries no rule.
func (a *AdditiveRecord) IsRestricted() bool {
	return anyRestricted(a.RestrictionRows)
}

// FlavouringRecord is one flavouring substance. Flavourings are approved
// without limits unless a restriction row says otherwise.
type FlavouringRecord struct {
	PolicyItemCode       string        `json:"policy_item_code"`
	Name                 string        `json:"name"`
	FoodCategories       []string      `json:"food_categories,omitempty"`
	RestrictionRows      []Restriction `json:"restrictions,omitempty"`
	LegislationShort     string        `json:"legislation_short,omitempty"`
	LegislationReference string        `json:"legislation_reference,omitempty"`
	URL                  string        `json:"details_url,omitempty"`
}

func (f *FlavouringRecord) Code() string                { return f.PolicyItemCode }
func (f *FlavouringRecord) DisplayName() string         { return f.Name }
func (f *FlavouringRecord) Dataset() Dataset            { return DatasetFlavourings }
func (f *FlavouringRecord) Restrictions() []Restriction { return f.RestrictionRows }
func (f *FlavouringRecord) DetailsURL() string          { return f.URL }
func (f *FlavouringRecord) IsRestricted() bool          { return anyRestricted(f.RestrictionRows) }

func anyRestricted(rows []Restriction) bool {
	for _, r := range rows {
		if r.Restricted() {
			return true
		}
	}
	return false
}

// Key normalises a substance name for lookups: Unicode NFC, trimmed, lower case.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(name)))
}

// AdditiveSet is an immutable snapshot of the additives dataset.
type AdditiveSet struct {
	Records   []*AdditiveRecord
	fetchedAt time.Time
	byName    map[string]*AdditiveRecord
	bySynonym map[string]*AdditiveRecord
}

// NewAdditiveSet indexes records by name and synonym. The first record
// carrying a given key wins.
func NewAdditiveSet(records []*AdditiveRecord, fetchedAt time.Time) *AdditiveSet {
	set := &AdditiveSet{
		Records:   records,
		fetchedAt: fetchedAt,
		byName:    make(map[string]*AdditiveRecord, len(records)),
		bySynonym: make(map[string]*AdditiveRecord),
	}
	for _, rec := range records {
		if key := Key(rec.Name); key != "" {
			if _, ok := set.byName[key]; !ok {
				set.byName[key] = rec
			}
		}
		for _, syn := range rec.Synonyms {
			key := Key(syn)
			if key == "" {
				continue
			}
			if _, ok := set.bySynonym[key]; !ok {
				set.bySynonym[key] = rec
			}
		}
	}
	return set
}

func (s *AdditiveSet) FetchedAt() time.Time { return s.fetchedAt }
func (s *AdditiveSet) Len() int             { return len(s.Records) }

// ByName returns the additive whose name matches key exactly.
func (s *AdditiveSet) ByName(key string) (*AdditiveRecord, bool) {
	rec, ok := s.byName[key]
	return rec, ok
}

// BySynonym returns the additive listing key among its synonyms.
func (s *AdditiveSet) BySynonym(key string) (*AdditiveRecord, bool) {
	rec, ok := s.bySynonym[key]
	return rec, ok
}

// FlavouringSet is an immutable snapshot of the flavourings dataset.
type FlavouringSet struct {
	Records   []*FlavouringRecord
	fetchedAt time.Time
	byName    map[string]*FlavouringRecord
}

// NewFlavouringSet indexes records by name; the first record wins.
func NewFlavouringSet(records []*FlavouringRecord, fetchedAt time.Time) *FlavouringSet {
	set := &FlavouringSet{
		Records:   records,
		fetchedAt: fetchedAt,
		byName:    make(map[string]*FlavouringRecord, len(records)),
	}
	for _, rec := range records {
		key := Key(rec.Name)
		if key == "" {
			continue
		}
		if _, ok := set.byName[key]; !ok {
			set.byName[key] = rec
		}
	}
	return set
}

func (s *FlavouringSet) FetchedAt() time.Time { return s.fetchedAt }
func (s *FlavouringSet) Len() int             { return len(s.Records) }

// ByName returns the flavouring whose name matches key exactly.
func (s *FlavouringSet) ByName(key string) (*FlavouringRecord, bool) {
	rec, ok := s.byName[key]
	return rec, ok
}
