// Package resolver matches local substance names against the EU additive and
// flavouring datasets.
package resolver

import (
	"context"

	"formulary/internal/eu"
)

// DatasetSource supplies the reference datasets. *eu.Store satisfies it.
type DatasetSource interface {
	Additives(ctx context.Context) (*eu.AdditiveSet, error)
	Flavourings(ctx context.Context) (*eu.FlavouringSet, error)
}

// Match is the outcome of resolving one substance.
type Match struct {
	Reference    eu.Reference
	MatchedName  string
	MatchedBy    MatchKind
	IsRestricted bool
	Restrictions []eu.Restriction
	DetailsURL   string
}

// Found reports whether a reference record was matched.
func (m Match) Found() bool { return m.Reference != nil }

// MatchKind records which lookup produced a match.
type MatchKind string

const (
	MatchNone            MatchKind = ""
	MatchAdditiveName    MatchKind = "additive_name"
	MatchAdditiveSynonym MatchKind = "additive_synonym"
	MatchFlavouringName  MatchKind = "flavouring_name"
)

// Resolver looks names up by exact, case-insensitive comparison. There is no
// fuzzy matching; the first hit wins.
type Resolver struct {
	source DatasetSource
}

func New(source DatasetSource) *Resolver {
	return &Resolver{source: source}
}

// Resolve tries name and then each of altNames in order. For every candidate
// the additive names are checked first, then additive synonyms, then
// flavouring names. Dataset failures are returned to the caller.
func (r *Resolver) Resolve(ctx context.Context, name string, altNames []string) (Match, error) {
	additives, err := r.source.Additives(ctx)
	if err != nil {
		return Match{}, err
	}
	flavourings, err := r.source.Flavourings(ctx)
	if err != nil {
		return Match{}, err
	}

	candidates := make([]string, 0, len(altNames)+1)
	candidates = append(candidates, name)
	candidates = append(candidates, altNames...)

	for _, candidate := range candidates {
		key := eu.Key(candidate)
		if key == "" {
			continue
		}
		if rec, ok := additives.ByName(key); ok {
			return newMatch(rec, candidate, MatchAdditiveName), nil
		}
		if rec, ok := additives.BySynonym(key); ok {
			return newMatch(rec, candidate, MatchAdditiveSynonym), nil
		}
		if rec, ok := flavourings.ByName(key); ok {
			return newMatch(rec, candidate, MatchFlavouringName), nil
		}
	}

	return Match{}, nil
}

func newMatch(ref eu.Reference, candidate string, kind MatchKind) Match {
	return Match{
		Reference:    ref,
		MatchedName:  candidate,
		MatchedBy:    kind,
		IsRestricted: ref.IsRestricted(),
		Restrictions: ref.Restrictions(),
		DetailsURL:   ref.DetailsURL(),
	}
}
