// Package compliance checks a formulation's ingredients against the EU
// additive and flavouring restrictions and produces a severity-ranked report.
package compliance

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"formulary/internal/eu"
	"formulary/internal/formulations"
	applog "formulary/internal/log"
	"formulary/internal/metrics"
	"formulary/internal/resolver"
	"formulary/internal/units"
)

const (
	maxNamedCategories = 3
	unnamedCategory    = "Unspecified food category"
)

// Repository is the persistence collaborator. *formulations.Repository
// satisfies it and returns formulations.ErrNotFound for unknown ids.
type Repository interface {
	FormulationByID(ctx context.Context, id uint) (formulations.Formulation, error)
	IngredientsForFormulation(ctx context.Context, id uint) ([]formulations.Ingredient, error)
}

// Resolver matches a substance name and its alternatives to an EU record.
type Resolver interface {
	Resolve(ctx context.Context, name string, altNames []string) (resolver.Match, error)
}

// Evaluator runs compliance checks.
type Evaluator struct {
	repo     Repository
	resolver Resolver
	now      func() time.Time
	newID    func() string
	metrics  *metrics.Metrics
}

// Option customises an Evaluator.
type Option func(*Evaluator)

// WithClock sets the clock used for Result.CheckedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator sets the generator used for Result.CheckID.
func WithIDGenerator(fn func() string) Option {
	return func(e *Evaluator) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithMetrics records check outcomes and issues.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

func NewEvaluator(repo Repository, res Resolver, opts ...Option) *Evaluator {
	e := &Evaluator{
		repo:     repo,
		resolver: res,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckCompliance evaluates every ingredient of the formulation. Unknown
// formulations and reference data failures are returned as errors and no
// partial result is produced.
func (e *Evaluator) CheckCompliance(ctx context.Context, formulaID uint) (*Result, error) {
	started := time.Now()
	checkID := e.newID()
	ctx = applog.WithAttrs(ctx, "checkID", checkID, "formulaID", formulaID)

	result, err := e.check(ctx, formulaID, checkID)
	if err != nil {
		e.metrics.ObserveCheck(metrics.CheckFailed, time.Since(started))
		applog.Error(ctx, "compliance check failed", "error", err)
		return nil, err
	}

	outcome := metrics.CheckCompliant
	if !result.IsCompliant {
		outcome = metrics.CheckNonCompliant
	}
	e.metrics.ObserveCheck(outcome, time.Since(started))
	for _, issue := range result.Issues {
		e.metrics.Issue(string(issue.Severity), string(issue.Type))
	}

	applog.Info(ctx, "compliance check completed",
		"compliant", result.IsCompliant,
		"substances", result.TotalSubstances,
		"errors", result.Summary.Errors,
		"warnings", result.Summary.Warnings,
		"notFound", result.Summary.NotFound,
	)
	return result, nil
}

func (e *Evaluator) check(ctx context.Context, formulaID uint, checkID string) (*Result, error) {
	formulation, err := e.repo.FormulationByID(ctx, formulaID)
	if err != nil {
		return nil, err
	}

	ingredients, err := e.repo.IngredientsForFormulation(ctx, formulaID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		CheckID:         checkID,
		FormulationID:   formulation.ID,
		FormulationName: formulation.Name,
		TotalSubstances: len(ingredients),
		Issues:          []Issue{},
	}

	for _, ingredient := range ingredients {
		match, err := e.resolver.Resolve(ctx, ingredient.CommonName, ingredient.AlternativeNames)
		if err != nil {
			return nil, err
		}

		switch {
		case !match.Found():
			result.Summary.NotFound++
			result.Issues = append(result.Issues, notFoundIssue(ingredient))
		case !match.IsRestricted:
			result.Summary.Approved++
			applog.Debug(ctx, "substance approved", "substance", ingredient.CommonName, "dataset", match.Reference.Dataset(), "code", match.Reference.Code())
		default:
			result.Issues = append(result.Issues, restrictionIssues(ingredient, match)...)
		}
	}

	sort.SliceStable(result.Issues, func(i, j int) bool {
		return result.Issues[i].Severity.rank() < result.Issues[j].Severity.rank()
	})

	for _, issue := range result.Issues {
		switch issue.Severity {
		case SeverityError:
			result.Summary.Errors++
		case SeverityWarning:
			result.Summary.Warnings++
		}
	}
	result.IsCompliant = result.Summary.Errors == 0
	result.CheckedAt = e.now().UTC()

	return result, nil
}

func notFoundIssue(ingredient formulations.Ingredient) Issue {
	name := substanceName(ingredient)
	return Issue{
		SubstanceID:   ingredient.SubstanceID,
		SubstanceName: name,
		Severity:      SeverityWarning,
		Type:          IssueNotFound,
		Message:       fmt.Sprintf("%s was not found in the EU food additives or flavourings databases; its regulatory status could not be determined.", name),
	}
}

// restrictionIssues buckets the restrictions of a restricted match by
// outcome and emits at most one issue per bucket.
func restrictionIssues(ingredient formulations.Ingredient, match resolver.Match) []Issue {
	usedPPM, usedKnown := units.ToPPM(ingredient.Concentration, ingredient.Unit)

	var (
		exceeded        exceededBucket
		within          categoryBucket
		qualitative     categoryBucket
		unverified      categoryBucket
		qualitativeRule string
	)

	for _, restriction := range match.Restrictions {
		category := strings.TrimSpace(restriction.FoodCategory)
		if category == "" {
			category = unnamedCategory
		}

		switch restriction.Kind {
		case eu.KindQuantitative:
			if !usedKnown {
				unverified.add(category)
				continue
			}
			limit := restrictionPPM(restriction)
			if usedPPM > limit {
				exceeded.add(category, limit, restriction.Describe())
			} else {
				within.add(category)
			}
		case eu.KindQualitative:
			if qualitativeRule == "" {
				qualitativeRule = restriction.Describe()
			}
			qualitative.add(category)
		}
	}

	name := substanceName(ingredient)
	base := Issue{
		SubstanceID:   ingredient.SubstanceID,
		SubstanceName: name,
		ReferenceURL:  match.DetailsURL,
	}

	var issues []Issue

	if len(exceeded.limits) > 0 {
		binding := exceeded.mostBinding()
		used := usedPPM
		maxPPM := binding.MaxPPM
		issue := base
		issue.Severity = SeverityError
		issue.Type = IssueExceedsLimit
		issue.Message = fmt.Sprintf("%s is used at %s ppm, above the EU limit of %s ppm in %d food %s.",
			name, formatPPM(used), formatPPM(maxPPM), len(exceeded.limits), plural(len(exceeded.limits), "category", "categories"))
		issue.Details = &IssueDetails{
			UsedPPM:      &used,
			MaxPPM:       &maxPPM,
			Restriction:  binding.Restriction,
			FoodCategory: exceeded.categories(),
			Limits:       exceeded.limits,
		}
		issues = append(issues, issue)
	}

	if len(within.names) > 0 {
		used := usedPPM
		issue := base
		issue.Severity = SeverityInfo
		issue.Type = IssueRestricted
		issue.Message = fmt.Sprintf("%s is restricted but within limits in %s.", name, summarizeCategories(within.names))
		issue.Details = &IssueDetails{
			UsedPPM:      &used,
			FoodCategory: within.names,
		}
		issues = append(issues, issue)
	}

	if len(qualitative.names) > 0 {
		issue := base
		issue.Severity = SeverityWarning
		issue.Type = IssueCategoryRestriction
		issue.Message = fmt.Sprintf("%s is subject to qualitative EU restrictions in %s.", name, summarizeCategories(qualitative.names))
		issue.Details = &IssueDetails{
			Restriction:  qualitativeRule,
			FoodCategory: qualitative.names,
		}
		issues = append(issues, issue)
	}

	if len(unverified.names) > 0 {
		issue := base
		issue.Severity = SeverityWarning
		issue.Type = IssueRestricted
		issue.Message = fmt.Sprintf("%s has EU maximum levels in %s but no concentration is declared, so the limits could not be verified.", name, summarizeCategories(unverified.names))
		issue.Details = &IssueDetails{
			FoodCategory: unverified.names,
		}
		issues = append(issues, issue)
	}

	return issues
}

// restrictionPPM converts a quantitative restriction to ppm. EU maximum levels
// without a unit are expressed in mg/kg.
func restrictionPPM(r eu.Restriction) float64 {
	unit := r.Unit
	if unit == nil {
		mgPerKg := units.MgPerKg.String()
		unit = &mgPerKg
	}
	limit, _ := units.ToPPM(r.Value, unit)
	return limit
}

type categoryBucket struct {
	names []string
	seen  map[string]struct{}
}

func (b *categoryBucket) add(name string) {
	if b.seen == nil {
		b.seen = make(map[string]struct{})
	}
	if _, ok := b.seen[name]; ok {
		return
	}
	b.seen[name] = struct{}{}
	b.names = append(b.names, name)
}

// exceededBucket keeps the lowest exceeded limit per category.
type exceededBucket struct {
	limits []CategoryLimit
	index  map[string]int
}

func (b *exceededBucket) add(category string, limit float64, rule string) {
	if b.index == nil {
		b.index = make(map[string]int)
	}
	if i, ok := b.index[category]; ok {
		if limit < b.limits[i].MaxPPM {
			b.limits[i].MaxPPM = limit
			b.limits[i].Restriction = rule
		}
		return
	}
	b.index[category] = len(b.limits)
	b.limits = append(b.limits, CategoryLimit{FoodCategory: category, MaxPPM: limit, Restriction: rule})
}

func (b *exceededBucket) mostBinding() CategoryLimit {
	binding := b.limits[0]
	for _, l := range b.limits[1:] {
		if l.MaxPPM < binding.MaxPPM {
			binding = l
		}
	}
	return binding
}

func (b *exceededBucket) categories() []string {
	names := make([]string, len(b.limits))
	for i, l := range b.limits {
		names[i] = l.FoodCategory
	}
	return names
}

func summarizeCategories(names []string) string {
	if len(names) <= maxNamedCategories {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(names[:maxNamedCategories], ", "), len(names)-maxNamedCategories)
}

func substanceName(ingredient formulations.Ingredient) string {
	if name := strings.TrimSpace(ingredient.CommonName); name != "" {
		return name
	}
	return fmt.Sprintf("Substance #%d", ingredient.SubstanceID)
}

func formatPPM(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
