package compliance

import "time"

// Severity ranks an issue. Only SeverityError makes a formulation non-compliant.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// IssueType describes what an issue is about.
type IssueType string

const (
	IssueNotFound            IssueType = "not_found"
	IssueRestricted          IssueType = "restricted"
	IssueExceedsLimit        IssueType = "exceeds_limit"
	IssueCategoryRestriction IssueType = "category_restriction"
)

// CategoryLimit is one exceeded food category with its own limit.
type CategoryLimit struct {
	FoodCategory string  `json:"foodCategory"`
	MaxPPM       float64 `json:"maxPpm"`
	Restriction  string  `json:"restriction,omitempty"`
}

// IssueDetails carries the numbers and categories behind an issue.
type IssueDetails struct {
	UsedPPM      *float64        `json:"usedPpm,omitempty"`
	MaxPPM       *float64        `json:"maxPpm,omitempty"`
	Restriction  string          `json:"restriction,omitempty"`
	FoodCategory []string        `json:"foodCategory,omitempty"`
	Limits       []CategoryLimit `json:"limits,omitempty"`
}

// Issue is one finding for one substance.
type Issue struct {
	SubstanceID   uint          `json:"substanceId"`
	SubstanceName string        `json:"substanceName"`
	Severity      Severity      `json:"severity"`
	Type          IssueType     `json:"type"`
	Message       string        `json:"message"`
	Details       *IssueDetails `json:"details,omitempty"`
	ReferenceURL  string        `json:"referenceUrl,omitempty"`
}

// Summary counts issues and ingredient outcomes.
type Summary struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	NotFound int `json:"notFound"`
	Approved int `json:"approved"`
}

// Result is the compliance report for one formulation.
type Result struct {
	CheckID         string    `json:"checkId"`
	FormulationID   uint      `json:"formulationId"`
	FormulationName string    `json:"formulationName"`
	IsCompliant     bool      `json:"isCompliant"`
	CheckedAt       time.Time `json:"checkedAt"`
	TotalSubstances int       `json:"totalSubstances"`
	Issues          []Issue   `json:"issues"`
	Summary         Summary   `json:"summary"`
}

// IssuesFor returns the issues raised for one substance.
func (r *Result) IssuesFor(substanceID uint) []Issue {
	var issues []Issue
	for _, issue := range r.Issues {
		if issue.SubstanceID == substanceID {
			issues = append(issues, issue)
		}
	}
	return issues
}
