package pages

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"

	"formulary/internal/compliance"
)

// FormatReportDate renders the supplied time using a report-friendly layout.
func FormatReportDate(v time.Time) string {
	if v.IsZero() {
		return ""
	}
	return v.UTC().Format("02 Jan 2006 15:04 MST")
}

// FormatPPM renders a ppm amount without trailing zeros.
func FormatPPM(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64) + " ppm"
}

// SeverityClass maps an issue severity to its badge class.
func SeverityClass(severity compliance.Severity) string {
	switch severity {
	case compliance.SeverityError:
		return "badge badge-error"
	case compliance.SeverityWarning:
		return "badge badge-warning"
	default:
		return "badge badge-info"
	}
}

// VerdictLabel is the headline shown above the issue list.
func VerdictLabel(result *compliance.Result) string {
	if result.IsCompliant {
		return "Compliant with EU additive and flavouring rules"
	}
	return "Not compliant with EU additive and flavouring rules"
}

// ComplianceReport renders a compliance result as an HTML fragment.
func ComplianceReport(result *compliance.Result) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if result == nil {
			_, err := io.WriteString(w, `<section class="compliance-report"><p>No compliance result available.</p></section>`)
			return err
		}

		var b strings.Builder
		verdict := "compliant"
		if !result.IsCompliant {
			verdict = "non-compliant"
		}

		fmt.Fprintf(&b, `<section class="compliance-report %s" data-check-id="%s">`, verdict, templ.EscapeString(result.CheckID))
		fmt.Fprintf(&b, `<header><h2>%s</h2><p class="verdict">%s</p>`, templ.EscapeString(result.FormulationName), templ.EscapeString(VerdictLabel(result)))
		fmt.Fprintf(&b, `<p class="checked-at">Checked %s</p></header>`, templ.EscapeString(FormatReportDate(result.CheckedAt)))

		s := result.Summary
		fmt.Fprintf(&b, `<dl class="summary"><dt>Substances</dt><dd>%d</dd><dt>Errors</dt><dd>%d</dd><dt>Warnings</dt><dd>%d</dd><dt>Not found</dt><dd>%d</dd><dt>Approved</dt><dd>%d</dd></dl>`,
			result.TotalSubstances, s.Errors, s.Warnings, s.NotFound, s.Approved)

		if len(result.Issues) == 0 {
			b.WriteString(`<p class="empty">No issues found.</p>`)
		} else {
			b.WriteString(`<table class="issues"><thead><tr><th>Severity</th><th>Substance</th><th>Finding</th><th>Used</th><th>Limit</th><th>Categories</th></tr></thead><tbody>`)
			for _, issue := range result.Issues {
				writeIssueRow(&b, issue)
			}
			b.WriteString(`</tbody></table>`)
		}
		b.WriteString(`</section>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

func writeIssueRow(b *strings.Builder, issue compliance.Issue) {
	var used, limit, categories string
	if d := issue.Details; d != nil {
		if d.UsedPPM != nil {
			used = FormatPPM(d.UsedPPM)
		}
		if d.MaxPPM != nil {
			limit = FormatPPM(d.MaxPPM)
		}
		categories = strings.Join(d.FoodCategory, ", ")
	}

	message := templ.EscapeString(issue.Message)
	if issue.ReferenceURL != "" {
		message += fmt.Sprintf(` <a href="%s" rel="noopener" target="_blank">EU reference</a>`, templ.EscapeString(issue.ReferenceURL))
	}

	fmt.Fprintf(b, `<tr><td><span class="%s">%s</span></td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
		SeverityClass(issue.Severity),
		templ.EscapeString(string(issue.Severity)),
		templ.EscapeString(issue.SubstanceName),
		message,
		templ.EscapeString(used),
		templ.EscapeString(limit),
		templ.EscapeString(categories),
	)
}
