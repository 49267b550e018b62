package extraction

import (
	"strconv"
	"strings"

	"github.com/joseph-ayodele/docintake/constants"
)

// BuildSystemPrompt is shared by every LLM-backed extractor.
func BuildSystemPrompt() string {
	parts := []string{
		"You are a document analyst for a UK leasehold block management platform. Use British English.",
		"Return ONLY a JSON object that matches the provided JSON Schema. Do not wrap it in markdown.",
		"classification MUST be exactly one of: " + strings.Join(constants.ClassificationStrings(), ", ") + ". If uncertain, use 'other'.",
		"suggested_category MUST be exactly one of: " + strings.Join(constants.StorageCategoryStrings(), ", ") + ".",
		"Use ISO-8601 dates (YYYY-MM-DD). Use null for any date, name or reference that is not printed in the document. Never guess.",
		"inspection_or_issue_date is the date the inspection was carried out or the document issued.",
		"period_covered_end_date is an explicit expiry, valid-until or next-inspection-due date printed on the document.",
		"suggested_compliance_asset names the recurring compliance obligation this document evidences (e.g. 'Fire Risk Assessment', 'EICR', 'Gas Safety Certificate'), or null.",
		"standard_references lists cited standards such as 'BS 7671:2018' or 'BS EN 50172'.",
		"blocking_issues lists problems that stop the document being relied on (e.g. unsatisfactory result, missing signature).",
		"follow_ups lists concrete actions for the property manager.",
		"confidence is your confidence in the classification between 0 and 1.",
		"Leave reminders empty; they are computed downstream.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the filename and the windowed text.
func BuildUserPrompt(req Request) string {
	var b strings.Builder
	if f := strings.TrimSpace(req.Filename); f != "" {
		b.WriteString("Filename: ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	if req.PageCount > 0 {
		b.WriteString("Pages: ")
		b.WriteString(strconv.Itoa(req.PageCount))
		b.WriteString("\n")
	}
	b.WriteString("\nDocument text")
	if req.Truncated {
		b.WriteString(" (truncated)")
	}
	b.WriteString(":\n")
	b.WriteString(req.Text)
	return b.String()
}
