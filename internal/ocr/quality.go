package ocr

import (
	"regexp"
	"strings"
	"unicode"
)

// QualityLevel buckets a quality score for logs and the job view.
type QualityLevel string

const (
	QualityExcellent  QualityLevel = "excellent"
	QualityGood       QualityLevel = "good"
	QualityAcceptable QualityLevel = "acceptable"
	QualityPoor       QualityLevel = "poor"
	QualityFailed     QualityLevel = "failed"
)

func LevelFor(q float64) QualityLevel {
	switch {
	case q >= 0.85:
		return QualityExcellent
	case q >= 0.7:
		return QualityGood
	case q >= 0.5:
		return QualityAcceptable
	case q > 0:
		return QualityPoor
	}
	return QualityFailed
}

var (
	reDate    = regexp.MustCompile(`\b\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}\b|\b(19|20)\d{2}-\d{2}-\d{2}\b|\b\d{1,2}(st|nd|rd|th)?\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(19|20)\d{2}\b`)
	reCertRef = regexp.MustCompile(`\b(cert(ificate)?|ref(erence)?|report|serial|job)\s*(no\.?|number|#)?\s*[:#]?\s*[a-z]{0,4}[\-/]?\d[a-z0-9/\-]{2,}\b`)
)

var domainKeywords = []string{
	"certificate", "inspection", "assessment", "landlord", "compliance",
	"fire", "gas safe", "gas safety", "electrical", "eicr", "asbestos",
	"legionella", "lift", "emergency lighting", "insurance", "lease",
	"section 20", "service charge", "survey", "minutes", "invoice",
}

func hasDatePattern(s string) bool    { return reDate.MatchString(s) }
func hasCertRefPattern(s string) bool { return reCertRef.MatchString(s) }

func hasDomainKeyword(s string) bool {
	for _, kw := range domainKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// alnumRatio is the share of letters and digits among non-space runes.
func alnumRatio(s string) float64 {
	var alnum, total int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(alnum) / float64(total)
}

// heuristicConfidence scores decoded text by the artifacts compliance documents usually carry.
func heuristicConfidence(txt string) float64 {
	if strings.TrimSpace(txt) == "" {
		return 0
	}
	txtL := strings.ToLower(txt)
	score := 0.2
	if hasDatePattern(txtL) {
		score += 0.2
	}
	if hasCertRefPattern(txtL) {
		score += 0.15
	}
	if hasDomainKeyword(txtL) {
		score += 0.15
	}
	if len(txt) > 120 {
		score += 0.1
	}
	if alnumRatio(txt) >= 0.6 {
		score += 0.2
	}
	return clamp01(score)
}

// Quality blends a provider-reported confidence with the text heuristic.
// Without a provider confidence the heuristic stands alone.
func Quality(text string, providerConfidence float64) float64 {
	h := heuristicConfidence(text)
	if h == 0 {
		return 0
	}
	if providerConfidence < 0 {
		return h
	}
	return clamp01(0.7*clamp01(providerConfidence) + 0.3*h)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
