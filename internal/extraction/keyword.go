package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/entity"
)

type scoring struct {
	keyword, phrase, required int
}

type structureRule struct {
	any    []string // at least one must appear
	all    []string // every one must appear
	points int
}

type documentPattern struct {
	class     constants.Classification
	keywords  []string
	phrases   []string
	required  []string
	scoring   scoring
	structure []structureRule
}

var documentPatterns = []documentPattern{
	{
		class: constants.ClassLease,
		keywords: []string{"lease", "agreement", "tenancy", "lessor", "lessee", "demise", "term", "rent", "service charge",
			"letting", "tenant", "landlord", "leasehold", "freehold", "ground rent", "premium", "demised premises",
			"commencement date", "expiry", "renewal", "forfeiture", "assignment", "underletting"},
		phrases: []string{"lease agreement", "tenancy agreement", "leasehold agreement", "letting agreement", "ground rent",
			"service charge", "demised premises", "lease term", "rent review", "break clause", "lease renewal",
			"assignment of lease", "underletting consent", "forfeiture clause"},
		scoring: scoring{keyword: 3, phrase: 6},
		structure: []structureRule{
			{any: []string{"demised premises", "property hereby demised"}, points: 5},
			{any: []string{"term of years", "lease term"}, points: 4},
			{any: []string{"rent review", "annual rent"}, points: 3},
			{any: []string{"forfeiture", "re-entry"}, points: 4},
			{all: []string{"lessor", "lessee"}, points: 5},
			{all: []string{"tenant", "landlord"}, points: 4},
			{any: []string{"ground rent", "ground rental"}, points: 4},
			{any: []string{"covenant"}, points: 2},
			{any: []string{"witnesseth", "whereas"}, points: 2},
		},
	},
	{
		class:    constants.ClassEICR,
		keywords: []string{"eicr", "electrical", "inspection", "condition", "report", "circuit", "wiring", "fuse", "consumer unit"},
		phrases:  []string{"electrical installation condition report", "periodic inspection", "electrical safety", "circuit breaker"},
		required: []string{"electrical"},
		scoring:  scoring{keyword: 2, phrase: 5, required: 10},
		structure: []structureRule{
			{any: []string{"test results", "periodic inspection"}, points: 3},
			{any: []string{"bs 7671", "bs7671", "iet wiring regulations", "iee regulations"}, points: 2},
			{any: []string{"next test due", "next inspection", "re-inspection"}, points: 2},
		},
	},
	{
		class:    constants.ClassGasSafety,
		keywords: []string{"gas", "safety", "inspection", "appliance", "flue", "boiler", "heating", "gas safe", "cp12"},
		phrases:  []string{"gas safety inspection", "gas safety certificate", "gas safety record", "cp12 certificate", "gas appliance"},
		required: []string{"gas", "safety"},
		scoring:  scoring{keyword: 2, phrase: 5, required: 10},
		structure: []structureRule{
			{any: []string{"appliance checks", "flue tests", "flue flow"}, points: 3},
			{any: []string{"gas safe engineer", "gas safe register", "cp12"}, points: 2},
			{any: []string{"next inspection", "annual"}, points: 2},
		},
	},
	{
		class:    constants.ClassFireCertificate,
		keywords: []string{"fire", "risk", "assessment", "safety", "evacuation", "alarm", "extinguisher", "escape route"},
		phrases:  []string{"fire risk assessment", "fire safety", "emergency evacuation", "fire prevention"},
		required: []string{"fire", "risk"},
		scoring:  scoring{keyword: 2, phrase: 5, required: 10},
		structure: []structureRule{
			{any: []string{"risk rating", "action plan"}, points: 3},
			{any: []string{"evacuation", "escape routes"}, points: 2},
			{any: []string{"review date", "next review"}, points: 2},
		},
	},
	{
		class:    constants.ClassMajorWorks,
		keywords: []string{"major works", "construction", "refurbishment", "renovation", "building work", "project", "contractor"},
		phrases:  []string{"major works", "building project", "construction work", "refurbishment project"},
		required: []string{"major", "works"},
		scoring:  scoring{keyword: 2, phrase: 5, required: 10},
		structure: []structureRule{
			{any: []string{"scope of works", "project timeline"}, points: 3},
			{any: []string{"contractor", "tender"}, points: 2},
			{any: []string{"budget", "cost breakdown"}, points: 2},
		},
	},
	{
		class:    constants.ClassSection20,
		keywords: []string{"section 20", "section20", "consultation", "leaseholder", "notice", "major works", "statutory"},
		phrases:  []string{"section 20 notice", "statutory consultation", "leaseholder consultation", "major works consultation", "notice of intention"},
		required: []string{"section", "20"},
		scoring:  scoring{keyword: 2, phrase: 5, required: 10},
		structure: []structureRule{
			{any: []string{"consultation stage", "leaseholder response", "observations"}, points: 3},
			{any: []string{"deadline", "response period", "relevant period"}, points: 2},
			{any: []string{"statutory", "legal requirement"}, points: 2},
		},
	},
	{
		class:    constants.ClassAsbestosSurvey,
		keywords: []string{"asbestos", "survey", "management", "inspection", "material", "risk assessment", "acm"},
		phrases:  []string{"asbestos survey", "asbestos management", "asbestos inspection", "acm survey"},
		required: []string{"asbestos"},
		scoring:  scoring{keyword: 2, phrase: 5, required: 10},
		structure: []structureRule{
			{any: []string{"acm", "asbestos containing material"}, points: 3},
			{any: []string{"management plan", "risk assessment"}, points: 2},
			{any: []string{"re-inspection", "monitoring"}, points: 2},
		},
	},
	{
		class:    constants.ClassLiftInspection,
		keywords: []string{"lift", "elevator", "inspection", "maintenance", "safety", "certificate", "thorough examination", "loler"},
		phrases:  []string{"lift inspection", "lift maintenance", "thorough examination", "lift safety certificate"},
		required: []string{"lift"},
		scoring:  scoring{keyword: 2, phrase: 5, required: 10},
		structure: []structureRule{
			{any: []string{"thorough examination", "safety certificate"}, points: 3},
			{any: []string{"maintenance", "next examination"}, points: 2},
			{any: []string{"regulations", "compliance"}, points: 2},
		},
	},
	{
		class:    constants.ClassLegionella,
		keywords: []string{"legionella", "water", "hygiene", "temperature", "tank", "cistern", "risk assessment", "l8"},
		phrases:  []string{"legionella risk assessment", "water hygiene", "water risk assessment", "acop l8"},
		required: []string{"legionella"},
		scoring:  scoring{keyword: 2, phrase: 5, required: 10},
		structure: []structureRule{
			{any: []string{"tmv", "thermostatic mixing", "dead leg"}, points: 3},
			{any: []string{"review date", "next review"}, points: 2},
		},
	},
	{
		class:    constants.ClassEmergencyLighting,
		keywords: []string{"emergency", "lighting", "luminaire", "duration test", "bs 5266", "escape"},
		phrases:  []string{"emergency lighting", "annual duration test", "emergency lighting certificate"},
		required: []string{"emergency", "lighting"},
		scoring:  scoring{keyword: 2, phrase: 5, required: 10},
		structure: []structureRule{
			{any: []string{"3 hour", "three hour", "duration test"}, points: 3},
			{any: []string{"bs 5266", "bs5266"}, points: 2},
		},
	},
	{
		class:    constants.ClassInsuranceValuation,
		keywords: []string{"insurance", "valuation", "rebuild", "cost", "sum insured", "property", "building", "assessment"},
		phrases:  []string{"insurance valuation", "rebuild cost", "reinstatement cost", "sum insured", "building insurance"},
		required: []string{"insurance", "valuation"},
		scoring:  scoring{keyword: 2, phrase: 5, required: 10},
		structure: []structureRule{
			{any: []string{"rebuild cost", "sum insured", "reinstatement"}, points: 3},
			{any: []string{"property value", "assessment"}, points: 2},
		},
	},
	{
		class:    constants.ClassInsurancePolicy,
		keywords: []string{"insurance", "policy", "schedule", "insured", "insurer", "premium", "cover", "excess"},
		phrases:  []string{"policy schedule", "certificate of insurance", "buildings insurance", "period of insurance"},
		required: []string{"insurance", "policy"},
		scoring:  scoring{keyword: 2, phrase: 5, required: 10},
		structure: []structureRule{
			{any: []string{"policy number", "policy no"}, points: 3},
			{any: []string{"renewal date", "period of insurance"}, points: 2},
		},
	},
	{
		class:    constants.ClassBuildingSurvey,
		keywords: []string{"building", "survey", "inspection", "structural", "condition", "report", "assessment", "defects"},
		phrases:  []string{"building survey", "structural survey", "building inspection", "condition report"},
		required: []string{"building", "survey"},
		scoring:  scoring{keyword: 2, phrase: 5, required: 10},
		structure: []structureRule{
			{any: []string{"structural", "condition report"}, points: 3},
			{any: []string{"defects", "recommendations"}, points: 2},
			{any: []string{"surveyor", "inspection"}, points: 2},
		},
	},
	{
		class:    constants.ClassMinutes,
		keywords: []string{"minutes", "meeting", "agm", "attendees", "apologies", "chair", "resolved", "agenda"},
		phrases:  []string{"minutes of the", "annual general meeting", "matters arising", "any other business"},
		required: []string{"minutes"},
		scoring:  scoring{keyword: 2, phrase: 5, required: 10},
	},
	{
		class:    constants.ClassServiceChargeBudget,
		keywords: []string{"budget", "service charge", "expenditure", "reserve fund", "apportionment", "year end"},
		phrases:  []string{"service charge budget", "reserve fund", "estimated expenditure"},
		required: []string{"budget"},
		scoring:  scoring{keyword: 2, phrase: 5, required: 10},
	},
	{
		class:    constants.ClassInvoice,
		keywords: []string{"invoice", "amount due", "vat", "payment terms", "total", "remittance", "bank details"},
		phrases:  []string{"invoice number", "amount due", "payment terms", "vat registration"},
		required: []string{"invoice"},
		scoring:  scoring{keyword: 2, phrase: 5, required: 10},
	},
	{
		class:    constants.ClassCorrespondence,
		keywords: []string{"dear", "yours sincerely", "yours faithfully", "regards", "letter", "re:"},
		phrases:  []string{"yours sincerely", "yours faithfully", "kind regards", "further to"},
		required: []string{"dear"},
		scoring:  scoring{keyword: 1, phrase: 3, required: 5},
	},
}

var (
	reCertNumber = regexp.MustCompile(`(?i)\b(?:certificate|cert|report|reference|ref|serial|policy)\s*(?:no\.?|number|#)\s*[:#]?\s*([A-Z0-9][A-Z0-9/\-]{3,})`)
	rePostcode   = regexp.MustCompile(`\b([A-Z]{1,2}\d[A-Z\d]?\s*\d[A-Z]{2})\b`)
	reStandard   = regexp.MustCompile(`(?i)\b(BS\s?EN\s?\d{3,5}(?:[-:]\d+)*|BS\s?\d{3,5}(?:[-:]\d+)*|EN\s?\d{3,5}(?:[-:]\d+)*)\b`)
	rePerson     = regexp.MustCompile(`(?im)^\s*(engineer|assessor|inspector|surveyor|contractor|electrician|inspected by|assessed by)(?:\s+name)?\s*[:\-]\s*([^\n,]{2,60})`)
	reCompany    = regexp.MustCompile(`\b([A-Z][\w&'.\-]*(?:[ \t]+[A-Z&][\w&'.\-]*){0,5}[ \t]+(?:Ltd|LTD|Limited|LIMITED|LLP|PLC|plc))\b`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// KeywordExtractor is the offline rules classifier. It always yields schema-shaped JSON,
// so it is the usual last entry in the extractor chain.
type KeywordExtractor struct{}

func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{}
}

func (k *KeywordExtractor) Name() string { return "keyword" }

func (k *KeywordExtractor) ExtractFields(_ context.Context, req Request) ([]byte, error) {
	res := k.Classify(req.Text, req.Filename)
	res.PageCount = req.PageCount
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("keyword: encode: %w", err)
	}
	return b, nil
}

// Classification is the outcome of the rules scorer.
type Classification struct {
	Class      constants.Classification
	Score      int
	Confidence float64
	Matched    []string
}

// Score runs the pattern table over text and filename and returns the best class.
func Score(text, filename string) Classification {
	lower := strings.ToLower(text + " " + filename)
	words := strings.Fields(lower)
	anyWord := func(needle string) bool {
		for _, w := range words {
			if strings.Contains(w, needle) {
				return true
			}
		}
		return false
	}
	// multi-word keywords cannot match a single word, so fall back to the full text
	hasKeyword := func(kw string) bool {
		if strings.Contains(kw, " ") {
			return strings.Contains(lower, kw)
		}
		return anyWord(kw)
	}

	best := Classification{Class: constants.ClassOther}
	for _, p := range documentPatterns {
		ok := true
		for _, req := range p.required {
			if !anyWord(req) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		score := 0
		var matched []string
		for _, kw := range p.keywords {
			if hasKeyword(kw) {
				score += p.scoring.keyword
				matched = append(matched, kw)
			}
		}
		for _, ph := range p.phrases {
			if strings.Contains(lower, ph) {
				score += p.scoring.phrase
				matched = append(matched, ph)
			}
		}
		if len(p.required) > 0 {
			score += p.scoring.required
		}
		for _, r := range p.structure {
			if r.matches(lower) {
				score += r.points
			}
		}

		if score > best.Score {
			best = Classification{Class: p.class, Score: score, Matched: matched}
		}
	}
	best.Confidence = clamp01(float64(best.Score) / 20)
	return best
}

func (r structureRule) matches(text string) bool {
	for _, s := range r.all {
		if !strings.Contains(text, s) {
			return false
		}
	}
	if len(r.any) == 0 {
		return len(r.all) > 0
	}
	for _, s := range r.any {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// Classify builds a full result from the rules scorer and regex field finders.
func (k *KeywordExtractor) Classify(text, filename string) entity.ExtractionResult {
	cls := Score(text, filename)
	res := entity.ExtractionResult{
		Classification:     string(cls.Class),
		Title:              guessTitle(text, filename),
		Confidence:         cls.Confidence,
		People:             findPeople(text),
		Equipment:          []entity.Equipment{},
		StandardReferences: findStandards(text),
		Reminders:          []entity.Reminder{},
		FollowUps:          []string{},
		BlockingIssues:     []string{},
		SuggestedCategory:  string(cls.Class.StorageCategory()),
		CertificateNumber:  firstGroup(reCertNumber, text),
		BuildingPostcode:   firstGroup(rePostcode, strings.ToUpper(text)),
		IssuingCompany:     firstGroup(reCompany, text),
	}
	if cls.Class.ComplianceAssetKey() != "" {
		label := cls.Class.Label()
		res.SuggestedComplianceAsset = &label
	}

	issued, periodEnd, nextDue := labelledDates(text)
	if issued != nil {
		res.InspectionOrIssueDate = isoString(*issued)
	}
	if periodEnd != nil {
		res.PeriodCoveredEndDate = isoString(*periodEnd)
	}
	if nextDue != nil {
		res.NextDueDate = isoString(*nextDue)
	}

	if cls.Class == constants.ClassOther {
		res.FollowUps = append(res.FollowUps, "confirm the document type")
	}
	if cls.Class.ComplianceAssetKey() != "" && issued == nil {
		res.BlockingIssues = append(res.BlockingIssues, "inspection or issue date not found")
	}
	if len(cls.Matched) > 0 {
		res.Notes = "Matched: " + strings.Join(cls.Matched, ", ")
	}
	return res
}

// labelledDates reads dates line by line and sorts them by the words next to them.
func labelledDates(text string) (issued, periodEnd, nextDue *time.Time) {
	var unlabelled []time.Time
	for _, line := range strings.Split(text, "\n") {
		dates := findDates(line)
		if len(dates) == 0 {
			continue
		}
		l := strings.ToLower(line)
		d := dates[0]
		switch {
		case containsAny(l, "expir", "valid until", "valid to", "period end", "end of cover"):
			if periodEnd == nil {
				periodEnd = &d
			}
		case containsAny(l, "next", "due", "re-inspection", "reinspection", "review date", "renewal"):
			if nextDue == nil {
				nextDue = &d
			}
		case containsAny(l, "inspect", "issue", "date of", "carried out", "assessment date", "test date", "survey date", "examination"):
			if issued == nil {
				issued = &d
			}
		default:
			unlabelled = append(unlabelled, dates...)
		}
	}
	if issued == nil && len(unlabelled) > 0 {
		earliest := unlabelled[0]
		for _, d := range unlabelled[1:] {
			if d.Before(earliest) {
				earliest = d
			}
		}
		issued = &earliest
	}
	return issued, periodEnd, nextDue
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func guessTitle(text, filename string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(reSpaces.ReplaceAllString(line, " "))
		letters := 0
		for _, r := range line {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				letters++
			}
		}
		if letters >= 4 && len(line) <= 120 {
			return line
		}
	}
	if t := strings.TrimSpace(filename); t != "" {
		return t
	}
	return untitled
}

func firstGroup(re *regexp.Regexp, s string) *string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return nil
	}
	v := strings.TrimSpace(reSpaces.ReplaceAllString(m[1], " "))
	if v == "" {
		return nil
	}
	return &v
}

func findStandards(text string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, m := range reStandard.FindAllString(text, -1) {
		norm := strings.ToUpper(reSpaces.ReplaceAllString(m, " "))
		if !seen[norm] {
			seen[norm] = true
			out = append(out, norm)
		}
	}
	return out
}

func findPeople(text string) []entity.Person {
	out := []entity.Person{}
	for _, m := range rePerson.FindAllStringSubmatch(text, -1) {
		role := strings.ToLower(strings.TrimSpace(m[1]))
		role = strings.TrimSuffix(strings.TrimSuffix(role, " by"), " name")
		switch role {
		case "inspected":
			role = "inspector"
		case "assessed":
			role = "assessor"
		}
		name := strings.TrimSpace(m[2])
		p := entity.Person{Role: role}
		if name != "" {
			p.Name = &name
		}
		out = append(out, p)
	}
	return out
}
