package entity

// NoTextSentinel is the text_extracted value carried by a result whose OCR failed.
const NoTextSentinel = "no text"

// ExtractionResult is the schema-validated structured extraction of one document.
type ExtractionResult struct {
	Classification        string  `json:"classification"`
	Title                 string  `json:"title"`
	IssuingCompany        *string `json:"issuing_company"`
	IssuingContact        *string `json:"issuing_contact"`
	InspectionOrIssueDate *string `json:"inspection_or_issue_date"`
	PeriodCoveredEndDate  *string `json:"period_covered_end_date"`
	BuildingName          *string `json:"building_name"`
	BuildingAddress       *string `json:"building_address"`
	BuildingPostcode      *string `json:"building_postcode"`
	CertificateNumber     *string `json:"certificate_number"`
	Notes                 string  `json:"notes"`
	PageCount             int     `json:"page_count"`
	Confidence            float64 `json:"confidence"`

	People             []Person    `json:"people"`
	Equipment          []Equipment `json:"equipment"`
	StandardReferences []string    `json:"standard_references"`
	Reminders          []Reminder  `json:"reminders"`
	FollowUps          []string    `json:"follow_ups"`
	BlockingIssues     []string    `json:"blocking_issues"`

	SuggestedCategory        string         `json:"suggested_category"`
	SuggestedComplianceAsset *string        `json:"suggested_compliance_asset"`
	NextDueDate              *string        `json:"next_due_date"`
	OCRNeeded                bool           `json:"ocr_needed"`
	PossibleDuplicate        bool           `json:"possible_duplicate"`
	DuplicateMatchHint       *DuplicateHint `json:"duplicate_match_hint"`
	TextExtracted            string         `json:"text_extracted"`
}

type Person struct {
	Role string  `json:"role"`
	Name *string `json:"name"`
}

type Equipment struct {
	Type      string   `json:"type"`
	Size      *string  `json:"size"`
	Count     int      `json:"count"`
	Locations []string `json:"locations"`
	Status    *string  `json:"status"`
}

// Reminder is a dated prompt for follow-up ahead of a due date.
type Reminder struct {
	Label  string `json:"label"`
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

// DuplicateHint identifies the earlier document a result may duplicate.
type DuplicateHint struct {
	Title string  `json:"title"`
	Date  *string `json:"date"`
}
