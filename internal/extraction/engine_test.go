package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/entity"
)

type stubExtractor struct {
	name  string
	raw   string
	err   error
	calls int
	last  Request
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) ExtractFields(_ context.Context, req Request) ([]byte, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.raw), nil
}

const validLLMOutput = `{
  "classification": "fire_certificate",
  "title": "Fire Risk Assessment - Maple Court",
  "issuing_company": "Safe Fire Consultants Ltd",
  "issuing_contact": null,
  "inspection_or_issue_date": "2024-03-03",
  "period_covered_end_date": null,
  "building_name": "Maple Court",
  "building_address": null,
  "building_postcode": "SW1A 1AA",
  "certificate_number": "FRA-2024-001",
  "notes": "",
  "page_count": 99,
  "confidence": 0.92,
  "people": [{"role": "assessor", "name": "Jane Doe"}],
  "equipment": [],
  "standard_references": ["BS 9999:2017"],
  "reminders": [],
  "follow_ups": [],
  "blocking_issues": [],
  "suggested_category": "compliance",
  "suggested_compliance_asset": "Fire Risk Assessment",
  "next_due_date": "2025-03-03",
  "ocr_needed": true,
  "possible_duplicate": true,
  "duplicate_match_hint": null,
  "text_extracted": "whatever the model said"
}`

func newTestEngine(lenient bool, xs ...FieldExtractor) *Engine {
	return NewEngine(xs, Options{Window: Window{MaxChars: 3000}, LenientOptional: lenient}, nil)
}

func TestEngine_EmptyTextYieldsDefaultWithoutCalls(t *testing.T) {
	x := &stubExtractor{name: "openai", raw: validLLMOutput}
	e := newTestEngine(true, x)

	for _, in := range []Input{
		{Text: "", Filename: "scan.pdf", PageCount: 3},
		{Text: "   \n ", Filename: "scan.pdf", PageCount: 3},
		{Text: "some text", Filename: "scan.pdf", PageCount: 3, OCRNeeded: true},
	} {
		res, prov, err := e.Extract(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, prov.Defaulted)
		assert.True(t, res.OCRNeeded)
		assert.Zero(t, res.Confidence)
		assert.Equal(t, entity.NoTextSentinel, res.TextExtracted)
		assert.Equal(t, "scan.pdf", res.Title)
		assert.Equal(t, 3, res.PageCount)
		assert.NoError(t, ValidateResult(res))
	}
	assert.Zero(t, x.calls)
}

func TestEngine_ServerOwnedFieldsWin(t *testing.T) {
	x := &stubExtractor{name: "openai", raw: validLLMOutput}
	e := newTestEngine(true, x)

	res, prov, err := e.Extract(context.Background(), Input{Text: fireAssessmentText, Filename: "fra.pdf", PageCount: 4})
	require.NoError(t, err)
	assert.Equal(t, "openai", prov.Extractor)
	assert.False(t, prov.Defaulted)
	assert.Empty(t, prov.Sanitized)

	assert.Equal(t, 4, res.PageCount)
	assert.False(t, res.OCRNeeded)
	assert.False(t, res.PossibleDuplicate)
	assert.Equal(t, 0.92, res.Confidence)
	assert.Equal(t, Excerpt(fireAssessmentText), res.TextExtracted)
	assert.Equal(t, "Fire Risk Assessment - Maple Court", res.Title)
}

func TestEngine_SanitizesNearMiss(t *testing.T) {
	x := &stubExtractor{name: "openai", raw: "```json\n" + `{
  "document_type": "Fire Risk Assessment",
  "title": "",
  "inspection_date": "03/03/2024",
  "confidence": 85,
  "category": "health and safety",
  "people": [{"role": "assessor", "name": "n/a"}],
  "follow_ups": "book the remedial works",
  "made_up_field": 1
}` + "\n```"}
	e := newTestEngine(true, x)

	res, prov, err := e.Extract(context.Background(), Input{Text: fireAssessmentText, Filename: "fra.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "openai", prov.Extractor)
	assert.NotEmpty(t, prov.Sanitized)

	assert.Equal(t, string(constants.ClassFireCertificate), res.Classification)
	assert.Equal(t, "fra.pdf", res.Title)
	assert.Equal(t, "2024-03-03", *res.InspectionOrIssueDate)
	assert.InDelta(t, 0.85, res.Confidence, 1e-9)
	assert.Equal(t, string(constants.StorageCompliance), res.SuggestedCategory)
	require.Len(t, res.People, 1)
	assert.Nil(t, res.People[0].Name)
	assert.Equal(t, []string{"book the remedial works"}, res.FollowUps)
}

func TestEngine_StrictModeRejectsNearMiss(t *testing.T) {
	bad := &stubExtractor{name: "openai", raw: `{"classification": "fire", "confidence": 85}`}
	e := newTestEngine(false, bad, NewKeywordExtractor())

	res, prov, err := e.Extract(context.Background(), Input{Text: fireAssessmentText, Filename: "fra.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "keyword", prov.Extractor)
	require.Len(t, prov.Attempts, 2)
	assert.Equal(t, "invalid", prov.Attempts[0].Outcome)
	assert.Equal(t, string(constants.ClassFireCertificate), res.Classification)
}

func TestEngine_FallsThroughErrorsToKeyword(t *testing.T) {
	down := &stubExtractor{name: "openai", err: errors.New("503 from upstream")}
	garbage := &stubExtractor{name: "gemini", raw: "I could not read this document."}
	e := newTestEngine(true, down, garbage, NewKeywordExtractor())

	res, prov, err := e.Extract(context.Background(), Input{Text: gasRecordText, Filename: "cp12.pdf", PageCount: 1})
	require.NoError(t, err)
	assert.Equal(t, "keyword", prov.Extractor)
	require.Len(t, prov.Attempts, 3)
	assert.Equal(t, "error", prov.Attempts[0].Outcome)
	assert.Equal(t, "invalid", prov.Attempts[1].Outcome)
	assert.Equal(t, "ok", prov.Attempts[2].Outcome)
	assert.Equal(t, string(constants.ClassGasSafety), res.Classification)
	assert.NoError(t, ValidateResult(res))
}

func TestEngine_AllFailYieldsDefault(t *testing.T) {
	down := &stubExtractor{name: "openai", err: errors.New("timeout")}
	e := newTestEngine(true, down)

	res, prov, err := e.Extract(context.Background(), Input{Text: gasRecordText, Filename: "cp12.pdf", PageCount: 1})
	require.NoError(t, err)
	assert.True(t, prov.Defaulted)
	assert.Equal(t, 1, res.PageCount)
	assert.True(t, res.OCRNeeded)
	assert.NoError(t, ValidateResult(res))
}

func TestEngine_CancelledContext(t *testing.T) {
	x := &stubExtractor{name: "openai", raw: validLLMOutput}
	e := newTestEngine(true, x)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := e.Extract(ctx, Input{Text: gasRecordText})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, x.calls)
}

func TestEngine_WindowsTheText(t *testing.T) {
	x := &stubExtractor{name: "openai", raw: validLLMOutput}
	e := NewEngine([]FieldExtractor{x}, Options{Window: Window{MaxChars: 20}}, nil)

	_, prov, err := e.Extract(context.Background(), Input{Text: fireAssessmentText, Filename: "fra.pdf"})
	require.NoError(t, err)
	assert.True(t, prov.Truncated)
	assert.True(t, x.last.Truncated)
	assert.Contains(t, x.last.Text, "(truncated)")
}
