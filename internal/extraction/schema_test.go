package extraction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/entity"
)

func TestDefaultResult_IsValid(t *testing.T) {
	res := DefaultResult("boiler-cert.jpg")

	require.NoError(t, ValidateResult(res))
	assert.Equal(t, string(constants.ClassOther), res.Classification)
	assert.Equal(t, "boiler-cert.jpg", res.Title)
	assert.True(t, res.OCRNeeded)
	assert.Zero(t, res.Confidence)
	assert.Equal(t, entity.NoTextSentinel, res.TextExtracted)
	assert.Equal(t, []string{"no readable text extracted", "OCR processing failed"}, res.BlockingIssues)
	assert.Equal(t, []string{"re-upload with better scan quality", "contact sender for digital copy"}, res.FollowUps)
	assert.Equal(t, string(constants.StorageGeneral), res.SuggestedCategory)
	assert.Nil(t, res.InspectionOrIssueDate)
	assert.Nil(t, res.NextDueDate)
	assert.Empty(t, res.People)

	assert.Equal(t, untitled, DefaultResult("  ").Title)
}

func TestSchema_OCRNeededRule(t *testing.T) {
	res := DefaultResult("x.pdf")

	res.Confidence = 0.4
	assert.Error(t, ValidateResult(res), "ocr_needed with confidence")

	res = DefaultResult("x.pdf")
	res.TextExtracted = "something"
	assert.Error(t, ValidateResult(res), "ocr_needed with text")

	res.OCRNeeded = false
	res.Confidence = 0.4
	assert.NoError(t, ValidateResult(res))
}

func TestSchema_IsClosed(t *testing.T) {
	b, err := json.Marshal(DefaultResult("x.pdf"))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	m["extra"] = "nope"
	withExtra, _ := json.Marshal(m)
	assert.Error(t, Validate(withExtra))

	delete(m, "extra")
	delete(m, "notes")
	missing, _ := json.Marshal(m)
	assert.Error(t, Validate(missing))
}

func TestSchema_RejectsBadValues(t *testing.T) {
	cases := map[string]func(r *entity.ExtractionResult){
		"classification": func(r *entity.ExtractionResult) { r.Classification = "receipt" },
		"category":       func(r *entity.ExtractionResult) { r.SuggestedCategory = "misc" },
		"date format":    func(r *entity.ExtractionResult) { s := "03/03/2024"; r.NextDueDate = &s },
		"impossible day": func(r *entity.ExtractionResult) { s := "2024-02-30"; r.NextDueDate = &s },
		"confidence":     func(r *entity.ExtractionResult) { r.Confidence = 1.5 },
		"empty title":    func(r *entity.ExtractionResult) { r.Title = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			res := DefaultResult("x.pdf")
			res.OCRNeeded = false
			res.TextExtracted = "text"
			mutate(&res)
			assert.Error(t, ValidateResult(res))
		})
	}
}

func TestEnforceInvariants(t *testing.T) {
	res := entity.ExtractionResult{Confidence: 3, OCRNeeded: true, TextExtracted: "abc", PageCount: -2}
	enforceInvariants(&res)
	assert.Zero(t, res.Confidence)
	assert.Equal(t, entity.NoTextSentinel, res.TextExtracted)
	assert.Equal(t, untitled, res.Title)
	assert.Zero(t, res.PageCount)
	assert.NotNil(t, res.People)
	assert.NotNil(t, res.Reminders)
}
