package extraction

import (
	"strings"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/entity"
)

const untitled = "Untitled document"

// DefaultResult is the well-formed result for a document nothing could be read from.
func DefaultResult(filename string) entity.ExtractionResult {
	title := strings.TrimSpace(filename)
	if title == "" {
		title = untitled
	}
	return entity.ExtractionResult{
		Classification:     string(constants.ClassOther),
		Title:              title,
		People:             []entity.Person{},
		Equipment:          []entity.Equipment{},
		StandardReferences: []string{},
		Reminders:          []entity.Reminder{},
		FollowUps:          []string{"re-upload with better scan quality", "contact sender for digital copy"},
		BlockingIssues:     []string{"no readable text extracted", "OCR processing failed"},
		SuggestedCategory:  string(constants.StorageGeneral),
		Confidence:         0,
		OCRNeeded:          true,
		TextExtracted:      entity.NoTextSentinel,
	}
}

// enforceInvariants clamps confidence, fills nil collections and applies the ocr_needed rule.
func enforceInvariants(r *entity.ExtractionResult) {
	r.Confidence = clamp01(r.Confidence)
	if r.OCRNeeded {
		r.Confidence = 0
		r.TextExtracted = entity.NoTextSentinel
	}
	if strings.TrimSpace(r.Title) == "" {
		r.Title = untitled
	}
	if r.PageCount < 0 {
		r.PageCount = 0
	}
	if r.People == nil {
		r.People = []entity.Person{}
	}
	if r.Equipment == nil {
		r.Equipment = []entity.Equipment{}
	}
	for i := range r.Equipment {
		if r.Equipment[i].Locations == nil {
			r.Equipment[i].Locations = []string{}
		}
	}
	if r.StandardReferences == nil {
		r.StandardReferences = []string{}
	}
	if r.Reminders == nil {
		r.Reminders = []entity.Reminder{}
	}
	if r.FollowUps == nil {
		r.FollowUps = []string{}
	}
	if r.BlockingIssues == nil {
		r.BlockingIssues = []string{}
	}
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
