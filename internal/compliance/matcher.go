package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/entity"
	"github.com/joseph-ayodele/docintake/internal/metrics"
)

const (
	DefaultThreshold = 0.5
	DefaultLeadDays  = 30
)

type Options struct {
	Threshold float64
	LeadDays  int
	Now       func() time.Time
}

// Matcher scores extraction results against the catalog.
type Matcher struct {
	catalog Catalog
	opts    Options
	logger  *slog.Logger
}

func NewMatcher(catalog Catalog, opts Options, logger *slog.Logger) *Matcher {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.LeadDays < 0 {
		opts.LeadDays = DefaultLeadDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{catalog: catalog, opts: opts, logger: logger}
}

// Match finds the best catalog asset for res. A match with a nil AssetID means nothing
// cleared the threshold; that is not an error.
func (m *Matcher) Match(ctx context.Context, res entity.ExtractionResult, buildingID string, documentID uuid.UUID) (entity.ComplianceAssetMatch, error) {
	out := entity.ComplianceAssetMatch{BuildingID: buildingID, DocumentID: documentID}

	assets, err := m.catalog.ListAssets(ctx, buildingID)
	if err != nil {
		return out, fmt.Errorf("list compliance assets: %w", err)
	}

	best, score := BestAsset(Queries(res), assets)
	out.Score = score
	if best == nil || score < m.opts.Threshold {
		metrics.IncComplianceMatch(false)
		m.logger.Debug("compliance.match.none", "document_id", documentID, "best_score", score)
		return out, nil
	}
	metrics.IncComplianceMatch(true)

	id := best.ID
	out.AssetID = &id
	out.AssetName = best.Name
	out.FrequencyMonths = best.FrequencyMonths

	due, ok := NextDue(res.InspectionOrIssueDate, res.PeriodCoveredEndDate, best.FrequencyMonths)
	if !ok && res.NextDueDate != nil {
		if t, err := time.Parse(isoLayout, *res.NextDueDate); err == nil {
			due, ok = t, true
		}
	}
	if ok {
		now := m.opts.Now()
		ds := due.Format(isoLayout)
		out.DueDate = &ds
		out.Reminder = &entity.Reminder{
			Label:  "Renew " + best.Name,
			Date:   ReminderDate(due, m.opts.LeadDays, now).Format(isoLayout),
			Reason: reminderReason(best.Name, due, now),
		}
	}
	m.logger.Info("compliance.match.ok",
		"document_id", documentID, "asset", best.Key, "score", score, "due_date", out.DueDate)
	return out, nil
}

// Queries are the phrases from a result that may name an asset.
func Queries(res entity.ExtractionResult) []string {
	var qs []string
	add := func(s string) {
		if n := Normalize(s); n != "" {
			qs = append(qs, n)
		}
	}
	add(res.Title)
	if c, ok := constants.Canonicalize(res.Classification); ok && c != constants.ClassOther {
		add(c.Label())
	}
	if res.SuggestedComplianceAsset != nil {
		add(*res.SuggestedComplianceAsset)
	}
	return qs
}

func labels(a entity.ComplianceAsset) []string {
	out := []string{Normalize(a.Name), Normalize(strings.NewReplacer("-", " ", "_", " ").Replace(a.Key))}
	for _, al := range a.Aliases {
		out = append(out, Normalize(al))
	}
	return out
}

// BestAsset returns the highest scoring asset. Ties go to the lexically smaller name, then id.
func BestAsset(queries []string, assets []entity.ComplianceAsset) (*entity.ComplianceAsset, float64) {
	var (
		best      *entity.ComplianceAsset
		bestScore float64
	)
	for i := range assets {
		a := &assets[i]
		s := 0.0
		for _, q := range queries {
			for _, l := range labels(*a) {
				s = max(s, Similarity(q, l))
			}
		}
		if s == 0 {
			continue
		}
		if best == nil || s > bestScore ||
			(s == bestScore && (a.Name < best.Name || (a.Name == best.Name && a.ID < best.ID))) {
			best, bestScore = a, s
		}
	}
	return best, bestScore
}

// Similarity compares two normalized phrases: 1 when equal, 0.9 when one contains the
// other on word boundaries, otherwise the Jaccard index of their word sets.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	pa, pb := " "+a+" ", " "+b+" "
	if strings.Contains(pa, pb) || strings.Contains(pb, pa) {
		return 0.9
	}
	ta, tb := wordSet(a), wordSet(b)
	inter := 0
	for w := range ta {
		if tb[w] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(s) {
		out[w] = true
	}
	return out
}

// Normalize lower-cases s, turns punctuation into spaces and collapses whitespace.
func Normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}
