package extraction

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/docintake/constants"
)

var (
	nullableStringFields = []string{
		"issuing_company", "issuing_contact", "building_name", "building_address",
		"building_postcode", "certificate_number", "suggested_compliance_asset",
	}
	nullableDateFields = []string{"inspection_or_issue_date", "period_covered_end_date", "next_due_date"}
	stringListFields   = []string{"standard_references", "follow_ups", "blocking_issues"}

	// renames the models tend to produce
	fieldSynonyms = map[string]string{
		"document_type":   "classification",
		"type":            "classification",
		"category":        "suggested_category",
		"issue_date":      "inspection_or_issue_date",
		"inspection_date": "inspection_or_issue_date",
		"expiry_date":     "period_covered_end_date",
		"valid_until":     "period_covered_end_date",
		"next_due":        "next_due_date",
		"postcode":        "building_postcode",
		"address":         "building_address",
		"company":         "issuing_company",
		"contractor":      "issuing_company",
		"standards":       "standard_references",
		"actions":         "follow_ups",
		"summary":         "notes",
	}

	storageSynonyms = map[string]constants.StorageCategory{
		"lease":             constants.StorageLeases,
		"leasing":           constants.StorageLeases,
		"financial":         constants.StorageFinance,
		"accounts":          constants.StorageFinance,
		"insurance":         constants.StorageFinance,
		"meeting":           constants.StorageMeetings,
		"agm":               constants.StorageMeetings,
		"works":             constants.StorageMajorWorks,
		"major works":       constants.StorageMajorWorks,
		"health and safety": constants.StorageCompliance,
		"safety":            constants.StorageCompliance,
		"letters":           constants.StorageCorrespondence,
		"other":             constants.StorageGeneral,
	}
)

// Sanitize coerces a near-miss extraction into the closed schema: synonyms are renamed,
// enums canonicalised, unparseable dates and malformed optionals nulled, confidence clamped
// and unknown keys dropped. It never invents content. The second return lists what changed.
func Sanitize(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(CleanJSON(string(raw))), &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}
	changed := make([]string, 0, 8)
	note := func(s string) { changed = append(changed, s) }

	for from, to := range fieldSynonyms {
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
				note(from + "->" + to)
			}
			delete(m, from)
		}
	}

	// classification
	cls := constants.ClassOther
	if s, ok := m["classification"].(string); ok {
		if c, known := constants.Canonicalize(s); known {
			cls = c
		}
		if string(cls) != s {
			note("classification(" + s + ")")
		}
	} else {
		note("classification(missing)")
	}
	m["classification"] = string(cls)

	// suggested_category falls back to where the class is normally filed
	m["suggested_category"] = string(canonicalStorage(m["suggested_category"], cls, note))

	if s, ok := m["title"].(string); ok {
		m["title"] = strings.TrimSpace(s)
	} else {
		m["title"] = ""
	}
	if s, ok := m["notes"].(string); ok {
		m["notes"] = strings.TrimSpace(s)
	} else {
		if _, present := m["notes"]; present {
			note("notes(type)")
		}
		m["notes"] = ""
	}

	for _, k := range nullableStringFields {
		m[k] = nullableStringValue(m[k], k, note)
	}
	for _, k := range nullableDateFields {
		m[k] = nullableDateValue(m[k], k, note)
	}
	for _, k := range stringListFields {
		m[k] = stringList(m[k], k, note)
	}

	m["confidence"] = confidenceValue(m["confidence"], note)
	m["people"] = people(m["people"], note)
	m["equipment"] = equipment(m["equipment"], note)
	m["reminders"] = reminders(m["reminders"], note)

	if v, ok := m["page_count"].(float64); !ok || v < 0 || v != math.Trunc(v) {
		m["page_count"] = 0
	}
	for _, k := range []string{"ocr_needed", "possible_duplicate"} {
		if _, ok := m[k].(bool); !ok {
			m[k] = false
		}
	}
	m["duplicate_match_hint"] = duplicateHint(m["duplicate_match_hint"], note)
	if _, ok := m["text_extracted"].(string); !ok {
		m["text_extracted"] = ""
	}

	allowed := BuildExtractionJSONSchema()["properties"].(map[string]any)
	for k := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			note(k + "(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, changed, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(changed) > 0 {
		logger.Warn("extract.sanitize.applied", "changed", slices.Clone(changed))
	}
	return out, changed, nil
}

func canonicalStorage(v any, cls constants.Classification, note func(string)) constants.StorageCategory {
	s, _ := v.(string)
	norm := strings.ToLower(strings.TrimSpace(s))
	for _, c := range constants.StorageCategoryStrings() {
		if norm == c {
			return constants.StorageCategory(c)
		}
	}
	if c, ok := storageSynonyms[norm]; ok {
		note("suggested_category(" + s + ")")
		return c
	}
	note("suggested_category(" + s + ")")
	return cls.StorageCategory()
}

func nullableStringValue(v any, key string, note func(string)) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") || strings.EqualFold(s, "unknown") {
			note(key + "(empty)")
			return nil
		}
		return s
	case float64:
		note(key + "(number)")
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	note(key + "(type)")
	return nil
}

func nullableDateValue(v any, key string, note func(string)) any {
	s, ok := v.(string)
	if !ok {
		if v != nil {
			note(key + "(type)")
		}
		return nil
	}
	t, ok := ParseLooseDate(s)
	if !ok {
		note(key + "(invalid)")
		return nil
	}
	iso := t.Format(isoLayout)
	if iso != s {
		note(key + "(reformatted)")
	}
	return iso
}

func stringList(v any, key string, note func(string)) []string {
	out := []string{}
	switch t := v.(type) {
	case nil:
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
			note(key + "(scalar)")
		}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	default:
		note(key + "(type)")
	}
	return out
}

func confidenceValue(v any, note func(string)) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		p, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
		if err != nil {
			note("confidence(invalid)")
			return 0
		}
		f = p
	default:
		note("confidence(missing)")
		return 0
	}
	// percentages
	if f > 1 && f <= 100 {
		note("confidence(percent)")
		f /= 100
	}
	if f < 0 || f > 1 {
		note("confidence(clamped)")
	}
	return clamp01(f)
}

func people(v any, note func(string)) []map[string]any {
	out := []map[string]any{}
	items, _ := v.([]any)
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			note("people(type)")
			continue
		}
		role, _ := obj["role"].(string)
		role = strings.TrimSpace(role)
		if role == "" {
			note("people(role)")
			continue
		}
		out = append(out, map[string]any{"role": role, "name": nullableStringValue(obj["name"], "people.name", note)})
	}
	return out
}

func equipment(v any, note func(string)) []map[string]any {
	out := []map[string]any{}
	items, _ := v.([]any)
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			note("equipment(type)")
			continue
		}
		typ, _ := obj["type"].(string)
		typ = strings.TrimSpace(typ)
		if typ == "" {
			note("equipment(type)")
			continue
		}
		count := 0
		if c, ok := obj["count"].(float64); ok && c >= 0 {
			count = int(c)
		}
		out = append(out, map[string]any{
			"type":      typ,
			"size":      nullableStringValue(obj["size"], "equipment.size", note),
			"count":     count,
			"locations": stringList(obj["locations"], "equipment.locations", note),
			"status":    nullableStringValue(obj["status"], "equipment.status", note),
		})
	}
	return out
}

func reminders(v any, note func(string)) []map[string]any {
	out := []map[string]any{}
	items, _ := v.([]any)
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			note("reminders(type)")
			continue
		}
		label, _ := obj["label"].(string)
		ds, _ := obj["date"].(string)
		t, ok := ParseLooseDate(ds)
		if strings.TrimSpace(label) == "" || !ok {
			note("reminders(invalid)")
			continue
		}
		reason, _ := obj["reason"].(string)
		out = append(out, map[string]any{"label": strings.TrimSpace(label), "date": t.Format(isoLayout), "reason": strings.TrimSpace(reason)})
	}
	return out
}

func duplicateHint(v any, note func(string)) any {
	obj, ok := v.(map[string]any)
	if !ok {
		if v != nil {
			note("duplicate_match_hint(type)")
		}
		return nil
	}
	title, _ := obj["title"].(string)
	return map[string]any{"title": title, "date": nullableDateValue(obj["date"], "duplicate_match_hint.date", note)}
}

// CleanJSON strips markdown code fences and any prose around the outermost object.
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return strings.TrimSpace(s)
}
