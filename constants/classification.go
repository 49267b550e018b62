package constants

import (
	"strings"
)

// Classification is the closed set of document types the extractor may emit.
type Classification string

const (
	ClassFireCertificate     Classification = "fire_certificate"
	ClassEICR                Classification = "eicr"
	ClassGasSafety           Classification = "gas_safety"
	ClassAsbestosSurvey      Classification = "asbestos_survey"
	ClassLiftInspection      Classification = "lift_inspection"
	ClassLegionella          Classification = "legionella_assessment"
	ClassEmergencyLighting   Classification = "emergency_lighting"
	ClassInsurancePolicy     Classification = "insurance_policy"
	ClassInsuranceValuation  Classification = "insurance_valuation"
	ClassLease               Classification = "lease"
	ClassSection20           Classification = "section20_notice"
	ClassMajorWorks          Classification = "major_works"
	ClassMinutes             Classification = "minutes"
	ClassInvoice             Classification = "invoice"
	ClassServiceChargeBudget Classification = "service_charge_budget"
	ClassBuildingSurvey      Classification = "building_survey"
	ClassCorrespondence      Classification = "correspondence"
	ClassOther               Classification = "other"
)

var allClassifications = []Classification{
	ClassFireCertificate,
	ClassEICR,
	ClassGasSafety,
	ClassAsbestosSurvey,
	ClassLiftInspection,
	ClassLegionella,
	ClassEmergencyLighting,
	ClassInsurancePolicy,
	ClassInsuranceValuation,
	ClassLease,
	ClassSection20,
	ClassMajorWorks,
	ClassMinutes,
	ClassInvoice,
	ClassServiceChargeBudget,
	ClassBuildingSurvey,
	ClassCorrespondence,
	ClassOther,
}

// StorageCategory is the suggested filing area for a document.
type StorageCategory string

const (
	StorageCompliance     StorageCategory = "compliance"
	StorageLeases         StorageCategory = "leases"
	StorageFinance        StorageCategory = "finance"
	StorageMeetings       StorageCategory = "meetings"
	StorageMajorWorks     StorageCategory = "major_works"
	StorageCorrespondence StorageCategory = "correspondence"
	StorageGeneral        StorageCategory = "general"
)

var allStorageCategories = []StorageCategory{
	StorageCompliance,
	StorageLeases,
	StorageFinance,
	StorageMeetings,
	StorageMajorWorks,
	StorageCorrespondence,
	StorageGeneral,
}

func ClassificationStrings() []string {
	result := make([]string, len(allClassifications))
	for i, c := range allClassifications {
		result[i] = string(c)
	}
	return result
}

func StorageCategoryStrings() []string {
	result := make([]string, len(allStorageCategories))
	for i, c := range allStorageCategories {
		result[i] = string(c)
	}
	return result
}

// Label is the human phrase used for matching and prompts.
func (c Classification) Label() string {
	switch c {
	case ClassFireCertificate:
		return "fire risk assessment"
	case ClassEICR:
		return "electrical installation condition report"
	case ClassGasSafety:
		return "gas safety certificate"
	case ClassSection20:
		return "section 20 notice"
	}
	return strings.ReplaceAll(string(c), "_", " ")
}

// StorageCategory returns where documents of this class are filed.
func (c Classification) StorageCategory() StorageCategory {
	switch c {
	case ClassFireCertificate, ClassEICR, ClassGasSafety, ClassAsbestosSurvey, ClassLiftInspection,
		ClassLegionella, ClassEmergencyLighting, ClassBuildingSurvey, ClassInsuranceValuation:
		return StorageCompliance
	case ClassLease:
		return StorageLeases
	case ClassInvoice, ClassServiceChargeBudget, ClassInsurancePolicy:
		return StorageFinance
	case ClassMinutes:
		return StorageMeetings
	case ClassMajorWorks, ClassSection20:
		return StorageMajorWorks
	case ClassCorrespondence:
		return StorageCorrespondence
	}
	return StorageGeneral
}

// ComplianceAssetKey is the master-catalog key a class usually renews, or "".
func (c Classification) ComplianceAssetKey() string {
	switch c {
	case ClassFireCertificate:
		return "fire-risk-assessment"
	case ClassEICR:
		return "eicr"
	case ClassGasSafety:
		return "gas-safety-certificate"
	case ClassAsbestosSurvey:
		return "asbestos-management-survey"
	case ClassLiftInspection:
		return "lift-thorough-examination"
	case ClassLegionella:
		return "legionella-risk-assessment"
	case ClassEmergencyLighting:
		return "emergency-lighting-test"
	case ClassInsuranceValuation:
		return "insurance-valuation"
	case ClassInsurancePolicy:
		return "buildings-insurance"
	}
	return ""
}

func Canonicalize(input string) (Classification, bool) {
	if input == "" {
		return ClassOther, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)

	// synonyms map
	synonyms := map[string]Classification{
		"fire_risk_assessment":    ClassFireCertificate,
		"fra":                     ClassFireCertificate,
		"fire_safety":             ClassFireCertificate,
		"fire_safety_certificate": ClassFireCertificate,
		"electrical_installation_condition_report": ClassEICR,
		"electrical":                 ClassEICR,
		"gas":                        ClassGasSafety,
		"gas_safety_certificate":     ClassGasSafety,
		"cp12":                       ClassGasSafety,
		"asbestos":                   ClassAsbestosSurvey,
		"lift":                       ClassLiftInspection,
		"loler":                      ClassLiftInspection,
		"legionella":                 ClassLegionella,
		"legionella_risk_assessment": ClassLegionella,
		"insurance":                  ClassInsurancePolicy,
		"section20":                  ClassSection20,
		"section_20":                 ClassSection20,
		"meeting_minutes":            ClassMinutes,
		"agm_minutes":                ClassMinutes,
		"budget":                     ClassServiceChargeBudget,
		"letter":                     ClassCorrespondence,
		"email":                      ClassCorrespondence,
	}

	if c, ok := synonyms[normalized]; ok {
		return c, true
	}

	for _, c := range allClassifications {
		if normalized == string(c) {
			return c, true
		}
	}

	return ClassOther, false
}
