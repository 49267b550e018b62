package compliance

import (
	"context"
	"slices"

	"github.com/joseph-ayodele/docintake/internal/entity"
)

// MasterAssets is the catalog every building starts from.
var MasterAssets = []entity.ComplianceAsset{
	{ID: "550e8400-e29b-41d4-a716-446655440010", Key: "fire-risk-assessment", Name: "Fire Risk Assessment", Category: "Fire Safety", FrequencyMonths: 12,
		Aliases: []string{"fra", "fire safety certificate", "fire risk assessment report"}},
	{ID: "550e8400-e29b-41d4-a716-446655440002", Key: "gas-safety-certificate", Name: "Gas Safety Certificate", Category: "Gas Safety", FrequencyMonths: 12,
		Aliases: []string{"cp12", "gas safety record", "landlord gas safety record"}},
	{ID: "550e8400-e29b-41d4-a716-446655440003", Key: "eicr", Name: "Electrical Installation Condition Report", Category: "Electrical", FrequencyMonths: 60,
		Aliases: []string{"electrical safety certificate", "periodic inspection report"}},
	{ID: "550e8400-e29b-41d4-a716-446655440004", Key: "lift-thorough-examination", Name: "Lift Maintenance Certificate", Category: "Lifts", FrequencyMonths: 12,
		Aliases: []string{"lift inspection", "loler thorough examination", "thorough examination"}},
	{ID: "550e8400-e29b-41d4-a716-446655440005", Key: "asbestos-management-survey", Name: "Asbestos Survey", Category: "Health & Safety", FrequencyMonths: 60,
		Aliases: []string{"asbestos management survey", "asbestos re-inspection"}},
	{ID: "550e8400-e29b-41d4-a716-446655440006", Key: "energy-performance-certificate", Name: "Energy Performance Certificate", Category: "Energy", FrequencyMonths: 120,
		Aliases: []string{"epc"}},
	{ID: "550e8400-e29b-41d4-a716-446655440007", Key: "buildings-insurance", Name: "Building Insurance Certificate", Category: "Insurance", FrequencyMonths: 12,
		Aliases: []string{"buildings insurance", "insurance policy", "policy schedule"}},
	{ID: "550e8400-e29b-41d4-a716-446655440008", Key: "pat-testing", Name: "PAT Testing", Category: "Electrical", FrequencyMonths: 12,
		Aliases: []string{"portable appliance testing"}},
	{ID: "550e8400-e29b-41d4-a716-446655440009", Key: "legionella-risk-assessment", Name: "Water Hygiene Certificate", Category: "Water Safety", FrequencyMonths: 12,
		Aliases: []string{"legionella risk assessment", "legionella assessment", "water hygiene"}},
	{ID: "550e8400-e29b-41d4-a716-446655440011", Key: "emergency-lighting-test", Name: "Emergency Lighting Test", Category: "Fire Safety", FrequencyMonths: 12,
		Aliases: []string{"emergency lighting", "emergency lighting certificate"}},
	{ID: "550e8400-e29b-41d4-a716-446655440012", Key: "insurance-valuation", Name: "Insurance Valuation", Category: "Insurance", FrequencyMonths: 36,
		Aliases: []string{"reinstatement cost assessment", "rebuild cost valuation"}},
}

// StaticCatalog serves a fixed asset list regardless of building.
type StaticCatalog []entity.ComplianceAsset

func (c StaticCatalog) ListAssets(_ context.Context, _ string) ([]entity.ComplianceAsset, error) {
	return slices.Clone(c), nil
}
