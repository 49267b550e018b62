package extraction

const fireAssessmentText = `FIRE RISK ASSESSMENT
Premises: Maple Court, London SW1A 1AA
Assessment date: 3 March 2024
Next review: 3 March 2025
Assessor: Jane Doe
Issued by Safe Fire Consultants Ltd
Risk rating: moderate. Action plan attached. Evacuation strategy: stay put.
Reference No: FRA-2024-001
Compliant with BS 9999:2017.`

const gasRecordText = "Landlord Gas Safety Record\nCertificate No: GS-123456\nInspection date: 15/01/2024\n" +
	"Engineer: J Smith, Gas Safe register 554433\nAll appliances passed inspection at Flat 2."
