package caselib

// Case is one patient presentation. It is assembled by the caller (predefined
// catalog, synthetic generator, or API input) and read-only for everything
// downstream.
type Case struct {
	ID             string   `json:"id"`
	Age            int      `json:"age"`
	Sex            string   `json:"sex"`
	ChiefComplaint string   `json:"chief_complaint"`
	Symptoms       []string `json:"symptoms"` // ordered as reported
	Duration       string   `json:"duration"`
	Severity       string   `json:"severity"`
	History        History  `json:"history"`
	VitalSigns     string   `json:"vital_signs"`
	PhysicalExam   string   `json:"physical_exam"`
}

type History struct {
	PastMedical string `json:"past_medical"`
	Medications string `json:"medications"`
	Allergies   string `json:"allergies"`
	Family      string `json:"family"`
	Social      string `json:"social"`
}

// Condition is one entry of the reference condition table used by the
// simulated diagnostic strategy and the synthetic case generator.
type Condition struct {
	Name        string   `json:"name"`
	ICD10       string   `json:"icd10"`
	Category    string   `json:"category"`
	Symptoms    []string `json:"symptoms"`
	RiskFactors []string `json:"risk_factors"`
	RedFlags    []string `json:"red_flags"`
	Common      bool     `json:"common"`
}
