package caselib

import "strings"

// sampleCases are fully populated presentations used by the demo flow and
// the API when the caller selects a case by id.
var sampleCases = []Case{
	{
		ID:             "CASE_001",
		Age:            65,
		Sex:            "Male",
		ChiefComplaint: "Chest pain and shortness of breath",
		Symptoms:       []string{"severe chest pain", "shortness of breath", "sweating", "nausea"},
		Duration:       "2 hours",
		Severity:       "severe",
		History: History{
			PastMedical: "Hypertension, diabetes mellitus, smoking history",
			Medications: "Metformin, Lisinopril, Aspirin",
			Allergies:   "NKDA",
			Family:      "Father died of heart attack at age 60",
			Social:      "Former smoker (30 pack-years), occasional alcohol",
		},
		VitalSigns:   "BP 90/60, HR 110, RR 24, Temp 98.6F, O2 Sat 94%",
		PhysicalExam: "Diaphoretic, pale, S3 gallop, bibasilar rales",
	},
	{
		ID:             "CASE_002",
		Age:            28,
		Sex:            "Female",
		ChiefComplaint: "Severe abdominal pain",
		Symptoms:       []string{"right lower quadrant pain", "nausea", "vomiting", "fever"},
		Duration:       "12 hours",
		Severity:       "severe",
		History: History{
			PastMedical: "None significant",
			Medications: "Oral contraceptives",
			Allergies:   "Penicillin",
			Family:      "No significant family history",
			Social:      "Non-smoker, social drinker",
		},
		VitalSigns:   "BP 120/80, HR 95, RR 18, Temp 101.2F",
		PhysicalExam: "RLQ tenderness, positive McBurney's sign, guarding",
	},
	{
		ID:             "CASE_003",
		Age:            45,
		Sex:            "Female",
		ChiefComplaint: "Progressive shortness of breath and fatigue",
		Symptoms:       []string{"dyspnea on exertion", "dry cough", "fatigue", "weight loss"},
		Duration:       "6 months",
		Severity:       "moderate to severe",
		History: History{
			PastMedical: "Rheumatoid arthritis",
			Medications: "Methotrexate, Prednisone",
			Allergies:   "Sulfa drugs",
			Family:      "Mother with autoimmune disease",
			Social:      "Non-smoker, works in textile industry",
		},
		VitalSigns:   "BP 130/85, HR 88, RR 22, O2 Sat 88% on room air",
		PhysicalExam: "Fine inspiratory crackles, clubbing of fingers",
	},
	{
		ID:             "CASE_004",
		Age:            72,
		Sex:            "Male",
		ChiefComplaint: "Sudden onset weakness and speech difficulty",
		Symptoms:       []string{"left-sided weakness", "slurred speech", "facial droop", "confusion"},
		Duration:       "1 hour",
		Severity:       "severe",
		History: History{
			PastMedical: "Atrial fibrillation, hypertension",
			Medications: "Warfarin, Metoprolol",
			Allergies:   "NKDA",
			Family:      "Sister had stroke",
			Social:      "Former smoker, minimal alcohol",
		},
		VitalSigns:   "BP 180/100, HR 110 irregular, RR 20, Temp 98.4F",
		PhysicalExam: "Left hemiparesis, dysarthria, facial asymmetry",
	},
	{
		ID:             "CASE_005",
		Age:            34,
		Sex:            "Female",
		ChiefComplaint: "Joint pain and rash",
		Symptoms:       []string{"polyarthralgia", "malar rash", "fatigue", "hair loss"},
		Duration:       "3 months",
		Severity:       "moderate",
		History: History{
			PastMedical: "No significant history",
			Medications: "Ibuprofen PRN",
			Allergies:   "NKDA",
			Family:      "Aunt with lupus",
			Social:      "Non-smoker, minimal alcohol",
		},
		VitalSigns:   "BP 125/80, HR 85, RR 16, Temp 99.1F",
		PhysicalExam: "Butterfly rash, synovitis of hands, lymphadenopathy",
	},
	{
		ID:             "CASE_006",
		Age:            42,
		Sex:            "Male",
		ChiefComplaint: "Sudden severe shortness of breath after long flight",
		Symptoms:       []string{"sudden dyspnea", "pleuritic chest pain", "calf pain", "anxiety"},
		Duration:       "2 hours",
		Severity:       "severe",
		History: History{
			PastMedical: "Recent knee surgery 2 weeks ago",
			Medications: "Ibuprofen",
			Allergies:   "NKDA",
			Family:      "Mother with DVT",
			Social:      "Recent 8-hour flight from Europe",
		},
		VitalSigns:   "BP 130/85, HR 115, RR 28, Temp 99.1F, O2 Sat 88%",
		PhysicalExam: "Tachypneic, right calf tenderness and swelling, clear lungs",
	},
}

// SampleCases returns the predefined case collection.
func SampleCases() []Case {
	out := make([]Case, len(sampleCases))
	copy(out, sampleCases)
	return out
}

// CaseByID returns a predefined case by id.
func CaseByID(id string) (Case, bool) {
	for _, c := range sampleCases {
		if strings.EqualFold(c.ID, id) {
			return c, true
		}
	}
	return Case{}, false
}
