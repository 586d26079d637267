package caselib

import (
	"sort"
	"strings"
)

// conditions is a curated slice of the reference table: common and serious
// presentations across the major specialties, each with the symptom profile
// the simulated agents score against.
var conditions = []Condition{
	// Cardiovascular
	{
		Name:        "Myocardial Infarction",
		ICD10:       "I21.9",
		Category:    "Cardiology",
		Symptoms:    []string{"chest pain", "shortness of breath", "nausea", "sweating", "arm pain"},
		RiskFactors: []string{"smoking", "diabetes", "hypertension", "family history"},
		RedFlags:    []string{"severe chest pain", "ST elevation", "elevated troponins"},
		Common:      true,
	},
	{
		Name:        "Atrial Fibrillation",
		ICD10:       "I48.91",
		Category:    "Cardiology",
		Symptoms:    []string{"palpitations", "irregular heartbeat", "fatigue", "dizziness"},
		RiskFactors: []string{"age", "hypertension", "heart disease", "alcohol"},
		RedFlags:    []string{"stroke risk", "rapid ventricular response"},
		Common:      true,
	},
	{
		Name:        "Heart Failure",
		ICD10:       "I50.9",
		Category:    "Cardiology",
		Symptoms:    []string{"dyspnea on exertion", "orthopnea", "ankle edema", "fatigue"},
		RiskFactors: []string{"hypertension", "diabetes", "coronary artery disease"},
		RedFlags:    []string{"pulmonary edema", "cardiogenic shock"},
		Common:      true,
	},
	{
		Name:        "Pulmonary Embolism",
		ICD10:       "I26.99",
		Category:    "Pulmonology",
		Symptoms:    []string{"sudden dyspnea", "pleuritic chest pain", "cough", "leg swelling", "calf pain"},
		RiskFactors: []string{"immobilization", "surgery", "cancer", "pregnancy"},
		RedFlags:    []string{"massive PE", "hemodynamic instability"},
		Common:      false,
	},
	// Respiratory
	{
		Name:        "Pneumonia",
		ICD10:       "J18.9",
		Category:    "Pulmonology",
		Symptoms:    []string{"fever", "cough", "sputum production", "shortness of breath", "chest pain"},
		RiskFactors: []string{"age", "immunocompromised", "chronic disease"},
		RedFlags:    []string{"severe sepsis", "respiratory failure"},
		Common:      true,
	},
	{
		Name:        "Asthma Exacerbation",
		ICD10:       "J45.9",
		Category:    "Pulmonology",
		Symptoms:    []string{"wheezing", "shortness of breath", "cough", "chest tightness"},
		RiskFactors: []string{"allergens", "infections", "medications"},
		RedFlags:    []string{"severe bronchospasm", "inability to speak"},
		Common:      true,
	},
	{
		Name:        "Pulmonary Fibrosis",
		ICD10:       "J84.10",
		Category:    "Pulmonology",
		Symptoms:    []string{"dyspnea on exertion", "dry cough", "fatigue", "clubbing", "weight loss"},
		RiskFactors: []string{"occupational exposure", "medications", "autoimmune"},
		RedFlags:    []string{"acute exacerbation", "respiratory failure"},
		Common:      false,
	},
	// Gastrointestinal
	{
		Name:        "Acute Appendicitis",
		ICD10:       "K35.9",
		Category:    "Gastroenterology",
		Symptoms:    []string{"right lower quadrant pain", "abdominal pain", "nausea", "vomiting", "fever"},
		RiskFactors: []string{"age 10-30", "family history"},
		RedFlags:    []string{"peritonitis", "perforation"},
		Common:      true,
	},
	{
		Name:        "Gastroesophageal Reflux Disease",
		ICD10:       "K21.9",
		Category:    "Gastroenterology",
		Symptoms:    []string{"heartburn", "regurgitation", "chest pain", "cough"},
		RiskFactors: []string{"obesity", "pregnancy", "hiatal hernia"},
		RedFlags:    []string{"Barrett's esophagus", "stricture"},
		Common:      true,
	},
	{
		Name:        "Inflammatory Bowel Disease",
		ICD10:       "K50.90",
		Category:    "Gastroenterology",
		Symptoms:    []string{"abdominal pain", "diarrhea", "blood in stool", "weight loss"},
		RiskFactors: []string{"family history", "smoking", "age"},
		RedFlags:    []string{"severe bleeding", "perforation", "toxic megacolon"},
		Common:      false,
	},
	// Neurological
	{
		Name:        "Acute Stroke",
		ICD10:       "I63.9",
		Category:    "Neurology",
		Symptoms:    []string{"left-sided weakness", "weakness", "slurred speech", "facial droop", "confusion"},
		RiskFactors: []string{"hypertension", "diabetes", "atrial fibrillation", "smoking"},
		RedFlags:    []string{"large vessel occlusion", "hemorrhagic conversion"},
		Common:      true,
	},
	{
		Name:        "Migraine",
		ICD10:       "G43.909",
		Category:    "Neurology",
		Symptoms:    []string{"headache", "photophobia", "nausea", "visual aura"},
		RiskFactors: []string{"family history", "hormonal changes", "stress"},
		RedFlags:    []string{"thunderclap onset", "neurological deficit"},
		Common:      true,
	},
	// Rheumatology / Immunology
	{
		Name:        "Systemic Lupus Erythematosus",
		ICD10:       "M32.9",
		Category:    "Rheumatology",
		Symptoms:    []string{"polyarthralgia", "malar rash", "fatigue", "hair loss", "fever"},
		RiskFactors: []string{"female sex", "family history", "age 15-45"},
		RedFlags:    []string{"lupus nephritis", "CNS involvement"},
		Common:      false,
	},
	{
		Name:        "Rheumatoid Arthritis",
		ICD10:       "M06.9",
		Category:    "Rheumatology",
		Symptoms:    []string{"polyarthralgia", "morning stiffness", "joint swelling", "fatigue"},
		RiskFactors: []string{"female sex", "smoking", "family history"},
		RedFlags:    []string{"cervical spine involvement", "vasculitis"},
		Common:      true,
	},
	// Endocrine
	{
		Name:        "Diabetic Ketoacidosis",
		ICD10:       "E10.10",
		Category:    "Endocrinology",
		Symptoms:    []string{"polyuria", "polydipsia", "nausea", "vomiting", "confusion", "abdominal pain"},
		RiskFactors: []string{"type 1 diabetes", "infection", "missed insulin"},
		RedFlags:    []string{"severe acidosis", "cerebral edema"},
		Common:      false,
	},
	{
		Name:        "Hypothyroidism",
		ICD10:       "E03.9",
		Category:    "Endocrinology",
		Symptoms:    []string{"fatigue", "weight gain", "cold intolerance", "constipation"},
		RiskFactors: []string{"female sex", "autoimmune disease", "age"},
		RedFlags:    []string{"myxedema coma"},
		Common:      true,
	},
	// Infectious
	{
		Name:        "Sepsis",
		ICD10:       "A41.9",
		Category:    "Infectious Disease",
		Symptoms:    []string{"fever", "confusion", "tachycardia", "hypotension", "rigors"},
		RiskFactors: []string{"immunocompromised", "indwelling devices", "recent surgery"},
		RedFlags:    []string{"septic shock", "organ dysfunction"},
		Common:      false,
	},
	{
		Name:        "Urinary Tract Infection",
		ICD10:       "N39.0",
		Category:    "Infectious Disease",
		Symptoms:    []string{"dysuria", "urinary frequency", "suprapubic pain", "fever"},
		RiskFactors: []string{"female sex", "catheterization", "diabetes"},
		RedFlags:    []string{"pyelonephritis", "urosepsis"},
		Common:      true,
	},
}

// Match is one condition with its symptom-overlap score against a case.
type Match struct {
	Condition Condition
	Score     float64 // fraction of condition symptoms reported, in [0,1]
}

// Conditions returns the full reference table.
func Conditions() []Condition {
	out := make([]Condition, len(conditions))
	copy(out, conditions)
	return out
}

// ConditionByName looks a condition up by exact (case-insensitive) name.
func ConditionByName(name string) (Condition, bool) {
	for _, c := range conditions {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Condition{}, false
}

// MatchConditions scores every catalog condition against the reported
// symptoms and returns matches with score > 0, best first. Ties break on
// common-over-rare, then name, so the ordering is stable for a given case.
func MatchConditions(symptoms []string) []Match {
	reported := make([]string, 0, len(symptoms))
	for _, s := range symptoms {
		reported = append(reported, strings.ToLower(strings.TrimSpace(s)))
	}

	var matches []Match
	for _, cond := range conditions {
		hits := 0
		for _, cs := range cond.Symptoms {
			if symptomReported(reported, strings.ToLower(cs)) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		matches = append(matches, Match{
			Condition: cond,
			Score:     float64(hits) / float64(len(cond.Symptoms)),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Condition.Common != matches[j].Condition.Common {
			return matches[i].Condition.Common
		}
		return matches[i].Condition.Name < matches[j].Condition.Name
	})
	return matches
}

// symptomReported matches on substring in either direction so that
// "severe chest pain" satisfies a catalog entry of "chest pain".
func symptomReported(reported []string, symptom string) bool {
	for _, r := range reported {
		if strings.Contains(r, symptom) || strings.Contains(symptom, r) {
			return true
		}
	}
	return false
}
