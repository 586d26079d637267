package caselib

import (
	"fmt"
	"math/rand"
)

// GenerateCase builds a plausible synthetic presentation for a catalog
// condition. All randomness comes from the provided source, so the same
// seed always yields the same case.
func GenerateCase(cond Condition, rng *rand.Rand, seq int) Case {
	age := 25 + rng.Intn(50)
	if cond.Category == "Cardiology" || cond.Category == "Neurology" {
		age = 45 + rng.Intn(40)
	}
	sex := "Male"
	if rng.Intn(2) == 1 {
		sex = "Female"
	}

	n := 2 + rng.Intn(min(3, len(cond.Symptoms))-1)
	symptoms := make([]string, 0, n)
	perm := rng.Perm(len(cond.Symptoms))
	for _, i := range perm[:n] {
		symptoms = append(symptoms, cond.Symptoms[i])
	}

	severity := [...]string{"mild", "moderate", "severe"}[rng.Intn(3)]
	if len(cond.RedFlags) > 0 && rng.Intn(2) == 0 {
		severity = "severe"
	}

	history := "None significant"
	if len(cond.RiskFactors) > 0 {
		history = cond.RiskFactors[rng.Intn(len(cond.RiskFactors))]
	}

	return Case{
		ID:             fmt.Sprintf("SYNTH_%s_%03d", cond.ICD10, seq),
		Age:            age,
		Sex:            sex,
		ChiefComplaint: symptoms[0],
		Symptoms:       symptoms,
		Duration:       [...]string{"2 hours", "1 day", "3 days", "2 weeks"}[rng.Intn(4)],
		Severity:       severity,
		History: History{
			PastMedical: history,
			Medications: "None listed",
			Allergies:   "NKDA",
			Family:      "Not specified",
			Social:      "Not specified",
		},
		VitalSigns:   generateVitals(rng, severity),
		PhysicalExam: "See reported symptoms",
	}
}

func generateVitals(rng *rand.Rand, severity string) string {
	sys := 110 + rng.Intn(30)
	dia := 70 + rng.Intn(20)
	hr := 60 + rng.Intn(40)
	rr := 12 + rng.Intn(8)
	temp := 98.0 + rng.Float64()
	o2 := 95 + rng.Intn(5)

	if severity == "severe" {
		hr += 10 + rng.Intn(30)
		rr += 5 + rng.Intn(10)
		o2 -= 3 + rng.Intn(8)
	}

	return fmt.Sprintf("BP %d/%d, HR %d, RR %d, Temp %.1fF, O2 Sat %d%%", sys, dia, hr, rr, temp, o2)
}
