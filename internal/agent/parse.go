package agent

import (
	"encoding/json"
	"fmt"
	"regexp"

	"consilium/internal/diagnosis"
)

// wireAssessment is the JSON shape the system prompt asks the model for.
type wireAssessment struct {
	PrimaryDiagnosis      string   `json:"primary_diagnosis"`
	Confidence            float64  `json:"confidence"` // percentage, 0-100
	Reasoning             string   `json:"reasoning"`
	DifferentialDiagnoses []string `json:"differential_diagnoses"`
	RecommendedTests      []string `json:"recommended_tests"`
	RedFlags              []string `json:"red_flags"`
	ICD10Code             string   `json:"icd10_code"`
}

// Models wrap JSON in prose more often than not; grab the outermost object.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// parseAssessment extracts the structured assessment from a raw completion.
// Anything that does not yield a usable diagnosis degrades to a ParseError,
// which the orchestrator handles as a recoverable turn failure.
func parseAssessment(raw string) (diagnosis.Assessment, error) {
	blob := jsonObjectPattern.FindString(raw)
	if blob == "" {
		return diagnosis.Assessment{}, &ParseError{Detail: "no JSON object in response"}
	}

	var w wireAssessment
	if err := json.Unmarshal([]byte(blob), &w); err != nil {
		return diagnosis.Assessment{}, &ParseError{Detail: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if w.PrimaryDiagnosis == "" {
		return diagnosis.Assessment{}, &ParseError{Detail: "missing primary_diagnosis"}
	}
	if w.Confidence < 0 || w.Confidence > 100 {
		return diagnosis.Assessment{}, &ParseError{Detail: fmt.Sprintf("confidence %.1f outside 0-100", w.Confidence)}
	}

	conf := w.Confidence / 100
	candidates := []diagnosis.DiagnosisCandidate{{
		Name:       w.PrimaryDiagnosis,
		ICD10Code:  w.ICD10Code,
		Confidence: conf,
	}}
	// Differentials come back as bare names; assign decaying confidences so
	// they stay ranked below the primary call.
	for i, name := range w.DifferentialDiagnoses {
		if name == "" {
			continue
		}
		dc := conf * (0.5 - 0.1*float64(i))
		if dc < 0.05 {
			dc = 0.05
		}
		candidates = append(candidates, diagnosis.DiagnosisCandidate{Name: name, Confidence: dc})
	}

	return diagnosis.Assessment{
		Candidates:       candidates,
		Reasoning:        w.Reasoning,
		RecommendedTests: w.RecommendedTests,
		RedFlags:         w.RedFlags,
		Urgent:           len(w.RedFlags) > 0,
	}, nil
}
