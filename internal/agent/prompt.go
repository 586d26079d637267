package agent

import (
	"fmt"
	"strings"

	"consilium/internal/caselib"
	"consilium/internal/diagnosis"
)

var safetyGuardrails = []string{
	"Always acknowledge uncertainty when evidence is insufficient.",
	"Prioritize patient safety over diagnostic certainty.",
	"Flag any life-threatening conditions immediately.",
	"Base diagnoses only on provided symptoms and clinical evidence.",
	"Recommend appropriate diagnostic tests when needed.",
	"Consider differential diagnoses systematically.",
}

func systemPrompt(role diagnosis.AgentRole, specialty string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s with expertise in %s.\n\nClinical Guidelines:\n", roleTitle(role), specialty)
	for _, g := range safetyGuardrails {
		fmt.Fprintf(&b, "- %s\n", g)
	}
	b.WriteString(`
Your responses must follow evidence-based medicine, use structured clinical
reasoning, and provide confidence scores (0-100%) for diagnoses.

Always format your response as valid JSON with this structure:
{
    "primary_diagnosis": "condition name",
    "confidence": confidence_percentage,
    "reasoning": "detailed clinical reasoning",
    "differential_diagnoses": ["alternative1", "alternative2"],
    "recommended_tests": ["test1", "test2"],
    "red_flags": ["concern1", "concern2"],
    "icd10_code": "code if confident"
}
`)

	switch role {
	case diagnosis.RolePrimaryCare:
		b.WriteString(`
As a Primary Care Physician, focus on common conditions, appropriate
referrals, and cost-effective workup. Consider the most common diagnoses
first (horses, not zebras) unless red flags suggest otherwise.
`)
	case diagnosis.RoleSpecialist:
		fmt.Fprintf(&b, `
As a %s Specialist, consider both common and uncommon conditions within
your specialty, and provide detailed rationale for advanced testing or
procedures.
`, specialty)
	case diagnosis.RoleSeniorAttending:
		b.WriteString(`
As a Senior Attending Physician, review and synthesize the other
physicians' input, identify gaps or missed diagnoses, and make the final
diagnostic recommendation with clear reasoning.
`)
	}
	return b.String()
}

func roleTitle(role diagnosis.AgentRole) string {
	switch role {
	case diagnosis.RolePrimaryCare:
		return "Primary Care Physician"
	case diagnosis.RoleSpecialist:
		return "Specialist Consultant"
	case diagnosis.RoleSeniorAttending:
		return "Senior Attending Physician"
	default:
		return "Physician"
	}
}

func clinicalPrompt(c caselib.Case, prior []diagnosis.ConversationTurn) string {
	var b strings.Builder
	b.WriteString("Patient Case Analysis Required:\n\n")
	fmt.Fprintf(&b, "CHIEF COMPLAINT: %s\n\n", c.ChiefComplaint)
	b.WriteString("PRESENT ILLNESS:\n")
	fmt.Fprintf(&b, "- Age: %d\n- Sex: %s\n- Symptoms: %s\n- Duration: %s\n- Severity: %s\n\n",
		c.Age, c.Sex, strings.Join(c.Symptoms, ", "), c.Duration, c.Severity)
	fmt.Fprintf(&b, "PAST MEDICAL HISTORY: %s\n", c.History.PastMedical)
	fmt.Fprintf(&b, "MEDICATIONS: %s\n", c.History.Medications)
	fmt.Fprintf(&b, "ALLERGIES: %s\n", c.History.Allergies)
	fmt.Fprintf(&b, "FAMILY HISTORY: %s\n", c.History.Family)
	fmt.Fprintf(&b, "SOCIAL HISTORY: %s\n\n", c.History.Social)
	fmt.Fprintf(&b, "VITAL SIGNS: %s\n", c.VitalSigns)
	fmt.Fprintf(&b, "PHYSICAL EXAM: %s\n\n", c.PhysicalExam)

	b.WriteString("ADDITIONAL CONTEXT FROM OTHER CLINICIANS:\n")
	if len(prior) == 0 {
		b.WriteString("None provided\n")
	} else {
		b.WriteString(summarizePrior(prior))
	}
	b.WriteString("\nPlease provide your clinical assessment following the JSON format specified in your instructions.\n")
	return b.String()
}

// summarizePrior condenses earlier turns into the context block handed to
// the next agent, most recent last.
func summarizePrior(prior []diagnosis.ConversationTurn) string {
	var b strings.Builder
	for _, t := range prior {
		a := t.Assessment
		top, ok := a.Top()
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s assessed: %s (confidence %.0f%%)\n", roleTitle(a.Role), top.Name, top.Confidence*100)
		if a.Reasoning != "" {
			fmt.Fprintf(&b, "  Reasoning: %s\n", a.Reasoning)
		}
		if len(a.Candidates) > 1 {
			names := make([]string, 0, len(a.Candidates)-1)
			for _, cand := range a.Candidates[1:] {
				names = append(names, cand.Name)
			}
			fmt.Fprintf(&b, "  Differential: %s\n", strings.Join(names, ", "))
		}
		if len(a.RedFlags) > 0 {
			fmt.Fprintf(&b, "  Red flags: %s\n", strings.Join(a.RedFlags, ", "))
		}
	}
	return b.String()
}
