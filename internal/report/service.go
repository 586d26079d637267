package report

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/signintech/gopdf"

	"consilium/internal/diagnosis"
	"consilium/internal/logging"
)

// Service renders a finalized verdict into a PDF consultation report. It
// is a pure consumer of the finished session data; it never participates
// in diagnostic decisions.
type Service struct {
	fontPaths []string
	log       *slog.Logger
}

func NewService() *Service {
	return &Service{
		// common locations across distros
		fontPaths: []string{
			"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		},
		log: logging.WithComponent("report"),
	}
}

// Render produces the PDF bytes for a verdict.
func (s *Service) Render(v *diagnosis.Verdict) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	var fontErr error
	fontLoaded := false
	for _, path := range s.fontPaths {
		if err := pdf.AddTTFFont("DejaVu", path); err == nil {
			fontLoaded = true
			break
		} else {
			fontErr = err
		}
	}
	if !fontLoaded {
		return nil, fmt.Errorf("failed to load font for PDF, ensure ttf-dejavu is installed: %w", fontErr)
	}

	if err := pdf.SetFont("DejaVu", "", 20); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Diagnostic Consultation Report")
	pdf.Br(30)

	// Patient and session header
	if err := pdf.SetFont("DejaVu", "", 12); err != nil {
		return nil, err
	}
	pdf.Cell(nil, fmt.Sprintf("Date: %s", v.CompletedAt.Format("2006-01-02 15:04")))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("Session: %s", v.SessionID))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("Patient: %s, %d-year-old %s", v.Case.ID, v.Case.Age, v.Case.Sex))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("Chief complaint: %s", v.Case.ChiefComplaint))
	pdf.Br(25)

	// Final diagnosis
	if err := pdf.SetFont("DejaVu", "", 14); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Final Diagnosis:")
	pdf.Br(15)
	if err := pdf.SetFont("DejaVu", "", 11); err != nil {
		return nil, err
	}
	lead := v.Leading.Name
	if lead == "" {
		lead = "No diagnosis established"
	}
	pdf.Cell(nil, fmt.Sprintf("%s (%s) - confidence %.0f%%", lead, orDash(v.Leading.ICD10Code), v.Confidence*100))
	pdf.Br(12)
	pdf.Cell(nil, fmt.Sprintf("Consensus reached: %v, termination: %s", v.ConsensusReached, v.TerminationReason))
	pdf.Br(20)

	// Differential
	if len(v.Differential) > 0 {
		if err := pdf.SetFont("DejaVu", "", 14); err != nil {
			return nil, err
		}
		pdf.Cell(nil, "Differential Diagnoses:")
		pdf.Br(15)
		if err := pdf.SetFont("DejaVu", "", 11); err != nil {
			return nil, err
		}
		for _, d := range v.Differential {
			s.writeWrapped(&pdf, fmt.Sprintf("- %s (%s): %.0f%%", d.Name, orDash(d.ICD10Code), d.Confidence*100))
		}
		pdf.Br(10)
	}

	// Red flags
	if len(v.RedFlags) > 0 {
		if err := pdf.SetFont("DejaVu", "", 14); err != nil {
			return nil, err
		}
		pdf.Cell(nil, "Red Flags:")
		pdf.Br(15)
		if err := pdf.SetFont("DejaVu", "", 11); err != nil {
			return nil, err
		}
		for _, f := range v.RedFlags {
			s.writeWrapped(&pdf, "- "+f)
		}
		pdf.Br(10)
	}

	// Confidence trend
	if len(v.Trend) > 0 {
		if err := pdf.SetFont("DejaVu", "", 14); err != nil {
			return nil, err
		}
		pdf.Cell(nil, "Confidence Trend:")
		pdf.Br(15)
		if err := pdf.SetFont("DejaVu", "", 11); err != nil {
			return nil, err
		}
		points := make([]string, len(v.Trend))
		for i, p := range v.Trend {
			points[i] = fmt.Sprintf("%.0f%%", p*100)
		}
		pdf.Cell(nil, strings.Join(points, " -> "))
		pdf.Br(20)
	}

	// Transcript
	if err := pdf.SetFont("DejaVu", "", 14); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Consultation Transcript:")
	pdf.Br(15)
	if err := pdf.SetFont("DejaVu", "", 10); err != nil {
		return nil, err
	}
	for _, t := range v.Turns {
		a := t.Assessment
		top, _ := a.Top()
		s.writeWrapped(&pdf, fmt.Sprintf("[%d] %s (%s): %s, %.0f%%",
			t.Index, roleLabel(a.Role), a.Timestamp.Format(time.Kitchen), top.Name, top.Confidence*100))
		if a.Reasoning != "" {
			s.writeWrapped(&pdf, "    "+a.Reasoning)
		}
		for _, d := range t.Dialogue {
			s.writeWrapped(&pdf, "    "+d)
		}
		pdf.Br(4)
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	s.log.Info("report rendered", "session_id", v.SessionID, "bytes", buf.Len())
	return buf.Bytes(), nil
}

func (s *Service) writeWrapped(pdf *gopdf.GoPdf, line string) {
	lines, err := pdf.SplitText(line, 500)
	if err != nil {
		lines = []string{line}
	}
	for _, l := range lines {
		pdf.Cell(nil, l)
		pdf.Br(12)
	}
}

func roleLabel(r diagnosis.AgentRole) string {
	switch r {
	case diagnosis.RolePrimaryCare:
		return "Primary Care"
	case diagnosis.RoleSpecialist:
		return "Specialist"
	case diagnosis.RoleSeniorAttending:
		return "Senior Attending"
	default:
		return string(r)
	}
}

func orDash(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
