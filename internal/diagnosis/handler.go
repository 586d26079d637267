package diagnosis

import (
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"consilium/internal/caselib"
)

// ReportRenderer turns a finalized verdict into a document. Defined here
// to decouple from the specific report implementation.
type ReportRenderer interface {
	Render(v *Verdict) ([]byte, error)
}

type Handler struct {
	svc      Service
	renderer ReportRenderer
	defaults Config // server-level fallbacks for fields a request omits
}

func NewHandler(svc Service, renderer ReportRenderer, defaults Config) *Handler {
	return &Handler{svc: svc, renderer: renderer, defaults: defaults}
}

type StartSessionRequest struct {
	CaseID             string        `json:"case_id,omitempty"`
	Case               *caselib.Case `json:"case,omitempty"`
	Specialty          string        `json:"specialty,omitempty"`
	Mode               string        `json:"mode,omitempty"`
	Seed               int64         `json:"seed,omitempty"`
	ConsensusThreshold float64       `json:"consensus_threshold,omitempty"`
	MaxRounds          int           `json:"max_rounds,omitempty"`
}

// StartSession runs one diagnostic session to termination and returns the
// verdict with the full transcript.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	var c caselib.Case
	switch {
	case req.Case != nil:
		c = *req.Case
	case req.CaseID != "":
		found, ok := caselib.CaseByID(req.CaseID)
		if !ok {
			http.Error(w, "Unknown case id", http.StatusNotFound)
			return
		}
		c = found
	default:
		http.Error(w, "case or case_id is required", http.StatusBadRequest)
		return
	}

	cfg := Config{
		Mode:               Mode(strings.ToLower(req.Mode)),
		Specialty:          req.Specialty,
		Seed:               req.Seed,
		ConsensusThreshold: req.ConsensusThreshold,
		MaxRounds:          req.MaxRounds,
	}
	if cfg.Mode == "" {
		cfg.Mode = h.defaults.Mode
	}
	if cfg.Seed == 0 {
		cfg.Seed = h.defaults.Seed
	}

	v, err := h.svc.Run(r.Context(), c, cfg)
	if err != nil {
		var ice *InvalidCaseError
		if errors.As(err, &ice) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Session failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) GetVerdict(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	v, err := h.svc.Verdict(r.Context(), id)
	if err != nil {
		http.Error(w, "Verdict not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// GetSessionStatus reports the live progress of an in-flight session:
// current phase, round, committed turns and trend so far.
func (h *Handler) GetSessionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	st, ok := h.svc.ActiveSession(id)
	if !ok {
		http.Error(w, "No active session", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	v, err := h.svc.Verdict(r.Context(), id)
	if err != nil {
		http.Error(w, "Verdict not found", http.StatusNotFound)
		return
	}

	pdfData, err := h.renderer.Render(v)
	if err != nil {
		http.Error(w, "Report generation failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Write(pdfData)
}

func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(caselib.SampleCases())
}

// GenerateCase builds a synthetic presentation for a catalog condition.
// An explicit seed makes the result reproducible.
func (h *Handler) GenerateCase(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("condition")
	if name == "" {
		http.Error(w, "condition is required", http.StatusBadRequest)
		return
	}
	cond, ok := caselib.ConditionByName(name)
	if !ok {
		http.Error(w, "Unknown condition", http.StatusNotFound)
		return
	}

	seed, err := strconv.ParseInt(r.URL.Query().Get("seed"), 10, 64)
	if err != nil || seed == 0 {
		seed = time.Now().UnixNano()
	}
	c := caselib.GenerateCase(cond, rand.New(rand.NewSource(seed)), 1)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/cases", h.ListCases)
	r.Get("/cases/generate", h.GenerateCase)
	r.Post("/sessions", h.StartSession)
	r.Get("/sessions/{id}", h.GetVerdict)
	r.Get("/sessions/{id}/status", h.GetSessionStatus)
	r.Get("/sessions/{id}/report", h.GetReport)
}
