package diagnosis_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consilium/internal/agent"
	"consilium/internal/caselib"
	"consilium/internal/diagnosis"
)

type stubRenderer struct{}

func (stubRenderer) Render(*diagnosis.Verdict) ([]byte, error) {
	return []byte("%PDF-stub"), nil
}

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	svc := diagnosis.NewService(agent.NewPanelFactory(nil), nil)
	h := diagnosis.NewHandler(svc, stubRenderer{}, diagnosis.Config{Mode: diagnosis.ModeDemo, Seed: 1})
	r := chi.NewRouter()
	diagnosis.RegisterRoutes(r, h)
	return r
}

func TestStartSessionWithKnownCase(t *testing.T) {
	r := newTestRouter(t)

	body := `{"case_id":"CASE_001","mode":"demo","seed":42}`
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var v diagnosis.Verdict
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.NotEmpty(t, v.Leading.Name)
	assert.GreaterOrEqual(t, len(v.Turns), 3)
	assert.Len(t, v.Trend, len(v.Turns))
	for _, p := range v.Trend {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
	assert.NotEmpty(t, v.TerminationReason)
}

func TestStartSessionWithInlineCase(t *testing.T) {
	r := newTestRouter(t)

	payload := map[string]any{
		"mode": "demo",
		"seed": 7,
		"case": caselib.Case{
			ID:             "INLINE_1",
			Age:            48,
			Sex:            "Female",
			ChiefComplaint: "shortness of breath",
			Symptoms:       []string{"shortness of breath", "cough", "fever"},
			Severity:       "moderate",
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBuffer(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var v diagnosis.Verdict
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, "INLINE_1", v.Case.ID)
}

func TestStartSessionUnknownCaseID(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString(`{"case_id":"NOPE"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartSessionInvalidInlineCase(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString(`{"case":{"id":"X"}}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartSessionMalformedBody(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString(`{not json`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCases(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/cases", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var cases []caselib.Case
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cases))
	assert.Len(t, cases, len(caselib.SampleCases()))
}

func TestStartSessionUsesServerDefaults(t *testing.T) {
	r := newTestRouter(t)

	// no mode or seed in the request: the handler's defaults apply, so a
	// demo session runs deterministically
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString(`{"case_id":"CASE_001"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestGenerateCase(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/cases/generate?condition=Pneumonia&seed=42", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var c caselib.Case
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, "SYNTH_J18.9_001", c.ID)
	assert.NotEmpty(t, c.Symptoms)

	// same seed, same case
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/cases/generate?condition=Pneumonia&seed=42", nil))
	assert.Equal(t, w.Body.String(), w2.Body.String())
}

func TestGenerateCaseUnknownCondition(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/cases/generate?condition=Dragon+Pox", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateCaseRequiresCondition(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/cases/generate", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVerdictInvalidID(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions/not-a-uuid", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVerdictWithoutArchive(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions/6ba7b810-9dad-11d1-80b4-00c04fd430c8", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSessionStatusNotRunning(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions/6ba7b810-9dad-11d1-80b4-00c04fd430c8/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSessionStatusInvalidID(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions/not-a-uuid/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetReportWithoutArchive(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions/6ba7b810-9dad-11d1-80b4-00c04fd430c8/report", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
