package aims

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-sql/civil"

	"github.com/behavioral-quality/aimsreport/internal/shared/errors"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Generator produces reports; *Service implements it.
type Generator interface {
	Generate(ctx context.Context, measurementDate civil.Date) (*Report, error)
	Rules() Rules
}

// Handler provides HTTP handlers for the AIMS report
type Handler struct {
	svc Generator
}

// NewHandler creates a new report handler
func NewHandler(svc Generator) *Handler {
	return &Handler{svc: svc}
}

// Routes registers the report routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/aims", func(r chi.Router) {
		r.Get("/", h.GetReport)
		r.Get("/reference", h.GetReference)
	})

	return r
}

// GetReport runs the report for ?measurement_date=YYYY-MM-DD (optional) and
// returns it as JSON or, with ?format=xlsx, as a workbook.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	var date civil.Date
	if raw := r.URL.Query().Get("measurement_date"); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			writeError(w, errors.BadRequest("measurement_date must be a calendar date in YYYY-MM-DD format"))
			return
		}
		date = d
	}

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format != "" && format != "json" && format != "xlsx" {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"format": "format must be json or xlsx",
		}))
		return
	}

	report, err := h.svc.Generate(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}

	if format == "xlsx" {
		// Render fully before writing headers so a failure still yields a JSON error.
		var buf bytes.Buffer
		if err := WriteXLSX(&buf, report); err != nil {
			writeError(w, errors.Wrap(err, "failed to render workbook"))
			return
		}
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="aims-report-%s.xlsx"`, report.MeasurementDate))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// ReferenceResponse describes the reference data the report evaluates.
type ReferenceResponse struct {
	DefaultMeasurementDate civil.Date `json:"default_measurement_date"`
	Antipsychotics         []string   `json:"antipsychotics"`
	ActiveStatusCodes      []string   `json:"active_status_codes"`
	OverdueDays            int        `json:"overdue_days"`
	HighScoreThreshold     float64    `json:"high_score_threshold"`
	TestNamePattern        string     `json:"test_name_pattern"`
	RiskBuckets            []string   `json:"risk_buckets"`
}

// GetReference returns the reference lists and thresholds in effect.
func (h *Handler) GetReference(w http.ResponseWriter, r *http.Request) {
	rules := h.svc.Rules()

	buckets := make([]string, len(RiskBuckets))
	for i, b := range RiskBuckets {
		buckets[i] = string(b)
	}

	writeJSON(w, http.StatusOK, ReferenceResponse{
		DefaultMeasurementDate: rules.DefaultMeasurementDate,
		Antipsychotics:         rules.Antipsychotics(),
		ActiveStatusCodes:      rules.ActiveStatusCodes(),
		OverdueDays:            rules.OverdueDays,
		HighScoreThreshold:     rules.HighScoreThreshold,
		TestNamePattern:        rules.TestNamePattern,
		RiskBuckets:            buckets,
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	appErr, ok := err.(*errors.AppError)
	if dae, isDataAccess := errors.AsDataAccess(err); isDataAccess {
		appErr, ok = errors.FromDataAccess(dae), true
	}

	if ok {
		writeJSON(w, appErr.HTTPStatus, map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}
