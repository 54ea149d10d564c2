package aims

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "github.com/behavioral-quality/aimsreport/internal/shared/errors"
)

func newTestServer(src Source) http.Handler {
	return NewHandler(NewService(src, DefaultRules(), zerolog.Nop())).Routes()
}

func TestGetReport_JSON(t *testing.T) {
	src := &fakeSource{snap: sampleSnapshot()}
	srv := newTestServer(src)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/aims/?measurement_date=2025-05-12", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		MeasurementDate string           `json:"measurement_date"`
		Summary         map[string]int   `json:"summary"`
		Rows            []map[string]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, "2025-05-12", body.MeasurementDate)
	assert.Equal(t, 1, body.Summary["Current"])
	require.Len(t, body.Rows, 1)
	row := body.Rows[0]
	assert.Equal(t, float64(100), row["client_id"])
	assert.Equal(t, "2025-01-15", row["start_date"])
	assert.Nil(t, row["end_date"])
	assert.Equal(t, "Petrovic, Marko", row["prescriber_name"])
	assert.Equal(t, "2025-02-01", row["last_aims_date"])
	assert.Equal(t, "Current", row["risk_bucket"])
	assert.Equal(t, float64(1), row["has_aims_screening"])
	assert.Equal(t, float64(1), row["has_high_aims_score"])
	assert.Len(t, row, 16)
}

func TestGetReport_DefaultDate(t *testing.T) {
	src := &fakeSource{snap: &Snapshot{}}
	srv := newTestServer(src)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/aims/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, src.requested, 1)
	assert.Equal(t, DefaultMeasurementDate, src.requested[0])
}

func TestGetReport_BadRequest(t *testing.T) {
	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"bad date", "?measurement_date=05/12/2025", "BAD_REQUEST"},
		{"impossible date", "?measurement_date=2025-02-30", "BAD_REQUEST"},
		{"bad format", "?format=pdf", "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{snap: &Snapshot{}}
			srv := newTestServer(src)

			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/aims/"+tt.query, nil))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
			assert.Empty(t, src.requested)
		})
	}
}

func TestGetReport_DataAccessError(t *testing.T) {
	dae := apperrors.DataAccess("sqlserver", "load medications", errors.New("Invalid column name 'StatusCode'."))
	dae.Severity = "16"
	dae.State = "1"
	dae.Code = "207"
	srv := newTestServer(&fakeSource{err: dae})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/aims/", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body struct {
		Error   string            `json:"error"`
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "DATA_ACCESS_ERROR", body.Code)
	assert.Equal(t, "Invalid column name 'StatusCode'.", body.Error)
	assert.Equal(t, "16", body.Details["severity"])
	assert.Equal(t, "1", body.Details["state"])
	assert.Equal(t, "207", body.Details["code"])
	assert.NotContains(t, rec.Body.String(), "rows")
}

func TestGetReport_XLSX(t *testing.T) {
	srv := newTestServer(&fakeSource{snap: sampleSnapshot()})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/aims/?format=xlsx&measurement_date=2025-05-12", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "aims-report-2025-05-12.xlsx")

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(reportSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestGetReference(t *testing.T) {
	srv := newTestServer(&fakeSource{snap: &Snapshot{}})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/aims/reference", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body ReferenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, DefaultMeasurementDate, body.DefaultMeasurementDate)
	assert.Contains(t, body.Antipsychotics, "clozapine")
	assert.Contains(t, body.ActiveStatusCodes, "ACTIVE")
	assert.Equal(t, 180, body.OverdueDays)
	assert.Equal(t, []string{"Current", "No AIMS Since AP Start", "Routine AIMS Overdue"}, body.RiskBuckets)
}
