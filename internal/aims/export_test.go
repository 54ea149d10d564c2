package aims

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/behavioral-quality/aimsreport/internal/shared/types"
)

func TestWriteXLSX(t *testing.T) {
	snap := fixture()
	snap.Clients = append(snap.Clients, Client{ID: 101, FirstName: "Ivan", LastName: "Ilic", Active: true})
	noPrescriber := episode(2, 101, "Haloperidol", "2025-02-01")
	noPrescriber.PrescriberID = nil
	snap.Medications = []MedicationEpisode{episode(1, 100, "Clozapine", "2025-01-15"), noPrescriber}
	snap.Screenings = []ScreeningRecord{screening(1, 100, "2025-02-01", scorePtr(4.5))}

	rows := BuildReport(snap, measurement, DefaultRules())
	report := &Report{
		RunID:           types.NewID(),
		Source:          "snapshot",
		MeasurementDate: measurement,
		GeneratedAt:     time.Date(2025, 5, 13, 8, 0, 0, 0, time.UTC),
		Summary:         Summarize(rows),
		Rows:            rows,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, report))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{reportSheet, summarySheet}, f.GetSheetList())

	sheet, err := f.GetRows(reportSheet)
	require.NoError(t, err)
	require.Len(t, sheet, 3)
	assert.Equal(t, ExportHeader, sheet[0])

	current := sheet[1]
	assert.Equal(t, "100", current[0])
	assert.Equal(t, "Clozapine", current[3])
	assert.Equal(t, "2025-01-15", current[4])
	assert.Equal(t, "Petrovic, Marko", current[7])
	assert.Equal(t, "2025-02-01", current[8])
	assert.Equal(t, "4.5", current[9])
	assert.Equal(t, "Current", current[11])
	assert.Equal(t, "1", current[15])

	missing := sheet[2]
	assert.Equal(t, "101", missing[0])
	assert.Equal(t, "", missing[7])
	assert.Equal(t, "No AIMS Since AP Start", missing[11])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Source", "snapshot"}, summary[1])
	assert.Equal(t, []string{"Measurement Date", "2025-05-12"}, summary[2])
	assert.Equal(t, []string{"Total", "2"}, summary[len(summary)-1])
}

func TestWriteXLSX_Empty(t *testing.T) {
	report := &Report{
		RunID:           types.NewID(),
		Source:          "snapshot",
		MeasurementDate: measurement,
		Summary:         Summarize(nil),
		Rows:            []ReportRow{},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, report))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	sheet, err := f.GetRows(reportSheet)
	require.NoError(t, err)
	assert.Len(t, sheet, 1)
}
