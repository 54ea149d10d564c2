package aims

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/behavioral-quality/aimsreport/internal/shared/errors"
)

type fakeSource struct {
	snap      *Snapshot
	err       error
	requested []civil.Date
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Snapshot(ctx context.Context, measurementDate civil.Date) (*Snapshot, error) {
	f.requested = append(f.requested, measurementDate)
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

func (f *fakeSource) Health(ctx context.Context) error { return f.err }

func sampleSnapshot() *Snapshot {
	snap := fixture()
	snap.Medications = []MedicationEpisode{episode(1, 100, "Clozapine 100mg", "2025-01-15")}
	snap.Screenings = []ScreeningRecord{screening(1, 100, "2025-02-01", scorePtr(4))}
	return snap
}

func TestServiceGenerate(t *testing.T) {
	src := &fakeSource{snap: sampleSnapshot()}
	svc := NewService(src, DefaultRules(), zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2025, 5, 13, 8, 0, 0, 0, time.UTC) }

	report, err := svc.Generate(context.Background(), measurement)
	require.NoError(t, err)

	assert.False(t, report.RunID.IsZero())
	assert.Equal(t, "fake", report.Source)
	assert.Equal(t, measurement, report.MeasurementDate)
	assert.Equal(t, time.Date(2025, 5, 13, 8, 0, 0, 0, time.UTC), report.GeneratedAt)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, RiskCurrent, report.Rows[0].RiskBucket)
	assert.Equal(t, 1, report.Rows[0].HasHighAimsScore)
	assert.Equal(t, 1, report.Summary[RiskCurrent])
	assert.Equal(t, 0, report.Summary[RiskNoAIMS])
}

func TestServiceGenerate_DefaultDate(t *testing.T) {
	src := &fakeSource{snap: &Snapshot{}}
	rules := DefaultRules()
	rules.DefaultMeasurementDate = mustDate("2024-01-31")
	svc := NewService(src, rules, zerolog.Nop())

	report, err := svc.Generate(context.Background(), civil.Date{})
	require.NoError(t, err)

	assert.Equal(t, mustDate("2024-01-31"), report.MeasurementDate)
	assert.Equal(t, []civil.Date{mustDate("2024-01-31")}, src.requested)
	assert.NotNil(t, report.Rows)
	assert.Empty(t, report.Rows)
}

func TestServiceGenerate_PassesDataAccessErrorThrough(t *testing.T) {
	dae := apperrors.DataAccess("fake", "load clients", errors.New("Login failed for user 'report_reader'."))
	dae.Severity = "14"
	dae.State = "1"
	svc := NewService(&fakeSource{err: dae}, DefaultRules(), zerolog.Nop())

	report, err := svc.Generate(context.Background(), measurement)

	assert.Nil(t, report)
	got, ok := apperrors.AsDataAccess(err)
	require.True(t, ok)
	assert.Same(t, dae, got)
	assert.Equal(t, "Login failed for user 'report_reader'.", got.Message)
	assert.Equal(t, "14", got.Severity)
	assert.Equal(t, "1", got.State)
}

func TestServiceGenerate_WrapsPlainErrors(t *testing.T) {
	svc := NewService(&fakeSource{err: context.DeadlineExceeded}, DefaultRules(), zerolog.Nop())

	report, err := svc.Generate(context.Background(), measurement)

	assert.Nil(t, report)
	assert.True(t, errors.Is(err, apperrors.ErrDataAccess))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	dae, ok := apperrors.AsDataAccess(err)
	require.True(t, ok)
	assert.Equal(t, "fake", dae.Source)
}
