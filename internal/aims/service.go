package aims

import (
	"context"
	"time"

	"github.com/golang-sql/civil"
	"github.com/rs/zerolog"

	apperrors "github.com/behavioral-quality/aimsreport/internal/shared/errors"
	"github.com/behavioral-quality/aimsreport/internal/shared/metrics"
	"github.com/behavioral-quality/aimsreport/internal/shared/types"
)

// Source reads the four report input collections from a data store.
// Implementations return a *errors.DataAccessError on failure and never a
// partially filled snapshot.
type Source interface {
	// Name identifies the store in logs, metrics and errors.
	Name() string
	// Snapshot loads the input needed to report as of measurementDate.
	// Sources may drop rows that cannot affect that date.
	Snapshot(ctx context.Context, measurementDate civil.Date) (*Snapshot, error)
	Health(ctx context.Context) error
}

// Service generates AIMS reports from a Source.
type Service struct {
	source Source
	rules  Rules
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a new report service
func NewService(source Source, rules Rules, logger zerolog.Logger) *Service {
	return &Service{
		source: source,
		rules:  rules,
		logger: logger.With().Str("component", "aims").Str("source", source.Name()).Logger(),
		now:    time.Now,
	}
}

// Rules returns the reference data the service reports with.
func (s *Service) Rules() Rules {
	return s.rules
}

// SourceName returns the configured source name.
func (s *Service) SourceName() string {
	return s.source.Name()
}

// Health checks the underlying source.
func (s *Service) Health(ctx context.Context) error {
	return s.source.Health(ctx)
}

// Generate runs the report as of measurementDate. A zero date selects the
// configured default. Either the complete report or an error is returned.
func (s *Service) Generate(ctx context.Context, measurementDate civil.Date) (*Report, error) {
	if measurementDate == (civil.Date{}) {
		measurementDate = s.rules.DefaultMeasurementDate
	}

	runID := types.NewID()
	log := s.logger.With().
		Str("run_id", runID.String()).
		Str("measurement_date", measurementDate.String()).
		Logger()

	start := s.now()
	log.Debug().Msg("generating AIMS report")

	snap, err := s.source.Snapshot(ctx, measurementDate)
	if err != nil {
		metrics.RecordReportRun(s.source.Name(), false, time.Since(start))

		dae, ok := apperrors.AsDataAccess(err)
		if !ok {
			dae = apperrors.DataAccess(s.source.Name(), "load snapshot", err)
		}
		log.Error().
			Err(err).
			Str("severity", dae.Severity).
			Str("state", dae.State).
			Msg("failed to load report input")
		return nil, dae
	}

	rows := BuildReport(snap, measurementDate, s.rules)
	summary := Summarize(rows)

	elapsed := time.Since(start)
	metrics.RecordReportRun(s.source.Name(), true, elapsed)
	metrics.RecordReportRows(summaryLabels(summary))

	log.Info().
		Int("rows", len(rows)).
		Int("current", summary[RiskCurrent]).
		Int("overdue", summary[RiskOverdue]).
		Int("missing", summary[RiskNoAIMS]).
		Dur("elapsed", elapsed).
		Msg("generated AIMS report")

	return &Report{
		RunID:           runID,
		Source:          s.source.Name(),
		MeasurementDate: measurementDate,
		GeneratedAt:     start.UTC(),
		Summary:         summary,
		Rows:            rows,
	}, nil
}

func summaryLabels(summary map[RiskBucket]int) map[string]int {
	out := make(map[string]int, len(summary))
	for b, n := range summary {
		out[string(b)] = n
	}
	return out
}
