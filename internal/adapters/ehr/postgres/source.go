package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/golang-sql/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/behavioral-quality/aimsreport/internal/aims"
	apperrors "github.com/behavioral-quality/aimsreport/internal/shared/errors"
	"github.com/behavioral-quality/aimsreport/internal/shared/metrics"
)

const sourceName = "postgres"

// Querier is the subset of *pgxpool.Pool the source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// Source implements aims.Source for the reporting replica schema created by
// the embedded migrations.
type Source struct {
	db Querier
}

var _ aims.Source = (*Source)(nil)

// New creates a new Postgres source
func New(db Querier) *Source {
	return &Source{db: db}
}

// Name returns the source name
func (s *Source) Name() string {
	return sourceName
}

// Health checks database connectivity
func (s *Source) Health(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Snapshot reads the four report inputs from the reporting schema.
func (s *Source) Snapshot(ctx context.Context, measurementDate civil.Date) (*aims.Snapshot, error) {
	asOf := measurementDate.In(time.UTC)
	snap := &aims.Snapshot{}

	err := s.query(ctx, "load clients", `
		SELECT client_id, first_name, last_name, active
		FROM reporting.clients
	`, nil, func(rows pgx.Rows) error {
		var c aims.Client
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Active); err != nil {
			return err
		}
		snap.Clients = append(snap.Clients, c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.query(ctx, "load medications", `
		SELECT episode_id, client_id, medication_name, start_date,
		       discontinue_date, prescriber_id, status_code
		FROM reporting.client_medications
		WHERE start_date <= $1
	`, []any{asOf}, func(rows pgx.Rows) error {
		var ep aims.MedicationEpisode
		var start time.Time
		var end *time.Time
		if err := rows.Scan(&ep.EpisodeID, &ep.ClientID, &ep.MedicationName, &start,
			&end, &ep.PrescriberID, &ep.StatusCode); err != nil {
			return err
		}
		ep.StartDate = civil.DateOf(start)
		if end != nil {
			d := civil.DateOf(*end)
			ep.EndDate = &d
		}
		snap.Medications = append(snap.Medications, ep)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.query(ctx, "load employees", `
		SELECT employee_id, first_name, last_name
		FROM reporting.employees
	`, nil, func(rows pgx.Rows) error {
		var e aims.Employee
		if err := rows.Scan(&e.ID, &e.FirstName, &e.LastName); err != nil {
			return err
		}
		snap.Employees = append(snap.Employees, e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.query(ctx, "load screenings", `
		SELECT record_id, client_id, aims_date, aims_score
		FROM reporting.client_extensions
		WHERE aims_date IS NOT NULL AND aims_date <= $1
	`, []any{asOf}, func(rows pgx.Rows) error {
		var r aims.ScreeningRecord
		var date time.Time
		if err := rows.Scan(&r.RecordID, &r.ClientID, &date, &r.Score); err != nil {
			return err
		}
		r.Date = civil.DateOf(date)
		snap.Screenings = append(snap.Screenings, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return snap, nil
}

func (s *Source) query(ctx context.Context, op, sql string, args []any, scan func(pgx.Rows) error) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBQuery(sourceName, op, time.Since(start), err)
	}()

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return dataAccessError(op, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return dataAccessError(op, err)
		}
	}
	if err := rows.Err(); err != nil {
		return dataAccessError(op, err)
	}
	return nil
}

// dataAccessError copies the server severity and SQLSTATE when available.
func dataAccessError(op string, err error) *apperrors.DataAccessError {
	dae := apperrors.DataAccess(sourceName, op, err)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		dae.Message = pgErr.Message
		dae.Severity = pgErr.Severity
		dae.State = pgErr.Code
	}
	return dae
}
