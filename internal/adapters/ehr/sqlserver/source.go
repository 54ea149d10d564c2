package sqlserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/golang-sql/civil"

	"github.com/behavioral-quality/aimsreport/internal/aims"
	"github.com/behavioral-quality/aimsreport/internal/shared/config"
	apperrors "github.com/behavioral-quality/aimsreport/internal/shared/errors"
	"github.com/behavioral-quality/aimsreport/internal/shared/metrics"
)

const sourceName = "sqlserver"

// Config holds the EHR table names the report reads.
type Config struct {
	ClientTable     string `json:"client_table"`
	MedicationTable string `json:"medication_table"`
	EmployeeTable   string `json:"employee_table"`
	ExtensionTable  string `json:"extension_table"`
}

// DefaultConfig returns the default EHR table names
func DefaultConfig() Config {
	return Config{
		ClientTable:     "dbo.Clients",
		MedicationTable: "dbo.ClientMedications",
		EmployeeTable:   "dbo.Employees",
		ExtensionTable:  "dbo.ClientExtensions",
	}
}

// ConfigFrom takes table names from the application config, falling back to
// the defaults for any left empty.
func ConfigFrom(cfg config.SQLServerConfig) Config {
	out := DefaultConfig()
	if cfg.ClientTable != "" {
		out.ClientTable = cfg.ClientTable
	}
	if cfg.MedicationTable != "" {
		out.MedicationTable = cfg.MedicationTable
	}
	if cfg.EmployeeTable != "" {
		out.EmployeeTable = cfg.EmployeeTable
	}
	if cfg.ExtensionTable != "" {
		out.ExtensionTable = cfg.ExtensionTable
	}
	return out
}

// Source implements aims.Source for the clinical EHR on SQL Server.
type Source struct {
	db     *sql.DB
	config Config
}

var _ aims.Source = (*Source)(nil)

// New creates a new SQL Server source over an open pool
func New(db *sql.DB, cfg Config) *Source {
	return &Source{db: db, config: cfg}
}

// Name returns the source name
func (s *Source) Name() string {
	return sourceName
}

// Health checks database connectivity
func (s *Source) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Snapshot reads the four report inputs. Medications starting after the
// measurement date and screenings dated after it are filtered in the query.
// Columns are compared by calendar date so datetime values taken later on
// the measurement date are kept.
func (s *Source) Snapshot(ctx context.Context, measurementDate civil.Date) (*aims.Snapshot, error) {
	asOf := sql.Named("measurement_date", measurementDate)

	clients, err := s.fetchClients(ctx)
	if err != nil {
		return nil, err
	}
	meds, err := s.fetchMedications(ctx, asOf)
	if err != nil {
		return nil, err
	}
	employees, err := s.fetchEmployees(ctx)
	if err != nil {
		return nil, err
	}
	screenings, err := s.fetchScreenings(ctx, asOf)
	if err != nil {
		return nil, err
	}

	return &aims.Snapshot{
		Clients:     clients,
		Medications: meds,
		Employees:   employees,
		Screenings:  screenings,
	}, nil
}

func (s *Source) fetchClients(ctx context.Context) ([]aims.Client, error) {
	query := fmt.Sprintf(`
		SELECT
			ClientID,
			FirstName,
			LastName,
			Active
		FROM %s
	`, s.config.ClientTable)

	var out []aims.Client
	err := s.query(ctx, "load clients", query, nil, func(rows *sql.Rows) error {
		var c aims.Client
		var first, last sql.NullString
		var active sql.NullBool
		if err := rows.Scan(&c.ID, &first, &last, &active); err != nil {
			return err
		}
		c.FirstName = first.String
		c.LastName = last.String
		c.Active = active.Valid && active.Bool
		out = append(out, c)
		return nil
	})
	return out, err
}

func (s *Source) fetchMedications(ctx context.Context, asOf sql.NamedArg) ([]aims.MedicationEpisode, error) {
	query := fmt.Sprintf(`
		SELECT
			EpisodeID,
			ClientID,
			MedicationName,
			StartDate,
			DiscontinueDate,
			PrescriberID,
			StatusCode
		FROM %s
		WHERE StartDate IS NOT NULL
			AND CAST(StartDate AS date) <= @measurement_date
	`, s.config.MedicationTable)

	var out []aims.MedicationEpisode
	err := s.query(ctx, "load medications", query, []any{asOf}, func(rows *sql.Rows) error {
		var ep aims.MedicationEpisode
		var name, status sql.NullString
		var start, end sql.NullTime
		var prescriber sql.NullInt64
		if err := rows.Scan(&ep.EpisodeID, &ep.ClientID, &name, &start, &end, &prescriber, &status); err != nil {
			return err
		}
		ep.MedicationName = name.String
		ep.StatusCode = status.String
		ep.StartDate = civil.DateOf(start.Time)
		if end.Valid {
			d := civil.DateOf(end.Time)
			ep.EndDate = &d
		}
		if prescriber.Valid {
			id := prescriber.Int64
			ep.PrescriberID = &id
		}
		out = append(out, ep)
		return nil
	})
	return out, err
}

func (s *Source) fetchEmployees(ctx context.Context) ([]aims.Employee, error) {
	query := fmt.Sprintf(`
		SELECT
			EmployeeID,
			FirstName,
			LastName
		FROM %s
	`, s.config.EmployeeTable)

	var out []aims.Employee
	err := s.query(ctx, "load employees", query, nil, func(rows *sql.Rows) error {
		var e aims.Employee
		var first, last sql.NullString
		if err := rows.Scan(&e.ID, &first, &last); err != nil {
			return err
		}
		e.FirstName = first.String
		e.LastName = last.String
		out = append(out, e)
		return nil
	})
	return out, err
}

func (s *Source) fetchScreenings(ctx context.Context, asOf sql.NamedArg) ([]aims.ScreeningRecord, error) {
	query := fmt.Sprintf(`
		SELECT
			RecordID,
			ClientID,
			AimsDate,
			AimsScore
		FROM %s
		WHERE AimsDate IS NOT NULL
			AND CAST(AimsDate AS date) <= @measurement_date
	`, s.config.ExtensionTable)

	var out []aims.ScreeningRecord
	err := s.query(ctx, "load screenings", query, []any{asOf}, func(rows *sql.Rows) error {
		var r aims.ScreeningRecord
		var date sql.NullTime
		var score sql.NullFloat64
		if err := rows.Scan(&r.RecordID, &r.ClientID, &date, &score); err != nil {
			return err
		}
		r.Date = civil.DateOf(date.Time)
		if score.Valid {
			v := score.Float64
			r.Score = &v
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// query runs a read and hands each row to scan, recording timing and
// converting any failure into a DataAccessError.
func (s *Source) query(ctx context.Context, op, query string, args []any, scan func(*sql.Rows) error) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBQuery(sourceName, op, time.Since(start), err)
	}()

	rows, err := s.db.QueryContext(ctx, query, args...)
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

// dataAccessError copies the SQL Server message, class and state when the
// driver reports them.
func dataAccessError(op string, err error) *apperrors.DataAccessError {
	dae := apperrors.DataAccess(sourceName, op, err)

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		dae.Message = msErr.Message
		dae.Severity = strconv.Itoa(int(msErr.Class))
		dae.State = strconv.Itoa(int(msErr.State))
		dae.Code = strconv.Itoa(int(msErr.Number))
	}
	return dae
}
