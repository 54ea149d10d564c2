package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Source drivers
const (
	DriverSQLServer = "sqlserver"
	DriverPostgres  = "postgres"
	DriverSnapshot  = "snapshot"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Source    SourceConfig
	SQLServer SQLServerConfig
	Database  DatabaseConfig
	Snapshot  SnapshotConfig
	Report    ReportConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
	RequestTimeout time.Duration
}

type LogConfig struct {
	Level string
}

// SourceConfig selects where report input is read from.
type SourceConfig struct {
	Driver string
}

// SQLServerConfig holds the connection to the clinical EHR database and the
// names of the four tables the report reads.
type SQLServerConfig struct {
	Host      string
	Port      int
	Database  string
	User      string
	Password  string
	Encrypt   bool
	AppName   string
	MaxConns  int
	IdleConns int

	ClientTable     string
	MedicationTable string
	EmployeeTable   string
	ExtensionTable  string
}

// DSN returns a sqlserver:// URL understood by go-mssqldb.
func (c SQLServerConfig) DSN() string {
	query := url.Values{}
	query.Set("database", c.Database)
	if c.AppName != "" {
		query.Set("app name", c.AppName)
	}
	if c.Encrypt {
		query.Set("encrypt", "true")
		query.Set("TrustServerCertificate", "true")
	} else {
		query.Set("encrypt", "disable")
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}

// DatabaseConfig holds the Postgres reporting replica connection.
type DatabaseConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

type SnapshotConfig struct {
	Path string
}

// ReportConfig carries the reference data and thresholds of the AIMS report.
// Empty lists mean "use the built-in reference set".
type ReportConfig struct {
	DefaultMeasurementDate string
	Antipsychotics         []string
	ActiveStatusCodes      []string
	OverdueDays            int
	HighScoreThreshold     float64
	TestNamePattern        string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("REQUEST_TIMEOUT", "60s")

	v.SetDefault("SOURCE_DRIVER", DriverSQLServer)

	v.SetDefault("MSSQL_HOST", "localhost")
	v.SetDefault("MSSQL_PORT", 1433)
	v.SetDefault("MSSQL_DATABASE", "ehr")
	v.SetDefault("MSSQL_USER", "report_reader")
	v.SetDefault("MSSQL_ENCRYPT", false)
	v.SetDefault("MSSQL_APP_NAME", "aimsreport")
	v.SetDefault("MSSQL_MAX_CONNS", 10)
	v.SetDefault("MSSQL_IDLE_CONNS", 5)
	v.SetDefault("MSSQL_CLIENT_TABLE", "dbo.Clients")
	v.SetDefault("MSSQL_MEDICATION_TABLE", "dbo.ClientMedications")
	v.SetDefault("MSSQL_EMPLOYEE_TABLE", "dbo.Employees")
	v.SetDefault("MSSQL_EXTENSION_TABLE", "dbo.ClientExtensions")

	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)

	v.SetDefault("REPORT_DEFAULT_MEASUREMENT_DATE", "2025-05-12")
	v.SetDefault("REPORT_OVERDUE_DAYS", 180)
	v.SetDefault("REPORT_HIGH_SCORE_THRESHOLD", 4)
	v.SetDefault("REPORT_TEST_NAME_PATTERN", "test")

	// Bind env vars explicitly so keys without defaults are picked up too
	for _, key := range []string{
		"MSSQL_PASSWORD", "DATABASE_URL", "SNAPSHOT_PATH",
		"REPORT_ANTIPSYCHOTICS", "REPORT_ACTIVE_STATUS_CODES",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetInt("SERVER_PORT"),
			Env:            v.GetString("ENV"),
			RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
			RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),
			CORSOrigins:    splitList(v.GetString("CORS_ORIGINS")),
			RequestTimeout: v.GetDuration("REQUEST_TIMEOUT"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		Source: SourceConfig{
			Driver: strings.ToLower(v.GetString("SOURCE_DRIVER")),
		},
		SQLServer: SQLServerConfig{
			Host:            v.GetString("MSSQL_HOST"),
			Port:            v.GetInt("MSSQL_PORT"),
			Database:        v.GetString("MSSQL_DATABASE"),
			User:            v.GetString("MSSQL_USER"),
			Password:        v.GetString("MSSQL_PASSWORD"),
			Encrypt:         v.GetBool("MSSQL_ENCRYPT"),
			AppName:         v.GetString("MSSQL_APP_NAME"),
			MaxConns:        v.GetInt("MSSQL_MAX_CONNS"),
			IdleConns:       v.GetInt("MSSQL_IDLE_CONNS"),
			ClientTable:     v.GetString("MSSQL_CLIENT_TABLE"),
			MedicationTable: v.GetString("MSSQL_MEDICATION_TABLE"),
			EmployeeTable:   v.GetString("MSSQL_EMPLOYEE_TABLE"),
			ExtensionTable:  v.GetString("MSSQL_EXTENSION_TABLE"),
		},
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			MaxConns: v.GetInt32("DB_MAX_CONNS"),
			MinConns: v.GetInt32("DB_MIN_CONNS"),
		},
		Snapshot: SnapshotConfig{
			Path: v.GetString("SNAPSHOT_PATH"),
		},
		Report: ReportConfig{
			DefaultMeasurementDate: v.GetString("REPORT_DEFAULT_MEASUREMENT_DATE"),
			Antipsychotics:         splitList(v.GetString("REPORT_ANTIPSYCHOTICS")),
			ActiveStatusCodes:      splitList(v.GetString("REPORT_ACTIVE_STATUS_CODES")),
			OverdueDays:            v.GetInt("REPORT_OVERDUE_DAYS"),
			HighScoreThreshold:     v.GetFloat64("REPORT_HIGH_SCORE_THRESHOLD"),
			TestNamePattern:        v.GetString("REPORT_TEST_NAME_PATTERN"),
		},
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Server.Env == "development"
}

// Validate checks that the selected source has what it needs and that the
// report thresholds are usable.
func (c *Config) Validate() error {
	switch c.Source.Driver {
	case DriverSQLServer:
		if c.SQLServer.Host == "" || c.SQLServer.Database == "" {
			return fmt.Errorf("MSSQL_HOST and MSSQL_DATABASE are required when SOURCE_DRIVER is %q", DriverSQLServer)
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when SOURCE_DRIVER is %q", DriverPostgres)
		}
	case DriverSnapshot:
		if c.Snapshot.Path == "" {
			return fmt.Errorf("SNAPSHOT_PATH is required when SOURCE_DRIVER is %q", DriverSnapshot)
		}
	default:
		return fmt.Errorf("SOURCE_DRIVER must be %q, %q or %q, got %q",
			DriverSQLServer, DriverPostgres, DriverSnapshot, c.Source.Driver)
	}

	if _, err := time.Parse(time.DateOnly, c.Report.DefaultMeasurementDate); err != nil {
		return fmt.Errorf("REPORT_DEFAULT_MEASUREMENT_DATE must be YYYY-MM-DD: %w", err)
	}
	if c.Report.OverdueDays <= 0 {
		return fmt.Errorf("REPORT_OVERDUE_DAYS must be positive, got %d", c.Report.OverdueDays)
	}
	if c.Report.HighScoreThreshold <= 0 {
		return fmt.Errorf("REPORT_HIGH_SCORE_THRESHOLD must be positive, got %v", c.Report.HighScoreThreshold)
	}

	return nil
}

// splitList parses a comma-separated env value, dropping blanks.
func splitList(value string) []string {
	var result []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
