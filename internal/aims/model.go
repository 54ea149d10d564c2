package aims

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-sql/civil"

	"github.com/behavioral-quality/aimsreport/internal/shared/types"
)

// Client is a person receiving services.
type Client struct {
	ID        int64  `json:"client_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Active    bool   `json:"active"`
}

// FullName returns "First Last".
func (c Client) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// MedicationEpisode is one recorded medication order for a client.
type MedicationEpisode struct {
	EpisodeID      int64       `json:"episode_id"`
	ClientID       int64       `json:"client_id"`
	MedicationName string      `json:"medication_name"`
	StartDate      civil.Date  `json:"start_date"`
	EndDate        *civil.Date `json:"end_date,omitempty"` // discontinuation date
	PrescriberID   *int64      `json:"prescriber_id,omitempty"`
	StatusCode     string      `json:"status_code"`
}

// Employee is a staff member; only prescribers matter to the report.
type Employee struct {
	ID        int64  `json:"employee_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// DisplayName returns "Last, First", or whichever part is present.
func (e Employee) DisplayName() string {
	first := strings.TrimSpace(e.FirstName)
	last := strings.TrimSpace(e.LastName)
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return last + ", " + first
	}
}

// ScreeningRecord is an AIMS result kept in the client extension table.
type ScreeningRecord struct {
	RecordID int64      `json:"record_id"`
	ClientID int64      `json:"client_id"`
	Date     civil.Date `json:"aims_date"`
	Score    *float64   `json:"aims_score,omitempty"`
}

// Snapshot is the report input as read from a source.
type Snapshot struct {
	Clients     []Client            `json:"clients"`
	Medications []MedicationEpisode `json:"medications"`
	Employees   []Employee          `json:"employees"`
	Screenings  []ScreeningRecord   `json:"screenings"`
}

// RiskBucket classifies how current a client's AIMS screening is.
type RiskBucket string

const (
	RiskCurrent RiskBucket = "Current"
	RiskOverdue RiskBucket = "Routine AIMS Overdue"
	RiskNoAIMS  RiskBucket = "No AIMS Since AP Start"
)

// RiskBuckets lists every bucket in report order.
var RiskBuckets = []RiskBucket{RiskCurrent, RiskNoAIMS, RiskOverdue}

// ReportRow is one client line of the AIMS report.
type ReportRow struct {
	ClientID          int64       `json:"client_id"`
	ClientFirstName   string      `json:"client_first_name"`
	ClientLastName    string      `json:"client_last_name"`
	MedicationName    string      `json:"medication_name"`
	StartDate         civil.Date  `json:"start_date"`
	EndDate           *civil.Date `json:"end_date"`
	PrescriberID      *int64      `json:"prescriber_id"`
	PrescriberName    *string     `json:"prescriber_name"`
	LastAimsDate      *civil.Date `json:"last_aims_date"`
	LastAimsScore     *float64    `json:"last_aims_score"`
	DaysSinceLastAims *int        `json:"days_since_last_aims"`
	RiskBucket        RiskBucket  `json:"risk_bucket"`
	AlertReason       string      `json:"alert_reason"`
	MeasurementDate   civil.Date  `json:"measurement_date"`
	HasAimsScreening  int         `json:"has_aims_screening"`
	HasHighAimsScore  int         `json:"has_high_aims_score"`
}

// Report is the result of one report run.
type Report struct {
	RunID           types.ID           `json:"run_id"`
	Source          string             `json:"source"`
	MeasurementDate civil.Date         `json:"measurement_date"`
	GeneratedAt     time.Time          `json:"generated_at"`
	Summary         map[RiskBucket]int `json:"summary"`
	Rows            []ReportRow        `json:"rows"`
}

// Summarize counts rows per bucket. Every bucket is present, even at zero.
func Summarize(rows []ReportRow) map[RiskBucket]int {
	summary := make(map[RiskBucket]int, len(RiskBuckets))
	for _, b := range RiskBuckets {
		summary[b] = 0
	}
	for _, r := range rows {
		summary[r.RiskBucket]++
	}
	return summary
}

// formatUSDate renders a date as MM/DD/YYYY for alert text.
func formatUSDate(d civil.Date) string {
	return fmt.Sprintf("%02d/%02d/%04d", int(d.Month), d.Day, d.Year)
}
