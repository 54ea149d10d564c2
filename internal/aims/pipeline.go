package aims

import (
	"fmt"
	"sort"
	"strings"

	"github.com/golang-sql/civil"
)

// BuildReport runs the AIMS report pipeline over a snapshot:
//
//  1. keep active antipsychotic episodes covering the measurement date
//  2. keep the most recent episode per client
//  3. attach the latest screening in [episode start, measurement date]
//  4. classify screening currency and derive flags
//  5. order by risk bucket, prescriber name, client id
//
// It has no side effects and returns the same rows for the same input.
func BuildReport(snap *Snapshot, measurementDate civil.Date, rules Rules) []ReportRow {
	if snap == nil {
		return []ReportRow{}
	}

	clients := make(map[int64]Client, len(snap.Clients))
	for _, c := range snap.Clients {
		clients[c.ID] = c
	}
	employees := make(map[int64]Employee, len(snap.Employees))
	for _, e := range snap.Employees {
		employees[e.ID] = e
	}

	episodes := eligibleEpisodes(snap.Medications, clients, employees, measurementDate, rules)
	latest := latestEpisodePerClient(episodes)
	screenings := screeningsByClient(snap.Screenings)

	rows := make([]ReportRow, 0, len(latest))
	for _, ep := range latest {
		client := clients[ep.ClientID]
		screening := matchScreening(screenings[ep.ClientID], ep.StartDate, measurementDate)
		rows = append(rows, buildRow(client, ep, prescriberName(ep, employees), screening, measurementDate, rules))
	}

	sortRows(rows)
	return rows
}

// eligibleEpisodes applies the first stage filter.
func eligibleEpisodes(
	meds []MedicationEpisode,
	clients map[int64]Client,
	employees map[int64]Employee,
	date civil.Date,
	rules Rules,
) []MedicationEpisode {
	var out []MedicationEpisode
	for _, ep := range meds {
		client, ok := clients[ep.ClientID]
		if !ok || !client.Active {
			continue
		}
		if !rules.IsAntipsychotic(ep.MedicationName) || !rules.IsActiveStatus(ep.StatusCode) {
			continue
		}
		if !coversDate(ep, date) {
			continue
		}
		if rules.IsTestName(client.FullName()) {
			continue
		}
		if name := prescriberName(ep, employees); name != nil && rules.IsTestName(*name) {
			continue
		}
		out = append(out, ep)
	}
	return out
}

// coversDate reports start <= date and (no end or end > date). An episode
// discontinued on the measurement date is no longer active on it.
func coversDate(ep MedicationEpisode, date civil.Date) bool {
	if ep.StartDate.After(date) {
		return false
	}
	return ep.EndDate == nil || ep.EndDate.After(date)
}

// latestEpisodePerClient keeps one episode per client: latest start date,
// then medication name descending ignoring case, then episode id descending.
func latestEpisodePerClient(episodes []MedicationEpisode) []MedicationEpisode {
	best := make(map[int64]MedicationEpisode, len(episodes))
	for _, ep := range episodes {
		cur, ok := best[ep.ClientID]
		if !ok || rankBefore(ep, cur) {
			best[ep.ClientID] = ep
		}
	}

	out := make([]MedicationEpisode, 0, len(best))
	for _, ep := range best {
		out = append(out, ep)
	}
	return out
}

func rankBefore(a, b MedicationEpisode) bool {
	if a.StartDate != b.StartDate {
		return a.StartDate.After(b.StartDate)
	}
	if la, lb := strings.ToLower(a.MedicationName), strings.ToLower(b.MedicationName); la != lb {
		return la > lb
	}
	if a.MedicationName != b.MedicationName {
		return a.MedicationName > b.MedicationName
	}
	return a.EpisodeID > b.EpisodeID
}

func screeningsByClient(records []ScreeningRecord) map[int64][]ScreeningRecord {
	out := make(map[int64][]ScreeningRecord)
	for _, r := range records {
		out[r.ClientID] = append(out[r.ClientID], r)
	}
	return out
}

// matchScreening returns the latest screening dated within [start, date],
// tie-broken by record id descending, or nil when none qualifies.
func matchScreening(records []ScreeningRecord, start, date civil.Date) *ScreeningRecord {
	var match *ScreeningRecord
	for i := range records {
		r := &records[i]
		if r.Date.Before(start) || r.Date.After(date) {
			continue
		}
		if match == nil ||
			r.Date.After(match.Date) ||
			(r.Date == match.Date && r.RecordID > match.RecordID) {
			match = r
		}
	}
	return match
}

func prescriberName(ep MedicationEpisode, employees map[int64]Employee) *string {
	if ep.PrescriberID == nil {
		return nil
	}
	e, ok := employees[*ep.PrescriberID]
	if !ok {
		return nil
	}
	name := e.DisplayName()
	return &name
}

func buildRow(
	client Client,
	ep MedicationEpisode,
	prescriber *string,
	screening *ScreeningRecord,
	date civil.Date,
	rules Rules,
) ReportRow {
	row := ReportRow{
		ClientID:        client.ID,
		ClientFirstName: client.FirstName,
		ClientLastName:  client.LastName,
		MedicationName:  ep.MedicationName,
		StartDate:       ep.StartDate,
		EndDate:         ep.EndDate,
		PrescriberID:    ep.PrescriberID,
		PrescriberName:  prescriber,
		MeasurementDate: date,
	}

	if screening != nil {
		d := screening.Date
		days := date.DaysSince(d)
		row.LastAimsDate = &d
		row.LastAimsScore = screening.Score
		row.DaysSinceLastAims = &days
		row.HasAimsScreening = 1
		if screening.Score != nil && *screening.Score >= rules.HighScoreThreshold {
			row.HasHighAimsScore = 1
		}
	}

	row.RiskBucket, row.AlertReason = classify(ep.StartDate, row.LastAimsDate, date, rules.OverdueDays)
	return row
}

// classify derives the risk bucket and alert text. A screening is overdue
// when it is strictly more than overdueDays before the measurement date.
func classify(start civil.Date, lastAims *civil.Date, date civil.Date, overdueDays int) (RiskBucket, string) {
	switch {
	case lastAims == nil:
		return RiskNoAIMS, fmt.Sprintf("No AIMS screening since antipsychotic start on %s", formatUSDate(start))
	case date.DaysSince(*lastAims) > overdueDays:
		return RiskOverdue, fmt.Sprintf("Last AIMS on %s is more than %d days before %s",
			formatUSDate(*lastAims), overdueDays, formatUSDate(date))
	default:
		return RiskCurrent, fmt.Sprintf("AIMS current; last screening on %s", formatUSDate(*lastAims))
	}
}

// sortRows orders rows by risk bucket, prescriber name ignoring case
// (missing first), then client id.
func sortRows(rows []ReportRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.RiskBucket != b.RiskBucket {
			return a.RiskBucket < b.RiskBucket
		}
		pa, pb := deref(a.PrescriberName), deref(b.PrescriberName)
		if la, lb := strings.ToLower(pa), strings.ToLower(pb); la != lb {
			return la < lb
		}
		if pa != pb {
			return pa < pb
		}
		return a.ClientID < b.ClientID
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
