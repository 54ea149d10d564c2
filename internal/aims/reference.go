package aims

import (
	"fmt"
	"sort"
	"strings"

	"github.com/golang-sql/civil"

	"github.com/behavioral-quality/aimsreport/internal/shared/config"
)

// DefaultMeasurementDate is used when a run does not name a date.
var DefaultMeasurementDate = civil.Date{Year: 2025, Month: 5, Day: 12}

// DefaultAntipsychotics are lower-case substrings matched against the free
// text medication name. Generic and common brand names are both listed
// because prescribers enter either.
var DefaultAntipsychotics = []string{
	"abilify",
	"amisulpride",
	"aripiprazole",
	"asenapine",
	"brexpiprazole",
	"caplyta",
	"cariprazine",
	"chlorpromazine",
	"clozapine",
	"clozaril",
	"fanapt",
	"fluphenazine",
	"geodon",
	"haldol",
	"haloperidol",
	"iloperidone",
	"invega",
	"latuda",
	"loxapine",
	"lumateperone",
	"lurasidone",
	"molindone",
	"olanzapine",
	"paliperidone",
	"perphenazine",
	"pimavanserin",
	"pimozide",
	"quetiapine",
	"rexulti",
	"risperdal",
	"risperidone",
	"saphris",
	"seroquel",
	"thioridazine",
	"thiothixene",
	"trifluoperazine",
	"vraylar",
	"ziprasidone",
	"zyprexa",
}

// DefaultActiveStatusCodes are medication status codes that count as an
// ongoing order.
var DefaultActiveStatusCodes = []string{"A", "ACTIVE", "CONTINUED", "RENEWED"}

// Rules holds the reference data and thresholds the pipeline evaluates
// against. Build it with DefaultRules or NewRules; the zero value matches
// nothing.
type Rules struct {
	DefaultMeasurementDate civil.Date
	OverdueDays            int
	HighScoreThreshold     float64
	TestNamePattern        string

	antipsychotics []string
	activeStatuses map[string]struct{}
}

// DefaultRules returns the built-in reference sets and thresholds.
func DefaultRules() Rules {
	return Rules{
		DefaultMeasurementDate: DefaultMeasurementDate,
		OverdueDays:            180,
		HighScoreThreshold:     4,
		TestNamePattern:        "test",
		antipsychotics:         normalizeSubstrings(DefaultAntipsychotics),
		activeStatuses:         statusSet(DefaultActiveStatusCodes),
	}
}

// NewRules applies configuration overrides on top of DefaultRules.
func NewRules(cfg config.ReportConfig) (Rules, error) {
	rules := DefaultRules()

	if cfg.DefaultMeasurementDate != "" {
		d, err := civil.ParseDate(cfg.DefaultMeasurementDate)
		if err != nil {
			return Rules{}, fmt.Errorf("invalid default measurement date %q: %w", cfg.DefaultMeasurementDate, err)
		}
		rules.DefaultMeasurementDate = d
	}
	if len(cfg.Antipsychotics) > 0 {
		rules.antipsychotics = normalizeSubstrings(cfg.Antipsychotics)
	}
	if len(cfg.ActiveStatusCodes) > 0 {
		rules.activeStatuses = statusSet(cfg.ActiveStatusCodes)
	}
	if cfg.OverdueDays > 0 {
		rules.OverdueDays = cfg.OverdueDays
	}
	if cfg.HighScoreThreshold > 0 {
		rules.HighScoreThreshold = cfg.HighScoreThreshold
	}
	if p := strings.ToLower(strings.TrimSpace(cfg.TestNamePattern)); p != "" {
		rules.TestNamePattern = p
	}

	if len(rules.antipsychotics) == 0 {
		return Rules{}, fmt.Errorf("antipsychotic reference list is empty")
	}
	if len(rules.activeStatuses) == 0 {
		return Rules{}, fmt.Errorf("active status code list is empty")
	}

	return rules, nil
}

// IsAntipsychotic reports whether a medication name contains one of the
// antipsychotic substrings, ignoring case.
func (r Rules) IsAntipsychotic(medicationName string) bool {
	name := strings.ToLower(medicationName)
	for _, s := range r.antipsychotics {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

// IsActiveStatus reports whether a medication status code is in the active set.
func (r Rules) IsActiveStatus(code string) bool {
	_, ok := r.activeStatuses[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// IsTestName reports whether a display name marks a test or placeholder record.
func (r Rules) IsTestName(name string) bool {
	if r.TestNamePattern == "" {
		return false
	}
	return strings.Contains(strings.ToLower(name), r.TestNamePattern)
}

// Antipsychotics returns the active substring list, sorted.
func (r Rules) Antipsychotics() []string {
	out := append([]string(nil), r.antipsychotics...)
	sort.Strings(out)
	return out
}

// ActiveStatusCodes returns the active status code set, sorted.
func (r Rules) ActiveStatusCodes() []string {
	out := make([]string, 0, len(r.activeStatuses))
	for code := range r.activeStatuses {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func normalizeSubstrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		s := strings.ToLower(strings.TrimSpace(v))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func statusSet(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if s := strings.ToUpper(strings.TrimSpace(c)); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}
