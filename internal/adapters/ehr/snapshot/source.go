package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/golang-sql/civil"

	"github.com/behavioral-quality/aimsreport/internal/aims"
	apperrors "github.com/behavioral-quality/aimsreport/internal/shared/errors"
	"github.com/behavioral-quality/aimsreport/internal/shared/metrics"
)

const sourceName = "snapshot"

// Source reads report input from a JSON export of the four collections.
// The file is read on every run so a refreshed export is picked up without
// a restart.
type Source struct {
	path string
}

var _ aims.Source = (*Source)(nil)

// New creates a new file source
func New(path string) *Source {
	return &Source{path: path}
}

// Name returns the source name
func (s *Source) Name() string {
	return sourceName
}

// Health checks that the export file is present and readable.
func (s *Source) Health(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	return f.Close()
}

// Snapshot decodes the export file. Dates are YYYY-MM-DD strings.
func (s *Source) Snapshot(ctx context.Context, measurementDate civil.Date) (snap *aims.Snapshot, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBQuery(sourceName, "load snapshot", time.Since(start), err)
	}()

	if err := ctx.Err(); err != nil {
		return nil, apperrors.DataAccess(sourceName, "load snapshot", err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, apperrors.DataAccess(sourceName, "read snapshot", err)
	}

	snap = &aims.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, apperrors.DataAccess(sourceName, "decode snapshot", err)
	}
	return snap, nil
}

// Write stores a snapshot in the format Snapshot reads.
func Write(path string, snap *aims.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}
