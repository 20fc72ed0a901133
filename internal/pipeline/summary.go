package pipeline

import (
	"time"

	"github.com/couchcryptid/climate-daily-etl/internal/domain"
)

// Mode names the kind of ingestion run.
type Mode string

const (
	// ModeBulk downloads every month page in a year range.
	ModeBulk Mode = "bulk"
	// ModeIncremental fills the gap since the latest stored day.
	ModeIncremental Mode = "incremental"
)

// TargetFailure records a target whose page was not committed.
type TargetFailure struct {
	Target domain.FetchTarget
	Err    error
}

// Summary is the outcome of one ingestion run for one location.
type Summary struct {
	RunID     string
	Location  string
	Mode      Mode
	Targets   int
	Succeeded []domain.FetchTarget
	Failed    []TargetFailure
	Defects   []domain.Defect
	Stored    int
	// NeedsBulk is set by an incremental run that found nothing stored.
	NeedsBulk bool
	Cancelled bool
	Started   time.Time
	Finished  time.Time
}

// DefectsOf returns the recorded defects of the given kind.
func (s Summary) DefectsOf(kind domain.DefectKind) []domain.Defect {
	var out []domain.Defect
	for _, d := range s.Defects {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// OK reports whether every attempted target was committed.
func (s Summary) OK() bool {
	return len(s.Failed) == 0 && !s.Cancelled
}

func (s *Summary) record(d domain.Defect) {
	s.Defects = append(s.Defects, d)
}

func (s Summary) cancelled() Summary {
	s.Cancelled = true
	return s
}
