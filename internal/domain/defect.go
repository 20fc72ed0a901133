package domain

import "fmt"

// DefectKind classifies a non-fatal ingestion problem.
type DefectKind string

const (
	// FetchFailure is a network, timeout, or non-success response for a target.
	FetchFailure DefectKind = "fetch_failure"
	// ParseDefect is a row (or page) whose date or every temperature is unrecoverable.
	ParseDefect DefectKind = "parse_defect"
	// FieldDefect is a single value that could not be coerced to a number.
	FieldDefect DefectKind = "field_defect"
	// StoreFailure is a commit error; nothing from the target was persisted.
	StoreFailure DefectKind = "store_failure"
)

// Defect is one entry of the defect stream surfaced during ingestion.
type Defect struct {
	Target  FetchTarget `json:"-"`
	Row     string      `json:"row,omitempty"`
	Field   string      `json:"field,omitempty"`
	Kind    DefectKind  `json:"kind"`
	Message string      `json:"message"`
}

// Context identifies what the defect is about: the row when known, else the target.
func (d Defect) Context() string {
	switch {
	case d.Row != "" && d.Target.Location != "":
		return fmt.Sprintf("%s row %s", d.Target, d.Row)
	case d.Row != "":
		return "row " + d.Row
	default:
		return d.Target.String()
	}
}

func (d Defect) String() string {
	if d.Field != "" {
		return fmt.Sprintf("%s: %s (%s): %s", d.Context(), d.Kind, d.Field, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Context(), d.Kind, d.Message)
}

// DefectSink receives defects as they occur. Implementations must be safe for
// concurrent use when shared across locations.
type DefectSink interface {
	Report(d Defect)
}

// DefectSinkFunc adapts a function to DefectSink.
type DefectSinkFunc func(d Defect)

// Report calls f(d).
func (f DefectSinkFunc) Report(d Defect) { f(d) }

// DiscardDefects is a DefectSink that drops everything.
var DiscardDefects DefectSink = DefectSinkFunc(func(Defect) {})
