package acquisition

import (
	"time"

	"github.com/RMahshie/smuacq/internal/listfile"
)

// Status is the final state of a run
type Status string

const (
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Result is the measurement table of one run. It is not modified after Run returns
type Result struct {
	Mode      SourceMode
	Columns   []Quantity
	SetPoints []float64
	Samples   []Sample
	// Skipped holds list records dropped while loading a list sweep
	Skipped []listfile.Skipped

	Status     Status
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Complete reports whether every planned set-point was sampled
func (r *Result) Complete() bool {
	return r.Status == StatusCompleted
}

// Column returns the values of q in sample order, and false if q was not recorded
func (r *Result) Column(q Quantity) ([]float64, bool) {
	found := false
	for _, c := range r.Columns {
		if c == q {
			found = true
			break
		}
	}
	if !found {
		return nil, false
	}
	out := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s[q]
	}
	return out, true
}
