package harness

import "encoding/json"

// Trace event types.
const (
	TraceIngest   = "ingest"
	TraceDelivery = "delivery"
)

// TraceEvent is one observable step of a run: an ingest outcome or a
// webhook request received by the recorder.
type TraceEvent struct {
	Type string `json:"type"`

	// Step is the 1-based flow step that caused the event.
	Step int `json:"step"`

	DataPointID int64  `json:"data_point_id,omitempty"`
	Error       string `json:"error,omitempty"`

	Path     string `json:"path,omitempty"`
	Delivery string `json:"delivery,omitempty"`
	// Offset is the arrival time relative to the start of the run.
	Offset string          `json:"offset,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors is empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
