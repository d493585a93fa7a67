package harness

// Trace outcomes other than error codes.
const OutcomeOK = "ok"

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Op     string `json:"op"`
	Tenant string `json:"tenant"`

	// Ref is the scenario's name for the order, when it has one.
	Ref     string `json:"ref,omitempty"`
	OrderID string `json:"order_id,omitempty"`

	// Outcome is "ok" or the error code the step failed with.
	Outcome string `json:"outcome"`

	// Result holds the observable effects of a successful step: status,
	// position, deducted, duplicate, warnings and stock levels. Numbers that
	// may be fractional are formatted as strings.
	Result map[string]any `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per step, in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Refs maps scenario refs to generated order ids.
	Refs map[string]string `json:"refs,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Refs:   make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends ev with the next sequence number.
func (r *Result) AddTrace(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
