package harness

// Trace event types.
const (
	EventSubmit   = "submit"   // a form reached the interceptor; Status is its response
	EventNotice   = "notice"   // a user-visible notice; Kind and Text
	EventReceived = "received" // the server accepted a submission
	EventRejected = "rejected" // the server refused a submission; Status is its answer
	EventServer   = "server"   // the fake server went "up" or "down"
	EventDrain    = "drain"    // a drain finished; Kind is the skip reason
)

// TraceEvent is one observable thing that happened during a run.
type TraceEvent struct {
	Seq    int    `json:"seq"`
	Type   string `json:"type"`
	Kind   string `json:"kind,omitempty"`
	Text   string `json:"text,omitempty"`
	Key    string `json:"key,omitempty"`
	Status int    `json:"status,omitempty"`
}

// QueueState is the queue at the end of a run.
type QueueState struct {
	Total    int `json:"total"`
	Unsynced int `json:"unsynced"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
	State  QueueState   `json:"state"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Received returns the descriptions the server accepted, in order.
func (r *Result) Received() []string {
	out := []string{}
	for _, e := range r.Trace {
		if e.Type == EventReceived {
			out = append(out, e.Text)
		}
	}
	return out
}

// Notices returns the notice kinds in order.
func (r *Result) Notices() []string {
	out := []string{}
	for _, e := range r.Trace {
		if e.Type == EventNotice {
			out = append(out, e.Kind)
		}
	}
	return out
}
