package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails. It carries the trace to
// make the failure readable without rerunning.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Type)
		if ev.Kind != "" {
			fmt.Fprintf(&buf, " %s", ev.Kind)
		}
		if ev.Text != "" {
			fmt.Fprintf(&buf, " %q", ev.Text)
		}
		if ev.Status != 0 {
			fmt.Fprintf(&buf, " (%d)", ev.Status)
		}
		buf.WriteString("\n")
	}
	return buf.String()
}

func evaluateAssertion(r *Result, a Assertion) error {
	switch a.Type {
	case AssertNoticeOrder:
		return assertNoticeOrder(r, a)
	case AssertNoticeCount:
		return assertNoticeCount(r, a)
	case AssertReceived:
		return assertReceived(r, a)
	case AssertQueueState:
		return assertQueueState(r, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertNoticeOrder checks that the kinds occur as a subsequence of the
// notices; other notices may appear in between.
func assertNoticeOrder(r *Result, a Assertion) error {
	notices := r.Notices()
	next := 0
	for _, kind := range notices {
		if next < len(a.Kinds) && kind == a.Kinds[next] {
			next++
		}
	}
	if next == len(a.Kinds) {
		return nil
	}
	return &AssertionError{
		Type:     AssertNoticeOrder,
		Expected: fmt.Sprintf("notices in order: %v", a.Kinds),
		Actual:   fmt.Sprintf("%v (missing %s after position %d)", notices, a.Kinds[next], next),
		Trace:    r.Trace,
	}
}

func assertNoticeCount(r *Result, a Assertion) error {
	count := 0
	for _, kind := range r.Notices() {
		if kind == a.Kind {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertNoticeCount,
		Expected: fmt.Sprintf("%s notice %d time(s)", a.Kind, a.Count),
		Actual:   fmt.Sprintf("%d time(s)", count),
		Trace:    r.Trace,
	}
}

func assertReceived(r *Result, a Assertion) error {
	got := r.Received()
	if slices.Equal(got, a.Descriptions) {
		return nil
	}
	return &AssertionError{
		Type:     AssertReceived,
		Expected: fmt.Sprintf("server received %q", a.Descriptions),
		Actual:   fmt.Sprintf("%q", got),
		Trace:    r.Trace,
	}
}

func assertQueueState(r *Result, a Assertion) error {
	var problems []string
	if a.Total != nil && *a.Total != r.State.Total {
		problems = append(problems, fmt.Sprintf("total %d, want %d", r.State.Total, *a.Total))
	}
	if a.Unsynced != nil && *a.Unsynced != r.State.Unsynced {
		problems = append(problems, fmt.Sprintf("unsynced %d, want %d", r.State.Unsynced, *a.Unsynced))
	}
	if len(problems) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertQueueState,
		Expected: "queue state as declared",
		Actual:   strings.Join(problems, ", "),
		Trace:    r.Trace,
	}
}
