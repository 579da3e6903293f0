package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *Result {
	r := NewResult()
	r.Trace = []TraceEvent{
		{Seq: 1, Type: EventNotice, Kind: "stored", Text: "Data disimpan secara tempatan. Akan sync bila online."},
		{Seq: 2, Type: EventSubmit, Text: "Kek lapis", Status: 202},
		{Seq: 3, Type: EventNotice, Kind: "online", Text: "Online"},
		{Seq: 4, Type: EventNotice, Kind: "syncing", Text: "Mensync 1 transaksi offline..."},
		{Seq: 5, Type: EventReceived, Text: "Kek lapis", Key: "key-1"},
		{Seq: 6, Type: EventNotice, Kind: "synced", Text: "1 transaksi berjaya disync!"},
	}
	r.State = QueueState{Total: 1, Unsynced: 0}
	return r
}

func intPtr(n int) *int { return &n }

func TestAssertNoticeOrder(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, evaluateAssertion(r, Assertion{Type: AssertNoticeOrder, Kinds: []string{"stored", "synced"}}))
	assert.NoError(t, evaluateAssertion(r, Assertion{Type: AssertNoticeOrder, Kinds: []string{"online", "syncing", "synced"}}))

	err := evaluateAssertion(r, Assertion{Type: AssertNoticeOrder, Kinds: []string{"synced", "online"}})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertNoticeOrder, ae.Type)
	assert.Contains(t, ae.Actual, "missing online after position 1")
}

func TestAssertNoticeCount(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, evaluateAssertion(r, Assertion{Type: AssertNoticeCount, Kind: "stored", Count: 1}))
	assert.NoError(t, evaluateAssertion(r, Assertion{Type: AssertNoticeCount, Kind: "sync_failed", Count: 0}))

	err := evaluateAssertion(r, Assertion{Type: AssertNoticeCount, Kind: "stored", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Actual: 1 time(s)")
}

func TestAssertReceived(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, evaluateAssertion(r, Assertion{Type: AssertReceived, Descriptions: []string{"Kek lapis"}}))

	err := evaluateAssertion(r, Assertion{Type: AssertReceived, Descriptions: []string{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Actual: ["Kek lapis"]`)
}

func TestAssertQueueState(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, evaluateAssertion(r, Assertion{Type: AssertQueueState, Total: intPtr(1), Unsynced: intPtr(0)}))
	assert.NoError(t, evaluateAssertion(r, Assertion{Type: AssertQueueState, Unsynced: intPtr(0)}))

	err := evaluateAssertion(r, Assertion{Type: AssertQueueState, Total: intPtr(3), Unsynced: intPtr(2)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total 1, want 3, unsynced 0, want 2")
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertReceived,
		Expected: "x",
		Actual:   "y",
		Trace:    sampleResult().Trace,
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: received")
	assert.Contains(t, msg, `[2] submit "Kek lapis" (202)`)
	assert.Contains(t, msg, `[3] notice online "Online"`)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
