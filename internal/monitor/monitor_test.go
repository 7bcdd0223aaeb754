package monitor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCallTracksActiveCall(t *testing.T) {
	m := New(time.Minute, nil)
	m.StartCall("call-1", "job-1", "twilio", "+15550100")

	view, ok := m.Snapshot("call-1")
	require.True(t, ok)
	assert.True(t, view.Active())
	assert.Equal(t, "job-1", view.JobID)
	assert.Equal(t, "initiated", view.Status)
	require.Len(t, view.Events, 1)
	assert.Equal(t, "preparation", view.Events[0].Type)

	active := m.ActiveCalls()
	require.Len(t, active, 1)
	assert.Equal(t, "call-1", active[0].CallID)
}

func TestAddEventCarriesData(t *testing.T) {
	m := New(time.Minute, nil)
	m.StartCall("call-1", "job-1", "twilio", "+15550100")
	m.AddEvent("call-1", "call_initiated", "Call placed via twilio", map[string]any{"simulated": true})

	view, ok := m.Snapshot("call-1")
	require.True(t, ok)
	last := view.Events[len(view.Events)-1]
	assert.Equal(t, "call_initiated", last.Type)
	assert.Equal(t, true, last.Data["simulated"])
	assert.Nil(t, view.Events[0].Data)
}

func TestCallViewJSONOmitsZeroEndedAt(t *testing.T) {
	m := New(time.Minute, nil)
	m.StartCall("call-1", "job-1", "twilio", "+15550100")

	view, ok := m.Snapshot("call-1")
	require.True(t, ok)
	b, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "ended_at")

	m.EndCall("call-1", "failed")
	view, ok = m.Snapshot("call-1")
	require.True(t, ok)
	b, err = json.Marshal(view)
	require.NoError(t, err)
	assert.Contains(t, string(b), "ended_at")
}

func TestSubscribeReceivesEventsUntilCallEnds(t *testing.T) {
	m := New(time.Minute, nil)
	m.StartCall("call-1", "job-1", "twilio", "+15550100")

	events, cancel, ok := m.Subscribe("call-1")
	require.True(t, ok)
	defer cancel()

	m.SetStatus("call-1", "ringing")
	ev := <-events
	assert.Equal(t, "status_changed", ev.Type)

	m.EndCall("call-1", "account_found")
	ev = <-events
	assert.Equal(t, "call_ended", ev.Type)

	// Channel closes once the call ends.
	_, open := <-events
	assert.False(t, open)

	view, ok := m.Snapshot("call-1")
	require.True(t, ok)
	assert.False(t, view.Active())
	assert.Equal(t, "account_found", view.Status)
	assert.Empty(t, m.ActiveCalls())
}

func TestSubscribeUnknownCall(t *testing.T) {
	m := New(time.Minute, nil)
	_, _, ok := m.Subscribe("never-seen")
	assert.False(t, ok)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	m := New(time.Minute, nil)
	m.StartCall("call-1", "job-1", "twilio", "+15550100")

	events, cancel, ok := m.Subscribe("call-1")
	require.True(t, ok)
	defer cancel()

	// Fill the buffer without draining; the subscriber must be detached
	// instead of blocking the publisher.
	for i := 0; i < subscriberBuffer+5; i++ {
		m.AddEvent("call-1", "tick", "event")
	}

	drained := 0
	for range events {
		drained++
	}
	assert.LessOrEqual(t, drained, subscriberBuffer)

	// Publishing continues without the dropped subscriber.
	m.AddEvent("call-1", "tick", "event")
}

func TestEndedCallsAgeOutAfterRetention(t *testing.T) {
	m := New(20*time.Millisecond, nil)
	m.StartCall("call-1", "job-1", "twilio", "+15550100")
	m.EndCall("call-1", "failed")

	require.Eventually(t, func() bool {
		_, ok := m.Snapshot("call-1")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestEventsForUnknownCallAreDropped(t *testing.T) {
	m := New(time.Minute, nil)
	m.AddEvent("never-seen", "tick", "event")
	m.SetStatus("never-seen", "ringing")
	m.EndCall("never-seen", "failed")
	assert.Empty(t, m.ActiveCalls())
}
