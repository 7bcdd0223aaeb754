// Package monitor keeps an in-memory live view of calls in flight and fans
// events out to subscribers (SSE streams, tests). It is observability state
// only; the store remains the source of truth.
package monitor

import (
	"log/slog"
	"sync"
	"time"
)

type Event struct {
	CallID    string         `json:"call_id"`
	JobID     string         `json:"job_id"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// CallView is the observable state of one tracked call.
type CallView struct {
	CallID    string    `json:"call_id"`
	JobID     string    `json:"job_id"`
	Provider  string    `json:"provider"`
	ToNumber  string    `json:"to_number"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	Events    []Event   `json:"events"`
}

func (v CallView) Active() bool { return v.EndedAt.IsZero() }

type trackedCall struct {
	view        CallView
	subscribers []chan Event
}

// Monitor tracks calls from initiation through a retention window after they
// end, so late watchers can still read the event trail.
type Monitor struct {
	mu    sync.Mutex
	calls map[string]*trackedCall

	retention time.Duration
	log       *slog.Logger
}

const (
	defaultRetention = 5 * time.Minute
	subscriberBuffer = 32
)

func New(retention time.Duration, log *slog.Logger) *Monitor {
	if retention <= 0 {
		retention = defaultRetention
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		calls:     make(map[string]*trackedCall),
		retention: retention,
		log:       log,
	}
}

// StartCall registers a call and emits its preparation event.
func (m *Monitor) StartCall(callID, jobID, provider, toNumber string) {
	now := time.Now().UTC()

	m.mu.Lock()
	m.calls[callID] = &trackedCall{
		view: CallView{
			CallID:    callID,
			JobID:     jobID,
			Provider:  provider,
			ToNumber:  toNumber,
			Status:    "initiated",
			StartedAt: now,
		},
	}
	m.mu.Unlock()

	m.AddEvent(callID, "preparation", "Preparing call via "+provider)
}

// AddEvent appends an event to a tracked call and fans it out. An optional
// data map rides along for structured detail. Events for unknown call ids are
// dropped; the call may have aged out of retention.
func (m *Monitor) AddEvent(callID, eventType, message string, data ...map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.calls[callID]
	if !ok {
		return
	}

	ev := Event{
		CallID:    callID,
		JobID:     c.view.JobID,
		Type:      eventType,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if len(data) > 0 {
		ev.Data = data[0]
	}
	c.view.Events = append(c.view.Events, ev)

	// Non-blocking fan-out. A subscriber that cannot keep up is dropped
	// rather than allowed to stall call processing.
	kept := c.subscribers[:0]
	for _, sub := range c.subscribers {
		select {
		case sub <- ev:
			kept = append(kept, sub)
		default:
			close(sub)
			m.log.Warn("dropping slow call event subscriber", "call_id", callID)
		}
	}
	c.subscribers = kept
}

// SetStatus updates the call's live status and records the change.
func (m *Monitor) SetStatus(callID, status string) {
	m.mu.Lock()
	c, ok := m.calls[callID]
	if ok {
		c.view.Status = status
	}
	m.mu.Unlock()

	if ok {
		m.AddEvent(callID, "status_changed", "Call status: "+status)
	}
}

// EndCall marks the call finished, closes its subscribers, and schedules the
// record for removal after the retention window.
func (m *Monitor) EndCall(callID, finalStatus string) {
	m.AddEvent(callID, "call_ended", "Call ended: "+finalStatus)

	m.mu.Lock()
	c, ok := m.calls[callID]
	if !ok {
		m.mu.Unlock()
		return
	}
	c.view.Status = finalStatus
	c.view.EndedAt = time.Now().UTC()
	for _, sub := range c.subscribers {
		close(sub)
	}
	c.subscribers = nil
	m.mu.Unlock()

	time.AfterFunc(m.retention, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.calls[callID]; ok && !c.view.EndedAt.IsZero() {
			delete(m.calls, callID)
		}
	})
}

// Snapshot returns a copy of one call's state.
func (m *Monitor) Snapshot(callID string) (CallView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.calls[callID]
	if !ok {
		return CallView{}, false
	}
	return cloneView(c.view), true
}

// ActiveCalls lists calls that have not ended yet.
func (m *Monitor) ActiveCalls() []CallView {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]CallView, 0, len(m.calls))
	for _, c := range m.calls {
		if c.view.Active() {
			out = append(out, cloneView(c.view))
		}
	}
	return out
}

// Subscribe returns a channel of future events for a call plus a cancel
// function. The channel is closed when the call ends, the subscriber is
// cancelled, or it falls behind.
func (m *Monitor) Subscribe(callID string) (<-chan Event, func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.calls[callID]
	if !ok || !c.view.Active() {
		return nil, nil, false
	}

	ch := make(chan Event, subscriberBuffer)
	c.subscribers = append(c.subscribers, ch)

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		c, ok := m.calls[callID]
		if !ok {
			return
		}
		for i, sub := range c.subscribers {
			if sub == ch {
				c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel, true
}

func cloneView(v CallView) CallView {
	events := make([]Event, len(v.Events))
	copy(events, v.Events)
	v.Events = events
	return v
}
