package notify

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-memory Platform for tests and for wiring the engine
// without an OS notification subsystem. All state is inspectable and
// failures are injectable.
type Memory struct {
	mu          sync.Mutex
	pushCapable bool
	granted     bool
	nextID      int
	scheduled   map[string]Scheduled

	// FailScheduling makes schedule calls return an error, simulating
	// a platform rejection unrelated to permission.
	FailScheduling bool

	CancelCalls   []string
	ScheduleCalls []Request
	OneShotDelays []time.Duration
}

// NewMemory creates a memory platform with permission granted.
func NewMemory(pushCapable bool) *Memory {
	return &Memory{
		pushCapable: pushCapable,
		granted:     true,
		scheduled:   make(map[string]Scheduled),
	}
}

// SetGranted flips the permission state.
func (m *Memory) SetGranted(granted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.granted = granted
}

func (m *Memory) PushCapable() bool {
	return m.pushCapable
}

func (m *Memory) PermissionGranted(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.granted, nil
}

func (m *Memory) RequestPermission(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.granted, nil
}

func (m *Memory) ScheduleRepeating(ctx context.Context, req Request) (string, error) {
	return m.schedule(req, true, 0)
}

func (m *Memory) ScheduleOneShot(ctx context.Context, req Request, delay time.Duration) (string, error) {
	return m.schedule(req, false, delay)
}

func (m *Memory) schedule(req Request, repeating bool, delay time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailScheduling {
		return "", fmt.Errorf("platform rejected schedule call")
	}
	m.nextID++
	id := fmt.Sprintf("trigger-%d", m.nextID)
	m.scheduled[id] = Scheduled{ID: id, RegimenID: req.RegimenID, Slot: req.Slot, Repeating: repeating}
	m.ScheduleCalls = append(m.ScheduleCalls, req)
	if !repeating {
		m.OneShotDelays = append(m.OneShotDelays, delay)
	}
	return id, nil
}

func (m *Memory) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scheduled, id)
	m.CancelCalls = append(m.CancelCalls, id)
	return nil
}

func (m *Memory) ListScheduled(ctx context.Context) ([]Scheduled, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Scheduled, 0, len(m.scheduled))
	for _, s := range m.scheduled {
		out = append(out, s)
	}
	return out, nil
}

// Live returns the scheduled triggers for a regimen, repeating only.
func (m *Memory) Live(regimenID string) []Scheduled {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Scheduled
	for _, s := range m.scheduled {
		if s.RegimenID == regimenID {
			out = append(out, s)
		}
	}
	return out
}
