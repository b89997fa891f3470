package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureSink struct {
	mu        sync.Mutex
	delivered []Notification
}

func (s *captureSink) Deliver(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, n)
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func TestLocalPlatform_RepeatingLifecycle(t *testing.T) {
	p := NewLocalPlatform(true, &captureSink{}, zap.NewNop())
	defer p.Stop()

	ctx := context.Background()
	id, err := p.ScheduleRepeating(ctx, Request{RegimenID: "med_1", Slot: "08:30", Title: "Medication Reminder"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	list, err := p.ListScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "med_1", list[0].RegimenID)
	assert.True(t, list[0].Repeating)

	require.NoError(t, p.Cancel(ctx, id))
	list, err = p.ListScheduled(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLocalPlatform_RejectsUnparseableSlot(t *testing.T) {
	p := NewLocalPlatform(true, &captureSink{}, zap.NewNop())
	defer p.Stop()

	_, err := p.ScheduleRepeating(context.Background(), Request{RegimenID: "med_1", Slot: "eight"})
	assert.Error(t, err)
}

func TestLocalPlatform_OneShotDelivers(t *testing.T) {
	sink := &captureSink{}
	p := NewLocalPlatform(false, sink, zap.NewNop())
	defer p.Stop()

	_, err := p.ScheduleOneShot(context.Background(), Request{RegimenID: "med_1", Slot: "08:00"}, 10*time.Millisecond)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 10*time.Millisecond)

	// fired one-shot drops out of the scheduled list
	list, err := p.ListScheduled(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLocalPlatform_CancelUnknownIsNoop(t *testing.T) {
	p := NewLocalPlatform(true, &captureSink{}, zap.NewNop())
	defer p.Stop()

	assert.NoError(t, p.Cancel(context.Background(), "never-existed"))
}
