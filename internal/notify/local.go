package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/medtrack/medtrack/internal/errors"
)

// LocalPlatform is the in-process notification subsystem used by the
// daemon: repeating triggers are cron entries firing daily at the
// slot's time-of-day, one-shots are timers. Deliveries go to the
// configured Sink.
type LocalPlatform struct {
	cron        *cron.Cron
	sink        Sink
	logger      *zap.Logger
	pushCapable bool
	granted     bool

	mu       sync.Mutex
	entries  map[string]cron.EntryID
	timers   map[string]*time.Timer
	schedule map[string]Scheduled
}

// LogSink writes delivered notifications to the logger. It is the
// default sink for the daemon.
type LogSink struct {
	Logger *zap.Logger
}

func (s *LogSink) Deliver(n Notification) {
	s.Logger.Info("Reminder fired",
		zap.String("regimen_id", n.RegimenID),
		zap.String("slot", string(n.Slot)),
		zap.String("title", n.Title),
	)
}

// NewLocalPlatform creates a started local platform. Permission is
// granted by construction; a denying platform only exists in tests.
func NewLocalPlatform(pushCapable bool, sink Sink, logger *zap.Logger) *LocalPlatform {
	if sink == nil {
		sink = &LogSink{Logger: logger}
	}
	p := &LocalPlatform{
		cron:        cron.New(),
		sink:        sink,
		logger:      logger,
		pushCapable: pushCapable,
		granted:     true,
		entries:     make(map[string]cron.EntryID),
		timers:      make(map[string]*time.Timer),
		schedule:    make(map[string]Scheduled),
	}
	p.cron.Start()
	return p
}

// Stop halts the cron loop and drops all pending one-shots.
func (p *LocalPlatform) Stop() {
	p.cron.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, timer := range p.timers {
		timer.Stop()
		delete(p.timers, id)
		delete(p.schedule, id)
	}
}

func (p *LocalPlatform) PushCapable() bool {
	return p.pushCapable
}

func (p *LocalPlatform) PermissionGranted(ctx context.Context) (bool, error) {
	return p.granted, nil
}

func (p *LocalPlatform) RequestPermission(ctx context.Context) (bool, error) {
	return p.granted, nil
}

func (p *LocalPlatform) ScheduleRepeating(ctx context.Context, req Request) (string, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(string(req.Slot), "%d:%d", &hour, &minute); err != nil {
		return "", errors.Wrap(err, errors.ErrScheduling.Code, fmt.Sprintf("unparseable slot %q", req.Slot))
	}

	id := uuid.NewString()
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	entryID, err := p.cron.AddFunc(spec, func() {
		p.sink.Deliver(Notification{
			RegimenID: req.RegimenID,
			Slot:      req.Slot,
			Title:     req.Title,
			Body:      req.Body,
			At:        time.Now(),
		})
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrScheduling.Code, fmt.Sprintf("arming daily trigger at %s", req.Slot))
	}

	p.mu.Lock()
	p.entries[id] = entryID
	p.schedule[id] = Scheduled{ID: id, RegimenID: req.RegimenID, Slot: req.Slot, Repeating: true}
	p.mu.Unlock()

	return id, nil
}

func (p *LocalPlatform) ScheduleOneShot(ctx context.Context, req Request, delay time.Duration) (string, error) {
	id := uuid.NewString()
	timer := time.AfterFunc(delay, func() {
		p.sink.Deliver(Notification{
			RegimenID: req.RegimenID,
			Slot:      req.Slot,
			Title:     req.Title,
			Body:      req.Body,
			At:        time.Now(),
		})
		p.mu.Lock()
		delete(p.timers, id)
		delete(p.schedule, id)
		p.mu.Unlock()
	})

	p.mu.Lock()
	p.timers[id] = timer
	p.schedule[id] = Scheduled{ID: id, RegimenID: req.RegimenID, Slot: req.Slot, Repeating: false}
	p.mu.Unlock()

	return id, nil
}

// Cancel removes a trigger by identifier. Unknown identifiers are a
// no-op, matching platform behavior for already-fired triggers.
func (p *LocalPlatform) Cancel(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entryID, ok := p.entries[id]; ok {
		p.cron.Remove(entryID)
		delete(p.entries, id)
	}
	if timer, ok := p.timers[id]; ok {
		timer.Stop()
		delete(p.timers, id)
	}
	delete(p.schedule, id)
	return nil
}

func (p *LocalPlatform) ListScheduled(ctx context.Context) ([]Scheduled, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Scheduled, 0, len(p.schedule))
	for _, s := range p.schedule {
		out = append(out, s)
	}
	return out, nil
}
