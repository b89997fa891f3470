// Package scheduler maps regimen time slots onto platform notification
// triggers and owns the full handle lifecycle. It is the sole writer
// of the handle set.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/medtrack/medtrack/internal/errors"
	"github.com/medtrack/medtrack/internal/metrics"
	"github.com/medtrack/medtrack/internal/notify"
	"github.com/medtrack/medtrack/internal/regimen"
)

// Handle is the live platform trigger for one (regimen, slot) pair.
// The scheduler never leaves two handles alive for the same pair.
type Handle struct {
	RegimenID  string
	Slot       regimen.TimeSlot
	PlatformID string
}

// Status is the queryable scheduler state for the UI layer.
type Status struct {
	PushCapable      bool
	PermissionDenied bool
	ScheduledSlots   map[string]int
}

// Scheduler reconciles desired reminders against the platform.
type Scheduler struct {
	platform      notify.Platform
	logger        *zap.Logger
	metrics       *metrics.Metrics
	fallbackDelay time.Duration
	now           func() time.Time

	mu      sync.Mutex
	handles map[string]map[regimen.TimeSlot]Handle
	denied  bool

	// locks serializes ScheduleAll/CancelAll per regimen so a stale
	// in-flight call cannot overwrite a later one. Global FIFO is not
	// needed, only per-regimen ordering.
	locks sync.Map
}

// New creates a scheduler over the given platform.
func New(platform notify.Platform, fallbackDelay time.Duration, m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	if fallbackDelay <= 0 {
		fallbackDelay = 5 * time.Second
	}
	return &Scheduler{
		platform:      platform,
		logger:        logger,
		metrics:       m,
		fallbackDelay: fallbackDelay,
		now:           time.Now,
		handles:       make(map[string]map[regimen.TimeSlot]Handle),
	}
}

func (s *Scheduler) lockFor(regimenID string) *sync.Mutex {
	l, _ := s.locks.LoadOrStore(regimenID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// PushCapable reports the platform capability probe for this session.
func (s *Scheduler) PushCapable() bool {
	return s.platform.PushCapable()
}

// ScheduleAll arms reminders for every slot of the regimen. Each slot
// is cancel-then-create: the existing handle is cancelled (or
// confirmed absent) before the replacement is armed, so at most one
// handle is ever live per (regimen, slot).
//
// On a push-incapable runtime only a single one-shot is armed, a few
// seconds out, targeting the regimen's next due slot; no repeating
// trigger is attempted.
//
// Permission denial is a terminal status, surfaced as
// ErrPermissionDenied and queryable via Status; other platform
// rejections come back as scheduling errors for the caller to retry
// at the next re-sync point.
func (s *Scheduler) ScheduleAll(ctx context.Context, r *regimen.Regimen) error {
	if r.ID == "" {
		return errors.New(errors.ErrScheduling.Code, "regimen has no server-assigned id")
	}

	lock := s.lockFor(r.ID)
	lock.Lock()
	defer lock.Unlock()

	granted, err := s.platform.PermissionGranted(ctx)
	if err == nil && !granted {
		granted, err = s.platform.RequestPermission(ctx)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrScheduling.Code, "permission query failed")
	}
	if !granted {
		s.clearRegimen(ctx, r.ID)
		s.mu.Lock()
		s.denied = true
		s.mu.Unlock()
		s.logger.Warn("Notification permission denied, reminders unscheduled",
			zap.String("regimen_id", r.ID),
		)
		return errors.ErrPermissionDenied
	}
	s.mu.Lock()
	s.denied = false
	s.mu.Unlock()

	if !s.platform.PushCapable() {
		return s.scheduleFallback(ctx, r)
	}

	firstErr := s.clearStaleSlots(ctx, r)
	for _, slot := range r.TimeSlots {
		if err := s.cancelSlot(ctx, r.ID, slot); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		platformID, err := s.platform.ScheduleRepeating(ctx, reminderRequest(r, slot))
		if err != nil {
			s.metrics.SchedulingFailures.Inc()
			s.logger.Warn("Failed to arm repeating trigger",
				zap.String("regimen_id", r.ID),
				zap.String("slot", string(slot)),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = errors.Wrap(err, errors.ErrScheduling.Code, fmt.Sprintf("arming slot %s", slot))
			}
			continue
		}
		s.storeHandle(Handle{RegimenID: r.ID, Slot: slot, PlatformID: platformID})
		s.metrics.RemindersScheduled.Inc()
	}

	s.logger.Debug("Reminders scheduled",
		zap.String("regimen_id", r.ID),
		zap.Int("slots", len(r.TimeSlots)),
	)
	return firstErr
}

// clearStaleSlots cancels triggers for slots an edit removed from the
// regimen. The arming loop only touches current slots, so without this
// sweep a removed slot's daily trigger would keep firing until the
// regimen itself was deleted.
func (s *Scheduler) clearStaleSlots(ctx context.Context, r *regimen.Regimen) error {
	current := make(map[regimen.TimeSlot]bool, len(r.TimeSlots))
	for _, slot := range r.TimeSlots {
		current[slot] = true
	}

	s.mu.Lock()
	var stale []Handle
	for slot, h := range s.handles[r.ID] {
		if !current[slot] {
			delete(s.handles[r.ID], slot)
			stale = append(stale, h)
		}
	}
	s.mu.Unlock()

	var firstErr error
	for _, h := range stale {
		if err := s.platform.Cancel(ctx, h.PlatformID); err != nil {
			if firstErr == nil {
				firstErr = errors.Wrap(err, errors.ErrScheduling.Code, fmt.Sprintf("cancelling removed slot %s", h.Slot))
			}
			continue
		}
		s.metrics.RemindersCancelled.Inc()
	}
	s.syncHandleGauge()

	// Sweep the platform too: a trigger the registry lost track of
	// must not outlive the slot it was armed for.
	scheduled, err := s.platform.ListScheduled(ctx)
	if err != nil {
		if firstErr == nil {
			firstErr = errors.Wrap(err, errors.ErrScheduling.Code, "listing scheduled triggers")
		}
		return firstErr
	}
	for _, trig := range scheduled {
		if trig.RegimenID != r.ID || current[trig.Slot] {
			continue
		}
		if err := s.platform.Cancel(ctx, trig.ID); err != nil {
			if firstErr == nil {
				firstErr = errors.Wrap(err, errors.ErrScheduling.Code, fmt.Sprintf("cancelling orphaned trigger %s", trig.ID))
			}
			continue
		}
		s.metrics.RemindersCancelled.Inc()
	}
	return firstErr
}

// scheduleFallback replaces all of the regimen's handles with one
// short-delay one-shot so the reminder path can be smoke-tested on
// simulators and emulators.
func (s *Scheduler) scheduleFallback(ctx context.Context, r *regimen.Regimen) error {
	s.clearRegimen(ctx, r.ID)

	slot := regimen.NextDoseTime(r, s.now())
	platformID, err := s.platform.ScheduleOneShot(ctx, reminderRequest(r, slot), s.fallbackDelay)
	if err != nil {
		s.metrics.SchedulingFailures.Inc()
		return errors.Wrap(err, errors.ErrScheduling.Code, "arming fallback one-shot")
	}
	s.storeHandle(Handle{RegimenID: r.ID, Slot: slot, PlatformID: platformID})
	s.metrics.RemindersScheduled.Inc()
	return nil
}

// CancelAll cancels every handle belonging to the regimen, then sweeps
// the platform's scheduled list for triggers carrying the regimen id
// that the registry lost track of. Safe to call when nothing is
// scheduled.
func (s *Scheduler) CancelAll(ctx context.Context, regimenID string) error {
	lock := s.lockFor(regimenID)
	lock.Lock()
	defer lock.Unlock()

	s.clearRegimen(ctx, regimenID)

	scheduled, err := s.platform.ListScheduled(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrScheduling.Code, "listing scheduled triggers")
	}
	for _, trig := range scheduled {
		if trig.RegimenID != regimenID {
			continue
		}
		if err := s.platform.Cancel(ctx, trig.ID); err != nil {
			return errors.Wrap(err, errors.ErrScheduling.Code, fmt.Sprintf("cancelling orphaned trigger %s", trig.ID))
		}
		s.metrics.RemindersCancelled.Inc()
	}
	return nil
}

// clearRegimen cancels and forgets every registry handle for the id.
func (s *Scheduler) clearRegimen(ctx context.Context, regimenID string) {
	s.mu.Lock()
	slots := s.handles[regimenID]
	delete(s.handles, regimenID)
	s.mu.Unlock()

	for _, h := range slots {
		if err := s.platform.Cancel(ctx, h.PlatformID); err != nil {
			s.logger.Warn("Failed to cancel trigger",
				zap.String("regimen_id", regimenID),
				zap.String("platform_id", h.PlatformID),
				zap.Error(err),
			)
			continue
		}
		s.metrics.RemindersCancelled.Inc()
	}
	s.syncHandleGauge()
}

// cancelSlot removes the existing handle for one slot. The cancel
// must complete before the caller arms a replacement.
func (s *Scheduler) cancelSlot(ctx context.Context, regimenID string, slot regimen.TimeSlot) error {
	s.mu.Lock()
	h, ok := s.handles[regimenID][slot]
	if ok {
		delete(s.handles[regimenID], slot)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err := s.platform.Cancel(ctx, h.PlatformID); err != nil {
		return errors.Wrap(err, errors.ErrScheduling.Code, fmt.Sprintf("cancelling slot %s", slot))
	}
	s.metrics.RemindersCancelled.Inc()
	s.syncHandleGauge()
	return nil
}

func (s *Scheduler) storeHandle(h Handle) {
	s.mu.Lock()
	if s.handles[h.RegimenID] == nil {
		s.handles[h.RegimenID] = make(map[regimen.TimeSlot]Handle)
	}
	s.handles[h.RegimenID][h.Slot] = h
	s.mu.Unlock()
	s.syncHandleGauge()
}

func (s *Scheduler) syncHandleGauge() {
	s.mu.Lock()
	total := 0
	for _, slots := range s.handles {
		total += len(slots)
	}
	s.mu.Unlock()
	s.metrics.LiveHandles.Set(float64(total))
}

// LiveHandles returns the registry handles for one regimen.
func (s *Scheduler) LiveHandles(regimenID string) []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Handle, 0, len(s.handles[regimenID]))
	for _, h := range s.handles[regimenID] {
		out = append(out, h)
	}
	return out
}

// Status reports the scheduler state the UI may query. Permission
// denial shows up here rather than as a fatal error.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots := make(map[string]int, len(s.handles))
	for id, hs := range s.handles {
		slots[id] = len(hs)
	}
	return Status{
		PushCapable:      s.platform.PushCapable(),
		PermissionDenied: s.denied,
		ScheduledSlots:   slots,
	}
}

func reminderRequest(r *regimen.Regimen, slot regimen.TimeSlot) notify.Request {
	return notify.Request{
		RegimenID: r.ID,
		Slot:      slot,
		Title:     "Medication Reminder",
		Body:      fmt.Sprintf("Time to take %s", r.Name),
	}
}
