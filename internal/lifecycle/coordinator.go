// Package lifecycle sequences the engine components for each trigger
// event coming from the UI layer: app start, login, regimen edits,
// deletes, dose taking, focus, and the periodic background re-sync.
package lifecycle

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/medtrack/medtrack/internal/backend"
	"github.com/medtrack/medtrack/internal/errors"
	"github.com/medtrack/medtrack/internal/ledger"
	"github.com/medtrack/medtrack/internal/metrics"
	"github.com/medtrack/medtrack/internal/regimen"
	"github.com/medtrack/medtrack/internal/registrar"
	"github.com/medtrack/medtrack/internal/scheduler"
	"github.com/medtrack/medtrack/internal/session"
)

// Coordinator owns the in-memory regimen cache and drives the ledger
// service, reminder scheduler, and token registrar. All dependencies
// are constructor-injected so tests can substitute fakes.
type Coordinator struct {
	backend   *backend.Client
	ledger    *ledger.Service
	scheduler *scheduler.Scheduler
	registrar *registrar.Registrar
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.RWMutex
	regimens map[string]*regimen.Regimen
	// creds is the last session seen at app start or login, kept so
	// the background re-sync can repeat the app-start sweep without a
	// UI event supplying credentials.
	creds session.Credentials
}

// New creates a coordinator.
func New(client *backend.Client, led *ledger.Service, sched *scheduler.Scheduler, reg *registrar.Registrar, m *metrics.Metrics, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		backend:   client,
		ledger:    led,
		scheduler: sched,
		registrar: reg,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
		regimens:  make(map[string]*regimen.Regimen),
	}
}

// OnAppStart runs the cold-start sequence: provision the push token,
// and when a live cached session exists, register it and re-arm
// reminders for every regimen. Registration and scheduling failures
// are absorbed; only a failed regimen fetch propagates, so the UI can
// offer a retry.
func (c *Coordinator) OnAppStart(ctx context.Context, creds session.Credentials) error {
	c.setCreds(creds)

	if _, err := c.registrar.EnsureRegistered(ctx, creds, false); err != nil {
		c.logger.Warn("Push token provisioning failed", zap.Error(err))
	}

	if !creds.Live(c.now()) {
		c.logger.Info("No cached session, skipping reminder sync")
		return nil
	}

	if _, err := c.registrar.EnsureRegistered(ctx, creds, true); err != nil {
		c.logger.Warn("Push token registration failed", zap.Error(err))
	}
	return c.sync(ctx, creds)
}

// OnLogin runs after the auth layer has persisted the session token;
// the caller passes the persisted credentials, never a speculative
// copy. Token registration is best-effort and must not block login.
func (c *Coordinator) OnLogin(ctx context.Context, creds session.Credentials) error {
	c.setCreds(creds)

	if _, err := c.registrar.EnsureRegistered(ctx, creds, true); err != nil {
		c.logger.Warn("Post-login token registration failed", zap.Error(err))
	}
	return c.sync(ctx, creds)
}

// CreateRegimen persists a draft regimen on the backend and schedules
// its reminders from the returned copy, which carries the
// server-assigned id required before scheduling.
func (c *Coordinator) CreateRegimen(ctx context.Context, creds session.Credentials, req backend.CreateRequest) (*regimen.Regimen, error) {
	created, err := c.backend.CreateMedication(ctx, creds, req)
	if err != nil {
		c.metrics.TransportErrors.Inc()
		return nil, err
	}
	if err := c.OnRegimenSaved(ctx, creds, created); err != nil {
		// Scheduling trouble does not undo the save.
		c.logger.Warn("Created regimen without reminders", zap.String("regimen_id", created.ID), zap.Error(err))
	}
	return created, nil
}

// OnRegimenSaved reacts to a create or edit: cache the just-persisted
// backend copy and re-schedule its reminders. A failed schedule never
// fails the save; it surfaces through the scheduler status and is
// retried at the next re-sync point.
func (c *Coordinator) OnRegimenSaved(ctx context.Context, creds session.Credentials, r *regimen.Regimen) error {
	if r.ID == "" {
		return errors.New(errors.ErrValidation.Code, "regimen has no server-assigned id")
	}

	c.mu.Lock()
	c.regimens[r.ID] = r.Clone()
	c.mu.Unlock()

	if err := c.scheduler.ScheduleAll(ctx, r); err != nil {
		if stderrors.Is(err, errors.ErrPermissionDenied) {
			c.logger.Info("Reminders off: notification permission denied")
			return nil
		}
		c.logger.Warn("Reminder scheduling failed, will retry at next re-sync",
			zap.String("regimen_id", r.ID),
			zap.Error(err),
		)
	}
	return nil
}

// OnRegimenDeleted cancels all reminders for the id and only then
// deletes the regimen from the backend. The order is strict: a
// regimen deleted first would leave orphaned platform triggers with a
// dangling identifier.
func (c *Coordinator) OnRegimenDeleted(ctx context.Context, creds session.Credentials, regimenID string) error {
	if err := c.scheduler.CancelAll(ctx, regimenID); err != nil {
		return err
	}
	if err := c.ledger.DeleteRegimen(ctx, creds, regimenID); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.regimens, regimenID)
	c.mu.Unlock()
	return nil
}

// OnDoseTaken records the dose and refreshes the cached regimen from
// the backend's authoritative copy. Reminder state is untouched. On
// failure the cache keeps the previous taken state and the error
// propagates for the UI's retry affordance.
func (c *Coordinator) OnDoseTaken(ctx context.Context, creds session.Credentials, ev regimen.DoseEvent) (*regimen.Regimen, error) {
	c.mu.RLock()
	current := c.regimens[ev.RegimenID]
	c.mu.RUnlock()

	updated, err := c.ledger.RecordDose(ctx, creds, current, ev)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.regimens[updated.ID] = updated.Clone()
	c.mu.Unlock()
	return updated, nil
}

// OnFocus re-synchronizes reminders when a schedule screen regains
// focus. Failures are logged, not surfaced; the next trigger point
// retries.
func (c *Coordinator) OnFocus(ctx context.Context) {
	creds := c.Creds()
	if !creds.Live(c.now()) {
		return
	}
	if err := c.sync(ctx, creds); err != nil {
		c.logger.Warn("Focus re-sync failed", zap.Error(err))
	}
}

// Resync repeats the app-start sweep with the cached session. It is
// the periodic guard against the platform silently dropping a
// repeating trigger.
func (c *Coordinator) Resync(ctx context.Context) {
	c.OnFocus(ctx)
}

// sync fetches all regimens for the session's user, including
// delegated guardian regimens, caches them, and re-arms reminders for
// each. Per-regimen scheduling failures are absorbed.
func (c *Coordinator) sync(ctx context.Context, creds session.Credentials) error {
	list, err := c.backend.ListMedications(ctx, creds)
	if err != nil {
		c.metrics.TransportErrors.Inc()
		return err
	}

	all := make([]*regimen.Regimen, 0, len(list.UserMedications)+len(list.GuardianMedications))
	all = append(all, list.UserMedications...)
	all = append(all, list.GuardianMedications...)

	c.mu.Lock()
	c.regimens = make(map[string]*regimen.Regimen, len(all))
	for _, r := range all {
		c.regimens[r.ID] = r.Clone()
	}
	c.mu.Unlock()

	for _, r := range all {
		if err := c.scheduler.ScheduleAll(ctx, r); err != nil {
			if stderrors.Is(err, errors.ErrPermissionDenied) {
				break
			}
			c.logger.Warn("Re-sync scheduling failed",
				zap.String("regimen_id", r.ID),
				zap.Error(err),
			)
		}
	}

	c.metrics.Resyncs.Inc()
	c.logger.Debug("Reminder sync complete", zap.Int("regimens", len(all)))
	return nil
}

func (c *Coordinator) setCreds(creds session.Credentials) {
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
}

// Creds returns the last session seen by app start or login.
func (c *Coordinator) Creds() session.Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// Regimen returns a copy of one cached regimen.
func (c *Coordinator) Regimen(id string) (*regimen.Regimen, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.regimens[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Regimens returns copies of all cached regimens ordered by their
// next due slot.
func (c *Coordinator) Regimens() []*regimen.Regimen {
	c.mu.RLock()
	out := make([]*regimen.Regimen, 0, len(c.regimens))
	for _, r := range c.regimens {
		out = append(out, r.Clone())
	}
	c.mu.RUnlock()

	regimen.SortByNextDose(out, c.now())
	return out
}

// SchedulerStatus exposes the reminder state the UI may query.
func (c *Coordinator) SchedulerStatus() scheduler.Status {
	return c.scheduler.Status()
}

// Registration exposes the push token state.
func (c *Coordinator) Registration() registrar.Registration {
	return c.registrar.Registration()
}
