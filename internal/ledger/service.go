// Package ledger applies dose-taken mutations against the backend.
package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/medtrack/medtrack/internal/backend"
	"github.com/medtrack/medtrack/internal/errors"
	"github.com/medtrack/medtrack/internal/metrics"
	"github.com/medtrack/medtrack/internal/regimen"
	"github.com/medtrack/medtrack/internal/session"
)

// Service records doses and deletes regimens through the backend. It
// never synthesizes ledger updates locally: the returned regimen is
// always the backend's authoritative copy, so server-side
// recalculation cannot drift from the engine's view.
type Service struct {
	backend *backend.Client
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewService creates a dose ledger service.
func NewService(client *backend.Client, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{backend: client, metrics: m, logger: logger}
}

// RecordDose marks (date, slot) taken for the regimen. Idempotent for
// the caller: re-recording a present pair yields the same ledger with
// no duplicate and no error. When current is non-nil the event is
// validated against it first, so an impossible event never reaches the
// wire. Transport failures surface as dose recording errors; retry is
// the caller's affordance, never automatic here.
func (s *Service) RecordDose(ctx context.Context, creds session.Credentials, current *regimen.Regimen, ev regimen.DoseEvent) (*regimen.Regimen, error) {
	if current != nil {
		probe := current.Clone()
		if err := probe.ApplyDose(ev); err != nil {
			return nil, err
		}
	}

	updated, err := s.backend.ToggleDose(ctx, creds, ev.RegimenID, ev.Date, ev.Slot)
	if err != nil {
		s.metrics.DoseFailures.Inc()
		s.metrics.TransportErrors.Inc()
		s.logger.Warn("Dose recording failed",
			zap.String("regimen_id", ev.RegimenID),
			zap.String("date", string(ev.Date)),
			zap.String("slot", string(ev.Slot)),
			zap.Error(err),
		)
		return nil, errors.Wrap(err, errors.ErrDoseRecording.Code, fmt.Sprintf("recording dose for %s", ev.RegimenID))
	}

	s.metrics.DosesRecorded.Inc()
	return updated, nil
}

// DeleteRegimen removes the regimen from the backend. The caller must
// have completed ReminderScheduler.CancelAll for the id first;
// deleting before cancelling leaves orphaned platform triggers with a
// dangling identifier.
func (s *Service) DeleteRegimen(ctx context.Context, creds session.Credentials, regimenID string) error {
	if err := s.backend.DeleteMedication(ctx, creds, regimenID); err != nil {
		s.metrics.TransportErrors.Inc()
		return err
	}
	s.logger.Info("Regimen deleted", zap.String("regimen_id", regimenID))
	return nil
}
