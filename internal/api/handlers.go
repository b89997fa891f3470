package api

import (
	stderrors "errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/medtrack/medtrack/internal/backend"
	"github.com/medtrack/medtrack/internal/errors"
	"github.com/medtrack/medtrack/internal/regimen"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   "0.1.0",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleAppStart(c *fiber.Ctx) error {
	if err := s.coordinator.OnAppStart(c.Context(), credentials(c)); err != nil {
		s.logger.Error("App start failed", zap.Error(err))
		return s.fail(c, err)
	}
	return c.JSON(s.snapshot())
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	if err := s.coordinator.OnLogin(c.Context(), credentials(c)); err != nil {
		s.logger.Error("Login sync failed", zap.Error(err))
		return s.fail(c, err)
	}
	return c.JSON(s.snapshot())
}

func (s *Server) handleFocus(c *fiber.Ctx) error {
	s.coordinator.OnFocus(c.Context())
	return c.JSON(s.snapshot())
}

func (s *Server) handleListRegimens(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"regimens": s.coordinator.Regimens()})
}

func (s *Server) handleCreateRegimen(c *fiber.Ctx) error {
	var req backend.CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	created, err := s.coordinator.CreateRegimen(c.Context(), credentials(c), req)
	if err != nil {
		s.logger.Error("Regimen creation failed", zap.Error(err))
		return s.fail(c, err)
	}
	return c.Status(201).JSON(created)
}

func (s *Server) handleDeleteRegimen(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.coordinator.OnRegimenDeleted(c.Context(), credentials(c), id); err != nil {
		s.logger.Error("Regimen deletion failed", zap.String("regimen_id", id), zap.Error(err))
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleRecordDose(c *fiber.Ctx) error {
	var req struct {
		Date regimen.Date     `json:"date"`
		Time regimen.TimeSlot `json:"time"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	updated, err := s.coordinator.OnDoseTaken(c.Context(), credentials(c), regimen.DoseEvent{
		RegimenID: c.Params("id"),
		Date:      req.Date,
		Slot:      req.Time,
	})
	if err != nil {
		s.logger.Error("Dose recording failed", zap.String("regimen_id", c.Params("id")), zap.Error(err))
		return s.fail(c, err)
	}
	return c.JSON(updated)
}

func (s *Server) handleAdherence(c *fiber.Ctx) error {
	id := c.Params("id")
	r, ok := s.coordinator.Regimen(id)
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "regimen not found"})
	}

	now := time.Now()
	today := regimen.DateOf(now)
	return c.JSON(fiber.Map{
		"regimenId":       r.ID,
		"nextDoseTime":    regimen.NextDoseTime(r, now),
		"todayProgress":   regimen.DayProgress(r, today),
		"overallProgress": regimen.OverallProgress(r),
		"fullyTakenToday": regimen.IsFullyTakenToday(r, today),
	})
}

func (s *Server) handleReminderStatus(c *fiber.Ctx) error {
	status := s.coordinator.SchedulerStatus()
	reg := s.coordinator.Registration()
	return c.JSON(fiber.Map{
		"pushCapable":      status.PushCapable,
		"permissionDenied": status.PermissionDenied,
		"scheduledSlots":   status.ScheduledSlots,
		"pushToken":        reg.Token,
		"tokenRegistered":  reg.Authenticated && !reg.LastRegisteredAt.IsZero(),
	})
}

// snapshot is the engine state returned after lifecycle transitions.
func (s *Server) snapshot() fiber.Map {
	status := s.coordinator.SchedulerStatus()
	return fiber.Map{
		"regimens":         s.coordinator.Regimens(),
		"permissionDenied": status.PermissionDenied,
		"scheduledSlots":   status.ScheduledSlots,
	}
}

// fail maps the error taxonomy onto HTTP statuses.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := 500
	switch {
	case stderrors.Is(err, errors.ErrUnauthorized):
		status = 401
	case stderrors.Is(err, errors.ErrRegimenMissing):
		status = 404
	case stderrors.Is(err, errors.ErrPermissionDenied):
		status = 409
	case stderrors.Is(err, errors.ErrTransport),
		stderrors.Is(err, errors.ErrTimeout),
		stderrors.Is(err, errors.ErrCircuitOpen):
		status = 502
	case isValidationError(err):
		status = 422
	}

	code := "UNKNOWN"
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		code = appErr.Code
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}

func isValidationError(err error) bool {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return strings.HasPrefix(appErr.Code, "VALID_")
}
