// Package backend is the HTTP client for the medication backend, the
// source of truth for regimen and ledger persistence.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/medtrack/medtrack/internal/config"
	"github.com/medtrack/medtrack/internal/errors"
	"github.com/medtrack/medtrack/internal/regimen"
	"github.com/medtrack/medtrack/internal/session"
)

// Client talks to the medication backend. Every call is bounded by the
// configured timeout, smoothed by a rate limiter, and guarded by a
// circuit breaker so a dead backend fails fast instead of piling up
// re-sync traffic.
type Client struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	limiter *rate.Limiter
	logger  *zap.Logger
}

// MedicationList is the GET /medications payload. Guardian regimens
// are medications the user supervises for someone else; they flow
// through the same engine as the user's own.
type MedicationList struct {
	UserMedications     []*regimen.Regimen `json:"userMedications"`
	GuardianMedications []*regimen.Regimen `json:"guardianMedications,omitempty"`
}

// CreateRequest is the POST /medications body.
type CreateRequest struct {
	Name      string             `json:"name"`
	Dose      string             `json:"dose"`
	Times     []regimen.TimeSlot `json:"times"`
	StartDate regimen.Date       `json:"startDate"`
	EndDate   regimen.Date       `json:"endDate"`
	Duration  int                `json:"duration"`
}

// NewClient creates a backend client from config.
func NewClient(cfg config.BackendConfig, logger *zap.Logger) *Client {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 10
	}
	maxFail := uint32(cfg.BreakerMaxFail)
	if maxFail == 0 {
		maxFail = 5
	}
	coolOff := time.Duration(cfg.BreakerCoolOff) * time.Second
	if coolOff <= 0 {
		coolOff = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "medication-backend",
		Timeout: coolOff,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFail
		},
		// A 401 is the backend answering, not the backend failing; a
		// stale cached session must not trip the circuit and mask the
		// login that would fix it.
		IsSuccessful: func(err error) bool {
			return err == nil || stderrors.Is(err, errors.ErrUnauthorized)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Backend breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 20
	}

	return &Client{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

// ListMedications fetches all regimens visible to the session's user.
func (c *Client) ListMedications(ctx context.Context, creds session.Credentials) (*MedicationList, error) {
	body, err := c.do(ctx, creds, http.MethodGet, "/medications", nil)
	if err != nil {
		return nil, err
	}
	var list MedicationList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, errors.Wrap(err, errors.ErrTransport.Code, "decoding medication list")
	}
	return &list, nil
}

// CreateMedication persists a new regimen and returns the copy
// carrying the server-assigned id.
func (c *Client) CreateMedication(ctx context.Context, creds session.Credentials, req CreateRequest) (*regimen.Regimen, error) {
	body, err := c.do(ctx, creds, http.MethodPost, "/medications", req)
	if err != nil {
		return nil, err
	}
	return decodeRegimen(body)
}

// ToggleDose marks (date, slot) taken for the regimen. The backend
// treats a repeated toggle of a present pair as a no-op and always
// returns its authoritative updated regimen.
func (c *Client) ToggleDose(ctx context.Context, creds session.Credentials, id string, date regimen.Date, slot regimen.TimeSlot) (*regimen.Regimen, error) {
	payload := map[string]string{"date": string(date), "time": string(slot)}
	body, err := c.do(ctx, creds, http.MethodPatch, "/medications/"+id+"/toggle", payload)
	if err != nil {
		return nil, err
	}
	return decodeRegimen(body)
}

// DeleteMedication removes the regimen from the backend.
func (c *Client) DeleteMedication(ctx context.Context, creds session.Credentials, id string) error {
	_, err := c.do(ctx, creds, http.MethodDelete, "/medications/"+id, nil)
	return err
}

// RegisterPushToken associates the device push token with the current
// user. Registering the same token twice is a backend no-op.
func (c *Client) RegisterPushToken(ctx context.Context, creds session.Credentials, token string) error {
	_, err := c.do(ctx, creds, http.MethodPost, "/notifications/fcm-token", map[string]string{"token": token})
	return err
}

func decodeRegimen(body []byte) (*regimen.Regimen, error) {
	var r regimen.Regimen
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, errors.Wrap(err, errors.ErrTransport.Code, "decoding regimen")
	}
	return &r, nil
}

func (c *Client) do(ctx context.Context, creds session.Credentials, method, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrTransport.Code, "rate limiter interrupted")
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}
			reader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if creds.Present() {
			req.Header.Set("Authorization", "Bearer "+creds.Token)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, errors.ErrUnauthorized
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("backend returned %d: %s", resp.StatusCode, truncate(data, 200))
		}
		return data, nil
	})
	if err != nil {
		return nil, c.classify(err, method, path)
	}
	return body, nil
}

// classify maps transport failures onto the engine error taxonomy.
func (c *Client) classify(err error, method, path string) error {
	c.logger.Debug("Backend call failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Error(err),
	)
	switch {
	case stderrors.Is(err, errors.ErrUnauthorized):
		return errors.ErrUnauthorized
	case stderrors.Is(err, gobreaker.ErrOpenState), stderrors.Is(err, gobreaker.ErrTooManyRequests):
		return errors.Wrap(err, errors.ErrCircuitOpen.Code, "backend circuit open")
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(err, errors.ErrTimeout.Code, fmt.Sprintf("%s %s timed out", method, path))
	default:
		return errors.Wrap(err, errors.ErrTransport.Code, fmt.Sprintf("%s %s failed", method, path))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
