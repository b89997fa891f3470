package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medtrack/medtrack/internal/config"
	apperrors "github.com/medtrack/medtrack/internal/errors"
	"github.com/medtrack/medtrack/internal/session"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.BackendConfig{
		BaseURL:        srv.URL,
		TimeoutSeconds: 2,
		RateRPS:        100,
		RateBurst:      100,
		BreakerMaxFail: 3,
		BreakerCoolOff: 1,
	}, zap.NewNop())
}

const regimenJSON = `{
	"id": "med_1",
	"name": "Lisinopril",
	"dose": "10mg",
	"times": ["08:00", "20:00"],
	"startDate": "2025-03-01",
	"endDate": "2025-03-10",
	"duration": 10,
	"takenDates": [{"date": "2025-03-02", "times": ["08:00"]}]
}`

func TestListMedications(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/medications", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"userMedications": [` + regimenJSON + `], "guardianMedications": []}`))
	})

	list, err := client.ListMedications(context.Background(), session.Bearer("tok"))
	require.NoError(t, err)
	require.Len(t, list.UserMedications, 1)
	assert.Equal(t, "med_1", list.UserMedications[0].ID)
	assert.Equal(t, 10, list.UserMedications[0].DurationDays)
}

func TestToggleDose(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/medications/med_1/toggle", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2025-03-02", body["date"])
		assert.Equal(t, "08:00", body["time"])

		w.Write([]byte(regimenJSON))
	})

	updated, err := client.ToggleDose(context.Background(), session.Bearer("tok"), "med_1", "2025-03-02", "08:00")
	require.NoError(t, err)
	assert.True(t, updated.DoseLedger["2025-03-02"] != nil)
}

func TestUnauthorizedMapsToSentinel(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := client.RegisterPushToken(context.Background(), session.Anonymous(), "tok-123")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestServerErrorMapsToTransport(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.ListMedications(context.Background(), session.Bearer("tok"))
	assert.ErrorIs(t, err, apperrors.ErrTransport)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 3; i++ {
		_, err := client.ListMedications(context.Background(), session.Bearer("tok"))
		assert.ErrorIs(t, err, apperrors.ErrTransport)
	}

	_, err := client.ListMedications(context.Background(), session.Bearer("tok"))
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
}

func TestUnauthorizedDoesNotTripBreaker(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	// A stale session can 401 many times at app start; logging back in
	// must still reach the backend, not a tripped circuit.
	for i := 0; i < 5; i++ {
		_, err := client.ListMedications(context.Background(), session.Bearer("stale"))
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	}

	_, err := client.ListMedications(context.Background(), session.Bearer("stale"))
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.NotErrorIs(t, err, apperrors.ErrCircuitOpen)
}

func TestDeleteMedication(t *testing.T) {
	deleted := false
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/medications/med_9", r.URL.Path)
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.DeleteMedication(context.Background(), session.Bearer("tok"), "med_9"))
	assert.True(t, deleted)
}
