package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medtrack/medtrack/internal/backend"
	"github.com/medtrack/medtrack/internal/config"
	apperrors "github.com/medtrack/medtrack/internal/errors"
	"github.com/medtrack/medtrack/internal/metrics"
	"github.com/medtrack/medtrack/internal/regimen"
	"github.com/medtrack/medtrack/internal/session"
)

// toggleBackend is a minimal in-memory stand-in for the backend's
// idempotent toggle endpoint.
func toggleBackend(t *testing.T, r *regimen.Regimen) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch {
		case req.Method == http.MethodPatch:
			var body struct {
				Date regimen.Date     `json:"date"`
				Time regimen.TimeSlot `json:"time"`
			}
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			require.NoError(t, r.ApplyDose(regimen.DoseEvent{RegimenID: r.ID, Date: body.Date, Slot: body.Time}))
			require.NoError(t, json.NewEncoder(w).Encode(r))
		case req.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newService(t *testing.T, baseURL string) *Service {
	t.Helper()
	client := backend.NewClient(config.BackendConfig{
		BaseURL:        baseURL,
		TimeoutSeconds: 2,
		RateRPS:        100,
		RateBurst:      100,
	}, zap.NewNop())
	return NewService(client, metrics.NewNop(), zap.NewNop())
}

func serverRegimen(t *testing.T) *regimen.Regimen {
	t.Helper()
	r, err := regimen.New("Lisinopril", "10mg", []regimen.TimeSlot{"08:00", "20:00"}, "2025-03-01", "2025-03-10")
	require.NoError(t, err)
	r.ID = "med_1"
	return r
}

func TestRecordDose_Idempotent(t *testing.T) {
	server := serverRegimen(t)
	srv := toggleBackend(t, server)
	defer srv.Close()
	svc := newService(t, srv.URL)

	ev := regimen.DoseEvent{RegimenID: "med_1", Date: "2025-03-02", Slot: "08:00"}
	creds := session.Bearer("tok")

	first, err := svc.RecordDose(context.Background(), creds, nil, ev)
	require.NoError(t, err)
	second, err := svc.RecordDose(context.Background(), creds, nil, ev)
	require.NoError(t, err)

	assert.Equal(t, []regimen.TimeSlot{"08:00"}, first.DoseLedger["2025-03-02"])
	assert.Equal(t, []regimen.TimeSlot{"08:00"}, second.DoseLedger["2025-03-02"])
}

func TestRecordDose_ReturnsBackendCopy(t *testing.T) {
	server := serverRegimen(t)
	srv := toggleBackend(t, server)
	defer srv.Close()
	svc := newService(t, srv.URL)

	local := serverRegimen(t)
	updated, err := svc.RecordDose(context.Background(), session.Bearer("tok"), local,
		regimen.DoseEvent{RegimenID: "med_1", Date: "2025-03-03", Slot: "20:00"})
	require.NoError(t, err)

	assert.True(t, regimen.IsSlotTaken(updated, "2025-03-03", "20:00"))
	assert.False(t, regimen.IsSlotTaken(local, "2025-03-03", "20:00"), "local copy untouched, no optimistic flip")
}

func TestRecordDose_ValidatesAgainstCurrent(t *testing.T) {
	srv := toggleBackend(t, serverRegimen(t))
	defer srv.Close()
	svc := newService(t, srv.URL)

	current := serverRegimen(t)
	_, err := svc.RecordDose(context.Background(), session.Bearer("tok"), current,
		regimen.DoseEvent{RegimenID: "med_1", Date: "2025-06-01", Slot: "08:00"})

	assert.ErrorIs(t, err, apperrors.ErrDateOutOfRange)
}

func TestRecordDose_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	svc := newService(t, srv.URL)

	_, err := svc.RecordDose(context.Background(), session.Bearer("tok"), nil,
		regimen.DoseEvent{RegimenID: "med_1", Date: "2025-03-02", Slot: "08:00"})

	assert.ErrorIs(t, err, apperrors.ErrDoseRecording)
	assert.ErrorIs(t, err, apperrors.ErrTransport)
}

func TestDeleteRegimen(t *testing.T) {
	srv := toggleBackend(t, serverRegimen(t))
	defer srv.Close()
	svc := newService(t, srv.URL)

	assert.NoError(t, svc.DeleteRegimen(context.Background(), session.Bearer("tok"), "med_1"))
}
