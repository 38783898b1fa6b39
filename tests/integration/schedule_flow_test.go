//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhima/schedule-reconciler/internal/api"
	"github.com/dhima/schedule-reconciler/internal/events"
	"github.com/dhima/schedule-reconciler/internal/logging"
	"github.com/dhima/schedule-reconciler/internal/models"
	"github.com/dhima/schedule-reconciler/internal/oneoff"
	"github.com/dhima/schedule-reconciler/internal/reconcile"
	"github.com/dhima/schedule-reconciler/internal/recurrence"
	"github.com/dhima/schedule-reconciler/internal/schedules"
	"github.com/dhima/schedule-reconciler/internal/storage"
	"github.com/dhima/schedule-reconciler/internal/testutil/fakes"
	"github.com/dhima/schedule-reconciler/pkg/clock"
	"github.com/dhima/schedule-reconciler/pkg/config"
)

const webhookSecret = "s3cret"

type registration struct {
	ScheduleAt string               `json:"schedule_at"`
	Payload    models.OneOffPayload `json:"payload"`
	Headers    []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
}

// oneOffScheduler emulates the metadata API of the external scheduler.
type oneOffScheduler struct {
	mu   sync.Mutex
	seq  int
	live map[string]registration
}

func (s *oneOffScheduler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string          `json:"type"`
		Args json.RawMessage `json:"args"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch req.Type {
	case "create_scheduled_event":
		var args registration
		_ = json.Unmarshal(req.Args, &args)
		s.seq++
		id := fmt.Sprintf("oo-%d", s.seq)
		s.live[id] = args
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "success", "event_id": id})
	case "delete_scheduled_event":
		var args struct {
			EventID string `json:"event_id"`
		}
		_ = json.Unmarshal(req.Args, &args)
		if _, ok := s.live[args.EventID]; !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		delete(s.live, args.EventID)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "success"})
	default:
		http.Error(w, "unknown type", http.StatusBadRequest)
	}
}

// take removes and returns the only live registration for eventID.
func (s *oneOffScheduler) take(t *testing.T, eventID string) registration {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, reg := range s.live {
		if reg.Payload.EventID == eventID {
			delete(s.live, id)
			return reg
		}
	}
	t.Fatalf("no live registration for event %s", eventID)
	return registration{}
}

func (s *oneOffScheduler) liveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

type stack struct {
	clock    *clock.Manual
	oneOff   *oneOffScheduler
	callback *fakes.FakeCallback
	router   http.Handler
}

func newStack(t *testing.T) *stack {
	t.Helper()
	clk := clock.NewManualUnix(500)

	db, dialect, err := storage.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	sqlStore := storage.NewSQLStore(db, dialect, clk)
	require.NoError(t, sqlStore.EnsureSchema(context.Background()))

	emulator := &oneOffScheduler{live: map[string]registration{}}
	oneOffServer := httptest.NewServer(emulator)
	t.Cleanup(oneOffServer.Close)

	logger := logging.NewNoOpLogger()
	client := oneoff.NewHTTPClient(oneoff.HTTPClientConfig{
		Endpoint:            oneOffServer.URL,
		WebhookURL:          "http://reconciler.test/api/v1/oneoff/fired",
		WebhookSecretHeader: "X-Webhook-Secret",
		WebhookSecret:       webhookSecret,
	}, nil)
	callback := &fakes.FakeCallback{}
	observed := storage.NewObservedStore(sqlStore)
	computer := recurrence.NewComputer()
	ctrl := reconcile.New(observed, oneoff.NewBridge(client, clk, logger, nil), computer, callback, clk, logger, nil)
	observed.Observe(ctrl)

	srv, err := api.NewServer(config.App{
		Environment:         "test",
		WebhookSecret:       webhookSecret,
		WebhookSecretHeader: "X-Webhook-Secret",
	}, logger, api.Dependencies{
		Schedules:  schedules.NewService(observed, computer, logger),
		Events:     events.NewService(observed, clk, logger),
		Reconciler: ctrl,
		DB:         sqlStore,
	})
	require.NoError(t, err)

	return &stack{clock: clk, oneOff: emulator, callback: callback, router: srv.Handler()}
}

func (s *stack) call(t *testing.T, method, path string, body any, headers map[string]string, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		wrapper := struct {
			Data any `json:"data"`
		}{Data: out}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wrapper), w.Body.String())
	}
	return w.Code
}

// deliver replays a registration the way the scheduler would.
func (s *stack) deliver(t *testing.T, reg registration) string {
	t.Helper()
	headers := map[string]string{}
	for _, h := range reg.Headers {
		headers[h.Name] = h.Value
	}
	var resp struct {
		Result string `json:"result"`
	}
	code := s.call(t, http.MethodPost, "/api/v1/oneoff/fired", map[string]any{"payload": reg.Payload}, headers, &resp)
	require.Equal(t, http.StatusOK, code)
	return resp.Result
}

func TestScheduleFlow_CreateFireChainAndDelete(t *testing.T) {
	st := newStack(t)

	var created models.ScheduleResponse
	code := st.call(t, http.MethodPost, "/api/v1/schedules",
		map[string]any{"cron": "@every 1h", "start_at": 1000}, nil, &created)
	require.Equal(t, http.StatusCreated, code)
	require.NotNil(t, created.NextEvent)
	first := *created.NextEvent
	assert.Equal(t, int64(1000), first.PlanStart)
	assert.True(t, first.HasTrigger())
	assert.Equal(t, 1, st.oneOff.liveCount())

	st.clock.Set(1000)
	reg := st.oneOff.take(t, first.ID)
	assert.Equal(t, "1970-01-01T00:16:40Z", reg.ScheduleAt)
	assert.Equal(t, "executed", st.deliver(t, reg))
	assert.Equal(t, 1, st.callback.CallCount())

	var listed models.EventListResponse
	require.Equal(t, http.StatusOK, st.call(t, http.MethodGet, "/api/v1/schedules/"+created.ID+"/events", nil, nil, &listed))
	require.Len(t, listed.Events, 2)
	assert.Equal(t, int64(4600), listed.Events[0].PlanStart)
	assert.Equal(t, models.EventStatusPending, listed.Events[0].Status)
	assert.Equal(t, models.EventStatusInProgress, listed.Events[1].Status)
	assert.Equal(t, 1, st.oneOff.liveCount())

	// redelivery of the consumed trigger is acknowledged without effect
	assert.Equal(t, "stale", st.deliver(t, reg))
	assert.Equal(t, 1, st.callback.CallCount())

	require.Equal(t, http.StatusNoContent, st.call(t, http.MethodDelete, "/api/v1/schedules/"+created.ID, nil, nil, nil))
	assert.Zero(t, st.oneOff.liveCount())
}

func TestScheduleFlow_WrongSecretRejected(t *testing.T) {
	st := newStack(t)
	var created models.ScheduleResponse
	require.Equal(t, http.StatusCreated, st.call(t, http.MethodPost, "/api/v1/schedules",
		map[string]any{"cron": "@every 1h", "start_at": 1000}, nil, &created))

	code := st.call(t, http.MethodPost, "/api/v1/oneoff/fired",
		map[string]any{"eventId": created.NextEvent.ID, "kind": "start"},
		map[string]string{"X-Webhook-Secret": "guess"}, nil)

	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Zero(t, st.callback.CallCount())
}

func TestScheduleFlow_CancelSkipsOccurrence(t *testing.T) {
	st := newStack(t)
	var created models.ScheduleResponse
	require.Equal(t, http.StatusCreated, st.call(t, http.MethodPost, "/api/v1/schedules",
		map[string]any{"cron": "@every 1h", "start_at": 1000}, nil, &created))

	var cancelled models.Event
	code := st.call(t, http.MethodPost, "/api/v1/events/"+created.NextEvent.ID+"/cancel", nil, nil, &cancelled)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.EventStatusCancelled, cancelled.Status)

	var fetched models.ScheduleResponse
	require.Equal(t, http.StatusOK, st.call(t, http.MethodGet, "/api/v1/schedules/"+created.ID, nil, nil, &fetched))
	require.NotNil(t, fetched.NextEvent)
	assert.Equal(t, int64(4600), fetched.NextEvent.PlanStart)
	assert.Equal(t, 1, st.oneOff.liveCount())

	code = st.call(t, http.MethodPost, "/api/v1/events/"+created.NextEvent.ID+"/cancel", nil, nil, nil)
	assert.Equal(t, http.StatusConflict, code)
}
