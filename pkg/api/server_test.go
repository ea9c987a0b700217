package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/borgmon/alarm-clock/pkg/calendar"
	"github.com/borgmon/alarm-clock/pkg/manager"
	"github.com/borgmon/alarm-clock/pkg/metrics"
	"github.com/borgmon/alarm-clock/pkg/notify"
	"github.com/borgmon/alarm-clock/pkg/store"
	"github.com/borgmon/alarm-clock/pkg/timer"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sunday 2026-10-18 08:00 UTC
var testNow = time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)

type testServer struct {
	srv    *Server
	module *Module
	timers *timer.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	now := func() time.Time { return testNow }
	timers := timer.NewService(nil, timer.WithClock(now), timer.WithSweep(""))
	reg := metrics.New(func() float64 { return float64(timers.Len()) }, nil)

	engine := manager.New(manager.Options{
		Store:     store.NewAlarmStore(store.NewMemoryBackend()),
		Timers:    timers,
		IDs:       timer.NewPool(64),
		Presenter: notify.NewPresenter(nil, nil, nil),
		Metrics:   reg,
		Now:       now,
		Location:  time.UTC,
	})
	timers.SetHandler(engine.HandleFire)

	module := NewModule(engine, ModuleOptions{Now: now, Location: time.UTC, SnoozeDefault: 1})
	importer := &calendar.Importer{Location: time.UTC, DefaultSnooze: 1}

	return &testServer{
		srv:    NewServer(module, importer, reg.Gatherer),
		module: module,
		timers: timers,
	}
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestServer_CreateFillsDefaults(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/alarms", `{"uid":"a","hour":7,"minutes":0,"days":[2],"repeating":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got := decode[AlarmRecord](t, rec)
	assert.Equal(t, "a", got.UID)
	assert.Equal(t, "Alarm", got.Title)
	assert.Equal(t, "Wake up", got.Description)
	assert.Equal(t, 1, got.SnoozeInterval)
	assert.Equal(t, []int{2}, got.Days)
	assert.True(t, got.Active)
	assert.Equal(t, 1, ts.timers.Len())

	rec = ts.do(t, http.MethodGet, "/api/v1/alarms/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, got, decode[AlarmRecord](t, rec))
}

func TestServer_ErrorStatuses(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/alarms/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "missing")

	rec = ts.do(t, http.MethodPut, "/api/v1/alarms/a", `{"hour":24,"days":[1]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/alarms", `{"days":[9]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/alarms", `{"days":[],"active":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/stop", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/alarms/missing/enable", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/alarms/missing", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServer_RingAndStop(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/alarms", `{"uid":"a","hour":7,"minutes":0,"days":[2],"repeating":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	state := decode[State](t, ts.do(t, http.MethodGet, "/api/v1/state", ""))
	assert.Nil(t, state.Ringing)
	require.Len(t, state.Upcoming, 1)
	assert.True(t, time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC).Equal(state.Upcoming[0].Next))

	rec = ts.do(t, http.MethodPost, "/api/v1/alarms/a/ring", "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	state = decode[State](t, ts.do(t, http.MethodGet, "/api/v1/state", ""))
	require.NotNil(t, state.Ringing)
	assert.Equal(t, "a", *state.Ringing)

	rec = ts.do(t, http.MethodPost, "/api/v1/stop?uid=other", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/stop?uid=a", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	state = decode[State](t, ts.do(t, http.MethodGet, "/api/v1/state", ""))
	assert.Nil(t, state.Ringing)
	require.Len(t, state.Upcoming, 1)
	assert.True(t, time.Date(2026, 10, 26, 7, 0, 0, 0, time.UTC).Equal(state.Upcoming[0].Next))
}

func TestServer_EnableDisable(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/alarms", `{"uid":"a","hour":7,"days":[2],"repeating":true}`)

	rec := ts.do(t, http.MethodPost, "/api/v1/alarms/a/disable", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, ts.timers.Len())
	assert.False(t, decode[AlarmRecord](t, ts.do(t, http.MethodGet, "/api/v1/alarms/a", "")).Active)

	rec = ts.do(t, http.MethodPost, "/api/v1/alarms/a/enable", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, ts.timers.Len())
}

func TestServer_ListAndRemoveAll(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/alarms", `{"uid":"b","hour":9,"days":[2]}`)
	ts.do(t, http.MethodPost, "/api/v1/alarms", `{"uid":"a","hour":6,"days":[3]}`)

	list := decode[[]AlarmRecord](t, ts.do(t, http.MethodGet, "/api/v1/alarms", ""))
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].UID)
	assert.Equal(t, "b", list[1].UID)

	rec := ts.do(t, http.MethodDelete, "/api/v1/alarms", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	list = decode[[]AlarmRecord](t, ts.do(t, http.MethodGet, "/api/v1/alarms", ""))
	assert.Empty(t, list)
	assert.Equal(t, 0, ts.timers.Len())
}

func TestServer_CalendarRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/alarms", `{"uid":"a","title":"Gym","hour":6,"minutes":30,"snoozeInterval":7,"days":[2,4],"repeating":true}`)

	rec := ts.do(t, http.MethodGet, "/api/v1/calendar.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ics := rec.Body.String()
	assert.Contains(t, ics, "BEGIN:VCALENDAR")
	assert.Contains(t, ics, "UID:a")

	require.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/v1/alarms", "").Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/calendar", strings.NewReader(ics))
	req.Header.Set(echo.HeaderContentType, "text/calendar")
	rec = httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, result["imported"])

	got := decode[AlarmRecord](t, ts.do(t, http.MethodGet, "/api/v1/alarms/a", ""))
	assert.Equal(t, "Gym", got.Title)
	assert.Equal(t, 6, got.Hour)
	assert.Equal(t, 30, got.Minutes)
	assert.Equal(t, 7, got.SnoozeInterval)
	assert.Equal(t, []int{2, 4}, got.Days)
	assert.True(t, got.Repeating)
}

func TestServer_ImportRejectsGarbage(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/calendar", strings.NewReader("<html>login</html>"))
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/alarms", `{"uid":"a","hour":7,"days":[2]}`)

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alarm_clock_pending_timers 1")
}
