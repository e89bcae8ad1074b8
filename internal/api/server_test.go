package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scarecrow/internal/auth"
	"scarecrow/internal/database"
	"scarecrow/internal/detector"
	"scarecrow/internal/video"
)

type stubSource struct {
	frames chan *video.Frame
	once   sync.Once
}

func newStubSource() *stubSource {
	return &stubSource{frames: make(chan *video.Frame)}
}

func (s *stubSource) Frames() <-chan *video.Frame { return s.frames }
func (s *stubSource) Err() error                  { return nil }
func (s *stubSource) Close() error {
	s.once.Do(func() { close(s.frames) })
	return nil
}

type fixture struct {
	srv  *httptest.Server
	ctrl *detector.Controller
	db   *database.Database
}

func newFixture(t *testing.T, authEnabled bool) *fixture {
	t.Helper()

	ctrl, err := detector.New(detector.Config{
		Open: func(url string) (video.Source, error) {
			if url == "http://bad/stream" {
				return nil, &video.ConnectionError{URL: url, Err: errors.New("refused")}
			}
			return newStubSource(), nil
		},
	})
	require.NoError(t, err)

	db, err := database.New(filepath.Join(t.TempDir(), "events.db"), nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	authn := auth.NewAuthenticator(auth.Config{
		Enabled:  authEnabled,
		Username: "admin",
		Password: "secret",
	}, auth.NewJWTManager("test-secret", time.Hour))

	srv := httptest.NewServer(NewServer(ctrl, db, authn, nil, nil).Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		if ctrl.State() != detector.StateIdle {
			ctrl.Stop()
		}
	})

	return &fixture{srv: srv, ctrl: ctrl, db: db}
}

func (f *fixture) request(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, false)
	resp := f.request(t, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyzIdleIsReady(t *testing.T) {
	f := newFixture(t, false)
	resp := f.request(t, "GET", "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyzWarmingUpNotReady(t *testing.T) {
	f := newFixture(t, false)
	resp := f.request(t, "POST", "/api/v1/detector/start", "", map[string]string{"url": "http://cam/stream"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.request(t, "GET", "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStartStopLifecycle(t *testing.T) {
	f := newFixture(t, false)

	resp := f.request(t, "POST", "/api/v1/detector/start", "", map[string]string{"url": "http://cam/stream"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st detector.Status
	decode(t, resp, &st)
	assert.Equal(t, detector.StateMonitoring, st.State)

	// Starting twice conflicts.
	resp = f.request(t, "POST", "/api/v1/detector/start", "", map[string]string{"url": "http://cam/stream"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.request(t, "POST", "/api/v1/detector/stop", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &st)
	assert.Equal(t, detector.StateIdle, st.State)
}

func TestStartMissingURL(t *testing.T) {
	f := newFixture(t, false)
	resp := f.request(t, "POST", "/api/v1/detector/start", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartConnectionFailure(t *testing.T) {
	f := newFixture(t, false)
	resp := f.request(t, "POST", "/api/v1/detector/start", "", map[string]string{"url": "http://bad/stream"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestStopWhileIdleConflicts(t *testing.T) {
	f := newFixture(t, false)
	resp := f.request(t, "POST", "/api/v1/detector/stop", "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t, false)

	resp := f.request(t, "POST", "/api/v1/detector/start", "", map[string]string{"url": "http://cam/stream"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.request(t, "POST", "/api/v1/detector/pause", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st detector.Status
	decode(t, resp, &st)
	assert.Equal(t, detector.StatePaused, st.State)

	resp = f.request(t, "POST", "/api/v1/detector/resume", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &st)
	assert.Equal(t, detector.StateMonitoring, st.State)
}

func TestParamsRoundTrip(t *testing.T) {
	f := newFixture(t, false)

	resp := f.request(t, "PUT", "/api/v1/detector/params", "", detector.Parameters{
		Sensitivity: 50, MinMotionArea: 800, CooldownSeconds: 10,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.request(t, "GET", "/api/v1/detector/params", "", nil)
	var got detector.Parameters
	decode(t, resp, &got)
	assert.Equal(t, 50, got.Sensitivity)
	assert.Equal(t, 800, got.MinMotionArea)
	assert.Equal(t, 10, got.CooldownSeconds)
}

func TestParamsOutOfRange(t *testing.T) {
	f := newFixture(t, false)
	resp := f.request(t, "PUT", "/api/v1/detector/params", "", detector.Parameters{
		Sensitivity: 5, MinMotionArea: 500, CooldownSeconds: 5,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Error string `json:"error"`
	}
	decode(t, resp, &body)
	assert.Contains(t, body.Error, "sensitivity")
}

func TestStatsEndpoints(t *testing.T) {
	f := newFixture(t, false)

	resp := f.request(t, "GET", "/api/v1/detector/stats", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st detector.Stats
	decode(t, resp, &st)
	assert.Equal(t, 0, st.TotalDetections)

	resp = f.request(t, "POST", "/api/v1/detector/stats/reset", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventEndpoints(t *testing.T) {
	f := newFixture(t, false)

	require.NoError(t, f.db.SaveEvent(&database.EventRecord{
		ID:        "evt-1",
		Timestamp: time.Now().UTC(),
		TotalArea: 777,
	}))

	resp := f.request(t, "GET", "/api/v1/events", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []*database.EventRecord
	decode(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "evt-1", list[0].ID)

	resp = f.request(t, "GET", "/api/v1/events/evt-1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.request(t, "GET", "/api/v1/events/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.request(t, "GET", "/api/v1/events?since=garbage", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, true)

	resp := f.request(t, "GET", "/api/v1/detector/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Health stays open.
	resp = f.request(t, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Login and retry.
	resp = f.request(t, "POST", "/api/v1/auth/login", "", map[string]string{
		"username": "admin", "password": "secret",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		Token string `json:"token"`
	}
	decode(t, resp, &login)
	require.NotEmpty(t, login.Token)

	resp = f.request(t, "GET", "/api/v1/detector/status", login.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginBadCredentials(t *testing.T) {
	f := newFixture(t, true)
	resp := f.request(t, "POST", "/api/v1/auth/login", "", map[string]string{
		"username": "admin", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
