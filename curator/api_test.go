package curator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t testing.TB) (*API, *Curator, *mockDiscordSession) {
	t.Helper()
	cfg := DefaultTestConfig(t)
	cfg.Digest.Handles = nil
	c, session, _ := newTestCurator(t, cfg)
	c.startedAt = time.Now().Add(-time.Minute)
	return newAPI(c, cfg.API), c, session
}

func TestHealthCheck(t *testing.T) {
	api, c, _ := newTestAPI(t)
	c.discord.connected.Store(true)
	c.lastDigestRun.Store(time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, apiPathHealth, nil)
	api.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["discord_connected"])
	assert.Equal(t, false, body["digest_running"])
	assert.Equal(t, "2026-08-30T08:00:00Z", body["last_digest_run"])
	assert.NotEmpty(t, body["uptime"])
}

func TestHealthCheckNoRunYet(t *testing.T) {
	api, _, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, apiPathHealth, nil)
	api.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "", body["last_digest_run"])
}

func TestTriggerDigest(t *testing.T) {
	api, _, session := newTestAPI(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, apiPathDigest, nil)
	api.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	// the run happens in the background
	require.Eventually(
		t,
		func() bool {
			return len(session.sentTo("kol-channel")) > 0
		},
		time.Second,
		5*time.Millisecond,
	)
}

func TestTriggerDigestConflict(t *testing.T) {
	api, c, _ := newTestAPI(t)
	c.digestRunning.Store(true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, apiPathDigest, nil)
	api.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "digest already running", body["error"])
}
