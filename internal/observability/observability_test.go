package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestRequestLoggerWritesAccessLine(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json")

	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, ok := FromContext(r.Context())
		require.True(t, ok)
		rc.SetUser(42, "learner")
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/lessons/1/finish", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request", line["msg"])
	assert.Equal(t, "req-1", line[LogFieldRequestID])
	assert.Equal(t, float64(42), line[LogFieldUserID])
	assert.Equal(t, "learner", line[LogFieldRole])
	assert.Equal(t, float64(http.StatusCreated), line[LogFieldStatus])
	assert.Equal(t, "/lessons/1/finish", line["path"])
}

func TestRequestLoggerGeneratesID(t *testing.T) {
	var buf bytes.Buffer
	h := RequestLogger(NewLogger(&buf, "info", "text"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
	assert.Contains(t, buf.String(), "status=200")
	assert.NotContains(t, buf.String(), LogFieldUserID, "anonymous requests carry no user")
}
