package agshttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-lessons/pkg/gradebook/gradebook"
)

// fakePlatform serves a token endpoint, a line-item container and scores.
func fakePlatform(t *testing.T) (*httptest.Server, chan map[string]any, *int32) {
	t.Helper()
	scores := make(chan map[string]any, 4)
	var tokens int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		atomic.AddInt32(&tokens, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/lineitems", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "lesson-3", r.URL.Query().Get("resource_id"))
			_ = json.NewEncoder(w).Encode([]any{})
		case http.MethodPost:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			body["id"] = "http://" + r.Host + "/lineitems/9"
			_ = json.NewEncoder(w).Encode(body)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/lineitems/9/scores", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, mediaScore, r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		scores <- body
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/broken/scores", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, scores, &tokens
}

func TestClientRoundTrip(t *testing.T) {
	ts, scores, tokens := fakePlatform(t)
	ctx := context.Background()
	c := New(Config{TokenURL: ts.URL + "/oauth/token", ClientID: "x", ClientSecret: "y", Timeout: 5 * time.Second})

	items, err := c.ListLineItems(ctx, ts.URL+"/lineitems", map[string]string{"resource_id": "lesson-3"})
	require.NoError(t, err)
	assert.Empty(t, items)

	li, err := c.CreateLineItem(ctx, ts.URL+"/lineitems", gradebook.CreateLineItemReq{Label: "Cells", ScoreMaximum: 10, ResourceID: "lesson-3"})
	require.NoError(t, err)
	assert.Equal(t, ts.URL+"/lineitems/9", li.ID)
	assert.Equal(t, "Cells", li.Label)
	assert.Equal(t, 10.0, li.ScoreMaximum)

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, c.PostScore(ctx, li.ID+"/", gradebook.Score{
		UserID: "sub-1", ScoreGiven: 7.5, ScoreMaximum: 10,
		ActivityProgress: "Completed", GradingProgress: "FullyGraded", Timestamp: at,
	}))
	require.Len(t, scores, 1)
	got := <-scores
	assert.Equal(t, "sub-1", got["userId"])
	assert.Equal(t, 7.5, got["scoreGiven"])
	assert.Equal(t, "2026-03-02T09:00:00Z", got["timestamp"])
	assert.Equal(t, int32(1), atomic.LoadInt32(tokens), "token is cached")

	err = c.PostScore(ctx, ts.URL+"/broken", gradebook.Score{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
