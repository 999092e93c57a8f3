package sqlstore_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-lessons/internal/db"
	"github.com/mind-engage/mindengage-lessons/pkg/gradebook/agshttp"
	gb "github.com/mind-engage/mindengage-lessons/pkg/gradebook/gradebook"
	"github.com/mind-engage/mindengage-lessons/pkg/gradebook/sqlstore"
)

func Test_EndToEnd_SQLite_WithHTTPAGS(t *testing.T) {
	ctx := context.Background()

	// 1) DB with gradebook migrations applied
	sqlDB, err := db.Open(ctx, db.DriverSQLite, "file:gradebook_e2e?mode=memory&cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	defer sqlDB.Close()
	if err := gb.Migrate(ctx, sqlDB, "sqlite"); err != nil {
		t.Fatal(err)
	}
	st := &sqlstore.Store{DB: sqlDB}
	if err := st.MapUser(ctx, 7, "platform-sub-123"); err != nil {
		t.Fatal(err)
	}

	// 2) Fake AGS server (token + lineitems + scores)
	created := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/lti/lineitems", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.ims.lis.v2.lineitem+json")
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode([]any{})
		case http.MethodPost:
			created++
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":           "http://" + r.Host + "/lti/lineitems/123",
				"label":        "Photosynthesis",
				"scoreMaximum": 20,
				"resourceId":   "lesson-12",
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	fail := true
	mux.HandleFunc("/lti/lineitems/123/scores", func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["userId"] != "platform-sub-123" {
			t.Errorf("unexpected userId %v", body["userId"])
		}
		w.WriteHeader(http.StatusOK)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	// 3) AGS client using the fake token endpoint
	ags := agshttp.New(agshttp.Config{
		TokenURL:     ts.URL + "/oauth/token",
		ClientID:     "x",
		ClientSecret: "y",
		Timeout:      5 * time.Second,
	})

	// 4) Syncer: first post fails, retry succeeds and reuses the line item
	syncer := gb.New(st, ags, ts.URL+"/lti/lineitems", "site-a", time.Now)
	res := gb.Result{Activity: gb.Activity{LessonID: 12, Title: "Photosynthesis", MaxScore: 20}, UserID: 7, ScoreGiven: 15}
	if err := syncer.SyncResult(ctx, res); err == nil {
		t.Fatalf("expected the first post to fail")
	}
	status, err := st.GetSyncStatus(ctx, gb.SyncKey(12, 7))
	if err != nil || status.Status != "failed" || status.Retries != 1 || status.LastError == "" {
		t.Fatalf("unexpected status %+v (%v)", status, err)
	}

	fail = false
	if err := syncer.SyncResult(ctx, res); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	status, err = st.GetSyncStatus(ctx, gb.SyncKey(12, 7))
	if err != nil || status.Status != "ok" || status.LastError != "" {
		t.Fatalf("unexpected status %+v (%v)", status, err)
	}
	if created != 1 {
		t.Fatalf("expected one line item, created %d", created)
	}
	li, err := st.FindLineItem(ctx, "site-a", 12)
	if err != nil || li.LineItemURL != ts.URL+"/lti/lineitems/123" {
		t.Fatalf("unexpected line item %+v (%v)", li, err)
	}
	if _, err := st.FindLineItem(ctx, "site-b", 12); err != gb.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
