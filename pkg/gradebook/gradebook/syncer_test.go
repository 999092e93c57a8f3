package gradebook_test

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	gradebook "github.com/mind-engage/mindengage-lessons/pkg/gradebook/gradebook"
)

/* ---------------- In-memory fakes that satisfy gradebook.Store & gradebook.AGSClient ---------------- */

type syncState struct {
	status, lastErr string
	retries         int
}

type fakeStore struct {
	lineitems   map[string]gradebook.GradebookLineItem // key: site|lesson
	lineitemSeq int64
	userMap     map[int64]string
	syncStatus  map[string]syncState
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		lineitems:  map[string]gradebook.GradebookLineItem{},
		userMap:    map[int64]string{},
		syncStatus: map[string]syncState{},
	}
}

func key(site string, lessonID int64) string { return site + "|" + strconv.FormatInt(lessonID, 10) }

func (s *fakeStore) UpsertLineItem(_ context.Context, li gradebook.GradebookLineItem) (gradebook.GradebookLineItem, error) {
	k := key(li.SiteID, li.LessonID)
	if existing, ok := s.lineitems[k]; ok {
		existing.Label = li.Label
		existing.ScoreMax = li.ScoreMax
		existing.LineItemURL = li.LineItemURL
		s.lineitems[k] = existing
		return existing, nil
	}
	s.lineitemSeq++
	li.ID = s.lineitemSeq
	s.lineitems[k] = li
	return li, nil
}

func (s *fakeStore) FindLineItem(_ context.Context, siteID string, lessonID int64) (gradebook.GradebookLineItem, error) {
	li, ok := s.lineitems[key(siteID, lessonID)]
	if !ok {
		return gradebook.GradebookLineItem{}, gradebook.ErrNotFound
	}
	return li, nil
}

func (s *fakeStore) GetPlatformUserID(_ context.Context, localUserID int64) (string, error) {
	sub, ok := s.userMap[localUserID]
	if !ok {
		return "", gradebook.ErrNotFound
	}
	return sub, nil
}

func (s *fakeStore) MarkSyncPending(_ context.Context, k string) error {
	state := s.syncStatus[k]
	state.status = "pending"
	s.syncStatus[k] = state
	return nil
}
func (s *fakeStore) MarkSyncOK(_ context.Context, k string) error {
	state := s.syncStatus[k]
	state.status, state.lastErr = "ok", ""
	s.syncStatus[k] = state
	return nil
}
func (s *fakeStore) MarkSyncFailed(_ context.Context, k, lastErr string) error {
	state := s.syncStatus[k]
	state.status, state.lastErr, state.retries = "failed", lastErr, state.retries+1
	s.syncStatus[k] = state
	return nil
}

type fakeAGS struct {
	listed      []gradebook.LineItem
	listCalls   int
	createCalls int
	createdReq  *gradebook.CreateLineItemReq
	posted      []gradebook.Score
	postURL     string
	postErr     error
}

func (f *fakeAGS) ListLineItems(_ context.Context, _ string, _ map[string]string) ([]gradebook.LineItem, error) {
	f.listCalls++
	return f.listed, nil
}
func (f *fakeAGS) CreateLineItem(_ context.Context, _ string, req gradebook.CreateLineItemReq) (gradebook.LineItem, error) {
	f.createCalls++
	f.createdReq = &req
	return gradebook.LineItem{
		ID:           "https://lms.example/lineitems/123",
		Label:        req.Label,
		ScoreMaximum: req.ScoreMaximum,
		ResourceID:   req.ResourceID,
	}, nil
}
func (f *fakeAGS) PostScore(_ context.Context, lineItemURL string, s gradebook.Score) error {
	f.postURL = lineItemURL
	f.posted = append(f.posted, s)
	return f.postErr
}

/* ------------------------------------------ Tests ------------------------------------------ */

func seedBasic(t *testing.T) (*fakeStore, *fakeAGS, *gradebook.Syncer, gradebook.Result) {
	t.Helper()
	st := newFakeStore()
	ags := &fakeAGS{}
	st.userMap[7] = "platform-sub-123"

	s := gradebook.New(st, ags, "https://lms.example/lineitems", "", time.Now)
	res := gradebook.Result{
		Activity:   gradebook.Activity{LessonID: 12, Title: "Photosynthesis", MaxScore: 20},
		UserID:     7,
		ScoreGiven: 16,
		Timestamp:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	return st, ags, s, res
}

func TestSyncer_CreatesAndPosts(t *testing.T) {
	st, ags, syncer, res := seedBasic(t)
	ctx := context.Background()

	if err := syncer.SyncResult(ctx, res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ags.createdReq == nil || ags.createdReq.ResourceID != "lesson-12" {
		t.Fatalf("expected CreateLineItem for lesson-12, got %+v", ags.createdReq)
	}
	if len(ags.posted) != 1 {
		t.Fatalf("expected 1 PostScore call, got %d", len(ags.posted))
	}
	got := ags.posted[0]
	if got.UserID != "platform-sub-123" || got.ScoreGiven != 16 || got.ScoreMaximum != 20 {
		t.Fatalf("unexpected score: %+v", got)
	}
	if _, ok := st.lineitems[key("local", 12)]; !ok {
		t.Fatalf("expected line item persisted in store")
	}
	if k := gradebook.SyncKey(12, 7); st.syncStatus[k].status != "ok" {
		t.Fatalf("expected sync status ok; got %q", st.syncStatus[k].status)
	}

	// Second sync reuses the cached line item without touching the collection.
	if err := syncer.SyncResult(ctx, res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ags.listCalls != 1 || ags.createCalls != 1 {
		t.Fatalf("expected cached line item, got %d lists and %d creates", ags.listCalls, ags.createCalls)
	}
}

func TestSyncer_UsesExistingLineItem(t *testing.T) {
	st, ags, syncer, res := seedBasic(t)

	ags.listed = []gradebook.LineItem{{
		ID:           "https://lms.example/lineitems/exist",
		Label:        "Photosynthesis",
		ScoreMaximum: 20,
		ResourceID:   "lesson-12",
	}}

	if err := syncer.SyncResult(context.Background(), res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ags.createCalls != 0 {
		t.Fatalf("did not expect CreateLineItem to be called")
	}
	if ags.postURL != "https://lms.example/lineitems/exist" {
		t.Fatalf("posted to %q", ags.postURL)
	}
	if st.lineitems[key("local", 12)].LineItemURL != ags.postURL {
		t.Fatalf("expected listed line item cached")
	}
}

func TestSyncer_FallsBackToLocalUserID(t *testing.T) {
	st, ags, syncer, res := seedBasic(t)
	delete(st.userMap, 7)

	if err := syncer.SyncResult(context.Background(), res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ags.posted[0].UserID != "7" {
		t.Fatalf("expected local id, got %q", ags.posted[0].UserID)
	}
}

func TestSyncer_RecordsPostFailure(t *testing.T) {
	st, ags, syncer, res := seedBasic(t)
	ags.postErr = fmt.Errorf("post score: 502 Bad Gateway")

	if err := syncer.SyncResult(context.Background(), res); err == nil {
		t.Fatalf("expected error")
	}
	state := st.syncStatus[gradebook.SyncKey(12, 7)]
	if state.status != "failed" || state.retries != 1 || state.lastErr == "" {
		t.Fatalf("unexpected sync state: %+v", state)
	}
}

func TestSyncer_RequiresLineItemsURL(t *testing.T) {
	st, ags, _, res := seedBasic(t)
	syncer := gradebook.New(st, ags, "", "site-a", nil)

	if err := syncer.SyncResult(context.Background(), res); err == nil {
		t.Fatalf("expected error without lineitems url")
	}
	if len(ags.posted) != 0 {
		t.Fatalf("expected 0 PostScore calls, got %d", len(ags.posted))
	}
}
