package lesson

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-lessons/internal/db"
)

var (
	learner  = Actor{UserID: 100, Role: RoleLearner}
	learner2 = Actor{UserID: 101, Role: RoleLearner}
	manager  = Actor{UserID: 1, Role: RoleManager}
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu      sync.Mutex
	updates []GradeUpdate
}

func (p *recordingPublisher) PublishGrade(_ context.Context, u GradeUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
	return nil
}

func (p *recordingPublisher) all() []GradeUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]GradeUpdate(nil), p.updates...)
}

type recordingSink struct {
	mu    sync.Mutex
	types []string
}

func (s *recordingSink) Record(_ context.Context, typ, _ string, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = append(s.types, typ)
	return nil
}

func (s *recordingSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.types...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openSQLite returns a private in-memory sqlite database with the schema applied.
func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqlDB, err := db.Open(context.Background(), db.DriverSQLite, "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewSQLStore(sqlDB, string(db.DriverSQLite))
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  Store
	eng    *Engine
	clock  *testClock
	pub    *recordingPublisher
	events *recordingSink
	lesson Lesson
}

func newFixture(t *testing.T, l Lesson, opts ...EngineOption) *fixture {
	return newFixtureOn(t, NewInMemoryStore(), l, opts...)
}

func newFixtureOn(t *testing.T, st Store, l Lesson, opts ...EngineOption) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  st,
		clock:  newTestClock(),
		pub:    &recordingPublisher{},
		events: &recordingSink{},
	}
	base := []EngineOption{
		WithClock(f.clock.Now),
		WithRand(func(int) int { return 0 }),
		WithPublisher(f.pub),
		WithEvents(f.events),
		WithLogger(discardLogger()),
	}
	f.eng = NewEngine(st, append(base, opts...)...)
	if l.Name == "" {
		l.Name = "Photosynthesis"
	}
	created, err := f.eng.CreateLesson(f.ctx, LessonInput{Lesson: l})
	require.NoError(t, err)
	f.lesson = created
	return f
}

// add appends a page at the end of the lesson.
func (f *fixture) add(typ PageType, title string, answers ...Answer) PageWithAnswers {
	f.t.Helper()
	pages, err := f.eng.LoadAllPages(f.ctx, f.lesson.ID)
	require.NoError(f.t, err)
	var after int64
	if len(pages) > 0 {
		after = pages[len(pages)-1].ID
	}
	p, err := f.eng.CreatePage(f.ctx, f.lesson.ID, after, Page{Type: typ, Title: title}, answers)
	require.NoError(f.t, err)
	return p
}

// trueFalse adds a true/false page whose right answer moves on and whose
// wrong answer stays.
func (f *fixture) trueFalse(title string) PageWithAnswers {
	return f.add(TypeTrueFalse, title,
		Answer{AnswerText: "True", JumpTo: JumpNextPage},
		Answer{AnswerText: "False", JumpTo: JumpThisPage},
	)
}

func (f *fixture) order() []int64 {
	f.t.Helper()
	pages, err := f.eng.LoadAllPages(f.ctx, f.lesson.ID)
	require.NoError(f.t, err)
	ids := make([]int64, 0, len(pages))
	for _, p := range pages {
		ids = append(ids, p.ID)
	}
	return ids
}

func (f *fixture) view(a Actor, pageID int64) ViewResult {
	f.t.Helper()
	v, err := f.eng.View(f.ctx, ViewRequest{LessonID: f.lesson.ID, PageID: pageID, Actor: a})
	require.NoError(f.t, err)
	return v
}

func (f *fixture) submit(a Actor, pageID int64, sub Submission) StepResult {
	f.t.Helper()
	r, err := f.eng.Submit(f.ctx, AnswerRequest{LessonID: f.lesson.ID, PageID: pageID, Actor: a, Submission: sub})
	require.NoError(f.t, err)
	return r
}

func (f *fixture) attempts(userID int64) []Attempt {
	f.t.Helper()
	out, err := f.store.ListAttempts(f.ctx, RecordFilter{LessonID: f.lesson.ID, UserID: userID})
	require.NoError(f.t, err)
	return out
}

func (f *fixture) grades(userID int64) []Grade {
	f.t.Helper()
	out, err := f.store.ListGrades(f.ctx, f.lesson.ID, userID)
	require.NoError(f.t, err)
	return out
}

func choose(ids ...int64) Submission { return Submission{AnswerIDs: ids} }

func text(s string) Submission { return Submission{Text: s} }

// linked wires prev/next in slice order.
func linked(pages ...Page) []Page {
	for i := range pages {
		pages[i].PrevPageID, pages[i].NextPageID = 0, 0
		if i > 0 {
			pages[i].PrevPageID = pages[i-1].ID
		}
		if i < len(pages)-1 {
			pages[i].NextPageID = pages[i+1].ID
		}
	}
	return pages
}
