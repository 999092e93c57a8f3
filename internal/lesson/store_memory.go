package lesson

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

type overrideKey struct{ lessonID, userID int64 }

type memoryState struct {
	seq       int64
	lessons   map[int64]Lesson
	pages     map[int64]Page
	answers   map[int64]Answer
	attempts  map[int64]Attempt
	branches  map[int64]Branch
	grades    map[int64]Grade
	timers    map[int64]Timer
	overrides map[overrideKey]Override
}

func (s *memoryState) clone() memoryState {
	return memoryState{
		seq:       s.seq,
		lessons:   maps.Clone(s.lessons),
		pages:     maps.Clone(s.pages),
		answers:   maps.Clone(s.answers),
		attempts:  maps.Clone(s.attempts),
		branches:  maps.Clone(s.branches),
		grades:    maps.Clone(s.grades),
		timers:    maps.Clone(s.timers),
		overrides: maps.Clone(s.overrides),
	}
}

type memoryStore struct {
	txMu sync.Mutex // serializes transactions
	mu   sync.RWMutex
	st   memoryState
}

// NewInMemoryStore returns a Store kept in process memory.
func NewInMemoryStore() Store {
	return &memoryStore{st: memoryState{
		lessons:   map[int64]Lesson{},
		pages:     map[int64]Page{},
		answers:   map[int64]Answer{},
		attempts:  map[int64]Attempt{},
		branches:  map[int64]Branch{},
		grades:    map[int64]Grade{},
		timers:    map[int64]Timer{},
		overrides: map[overrideKey]Override{},
	}}
}

func (m *memoryStore) nextID() int64 {
	m.st.seq++
	return m.st.seq
}

// WithTx runs fn against the store and restores the previous state when fn fails.
func (m *memoryStore) WithTx(ctx context.Context, fn func(Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	snapshot := m.st.clone()
	m.mu.RUnlock()

	if err := fn(memoryTx{m}); err != nil {
		m.mu.Lock()
		m.st = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// memoryTx is the view handed to a transaction; nested WithTx calls join it.
type memoryTx struct{ *memoryStore }

func (t memoryTx) WithTx(_ context.Context, fn func(Store) error) error { return fn(t) }

// --- lessons ---

func (m *memoryStore) CreateLesson(_ context.Context, l Lesson) (Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = m.nextID()
	m.st.lessons[l.ID] = l
	return l, nil
}

func (m *memoryStore) GetLesson(_ context.Context, id int64) (Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.st.lessons[id]
	if !ok {
		return Lesson{}, errors.Wrapf(ErrLessonNotFound, "lesson %d", id)
	}
	return l, nil
}

func (m *memoryStore) UpdateLesson(_ context.Context, l Lesson) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.lessons[l.ID]; !ok {
		return errors.Wrapf(ErrLessonNotFound, "lesson %d", l.ID)
	}
	m.st.lessons[l.ID] = l
	return nil
}

// --- pages ---

func (m *memoryStore) ListPages(_ context.Context, lessonID int64) ([]Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Page{}
	for _, p := range m.st.pages {
		if p.LessonID == lessonID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) GetPage(_ context.Context, id int64) (Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.st.pages[id]
	if !ok {
		return Page{}, pageNotFound(id)
	}
	return p, nil
}

func (m *memoryStore) CreatePage(_ context.Context, p Page) (Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.nextID()
	m.st.pages[p.ID] = p
	return p, nil
}

func (m *memoryStore) UpdatePage(_ context.Context, p Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.pages[p.ID]; !ok {
		return pageNotFound(p.ID)
	}
	m.st.pages[p.ID] = p
	return nil
}

func (m *memoryStore) DeletePage(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.pages[id]; !ok {
		return pageNotFound(id)
	}
	delete(m.st.pages, id)
	return nil
}

// --- answers ---

func (m *memoryStore) ListAnswers(_ context.Context, lessonID int64) ([]Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterAnswers(func(a Answer) bool { return a.LessonID == lessonID }), nil
}

func (m *memoryStore) ListPageAnswers(_ context.Context, pageID int64) ([]Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterAnswers(func(a Answer) bool { return a.PageID == pageID }), nil
}

func (m *memoryStore) filterAnswers(keep func(Answer) bool) []Answer {
	out := []Answer{}
	for _, a := range m.st.answers {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memoryStore) CreateAnswer(_ context.Context, a Answer) (Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.nextID()
	m.st.answers[a.ID] = a
	return a, nil
}

func (m *memoryStore) UpdateAnswer(_ context.Context, a Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.answers[a.ID]; !ok {
		return errors.Wrapf(ErrAnswerNotFound, "answer %d", a.ID)
	}
	m.st.answers[a.ID] = a
	return nil
}

func (m *memoryStore) DeleteAnswer(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.st.answers, id)
	return nil
}

// --- attempts & branches ---

func (f RecordFilter) match(lessonID, userID, pageID int64, retry int) bool {
	if f.LessonID != 0 && f.LessonID != lessonID {
		return false
	}
	if f.UserID != 0 && f.UserID != userID {
		return false
	}
	if f.PageID != 0 && f.PageID != pageID {
		return false
	}
	if f.Retry != nil && *f.Retry != retry {
		return false
	}
	return true
}

func (m *memoryStore) InsertAttempt(_ context.Context, a Attempt) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.nextID()
	m.st.attempts[a.ID] = a
	return a, nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id int64) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.st.attempts[id]
	if !ok {
		return Attempt{}, errors.Wrapf(ErrAttemptNotFound, "attempt %d", id)
	}
	return a, nil
}

func (m *memoryStore) UpdateAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.attempts[a.ID]; !ok {
		return errors.Wrapf(ErrAttemptNotFound, "attempt %d", a.ID)
	}
	m.st.attempts[a.ID] = a
	return nil
}

func (m *memoryStore) ListAttempts(_ context.Context, f RecordFilter) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, a := range m.st.attempts {
		if f.match(a.LessonID, a.UserID, a.PageID, a.Retry) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TimeSeen.Equal(out[j].TimeSeen) {
			return out[i].TimeSeen.Before(out[j].TimeSeen)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryStore) InsertBranch(_ context.Context, b Branch) (Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = m.nextID()
	m.st.branches[b.ID] = b
	return b, nil
}

func (m *memoryStore) ListBranches(_ context.Context, f RecordFilter) ([]Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Branch{}
	for _, b := range m.st.branches {
		if f.match(b.LessonID, b.UserID, b.PageID, b.Retry) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TimeSeen.Equal(out[j].TimeSeen) {
			return out[i].TimeSeen.Before(out[j].TimeSeen)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryStore) DeleteRecords(_ context.Context, f RecordFilter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.st.attempts {
		if f.match(a.LessonID, a.UserID, a.PageID, a.Retry) {
			delete(m.st.attempts, id)
		}
	}
	for id, b := range m.st.branches {
		if f.match(b.LessonID, b.UserID, b.PageID, b.Retry) {
			delete(m.st.branches, id)
		}
	}
	return nil
}

func (m *memoryStore) ShiftRetries(_ context.Context, lessonID, userID int64, after int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.st.attempts {
		if a.LessonID == lessonID && a.UserID == userID && a.Retry > after {
			a.Retry--
			m.st.attempts[id] = a
		}
	}
	for id, b := range m.st.branches {
		if b.LessonID == lessonID && b.UserID == userID && b.Retry > after {
			b.Retry--
			m.st.branches[id] = b
		}
	}
	for id, t := range m.st.timers {
		if t.LessonID == lessonID && t.UserID == userID && t.Retry > after {
			t.Retry--
			m.st.timers[id] = t
		}
	}
	return nil
}

func (m *memoryStore) ResetLesson(_ context.Context, lessonID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.st.attempts {
		if a.LessonID == lessonID {
			delete(m.st.attempts, id)
		}
	}
	for id, b := range m.st.branches {
		if b.LessonID == lessonID {
			delete(m.st.branches, id)
		}
	}
	for id, g := range m.st.grades {
		if g.LessonID == lessonID {
			delete(m.st.grades, id)
		}
	}
	for id, t := range m.st.timers {
		if t.LessonID == lessonID {
			delete(m.st.timers, id)
		}
	}
	return nil
}

// --- grades ---

func (m *memoryStore) InsertGrade(_ context.Context, g Grade) (Grade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.ID = m.nextID()
	m.st.grades[g.ID] = g
	return g, nil
}

func (m *memoryStore) UpdateGrade(_ context.Context, g Grade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.grades[g.ID]; !ok {
		return errors.Errorf("grade %d not found", g.ID)
	}
	m.st.grades[g.ID] = g
	return nil
}

func (m *memoryStore) DeleteGrade(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.st.grades, id)
	return nil
}

func (m *memoryStore) ListGrades(_ context.Context, lessonID, userID int64) ([]Grade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Grade{}
	for _, g := range m.st.grades {
		if g.LessonID == lessonID && g.UserID == userID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Completed.Equal(out[j].Completed) {
			return out[i].Completed.Before(out[j].Completed)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryStore) ListGradedUsers(_ context.Context, lessonID int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[int64]struct{}{}
	out := []int64{}
	for _, g := range m.st.grades {
		if g.LessonID != lessonID {
			continue
		}
		if _, ok := seen[g.UserID]; ok {
			continue
		}
		seen[g.UserID] = struct{}{}
		out = append(out, g.UserID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// --- timers ---

func (m *memoryStore) InsertTimer(_ context.Context, t Timer) (Timer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextID()
	m.st.timers[t.ID] = t
	return t, nil
}

func (m *memoryStore) UpdateTimer(_ context.Context, t Timer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.timers[t.ID]; !ok {
		return errors.Errorf("timer %d not found", t.ID)
	}
	m.st.timers[t.ID] = t
	return nil
}

func (m *memoryStore) DeleteTimer(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.st.timers, id)
	return nil
}

func (m *memoryStore) ListTimers(_ context.Context, lessonID, userID int64) ([]Timer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Timer{}
	for _, t := range m.st.timers {
		if t.LessonID == lessonID && t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// --- overrides ---

func (m *memoryStore) GetOverride(_ context.Context, lessonID, userID int64) (Override, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.st.overrides[overrideKey{lessonID, userID}]
	return o, ok, nil
}

func (m *memoryStore) PutOverride(_ context.Context, o Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.overrides[overrideKey{o.LessonID, o.UserID}] = o
	return nil
}
