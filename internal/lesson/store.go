package lesson

import "context"

// RecordFilter selects learner records. Zero fields do not filter, except
// Retry which filters only when set.
type RecordFilter struct {
	LessonID int64
	UserID   int64
	PageID   int64
	Retry    *int
}

// ForRetry returns a filter for one user's records in one retry.
func ForRetry(lessonID, userID int64, retry int) RecordFilter {
	return RecordFilter{LessonID: lessonID, UserID: userID, Retry: &retry}
}

// Store persists lessons, pages and learner records.
//
// List methods return attempts and branches ordered by time seen then id,
// grades by completion then id, and timers by start then id. Implementations
// must run fn in WithTx atomically; a Store passed to fn is only valid inside.
type Store interface {
	CreateLesson(ctx context.Context, l Lesson) (Lesson, error)
	GetLesson(ctx context.Context, id int64) (Lesson, error)
	UpdateLesson(ctx context.Context, l Lesson) error

	ListPages(ctx context.Context, lessonID int64) ([]Page, error)
	GetPage(ctx context.Context, id int64) (Page, error)
	CreatePage(ctx context.Context, p Page) (Page, error)
	UpdatePage(ctx context.Context, p Page) error
	DeletePage(ctx context.Context, id int64) error

	ListAnswers(ctx context.Context, lessonID int64) ([]Answer, error)
	ListPageAnswers(ctx context.Context, pageID int64) ([]Answer, error)
	CreateAnswer(ctx context.Context, a Answer) (Answer, error)
	UpdateAnswer(ctx context.Context, a Answer) error
	DeleteAnswer(ctx context.Context, id int64) error

	InsertAttempt(ctx context.Context, a Attempt) (Attempt, error)
	GetAttempt(ctx context.Context, id int64) (Attempt, error)
	UpdateAttempt(ctx context.Context, a Attempt) error
	ListAttempts(ctx context.Context, f RecordFilter) ([]Attempt, error)

	InsertBranch(ctx context.Context, b Branch) (Branch, error)
	ListBranches(ctx context.Context, f RecordFilter) ([]Branch, error)

	InsertGrade(ctx context.Context, g Grade) (Grade, error)
	UpdateGrade(ctx context.Context, g Grade) error
	DeleteGrade(ctx context.Context, id int64) error
	ListGrades(ctx context.Context, lessonID, userID int64) ([]Grade, error)
	ListGradedUsers(ctx context.Context, lessonID int64) ([]int64, error)

	InsertTimer(ctx context.Context, t Timer) (Timer, error)
	UpdateTimer(ctx context.Context, t Timer) error
	DeleteTimer(ctx context.Context, id int64) error
	ListTimers(ctx context.Context, lessonID, userID int64) ([]Timer, error)

	// DeleteRecords removes attempts and branches matching f.
	DeleteRecords(ctx context.Context, f RecordFilter) error
	// ShiftRetries decrements the retry of the user's attempts, branches and
	// timers whose retry is greater than after.
	ShiftRetries(ctx context.Context, lessonID, userID int64, after int) error
	// ResetLesson removes every learner record of a lesson.
	ResetLesson(ctx context.Context, lessonID int64) error

	GetOverride(ctx context.Context, lessonID, userID int64) (Override, bool, error)
	PutOverride(ctx context.Context, o Override) error

	WithTx(ctx context.Context, fn func(Store) error) error
}
