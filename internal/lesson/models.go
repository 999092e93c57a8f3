package lesson

import "time"

// PageType tags a page. Values are persisted.
type PageType int

const (
	TypeShortAnswer  PageType = 1
	TypeTrueFalse    PageType = 2
	TypeMultiChoice  PageType = 3
	TypeNumerical    PageType = 8
	TypeEssay        PageType = 10
	TypeBranchTable  PageType = 20
	TypeEndOfBranch  PageType = 21
	TypeCluster      PageType = 30
	TypeEndOfCluster PageType = 31
)

// Jump targets. Positive values are page ids.
const (
	JumpThisPage         int64 = 0
	JumpNextPage         int64 = -1
	JumpEndOfLesson      int64 = -9
	JumpPreviousPage     int64 = -40
	JumpUnseenBranchPage int64 = -50
	JumpRandomPage       int64 = -60
	JumpRandomBranch     int64 = -70
	JumpClusterJump      int64 = -80
)

// NextPageMode selects what NEXT_PAGE means after a question (flash-card mode).
type NextPageMode int

const (
	NextPageNormal     NextPageMode = 0
	NextPageUnseen     NextPageMode = 1
	NextPageUnanswered NextPageMode = 2
)

type Role string

const (
	RoleManager Role = "manager"
	RoleGrader  Role = "grader"
	RoleLearner Role = "learner"
)

// CanManage reports whether the role previews lessons instead of taking them.
func (r Role) CanManage() bool { return r == RoleManager }

type Lesson struct {
	ID              int64         `json:"id"`
	Name            string        `json:"name"`
	Custom          bool          `json:"custom"`
	Retake          bool          `json:"retake"`
	UseMaxGrade     bool          `json:"use_max_grade"`
	MaxAttempts     int           `json:"max_attempts"` // per question page, 0 = unlimited
	MaxGrade        float64       `json:"max_grade"`
	TimeLimit       time.Duration `json:"time_limit"`
	Available       time.Time     `json:"available,omitempty"`
	Deadline        time.Time     `json:"deadline,omitempty"`
	PasswordHash    string        `json:"-"`
	NextPageDefault NextPageMode  `json:"next_page_default"`
	MaxPages        int           `json:"max_pages"`
	Feedback        bool          `json:"feedback"` // show default feedback
}

type Page struct {
	ID         int64    `json:"id"`
	LessonID   int64    `json:"lesson_id"`
	PrevPageID int64    `json:"prev_page_id"`
	NextPageID int64    `json:"next_page_id"`
	Type       PageType `json:"type"`
	Title      string   `json:"title"`
	Contents   string   `json:"contents"`
	QOption    bool     `json:"qoption"`
	Layout     bool     `json:"layout"`
}

type Answer struct {
	ID             int64  `json:"id"`
	PageID         int64  `json:"page_id"`
	LessonID       int64  `json:"lesson_id"`
	AnswerText     string `json:"answer"`
	AnswerFormat   int    `json:"answer_format"`
	ResponseText   string `json:"response"`
	ResponseFormat int    `json:"response_format"`
	JumpTo         int64  `json:"jumpto"`
	Score          int    `json:"score"`
}

// Attempt is one answer event on a question page.
type Attempt struct {
	ID         int64     `json:"id"`
	LessonID   int64     `json:"lesson_id"`
	PageID     int64     `json:"page_id"`
	UserID     int64     `json:"user_id"`
	AnswerID   int64     `json:"answer_id"`
	Retry      int       `json:"retry"`
	Correct    bool      `json:"correct"`
	UserAnswer string    `json:"user_answer"`
	TimeSeen   time.Time `json:"time_seen"`
}

// Branch is one view of a content or structural page.
type Branch struct {
	ID         int64     `json:"id"`
	LessonID   int64     `json:"lesson_id"`
	UserID     int64     `json:"user_id"`
	PageID     int64     `json:"page_id"`
	Retry      int       `json:"retry"`
	NextPageID int64     `json:"next_page_id"`
	Flag       bool      `json:"flag"` // reached through a random-branch jump
	TimeSeen   time.Time `json:"time_seen"`
}

type Grade struct {
	ID        int64     `json:"id"`
	LessonID  int64     `json:"lesson_id"`
	UserID    int64     `json:"user_id"`
	Grade     float64   `json:"grade"`
	Completed time.Time `json:"completed"`
}

type Timer struct {
	ID         int64     `json:"id"`
	LessonID   int64     `json:"lesson_id"`
	UserID     int64     `json:"user_id"`
	Retry      int       `json:"retry"`
	StartTime  time.Time `json:"start_time"`
	LessonTime time.Time `json:"lesson_time"` // last heartbeat
	Completed  bool      `json:"completed"`
}

// Elapsed is the time between start and the last heartbeat.
func (t Timer) Elapsed() time.Duration { return t.LessonTime.Sub(t.StartTime) }

// EssayResponse is the stored user answer of an essay page.
type EssayResponse struct {
	AnswerText     string `json:"answer"`
	AnswerFormat   int    `json:"answer_format"`
	ResponseText   string `json:"response"`
	ResponseFormat int    `json:"response_format"`
	Score          int    `json:"score"`
	Graded         bool   `json:"graded"`
	Sent           bool   `json:"sent"`
}

// Override replaces selected lesson settings for one user. Nil fields inherit.
type Override struct {
	LessonID     int64          `json:"lesson_id"`
	UserID       int64          `json:"user_id"`
	Available    *time.Time     `json:"available,omitempty"`
	Deadline     *time.Time     `json:"deadline,omitempty"`
	TimeLimit    *time.Duration `json:"time_limit,omitempty"`
	MaxAttempts  *int           `json:"max_attempts,omitempty"`
	Retake       *bool          `json:"retake,omitempty"`
	PasswordHash *string        `json:"-"`
}
