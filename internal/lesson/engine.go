package lesson

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-lessons/internal/grading"
)

// GradeUpdate is the aggregated grade pushed to an external grade book.
type GradeUpdate struct {
	LessonID  int64
	UserID    int64
	Grade     float64 // 0-100
	MaxGrade  float64
	Timestamp time.Time
}

// GradePublisher receives final grades after they change.
type GradePublisher interface {
	PublishGrade(ctx context.Context, u GradeUpdate) error
}

// EventSink records domain events.
type EventSink interface {
	Record(ctx context.Context, typ, key string, data any) error
}

// Actor is the authenticated user acting on a lesson.
type Actor struct {
	UserID int64
	Role   Role
}

// Engine navigates lessons, records learner activity and grades retries.
type Engine struct {
	store     Store
	grader    grading.Grader
	publisher GradePublisher
	events    EventSink
	log       *slog.Logger
	now       func() time.Time
	intn      func(int) int
	fanout    int64
}

type EngineOption func(*Engine)

func WithGrader(g grading.Grader) EngineOption { return func(e *Engine) { e.grader = g } }
func WithPublisher(p GradePublisher) EngineOption { return func(e *Engine) { e.publisher = p } }
func WithEvents(s EventSink) EngineOption { return func(e *Engine) { e.events = s } }
func WithLogger(l *slog.Logger) EngineOption { return func(e *Engine) { e.log = l } }
func WithClock(now func() time.Time) EngineOption { return func(e *Engine) { e.now = now } }
func WithRand(intn func(n int) int) EngineOption { return func(e *Engine) { e.intn = intn } }
func WithPublishConcurrency(n int) EngineOption { return func(e *Engine) { e.fanout = int64(n) } }

func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  store,
		grader: grading.NewDefaultGrader(),
		log:    slog.Default(),
		now:    time.Now,
		intn:   rand.IntN,
		fanout: 4,
	}
	for _, o := range opts {
		o(e)
	}
	if e.fanout < 1 {
		e.fanout = 1
	}
	return e
}

// Store exposes the underlying record store.
func (e *Engine) Store() Store { return e.store }

// session is everything one request needs about a lesson and a user.
type session struct {
	lesson  Lesson
	access  EffectiveAccessConfig
	graph   *Graph
	actor   Actor
	retry   int
	history History
}

func (s *session) manage() bool { return s.actor.Role.CanManage() }

func (e *Engine) load(ctx context.Context, st Store, lessonID int64, actor Actor) (*session, error) {
	l, err := st.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	g, err := loadGraph(ctx, st, lessonID)
	if err != nil {
		return nil, err
	}
	s := &session{lesson: l, graph: g, actor: actor}

	o, ok, err := st.GetOverride(ctx, lessonID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if ok {
		s.access = EffectiveAccess(l, &o)
	} else {
		s.access = EffectiveAccess(l, nil)
	}
	if s.manage() {
		return s, nil
	}

	grades, err := st.ListGrades(ctx, lessonID, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.retry = len(grades)
	f := ForRetry(lessonID, actor.UserID, s.retry)
	if s.history.Attempts, err = st.ListAttempts(ctx, f); err != nil {
		return nil, err
	}
	if s.history.Branches, err = st.ListBranches(ctx, f); err != nil {
		return nil, err
	}
	return s, nil
}

func loadGraph(ctx context.Context, st Store, lessonID int64) (*Graph, error) {
	pages, err := st.ListPages(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	answers, err := st.ListAnswers(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	return NewGraph(pages, answers)
}

func (e *Engine) resolver(s *session) *Resolver {
	return &Resolver{Graph: s.graph, Lesson: s.lesson, History: s.history, Intn: e.intn}
}

// admit checks the access window, the password and retake gating for learners.
func (e *Engine) admit(s *session, password string) error {
	if s.manage() {
		return nil
	}
	if err := s.access.CheckOpen(e.now()); err != nil {
		return err
	}
	if err := s.access.CheckPassword(password); err != nil {
		return err
	}
	if !s.access.Retake && s.retry > 0 {
		return ErrRetakeNotAllowed
	}
	return nil
}

// ViewRequest asks for a page. PageID 0 means the first page and
// JumpEndOfLesson ends the session.
type ViewRequest struct {
	LessonID int64
	PageID   int64
	Actor    Actor
	Password string
}

type ViewResult struct {
	Page        *Page         `json:"page,omitempty"`
	Answers     []Answer      `json:"answers,omitempty"`
	Retry       int           `json:"retry"`
	EndOfLesson bool          `json:"end_of_lesson"`
	OutOfTime   bool          `json:"out_of_time"`
	TimeLeft    time.Duration `json:"time_left,omitempty"`
	Progress    int           `json:"progress"`
	Finish      *FinishResult `json:"finish,omitempty"`
}

// View resolves the page to show. Structural pages redirect until a page
// that renders is reached; the chain is bounded by the page count.
func (e *Engine) View(ctx context.Context, req ViewRequest) (ViewResult, error) {
	s, err := e.load(ctx, e.store, req.LessonID, req.Actor)
	if err != nil {
		return ViewResult{}, err
	}
	if err := e.admit(s, req.Password); err != nil {
		return ViewResult{}, err
	}
	if req.PageID == JumpEndOfLesson {
		fin, err := e.Finish(ctx, req.LessonID, req.Actor)
		if err != nil {
			return ViewResult{}, err
		}
		return ViewResult{Retry: fin.Retry, EndOfLesson: true, OutOfTime: fin.OutOfTime, Finish: &fin}, nil
	}

	res := ViewResult{Retry: s.retry}
	if !s.manage() {
		state, err := e.touchTimer(ctx, s)
		if err != nil {
			return ViewResult{}, err
		}
		if state.Expired {
			return e.endOutOfTime(ctx, req.LessonID, req.Actor)
		}
		res.TimeLeft = state.TimeLeft
	}

	id := req.PageID
	if id == 0 {
		root := s.graph.Root()
		if root == nil {
			id = JumpEndOfLesson
		} else {
			id = root.ID
		}
	}

	r := e.resolver(s)
	for steps := 0; ; steps++ {
		if id == JumpEndOfLesson {
			fin, err := e.Finish(ctx, req.LessonID, req.Actor)
			if err != nil {
				return ViewResult{}, err
			}
			return ViewResult{Retry: fin.Retry, EndOfLesson: true, OutOfTime: fin.OutOfTime, Finish: &fin}, nil
		}
		if steps > s.graph.Len() {
			return ViewResult{}, integrityf("redirects from page %d do not settle", req.PageID)
		}
		p, err := s.graph.Page(id)
		if err != nil {
			return ViewResult{}, err
		}
		target, redirect, err := onView(r, p, s.manage())
		if err != nil {
			return ViewResult{}, err
		}
		if !redirect {
			res.Page = p
			res.Answers = visibleAnswers(p, s.graph.Answers(p.ID), s.manage())
			break
		}
		if p.Type == TypeCluster && !s.manage() {
			b, err := e.store.InsertBranch(ctx, Branch{
				LessonID: s.lesson.ID, UserID: s.actor.UserID, PageID: p.ID,
				Retry: s.retry, NextPageID: target, TimeSeen: e.now(),
			})
			if err != nil {
				return ViewResult{}, err
			}
			r.History.Branches = append(r.History.Branches, b)
		}
		id = target
	}

	if !s.manage() {
		res.Progress = progressOf(s.graph, r.History)
	}
	return res, nil
}

// visibleAnswers hides answer keys and jumps from learners; only the options
// of choice-style pages are shown.
func visibleAnswers(p *Page, answers []Answer, manage bool) []Answer {
	if manage {
		return answers
	}
	switch p.Type {
	case TypeTrueFalse, TypeMultiChoice, TypeBranchTable:
	default:
		return nil
	}
	out := make([]Answer, 0, len(answers))
	for _, a := range answers {
		out = append(out, Answer{ID: a.ID, PageID: a.PageID, LessonID: a.LessonID, AnswerText: a.AnswerText, AnswerFormat: a.AnswerFormat})
	}
	return out
}

// AnswerRequest submits an answer on a page.
type AnswerRequest struct {
	LessonID   int64
	PageID     int64
	Actor      Actor
	Password   string
	Submission Submission
}

// StepResult is the outcome of one navigation step.
type StepResult struct {
	PageID             int64         `json:"page_id"`
	NewPageID          int64         `json:"new_page_id"`
	Correct            bool          `json:"correct"`
	NoAnswer           bool          `json:"no_answer"`
	IsEssay            bool          `json:"is_essay"`
	ImmediateJump      bool          `json:"immediate_jump"`
	AnswerID           int64         `json:"answer_id,omitempty"`
	Feedback           string        `json:"feedback,omitempty"`
	Marked             string        `json:"marked,omitempty"`
	AttemptsRemaining  int           `json:"attempts_remaining,omitempty"`
	MaxAttemptsReached bool          `json:"max_attempts_reached,omitempty"`
	OutOfTime          bool          `json:"out_of_time,omitempty"`
	Retry              int           `json:"retry"`
	Finish             *FinishResult `json:"finish,omitempty"`
}

const (
	defaultCorrectFeedback = "That's the correct answer."
	defaultWrongFeedback   = "That's the wrong answer."
)

// Submit checks an answer, records it and resolves the next page. An answer
// that matches nothing leaves the learner on the page with NoAnswer set and
// records nothing.
func (e *Engine) Submit(ctx context.Context, req AnswerRequest) (StepResult, error) {
	s, err := e.load(ctx, e.store, req.LessonID, req.Actor)
	if err != nil {
		return StepResult{}, err
	}
	if err := e.admit(s, req.Password); err != nil {
		return StepResult{}, err
	}
	if !s.manage() {
		state, err := e.touchTimer(ctx, s)
		if err != nil {
			return StepResult{}, err
		}
		if state.Expired {
			v, err := e.endOutOfTime(ctx, req.LessonID, req.Actor)
			if err != nil {
				return StepResult{}, err
			}
			return StepResult{PageID: req.PageID, NewPageID: JumpEndOfLesson, OutOfTime: true, Retry: s.retry, Finish: v.Finish}, nil
		}
	}

	p, err := s.graph.Page(req.PageID)
	if err != nil {
		return StepResult{}, err
	}
	r := e.resolver(s)
	res := StepResult{PageID: p.ID, Retry: s.retry}

	if p.Type == TypeBranchTable {
		chk, err := checkAnswer(ctx, e.grader, s.graph, s.lesson, p, req.Submission)
		if err != nil {
			return StepResult{}, err
		}
		if chk.NoAnswer {
			res.NoAnswer, res.NewPageID = true, p.ID
			return res, nil
		}
		next, err := r.Resolve(chk.Jump, p, s.manage())
		if err != nil {
			return StepResult{}, err
		}
		if !s.manage() {
			if _, err := e.store.InsertBranch(ctx, Branch{
				LessonID: s.lesson.ID, UserID: s.actor.UserID, PageID: p.ID, Retry: s.retry,
				NextPageID: next, Flag: chk.Flag, TimeSeen: e.now(),
			}); err != nil {
				return StepResult{}, err
			}
		}
		res.NewPageID, res.AnswerID, res.ImmediateJump = next, chk.AnswerID, true
		return res, nil
	}
	if !p.Type.IsQuestion() {
		return StepResult{}, errors.Wrapf(ErrNotAnswerable, "page %d (%s)", p.ID, p.Type)
	}

	limit := s.access.MaxAttempts
	if s.manage() {
		limit = 0
	}
	prior := 0
	for _, a := range s.history.Attempts {
		if a.PageID == p.ID {
			prior++
		}
	}
	if limit > 0 && prior >= limit {
		next, err := r.Resolve(JumpNextPage, p, s.manage())
		if err != nil {
			return StepResult{}, err
		}
		res.NewPageID, res.MaxAttemptsReached = next, true
		return res, nil
	}

	chk, err := checkAnswer(ctx, e.grader, s.graph, s.lesson, p, req.Submission)
	if err != nil {
		return StepResult{}, err
	}
	if chk.NoAnswer {
		res.NoAnswer, res.NewPageID = true, p.ID
		return res, nil
	}

	if !s.manage() {
		a, err := e.store.InsertAttempt(ctx, Attempt{
			LessonID: s.lesson.ID, PageID: p.ID, UserID: s.actor.UserID, AnswerID: chk.AnswerID,
			Retry: s.retry, Correct: chk.Correct, UserAnswer: chk.UserAnswer, TimeSeen: e.now(),
		})
		if err != nil {
			return StepResult{}, err
		}
		r.History.Attempts = append(r.History.Attempts, a)
	}

	jump := chk.Jump
	if limit > 0 && !chk.Correct && !chk.IsEssay && jump == JumpThisPage {
		if n := prior + 1; n >= limit {
			jump = JumpNextPage
			res.MaxAttemptsReached = limit > 1
		} else {
			res.AttemptsRemaining = limit - n
		}
	}
	next, err := r.Resolve(jump, p, s.manage())
	if err != nil {
		return StepResult{}, err
	}

	res.NewPageID = next
	res.Correct = chk.Correct
	res.IsEssay = chk.IsEssay
	res.AnswerID = chk.AnswerID
	res.Marked = chk.Marked
	res.Feedback = chk.Response
	if res.Feedback == "" && s.lesson.Feedback && !chk.IsEssay {
		if chk.Correct {
			res.Feedback = defaultCorrectFeedback
		} else {
			res.Feedback = defaultWrongFeedback
		}
	}
	res.ImmediateJump = chk.IsEssay ||
		(res.Feedback == "" && res.Marked == "" && !res.MaxAttemptsReached && res.AttemptsRemaining == 0)
	return res, nil
}

// FinishResult describes a finished session.
type FinishResult struct {
	Retry      int       `json:"retry"`
	Info       GradeInfo `json:"info"`
	Graded     bool      `json:"graded"` // a grade row was written
	Grade      float64   `json:"grade"`
	OutOfTime  bool      `json:"out_of_time"`
	FinalGrade float64   `json:"final_grade"`
	HasFinal   bool      `json:"has_final"`
}

// Finish ends the learner's session: the retry is graded when it has
// attempts or ran out of time, and the running timer is completed.
func (e *Engine) Finish(ctx context.Context, lessonID int64, actor Actor) (FinishResult, error) {
	return e.finish(ctx, lessonID, actor, false)
}

func (e *Engine) endOutOfTime(ctx context.Context, lessonID int64, actor Actor) (ViewResult, error) {
	fin, err := e.finish(ctx, lessonID, actor, true)
	if err != nil {
		return ViewResult{}, err
	}
	return ViewResult{Retry: fin.Retry, EndOfLesson: true, OutOfTime: true, Finish: &fin}, nil
}

func (e *Engine) finish(ctx context.Context, lessonID int64, actor Actor, outOfTime bool) (FinishResult, error) {
	if actor.Role.CanManage() {
		return FinishResult{}, nil
	}
	var (
		fin FinishResult
		s   *session
	)
	err := e.store.WithTx(ctx, func(tx Store) error {
		var err error
		s, err = e.load(ctx, tx, lessonID, actor)
		if err != nil {
			return err
		}
		fin.Retry = s.retry

		now := e.now()
		t, running, err := activeTimer(ctx, tx, lessonID, actor.UserID)
		if err != nil {
			return err
		}
		if running && s.access.TimeLimit > 0 {
			if _, expired := CheckTime(t, s.access.TimeLimit, now); expired {
				outOfTime = true
			}
		}
		fin.OutOfTime = outOfTime

		fin.Info = computeGrade(s.graph, s.lesson, s.history.Attempts)
		if len(s.history.Attempts) > 0 || outOfTime {
			if len(s.history.Attempts) > 0 {
				fin.Grade = fin.Info.Grade
			}
			if _, err := tx.InsertGrade(ctx, Grade{LessonID: lessonID, UserID: actor.UserID, Grade: fin.Grade, Completed: now}); err != nil {
				return err
			}
			fin.Graded = true
		}
		if running {
			t.Completed = true
			t.LessonTime = now
			if err := tx.UpdateTimer(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return FinishResult{}, err
	}

	if fin.Graded {
		e.log.InfoContext(ctx, "lesson retry graded",
			slog.Int64("lesson_id", lessonID),
			slog.Int64("user_id", actor.UserID),
			slog.Int("retry", fin.Retry),
			slog.Float64("grade", fin.Grade),
			slog.Bool("out_of_time", fin.OutOfTime))
		e.record(ctx, "GradeFinalized", retryKey(lessonID, actor.UserID, fin.Retry), fin)
		fin.FinalGrade, fin.HasFinal = e.publish(ctx, s.lesson, s.access, actor.UserID)
	}
	return fin, nil
}

// FinalGrade aggregates the user's finished retries.
func (e *Engine) FinalGrade(ctx context.Context, lessonID, userID int64) (float64, bool, error) {
	l, err := e.store.GetLesson(ctx, lessonID)
	if err != nil {
		return 0, false, err
	}
	access, err := e.accessFor(ctx, e.store, l, userID)
	if err != nil {
		return 0, false, err
	}
	grades, err := e.store.ListGrades(ctx, lessonID, userID)
	if err != nil {
		return 0, false, err
	}
	final, ok := aggregateGrades(grades, access.Retake, l.UseMaxGrade)
	return final, ok, nil
}

func (e *Engine) accessFor(ctx context.Context, st Store, l Lesson, userID int64) (EffectiveAccessConfig, error) {
	o, ok, err := st.GetOverride(ctx, l.ID, userID)
	if err != nil {
		return EffectiveAccessConfig{}, err
	}
	if !ok {
		return EffectiveAccess(l, nil), nil
	}
	return EffectiveAccess(l, &o), nil
}

// publish pushes the aggregated grade. Failures are logged, not returned.
func (e *Engine) publish(ctx context.Context, l Lesson, access EffectiveAccessConfig, userID int64) (float64, bool) {
	grades, err := e.store.ListGrades(ctx, l.ID, userID)
	if err != nil {
		e.log.WarnContext(ctx, "list grades for publish failed", slog.Int64("lesson_id", l.ID), slog.Any("err", err))
		return 0, false
	}
	final, ok := aggregateGrades(grades, access.Retake, l.UseMaxGrade)
	if !ok || e.publisher == nil {
		return final, ok
	}
	err = e.publisher.PublishGrade(ctx, GradeUpdate{
		LessonID: l.ID, UserID: userID, Grade: final, MaxGrade: l.MaxGrade, Timestamp: e.now(),
	})
	if err != nil {
		e.log.WarnContext(ctx, "grade publish failed",
			slog.Int64("lesson_id", l.ID), slog.Int64("user_id", userID), slog.Any("err", err))
	}
	return final, ok
}

func (e *Engine) record(ctx context.Context, typ, key string, data any) {
	if e.events == nil {
		return
	}
	if err := e.events.Record(ctx, typ, key, data); err != nil {
		e.log.WarnContext(ctx, "event record failed", slog.String("type", typ), slog.Any("err", err))
	}
}

func retryKey(lessonID, userID int64, retry int) string {
	return strconv.FormatInt(lessonID, 10) + ":" + strconv.FormatInt(userID, 10) + ":" + strconv.Itoa(retry)
}
