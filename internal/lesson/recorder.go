package lesson

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/mind-engage/mindengage-lessons/internal/grading"
)

// CountUserRetries is the number of finished retries.
func (e *Engine) CountUserRetries(ctx context.Context, lessonID, userID int64) (int, error) {
	grades, err := e.store.ListGrades(ctx, lessonID, userID)
	if err != nil {
		return 0, err
	}
	return len(grades), nil
}

// DeleteRetries removes whole retries and renumbers the later ones so retry
// numbers stay dense.
func (e *Engine) DeleteRetries(ctx context.Context, lessonID, userID int64, tries []int) error {
	tries = slices.Clone(tries)
	slices.Sort(tries)
	tries = slices.Compact(tries)
	if len(tries) > 0 && tries[0] < 0 {
		return errors.Wrapf(ErrInvalidRetry, "retry %d", tries[0])
	}

	err := e.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetLesson(ctx, lessonID); err != nil {
			return err
		}
		for i, try := range tries {
			r := try - i
			timers, err := tx.ListTimers(ctx, lessonID, userID)
			if err != nil {
				return err
			}
			for _, t := range timers {
				if t.Retry != r {
					continue
				}
				if err := tx.DeleteTimer(ctx, t.ID); err != nil {
					return err
				}
			}
			grades, err := tx.ListGrades(ctx, lessonID, userID)
			if err != nil {
				return err
			}
			if r < len(grades) {
				if err := tx.DeleteGrade(ctx, grades[r].ID); err != nil {
					return err
				}
			}
			if err := tx.DeleteRecords(ctx, ForRetry(lessonID, userID, r)); err != nil {
				return err
			}
			if err := tx.ShiftRetries(ctx, lessonID, userID, r); err != nil {
				return err
			}
		}
		return verifyDensity(ctx, tx, lessonID, userID)
	})
	if err != nil {
		return err
	}
	e.log.InfoContext(ctx, "lesson retries deleted",
		slog.Int64("lesson_id", lessonID), slog.Int64("user_id", userID), slog.Any("tries", tries))
	e.record(ctx, "RetriesDeleted", retryKey(lessonID, userID, len(tries)), map[string]any{
		"lesson_id": lessonID, "user_id": userID, "tries": tries,
	})
	return nil
}

// verifyDensity checks every attempt and branch retry lies in [0, grades].
func verifyDensity(ctx context.Context, st Store, lessonID, userID int64) error {
	grades, err := st.ListGrades(ctx, lessonID, userID)
	if err != nil {
		return err
	}
	f := RecordFilter{LessonID: lessonID, UserID: userID}
	attempts, err := st.ListAttempts(ctx, f)
	if err != nil {
		return err
	}
	for _, a := range attempts {
		if a.Retry < 0 || a.Retry > len(grades) {
			return integrityf("attempt %d has retry %d with %d grades", a.ID, a.Retry, len(grades))
		}
	}
	branches, err := st.ListBranches(ctx, f)
	if err != nil {
		return err
	}
	for _, b := range branches {
		if b.Retry < 0 || b.Retry > len(grades) {
			return integrityf("branch %d has retry %d with %d grades", b.ID, b.Retry, len(grades))
		}
	}
	return nil
}

// ResetLesson deletes every learner record of a lesson.
func (e *Engine) ResetLesson(ctx context.Context, lessonID int64) error {
	err := e.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetLesson(ctx, lessonID); err != nil {
			return err
		}
		return tx.ResetLesson(ctx, lessonID)
	})
	if err != nil {
		return err
	}
	e.log.InfoContext(ctx, "lesson reset", slog.Int64("lesson_id", lessonID))
	e.record(ctx, "LessonReset", retryKey(lessonID, 0, 0), map[string]any{"lesson_id": lessonID})
	return nil
}

// progressOf is the percentage of rendering pages seen in the retry.
func progressOf(g *Graph, h History) int {
	answered, viewed := h.answered(), h.viewed()
	total, seen := 0, 0
	for _, p := range g.Pages() {
		if p.Type.IsStructural() {
			continue
		}
		total++
		if h.seen(p, answered, viewed) {
			seen++
		}
	}
	if total == 0 {
		return 0
	}
	return seen * 100 / total
}

// Progress reports how far the user is through the current retry.
func (e *Engine) Progress(ctx context.Context, lessonID, userID int64) (int, error) {
	s, err := e.load(ctx, e.store, lessonID, Actor{UserID: userID, Role: RoleLearner})
	if err != nil {
		return 0, err
	}
	return progressOf(s.graph, s.history), nil
}

// GradeForRetry scores one retry of one user.
func (e *Engine) GradeForRetry(ctx context.Context, lessonID, userID int64, retry int) (GradeInfo, error) {
	if retry < 0 {
		return GradeInfo{}, errors.Wrapf(ErrInvalidRetry, "retry %d", retry)
	}
	l, err := e.store.GetLesson(ctx, lessonID)
	if err != nil {
		return GradeInfo{}, err
	}
	g, err := loadGraph(ctx, e.store, lessonID)
	if err != nil {
		return GradeInfo{}, err
	}
	attempts, err := e.store.ListAttempts(ctx, ForRetry(lessonID, userID, retry))
	if err != nil {
		return GradeInfo{}, err
	}
	return computeGrade(g, l, attempts), nil
}

// RetryReport is one finished retry in a user report.
type RetryReport struct {
	Retry     int           `json:"retry"`
	Grade     float64       `json:"grade"`
	Completed time.Time     `json:"completed"`
	Elapsed   time.Duration `json:"elapsed"`
	Info      GradeInfo     `json:"info"`
}

// UserReport lists the user's finished retries with their grade details.
type UserReport struct {
	LessonID   int64         `json:"lesson_id"`
	UserID     int64         `json:"user_id"`
	Retries    []RetryReport `json:"retries"`
	FinalGrade float64       `json:"final_grade"`
	HasFinal   bool          `json:"has_final"`
}

func (e *Engine) UserReport(ctx context.Context, lessonID, userID int64) (UserReport, error) {
	l, err := e.store.GetLesson(ctx, lessonID)
	if err != nil {
		return UserReport{}, err
	}
	g, err := loadGraph(ctx, e.store, lessonID)
	if err != nil {
		return UserReport{}, err
	}
	grades, err := e.store.ListGrades(ctx, lessonID, userID)
	if err != nil {
		return UserReport{}, err
	}
	timers, err := e.store.ListTimers(ctx, lessonID, userID)
	if err != nil {
		return UserReport{}, err
	}
	access, err := e.accessFor(ctx, e.store, l, userID)
	if err != nil {
		return UserReport{}, err
	}

	rep := UserReport{LessonID: lessonID, UserID: userID, Retries: make([]RetryReport, 0, len(grades))}
	for i, gr := range grades {
		attempts, err := e.store.ListAttempts(ctx, ForRetry(lessonID, userID, i))
		if err != nil {
			return UserReport{}, err
		}
		rr := RetryReport{Retry: i, Grade: gr.Grade, Completed: gr.Completed, Info: computeGrade(g, l, attempts)}
		for _, t := range timers {
			if t.Retry == i {
				rr.Elapsed += t.Elapsed()
			}
		}
		rep.Retries = append(rep.Retries, rr)
	}
	rep.FinalGrade, rep.HasFinal = aggregateGrades(grades, access.Retake, l.UseMaxGrade)
	return rep, nil
}

// GradeEssay scores an essay attempt and regrades its retry when that retry
// is already finished.
func (e *Engine) GradeEssay(ctx context.Context, lessonID, attemptID int64, score int, response string) (Attempt, error) {
	var (
		out Attempt
		l   Lesson
	)
	err := e.store.WithTx(ctx, func(tx Store) error {
		var err error
		if l, err = tx.GetLesson(ctx, lessonID); err != nil {
			return err
		}
		a, err := tx.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if a.LessonID != lessonID {
			return errors.Wrapf(ErrAttemptNotFound, "attempt %d in lesson %d", attemptID, lessonID)
		}
		g, err := loadGraph(ctx, tx, lessonID)
		if err != nil {
			return err
		}
		p, err := g.Page(a.PageID)
		if err != nil {
			return err
		}
		if !p.Type.NeedsManualGrade() {
			return errors.Wrapf(ErrNotAnswerable, "attempt %d is not an essay", attemptID)
		}

		essay, err := decodeEssay(a)
		if err != nil {
			return integrityf("attempt %d: %v", attemptID, err)
		}
		essay.Score = grading.ClampManual(score, essayMax(g, l, p.ID))
		essay.Graded = true
		essay.ResponseText = response
		raw, err := json.Marshal(essay)
		if err != nil {
			return errors.Wrap(err, "encode essay")
		}
		a.UserAnswer = string(raw)
		a.Correct = essay.Score > 0
		if err := tx.UpdateAttempt(ctx, a); err != nil {
			return err
		}
		out = a

		grades, err := tx.ListGrades(ctx, lessonID, a.UserID)
		if err != nil {
			return err
		}
		if a.Retry >= len(grades) {
			return nil
		}
		attempts, err := tx.ListAttempts(ctx, ForRetry(lessonID, a.UserID, a.Retry))
		if err != nil {
			return err
		}
		gr := grades[a.Retry]
		gr.Grade = computeGrade(g, l, attempts).Grade
		return tx.UpdateGrade(ctx, gr)
	})
	if err != nil {
		return Attempt{}, err
	}

	e.log.InfoContext(ctx, "essay graded",
		slog.Int64("lesson_id", lessonID), slog.Int64("attempt_id", attemptID), slog.Int64("user_id", out.UserID))
	e.record(ctx, "EssayGraded", retryKey(lessonID, out.UserID, out.Retry), map[string]any{
		"attempt_id": attemptID, "correct": out.Correct,
	})
	if access, err := e.accessFor(ctx, e.store, l, out.UserID); err == nil {
		e.publish(ctx, l, access, out.UserID)
	}
	return out, nil
}

// RepublishGrades pushes every graded user's aggregate to the grade book and
// returns how many were sent.
func (e *Engine) RepublishGrades(ctx context.Context, lessonID int64) (int, error) {
	l, err := e.store.GetLesson(ctx, lessonID)
	if err != nil {
		return 0, err
	}
	users, err := e.store.ListGradedUsers(ctx, lessonID)
	if err != nil {
		return 0, err
	}

	sem := semaphore.NewWeighted(e.fanout)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sent int
	)
	for _, uid := range users {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			defer sem.Release(1)
			access, err := e.accessFor(ctx, e.store, l, uid)
			if err != nil {
				e.log.WarnContext(ctx, "load override failed", slog.Int64("user_id", uid), slog.Any("err", err))
				return
			}
			if _, ok := e.publish(ctx, l, access, uid); ok {
				mu.Lock()
				sent++
				mu.Unlock()
			}
		}(uid)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return sent, errors.Wrap(err, "republish grades")
	}
	return sent, nil
}

// PutOverride stores per-user settings. A non-nil password replaces the
// override password; an empty one clears protection for the user.
func (e *Engine) PutOverride(ctx context.Context, o Override, password *string) error {
	if _, err := e.store.GetLesson(ctx, o.LessonID); err != nil {
		return err
	}
	if password != nil {
		h, err := HashPassword(*password)
		if err != nil {
			return err
		}
		o.PasswordHash = &h
	}
	return e.store.PutOverride(ctx, o)
}
