package lesson

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// TimerState reports a session clock against the effective time limit.
type TimerState struct {
	Timer    Timer         `json:"timer"`
	Elapsed  time.Duration `json:"elapsed"`
	TimeLeft time.Duration `json:"time_left"` // zero without a limit
	Limited  bool          `json:"limited"`
	Expired  bool          `json:"expired"`
}

// CheckTime returns the time left on t under limit and whether it ran out.
// A zero limit never expires.
func CheckTime(t Timer, limit time.Duration, now time.Time) (time.Duration, bool) {
	if limit <= 0 {
		return 0, false
	}
	left := limit - now.Sub(t.StartTime)
	if left <= 0 {
		return 0, true
	}
	return left, false
}

// activeTimer returns the latest incomplete timer.
func activeTimer(ctx context.Context, st Store, lessonID, userID int64) (Timer, bool, error) {
	timers, err := st.ListTimers(ctx, lessonID, userID)
	if err != nil {
		return Timer{}, false, err
	}
	for i := len(timers) - 1; i >= 0; i-- {
		if !timers[i].Completed {
			return timers[i], true, nil
		}
	}
	return Timer{}, false, nil
}

func stateOf(t Timer, limit time.Duration, now time.Time) TimerState {
	left, expired := CheckTime(t, limit, now)
	return TimerState{Timer: t, Elapsed: t.Elapsed(), TimeLeft: left, Limited: limit > 0, Expired: expired}
}

// touchTimer reuses the running timer or starts one for the session's retry,
// and records a heartbeat unless the session already expired. The lookup and
// the insert share a transaction so one user never has two running timers.
func (e *Engine) touchTimer(ctx context.Context, s *session) (TimerState, error) {
	now := e.now()
	var out TimerState
	err := e.store.WithTx(ctx, func(tx Store) error {
		t, ok, err := activeTimer(ctx, tx, s.lesson.ID, s.actor.UserID)
		if err != nil {
			return err
		}
		if !ok {
			t, err = tx.InsertTimer(ctx, Timer{LessonID: s.lesson.ID, UserID: s.actor.UserID, Retry: s.retry, StartTime: now, LessonTime: now})
			if err != nil {
				return err
			}
			out = stateOf(t, s.access.TimeLimit, now)
			return nil
		}
		out = stateOf(t, s.access.TimeLimit, now)
		if out.Expired {
			return nil
		}
		t.LessonTime = now
		if err := tx.UpdateTimer(ctx, t); err != nil {
			return err
		}
		out = stateOf(t, s.access.TimeLimit, now)
		return nil
	})
	return out, err
}

// StartTimer opens a session clock. Only one may run at a time.
func (e *Engine) StartTimer(ctx context.Context, lessonID, userID int64) (Timer, error) {
	var out Timer
	err := e.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetLesson(ctx, lessonID); err != nil {
			return err
		}
		_, running, err := activeTimer(ctx, tx, lessonID, userID)
		if err != nil {
			return err
		}
		if running {
			return errors.Wrapf(ErrTimerRunning, "lesson %d user %d", lessonID, userID)
		}
		grades, err := tx.ListGrades(ctx, lessonID, userID)
		if err != nil {
			return err
		}
		now := e.now()
		out, err = tx.InsertTimer(ctx, Timer{LessonID: lessonID, UserID: userID, Retry: len(grades), StartTime: now, LessonTime: now})
		return err
	})
	return out, err
}

// HeartbeatOptions mirror the player's resume choices.
type HeartbeatOptions struct {
	Restart  bool `json:"restart"`
	Continue bool `json:"continue"`
}

// HeartbeatResult is the timer after a heartbeat; Finish is set when the
// heartbeat found the session out of time.
type HeartbeatResult struct {
	TimerState
	Finish *FinishResult `json:"finish,omitempty"`
}

// Heartbeat updates the running timer. Restart resets the start time, and
// with Continue keeps the elapsed time already spent.
func (e *Engine) Heartbeat(ctx context.Context, lessonID int64, actor Actor, opt HeartbeatOptions) (HeartbeatResult, error) {
	l, err := e.store.GetLesson(ctx, lessonID)
	if err != nil {
		return HeartbeatResult{}, err
	}
	access, err := e.accessFor(ctx, e.store, l, actor.UserID)
	if err != nil {
		return HeartbeatResult{}, err
	}
	t, ok, err := activeTimer(ctx, e.store, lessonID, actor.UserID)
	if err != nil {
		return HeartbeatResult{}, err
	}
	if !ok {
		return HeartbeatResult{}, errors.Wrapf(ErrNoTimer, "lesson %d user %d", lessonID, actor.UserID)
	}

	now := e.now()
	switch {
	case opt.Restart && opt.Continue:
		t.StartTime = now.Add(-t.Elapsed())
	case opt.Restart:
		t.StartTime = now
	}
	t.LessonTime = now
	if err := e.store.UpdateTimer(ctx, t); err != nil {
		return HeartbeatResult{}, err
	}

	res := HeartbeatResult{TimerState: stateOf(t, access.TimeLimit, now)}
	if res.Expired {
		fin, err := e.finish(ctx, lessonID, actor, true)
		if err != nil {
			return HeartbeatResult{}, err
		}
		res.Finish = &fin
	}
	return res, nil
}

// StopTimer completes the running timer, if any.
func (e *Engine) StopTimer(ctx context.Context, lessonID, userID int64) error {
	t, ok, err := activeTimer(ctx, e.store, lessonID, userID)
	if err != nil || !ok {
		return err
	}
	t.Completed = true
	t.LessonTime = e.now()
	return e.store.UpdateTimer(ctx, t)
}
