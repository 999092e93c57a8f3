package lesson

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// playRetry answers q once with the given answer and finishes.
func (f *fixture) playRetry(a Actor, q PageWithAnswers, answerID int64) FinishResult {
	f.t.Helper()
	f.view(a, 0)
	f.submit(a, q.ID, choose(answerID))
	fin, err := f.eng.Finish(f.ctx, f.lesson.ID, a)
	require.NoError(f.t, err)
	require.True(f.t, fin.Graded)
	f.clock.Advance(time.Minute)
	return fin
}

func retriesOf(attempts []Attempt) []int {
	out := make([]int, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, a.Retry)
	}
	return out
}

func TestDeleteRetriesKeepsRetriesDense(t *testing.T) {
	f := newFixture(t, Lesson{Retake: true})
	q := f.trueFalse("q")
	right, wrong := q.Answers[0].ID, q.Answers[1].ID

	f.playRetry(learner, q, right)
	f.playRetry(learner, q, wrong)
	f.playRetry(learner, q, right)
	f.playRetry(learner, q, wrong)
	assert.Equal(t, []int{0, 1, 2, 3}, retriesOf(f.attempts(learner.UserID)))

	require.NoError(t, f.eng.DeleteRetries(f.ctx, f.lesson.ID, learner.UserID, []int{3, 1, 1}))

	grades := f.grades(learner.UserID)
	require.Len(t, grades, 2)
	assert.Equal(t, 100.0, grades[0].Grade)
	assert.Equal(t, 100.0, grades[1].Grade)
	assert.Equal(t, []int{0, 1}, retriesOf(f.attempts(learner.UserID)))

	timers, err := f.store.ListTimers(f.ctx, f.lesson.ID, learner.UserID)
	require.NoError(t, err)
	assert.Len(t, timers, 2)
	assert.Contains(t, f.events.all(), "RetriesDeleted")

	require.NoError(t, f.eng.DeleteRetries(f.ctx, f.lesson.ID, learner.UserID, []int{0, 1}))
	assert.Empty(t, f.grades(learner.UserID))
	assert.Empty(t, f.attempts(learner.UserID))

	err = f.eng.DeleteRetries(f.ctx, f.lesson.ID, learner.UserID, []int{-1})
	require.ErrorIs(t, err, ErrInvalidRetry)
}

func timerRetries(timers []Timer) []int {
	out := make([]int, 0, len(timers))
	for _, t := range timers {
		out = append(out, t.Retry)
	}
	return out
}

func TestDeleteRetriesMatchesTimersByRetry(t *testing.T) {
	f := newFixture(t, Lesson{Retake: true})
	q := f.trueFalse("q")

	f.view(learner, 0)
	f.clock.Advance(time.Minute)
	require.NoError(t, f.eng.StopTimer(f.ctx, f.lesson.ID, learner.UserID))
	f.playRetry(learner, q, q.Answers[0].ID)
	f.playRetry(learner, q, q.Answers[1].ID)

	timers, err := f.store.ListTimers(f.ctx, f.lesson.ID, learner.UserID)
	require.NoError(t, err)
	require.Len(t, timers, 3)
	assert.Equal(t, []int{0, 0, 1}, timerRetries(timers), "a stopped timer leaves the retry open")

	rep, err := f.eng.UserReport(f.ctx, f.lesson.ID, learner.UserID)
	require.NoError(t, err)
	require.Len(t, rep.Retries, 2)
	assert.Equal(t, time.Minute, rep.Retries[0].Elapsed, "both timers of retry 0 count")

	require.NoError(t, f.eng.DeleteRetries(f.ctx, f.lesson.ID, learner.UserID, []int{1}))
	left, err := f.store.ListTimers(f.ctx, f.lesson.ID, learner.UserID)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, timers[0].ID, left[0].ID)
	assert.Equal(t, timers[1].ID, left[1].ID)

	require.NoError(t, f.eng.DeleteRetries(f.ctx, f.lesson.ID, learner.UserID, []int{0}))
	left, err = f.store.ListTimers(f.ctx, f.lesson.ID, learner.UserID)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestDeleteRetriesRollsBackOnDensityViolation(t *testing.T) {
	f := newFixture(t, Lesson{Retake: true})
	q := f.trueFalse("q")
	f.playRetry(learner, q, q.Answers[0].ID)
	f.playRetry(learner, q, q.Answers[0].ID)

	_, err := f.store.InsertAttempt(f.ctx, Attempt{LessonID: f.lesson.ID, PageID: q.ID, UserID: learner.UserID, Retry: 7, TimeSeen: f.clock.Now()})
	require.NoError(t, err)

	err = f.eng.DeleteRetries(f.ctx, f.lesson.ID, learner.UserID, []int{0})
	require.ErrorIs(t, err, ErrIntegrity)
	assert.Len(t, f.grades(learner.UserID), 2, "nothing was deleted")
	assert.Equal(t, []int{0, 1, 7}, retriesOf(f.attempts(learner.UserID)))
}

func TestResetLesson(t *testing.T) {
	f := newFixture(t, Lesson{})
	q := f.trueFalse("q")
	f.playRetry(learner, q, q.Answers[0].ID)
	f.playRetry(learner2, q, q.Answers[1].ID)

	require.NoError(t, f.eng.ResetLesson(f.ctx, f.lesson.ID))
	assert.Empty(t, f.grades(learner.UserID))
	assert.Empty(t, f.grades(learner2.UserID))
	assert.Empty(t, f.attempts(learner.UserID))
	users, err := f.store.ListGradedUsers(f.ctx, f.lesson.ID)
	require.NoError(t, err)
	assert.Empty(t, users)

	require.ErrorIs(t, f.eng.ResetLesson(f.ctx, 9999), ErrLessonNotFound)
}

func TestGradeEssayRegradesFinishedRetry(t *testing.T) {
	f := newFixture(t, Lesson{})
	q := f.trueFalse("q")
	essay := f.add(TypeEssay, "Explain", Answer{JumpTo: JumpNextPage})

	f.view(learner, 0)
	f.submit(learner, q.ID, choose(q.Answers[0].ID))
	f.submit(learner, essay.ID, text("Chlorophyll absorbs light."))
	fin, err := f.eng.Finish(f.ctx, f.lesson.ID, learner)
	require.NoError(t, err)
	assert.Equal(t, 100.0, fin.Grade)
	assert.Equal(t, 1, fin.Info.NManual)

	attempts := f.attempts(learner.UserID)
	require.Len(t, attempts, 2)
	essayAttempt := attempts[1]

	graded, err := f.eng.GradeEssay(f.ctx, f.lesson.ID, essayAttempt.ID, 0, "Too short.")
	require.NoError(t, err)
	assert.False(t, graded.Correct)
	grades := f.grades(learner.UserID)
	require.Len(t, grades, 1)
	assert.Equal(t, 50.0, grades[0].Grade)

	graded, err = f.eng.GradeEssay(f.ctx, f.lesson.ID, essayAttempt.ID, 7, "Good.")
	require.NoError(t, err)
	assert.True(t, graded.Correct)
	resp, err := decodeEssay(graded)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Score, "binary scoring caps essays at one point")
	assert.True(t, resp.Graded)
	assert.Equal(t, "Good.", resp.ResponseText)
	assert.Equal(t, "Chlorophyll absorbs light.", resp.AnswerText)

	assert.Equal(t, 100.0, f.grades(learner.UserID)[0].Grade)
	updates := f.pub.all()
	require.Len(t, updates, 3)
	assert.Equal(t, 100.0, updates[2].Grade)
	assert.Contains(t, f.events.all(), "EssayGraded")

	_, err = f.eng.GradeEssay(f.ctx, f.lesson.ID, attempts[0].ID, 1, "")
	require.ErrorIs(t, err, ErrNotAnswerable)
	_, err = f.eng.GradeEssay(f.ctx, f.lesson.ID+1, essayAttempt.ID, 1, "")
	require.Error(t, err)
}

func TestGradeEssayCustomScoring(t *testing.T) {
	f := newFixture(t, Lesson{Custom: true})
	essay := f.add(TypeEssay, "Explain", Answer{JumpTo: JumpNextPage, Score: 5})

	f.view(learner, 0)
	f.submit(learner, essay.ID, text("Because."))
	a := f.attempts(learner.UserID)[0]

	graded, err := f.eng.GradeEssay(f.ctx, f.lesson.ID, a.ID, 9, "")
	require.NoError(t, err)
	resp, err := decodeEssay(graded)
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Score)

	info, err := f.eng.GradeForRetry(f.ctx, f.lesson.ID, learner.UserID, 0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, info.Earned)
	assert.Equal(t, 5.0, info.Total)
	assert.Equal(t, 100.0, info.Grade)
	assert.Empty(t, f.grades(learner.UserID), "unfinished retry has no grade row to update")
}

func TestProgress(t *testing.T) {
	f := newFixture(t, Lesson{})
	q1 := f.trueFalse("q1")
	f.trueFalse("q2")
	f.add(TypeCluster, "")
	f.add(TypeEndOfCluster, "")

	p, err := f.eng.Progress(f.ctx, f.lesson.ID, learner.UserID)
	require.NoError(t, err)
	assert.Zero(t, p)

	f.view(learner, 0)
	f.submit(learner, q1.ID, choose(q1.Answers[0].ID))
	p, err = f.eng.Progress(f.ctx, f.lesson.ID, learner.UserID)
	require.NoError(t, err)
	assert.Equal(t, 50, p)
}

func TestUserReport(t *testing.T) {
	f := newFixture(t, Lesson{Retake: true, UseMaxGrade: true})
	q := f.trueFalse("q")
	f.playRetry(learner, q, q.Answers[1].ID)
	f.playRetry(learner, q, q.Answers[0].ID)

	rep, err := f.eng.UserReport(f.ctx, f.lesson.ID, learner.UserID)
	require.NoError(t, err)
	require.Len(t, rep.Retries, 2)
	assert.Equal(t, 0.0, rep.Retries[0].Grade)
	assert.Equal(t, 100.0, rep.Retries[1].Grade)
	assert.Equal(t, 1, rep.Retries[1].Info.Attempts)
	assert.True(t, rep.HasFinal)
	assert.Equal(t, 100.0, rep.FinalGrade)
}

func TestRepublishGrades(t *testing.T) {
	f := newFixture(t, Lesson{MaxGrade: 20}, WithPublishConcurrency(2))
	q := f.trueFalse("q")
	f.playRetry(learner, q, q.Answers[0].ID)
	f.playRetry(learner2, q, q.Answers[1].ID)
	before := len(f.pub.all())

	sent, err := f.eng.RepublishGrades(f.ctx, f.lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	updates := f.pub.all()[before:]
	require.Len(t, updates, 2)
	byUser := map[int64]float64{}
	for _, u := range updates {
		byUser[u.UserID] = u.Grade
		assert.Equal(t, 20.0, u.MaxGrade)
	}
	assert.Equal(t, map[int64]float64{learner.UserID: 100, learner2.UserID: 0}, byUser)
}
