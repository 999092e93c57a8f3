// Package gradesync forwards final lesson grades to the external grade book.
package gradesync

import (
	"context"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/pkg/gradebook/gradebook"
)

// LessonLookup resolves the lesson title used as the line-item label.
type LessonLookup interface {
	GetLesson(ctx context.Context, id int64) (lesson.Lesson, error)
}

// ResultSyncer is satisfied by *gradebook.Syncer.
type ResultSyncer interface {
	SyncResult(ctx context.Context, res gradebook.Result) error
}

// Publisher implements lesson.GradePublisher on top of a grade-book syncer.
type Publisher struct {
	syncer  ResultSyncer
	lessons LessonLookup
}

var _ lesson.GradePublisher = (*Publisher)(nil)

func NewPublisher(syncer ResultSyncer, lessons LessonLookup) *Publisher {
	return &Publisher{syncer: syncer, lessons: lessons}
}

// PublishGrade scales the 0-100 grade to the lesson's maximum. Lessons
// without a maximum are reported out of 100.
func (p *Publisher) PublishGrade(ctx context.Context, u lesson.GradeUpdate) error {
	l, err := p.lessons.GetLesson(ctx, u.LessonID)
	if err != nil {
		return errors.Wrapf(err, "lesson %d", u.LessonID)
	}
	maxScore := u.MaxGrade
	if maxScore <= 0 {
		maxScore = 100
	}
	return p.syncer.SyncResult(ctx, gradebook.Result{
		Activity:   gradebook.Activity{LessonID: l.ID, Title: l.Name, MaxScore: maxScore},
		UserID:     u.UserID,
		ScoreGiven: u.Grade * maxScore / 100,
		Timestamp:  u.Timestamp,
	})
}
