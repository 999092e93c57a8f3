package lesson

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-lessons/internal/grading"
)

// Submission is the learner's input on one page.
type Submission struct {
	AnswerIDs []int64 `json:"answer_ids,omitempty"`
	Text      string  `json:"text,omitempty"`
}

// CheckResult is the outcome of checking a submission against a page.
// Jump is still symbolic; the resolver turns it into a page id.
type CheckResult struct {
	Correct           bool
	Jump              int64
	NoAnswer          bool
	IsEssay           bool
	NoDefaultResponse bool
	AnswerID          int64
	Response          string // the matched answer's response text
	Marked            string
	UserAnswer        string
	Flag              bool // branch-table choice jumps to a random branch
}

// answerIsCorrect decides correctness of an authored answer: its score under
// custom scoring, the direction of its jump otherwise.
func answerIsCorrect(g *Graph, l Lesson, p *Page, a Answer) bool {
	if l.Custom {
		return a.Score > 0
	}
	return g.JumpIsCorrect(p.ID, a.JumpTo)
}

// checkAnswer dispatches on the page type. Structural pages take no answers.
func checkAnswer(ctx context.Context, grader grading.Grader, g *Graph, l Lesson, p *Page, sub Submission) (CheckResult, error) {
	answers := g.Answers(p.ID)

	switch {
	case p.Type == TypeBranchTable:
		if len(sub.AnswerIDs) == 0 {
			return CheckResult{NoAnswer: true}, nil
		}
		a, ok := g.Answer(p.ID, sub.AnswerIDs[0])
		if !ok {
			return CheckResult{NoAnswer: true}, nil
		}
		return CheckResult{
			Jump:     a.JumpTo,
			AnswerID: a.ID,
			Response: a.ResponseText,
			Flag:     a.JumpTo == JumpRandomBranch,
		}, nil
	case !p.Type.IsQuestion():
		return CheckResult{}, errors.Wrapf(ErrNotAnswerable, "page %d (%s)", p.ID, p.Type)
	}

	q := grading.Q{Kind: kinds[p.Type].grader, Mode: p.QOption}
	for _, a := range answers {
		q.Options = append(q.Options, grading.Option{
			ID:      a.ID,
			Text:    a.AnswerText,
			Score:   a.Score,
			Correct: answerIsCorrect(g, l, p, a),
		})
	}
	res, err := grader.Grade(ctx, q, grading.Response{OptionIDs: sub.AnswerIDs, Text: sub.Text})
	if err != nil {
		return CheckResult{}, errors.Wrapf(err, "check page %d", p.ID)
	}
	if res.NoAnswer {
		return CheckResult{NoAnswer: true}, nil
	}

	out := CheckResult{
		Correct:           res.Correct,
		IsEssay:           res.Essay,
		NoDefaultResponse: res.NoDefaultResponse,
		AnswerID:          res.OptionID,
		Marked:            res.Marked,
		UserAnswer:        res.UserAnswer,
		Jump:              JumpNextPage,
	}
	if a, ok := g.Answer(p.ID, res.OptionID); ok {
		out.Jump = a.JumpTo
		out.Response = a.ResponseText
	}
	if res.Essay {
		raw, err := json.Marshal(EssayResponse{AnswerText: res.UserAnswer})
		if err != nil {
			return CheckResult{}, errors.Wrap(err, "encode essay")
		}
		out.UserAnswer = string(raw)
		out.Response = ""
	}
	return out, nil
}

// decodeEssay reads an essay attempt's stored answer.
func decodeEssay(a Attempt) (EssayResponse, error) {
	var e EssayResponse
	if err := json.Unmarshal([]byte(a.UserAnswer), &e); err != nil {
		return EssayResponse{}, errors.Wrapf(err, "decode essay attempt %d", a.ID)
	}
	return e, nil
}
