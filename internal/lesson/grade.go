package lesson

import (
	"github.com/mind-engage/mindengage-lessons/internal/grading"
)

// GradeInfo summarizes one retry.
type GradeInfo struct {
	Attempts     int     `json:"attempts"` // attempt rows in the retry
	NQuestions   int     `json:"nquestions"`
	Total        float64 `json:"total"`
	Earned       float64 `json:"earned"`
	Grade        float64 `json:"grade"` // percent, 0-100
	NManual      int     `json:"nmanual"`
	ManualPoints float64 `json:"manual_points"`
}

// computeGrade scores one retry's attempts. The last attempt per page wins;
// ungraded essays are counted but not scored.
func computeGrade(g *Graph, l Lesson, attempts []Attempt) GradeInfo {
	info := GradeInfo{Attempts: len(attempts)}

	last := map[int64]Attempt{}
	var order []int64
	for _, a := range attempts {
		if _, ok := last[a.PageID]; !ok {
			order = append(order, a.PageID)
		}
		last[a.PageID] = a
	}

	for _, pageID := range order {
		p, err := g.Page(pageID)
		if err != nil || !p.Type.IsQuestion() {
			continue
		}
		a := last[pageID]
		info.NQuestions++

		if p.Type.NeedsManualGrade() {
			essay, err := decodeEssay(a)
			if err != nil || !essay.Graded {
				info.NManual++
				continue
			}
			info.ManualPoints += float64(essay.Score)
			if l.Custom {
				info.Earned += float64(essay.Score)
				info.Total += float64(maxScore(g.Answers(pageID)))
			} else {
				info.Total++
				if essay.Score > 0 {
					info.Earned++
				}
			}
			continue
		}

		if l.Custom {
			if ans, ok := g.Answer(pageID, a.AnswerID); ok {
				info.Earned += float64(ans.Score)
			}
			info.Total += float64(maxScore(g.Answers(pageID)))
			continue
		}
		info.Total++
		if a.Correct {
			info.Earned++
		}
	}

	info.Grade = grading.Percent(info.Earned, info.Total)
	return info
}

// essayMax is the most a grader can award on an essay page.
func essayMax(g *Graph, l Lesson, pageID int64) int {
	if !l.Custom {
		return 1
	}
	return maxScore(g.Answers(pageID))
}

func maxScore(answers []Answer) int {
	best := 0
	for _, a := range answers {
		if a.Score > best {
			best = a.Score
		}
	}
	return best
}

// aggregateGrades folds finished retries into the lesson grade: the first
// retry when retakes are off, otherwise the mean or the best.
func aggregateGrades(grades []Grade, retake, useMax bool) (float64, bool) {
	if len(grades) == 0 {
		return 0, false
	}
	if !retake {
		return grades[0].Grade, true
	}
	if useMax {
		best := grades[0].Grade
		for _, g := range grades[1:] {
			if g.Grade > best {
				best = g.Grade
			}
		}
		return best, true
	}
	sum := 0.0
	for _, g := range grades {
		sum += g.Grade
	}
	return grading.Round(sum/float64(len(grades)), 5), true
}
