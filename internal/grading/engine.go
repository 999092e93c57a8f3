package grading

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Question kinds understood by the default grader.
const (
	KindTrueFalse   = "truefalse"
	KindMultiChoice = "multichoice"
	KindShortAnswer = "shortanswer"
	KindNumerical   = "numerical"
	KindEssay       = "essay"
)

// CatchAll is the answer text that matches any response nothing else matched.
const CatchAll = "@#wronganswer#@"

// Option is one authored answer as a checker sees it.
type Option struct {
	ID    int64
	Text  string
	Score int
	// Correct is decided by the caller (custom score or jump direction).
	Correct bool
}

// Q is a minimal view of a question page needed for checking.
// Keep this in sync with whatever fields the lesson store uses.
type Q struct {
	Kind string
	// Mode is the page's qOption flag: regex mode for short answers,
	// multiple selection for multichoice.
	Mode    bool
	Options []Option
}

// Response is what the learner submitted.
type Response struct {
	OptionIDs []int64
	Text      string
}

// Result is the outcome of checking a single response.
type Result struct {
	OptionID int64 // matched option; 0 when NoAnswer
	Correct  bool
	NoAnswer bool
	Essay    bool
	// NoDefaultResponse is set when correctness is deferred to a human.
	NoDefaultResponse bool
	Marked            string // response with ++ matches highlighted
	UserAnswer        string // normalized raw response for the attempt log
}

// Strategy checks a single question kind.
type Strategy interface {
	Grade(ctx context.Context, q Q, resp Response) (Result, error)
}

// Grader routes by question kind to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, resp Response) (Result, error)
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, resp Response) (Result, error) {
	s, ok := g.strategies[q.Kind]
	if !ok {
		return Result{}, errors.Errorf("grading: no strategy for kind %q", q.Kind)
	}
	return s.Grade(ctx, q, resp)
}

// Engine options

type GraderOption func(*config)

type config struct {
	HighlightOpen  string
	HighlightClose string
}

// WithHighlight sets the markers wrapped around ++ matches.
func WithHighlight(open, close string) GraderOption {
	return func(c *config) { c.HighlightOpen, c.HighlightClose = open, close }
}

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader(opts ...GraderOption) Grader {
	cfg := &config{
		HighlightOpen:  `<span class="incorrect matches">`,
		HighlightClose: `</span>`,
	}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultGrader{
		strategies: map[string]Strategy{
			KindTrueFalse:   choiceStrategy{},
			KindMultiChoice: choiceStrategy{},
			KindShortAnswer: shortAnswerStrategy{open: cfg.HighlightOpen, close: cfg.HighlightClose},
			KindNumerical:   numericStrategy{},
			KindEssay:       essayStrategy{},
		},
	}
}

// --- Strategies ---

type choiceStrategy struct{}

func (choiceStrategy) Grade(_ context.Context, q Q, resp Response) (Result, error) {
	if len(resp.OptionIDs) == 0 {
		return Result{NoAnswer: true}, nil
	}
	if q.Kind == KindMultiChoice && q.Mode {
		return gradeMulti(q, resp), nil
	}
	opt, ok := findOption(q.Options, resp.OptionIDs[0])
	if !ok {
		return Result{NoAnswer: true}, nil
	}
	return Result{
		OptionID:   opt.ID,
		Correct:    opt.Correct,
		UserAnswer: strconv.FormatInt(opt.ID, 10),
	}, nil
}

// gradeMulti is correct only when the chosen set equals the correct set.
func gradeMulti(q Q, resp Response) Result {
	chosen := toSet(resp.OptionIDs)
	correct := map[int64]struct{}{}
	for _, o := range q.Options {
		if o.Correct {
			correct[o.ID] = struct{}{}
		}
	}
	known := 0
	for id := range chosen {
		if _, ok := findOption(q.Options, id); ok {
			known++
		}
	}
	if known == 0 {
		return Result{NoAnswer: true}
	}

	res := Result{UserAnswer: joinIDs(resp.OptionIDs)}
	res.Correct = setEqual(chosen, correct)
	for _, o := range q.Options {
		if o.Correct == res.Correct {
			res.OptionID = o.ID
			break
		}
	}
	if res.OptionID == 0 {
		// no option carries the needed flag; fall back to the first chosen one
		for _, id := range resp.OptionIDs {
			if _, ok := findOption(q.Options, id); ok {
				res.OptionID = id
				break
			}
		}
	}
	return res
}

type essayStrategy struct{}

func (essayStrategy) Grade(_ context.Context, q Q, resp Response) (Result, error) {
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Result{NoAnswer: true}, nil
	}
	res := Result{Essay: true, NoDefaultResponse: true, UserAnswer: text}
	if len(q.Options) > 0 {
		res.OptionID = q.Options[0].ID
	}
	return res, nil
}

// helpers

func findOption(opts []Option, id int64) (Option, bool) {
	for _, o := range opts {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

func catchAll(opts []Option) (Option, bool) {
	for _, o := range opts {
		if strings.TrimSpace(o.Text) == CatchAll {
			return o, true
		}
	}
	return Option{}, false
}

func toSet(ids []int64) map[int64]struct{} {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func setEqual(a, b map[int64]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
