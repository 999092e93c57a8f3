package grading

import (
	"context"
	"regexp"
	"strings"
)

type shortAnswerStrategy struct{ open, close string }

// Grade returns the first option whose pattern matches. Options flagged
// Correct only match positively; the others also understand the -- (absence)
// and ++ (highlight) prefixes when the page is in regex mode.
func (s shortAnswerStrategy) Grade(_ context.Context, q Q, resp Response) (Result, error) {
	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		return Result{NoAnswer: true}, nil
	}
	for _, o := range q.Options {
		if strings.TrimSpace(o.Text) == CatchAll {
			continue
		}
		ok, marked := s.match(o, q.Mode, answer)
		if !ok {
			continue
		}
		return Result{OptionID: o.ID, Correct: o.Correct, Marked: marked, UserAnswer: answer}, nil
	}
	if o, ok := catchAll(q.Options); ok {
		return Result{OptionID: o.ID, Correct: o.Correct, UserAnswer: answer}, nil
	}
	return Result{NoAnswer: true, UserAnswer: answer}, nil
}

func (s shortAnswerStrategy) match(o Option, regexMode bool, answer string) (bool, string) {
	expected := o.Text
	if !regexMode {
		return fullMatch(wildcardPattern(expected), true, answer), ""
	}

	ignoreCase := false
	if strings.HasSuffix(expected, "/i") {
		expected = strings.TrimSuffix(expected, "/i")
		ignoreCase = true
	}
	if o.Correct {
		return fullMatch(expected, ignoreCase, answer), ""
	}

	switch {
	case strings.HasPrefix(expected, "--"):
		re, err := compile("^(?:"+expected[2:]+")$", ignoreCase)
		if err != nil {
			return false, ""
		}
		return !re.MatchString(answer), ""
	case strings.HasPrefix(expected, "++"):
		re, err := compile(expected[2:], ignoreCase)
		if err != nil || !re.MatchString(answer) {
			return false, ""
		}
		marked := re.ReplaceAllStringFunc(answer, func(m string) string {
			return s.open + m + s.close
		})
		return true, marked
	default:
		return fullMatch(expected, ignoreCase, answer), ""
	}
}

// wildcardPattern quotes text and turns * into a match-anything run.
func wildcardPattern(text string) string {
	const placeholder = "#####"
	text = strings.ReplaceAll(text, "*", placeholder)
	text = regexp.QuoteMeta(text)
	return strings.ReplaceAll(text, placeholder, ".*")
}

func fullMatch(pattern string, ignoreCase bool, answer string) bool {
	re, err := compile("^(?:"+pattern+")$", ignoreCase)
	if err != nil {
		return false
	}
	return re.MatchString(answer)
}

// compile treats an invalid author pattern as one that never matches.
func compile(pattern string, ignoreCase bool) (*regexp.Regexp, error) {
	if ignoreCase {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}
