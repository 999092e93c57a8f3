package grading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortAnswer(t *testing.T) {
	g := NewDefaultGrader(WithHighlight("[", "]"))

	cases := []struct {
		name      string
		regex     bool
		options   []Option
		answer    string
		wantID    int64
		correct   bool
		noAnswer  bool
		wantMarks string
	}{
		{
			name:    "wildcard is case insensitive",
			options: []Option{{ID: 1, Text: "Pari*", Correct: true}},
			answer:  "paris, france",
			wantID:  1, correct: true,
		},
		{
			name:    "plain text is quoted",
			options: []Option{{ID: 1, Text: "3.14", Correct: true}},
			answer:  "3x14",
			noAnswer: true,
		},
		{
			name:    "regex correct answer is anchored and case sensitive",
			regex:   true,
			options: []Option{{ID: 1, Text: "colou?r", Correct: true}},
			answer:  "Colour",
			noAnswer: true,
		},
		{
			name:    "regex /i suffix ignores case",
			regex:   true,
			options: []Option{{ID: 1, Text: "colou?r/i", Correct: true}},
			answer:  "COLOR",
			wantID:  1, correct: true,
		},
		{
			name:  "negative match succeeds when the pattern is absent",
			regex: true,
			options: []Option{
				{ID: 1, Text: "blue", Correct: true},
				{ID: 2, Text: "--.*foo.*"},
			},
			answer: "bar baz",
			wantID: 2,
		},
		{
			name:  "negative match fails when the pattern is present",
			regex: true,
			options: []Option{
				{ID: 2, Text: "--.*foo.*"},
			},
			answer:   "a foo here",
			noAnswer: true,
		},
		{
			name:      "highlight marks every occurrence",
			regex:     true,
			options:   []Option{{ID: 3, Text: "++teh"}},
			answer:    "teh cat and teh dog",
			wantID:    3,
			wantMarks: "[teh] cat and [teh] dog",
		},
		{
			name:    "prefixes are literal on correct answers",
			regex:   true,
			options: []Option{{ID: 1, Text: "--x", Correct: true}},
			answer:  "--x",
			wantID:  1, correct: true,
		},
		{
			name:  "catch all answers anything else",
			regex: false,
			options: []Option{
				{ID: 1, Text: "yes", Correct: true},
				{ID: 9, Text: CatchAll},
			},
			answer: "no",
			wantID: 9,
		},
		{
			name:    "invalid author regex never matches",
			regex:   true,
			options: []Option{{ID: 1, Text: "(unclosed", Correct: true}},
			answer:  "(unclosed",
			noAnswer: true,
		},
		{
			name:     "blank submission",
			options:  []Option{{ID: 1, Text: "*", Correct: true}},
			answer:   "  ",
			noAnswer: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := Q{Kind: KindShortAnswer, Mode: tc.regex, Options: tc.options}
			res, err := g.Grade(context.Background(), q, Response{Text: tc.answer})
			require.NoError(t, err)
			assert.Equal(t, tc.noAnswer, res.NoAnswer)
			if tc.noAnswer {
				return
			}
			assert.Equal(t, tc.wantID, res.OptionID)
			assert.Equal(t, tc.correct, res.Correct)
			assert.Equal(t, tc.wantMarks, res.Marked)
		})
	}
}

func TestNumericRanges(t *testing.T) {
	g := NewDefaultGrader()
	q := Q{Kind: KindNumerical, Options: []Option{
		{ID: 1, Text: "3.1:3.2", Correct: true},
		{ID: 2, Text: "10"},
		{ID: 3, Text: CatchAll},
	}}

	cases := []struct {
		answer   string
		wantID   int64
		noAnswer bool
	}{
		{"3.14", 1, false},
		{"3,15", 1, false},
		{"10", 2, false},
		{"11", 3, false},
		{"pi", 0, true},
	}
	for _, tc := range cases {
		res, err := g.Grade(context.Background(), q, Response{Text: tc.answer})
		require.NoError(t, err)
		assert.Equal(t, tc.noAnswer, res.NoAnswer, tc.answer)
		assert.Equal(t, tc.wantID, res.OptionID, tc.answer)
	}

	lo, hi, ok := parseRange("5:2")
	require.True(t, ok)
	assert.Equal(t, 2.0, lo)
	assert.Equal(t, 5.0, hi)
}
