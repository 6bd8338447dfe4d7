package services

import (
	"testing"
)

func TestScoreQuiz(t *testing.T) {
	cases := []struct {
		name        string
		answers     map[string]any
		key         map[string]any
		wantCorrect int
		wantTotal   int
	}{
		{
			name:        "all exact matches",
			answers:     map[string]any{"q1": "a", "q2": "b"},
			key:         map[string]any{"q1": "a", "q2": "b"},
			wantCorrect: 2,
			wantTotal:   2,
		},
		{
			name:        "wrong single answer",
			answers:     map[string]any{"q1": "b"},
			key:         map[string]any{"q1": "a"},
			wantCorrect: 0,
			wantTotal:   1,
		},
		{
			name:        "missing answer counts against total",
			answers:     map[string]any{"q1": "a"},
			key:         map[string]any{"q1": "a", "q2": "b"},
			wantCorrect: 1,
			wantTotal:   2,
		},
		{
			name:        "extra submitted answers are ignored",
			answers:     map[string]any{"q1": "a", "q9": "z"},
			key:         map[string]any{"q1": "a"},
			wantCorrect: 1,
			wantTotal:   1,
		},
		{
			name:        "multi-select order insensitive",
			answers:     map[string]any{"q1": []any{"c", "a"}},
			key:         map[string]any{"q1": []any{"a", "c"}},
			wantCorrect: 1,
			wantTotal:   1,
		},
		{
			name:        "multi-select as comma separated string",
			answers:     map[string]any{"q1": "c, a"},
			key:         map[string]any{"q1": []any{"a", "c"}},
			wantCorrect: 1,
			wantTotal:   1,
		},
		{
			name:        "multi-select subset is wrong",
			answers:     map[string]any{"q1": []any{"a"}},
			key:         map[string]any{"q1": []any{"a", "c"}},
			wantCorrect: 0,
			wantTotal:   1,
		},
		{
			name:        "numeric answer matches string key",
			answers:     map[string]any{"q1": float64(3)},
			key:         map[string]any{"q1": "3"},
			wantCorrect: 1,
			wantTotal:   1,
		},
		{
			name:        "whitespace is trimmed",
			answers:     map[string]any{"q1": " b "},
			key:         map[string]any{"q1": "b"},
			wantCorrect: 1,
			wantTotal:   1,
		},
		{
			name:        "empty key scores zero of zero",
			answers:     map[string]any{"q1": "a"},
			key:         map[string]any{},
			wantCorrect: 0,
			wantTotal:   0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			correct, total := scoreQuiz(tc.answers, tc.key)
			if correct != tc.wantCorrect || total != tc.wantTotal {
				t.Fatalf("scoreQuiz = %d/%d, want %d/%d", correct, total, tc.wantCorrect, tc.wantTotal)
			}
		})
	}
}

func TestAnswerSetsEqualRejectsNonListTypes(t *testing.T) {
	if answerSetsEqual([]any{"a"}, 42.0) {
		t.Fatalf("numeric submission should not match a multi-select key")
	}
	if answerSetsEqual([]any{"a", "b"}, []any{"a", "b", "b"}) {
		t.Fatalf("length mismatch should not match")
	}
}

func TestNormalizeAnswer(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{in: " a ", want: "a"},
		{in: float64(3), want: "3"},
		{in: 3.5, want: "3.5"},
		{in: true, want: "true"},
	}
	for _, tc := range cases {
		if got := normalizeAnswer(tc.in); got != tc.want {
			t.Fatalf("normalizeAnswer(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
