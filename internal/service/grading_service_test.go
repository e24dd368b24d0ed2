package service

import (
	"encoding/json"
	"testing"

	"proctora_backend/internal/model"
)

func question(id string, qtype model.QuestionType, correct string, marks, negative float64) model.Question {
	q := model.Question{
		Type:          qtype,
		CorrectAnswer: json.RawMessage(correct),
		Marks:         marks,
		NegativeMarks: negative,
	}
	q.ID = id
	return q
}

func answer(questionID, given string) model.AttemptAnswer {
	return model.AttemptAnswer{
		QuestionID:  questionID,
		GivenAnswer: json.RawMessage(given),
	}
}

func TestGradeAttempt(t *testing.T) {
	tests := []struct {
		name      string
		questions []model.Question
		answers   []model.AttemptAnswer
		wantScore float64
	}{
		{
			name: "correct mcq earns full marks",
			questions: []model.Question{
				question("q1", model.QuestionMCQ, `"c"`, 2, 0.5),
			},
			answers:   []model.AttemptAnswer{answer("q1", `"c"`)},
			wantScore: 2,
		},
		{
			name: "wrong mcq costs negative marks",
			questions: []model.Question{
				question("q1", model.QuestionMCQ, `"c"`, 2, 0.5),
			},
			answers:   []model.AttemptAnswer{answer("q1", `"a"`)},
			wantScore: -0.5,
		},
		{
			name: "unanswered question scores zero without penalty",
			questions: []model.Question{
				question("q1", model.QuestionMCQ, `"c"`, 2, 0.5),
			},
			answers:   nil,
			wantScore: 0,
		},
		{
			name: "null answer counts as unanswered",
			questions: []model.Question{
				question("q1", model.QuestionMCQ, `"c"`, 2, 0.5),
			},
			answers:   []model.AttemptAnswer{answer("q1", `null`)},
			wantScore: 0,
		},
		{
			name: "empty option set counts as unanswered",
			questions: []model.Question{
				question("q1", model.QuestionMultiMCQ, `["a","c"]`, 4, 1),
			},
			answers:   []model.AttemptAnswer{answer("q1", `[]`)},
			wantScore: 0,
		},
		{
			name: "multi select must match stored order",
			questions: []model.Question{
				question("q1", model.QuestionMultiMCQ, `["a","c"]`, 4, 1),
			},
			answers:   []model.AttemptAnswer{answer("q1", `["c","a"]`)},
			wantScore: -1,
		},
		{
			name: "multi select in stored order is correct",
			questions: []model.Question{
				question("q1", model.QuestionMultiMCQ, `["a","c"]`, 4, 1),
			},
			answers:   []model.AttemptAnswer{answer("q1", `["a","c"]`)},
			wantScore: 4,
		},
		{
			name: "short answer is case insensitive",
			questions: []model.Question{
				question("q1", model.QuestionShort, `"Paris"`, 3, 0),
			},
			answers:   []model.AttemptAnswer{answer("q1", `"paris"`)},
			wantScore: 3,
		},
		{
			name: "integer answer compared numerically",
			questions: []model.Question{
				question("q1", model.QuestionInteger, `17`, 2, 0),
			},
			answers:   []model.AttemptAnswer{answer("q1", `17`)},
			wantScore: 2,
		},
		{
			name: "total can go negative",
			questions: []model.Question{
				question("q1", model.QuestionMCQ, `"a"`, 1, 2),
				question("q2", model.QuestionMCQ, `"b"`, 1, 2),
			},
			answers: []model.AttemptAnswer{
				answer("q1", `"b"`),
				answer("q2", `"a"`),
			},
			wantScore: -4,
		},
		{
			name: "mixed paper",
			questions: []model.Question{
				question("q1", model.QuestionMCQ, `"c"`, 2, 0.5),
				question("q2", model.QuestionInteger, `17`, 2, 0),
				question("q3", model.QuestionShort, `"Paris"`, 3, 1),
				question("q4", model.QuestionMultiMCQ, `["a","c"]`, 4, 1),
			},
			answers: []model.AttemptAnswer{
				answer("q1", `"c"`),
				answer("q2", `9`),
				answer("q3", `"PARIS"`),
				// q4 unanswered
			},
			wantScore: 2 + 0 + 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graded, score := GradeAttempt(tt.questions, tt.answers)
			if score != tt.wantScore {
				t.Errorf("score = %v, want %v", score, tt.wantScore)
			}
			for _, g := range graded {
				if g.IsMarkedCorrect == nil || g.AwardedMarks == nil {
					t.Errorf("answer %s not fully graded", g.QuestionID)
				}
			}
		})
	}
}

func TestGradeAttemptDeterministic(t *testing.T) {
	questions := []model.Question{
		question("q1", model.QuestionMCQ, `"c"`, 2, 0.5),
		question("q2", model.QuestionMultiMCQ, `["a","c"]`, 4, 1),
	}
	answers := []model.AttemptAnswer{
		answer("q1", `"a"`),
		answer("q2", `["a","c"]`),
	}

	_, first := GradeAttempt(questions, answers)
	for i := 0; i < 10; i++ {
		if _, score := GradeAttempt(questions, answers); score != first {
			t.Fatalf("run %d: score = %v, want %v", i, score, first)
		}
	}
}

func TestGradeAttemptIgnoresForeignAnswers(t *testing.T) {
	// 只对试卷里存在的题目计分，游离的答案行不影响总分
	questions := []model.Question{
		question("q1", model.QuestionMCQ, `"c"`, 2, 0),
	}
	answers := []model.AttemptAnswer{
		answer("q1", `"c"`),
		answer("ghost", `"c"`),
	}

	graded, score := GradeAttempt(questions, answers)
	if score != 2 {
		t.Errorf("score = %v, want 2", score)
	}
	if len(graded) != 1 {
		t.Errorf("graded %d answers, want 1", len(graded))
	}
}

func TestTotalMarks(t *testing.T) {
	questions := []model.Question{
		question("q1", model.QuestionMCQ, `"c"`, 2, 0.5),
		question("q2", model.QuestionShort, `"x"`, 3, 0),
	}
	if got := TotalMarks(questions); got != 5 {
		t.Errorf("TotalMarks = %v, want 5", got)
	}
}
