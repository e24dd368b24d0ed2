package model

import (
	"encoding/json"
	"testing"
)

func TestParseAnswerValue(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want AnswerValue
	}{
		{"null is absent", `null`, AnswerValue{Kind: AnswerAbsent}},
		{"empty input is absent", ``, AnswerValue{Kind: AnswerAbsent}},
		{"empty string is absent", `""`, AnswerValue{Kind: AnswerAbsent}},
		{"empty array is absent", `[]`, AnswerValue{Kind: AnswerAbsent}},
		{"text", `"b"`, AnswerValue{Kind: AnswerText, Text: "b"}},
		{"integer", `42`, AnswerValue{Kind: AnswerNumber, Number: 42}},
		{"float", `3.5`, AnswerValue{Kind: AnswerNumber, Number: 3.5}},
		{"negative number", `-7`, AnswerValue{Kind: AnswerNumber, Number: -7}},
		{"option set", `["a","c"]`, AnswerValue{Kind: AnswerOptionSet, Options: []string{"a", "c"}}},
		{"malformed json is absent", `{not json`, AnswerValue{Kind: AnswerAbsent}},
		{"object is absent", `{"a":1}`, AnswerValue{Kind: AnswerAbsent}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAnswerValue(json.RawMessage(tt.raw))
			if got.Kind != tt.want.Kind {
				t.Fatalf("kind = %v, want %v", got.Kind, tt.want.Kind)
			}
			if !got.Equals(tt.want) {
				t.Errorf("value = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAnswerValueEquals(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{"same text", `"c"`, `"c"`, true},
		{"different text", `"c"`, `"a"`, false},
		{"text case differs", `"Paris"`, `"paris"`, false},
		{"same number", `17`, `17`, true},
		{"number vs equivalent text", `17`, `"17"`, false},
		{"same option order", `["a","c"]`, `["a","c"]`, true},
		{"different option order", `["c","a"]`, `["a","c"]`, false},
		{"option subset", `["a"]`, `["a","c"]`, false},
		{"option set vs text", `["a"]`, `"a"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ParseAnswerValue(json.RawMessage(tt.a))
			b := ParseAnswerValue(json.RawMessage(tt.b))
			if got := a.Equals(b); got != tt.want {
				t.Errorf("Equals(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestAnswerValueEqualsFold(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{"case insensitive text", `"Paris"`, `"paris"`, true},
		{"different text", `"london"`, `"paris"`, false},
		{"numbers never fold", `17`, `17`, false},
		{"option sets never fold", `["A"]`, `["a"]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ParseAnswerValue(json.RawMessage(tt.a))
			b := ParseAnswerValue(json.RawMessage(tt.b))
			if got := a.EqualsFold(b); got != tt.want {
				t.Errorf("EqualsFold(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestValidViolationType(t *testing.T) {
	for _, valid := range []ViolationType{ViolationTabSwitch, ViolationMinimize, ViolationFullscreenExit} {
		if !ValidViolationType(valid) {
			t.Errorf("ValidViolationType(%q) = false, want true", valid)
		}
	}
	if ValidViolationType("copy_paste") {
		t.Error("ValidViolationType(copy_paste) = true, want false")
	}
}
