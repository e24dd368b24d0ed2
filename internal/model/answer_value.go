package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

type AnswerKind int

// 答案载荷的判别类型。客户端提交和题库里的标准答案都是
// 动态 JSON，解析成显式变体后比较逻辑才能做到逐一穷举。
const (
	AnswerAbsent AnswerKind = iota
	AnswerText
	AnswerNumber
	AnswerOptionSet
)

// AnswerValue 是 {absent, 文本, 数值, 选项集合} 的带标签联合。
type AnswerValue struct {
	Kind    AnswerKind
	Text    string
	Number  float64
	Options []string
}

// ParseAnswerValue 把原始 JSON 解析为 AnswerValue。
// null、空串、空数组都归为"未作答"。
func ParseAnswerValue(raw json.RawMessage) AnswerValue {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return AnswerValue{Kind: AnswerAbsent}
	}

	if strings.HasPrefix(trimmed, "[") {
		var opts []string
		if err := json.Unmarshal(raw, &opts); err != nil {
			return AnswerValue{Kind: AnswerAbsent}
		}
		if len(opts) == 0 {
			return AnswerValue{Kind: AnswerAbsent}
		}
		return AnswerValue{Kind: AnswerOptionSet, Options: opts}
	}

	if strings.HasPrefix(trimmed, "\"") {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return AnswerValue{Kind: AnswerAbsent}
		}
		if s == "" {
			return AnswerValue{Kind: AnswerAbsent}
		}
		return AnswerValue{Kind: AnswerText, Text: s}
	}

	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return AnswerValue{Kind: AnswerNumber, Number: n}
	}

	return AnswerValue{Kind: AnswerAbsent}
}

func (v AnswerValue) Absent() bool {
	return v.Kind == AnswerAbsent
}

// Equals 结构化相等：类型一致且值一致。选项集合按存储顺序
// 逐位比较，标准答案的顺序即权威顺序。
func (v AnswerValue) Equals(other AnswerValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case AnswerText:
		return v.Text == other.Text
	case AnswerNumber:
		return v.Number == other.Number
	case AnswerOptionSet:
		if len(v.Options) != len(other.Options) {
			return false
		}
		for i := range v.Options {
			if v.Options[i] != other.Options[i] {
				return false
			}
		}
		return true
	case AnswerAbsent:
		return true
	}
	return false
}

// EqualsFold 文本答案的大小写不敏感比较，其余类型不适用。
func (v AnswerValue) EqualsFold(other AnswerValue) bool {
	if v.Kind != AnswerText || other.Kind != AnswerText {
		return false
	}
	return strings.EqualFold(v.Text, other.Text)
}
