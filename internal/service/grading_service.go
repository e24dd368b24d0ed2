package service

import (
	"proctora_backend/internal/model"
)

// GradeAttempt 纯判分函数：把已保存的作答与题目定义比对，
// 返回带正误/得分的答案集合与总分。无副作用、确定性、幂等：
// 相同输入永远得到相同输出，交卷路径的安全重试依赖这一点。
//
// 规则：
//   - 未作答（无记录或空值）：0 分、不判对，也不扣分
//   - 结构化相等（文本题额外做一次大小写不敏感比较）：得 marks
//   - 确定性答错：扣 negativeMarks（以负数入账）
//   - 多选题按标准答案的存储顺序逐位比较，顺序即权威
//
// 总分可以为负。
func GradeAttempt(questions []model.Question, answers []model.AttemptAnswer) ([]model.AttemptAnswer, float64) {
	byQuestion := make(map[string]model.AttemptAnswer, len(answers))
	for _, ans := range answers {
		byQuestion[ans.QuestionID] = ans
	}

	graded := make([]model.AttemptAnswer, 0, len(answers))
	totalScore := 0.0

	for _, q := range questions {
		ans, answered := byQuestion[q.ID]
		if !answered {
			continue
		}

		given := model.ParseAnswerValue(ans.GivenAnswer)
		correct := model.ParseAnswerValue(q.CorrectAnswer)

		isCorrect := false
		awarded := 0.0

		if !given.Absent() {
			isCorrect = given.Equals(correct) || given.EqualsFold(correct)
			if isCorrect {
				awarded = q.Marks
			} else {
				awarded = -q.NegativeMarks
			}
		}

		ans.IsMarkedCorrect = &isCorrect
		ans.AwardedMarks = &awarded
		totalScore += awarded
		graded = append(graded, ans)
	}

	return graded, totalScore
}

// TotalMarks 试卷满分
func TotalMarks(questions []model.Question) float64 {
	total := 0.0
	for _, q := range questions {
		total += q.Marks
	}
	return total
}
