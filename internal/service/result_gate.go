package service

import (
	"time"

	"proctora_backend/internal/model"
)

// ResultsVisible 成绩披露判定：必须已判分、披露时间已设定且已到达。
// 为 false 时读取端只能返回 {status}，不得泄露任何得分或对错信息。
func ResultsVisible(attempt *model.Attempt, now time.Time) bool {
	return attempt.Status == model.AttemptGraded &&
		attempt.ResultVisibilityAt != nil &&
		!now.Before(*attempt.ResultVisibilityAt)
}

// resultVisibilityAt 根据试卷的公布策略计算披露时间。
// embargo 策略在管理员未设定时间时返回 nil，成绩一直封存。
func resultVisibilityAt(test *model.Test, attempt *model.Attempt, gradedAt time.Time) *time.Time {
	switch test.RevealAnswersPolicy {
	case model.RevealAfterExpiry:
		t := attempt.ExpiresAt
		return &t
	case model.RevealEmbargo:
		return test.EmbargoAt
	default: // after_grading
		t := gradedAt
		return &t
	}
}
