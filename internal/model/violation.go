package model

type ViolationType string

const (
	ViolationTabSwitch      ViolationType = "tab_switch"
	ViolationMinimize       ViolationType = "minimize"
	ViolationFullscreenExit ViolationType = "fullscreen_exit"
)

func ValidViolationType(t ViolationType) bool {
	switch t {
	case ViolationTabSwitch, ViolationMinimize, ViolationFullscreenExit:
		return true
	}
	return false
}

// ViolationEvent 一次违规事件，时间戳为毫秒
type ViolationEvent struct {
	Type      ViolationType `json:"type"`
	Timestamp int64         `json:"timestamp"`
}

// ViolationRecord 某次考试的违规快照，存储于 Redis，
// 随写入续期 TTL，考试结束后自动过期清理。
type ViolationRecord struct {
	Count      int64            `json:"count"`
	Violations []ViolationEvent `json:"violations"`
}
