package util

import "errors"

var (
	ErrUserNotFound         = errors.New("用户不存在")
	ErrEmailRegistered      = errors.New("该邮箱已被注册")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrTestNotFound         = errors.New("test not found")
	ErrTestNotPublished     = errors.New("test not published or not accessible")
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrAttemptExpired       = errors.New("test has expired")
	ErrAlreadySubmitted     = errors.New("test has been submitted")
	ErrQuestionNotFound     = errors.New("question not found")
	ErrInvalidViolationType = errors.New("invalid violation type")
	ErrNotOwner             = errors.New("attempt does not belong to caller")
	ErrBatchNotFound        = errors.New("batch not found")
)
