package scheduler

import (
	"errors"

	"match-admin/internal/shared/storage"
)

var (
	// ErrWorkerBlocked Worker 身份已被封禁，请求直接拒绝
	ErrWorkerBlocked = errors.New("worker is blocked")

	// ErrInvalidRequest 请求参数不合法（负数统计、目标局数低于已分配等）
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound Run 不存在或 Task 下标越界
	ErrNotFound = storage.ErrNotFound
)
