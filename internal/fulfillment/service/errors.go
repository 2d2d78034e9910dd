package service

import "fmt"

// GuardError 前置条件不满足。本地可恢复，调用方看到具体原因后自行决定，不自动重试
type GuardError struct {
	Reason string
}

func (e *GuardError) Error() string {
	return e.Reason
}

// ConflictError 目标状态已达成（重复发票、重复队列条目等），调用方视为已满足
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

// InvalidTransitionError 状态机不允许的流转，报错时指明要求的当前状态
type InvalidTransitionError struct {
	Action   string
	Current  string
	Required string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("动作 %s 要求当前状态为 %s，当前为 %s", e.Action, e.Required, e.Current)
}

// StageBlockedError 质检未通过导致的工序锁定
type StageBlockedError struct {
	ItemID string
}

func (e *StageBlockedError) Error() string {
	return fmt.Sprintf("生产项 %s 质检未通过，不能越过质检工序", e.ItemID)
}
