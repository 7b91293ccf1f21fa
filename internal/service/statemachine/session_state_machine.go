package statemachine

import (
	"fmt"

	"k8s.io/klog/v2"
)

// SessionStatus 研究会话 / 分析运行的所有可能状态
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"    // 已创建，等待执行
	SessionStatusRunning    SessionStatus = "running"    // 正在逐轮执行
	SessionStatusCompleted  SessionStatus = "completed"  // 所有轮次完成
	SessionStatusIncomplete SessionStatus = "incomplete" // 生成器通道提前关闭，保留了部分结果
	SessionStatusFailed     SessionStatus = "failed"     // 契约错误或重试耗尽
	SessionStatusCanceled   SessionStatus = "canceled"   // 被取消
)

// SessionTransition 状态迁移
type SessionTransition struct {
	From SessionStatus
	To   SessionStatus
}

// SessionStateMachine 会话状态机，终态没有出边
type SessionStateMachine struct {
	allowedTransitions map[SessionTransition]bool
}

// NewSessionStateMachine 创建会话状态机
func NewSessionStateMachine() *SessionStateMachine {
	sm := &SessionStateMachine{
		allowedTransitions: make(map[SessionTransition]bool),
	}

	// pending -> running -> completed/incomplete/failed
	// pending -> failed（入队失败）
	// running -> canceled（用户取消）
	transitions := []SessionTransition{
		{SessionStatusPending, SessionStatusRunning},
		{SessionStatusPending, SessionStatusFailed},
		{SessionStatusPending, SessionStatusCanceled},

		{SessionStatusRunning, SessionStatusCompleted},
		{SessionStatusRunning, SessionStatusIncomplete},
		{SessionStatusRunning, SessionStatusFailed},
		{SessionStatusRunning, SessionStatusCanceled},
	}

	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}

	return sm
}

// CanTransition 检查状态迁移是否合法
func (sm *SessionStateMachine) CanTransition(from, to SessionStatus) bool {
	if from == to {
		return false
	}
	return sm.allowedTransitions[SessionTransition{From: from, To: to}]
}

// ValidateTransition 验证状态迁移并返回错误
func (sm *SessionStateMachine) ValidateTransition(from, to SessionStatus) error {
	if !sm.CanTransition(from, to) {
		return &InvalidStateTransitionError{
			From: string(from),
			To:   string(to),
		}
	}
	return nil
}

// Transition 执行状态迁移（带日志）
func (sm *SessionStateMachine) Transition(from, to SessionStatus, sessionID string) error {
	if err := sm.ValidateTransition(from, to); err != nil {
		klog.V(6).Infof("会话状态迁移被拒绝: sessionID=%s, %s -> %s, error=%v",
			sessionID, from, to, err)
		return err
	}

	klog.V(6).Infof("会话状态迁移成功: sessionID=%s, %s -> %s", sessionID, from, to)
	return nil
}

// InvalidStateTransitionError 无效的状态迁移错误
type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid session state transition: %s -> %s", e.From, e.To)
}

// IsTerminal 判断状态是否为终止态（不能再迁移）
func IsTerminal(status SessionStatus) bool {
	switch status {
	case SessionStatusCompleted, SessionStatusIncomplete, SessionStatusFailed, SessionStatusCanceled:
		return true
	}
	return false
}
