package domain

import (
	"errors"
	"fmt"
	"strings"
)

// 错误分类
var (
	ErrSequencing         = errors.New("sequencing error")
	ErrUnsupportedGoal    = errors.New("unsupported goal")
	ErrSchemaConformance  = errors.New("schema conformance error")
	ErrChannelInterrupted = errors.New("channel interrupted")
	ErrUnsupportedFormat  = errors.New("unsupported format hint")
	ErrMissingSchema      = errors.New("threat model goal requires a schema")
	ErrMissingPhase       = errors.New("research goal requires a phase")
	ErrInvalidTopic       = errors.New("topic is empty")
	ErrTopicImmutable     = errors.New("topic cannot change once a session has started")
	ErrSessionFinished    = errors.New("session already finished")
	ErrDispatchExhausted  = errors.New("dispatch retries exhausted")
)

// SequencingError 阶段选择的调用违反了只进不退的状态机。致命，不可重试。
type SequencingError struct {
	TurnIndex  int
	MaxTurns   int
	HistoryLen int
	Reason     string
}

func (e *SequencingError) Error() string {
	return fmt.Sprintf("sequencing error: turn=%d max=%d history=%d: %s",
		e.TurnIndex, e.MaxTurns, e.HistoryLen, e.Reason)
}

func (e *SequencingError) Is(target error) bool { return target == ErrSequencing }

// UnsupportedGoalError 未知的分析目标
type UnsupportedGoalError struct {
	Goal string
}

func (e *UnsupportedGoalError) Error() string {
	return fmt.Sprintf("unsupported goal %q", e.Goal)
}

func (e *UnsupportedGoalError) Is(target error) bool { return target == ErrUnsupportedGoal }

// Violation 单条 schema / 引用完整性违规
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

// SchemaConformanceError 生成的威胁模型文档不符合 schema。可恢复（一次修复机会）。
type SchemaConformanceError struct {
	Violations []Violation
	Attempts   int
}

func (e *SchemaConformanceError) Error() string {
	return fmt.Sprintf("schema conformance error (%d violations): %s", len(e.Violations), e.Summary())
}

// Summary 违规列表的可读文本，用于回显给生成器
func (e *SchemaConformanceError) Summary() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return strings.Join(parts, "; ")
}

func (e *SchemaConformanceError) Is(target error) bool { return target == ErrSchemaConformance }

// ChannelInterruption 生成器通道在完成信号之前关闭。Partial 保留已累计的文本。
type ChannelInterruption struct {
	Partial string
	Cause   error
}

func (e *ChannelInterruption) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("channel interrupted after %d bytes", len(e.Partial))
	}
	return fmt.Sprintf("channel interrupted after %d bytes: %v", len(e.Partial), e.Cause)
}

func (e *ChannelInterruption) Unwrap() error { return e.Cause }

func (e *ChannelInterruption) Is(target error) bool { return target == ErrChannelInterrupted }
