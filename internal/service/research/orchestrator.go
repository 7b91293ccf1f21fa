package research

import (
	"context"
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/opendeepwiki/deepresearch/internal/domain"
	"github.com/opendeepwiki/deepresearch/internal/eventbus"
	"github.com/opendeepwiki/deepresearch/internal/service/phaseselector"
	"github.com/opendeepwiki/deepresearch/internal/service/statemachine"
)

var ErrSessionRunning = errors.New("session is already running")

// RunRequest 发起一次研究所需参数
type RunRequest struct {
	Repo     domain.RepoIdentity
	Language domain.Language
	Topic    string
	MaxTurns int
	Context  []domain.ContextBlock
}

// Orchestrator 驱动有界的多轮研究循环
type Orchestrator struct {
	dispatchRetries int
	bus             *eventbus.ResearchEventBus
	sm              *statemachine.SessionStateMachine
}

// NewOrchestrator dispatchRetries 为单轮调用失败后的重试次数；bus 可为 nil
func NewOrchestrator(dispatchRetries int, bus *eventbus.ResearchEventBus) *Orchestrator {
	return &Orchestrator{
		dispatchRetries: dispatchRetries,
		bus:             bus,
		sm:              statemachine.NewSessionStateMachine(),
	}
}

// Run 新建会话并执行到结束，返回最后一轮的记录
func (o *Orchestrator) Run(ctx context.Context, req RunRequest, dispatch domain.DispatchFunc) (*domain.TurnRecord, error) {
	s, err := NewSession(req.Repo, req.Language, req.Topic, req.MaxTurns)
	if err != nil {
		return nil, err
	}
	s.Context = req.Context
	return o.RunSession(ctx, s, dispatch)
}

// RunSession 执行已创建的会话。
// 通道中断时保留部分结果作为该轮记录，会话标记为 incomplete 并提前结束，返回该记录且 error 为 nil。
// 因 ctx 取消或超时而中断时同样保留部分结果，会话标记为 canceled，返回该记录和 ctx 的错误。
func (o *Orchestrator) RunSession(ctx context.Context, s *Session, dispatch domain.DispatchFunc) (*domain.TurnRecord, error) {
	if statemachine.IsTerminal(s.status) {
		return nil, domain.ErrSessionFinished
	}
	if s.status == statemachine.SessionStatusRunning {
		return nil, ErrSessionRunning
	}
	if err := o.transition(s, statemachine.SessionStatusRunning); err != nil {
		return nil, err
	}
	o.publish(ctx, s, eventbus.ResearchEvent{Type: eventbus.ResearchEventSessionStarted})
	klog.V(6).Infof("[Orchestrator.RunSession] 开始研究: sessionID=%s, topic=%q, maxTurns=%d", s.ID, s.topic, s.maxTurns)

	send := domain.WithRetry(dispatch, o.dispatchRetries)
	for {
		env, err := phaseselector.Select(s.selectorInput())
		if err != nil {
			o.finish(ctx, s, statemachine.SessionStatusFailed, err)
			return nil, err
		}

		resp, err := send(ctx, env)
		if err != nil {
			ctxErr := ctx.Err()
			var ci *domain.ChannelInterruption
			// 取消或超时前已收到的内容同样保留为该轮记录
			if errors.As(err, &ci) && (ctxErr == nil || ci.Partial != "") {
				rec := s.record(env, ci.Partial, true)
				o.publish(context.WithoutCancel(ctx), s, eventbus.ResearchEvent{Type: eventbus.ResearchEventTurnRecorded, Turn: rec})
				klog.Warningf("[Orchestrator.RunSession] 通道中断，保留部分结果: sessionID=%s, turn=%d, partial=%d",
					s.ID, rec.Index, len(ci.Partial))
				if ctxErr != nil {
					o.finish(ctx, s, statemachine.SessionStatusCanceled, ctxErr)
					return rec, ctxErr
				}
				o.finish(ctx, s, statemachine.SessionStatusIncomplete, err)
				return rec, nil
			}
			if ctxErr != nil {
				o.finish(ctx, s, statemachine.SessionStatusCanceled, ctxErr)
				return nil, ctxErr
			}
			o.finish(ctx, s, statemachine.SessionStatusFailed, err)
			return nil, fmt.Errorf("turn %d: %w", s.turnIndex, err)
		}

		rec := s.record(env, resp, false)
		o.publish(ctx, s, eventbus.ResearchEvent{Type: eventbus.ResearchEventTurnRecorded, Turn: rec})
		klog.V(6).Infof("[Orchestrator.RunSession] 完成一轮: sessionID=%s, turn=%d/%d, phase=%s",
			s.ID, rec.Index, s.maxTurns, rec.Phase)

		if s.turnIndex == s.maxTurns {
			o.finish(ctx, s, statemachine.SessionStatusCompleted, nil)
			return rec, nil
		}
		s.turnIndex++
	}
}

func (o *Orchestrator) transition(s *Session, to statemachine.SessionStatus) error {
	if err := o.sm.Transition(s.status, to, s.ID); err != nil {
		return err
	}
	s.status = to
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, s *Session, to statemachine.SessionStatus, cause error) {
	if err := o.transition(s, to); err != nil {
		klog.Errorf("[Orchestrator.finish] 状态迁移失败: sessionID=%s, err=%v", s.ID, err)
		return
	}
	event := eventbus.ResearchEvent{Type: eventbus.ResearchEventSessionFinished, Status: string(to)}
	if cause != nil {
		event.Error = cause.Error()
	}
	// 取消后 ctx 已失效，结束事件用独立的 ctx 发布
	o.publish(context.WithoutCancel(ctx), s, event)
}

func (o *Orchestrator) publish(ctx context.Context, s *Session, event eventbus.ResearchEvent) {
	if o.bus == nil {
		return
	}
	event.SessionID = s.ID
	event.Repo = s.Repo
	event.Language = s.Language.Code
	event.Topic = s.topic
	event.MaxTurns = s.maxTurns
	if err := o.bus.Publish(ctx, event); err != nil {
		klog.Warningf("[Orchestrator.publish] 事件处理失败: type=%s, sessionID=%s, err=%v", event.Type, s.ID, err)
	}
}
