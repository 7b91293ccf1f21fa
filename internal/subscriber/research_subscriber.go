package subscriber

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/opendeepwiki/deepresearch/internal/eventbus"
	"github.com/opendeepwiki/deepresearch/internal/model"
	"github.com/opendeepwiki/deepresearch/internal/repository"
	"github.com/opendeepwiki/deepresearch/internal/utils"
)

// ResearchSubscriber 把研究事件落库
type ResearchSubscriber struct {
	sessions repository.SessionRepository
	turns    repository.TurnRepository
}

func NewResearchSubscriber(sessions repository.SessionRepository, turns repository.TurnRepository) *ResearchSubscriber {
	return &ResearchSubscriber{sessions: sessions, turns: turns}
}

func (s *ResearchSubscriber) Register(bus *eventbus.ResearchEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.ResearchEventSessionStarted, s.handleStarted)
	bus.Subscribe(eventbus.ResearchEventTurnRecorded, s.handleTurn)
	bus.Subscribe(eventbus.ResearchEventSessionFinished, s.handleFinished)
}

// handleStarted 会话可能已由接口层预先创建，不存在时补建
func (s *ResearchSubscriber) handleStarted(ctx context.Context, event eventbus.ResearchEvent) error {
	if event.SessionID == "" {
		return fmt.Errorf("会话ID为空")
	}
	now := time.Now()
	err := s.sessions.MarkStarted(event.SessionID, now)
	if errors.Is(err, repository.ErrNotFound) {
		err = s.sessions.Create(&model.ResearchSession{
			ID:        event.SessionID,
			RepoType:  event.Repo.Type,
			RepoURL:   event.Repo.URL,
			RepoName:  event.Repo.Name,
			Topic:     event.Topic,
			Language:  event.Language,
			MaxTurns:  event.MaxTurns,
			Status:    "running",
			StartedAt: &now,
		})
	}
	if err != nil {
		klog.Errorf("研究事件处理失败: type=%s, sessionID=%s, error=%v", event.Type, event.SessionID, err)
		return err
	}
	klog.V(6).Infof("研究事件处理成功: type=%s, sessionID=%s", event.Type, event.SessionID)
	return nil
}

func (s *ResearchSubscriber) handleTurn(ctx context.Context, event eventbus.ResearchEvent) error {
	if event.Turn == nil {
		return fmt.Errorf("轮次记录为空: sessionID=%s", event.SessionID)
	}
	turn := &model.ResearchTurn{
		SessionID:   event.SessionID,
		TurnIndex:   event.Turn.Index,
		Phase:       string(event.Turn.Phase.Kind),
		Response:    event.Turn.Response,
		Interrupted: event.Turn.Interrupted,
		CreatedAt:   event.Turn.CreatedAt,
	}
	if env := event.Turn.Envelope; env != nil {
		turn.Query = env.Query
		turn.Envelope = utils.ToJSON(env)
	}
	if err := s.turns.Create(turn); err != nil {
		klog.Errorf("研究事件处理失败: type=%s, sessionID=%s, turn=%d, error=%v", event.Type, event.SessionID, turn.TurnIndex, err)
		return err
	}
	klog.V(6).Infof("研究事件处理成功: type=%s, sessionID=%s, turn=%d", event.Type, event.SessionID, turn.TurnIndex)
	return nil
}

func (s *ResearchSubscriber) handleFinished(ctx context.Context, event eventbus.ResearchEvent) error {
	if err := s.sessions.UpdateStatus(event.SessionID, event.Status, event.Error); err != nil {
		klog.Errorf("研究事件处理失败: type=%s, sessionID=%s, status=%s, error=%v", event.Type, event.SessionID, event.Status, err)
		return err
	}
	klog.V(6).Infof("研究事件处理成功: type=%s, sessionID=%s, status=%s", event.Type, event.SessionID, event.Status)
	return nil
}
