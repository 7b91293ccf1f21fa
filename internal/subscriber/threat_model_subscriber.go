package subscriber

import (
	"context"
	"encoding/json"

	"k8s.io/klog/v2"

	"github.com/opendeepwiki/deepresearch/internal/eventbus"
	"github.com/opendeepwiki/deepresearch/internal/model"
	"github.com/opendeepwiki/deepresearch/internal/repository"
)

type ThreatModelSubscriber struct {
	repo repository.ThreatModelRepository
}

func NewThreatModelSubscriber(repo repository.ThreatModelRepository) *ThreatModelSubscriber {
	return &ThreatModelSubscriber{repo: repo}
}

func (s *ThreatModelSubscriber) Register(bus *eventbus.ThreatModelEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.ThreatModelEventGenerated, s.handleGenerated)
}

func (s *ThreatModelSubscriber) handleGenerated(ctx context.Context, event eventbus.ThreatModelEvent) error {
	record := &model.ThreatModel{
		ID:          event.ID,
		RepoType:    event.Repo.Type,
		RepoURL:     event.Repo.URL,
		RepoName:    event.Repo.Name,
		Query:       event.Query,
		FormatHint:  string(event.FormatHint),
		Diagram:     event.Diagram,
		Document:    event.Document,
		Valid:       event.Valid,
		Attempts:    event.Attempts,
		Interrupted: event.Interrupted,
	}
	if len(event.Violations) > 0 {
		data, err := json.Marshal(event.Violations)
		if err != nil {
			return err
		}
		record.Violations = string(data)
	}
	if err := s.repo.Create(record); err != nil {
		klog.Errorf("威胁模型事件处理失败: id=%s, error=%v", event.ID, err)
		return err
	}
	klog.V(6).Infof("威胁模型事件处理成功: id=%s, valid=%v, attempts=%d", event.ID, event.Valid, event.Attempts)
	return nil
}
