package repository

import (
	"errors"
	"time"

	"github.com/opendeepwiki/deepresearch/internal/model"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

type SessionRepository interface {
	Create(session *model.ResearchSession) error
	Get(id string) (*model.ResearchSession, error)
	List(limit int) ([]model.ResearchSession, error)
	UpdateStatus(id, status, errMsg string) error
	MarkStarted(id string, at time.Time) error
	CleanupStuck(timeout time.Duration) (int64, error)
}

type TurnRepository interface {
	Create(turn *model.ResearchTurn) error
	GetBySession(sessionID string) ([]model.ResearchTurn, error)
}

type ThreatModelRepository interface {
	Create(tm *model.ThreatModel) error
	Get(id string) (*model.ThreatModel, error)
	ListByRepo(repoURL string, limit int) ([]model.ThreatModel, error)
}
