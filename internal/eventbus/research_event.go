package eventbus

import "github.com/opendeepwiki/deepresearch/internal/domain"

type ResearchEventType string

const (
	ResearchEventSessionStarted  ResearchEventType = "SessionStarted"
	ResearchEventTurnRecorded    ResearchEventType = "TurnRecorded"
	ResearchEventSessionFinished ResearchEventType = "SessionFinished"
)

type ResearchEvent struct {
	Type      ResearchEventType
	SessionID string
	Repo      domain.RepoIdentity
	Language  string
	Topic     string
	MaxTurns  int
	Turn      *domain.TurnRecord // TurnRecorded
	Status    string             // SessionFinished
	Error     string
}

func (e ResearchEvent) EventType() ResearchEventType { return e.Type }

type ResearchEventHandler = Handler[ResearchEvent]
type ResearchEventBus = Bus[ResearchEventType, ResearchEvent]

func NewResearchEventBus() *ResearchEventBus {
	return NewBus[ResearchEventType, ResearchEvent]()
}
