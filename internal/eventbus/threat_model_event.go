package eventbus

import "github.com/opendeepwiki/deepresearch/internal/domain"

type ThreatModelEventType string

const (
	ThreatModelEventGenerated ThreatModelEventType = "ThreatModelGenerated"
)

type ThreatModelEvent struct {
	Type        ThreatModelEventType
	ID          string
	Repo        domain.RepoIdentity
	Query       string
	FormatHint  domain.FormatHint
	Diagram     string
	Document    string
	Valid       bool
	Violations  []domain.Violation
	Attempts    int
	Interrupted bool
}

func (e ThreatModelEvent) EventType() ThreatModelEventType { return e.Type }

type ThreatModelEventHandler = Handler[ThreatModelEvent]
type ThreatModelEventBus = Bus[ThreatModelEventType, ThreatModelEvent]

func NewThreatModelEventBus() *ThreatModelEventBus {
	return NewBus[ThreatModelEventType, ThreatModelEvent]()
}
