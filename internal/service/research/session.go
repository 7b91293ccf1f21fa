package research

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opendeepwiki/deepresearch/internal/domain"
	"github.com/opendeepwiki/deepresearch/internal/service/phaseselector"
	"github.com/opendeepwiki/deepresearch/internal/service/statemachine"
)

// Session 一次 Deep Research 会话。历史由会话独占，同一会话的轮次严格串行。
// 阶段由 turnIndex 推导，不单独存储。
type Session struct {
	ID       string
	Repo     domain.RepoIdentity
	Language domain.Language
	Context  []domain.ContextBlock

	topic     string
	maxTurns  int
	turnIndex int
	history   []domain.TurnRecord
	status    statemachine.SessionStatus
	createdAt time.Time
}

// NewSession 创建会话，turnIndex 从 1 开始
func NewSession(repo domain.RepoIdentity, lang domain.Language, topic string, maxTurns int) (*Session, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, domain.ErrInvalidTopic
	}
	if _, err := phaseselector.PhaseFor(1, maxTurns); err != nil {
		return nil, err
	}
	return &Session{
		ID:        uuid.NewString(),
		Repo:      repo,
		Language:  lang,
		topic:     topic,
		maxTurns:  maxTurns,
		turnIndex: 1,
		status:    statemachine.SessionStatusPending,
		createdAt: time.Now(),
	}, nil
}

func (s *Session) Topic() string                      { return s.topic }
func (s *Session) MaxTurns() int                      { return s.maxTurns }
func (s *Session) TurnIndex() int                     { return s.turnIndex }
func (s *Session) Status() statemachine.SessionStatus { return s.status }
func (s *Session) CreatedAt() time.Time               { return s.createdAt }

// Phase 当前轮次对应的阶段
func (s *Session) Phase() (domain.Phase, error) {
	return phaseselector.PhaseFor(s.turnIndex, s.maxTurns)
}

// History 已完成轮次的副本
func (s *Session) History() []domain.TurnRecord {
	return slices.Clone(s.history)
}

// SetTopic 只允许在第一轮开始前修改主题，换主题需要新建会话
func (s *Session) SetTopic(topic string) error {
	if s.status != statemachine.SessionStatusPending || len(s.history) > 0 {
		return domain.ErrTopicImmutable
	}
	if strings.TrimSpace(topic) == "" {
		return domain.ErrInvalidTopic
	}
	s.topic = topic
	return nil
}

func (s *Session) selectorInput() phaseselector.Input {
	return phaseselector.Input{
		Repo:      s.Repo,
		Language:  s.Language,
		Topic:     s.topic,
		TurnIndex: s.turnIndex,
		MaxTurns:  s.maxTurns,
		History:   s.history,
		Context:   s.Context,
	}
}

// record 追加一条不可变记录
func (s *Session) record(env *domain.Envelope, response string, interrupted bool) *domain.TurnRecord {
	rec := domain.TurnRecord{
		Index:       s.turnIndex,
		Phase:       *env.Phase,
		Envelope:    env,
		Response:    response,
		Interrupted: interrupted,
		CreatedAt:   time.Now(),
	}
	s.history = append(s.history, rec)
	return &rec
}
