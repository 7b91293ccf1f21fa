package phaseselector

import (
	"strings"

	"k8s.io/klog/v2"

	"github.com/opendeepwiki/deepresearch/internal/domain"
	"github.com/opendeepwiki/deepresearch/internal/service/constrainer"
)

// Input 选择阶段所需的会话状态。History 为此前全部已完成的轮次。
type Input struct {
	Repo      domain.RepoIdentity
	Language  domain.Language
	Topic     string
	TurnIndex int
	MaxTurns  int
	History   []domain.TurnRecord
	Context   []domain.ContextBlock
}

// PhaseFor 轮次到阶段的映射：1 为 First，max 为 Final，其余为 Intermediate(i)。
// 越界直接报错，不做截断。
func PhaseFor(turnIndex, maxTurns int) (domain.Phase, error) {
	if maxTurns < 2 {
		return domain.Phase{}, &domain.SequencingError{
			TurnIndex: turnIndex, MaxTurns: maxTurns,
			Reason: "a research run needs at least two turns",
		}
	}
	switch {
	case turnIndex < 1:
		return domain.Phase{}, &domain.SequencingError{
			TurnIndex: turnIndex, MaxTurns: maxTurns,
			Reason: "turn index starts at 1",
		}
	case turnIndex > maxTurns:
		return domain.Phase{}, &domain.SequencingError{
			TurnIndex: turnIndex, MaxTurns: maxTurns,
			Reason: "turn index exceeds max turns",
		}
	case turnIndex == 1:
		return domain.FirstPhase(maxTurns), nil
	case turnIndex == maxTurns:
		return domain.FinalPhase(maxTurns), nil
	default:
		return domain.IntermediatePhase(turnIndex, maxTurns), nil
	}
}

// Select 校验历史与轮次的一致性，并为当前轮次构造指令
func Select(in Input) (*domain.Envelope, error) {
	if strings.TrimSpace(in.Topic) == "" {
		return nil, domain.ErrInvalidTopic
	}
	phase, err := PhaseFor(in.TurnIndex, in.MaxTurns)
	if err != nil {
		return nil, err
	}
	if err := checkHistory(in, phase); err != nil {
		klog.Warningf("[phaseselector.Select] 拒绝构造指令: %v", err)
		return nil, err
	}

	history := make([]domain.Exchange, 0, len(in.History))
	for _, rec := range in.History {
		query := in.Topic
		if rec.Envelope != nil && rec.Envelope.Query != "" {
			query = rec.Envelope.Query
		}
		history = append(history, domain.Exchange{Query: query, Response: rec.Response})
	}

	env, err := constrainer.Build(constrainer.Request{
		Goal:     domain.GoalResearch,
		Phase:    &phase,
		Repo:     in.Repo,
		Language: in.Language,
		Query:    in.Topic,
		History:  history,
		Context:  in.Context,
	})
	if err != nil {
		return nil, err
	}
	klog.V(6).Infof("[phaseselector.Select] turn=%d/%d, phase=%s, history=%d",
		in.TurnIndex, in.MaxTurns, phase, len(history))
	return env, nil
}

// checkHistory 历史必须恰好是 1..turn-1 的有序记录，不能缺、不能重、不能回退
func checkHistory(in Input, phase domain.Phase) error {
	seqErr := func(reason string) error {
		return &domain.SequencingError{
			TurnIndex:  in.TurnIndex,
			MaxTurns:   in.MaxTurns,
			HistoryLen: len(in.History),
			Reason:     reason,
		}
	}

	if phase.Kind == domain.PhaseFirst {
		if len(in.History) > 0 {
			return seqErr("first phase must start with empty history")
		}
		return nil
	}
	if len(in.History) == 0 {
		return seqErr(string(phase.Kind) + " phase requires prior turns")
	}
	if len(in.History) != in.TurnIndex-1 {
		return seqErr("history length must equal turn index - 1")
	}
	for i, rec := range in.History {
		if rec.Index != i+1 {
			return seqErr("history indices must be 1..turn-1 in order")
		}
	}
	return nil
}
