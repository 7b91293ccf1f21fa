package domain

import (
	"errors"
	"fmt"
)

// PhaseKind Deep Research 的阶段类型
type PhaseKind string

const (
	PhaseFirst        PhaseKind = "first"
	PhaseIntermediate PhaseKind = "intermediate"
	PhaseFinal        PhaseKind = "final"
)

// 固定标记
const (
	MarkerResearchPlan    = "## Research Plan"
	MarkerNextSteps       = "## Next Steps"
	MarkerResearchUpdate  = "## Research Update"
	MarkerFinalConclusion = "## Final Conclusion"
)

// ErrNoTransition 终态没有后继阶段
var ErrNoTransition = errors.New("final phase has no successor")

// Phase 阶段，闭合的带标签变体：First / Intermediate(n) / Final。
// 只能通过构造函数或 Next 得到。
type Phase struct {
	Kind      PhaseKind `json:"kind"`
	Iteration int       `json:"iteration"`
	MaxTurns  int       `json:"max_turns"`
}

func FirstPhase(maxTurns int) Phase {
	return Phase{Kind: PhaseFirst, Iteration: 1, MaxTurns: maxTurns}
}

func IntermediatePhase(iteration, maxTurns int) Phase {
	return Phase{Kind: PhaseIntermediate, Iteration: iteration, MaxTurns: maxTurns}
}

func FinalPhase(maxTurns int) Phase {
	return Phase{Kind: PhaseFinal, Iteration: maxTurns, MaxTurns: maxTurns}
}

// Next 向前迁移一步，Final 没有出边
func (p Phase) Next() (Phase, error) {
	switch p.Kind {
	case PhaseFirst, PhaseIntermediate:
		n := p.Iteration + 1
		if n >= p.MaxTurns {
			return FinalPhase(p.MaxTurns), nil
		}
		return IntermediatePhase(n, p.MaxTurns), nil
	case PhaseFinal:
		return Phase{}, ErrNoTransition
	default:
		panic(fmt.Sprintf("unknown phase kind %q", p.Kind))
	}
}

// IsTerminal 是否终态
func (p Phase) IsTerminal() bool {
	return p.Kind == PhaseFinal
}

// ConcludesNext 下一轮是否为总结轮
func (p Phase) ConcludesNext() bool {
	return p.Kind == PhaseIntermediate && p.Iteration == p.MaxTurns-1
}

// OpeningMarker 该阶段输出必须使用的开头
func (p Phase) OpeningMarker() string {
	switch p.Kind {
	case PhaseFirst:
		return MarkerResearchPlan
	case PhaseIntermediate:
		return fmt.Sprintf("%s %d", MarkerResearchUpdate, p.Iteration)
	case PhaseFinal:
		return MarkerFinalConclusion
	default:
		panic(fmt.Sprintf("unknown phase kind %q", p.Kind))
	}
}

// ClosingMarker 该阶段输出必须使用的结尾标记，仅 First 有
func (p Phase) ClosingMarker() string {
	if p.Kind == PhaseFirst {
		return MarkerNextSteps
	}
	return ""
}

func (p Phase) String() string {
	if p.Kind == PhaseIntermediate {
		return fmt.Sprintf("%s(%d)", p.Kind, p.Iteration)
	}
	return string(p.Kind)
}
