package constrainer

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"k8s.io/klog/v2"

	"github.com/opendeepwiki/deepresearch/internal/domain"
	"github.com/opendeepwiki/deepresearch/internal/prompts"
)

// Request 构造指令所需的全部输入。Schema 仅 threat_model 需要，Phase 仅 research 需要。
type Request struct {
	Goal       domain.Goal
	FormatHint domain.FormatHint
	SchemaID   string
	Schema     string
	Phase      *domain.Phase
	Repo       domain.RepoIdentity
	Language   domain.Language
	Query      string
	History    []domain.Exchange
	Context    []domain.ContextBlock
}

// 各形态需要排除的另一种输出形式
var (
	graphForbidden   = []string{"```yaml", "technical_assets:"}
	importForbidden  = []string{"```mermaid", "flowchart"}
	conciseForbidden = []string{"```mermaid", "technical_assets:"}
	answerForbidden  = []string{"#", "```"}
	schemaForbidden  = []string{"```"}
)

// Build 根据目标构造指令。纯函数，相同的 (goal, format_hint, schema) 得到结构一致的指令，
// 只有嵌入的上下文不同。
func Build(req Request) (*domain.Envelope, error) {
	vars := map[string]any{
		"repo_type":          req.Repo.Type,
		"repo_url":           req.Repo.URL,
		"repo_name":          req.Repo.Name,
		"language_directive": prompts.LanguageDirective(req.Language),
	}

	env := &domain.Envelope{
		Goal:     req.Goal,
		Repo:     req.Repo,
		Language: req.Language,
		Query:    req.Query,
		History:  slices.Clone(req.History),
		Context:  slices.Clone(req.Context),
	}

	var (
		name prompts.Name
		err  error
	)
	switch req.Goal {
	case domain.GoalDiagram:
		name, err = diagram(env, req.FormatHint)
	case domain.GoalThreatModel:
		name, err = threatModel(env, vars, req)
	case domain.GoalDirectAnswer:
		name = prompts.SimpleChat
		env.Shape = domain.OutputShape{Kind: domain.ShapeFreeText}
		env.ForbiddenMarkers = slices.Clone(answerForbidden)
	case domain.GoalResearch:
		name, err = research(env, vars, req.Phase)
	default:
		return nil, &domain.UnsupportedGoalError{Goal: string(req.Goal)}
	}
	if err != nil {
		return nil, err
	}

	guidance, err := prompts.Render(name, vars)
	if err != nil {
		return nil, err
	}
	if req.Goal == domain.GoalDirectAnswer {
		guidance += "\n\n" + prompts.RAGFormatRules
	}
	env.Guidance = guidance

	klog.V(6).Infof("[constrainer.Build] goal=%s, hint=%s, shape=%s, template=%s",
		req.Goal, req.FormatHint, env.Shape.Kind, name)
	return env, nil
}

func diagram(env *domain.Envelope, hint domain.FormatHint) (prompts.Name, error) {
	switch hint {
	case domain.FormatUnspecified, domain.FormatGraph:
		env.Shape = domain.OutputShape{Kind: domain.ShapeGraphNotation}
		env.ForbiddenMarkers = slices.Clone(graphForbidden)
		return prompts.DiagramGraph, nil
	case domain.FormatStructuredImport:
		env.Shape = domain.OutputShape{Kind: domain.ShapeStructuredImport}
		env.ForbiddenMarkers = slices.Clone(importForbidden)
		return prompts.DiagramImport, nil
	case domain.FormatConciseGraph:
		env.Shape = domain.OutputShape{Kind: domain.ShapeGraphNotation}
		env.ForbiddenMarkers = slices.Clone(conciseForbidden)
		return prompts.DiagramConcise, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, hint)
	}
}

func threatModel(env *domain.Envelope, vars map[string]any, req Request) (prompts.Name, error) {
	if strings.TrimSpace(req.Schema) == "" {
		return "", domain.ErrMissingSchema
	}
	sections, err := requiredSections(req.Schema)
	if err != nil {
		return "", err
	}
	vars["required_sections"] = strings.Join(sections, ", ")
	vars["schema_id"] = req.SchemaID
	vars["schema"] = req.Schema

	env.Shape = domain.OutputShape{
		Kind:     domain.ShapeSchemaDocument,
		SchemaID: req.SchemaID,
		Schema:   req.Schema,
	}
	env.ForbiddenMarkers = slices.Clone(schemaForbidden)
	return prompts.Stride, nil
}

func research(env *domain.Envelope, vars map[string]any, phase *domain.Phase) (prompts.Name, error) {
	if phase == nil {
		return "", domain.ErrMissingPhase
	}
	p := *phase
	env.Phase = &p
	env.Shape = domain.OutputShape{Kind: domain.ShapeFreeText}
	env.OpeningMarker = p.OpeningMarker()
	env.ClosingMarker = p.ClosingMarker()

	vars["max_turns"] = p.MaxTurns
	vars["iteration"] = p.Iteration
	vars["opening_marker"] = env.OpeningMarker

	switch p.Kind {
	case domain.PhaseFirst:
		vars["closing_marker"] = env.ClosingMarker
		return prompts.ResearchFirst, nil
	case domain.PhaseIntermediate:
		vars["concludes_next"] = p.ConcludesNext()
		vars["conclude_next_signal"] = prompts.ConcludeNextSignal
		vars["next_iteration"] = p.Iteration + 1
		return prompts.ResearchIntermediate, nil
	case domain.PhaseFinal:
		return prompts.ResearchFinal, nil
	default:
		return "", fmt.Errorf("%w: unknown phase kind %q", domain.ErrMissingPhase, p.Kind)
	}
}

// requiredSections 从 schema 文本中读取顶层 required 列表
func requiredSections(schema string) ([]string, error) {
	var head struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal([]byte(schema), &head); err != nil {
		return nil, errors.Join(domain.ErrMissingSchema, fmt.Errorf("schema is not a JSON document: %w", err))
	}
	return head.Required, nil
}
