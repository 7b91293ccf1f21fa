package threatanalysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/opendeepwiki/deepresearch/internal/domain"
	"github.com/opendeepwiki/deepresearch/internal/eventbus"
	"github.com/opendeepwiki/deepresearch/internal/pkg/threatmodel"
	"github.com/opendeepwiki/deepresearch/internal/service/constrainer"
	"github.com/opendeepwiki/deepresearch/internal/utils"
)

// DiagramContextPath 数据流图作为上下文注入时使用的路径名
const DiagramContextPath = "data-flow-diagram"

// Request 一次分析请求
type Request struct {
	Repo       domain.RepoIdentity
	Language   domain.Language
	Query      string
	FormatHint domain.FormatHint
	Context    []domain.ContextBlock
}

// DiagramResult 数据流图阶段的产物
type DiagramResult struct {
	Text        string
	Shape       domain.ShapeKind
	Structured  *threatmodel.Diagram
	Violations  []domain.Violation // 结构化图内部的引用问题，仅作提示
	Interrupted bool
}

// Result 完整分析结果
type Result struct {
	ID          string
	Diagram     *DiagramResult
	Raw         string // 最后一次威胁模型响应原文
	Document    string // 提取出的 JSON 文档
	Parsed      any
	Attempts    int
	Violations  []domain.Violation
	Interrupted bool
}

// Pipeline 先生成数据流图，再以图为上下文生成受 schema 约束的威胁模型
type Pipeline struct {
	validator       *threatmodel.Validator
	repairAttempts  int
	dispatchRetries int
	bus             *eventbus.ThreatModelEventBus
}

func NewPipeline(validator *threatmodel.Validator, repairAttempts, dispatchRetries int, bus *eventbus.ThreatModelEventBus) *Pipeline {
	return &Pipeline{
		validator:       validator,
		repairAttempts:  repairAttempts,
		dispatchRetries: dispatchRetries,
		bus:             bus,
	}
}

// GenerateDiagram 只生成数据流图。FormatHint 为空时使用 Mermaid 图表示。
func (p *Pipeline) GenerateDiagram(ctx context.Context, req Request, dispatch domain.DispatchFunc) (*DiagramResult, error) {
	env, err := constrainer.Build(constrainer.Request{
		Goal:       domain.GoalDiagram,
		FormatHint: req.FormatHint,
		Repo:       req.Repo,
		Language:   req.Language,
		Query:      req.Query,
		Context:    req.Context,
	})
	if err != nil {
		return nil, err
	}

	text, err := domain.WithRetry(dispatch, p.dispatchRetries)(ctx, env)
	result := &DiagramResult{Shape: env.Shape.Kind}
	if err != nil {
		var ci *domain.ChannelInterruption
		if !errors.As(err, &ci) {
			return nil, err
		}
		klog.Warningf("[Pipeline.GenerateDiagram] 通道中断，保留部分图: repo=%s, partial=%d", req.Repo.Name, len(ci.Partial))
		result.Text = ci.Partial
		result.Interrupted = true
		// 取消或超时时连同部分图一起返回 ctx 的错误
		return result, ctx.Err()
	}
	result.Text = text

	if env.Shape.Kind == domain.ShapeStructuredImport {
		diagram, perr := threatmodel.ParseDiagram(text)
		if perr != nil {
			klog.Warningf("[Pipeline.GenerateDiagram] 结构化图解析失败: %v", perr)
			result.Violations = []domain.Violation{{Message: perr.Error()}}
		} else {
			result.Structured = diagram
			result.Violations = diagram.Validate()
		}
	}
	return result, nil
}

// Run 执行 图 -> 威胁模型 两阶段。
// 文档不符合 schema 时最多修复 repairAttempts 次，仍失败则连同结果返回 SchemaConformanceError。
// 任一阶段通道中断都返回已有的部分产物，Interrupted 为 true，error 为 nil；
// 若中断由 ctx 取消或超时引起，部分产物照常返回并落库，error 为 ctx 的错误。
func (p *Pipeline) Run(ctx context.Context, req Request, dispatch domain.DispatchFunc) (*Result, error) {
	hint := req.FormatHint
	if hint == domain.FormatUnspecified {
		hint = domain.FormatConciseGraph
	}
	diagramReq := req
	diagramReq.FormatHint = hint

	result := &Result{ID: uuid.NewString()}
	diagram, err := p.GenerateDiagram(ctx, diagramReq, dispatch)
	if diagram == nil {
		return nil, fmt.Errorf("diagram stage: %w", err)
	}
	result.Diagram = diagram
	if diagram.Interrupted {
		result.Interrupted = true
		p.publish(ctx, req, result)
		if err != nil {
			return result, fmt.Errorf("diagram stage: %w", err)
		}
		return result, nil
	}

	blocks := append([]domain.ContextBlock{}, req.Context...)
	blocks = append(blocks, domain.ContextBlock{FilePath: DiagramContextPath, Content: diagram.Text})
	env, err := constrainer.Build(constrainer.Request{
		Goal:     domain.GoalThreatModel,
		SchemaID: threatmodel.SchemaID,
		Schema:   threatmodel.SchemaText(),
		Repo:     req.Repo,
		Language: req.Language,
		Query:    req.Query,
		Context:  blocks,
	})
	if err != nil {
		return nil, err
	}

	send := domain.WithRetry(dispatch, p.dispatchRetries)
	budget := p.repairAttempts
	current := env
	for {
		result.Attempts++
		raw, err := send(ctx, current)
		if err != nil {
			var ci *domain.ChannelInterruption
			if errors.As(err, &ci) {
				klog.Warningf("[Pipeline.Run] 威胁模型阶段通道中断: attempt=%d, partial=%d", result.Attempts, len(ci.Partial))
				result.Raw = ci.Partial
				result.Document = ""
				result.Interrupted = true
				p.publish(ctx, req, result)
				if ctxErr := ctx.Err(); ctxErr != nil {
					return result, fmt.Errorf("threat model stage: %w", ctxErr)
				}
				return result, nil
			}
			return nil, fmt.Errorf("threat model stage: %w", err)
		}
		result.Raw = raw
		result.Document = utils.ExtractJSON(raw)
		if utils.HasCodeFence(raw) {
			klog.V(6).Infof("[Pipeline.Run] 响应包含代码块标记，已剥离: attempt=%d", result.Attempts)
		}

		doc, verr := p.validator.ValidateText(raw)
		result.Parsed = doc
		if verr == nil && diagram.Structured != nil {
			if vs := threatmodel.CheckConsistency(doc, diagram.Structured); len(vs) > 0 {
				verr = &domain.SchemaConformanceError{Violations: vs}
			}
		}
		if verr == nil {
			result.Violations = nil
			klog.V(6).Infof("[Pipeline.Run] 威胁模型通过校验: repo=%s, attempts=%d", req.Repo.Name, result.Attempts)
			p.publish(ctx, req, result)
			return result, nil
		}

		var sce *domain.SchemaConformanceError
		if !errors.As(verr, &sce) {
			return nil, verr
		}
		sce.Attempts = result.Attempts
		result.Violations = sce.Violations
		if budget <= 0 {
			klog.Warningf("[Pipeline.Run] 修复预算耗尽: attempts=%d, violations=%s", result.Attempts, sce.Summary())
			p.publish(ctx, req, result)
			return result, sce
		}
		budget--
		klog.V(6).Infof("[Pipeline.Run] 文档不符合 schema，请求修复: violations=%d, remaining=%d", len(sce.Violations), budget)
		current = env.WithRepair(sce.Summary())
	}
}

func (p *Pipeline) publish(ctx context.Context, req Request, result *Result) {
	if p.bus == nil {
		return
	}
	event := eventbus.ThreatModelEvent{
		Type:        eventbus.ThreatModelEventGenerated,
		ID:          result.ID,
		Repo:        req.Repo,
		Query:       req.Query,
		FormatHint:  req.FormatHint,
		Document:    result.Document,
		Valid:       !result.Interrupted && len(result.Violations) == 0,
		Violations:  result.Violations,
		Attempts:    result.Attempts,
		Interrupted: result.Interrupted,
	}
	if result.Diagram != nil {
		event.Diagram = result.Diagram.Text
	}
	if err := p.bus.Publish(context.WithoutCancel(ctx), event); err != nil {
		klog.Warningf("[Pipeline.publish] 事件处理失败: id=%s, err=%v", result.ID, err)
	}
}
