package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"k8s.io/klog/v2"

	"github.com/opendeepwiki/deepresearch/internal/domain"
	"github.com/opendeepwiki/deepresearch/internal/pkg/llm"
	"github.com/opendeepwiki/deepresearch/internal/prompts"
	"github.com/opendeepwiki/deepresearch/internal/service/constrainer"
	"github.com/opendeepwiki/deepresearch/internal/service/research"
	"github.com/opendeepwiki/deepresearch/internal/service/threatanalysis"
)

var (
	ErrMissingRepo = errors.New("repo_url is required")
	ErrNoMessages  = errors.New("no messages provided")
	ErrLastNotUser = errors.New("last message must be from the user")
	ErrEmptyQuery  = errors.New("query is empty")
)

const (
	turnSeparator      = "\n\n"
	defaultChatHistory = 20
)

// Message 对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request /ws/chat 请求体
type Request struct {
	RepoURL  string    `json:"repo_url"`
	Type     string    `json:"type"`
	Messages []Message `json:"messages"`
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	Language string    `json:"language"`
	MaxTurns int       `json:"max_turns,omitempty"`
	// Context 调用方检索到的代码片段，直接作为上下文嵌入
	Context []domain.ContextBlock `json:"context,omitempty"`
}

// DispatcherSource 按模型名提供生成器通道
type DispatcherSource interface {
	Dispatcher(ctx context.Context, model string, onChunk llm.ChunkFunc) (domain.DispatchFunc, error)
}

// Service 对话入口：按模式路由到直接回答、数据流图、威胁模型或 Deep Research
type Service struct {
	source          DispatcherSource
	pipeline        *threatanalysis.Pipeline
	orchestrator    *research.Orchestrator
	maxTurns        int
	dispatchRetries int
}

func NewService(source DispatcherSource, pipeline *threatanalysis.Pipeline, orchestrator *research.Orchestrator, maxTurns, dispatchRetries int) *Service {
	return &Service{
		source:          source,
		pipeline:        pipeline,
		orchestrator:    orchestrator,
		maxTurns:        maxTurns,
		dispatchRetries: dispatchRetries,
	}
}

// Handle 处理一次请求，输出通过 onChunk 发出。
// 通道中断时已发出的部分即为结果，返回 nil。
func (s *Service) Handle(ctx context.Context, req Request, onChunk llm.ChunkFunc) error {
	if strings.TrimSpace(req.RepoURL) == "" {
		return ErrMissingRepo
	}
	if len(req.Messages) == 0 {
		return ErrNoMessages
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != "user" {
		return ErrLastNotUser
	}
	mode, query := ParseMode(last.Content)
	if query == "" {
		return ErrEmptyQuery
	}

	repo := domain.NewRepoIdentity(req.Type, req.RepoURL)
	lang := prompts.ResolveLanguage(req.Language)
	klog.V(6).Infof("[Chat.Handle] 收到请求: repo=%s, mode=%s, model=%s, language=%s", repo.Name, mode, req.Model, lang.Code)

	switch mode {
	case ModeDiagram:
		return s.diagram(ctx, req, repo, lang, query, onChunk)
	case ModeThreatModel:
		return s.threatModel(ctx, req, repo, lang, query, onChunk)
	case ModeResearch:
		return s.research(ctx, req, repo, lang, query, onChunk)
	default:
		return s.ask(ctx, req, repo, lang, query, onChunk)
	}
}

func (s *Service) ask(ctx context.Context, req Request, repo domain.RepoIdentity, lang domain.Language, query string, onChunk llm.ChunkFunc) error {
	env, err := constrainer.Build(constrainer.Request{
		Goal:     domain.GoalDirectAnswer,
		Repo:     repo,
		Language: lang,
		Query:    query,
		History:  History(req.Messages[:len(req.Messages)-1], defaultChatHistory),
		Context:  req.Context,
	})
	if err != nil {
		return err
	}
	dispatch, err := s.source.Dispatcher(ctx, req.Model, onChunk)
	if err != nil {
		return err
	}
	_, err = domain.WithRetry(dispatch, s.dispatchRetries)(ctx, env)
	return tolerateInterruption(ctx, err)
}

func (s *Service) diagram(ctx context.Context, req Request, repo domain.RepoIdentity, lang domain.Language, query string, onChunk llm.ChunkFunc) error {
	dispatch, err := s.source.Dispatcher(ctx, req.Model, onChunk)
	if err != nil {
		return err
	}
	result, err := s.pipeline.GenerateDiagram(ctx, threatanalysis.Request{
		Repo:       repo,
		Language:   lang,
		Query:      query,
		FormatHint: DiagramHint(query),
		Context:    req.Context,
	}, dispatch)
	if err != nil {
		return err
	}
	for _, v := range result.Violations {
		klog.Warningf("[Chat.diagram] 结构化图存在问题: repo=%s, %s", repo.Name, v)
	}
	return nil
}

// threatModel 文档只在通过校验后一次性发出
func (s *Service) threatModel(ctx context.Context, req Request, repo domain.RepoIdentity, lang domain.Language, query string, onChunk llm.ChunkFunc) error {
	dispatch, err := s.source.Dispatcher(ctx, req.Model, nil)
	if err != nil {
		return err
	}
	result, err := s.pipeline.Run(ctx, threatanalysis.Request{
		Repo:     repo,
		Language: lang,
		Query:    query,
		Context:  req.Context,
	}, dispatch)
	if err != nil {
		return err
	}
	if result.Interrupted {
		klog.Warningf("[Chat.threatModel] 生成被中断: repo=%s, id=%s", repo.Name, result.ID)
		if result.Raw == "" {
			return nil
		}
		return onChunk(result.Raw)
	}
	return onChunk(result.Document)
}

// research 各轮输出依次流出，轮与轮之间以空行分隔
func (s *Service) research(ctx context.Context, req Request, repo domain.RepoIdentity, lang domain.Language, query string, onChunk llm.ChunkFunc) error {
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = s.maxTurns
	}
	turn := 0
	emitted := 0
	dispatch, err := s.source.Dispatcher(ctx, req.Model, func(chunk string) error {
		if emitted > 0 && emitted < turn {
			if err := onChunk(turnSeparator); err != nil {
				return err
			}
		}
		emitted = turn
		return onChunk(chunk)
	})
	if err != nil {
		return err
	}
	counted := func(ctx context.Context, env *domain.Envelope) (string, error) {
		if env.Phase != nil {
			turn = env.Phase.Iteration
		}
		return dispatch(ctx, env)
	}

	rec, err := s.orchestrator.Run(ctx, research.RunRequest{
		Repo:     repo,
		Language: lang,
		Topic:    query,
		MaxTurns: maxTurns,
		Context:  req.Context,
	}, counted)
	if err != nil {
		return err
	}
	if rec.Interrupted {
		klog.Warningf("[Chat.research] 研究提前结束: repo=%s, turn=%d/%d", repo.Name, rec.Index, maxTurns)
	}
	return nil
}

// History 把对话消息配对为历史问答，只保留最近 limit 组
func History(messages []Message, limit int) []domain.Exchange {
	var out []domain.Exchange
	for i := 0; i+1 < len(messages); i++ {
		if messages[i].Role == "user" && messages[i+1].Role == "assistant" {
			out = append(out, domain.Exchange{Query: stripTag(messages[i].Content), Response: messages[i+1].Content})
			i++
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func tolerateInterruption(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(err, domain.ErrChannelInterrupted) {
		klog.Warningf("[Chat] 通道中断，已发送部分内容: %v", err)
		return nil
	}
	return fmt.Errorf("dispatch: %w", err)
}
