package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"k8s.io/klog/v2"

	"github.com/opendeepwiki/deepresearch/config"
	"github.com/opendeepwiki/deepresearch/internal/domain"
	"github.com/opendeepwiki/deepresearch/internal/model"
	"github.com/opendeepwiki/deepresearch/internal/pkg/llm"
	"github.com/opendeepwiki/deepresearch/internal/prompts"
	"github.com/opendeepwiki/deepresearch/internal/repository"
	"github.com/opendeepwiki/deepresearch/internal/service/research"
	"github.com/opendeepwiki/deepresearch/internal/service/runner"
	"github.com/opendeepwiki/deepresearch/internal/service/statemachine"
)

var (
	ErrSessionNotFound = errors.New("research session not found")
	ErrRunnerNotReady  = errors.New("research runner is not initialized")
)

// CreateResearchRequest 后台研究请求
type CreateResearchRequest struct {
	RepoURL  string                `json:"repo_url" binding:"required"`
	RepoType string                `json:"type"`
	Topic    string                `json:"topic" binding:"required"`
	Language string                `json:"language"`
	MaxTurns int                   `json:"max_turns"`
	Model    string                `json:"model"`
	Context  []domain.ContextBlock `json:"context"`
}

// DispatcherSource 按模型名提供生成器通道
type DispatcherSource interface {
	Dispatcher(ctx context.Context, model string, onChunk llm.ChunkFunc) (domain.DispatchFunc, error)
}

type pendingRun struct {
	session *research.Session
	model   string
}

// ResearchService 管理后台研究会话：创建、排队、执行、取消与查询
type ResearchService struct {
	cfg          *config.Config
	source       DispatcherSource
	orchestrator *research.Orchestrator
	sessionRepo  repository.SessionRepository
	sm           *statemachine.SessionStateMachine
	runner       *runner.Runner

	mu      sync.Mutex
	pending map[string]*pendingRun
}

func NewResearchService(cfg *config.Config, source DispatcherSource, orchestrator *research.Orchestrator, sessionRepo repository.SessionRepository) *ResearchService {
	return &ResearchService{
		cfg:          cfg,
		source:       source,
		orchestrator: orchestrator,
		sessionRepo:  sessionRepo,
		sm:           statemachine.NewSessionStateMachine(),
		pending:      make(map[string]*pendingRun),
	}
}

// SetRunner runner 以本服务为执行器，创建后回填
func (s *ResearchService) SetRunner(r *runner.Runner) {
	s.runner = r
}

// Create 创建会话并排队，入队失败时会话直接标记为 failed
func (s *ResearchService) Create(ctx context.Context, req CreateResearchRequest) (*model.ResearchSession, error) {
	if s.runner == nil {
		return nil, ErrRunnerNotReady
	}
	maxTurns := req.MaxTurns
	if maxTurns == 0 {
		maxTurns = s.cfg.Research.MaxTurns
	}
	repo := domain.NewRepoIdentity(req.RepoType, strings.TrimSpace(req.RepoURL))
	lang := prompts.ResolveLanguage(req.Language)
	session, err := research.NewSession(repo, lang, req.Topic, maxTurns)
	if err != nil {
		return nil, err
	}
	session.Context = req.Context

	record := &model.ResearchSession{
		ID:       session.ID,
		RepoType: repo.Type,
		RepoURL:  repo.URL,
		RepoName: repo.Name,
		Topic:    session.Topic(),
		Language: lang.Code,
		MaxTurns: maxTurns,
		Status:   string(statemachine.SessionStatusPending),
	}
	if err := s.sessionRepo.Create(record); err != nil {
		return nil, fmt.Errorf("保存会话失败: %w", err)
	}

	s.mu.Lock()
	s.pending[session.ID] = &pendingRun{session: session, model: req.Model}
	s.mu.Unlock()

	if err := s.runner.Enqueue(runner.NewJob(session.ID, s.cfg.Server.JobTimeout)); err != nil {
		s.takePending(session.ID)
		s.markAbandoned(session.ID, statemachine.SessionStatusFailed, err)
		record.Status = string(statemachine.SessionStatusFailed)
		record.ErrorMsg = err.Error()
		return record, fmt.Errorf("会话入队失败: %w", err)
	}
	klog.V(6).Infof("[ResearchService.Create] 会话已入队: sessionID=%s, repo=%s, maxTurns=%d", session.ID, repo.Name, maxTurns)
	return record, nil
}

// ExecuteSession 由 runner 调用
func (s *ResearchService) ExecuteSession(ctx context.Context, sessionID string) error {
	run, ok := s.takePending(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	dispatch, err := s.source.Dispatcher(ctx, run.model, nil)
	if err != nil {
		s.markAbandoned(sessionID, statemachine.SessionStatusFailed, err)
		return err
	}
	if err := ctx.Err(); err != nil {
		s.markAbandoned(sessionID, statemachine.SessionStatusCanceled, err)
		return err
	}
	rec, err := s.orchestrator.RunSession(ctx, run.session, dispatch)
	if err != nil {
		return err
	}
	klog.V(6).Infof("[ResearchService.ExecuteSession] 会话结束: sessionID=%s, status=%s, lastTurn=%d",
		sessionID, run.session.Status(), rec.Index)
	return nil
}

// AbandonSession 未开始执行就被移除的会话
func (s *ResearchService) AbandonSession(sessionID string, reason error) {
	if _, ok := s.takePending(sessionID); !ok {
		return
	}
	status := statemachine.SessionStatusFailed
	if errors.Is(reason, runner.ErrJobCanceled) || errors.Is(reason, runner.ErrRunnerStopped) {
		status = statemachine.SessionStatusCanceled
	}
	s.markAbandoned(sessionID, status, reason)
}

func (s *ResearchService) Cancel(sessionID string) bool {
	if s.runner == nil {
		return false
	}
	return s.runner.Cancel(sessionID)
}

func (s *ResearchService) Get(sessionID string) (*model.ResearchSession, error) {
	session, err := s.sessionRepo.Get(sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

func (s *ResearchService) List(limit int) ([]model.ResearchSession, error) {
	return s.sessionRepo.List(limit)
}

func (s *ResearchService) QueueStatus() *runner.QueueStatus {
	if s.runner == nil {
		return &runner.QueueStatus{}
	}
	return s.runner.GetQueueStatus()
}

// RecoverStuck 启动时清理上次异常退出遗留的 running 会话
func (s *ResearchService) RecoverStuck() {
	n, err := s.sessionRepo.CleanupStuck(0)
	if err != nil {
		klog.Errorf("[ResearchService.RecoverStuck] 清理遗留会话失败: %v", err)
		return
	}
	if n > 0 {
		klog.Warningf("[ResearchService.RecoverStuck] 已将 %d 个遗留会话标记为失败", n)
	}
}

func (s *ResearchService) takePending(sessionID string) (*pendingRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.pending[sessionID]
	if ok {
		delete(s.pending, sessionID)
	}
	return run, ok
}

func (s *ResearchService) markAbandoned(sessionID string, status statemachine.SessionStatus, reason error) {
	if err := s.sm.ValidateTransition(statemachine.SessionStatusPending, status); err != nil {
		klog.Errorf("[ResearchService.markAbandoned] %v", err)
		return
	}
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	if err := s.sessionRepo.UpdateStatus(sessionID, string(status), msg); err != nil {
		klog.Errorf("[ResearchService.markAbandoned] 更新会话状态失败: sessionID=%s, err=%v", sessionID, err)
		return
	}
	klog.V(6).Infof("[ResearchService.markAbandoned] sessionID=%s, status=%s, reason=%s", sessionID, status, msg)
}
