package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"k8s.io/klog/v2"

	"github.com/opendeepwiki/deepresearch/config"
	"github.com/opendeepwiki/deepresearch/internal/eventbus"
	"github.com/opendeepwiki/deepresearch/internal/handler"
	"github.com/opendeepwiki/deepresearch/internal/mcpserver"
	"github.com/opendeepwiki/deepresearch/internal/pkg/database"
	"github.com/opendeepwiki/deepresearch/internal/pkg/llm"
	"github.com/opendeepwiki/deepresearch/internal/pkg/threatmodel"
	"github.com/opendeepwiki/deepresearch/internal/repository"
	"github.com/opendeepwiki/deepresearch/internal/router"
	"github.com/opendeepwiki/deepresearch/internal/service"
	"github.com/opendeepwiki/deepresearch/internal/service/chat"
	"github.com/opendeepwiki/deepresearch/internal/service/research"
	"github.com/opendeepwiki/deepresearch/internal/service/runner"
	"github.com/opendeepwiki/deepresearch/internal/service/threatanalysis"
	"github.com/opendeepwiki/deepresearch/internal/subscriber"
)

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		klog.Warningf("加载 .env 失败: %v", err)
	}

	klog.V(6).Info("服务启动中...")
	cfg := config.GetConfig()

	if cfg.Database.Type != "mysql" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
	}

	// 初始化数据库
	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 初始化 Repository
	sessionRepo := repository.NewSessionRepository(db)
	turnRepo := repository.NewTurnRepository(db)
	threatModelRepo := repository.NewThreatModelRepository(db)

	// 事件总线与落库订阅者
	researchBus := eventbus.NewResearchEventBus()
	subscriber.NewResearchSubscriber(sessionRepo, turnRepo).Register(researchBus)
	threatModelBus := eventbus.NewThreatModelEventBus()
	subscriber.NewThreatModelSubscriber(threatModelRepo).Register(threatModelBus)

	validator, err := threatmodel.NewValidator()
	if err != nil {
		log.Fatalf("Failed to compile threat model schema: %v", err)
	}

	// 初始化 Service
	provider := llm.NewProvider(cfg)
	orchestrator := research.NewOrchestrator(cfg.Research.DispatchRetries, researchBus)
	pipeline := threatanalysis.NewPipeline(validator, cfg.ThreatModel.RepairAttempts, cfg.Research.DispatchRetries, threatModelBus)
	chatService := chat.NewService(provider, pipeline, orchestrator, cfg.Research.MaxTurns, cfg.Research.DispatchRetries)
	researchService := service.NewResearchService(cfg, provider, orchestrator, sessionRepo)
	threatModelService := service.NewThreatModelService(validator, threatModelRepo)

	// 后台研究执行器
	sessionRunner, err := runner.NewRunner(cfg.Server.MaxWorkers, cfg.Server.QueueSize, researchService)
	if err != nil {
		log.Fatalf("Failed to initialize runner: %v", err)
	}
	researchService.SetRunner(sessionRunner)
	researchService.RecoverStuck()
	sessionRunner.Start()

	// 设置路由
	r := router.Setup(cfg,
		handler.NewChatHandler(chatService),
		handler.NewResearchHandler(researchService),
		handler.NewThreatModelHandler(threatModelService),
		mcpserver.NewMCPSSEServer(threatModelService),
	)

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: r}
	go func() {
		log.Printf("Server starting on port %s...", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	klog.V(6).Info("服务关闭中...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		klog.Errorf("HTTP 服务关闭失败: %v", err)
	}
	sessionRunner.Stop(30 * time.Second)
}
