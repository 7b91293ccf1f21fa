package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/opendeepwiki/deepresearch/config"
	"github.com/opendeepwiki/deepresearch/internal/domain"
	"github.com/opendeepwiki/deepresearch/internal/eventbus"
	"github.com/opendeepwiki/deepresearch/internal/model"
	"github.com/opendeepwiki/deepresearch/internal/pkg/llm"
	"github.com/opendeepwiki/deepresearch/internal/pkg/threatmodel"
	"github.com/opendeepwiki/deepresearch/internal/repository"
	"github.com/opendeepwiki/deepresearch/internal/service"
	"github.com/opendeepwiki/deepresearch/internal/service/research"
	"github.com/opendeepwiki/deepresearch/internal/service/runner"
	"github.com/opendeepwiki/deepresearch/internal/subscriber"
)

type echoSource struct{}

func (echoSource) Dispatcher(ctx context.Context, model string, onChunk llm.ChunkFunc) (domain.DispatchFunc, error) {
	return func(ctx context.Context, env *domain.Envelope) (string, error) {
		return env.OpeningMarker + "\nfindings", nil
	}, nil
}

type apiFixture struct {
	engine *gin.Engine
	tmRepo repository.ThreatModelRepository
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.ResearchSession{}, &model.ResearchTurn{}, &model.ThreatModel{}))

	sessions := repository.NewSessionRepository(db)
	bus := eventbus.NewResearchEventBus()
	subscriber.NewResearchSubscriber(sessions, repository.NewTurnRepository(db)).Register(bus)
	researchSvc := service.NewResearchService(config.Default(), echoSource{}, research.NewOrchestrator(0, bus), sessions)
	r, err := runner.NewRunner(2, 8, researchSvc)
	require.NoError(t, err)
	researchSvc.SetRunner(r)
	r.Start()
	t.Cleanup(func() { r.Stop(time.Second) })

	v, err := threatmodel.NewValidator()
	require.NoError(t, err)
	tmRepo := repository.NewThreatModelRepository(db)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	rh := NewResearchHandler(researchSvc)
	th := NewThreatModelHandler(service.NewThreatModelService(v, tmRepo))
	engine.POST("/api/research", rh.Create)
	engine.GET("/api/research", rh.List)
	engine.GET("/api/research/status", rh.Status)
	engine.GET("/api/research/:id", rh.Get)
	engine.POST("/api/research/:id/cancel", rh.Cancel)
	engine.POST("/api/threat-models/validate", th.Validate)
	engine.GET("/api/threat-models", th.List)
	engine.GET("/api/threat-models/:id", th.Get)
	return &apiFixture{engine: engine, tmRepo: tmRepo}
}

func (f *apiFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestResearchAPILifecycle(t *testing.T) {
	api := newAPI(t)

	w := api.do(http.MethodPost, "/api/research", map[string]any{
		"repo_url":  "https://github.com/example/shop",
		"topic":     "authentication flow",
		"max_turns": 3,
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var created model.ResearchSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	var got model.ResearchSession
	require.Eventually(t, func() bool {
		w := api.do(http.MethodGet, "/api/research/"+created.ID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		_ = json.Unmarshal(w.Body.Bytes(), &got)
		return got.Status == "completed"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, got.Turns, 3)

	w = api.do(http.MethodGet, "/api/research", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodGet, "/api/research/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "queue_length")

	w = api.do(http.MethodPost, "/api/research/"+created.ID+"/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResearchAPIValidation(t *testing.T) {
	api := newAPI(t)

	w := api.do(http.MethodPost, "/api/research", map[string]any{"repo_url": "https://github.com/example/shop"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, "/api/research", map[string]any{
		"repo_url": "https://github.com/example/shop", "topic": "x", "max_turns": 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/research/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestThreatModelAPI(t *testing.T) {
	api := newAPI(t)
	doc, err := os.ReadFile("../pkg/threatmodel/testdata/valid.json")
	require.NoError(t, err)

	w := api.do(http.MethodPost, "/api/threat-models/validate", map[string]any{"document": string(doc)})
	require.Equal(t, http.StatusOK, w.Code)
	var report service.ValidationReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.Valid)

	w = api.do(http.MethodPost, "/api/threat-models/validate", map[string]any{"document": `{"version":"1.0"}`})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.False(t, report.Valid)

	w = api.do(http.MethodPost, "/api/threat-models/validate", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.NoError(t, api.tmRepo.Create(&model.ThreatModel{ID: "tm1", RepoURL: "https://github.com/example/shop"}))
	w = api.do(http.MethodGet, "/api/threat-models/tm1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = api.do(http.MethodGet, "/api/threat-models/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = api.do(http.MethodGet, "/api/threat-models?repo_url=https://github.com/example/shop", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tm1")
}
