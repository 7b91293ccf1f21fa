package subscriber

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/opendeepwiki/deepresearch/internal/domain"
	"github.com/opendeepwiki/deepresearch/internal/eventbus"
	"github.com/opendeepwiki/deepresearch/internal/model"
	"github.com/opendeepwiki/deepresearch/internal/repository"
	"github.com/opendeepwiki/deepresearch/internal/service/research"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.ResearchSession{}, &model.ResearchTurn{}, &model.ThreatModel{}))
	return db
}

func TestResearchSubscriberPersistsWholeSession(t *testing.T) {
	db := openDB(t)
	sessions := repository.NewSessionRepository(db)
	bus := eventbus.NewResearchEventBus()
	NewResearchSubscriber(sessions, repository.NewTurnRepository(db)).Register(bus)

	repo := domain.NewRepoIdentity("github", "https://github.com/example/shop")
	s, err := research.NewSession(repo, domain.Language{Code: "en"}, "authentication flow", 3)
	require.NoError(t, err)
	_, err = research.NewOrchestrator(0, bus).RunSession(context.Background(), s,
		func(ctx context.Context, env *domain.Envelope) (string, error) {
			return env.OpeningMarker + "\nbody", nil
		})
	require.NoError(t, err)

	stored, err := sessions.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", stored.Status)
	assert.Equal(t, "shop", stored.RepoName)
	assert.Equal(t, "en", stored.Language)
	assert.Equal(t, 3, stored.MaxTurns)
	assert.NotNil(t, stored.CompletedAt)
	require.Len(t, stored.Turns, 3)
	assert.Equal(t, "first", stored.Turns[0].Phase)
	assert.Equal(t, "final", stored.Turns[2].Phase)
	assert.Equal(t, "authentication flow", stored.Turns[1].Query)

	var env domain.Envelope
	require.NoError(t, json.Unmarshal([]byte(stored.Turns[2].Envelope), &env))
	assert.Equal(t, domain.MarkerFinalConclusion, env.OpeningMarker)
}

func TestResearchSubscriberUpdatesPrecreatedSession(t *testing.T) {
	db := openDB(t)
	sessions := repository.NewSessionRepository(db)
	require.NoError(t, sessions.Create(&model.ResearchSession{ID: "s1", Topic: "caching", MaxTurns: 2}))

	sub := NewResearchSubscriber(sessions, repository.NewTurnRepository(db))
	require.NoError(t, sub.handleStarted(context.Background(), eventbus.ResearchEvent{
		Type: eventbus.ResearchEventSessionStarted, SessionID: "s1", Topic: "caching",
	}))
	require.NoError(t, sub.handleTurn(context.Background(), eventbus.ResearchEvent{
		Type: eventbus.ResearchEventTurnRecorded, SessionID: "s1",
		Turn: &domain.TurnRecord{Index: 1, Phase: domain.FirstPhase(2), Response: "partial", Interrupted: true},
	}))
	require.NoError(t, sub.handleFinished(context.Background(), eventbus.ResearchEvent{
		Type: eventbus.ResearchEventSessionFinished, SessionID: "s1", Status: "incomplete", Error: "eof",
	}))

	stored, err := sessions.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "incomplete", stored.Status)
	assert.Equal(t, "eof", stored.ErrorMsg)
	assert.NotNil(t, stored.StartedAt)
	require.Len(t, stored.Turns, 1)
	assert.True(t, stored.Turns[0].Interrupted)
}

func TestResearchSubscriberRejectsEmptyTurn(t *testing.T) {
	db := openDB(t)
	sub := NewResearchSubscriber(repository.NewSessionRepository(db), repository.NewTurnRepository(db))
	assert.Error(t, sub.handleTurn(context.Background(), eventbus.ResearchEvent{SessionID: "s1"}))
	assert.Error(t, sub.handleStarted(context.Background(), eventbus.ResearchEvent{}))
}

func TestThreatModelSubscriberStoresViolations(t *testing.T) {
	repo := repository.NewThreatModelRepository(openDB(t))
	bus := eventbus.NewThreatModelEventBus()
	NewThreatModelSubscriber(repo).Register(bus)

	require.NoError(t, bus.Publish(context.Background(), eventbus.ThreatModelEvent{
		Type:       eventbus.ThreatModelEventGenerated,
		ID:         "tm1",
		Repo:       domain.NewRepoIdentity("github", "https://github.com/example/shop"),
		FormatHint: domain.FormatConciseGraph,
		Diagram:    "[User] --> [Web App]",
		Violations: []domain.Violation{{Path: "", Message: "missing property 'scope'"}},
		Attempts:   2,
	}))

	got, err := repo.Get("tm1")
	require.NoError(t, err)
	assert.False(t, got.Valid)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "concise_graph", got.FormatHint)
	assert.Contains(t, got.Violations, "scope")
}
