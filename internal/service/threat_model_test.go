package service

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendeepwiki/deepresearch/internal/model"
	"github.com/opendeepwiki/deepresearch/internal/pkg/threatmodel"
	"github.com/opendeepwiki/deepresearch/internal/repository"
)

func newThreatModelService(t *testing.T) (*ThreatModelService, repository.ThreatModelRepository) {
	t.Helper()
	v, err := threatmodel.NewValidator()
	require.NoError(t, err)
	repo := repository.NewThreatModelRepository(openDB(t))
	return NewThreatModelService(v, repo), repo
}

func validDocument(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../pkg/threatmodel/testdata/valid.json")
	require.NoError(t, err)
	return string(data)
}

func TestThreatModelServiceValidate(t *testing.T) {
	svc, _ := newThreatModelService(t)

	report, err := svc.Validate(validDocument(t), "")
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Violations)

	report, err = svc.Validate("not json at all", "")
	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.Len(t, report.Violations, 1)
}

func TestThreatModelServiceValidateAgainstDiagram(t *testing.T) {
	svc, _ := newThreatModelService(t)
	diagram := "technical_assets:\n  WebApp:\n    id: web-app\n"

	report, err := svc.Validate(validDocument(t), diagram)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	var found bool
	for _, v := range report.Violations {
		if strings.Contains(v.Message, "auth-service") {
			found = true
		}
	}
	assert.True(t, found, "violations: %+v", report.Violations)

	_, err = svc.Validate(validDocument(t), "just text")
	assert.Error(t, err)
}

func TestThreatModelServiceGetAndList(t *testing.T) {
	svc, repo := newThreatModelService(t)
	require.NoError(t, repo.Create(&model.ThreatModel{ID: "tm1", RepoURL: "https://github.com/example/shop"}))

	got, err := svc.Get("tm1")
	require.NoError(t, err)
	assert.Equal(t, "tm1", got.ID)

	_, err = svc.Get("missing")
	assert.ErrorIs(t, err, ErrThreatModelNotFound)

	list, err := svc.List("https://github.com/example/shop", 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
