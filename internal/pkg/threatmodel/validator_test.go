package threatmodel

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendeepwiki/deepresearch/internal/domain"
)

func loadValid(t *testing.T) map[string]any {
	t.Helper()
	data, err := os.ReadFile("testdata/valid.json")
	require.NoError(t, err)
	doc, err := Parse(string(data))
	require.NoError(t, err)
	root, ok := doc.(map[string]any)
	require.True(t, ok)
	return root
}

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	require.NoError(t, err)
	return v
}

func conformanceError(t *testing.T, err error) *domain.SchemaConformanceError {
	t.Helper()
	require.Error(t, err)
	var sce *domain.SchemaConformanceError
	require.True(t, errors.As(err, &sce), "expected SchemaConformanceError, got %T", err)
	assert.True(t, errors.Is(err, domain.ErrSchemaConformance))
	return sce
}

func mentions(violations []domain.Violation, needle string) bool {
	for _, v := range violations {
		if strings.Contains(v.String(), needle) {
			return true
		}
	}
	return false
}

func TestValidateAcceptsConformingDocument(t *testing.T) {
	v := newValidator(t)
	assert.NoError(t, v.Validate(loadValid(t)))
}

func TestValidateRejectsMissingScope(t *testing.T) {
	v := newValidator(t)
	doc := loadValid(t)
	delete(doc, "scope")

	sce := conformanceError(t, v.Validate(doc))
	assert.True(t, mentions(sce.Violations, "scope"), "violations: %s", sce.Summary())
}

func TestValidateRejectsMalformedSymbolicName(t *testing.T) {
	v := newValidator(t)
	doc := loadValid(t)
	zones := doc["trust_zones"].([]any)
	zones[0].(map[string]any)["symbolic_name"] = "Public_Internet"

	sce := conformanceError(t, v.Validate(doc))
	assert.True(t, mentions(sce.Violations, "/trust_zones/0/symbolic_name"), "violations: %s", sce.Summary())
}

func TestValidateRejectsExtraneousTopLevelField(t *testing.T) {
	v := newValidator(t)
	doc := loadValid(t)
	doc["summary"] = "not part of the format"

	sce := conformanceError(t, v.Validate(doc))
	assert.True(t, mentions(sce.Violations, "summary"), "violations: %s", sce.Summary())
}

func TestValidateRejectsRiskScoreOutOfRange(t *testing.T) {
	v := newValidator(t)
	doc := loadValid(t)
	risks := doc["risks"].([]any)
	risks[0].(map[string]any)["score"] = json.Number("30")

	sce := conformanceError(t, v.Validate(doc))
	assert.True(t, mentions(sce.Violations, "/risks/0/score"), "violations: %s", sce.Summary())
}

func TestValidateReportsDanglingReferences(t *testing.T) {
	v := newValidator(t)
	doc := loadValid(t)
	threats := doc["threats"].([]any)
	threats[0].(map[string]any)["threat_persona"] = "insider"
	controls := doc["controls"].([]any)
	controls[0].(map[string]any)["threats"] = []any{"sql-injection"}

	sce := conformanceError(t, v.Validate(doc))
	assert.True(t, mentions(sce.Violations, "/threats/0/threat_persona"), "violations: %s", sce.Summary())
	assert.True(t, mentions(sce.Violations, "/controls/0/threats/0"), "violations: %s", sce.Summary())
}

func TestValidateTextToleratesFence(t *testing.T) {
	v := newValidator(t)
	data, err := os.ReadFile("testdata/valid.json")
	require.NoError(t, err)

	doc, err := v.ValidateText("```json\n" + string(data) + "\n```")
	require.NoError(t, err)
	assert.NotNil(t, doc)
}

func TestValidateTextToleratesBracesInLeadingProse(t *testing.T) {
	v := newValidator(t)
	data, err := os.ReadFile("testdata/valid.json")
	require.NoError(t, err)

	_, err = v.ValidateText("Threat model for {shop}:\n" + string(data))
	require.NoError(t, err)
}

func TestValidateTextRejectsNonJSON(t *testing.T) {
	v := newValidator(t)
	_, err := v.ValidateText("I could not produce a threat model.")
	sce := conformanceError(t, err)
	assert.Len(t, sce.Violations, 1)
}

func TestSchemaTextDeclaresRequiredSections(t *testing.T) {
	text := SchemaText()
	assert.Contains(t, text, SchemaID)
	for _, section := range RequiredSections {
		assert.Contains(t, text, "\""+section+"\"")
	}
}

func TestStructuralViolationsCarryInstancePaths(t *testing.T) {
	v := newValidator(t)
	doc := loadValid(t)
	delete(doc, "scope")
	components := doc["components"].([]any)
	components[0].(map[string]any)["symbolic_name"] = "Web App"

	violations := v.structural(doc)
	require.NotEmpty(t, violations)
	var paths []string
	for _, vi := range violations {
		assert.NotEmpty(t, vi.Message)
		assert.NotContains(t, vi.Message, "validation failed")
		paths = append(paths, vi.Path)
	}
	assert.Contains(t, paths, "")
	assert.Contains(t, paths, "/components/0/symbolic_name")
}

func TestInstancePathEscapesTokens(t *testing.T) {
	assert.Equal(t, "", instancePath(nil))
	assert.Equal(t, "/components/0/a~1b~0c", instancePath([]string{"components", "0", "a/b~c"}))
}
