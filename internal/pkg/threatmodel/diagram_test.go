package threatmodel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const importDiagram = "Here is the diagram:\n```yaml\n" + `data_assets:
  UserCredentials:
    id: user-credentials
    description: User login credentials
technical_assets:
  WebApp:
    id: web-app
    type: process
    communication_links:
      AuthCall:
        target: auth-service
        data_assets_sent: [user-credentials]
  AuthService:
    type: process
    communication_links:
      DatabaseConnection:
        target: user-db
        data_assets_received: [user-credentials]
  User DB:
    id: user-db
    type: datastore
trust_boundaries:
  Internal:
    id: internal
    technical_assets_inside: [web-app, user-db]
` + "```\n"

func TestParseDiagram(t *testing.T) {
	d, err := ParseDiagram(importDiagram)
	require.NoError(t, err)
	assert.Len(t, d.DataAssets, 1)
	assert.Len(t, d.TechnicalAssets, 3)
	assert.Equal(t, "auth-service", d.TechnicalAssets["WebApp"].CommunicationLinks["AuthCall"].Target)
	assert.Equal(t, []string{"web-app", "user-db"}, d.TrustBoundaries["Internal"].TechnicalAssetsInside)
}

func TestParseDiagramRejectsGraphNotation(t *testing.T) {
	_, err := ParseDiagram("```mermaid\nflowchart TD\n  A[User] --> B[App]\n```")
	assert.True(t, errors.Is(err, ErrNotStructuredDiagram))

	_, err = ParseDiagram("[User] --(HTTPS/Login)--> [Auth Service]")
	assert.True(t, errors.Is(err, ErrNotStructuredDiagram))
}

func TestDerivableNames(t *testing.T) {
	d, err := ParseDiagram(importDiagram)
	require.NoError(t, err)

	names := d.DerivableNames()
	for _, want := range []string{"web-app", "auth-service", "user-db"} {
		assert.Contains(t, names, want)
	}
}

func TestDiagramValidate(t *testing.T) {
	d, err := ParseDiagram(importDiagram)
	require.NoError(t, err)

	got := d.Validate()
	// AuthService 没有 id，WebApp 的链路目标因此悬空
	assert.True(t, mentions(got, "technical_assets.AuthService: technical asset has no id"), "violations: %v", got)
	assert.True(t, mentions(got, "link target 'auth-service'"), "violations: %v", got)
	assert.False(t, mentions(got, "user-credentials"), "violations: %v", got)
}

func TestCheckConsistencyRoundTrip(t *testing.T) {
	d, err := ParseDiagram(importDiagram)
	require.NoError(t, err)

	doc := loadValid(t)
	assert.Empty(t, CheckConsistency(doc, d))

	components := doc["components"].([]any)
	components = append(components, map[string]any{
		"symbolic_name": "payment-gateway",
		"title":         "Payments",
		"description":   "Not in the diagram",
		"trust_zone":    "internal",
	})
	doc["components"] = components

	got := CheckConsistency(doc, d)
	require.Len(t, got, 1)
	assert.Equal(t, "/components/2/symbolic_name", got[0].Path)
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"WebApp":        "web-app",
		"APIGateway":    "api-gateway",
		"User DB":       "user-db",
		"user_db":       "user-db",
		"  Auth  ":      "auth",
		"Service2Queue": "service2-queue",
		"already-slug":  "already-slug",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}
