package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opendeepwiki/deepresearch/internal/domain"
	"github.com/opendeepwiki/deepresearch/internal/pkg/threatmodel"
	"github.com/opendeepwiki/deepresearch/internal/prompts"
	"github.com/opendeepwiki/deepresearch/internal/service"
	"github.com/opendeepwiki/deepresearch/internal/service/constrainer"
	"github.com/opendeepwiki/deepresearch/internal/service/phaseselector"
)

// ValidateTool validate_threat_model
type ValidateTool struct {
	threatModels *service.ThreatModelService
}

func NewValidateTool(threatModels *service.ThreatModelService) *ValidateTool {
	return &ValidateTool{threatModels: threatModels}
}

func (t *ValidateTool) Definition() mcp.Tool {
	return mcp.NewTool("validate_threat_model",
		mcp.WithDescription("Validate a threat model JSON document against the threat model schema and its cross-references. "+
			"Optionally checks that components can be derived from a Threagile YAML diagram."),
		mcp.WithString("document",
			mcp.Required(),
			mcp.Description("Threat model JSON document"),
		),
		mcp.WithString("diagram",
			mcp.Description("Optional Threagile YAML data-flow diagram"),
		),
	)
}

func (t *ValidateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	document := req.GetString("document", "")
	if document == "" {
		return mcp.NewToolResultError("'document' is required"), nil
	}
	report, err := t.threatModels.Validate(document, req.GetString("diagram", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("validation failed: %v", err)), nil
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// PreviewTool preview_envelope：查看某个目标/阶段会发给生成器的完整指令
type PreviewTool struct{}

func NewPreviewTool() *PreviewTool {
	return &PreviewTool{}
}

func (t *PreviewTool) Definition() mcp.Tool {
	return mcp.NewTool("preview_envelope",
		mcp.WithDescription("Render the instruction envelope for a goal without calling the model."),
		mcp.WithString("goal",
			mcp.Required(),
			mcp.Description("diagram, threat_model, direct_answer or research"),
		),
		mcp.WithString("repo_url",
			mcp.Required(),
			mcp.Description("Repository URL"),
		),
		mcp.WithString("query",
			mcp.Description("User query or research topic"),
		),
		mcp.WithString("format_hint",
			mcp.Description("Diagram format: graph, structured_import or concise_graph"),
		),
		mcp.WithString("language",
			mcp.Description("Language code such as en, zh, ja"),
		),
		mcp.WithNumber("turn",
			mcp.Description("Research turn index, starting at 1"),
		),
		mcp.WithNumber("max_turns",
			mcp.Description("Research turn budget"),
		),
	)
}

func (t *PreviewTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	goal, err := domain.ParseGoal(req.GetString("goal", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	repoURL := req.GetString("repo_url", "")
	if repoURL == "" {
		return mcp.NewToolResultError("'repo_url' is required"), nil
	}

	creq := constrainer.Request{
		Goal:       goal,
		FormatHint: domain.FormatHint(req.GetString("format_hint", "")),
		Repo:       domain.NewRepoIdentity("", repoURL),
		Language:   prompts.ResolveLanguage(req.GetString("language", "")),
		Query:      req.GetString("query", ""),
	}
	switch goal {
	case domain.GoalThreatModel:
		creq.SchemaID = threatmodel.SchemaID
		creq.Schema = threatmodel.SchemaText()
	case domain.GoalResearch:
		phase, perr := phaseselector.PhaseFor(req.GetInt("turn", 1), req.GetInt("max_turns", 4))
		if perr != nil {
			return mcp.NewToolResultError(perr.Error()), nil
		}
		creq.Phase = &phase
	}

	env, err := constrainer.Build(creq)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
