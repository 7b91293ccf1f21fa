package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/opendeepwiki/deepresearch/internal/domain"
)

var chatTemplate = prompt.FromMessages(
	schema.FString,
	schema.SystemMessage("{system}"),
	schema.MessagesPlaceholder("history", true),
	schema.UserMessage("{query}"),
)

// Render 把指令转换为发给模型的消息序列：系统指令、历史问答、携带上下文的用户消息
func Render(ctx context.Context, env *domain.Envelope) ([]*schema.Message, error) {
	history := make([]*schema.Message, 0, len(env.History)*2)
	for _, ex := range env.History {
		history = append(history, schema.UserMessage(ex.Query), schema.AssistantMessage(ex.Response, nil))
	}

	msgs, err := chatTemplate.Format(ctx, map[string]any{
		"system":  systemText(env),
		"history": history,
		"query":   userText(env),
	})
	if err != nil {
		return nil, fmt.Errorf("render envelope: %w", err)
	}
	return msgs, nil
}

func systemText(env *domain.Envelope) string {
	var sb strings.Builder
	sb.WriteString(env.Guidance)
	if len(env.ForbiddenMarkers) > 0 {
		quoted := make([]string, 0, len(env.ForbiddenMarkers))
		for _, m := range env.ForbiddenMarkers {
			quoted = append(quoted, "`"+m+"`")
		}
		sb.WriteString("\n\n<forbidden>\n")
		if env.Shape.Kind == domain.ShapeFreeText {
			sb.WriteString("The response must not begin with: ")
		} else {
			sb.WriteString("The response must not contain: ")
		}
		sb.WriteString(strings.Join(quoted, ", "))
		sb.WriteString("\n</forbidden>")
	}
	return sb.String()
}

func userText(env *domain.Envelope) string {
	var sb strings.Builder
	if len(env.Context) > 0 {
		sb.WriteString("<START_OF_CONTEXT>\n")
		for _, block := range env.Context {
			if block.FilePath != "" {
				sb.WriteString("## File Path: ")
				sb.WriteString(block.FilePath)
				sb.WriteString("\n\n")
			}
			sb.WriteString(block.Content)
			sb.WriteString("\n\n")
		}
		sb.WriteString("<END_OF_CONTEXT>\n\n")
	}
	sb.WriteString("<query>\n")
	sb.WriteString(env.Query)
	sb.WriteString("\n</query>")
	if env.Repair != "" {
		sb.WriteString("\n\n<repair>\nYour previous response was rejected: ")
		sb.WriteString(env.Repair)
		sb.WriteString("\nReturn a corrected response that fixes every listed violation.\n</repair>")
	}
	return sb.String()
}
