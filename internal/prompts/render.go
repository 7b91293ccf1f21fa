package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"k8s.io/klog/v2"
)

// Name 模板名称
type Name string

const (
	ResearchFirst        Name = "research_first"
	ResearchIntermediate Name = "research_intermediate"
	ResearchFinal        Name = "research_final"
	SimpleChat           Name = "simple_chat"
	DiagramGraph         Name = "diagram_graph"
	DiagramImport        Name = "diagram_import"
	DiagramConcise       Name = "diagram_concise"
	Stride               Name = "stride"
)

var templates = map[Name]string{
	ResearchFirst:        researchFirstTemplate,
	ResearchIntermediate: researchIntermediateTemplate,
	ResearchFinal:        researchFinalTemplate,
	SimpleChat:           simpleChatTemplate,
	DiagramGraph:         diagramGraphTemplate,
	DiagramImport:        diagramImportTemplate,
	DiagramConcise:       diagramConciseTemplate,
	Stride:               strideTemplate,
}

// Render 使用 eino 的 Go 模板渲染指定模板，返回系统指令文本
func Render(name Name, vars map[string]any) (string, error) {
	text, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}

	tpl := prompt.FromMessages(schema.GoTemplate, schema.SystemMessage(text))
	msgs, err := tpl.Format(context.Background(), vars)
	if err != nil {
		klog.Errorf("[prompts.Render] 渲染模板失败: name=%s, err=%v", name, err)
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("render %s: empty output", name)
	}
	return strings.TrimSpace(msgs[0].Content), nil
}
