package chat

import (
	"strings"

	"github.com/opendeepwiki/deepresearch/internal/domain"
)

// Mode 由最后一条用户消息的前缀决定
type Mode string

const (
	ModeAsk         Mode = "ask"
	ModeDiagram     Mode = "dfd"
	ModeThreatModel Mode = "stride"
	ModeResearch    Mode = "research"
)

// deepResearchTag 旧客户端使用的研究标记
const deepResearchTag = "[DEEP RESEARCH]"

var commands = map[string]Mode{
	"/dfd":      ModeDiagram,
	"/stride":   ModeThreatModel,
	"/research": ModeResearch,
}

// ParseMode 解析命令前缀，返回模式与去掉前缀后的查询
func ParseMode(content string) (Mode, string) {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, deepResearchTag) {
		return ModeResearch, strings.TrimSpace(strings.TrimPrefix(text, deepResearchTag))
	}
	head, rest, _ := strings.Cut(text, " ")
	if mode, ok := commands[strings.ToLower(head)]; ok {
		return mode, strings.TrimSpace(rest)
	}
	return ModeAsk, text
}

// DiagramHint /dfd 请求提到 Threagile 或 YAML 时使用结构化导入格式，否则 Mermaid
func DiagramHint(query string) domain.FormatHint {
	q := strings.ToLower(query)
	if strings.Contains(q, "threagile") || strings.Contains(q, "yaml") {
		return domain.FormatStructuredImport
	}
	return domain.FormatGraph
}

// stripTag 历史消息里的命令前缀不回放给生成器
func stripTag(content string) string {
	_, query := ParseMode(content)
	return query
}
