package utils

import (
	"encoding/json"
	"strings"

	"k8s.io/klog/v2"
)

// ExtractJSON 从文本中提取 JSON 对象，忽略字符串字面量中的花括号。
// 依次尝试每个 '{' 起点，返回第一个能完整解析的对象，前置说明文字里的花括号不会误中。
// 找不到合法对象时返回第一个配平的片段，都没有则返回去掉首尾空白的原文。
func ExtractJSON(content string) string {
	fallback := ""
	for start := strings.IndexByte(content, '{'); start != -1; {
		if end, ok := balancedObject(content, start); ok {
			candidate := content[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate
			}
			if fallback == "" {
				fallback = candidate
			}
		}
		next := strings.IndexByte(content[start+1:], '{')
		if next == -1 {
			break
		}
		start += next + 1
	}
	if fallback != "" {
		return fallback
	}
	return strings.TrimSpace(content)
}

// balancedObject 从 start 处的 '{' 开始找到与之配平的 '}'
func balancedObject(content string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func ToJSON(v any) string {
	jsonData, err := json.Marshal(v)
	if err != nil {
		klog.Errorf("JSON序列化失败: %v", err)
		return ""
	}
	return string(jsonData)
}

// HasCodeFence 文本是否以代码块标记开头或结尾
func HasCodeFence(content string) bool {
	trimmed := strings.TrimSpace(content)
	return strings.HasPrefix(trimmed, "```") || strings.HasSuffix(trimmed, "```")
}

// ExtractCodeBlock 提取第一个指定语言的代码块内容；lang 为空时匹配任意代码块。
// 没有代码块时返回 false。
func ExtractCodeBlock(content, lang string) (string, bool) {
	const fence = "```"
	offset := 0
	for {
		idx := strings.Index(content[offset:], fence)
		if idx < 0 {
			return "", false
		}
		open := offset + idx
		lineEnd := strings.IndexByte(content[open:], '\n')
		if lineEnd < 0 {
			return "", false
		}
		info := strings.TrimSpace(content[open+len(fence) : open+lineEnd])
		bodyStart := open + lineEnd + 1
		closeIdx := strings.Index(content[bodyStart:], fence)
		if closeIdx < 0 {
			return "", false
		}
		if lang == "" || strings.EqualFold(info, lang) {
			return content[bodyStart : bodyStart+closeIdx], true
		}
		offset = bodyStart + closeIdx + len(fence)
	}
}

// ExtractYAML 从文本中提取 YAML：优先取 yaml/yml 代码块，
// 否则从第一个以 keys 之一开头的行截取到首个非 YAML 行为止。
func ExtractYAML(content string, keys ...string) string {
	for _, lang := range []string{"yaml", "yml"} {
		if block, ok := ExtractCodeBlock(content, lang); ok {
			klog.V(6).Infof("[ExtractYAML] 提取到 %s 代码块，长度: %d", lang, len(block))
			return block
		}
	}

	lines := strings.Split(content, "\n")
	start := -1
	for i, line := range lines {
		for _, key := range keys {
			if strings.HasPrefix(line, key+":") {
				start = i
				break
			}
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return strings.TrimSpace(content)
	}

	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		line := lines[i]
		if line == "" || strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") || strings.HasPrefix(line, "#") {
			continue
		}
		if isTopLevelKey(line) {
			continue
		}
		end = i
		break
	}
	return strings.TrimRight(strings.Join(lines[start:end], "\n"), "\n")
}

func isTopLevelKey(line string) bool {
	colon := strings.Index(line, ":")
	if colon <= 0 {
		return false
	}
	for _, r := range line[:colon] {
		if !(r == '_' || r == '-' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
