package prompts

import (
	"fmt"
	"strings"

	"github.com/opendeepwiki/deepresearch/internal/domain"
)

// SupportedLanguages 支持的语言代码与显示名称
var SupportedLanguages = map[string]string{
	"en":    "English",
	"zh":    "Mandarin Chinese (中文)",
	"zh-tw": "Traditional Chinese (繁體中文)",
	"ja":    "Japanese (日本語)",
	"kr":    "Korean (한국어)",
	"es":    "Spanish (Español)",
	"vi":    "Vietnamese (Tiếng Việt)",
	"pt-br": "Brazilian Portuguese (Português Brasileiro)",
	"fr":    "Français (French)",
	"ru":    "Русский (Russian)",
}

// ResolveLanguage code 为空时表示跟随查询语言；非空即为显式覆盖。
// 未知代码按原样作为名称使用。
func ResolveLanguage(code string) domain.Language {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return domain.Language{}
	}
	name, ok := SupportedLanguages[code]
	if !ok {
		name = code
	}
	return domain.Language{Code: code, Name: name, Explicit: true}
}

// LanguageDirective 语言指令文本：显式覆盖优先，否则跟随查询语言
func LanguageDirective(lang domain.Language) string {
	if lang.Explicit && lang.Name != "" {
		return fmt.Sprintf("IMPORTANT: You MUST respond in %s language, even if the query uses another language.", lang.Name)
	}
	return "IMPORTANT: Detect the language of the user's query and respond in that SAME language."
}
