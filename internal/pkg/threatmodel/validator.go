package threatmodel

import (
	"errors"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"k8s.io/klog/v2"

	"github.com/opendeepwiki/deepresearch/internal/domain"
)

var (
	printer        = message.NewPrinter(language.English)
	pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")
)

var (
	ErrNotJSON              = errors.New("document is not valid JSON")
	ErrNotStructuredDiagram = errors.New("diagram is not a structured import document")
)

// Validator 校验威胁模型文档：schema 结构 + 引用完整性。
// 只依赖通用文档树，与文档的来源无关。
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator 使用内置 schema 创建校验器
func NewValidator() (*Validator, error) {
	sch, err := Schema()
	if err != nil {
		return nil, err
	}
	return &Validator{schema: sch}, nil
}

// Validate 校验文档树。不符合时返回 *domain.SchemaConformanceError。
func (v *Validator) Validate(doc any) error {
	violations := v.structural(doc)
	violations = append(violations, CheckReferences(doc)...)
	if len(violations) == 0 {
		return nil
	}
	klog.V(6).Infof("[Validator.Validate] 文档不符合 schema: violations=%d", len(violations))
	return &domain.SchemaConformanceError{Violations: violations}
}

// ValidateText 解析并校验文本。解析失败同样视为不符合 schema。
func (v *Validator) ValidateText(text string) (any, error) {
	doc, err := Parse(text)
	if err != nil {
		return nil, &domain.SchemaConformanceError{
			Violations: []domain.Violation{{Message: err.Error()}},
		}
	}
	if err := v.Validate(doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func (v *Validator) structural(doc any) []domain.Violation {
	err := v.schema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []domain.Violation{{Message: err.Error()}}
	}
	violations := leafViolations(ve, make(map[string]bool), nil)
	if len(violations) == 0 {
		violations = []domain.Violation{{Message: strings.TrimSpace(ve.Error())}}
	}
	return violations
}

// leafViolations 沿 Causes 取叶子错误；中间节点只描述嵌套关系，不单独上报
func leafViolations(ve *jsonschema.ValidationError, seen map[string]bool, out []domain.Violation) []domain.Violation {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			out = leafViolations(cause, seen, out)
		}
		return out
	}
	path := instancePath(ve.InstanceLocation)
	msg := ve.ErrorKind.LocalizedString(printer)
	key := path + "\x00" + msg
	if seen[key] {
		return out
	}
	seen[key] = true
	return append(out, domain.Violation{Path: path, Message: msg})
}

// instancePath 把实例位置转成 JSON Pointer，根为空串
func instancePath(tokens []string) string {
	var b strings.Builder
	for _, tok := range tokens {
		b.WriteByte('/')
		b.WriteString(pointerEscaper.Replace(tok))
	}
	return b.String()
}
