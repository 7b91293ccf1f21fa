package threatmodel

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"k8s.io/klog/v2"

	"github.com/opendeepwiki/deepresearch/internal/utils"
)

// SchemaID OWASP Threat Model Library schema v1.0.1
const SchemaID = "https://github.com/OWASP/www-project-threat-model-library/blob/v1.0.1/threat-model.schema.json"

//go:embed threat-model.schema.json
var schemaJSON []byte

// RequiredSections 文档必须包含的顶层字段
var RequiredSections = []string{
	"version",
	"scope",
	"trust_zones",
	"trust_boundaries",
	"actors",
	"components",
	"data_stores",
	"data_sets",
	"data_flows",
}

var (
	compiled   *jsonschema.Schema
	compileErr error
	compileMu  sync.Once
)

// SchemaText 返回 schema 原文，用于嵌入生成指令
func SchemaText() string {
	return string(schemaJSON)
}

// Schema 返回编译后的 schema，只编译一次
func Schema() (*jsonschema.Schema, error) {
	compileMu.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			compileErr = fmt.Errorf("parse embedded schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(SchemaID, doc); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile(SchemaID)
		if compileErr != nil {
			klog.Errorf("[threatmodel.Schema] 编译 schema 失败: %v", compileErr)
		}
	})
	return compiled, compileErr
}

// Parse 把生成器返回的文本解析为通用文档树（map[string]any / []any）。
// 容忍外层代码块或前后说明文字，取第一个能完整解析的 JSON 对象。
func Parse(text string) (any, error) {
	body := utils.ExtractJSON(text)
	if body == "" {
		return nil, fmt.Errorf("%w: empty document", ErrNotJSON)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	return doc, nil
}
