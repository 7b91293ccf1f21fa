package domain

import "strings"

// Goal 分析目标，决定输出形态
type Goal string

const (
	GoalDiagram      Goal = "diagram"       // 数据流图
	GoalThreatModel  Goal = "threat_model"  // STRIDE 威胁模型（受 schema 约束）
	GoalDirectAnswer Goal = "direct_answer" // 直接回答
	GoalResearch     Goal = "research"      // 多轮 Deep Research
)

// ParseGoal 将字符串解析为 Goal，未知值返回 UnsupportedGoalError
func ParseGoal(s string) (Goal, error) {
	g := Goal(strings.ToLower(strings.TrimSpace(s)))
	switch g {
	case GoalDiagram, GoalThreatModel, GoalDirectAnswer, GoalResearch:
		return g, nil
	}
	return "", &UnsupportedGoalError{Goal: s}
}

// FormatHint 调用方对图表形态的偏好
type FormatHint string

const (
	FormatUnspecified      FormatHint = ""
	FormatGraph            FormatHint = "graph"             // Mermaid 图表示
	FormatStructuredImport FormatHint = "structured_import" // Threagile YAML
	FormatConciseGraph     FormatHint = "concise_graph"     // 精简文本图，用作中间产物
)

// ShapeKind 输出形态
type ShapeKind string

const (
	ShapeFreeText         ShapeKind = "free_text"
	ShapeGraphNotation    ShapeKind = "graph_notation"
	ShapeStructuredImport ShapeKind = "structured_import"
	ShapeSchemaDocument   ShapeKind = "schema_document"
)

// OutputShape 输出形态约束。SchemaDocument 形态下携带 schema 引用。
type OutputShape struct {
	Kind     ShapeKind `json:"kind"`
	SchemaID string    `json:"schema_id,omitempty"`
	Schema   string    `json:"-"`
}
