package domain

import (
	"context"
	"net/url"
	"slices"
	"strings"
	"time"
)

// RepoIdentity 仓库身份
type RepoIdentity struct {
	Type string `json:"type"` // github, gitlab, bitbucket, local
	URL  string `json:"url"`
	Name string `json:"name"`
}

// NewRepoIdentity 创建仓库身份，name 为空时从 URL 推导
func NewRepoIdentity(repoType, repoURL string) RepoIdentity {
	if repoType == "" {
		repoType = "github"
	}
	return RepoIdentity{Type: repoType, URL: repoURL, Name: RepoNameFromURL(repoURL)}
}

// RepoNameFromURL 取 URL 最后一段路径作为仓库名
func RepoNameFromURL(repoURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(repoURL), "/")
	if u, err := url.Parse(trimmed); err == nil && u.Path != "" {
		trimmed = u.Path
	}
	trimmed = strings.TrimSuffix(trimmed, ".git")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return trimmed
}

// Language 语言指令。Explicit 为 true 时覆盖查询语言。
type Language struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Explicit bool   `json:"explicit"`
}

// ContextBlock 嵌入的上下文（代码片段、前序产物）
type ContextBlock struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// Exchange 一次历史问答
type Exchange struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

// Envelope 发送给生成器的完整指令。每轮新建，发出后不再修改。
type Envelope struct {
	Goal             Goal           `json:"goal"`
	Phase            *Phase         `json:"phase,omitempty"`
	Repo             RepoIdentity   `json:"repo"`
	Language         Language       `json:"language"`
	Guidance         string         `json:"guidance"`
	Shape            OutputShape    `json:"shape"`
	OpeningMarker    string         `json:"opening_marker,omitempty"`
	ClosingMarker    string         `json:"closing_marker,omitempty"`
	ForbiddenMarkers []string       `json:"forbidden_markers,omitempty"`
	Query            string         `json:"query"`
	History          []Exchange     `json:"history,omitempty"`
	Context          []ContextBlock `json:"context,omitempty"`
	Repair           string         `json:"repair,omitempty"`
}

// WithRepair 返回附带违规说明的副本，原 Envelope 保持不变
func (e *Envelope) WithRepair(violation string) *Envelope {
	cp := e.clone()
	cp.Repair = violation
	return cp
}

// WithContext 返回追加了上下文的副本
func (e *Envelope) WithContext(blocks ...ContextBlock) *Envelope {
	cp := e.clone()
	cp.Context = append(cp.Context, blocks...)
	return cp
}

func (e *Envelope) clone() *Envelope {
	cp := *e
	if e.Phase != nil {
		p := *e.Phase
		cp.Phase = &p
	}
	cp.ForbiddenMarkers = slices.Clone(e.ForbiddenMarkers)
	cp.History = slices.Clone(e.History)
	cp.Context = slices.Clone(e.Context)
	return &cp
}

// TurnRecord 一次请求/响应的不可变记录
type TurnRecord struct {
	Index       int       `json:"index"`
	Phase       Phase     `json:"phase"`
	Envelope    *Envelope `json:"envelope"`
	Response    string    `json:"response"`
	Interrupted bool      `json:"interrupted"`
	CreatedAt   time.Time `json:"created_at"`
}

// DispatchFunc 外部生成器调用：输入指令，返回完整响应文本。
// 通道提前关闭时返回 *ChannelInterruption。
type DispatchFunc func(ctx context.Context, env *Envelope) (string, error)
