package model

import (
	"time"
)

// ResearchSession 一次 Deep Research 会话
type ResearchSession struct {
	ID          string         `json:"id" gorm:"primaryKey;size:64"` // UUID
	RepoType    string         `json:"repo_type" gorm:"size:50"`
	RepoURL     string         `json:"repo_url" gorm:"size:500;index"`
	RepoName    string         `json:"repo_name" gorm:"size:255"`
	Topic       string         `json:"topic" gorm:"size:2000;not null"`
	Language    string         `json:"language" gorm:"size:20"`
	MaxTurns    int            `json:"max_turns"`
	Status      string         `json:"status" gorm:"size:50;default:pending;index"` // pending, running, completed, incomplete, failed, canceled
	ErrorMsg    string         `json:"error_msg" gorm:"size:2000"`
	StartedAt   *time.Time     `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Turns       []ResearchTurn `json:"turns,omitempty" gorm:"foreignKey:SessionID"`
}

// ResearchTurn 会话中的一轮记录
type ResearchTurn struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	SessionID   string    `json:"session_id" gorm:"size:64;index;not null"`
	TurnIndex   int       `json:"turn_index" gorm:"not null"`
	Phase       string    `json:"phase" gorm:"size:20"` // first, intermediate, final
	Query       string    `json:"query" gorm:"type:text"`
	Envelope    string    `json:"envelope" gorm:"type:text"` // 发送时的指令 JSON
	Response    string    `json:"response" gorm:"type:text"`
	Interrupted bool      `json:"interrupted"`
	CreatedAt   time.Time `json:"created_at"`
}

// ThreatModel 一次 图 -> 威胁模型 生成的结果
type ThreatModel struct {
	ID          string    `json:"id" gorm:"primaryKey;size:64"`
	RepoType    string    `json:"repo_type" gorm:"size:50"`
	RepoURL     string    `json:"repo_url" gorm:"size:500;index"`
	RepoName    string    `json:"repo_name" gorm:"size:255"`
	Query       string    `json:"query" gorm:"type:text"`
	FormatHint  string    `json:"format_hint" gorm:"size:50"`
	Diagram     string    `json:"diagram" gorm:"type:text"`
	Document    string    `json:"document" gorm:"type:text"`
	Valid       bool      `json:"valid"`
	Violations  string    `json:"violations" gorm:"type:text"` // 违规列表 JSON
	Attempts    int       `json:"attempts"`
	Interrupted bool      `json:"interrupted"`
	CreatedAt   time.Time `json:"created_at"`
}
