package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/opendeepwiki/deepresearch/internal/model"
)

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(session *model.ResearchSession) error {
	return r.db.Create(session).Error
}

// Get 按 ID 查询会话，轮次按序号升序预加载
func (r *sessionRepository) Get(id string) (*model.ResearchSession, error) {
	var session model.ResearchSession
	err := r.db.Preload("Turns", func(db *gorm.DB) *gorm.DB {
		return db.Order("turn_index ASC")
	}).Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// List 最近创建的会话，不含轮次
func (r *sessionRepository) List(limit int) ([]model.ResearchSession, error) {
	if limit <= 0 {
		limit = 20
	}
	var sessions []model.ResearchSession
	err := r.db.Order("created_at DESC").Limit(limit).Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepository) UpdateStatus(id, status, errMsg string) error {
	updates := map[string]interface{}{
		"status":    status,
		"error_msg": errMsg,
	}
	switch status {
	case "completed", "incomplete", "failed", "canceled":
		updates["completed_at"] = time.Now()
	}
	result := r.db.Model(&model.ResearchSession{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sessionRepository) MarkStarted(id string, at time.Time) error {
	result := r.db.Model(&model.ResearchSession{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": "running", "started_at": at})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CleanupStuck 服务重启后把超时仍处于 running 的会话标记为失败
func (r *sessionRepository) CleanupStuck(timeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-timeout)
	result := r.db.Model(&model.ResearchSession{}).
		Where("status = ? AND started_at < ?", "running", cutoff).
		Updates(map[string]interface{}{
			"status":       "failed",
			"error_msg":    fmt.Sprintf("会话超时（超过 %v），已自动标记为失败", timeout),
			"completed_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}
