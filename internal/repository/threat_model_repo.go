package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/opendeepwiki/deepresearch/internal/model"
)

type threatModelRepository struct {
	db *gorm.DB
}

func NewThreatModelRepository(db *gorm.DB) ThreatModelRepository {
	return &threatModelRepository{db: db}
}

func (r *threatModelRepository) Create(tm *model.ThreatModel) error {
	return r.db.Create(tm).Error
}

func (r *threatModelRepository) Get(id string) (*model.ThreatModel, error) {
	var tm model.ThreatModel
	if err := r.db.Where("id = ?", id).First(&tm).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tm, nil
}

// ListByRepo repoURL 为空时返回全部仓库的最近结果
func (r *threatModelRepository) ListByRepo(repoURL string, limit int) ([]model.ThreatModel, error) {
	if limit <= 0 {
		limit = 20
	}
	q := r.db.Order("created_at DESC").Limit(limit)
	if repoURL != "" {
		q = q.Where("repo_url = ?", repoURL)
	}
	var list []model.ThreatModel
	err := q.Find(&list).Error
	return list, err
}
