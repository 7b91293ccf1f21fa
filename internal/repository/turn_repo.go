package repository

import (
	"gorm.io/gorm"

	"github.com/opendeepwiki/deepresearch/internal/model"
)

type turnRepository struct {
	db *gorm.DB
}

func NewTurnRepository(db *gorm.DB) TurnRepository {
	return &turnRepository{db: db}
}

func (r *turnRepository) Create(turn *model.ResearchTurn) error {
	return r.db.Create(turn).Error
}

func (r *turnRepository) GetBySession(sessionID string) ([]model.ResearchTurn, error) {
	var turns []model.ResearchTurn
	err := r.db.Where("session_id = ?", sessionID).Order("turn_index ASC").Find(&turns).Error
	return turns, err
}
