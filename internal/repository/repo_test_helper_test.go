package repository

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/opendeepwiki/deepresearch/internal/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db error: %v", err)
	}
	// :memory: 库按连接隔离，限制为单连接
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db error: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&model.ResearchSession{}, &model.ResearchTurn{}, &model.ThreatModel{}); err != nil {
		t.Fatalf("migrate error: %v", err)
	}
	return db
}
