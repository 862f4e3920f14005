// Package repository 封装了对持久化存储的数据操作。
package repository

import (
	"time"

	"med-search-go/internal/model"

	"gorm.io/gorm"
)

// BuildRunRepository 定义了对 build_runs 表的数据操作接口。
type BuildRunRepository interface {
	Create(run *model.BuildRun) error
	MarkRunning(runID string) error
	MarkFinished(runID string, result model.BuildRun) error
	FindRecent(limit int) ([]*model.BuildRun, error)
}

type buildRunRepository struct {
	db *gorm.DB
}

// NewBuildRunRepository 创建一个新的 BuildRunRepository 实例。
func NewBuildRunRepository(db *gorm.DB) BuildRunRepository {
	return &buildRunRepository{db: db}
}

// Create 创建一条待执行的构建记录。
func (r *buildRunRepository) Create(run *model.BuildRun) error {
	return r.db.Create(run).Error
}

// MarkRunning 将构建记录置为执行中。
func (r *buildRunRepository) MarkRunning(runID string) error {
	return r.db.Model(&model.BuildRun{}).
		Where("run_id = ?", runID).
		Update("status", model.BuildRunRunning).Error
}

// MarkFinished 写入构建的最终状态与统计数字。
func (r *buildRunRepository) MarkFinished(runID string, result model.BuildRun) error {
	now := time.Now()
	return r.db.Model(&model.BuildRun{}).
		Where("run_id = ?", runID).
		Updates(map[string]interface{}{
			"status":         result.Status,
			"text_items":     result.TextItems,
			"image_items":    result.ImageItems,
			"skipped_images": result.SkippedImages,
			"error_msg":      result.ErrorMsg,
			"finished_at":    &now,
		}).Error
}

// FindRecent 按创建时间倒序返回最近的构建记录。
func (r *buildRunRepository) FindRecent(limit int) ([]*model.BuildRun, error) {
	var runs []*model.BuildRun
	err := r.db.Order("created_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
