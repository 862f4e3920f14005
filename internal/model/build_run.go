package model

import "time"

// 构建任务状态。
const (
	BuildRunPending = "pending"
	BuildRunRunning = "running"
	BuildRunSuccess = "success"
	BuildRunFailed  = "failed"
)

// BuildRun 对应于数据库中的 build_runs 表，记录每次索引重建的过程与结果。
type BuildRun struct {
	RunID         string     `gorm:"primaryKey;type:varchar(36);column:run_id" json:"run_id"`
	Modalities    string     `gorm:"type:varchar(64);column:modalities" json:"modalities"`
	Status        string     `gorm:"type:varchar(16);not null;index;column:status" json:"status"`
	ForceRebuild  bool       `gorm:"not null;default:false;column:force_rebuild" json:"force_rebuild"`
	RequestedBy   string     `gorm:"type:varchar(64);column:requested_by" json:"requested_by"`
	TextItems     int        `gorm:"column:text_items" json:"text_items"`
	ImageItems    int        `gorm:"column:image_items" json:"image_items"`
	SkippedImages int        `gorm:"column:skipped_images" json:"skipped_images"`
	ErrorMsg      string     `gorm:"type:text;column:error_msg" json:"error_msg,omitempty"`
	CreatedAt     time.Time  `gorm:"column:created_at" json:"created_at"`
	FinishedAt    *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

func (BuildRun) TableName() string {
	return "build_runs"
}
