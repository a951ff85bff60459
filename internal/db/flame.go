package db

import (
	"time"

	"gorm.io/gorm"
)

// 追踪模式：按时长或按次数
const (
	ModeTime  = "time"
	ModeCount = "count"
)

// Flame 定义了火苗（习惯）模型
// Mode 支持 time/count 两种追踪方式，BudgetMinutes 仅在 time 模式下生效
// SealThresholdMinutes 为 0 时封印阈值取 BudgetMinutes 的一半（读取时派生，不落库）
// Archived 采用软删除语义：仍被会话引用的火苗只归档不物理删除
type Flame struct {
	gorm.Model
	UserID               uint   `gorm:"index"`
	Name                 string `gorm:"not null"`
	Description          string
	Color                string
	Mode                 string `gorm:"default:time"`
	BudgetMinutes        int
	CountTarget          int
	CountUnit            string
	Daily                bool
	SealThresholdMinutes int
	Archived             bool   `gorm:"index"`
}

// FlameSession 记录某个火苗在某一天的累计追踪
// FlameID + Date 采用唯一索引，保证每天至多一行
// StartedAt 非空且 EndedAt 为空 ⇔ 会话运行中；此时真实耗时 = DurationSeconds + (now − StartedAt)
// DurationSeconds 只累计已结束的区间，运行中的区间永远从时间戳现算，避免本地计数漂移
type FlameSession struct {
	gorm.Model
	FlameID         uint       `gorm:"index;index:idx_flame_session_unique,unique"`
	Flame           Flame      `gorm:"constraint:OnDelete:CASCADE"`
	Date            string     `gorm:"index:idx_flame_session_unique,unique"`
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationSeconds int
	Completed       bool
}

// TableName 重写确保唯一索引作用到 flame_id + date
func (FlameSession) TableName() string {
	return "flame_sessions"
}

// Running 判断会话是否处于运行状态
func (s FlameSession) Running() bool {
	return s.StartedAt != nil && s.EndedAt == nil
}
