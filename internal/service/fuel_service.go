package service

import (
	"errors"
	"fmt"

	"github.com/0Calories/hibana-sub000/internal/db"
	"gorm.io/gorm"
)

// FuelSnapshot 是服务端口径的燃料余量快照
// RemainingSeconds 保留秒级精度供实时油表使用，RemainingMinutes 为展示用的向下取整
type FuelSnapshot struct {
	BudgetMinutes    int
	RemainingMinutes int
	RemainingSeconds int
}

// FuelService 只读会话行，计算跨火苗的当日燃料消耗
// 它从不直接改写会话，强制停火也必须走会话台账的 EndSession
type FuelService struct {
	db *gorm.DB
}

// NewFuelService 构造 FuelService
func NewFuelService(gdb *gorm.DB) *FuelService {
	return &FuelService{db: gdb}
}

// GetBudgetSnapshot 返回指定用户在指定日期的燃料快照
// 消耗合计经由 flames.user_id 连接过滤，别的账号烧掉的时间不计入本账号的预算
// 当天对应星期几没有排期或预算为 0 时返回 nil，表示不设上限
func (s *FuelService) GetBudgetSnapshot(userID uint, date string) (*FuelSnapshot, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}

	var schedule db.DaySchedule
	if err := s.db.Where("day_of_week = ?", int(day.Weekday())).First(&schedule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}

	if schedule.FuelBudgetMinutes <= 0 {
		return nil, nil
	}

	var usedSeconds int64
	if err := s.db.Model(&db.FlameSession{}).
		Joins("JOIN flames ON flames.id = flame_sessions.flame_id").
		Where("flames.user_id = ? AND flame_sessions.date = ?", userID, date).
		Select("COALESCE(SUM(flame_sessions.duration_seconds), 0)").
		Scan(&usedSeconds).Error; err != nil {
		return nil, fmt.Errorf("sum sessions: %w", err)
	}

	remaining := schedule.FuelBudgetMinutes*60 - int(usedSeconds)
	if remaining < 0 {
		remaining = 0
	}

	return &FuelSnapshot{
		BudgetMinutes:    schedule.FuelBudgetMinutes,
		RemainingMinutes: remaining / 60,
		RemainingSeconds: remaining,
	}, nil
}
