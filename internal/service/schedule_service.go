package service

import (
	"errors"
	"fmt"

	"github.com/0Calories/hibana-sub000/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidDayOfWeek 在 dayOfWeek 超出 [0,6] 时返回
	ErrInvalidDayOfWeek = errors.New("day of week out of range")
	// ErrInvalidBudget 在燃料预算为负时返回
	ErrInvalidBudget = errors.New("fuel budget cannot be negative")
	// ErrOverrideMismatch 表示分钟覆盖数组长度与火苗数组不一致
	ErrOverrideMismatch = errors.New("minute overrides length mismatch")
	// ErrScheduleNotFound 在指定星期几没有排期时返回
	ErrScheduleNotFound = errors.New("day schedule not found")
)

// ScheduleService 负责每日排期：燃料预算与火苗编排
type ScheduleService struct {
	db *gorm.DB
}

// NewScheduleService 构造 ScheduleService
func NewScheduleService(gdb *gorm.DB) *ScheduleService {
	return &ScheduleService{db: gdb}
}

// Get 返回指定星期几的排期
func (s *ScheduleService) Get(dayOfWeek int) (*db.DaySchedule, error) {
	if err := validateDayOfWeek(dayOfWeek); err != nil {
		return nil, err
	}

	var schedule db.DaySchedule
	if err := s.db.Where("day_of_week = ?", dayOfWeek).First(&schedule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return &schedule, nil
}

// SetFuelBudget 设置某个星期几的燃料上限（分钟），0 表示不设上限
func (s *ScheduleService) SetFuelBudget(dayOfWeek, minutes int) (*db.DaySchedule, error) {
	if err := validateDayOfWeek(dayOfWeek); err != nil {
		return nil, err
	}
	if minutes < 0 {
		return nil, ErrInvalidBudget
	}

	record := db.DaySchedule{DayOfWeek: dayOfWeek, FuelBudgetMinutes: minutes}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "day_of_week"}},
		DoUpdates: clause.AssignmentColumns([]string{"fuel_budget_minutes", "updated_at"}),
	}).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("set fuel budget: %w", err)
	}

	return s.Get(dayOfWeek)
}

// AssignFlames 写入某个星期几的火苗编排
// overrides 非空时长度必须与 flameIDs 一致；0 覆盖表示回退到火苗自身预算
func (s *ScheduleService) AssignFlames(dayOfWeek int, flameIDs []uint, overrides []int) (*db.DaySchedule, error) {
	if err := validateDayOfWeek(dayOfWeek); err != nil {
		return nil, err
	}
	if overrides != nil && len(overrides) != len(flameIDs) {
		return nil, fmt.Errorf("%w: %d overrides for %d flames", ErrOverrideMismatch, len(overrides), len(flameIDs))
	}

	record := db.DaySchedule{DayOfWeek: dayOfWeek}
	if err := record.SetAssignments(flameIDs, overrides); err != nil {
		return nil, fmt.Errorf("encode assignments: %w", err)
	}

	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "day_of_week"}},
		DoUpdates: clause.AssignmentColumns([]string{"flame_ids", "minute_overrides", "updated_at"}),
	}).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("assign flames: %w", err)
	}

	return s.Get(dayOfWeek)
}

// EffectiveBudgetMinutes 计算火苗在某个排期下的有效时长目标：
// 排期里的非零覆盖优先，否则回退到火苗自身预算
func EffectiveBudgetMinutes(flame db.Flame, schedule *db.DaySchedule) int {
	if schedule == nil {
		return flame.BudgetMinutes
	}

	overrides := schedule.MinuteOverrides()
	if overrides == nil {
		return flame.BudgetMinutes
	}

	for i, id := range schedule.FlameIDs() {
		if id == flame.ID && i < len(overrides) && overrides[i] > 0 {
			return overrides[i]
		}
	}
	return flame.BudgetMinutes
}

func validateDayOfWeek(dayOfWeek int) error {
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return fmt.Errorf("%w: %d", ErrInvalidDayOfWeek, dayOfWeek)
	}
	return nil
}
