package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/0Calories/hibana-sub000/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrFlameNotFound 在指定火苗不存在时返回
	ErrFlameNotFound = errors.New("flame not found")
	// ErrFlameInvalidInput 当追踪模式或目标配置异常时返回
	ErrFlameInvalidInput = errors.New("invalid flame configuration")
)

// FlameService 负责火苗数据的增删改查
// Mode 支持 time/count；归档采用软删除，历史会话仍然引用火苗行
type FlameService struct {
	db *gorm.DB
}

// FlameFilter 描述列表过滤条件
type FlameFilter struct {
	UserID          uint
	IncludeArchived bool
	Search          string
}

// FlameInput 定义创建/更新火苗时可配置字段
type FlameInput struct {
	Name                 string
	Description          string
	Color                string
	Mode                 string
	BudgetMinutes        int
	CountTarget          int
	CountUnit            string
	Daily                bool
	SealThresholdMinutes int
}

// NewFlameService 构造 FlameService
func NewFlameService(gdb *gorm.DB) *FlameService {
	return &FlameService{db: gdb}
}

// List 返回用户的火苗集合，默认过滤已归档项
func (s *FlameService) List(filter FlameFilter) ([]db.Flame, error) {
	var flames []db.Flame

	query := s.db.Model(&db.Flame{}).Where("user_id = ?", filter.UserID)
	if !filter.IncludeArchived {
		query = query.Where("archived = ?", false)
	}
	if filter.Search != "" {
		like := fmt.Sprintf("%%%s%%", strings.TrimSpace(filter.Search))
		query = query.Where("name LIKE ?", like)
	}

	if err := query.Order("created_at ASC").Find(&flames).Error; err != nil {
		return nil, fmt.Errorf("list flames: %w", err)
	}
	return flames, nil
}

// Get 根据 ID 获取火苗
func (s *FlameService) Get(id uint) (*db.Flame, error) {
	var flame db.Flame
	if err := s.db.First(&flame, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFlameNotFound
		}
		return nil, fmt.Errorf("get flame: %w", err)
	}
	return &flame, nil
}

// Create 新建火苗
func (s *FlameService) Create(userID uint, input FlameInput) (*db.Flame, error) {
	if err := validateFlameInput(input); err != nil {
		return nil, err
	}

	flame := db.Flame{
		UserID:               userID,
		Name:                 strings.TrimSpace(input.Name),
		Description:          input.Description,
		Color:                strings.TrimSpace(input.Color),
		Mode:                 normalizeMode(input.Mode),
		BudgetMinutes:        input.BudgetMinutes,
		CountTarget:          input.CountTarget,
		CountUnit:            strings.TrimSpace(input.CountUnit),
		Daily:                input.Daily,
		SealThresholdMinutes: input.SealThresholdMinutes,
	}

	if err := s.db.Create(&flame).Error; err != nil {
		return nil, fmt.Errorf("create flame: %w", err)
	}
	return &flame, nil
}

// Update 更新火苗
func (s *FlameService) Update(id uint, input FlameInput) (*db.Flame, error) {
	if err := validateFlameInput(input); err != nil {
		return nil, err
	}

	var existing db.Flame
	if err := s.db.First(&existing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFlameNotFound
		}
		return nil, fmt.Errorf("find flame: %w", err)
	}

	existing.Name = strings.TrimSpace(input.Name)
	existing.Description = input.Description
	existing.Color = strings.TrimSpace(input.Color)
	existing.Mode = normalizeMode(input.Mode)
	existing.BudgetMinutes = input.BudgetMinutes
	existing.CountTarget = input.CountTarget
	existing.CountUnit = strings.TrimSpace(input.CountUnit)
	existing.Daily = input.Daily
	existing.SealThresholdMinutes = input.SealThresholdMinutes

	if err := s.db.Save(&existing).Error; err != nil {
		return nil, fmt.Errorf("update flame: %w", err)
	}
	return &existing, nil
}

// Archive 归档火苗（软删除）：会话仍引用它，所以不做物理删除
func (s *FlameService) Archive(id uint) error {
	result := s.db.Model(&db.Flame{}).Where("id = ?", id).Update("archived", true)
	if result.Error != nil {
		return fmt.Errorf("archive flame: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrFlameNotFound
	}
	return nil
}

func validateFlameInput(input FlameInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrFlameInvalidInput)
	}

	switch normalizeMode(input.Mode) {
	case db.ModeTime:
		if input.BudgetMinutes <= 0 {
			return fmt.Errorf("%w: time budget must be positive", ErrFlameInvalidInput)
		}
	case db.ModeCount:
		if input.CountTarget <= 0 {
			return fmt.Errorf("%w: count target must be positive", ErrFlameInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unsupported mode %s", ErrFlameInvalidInput, input.Mode)
	}

	if input.SealThresholdMinutes < 0 {
		return fmt.Errorf("%w: seal threshold cannot be negative", ErrFlameInvalidInput)
	}

	return nil
}

func normalizeMode(mode string) string {
	mode = strings.TrimSpace(strings.ToLower(mode))
	if mode == "" {
		return db.ModeTime
	}
	return mode
}
