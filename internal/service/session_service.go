package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/0Calories/hibana-sub000/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrSessionNotFound 在指定日期不存在会话行时返回
	ErrSessionNotFound = errors.New("session not found")
	// ErrMissingStartTime 表示会话行缺少 started_at，属于被破坏或被并发修改的行
	ErrMissingStartTime = errors.New("session has no start time")
	// ErrSessionSealed 表示当天会话已封印，不再接受 start/pause
	ErrSessionSealed = errors.New("session already sealed for the day")
)

// SessionService 是会话台账：独占 FlameSession 行的状态迁移
// 同一天允许多段 start/stop 区间，全部折叠进同一行的 DurationSeconds
type SessionService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSessionService 构造 SessionService
func NewSessionService(gdb *gorm.DB) *SessionService {
	return &SessionService{db: gdb, now: time.Now}
}

// StartSession 为 (flame, date) 开始一段运行区间
// 幂等性弱：对运行中的会话重复 start 会覆盖 started_at 丢失当前区间，
// 调用方（状态机）负责在 burning 状态下不再触发 start
func (s *SessionService) StartSession(flameID uint, date string) (*db.FlameSession, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}

	startedAt := s.now()

	var session db.FlameSession
	err := s.db.Where("flame_id = ? AND date = ?", flameID, date).First(&session).Error
	switch {
	case err == nil:
		if session.Completed {
			return nil, ErrSessionSealed
		}
		session.StartedAt = &startedAt
		session.EndedAt = nil
		if err := s.db.Save(&session).Error; err != nil {
			return nil, fmt.Errorf("start session: %w", err)
		}
		return &session, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		session = db.FlameSession{
			FlameID:   flameID,
			Date:      date,
			StartedAt: &startedAt,
		}
		if err := s.db.Create(&session).Error; err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		return &session, nil
	default:
		return nil, fmt.Errorf("find session: %w", err)
	}
}

// EndSession 结束当前运行区间，把运行时长折叠进 DurationSeconds
// at 为调用方捕获的暂停时刻：暂停发生在 T0 而网络在 T1 才完成时，落库仍用 T0，
// 保证奖励计算吃到的时长精度；at 为零值时取当前时间
func (s *SessionService) EndSession(flameID uint, date string, at time.Time) (*db.FlameSession, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}

	var session db.FlameSession
	if err := s.db.Where("flame_id = ? AND date = ?", flameID, date).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}

	if session.Completed {
		return nil, ErrSessionSealed
	}
	if session.StartedAt == nil {
		return nil, ErrMissingStartTime
	}

	if at.IsZero() {
		at = s.now()
	}

	ran := int(at.Sub(*session.StartedAt).Seconds())
	if ran < 0 {
		ran = 0
	}

	session.DurationSeconds += ran
	session.StartedAt = nil
	session.EndedAt = &at

	if err := s.db.Save(&session).Error; err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}
	return &session, nil
}

// GetSession 返回 (flame, date) 的会话行，不存在时返回 ErrSessionNotFound
func (s *SessionService) GetSession(flameID uint, date string) (*db.FlameSession, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}

	var session db.FlameSession
	if err := s.db.Where("flame_id = ? AND date = ?", flameID, date).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// GetAllSessionsForDate 返回用户当天全部火苗的会话，用于重算活跃火苗与燃料消耗
// 会话行不直接带属主，经由 flames.user_id 连接过滤，跨账号的会话互不可见
func (s *SessionService) GetAllSessionsForDate(userID uint, date string) ([]db.FlameSession, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}

	var sessions []db.FlameSession
	if err := s.db.
		Select("flame_sessions.*").
		Joins("JOIN flames ON flames.id = flame_sessions.flame_id").
		Where("flames.user_id = ? AND flame_sessions.date = ?", userID, date).
		Order("flame_sessions.flame_id ASC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// SetCompletion 迁移会话的封印状态
// 同值重复调用是无副作用的幂等操作（防重复入账由火花流水的唯一索引兜底）
// 封印运行中的会话时先折叠当前区间，避免丢失时长
func (s *SessionService) SetCompletion(flameID uint, date string, completed bool) (*db.FlameSession, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}

	var session db.FlameSession
	if err := s.db.Where("flame_id = ? AND date = ?", flameID, date).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}

	if session.Completed == completed {
		return &session, nil
	}

	if completed && session.Running() {
		at := s.now()
		ran := int(at.Sub(*session.StartedAt).Seconds())
		if ran > 0 {
			session.DurationSeconds += ran
		}
		session.StartedAt = nil
		session.EndedAt = &at
	}

	session.Completed = completed
	if err := s.db.Save(&session).Error; err != nil {
		return nil, fmt.Errorf("set completion: %w", err)
	}
	return &session, nil
}

// ElapsedSeconds 从时间戳现算累计耗时：已折叠时长加上运行中的区间
// 每个 tick 都重新计算而不是本地累加，避免客户端漂移偏离服务端落库值
func ElapsedSeconds(session db.FlameSession, now time.Time) int {
	elapsed := session.DurationSeconds
	if session.Running() {
		ran := int(now.Sub(*session.StartedAt).Seconds())
		if ran > 0 {
			elapsed += ran
		}
	}
	return elapsed
}

// SealThresholdSeconds 返回火苗的封印阈值：显式配置优先，否则取时长预算的一半
func SealThresholdSeconds(flame db.Flame) int {
	if flame.SealThresholdMinutes > 0 {
		return flame.SealThresholdMinutes * 60
	}
	return flame.BudgetMinutes * 60 / 2
}
