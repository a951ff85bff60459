package service

import (
	"errors"
	"fmt"
	"math"

	"github.com/0Calories/hibana-sub000/internal/db"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrRewardNotFound 表示没有可入账的已封印会话
var ErrRewardNotFound = errors.New("no completed session to credit")

const (
	// completionBonusBand：耗时达到目标 90% 即进入完成奖励区间
	completionBonusBand = 0.9
	// xpPreviewMultiplier 仅用于界面预览的经验值换算，正式入账只用 Sparks
	xpPreviewMultiplier = 1.25
)

// Reward 是一次封印的奖励结果
type Reward struct {
	Sparks int `json:"sparks"`
	XP     int `json:"xp"`
}

// ComputeReward 是纯函数的奖励公式
// 超出目标的时间不追加基础奖励（过燃免罚也免赏）；达到目标 90% 以上即给满完成奖励
func ComputeReward(elapsedSeconds, targetSeconds, level int) Reward {
	if level < 1 {
		level = 1
	}
	levelMultiplier := 1 + float64(level-1)*0.1

	credited := elapsedSeconds
	if targetSeconds > 0 && credited > targetSeconds {
		credited = targetSeconds
	}

	creditedMinutes := credited / 60
	base := int(math.Floor(float64(creditedMinutes) * levelMultiplier))

	bonus := 0
	if targetSeconds > 0 && float64(elapsedSeconds) >= float64(targetSeconds)*completionBonusBand {
		bonus = int(math.Floor(float64(targetSeconds/60) * 0.5))
	}

	return Reward{
		Sparks: base + bonus,
		XP:     int(math.Floor(float64(creditedMinutes)*levelMultiplier*xpPreviewMultiplier)) + bonus,
	}
}

// SparkService 负责封印奖励的幂等入账
type SparkService struct {
	db *gorm.DB
}

// NewSparkService 构造 SparkService
func NewSparkService(gdb *gorm.DB) *SparkService {
	return &SparkService{db: gdb}
}

// CreditSealReward 为 (flame, date) 的已封印会话入账火花
// 入账以 SessionID 为幂等键：重复封印事件或重试的第二次调用返回 0，不产生新的流水
// 检查与插入在同一事务内完成，SessionID 唯一索引兜底并发下的双写
func (s *SparkService) CreditSealReward(userID, flameID uint, date string) (int, error) {
	if _, err := ParseDate(date); err != nil {
		return 0, err
	}

	var session db.FlameSession
	if err := s.db.Where("flame_id = ? AND date = ? AND completed = ?", flameID, date, true).
		First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrRewardNotFound
		}
		return 0, fmt.Errorf("find completed session: %w", err)
	}

	var flame db.Flame
	if err := s.db.First(&flame, flameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrFlameNotFound
		}
		return 0, fmt.Errorf("find flame: %w", err)
	}

	level := 1
	var user db.User
	if err := s.db.First(&user, userID).Error; err == nil && user.Level > 0 {
		level = user.Level
	}

	reward := ComputeReward(session.DurationSeconds, flame.BudgetMinutes*60, level)

	credited := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing db.SparkTransaction
		if err := tx.Where("session_id = ?", session.ID).First(&existing).Error; err == nil {
			return nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check transaction: %w", err)
		}

		record := db.SparkTransaction{
			TxID:      uuid.New().String(),
			UserID:    userID,
			SessionID: session.ID,
			Amount:    reward.Sparks,
			Reason:    "seal",
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		wallet := db.SparkWallet{UserID: userID}
		if err := tx.Where("user_id = ?", userID).FirstOrCreate(&wallet).Error; err != nil {
			return fmt.Errorf("ensure wallet: %w", err)
		}
		if err := tx.Model(&db.SparkWallet{}).
			Where("id = ?", wallet.ID).
			Update("balance", gorm.Expr("balance + ?", reward.Sparks)).Error; err != nil {
			return fmt.Errorf("increment balance: %w", err)
		}

		credited = reward.Sparks
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, nil
		}
		return 0, err
	}

	return credited, nil
}

// Wallet 返回用户的火花余额，没有钱包行时视为 0
func (s *SparkService) Wallet(userID uint) (int, error) {
	var wallet db.SparkWallet
	if err := s.db.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get wallet: %w", err)
	}
	return wallet.Balance, nil
}

// Transactions 返回用户最近的火花流水
func (s *SparkService) Transactions(userID uint, limit int) ([]db.SparkTransaction, error) {
	if limit <= 0 {
		limit = 20
	}

	var records []db.SparkTransaction
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return records, nil
}
