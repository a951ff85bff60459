package db

import "gorm.io/gorm"

// SparkWallet 记录用户的火花余额
type SparkWallet struct {
	gorm.Model
	UserID  uint `gorm:"uniqueIndex"`
	Balance int
}

// SparkTransaction 是火花入账流水
// SessionID 唯一索引保证同一会话的封印奖励只入账一次，重试/重复事件落到冲突上成为无害空操作
type SparkTransaction struct {
	gorm.Model
	TxID      string `gorm:"uniqueIndex"`
	UserID    uint   `gorm:"index"`
	SessionID uint   `gorm:"uniqueIndex"`
	Amount    int
	Reason    string
}
