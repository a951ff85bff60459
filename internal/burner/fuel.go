package burner

import (
	"fmt"
	"sync"
	"time"

	"github.com/0Calories/hibana-sub000/internal/service"
)

// FuelGauge 基于服务端快照实时推算燃料余量
// 余量 = 快照余量 − 活跃会话自快照以来的墙钟秒数，向下钳到 0；
// 无活跃会话时余量冻结在快照值
type FuelGauge struct {
	store  FuelStore
	userID uint
	date   string

	mu       sync.Mutex
	snapshot *service.FuelSnapshot
	takenAt  time.Time
	fired    bool

	now func() time.Time
}

// NewFuelGauge 构造油表
func NewFuelGauge(store FuelStore, userID uint, date string) *FuelGauge {
	return &FuelGauge{store: store, userID: userID, date: date, now: time.Now}
}

// Refresh 重新拉取服务端权威快照
func (g *FuelGauge) Refresh() error {
	snapshot, err := g.store.GetBudgetSnapshot(g.userID, g.date)
	if err != nil {
		return fmt.Errorf("fuel snapshot: %w", err)
	}

	g.mu.Lock()
	g.snapshot = snapshot
	g.takenAt = g.now()
	g.mu.Unlock()
	return nil
}

// HasBudget 表示当天是否配置了燃料上限；没有上限时耗尽逻辑整体不生效
func (g *FuelGauge) HasBudget() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshot != nil
}

// BudgetMinutes 返回当日上限，无上限时为 0
func (g *FuelGauge) BudgetMinutes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snapshot == nil {
		return 0
	}
	return g.snapshot.BudgetMinutes
}

// LiveRemainingSeconds 返回实时余量秒数
// active 表示此刻是否有运行中的会话在消耗燃料
func (g *FuelGauge) LiveRemainingSeconds(active bool) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.liveRemainingLocked(active)
}

// ConsumeDepletion 判断本次 tick 是否应当触发强制停火
// 每个耗尽回合恰好触发一次；守卫仅在没有活跃会话时复位，
// 所以余量归零后的后续 tick 不会重复触发
func (g *FuelGauge) ConsumeDepletion(active bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !active {
		g.fired = false
		return false
	}
	if g.snapshot == nil {
		return false
	}
	if g.liveRemainingLocked(true) > 0 {
		return false
	}
	if g.fired {
		return false
	}

	g.fired = true
	return true
}

func (g *FuelGauge) liveRemainingLocked(active bool) int {
	if g.snapshot == nil {
		return 0
	}

	remaining := g.snapshot.RemainingSeconds
	if active {
		remaining -= int(g.now().Sub(g.takenAt).Seconds())
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}
