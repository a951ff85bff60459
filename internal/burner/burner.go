package burner

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/0Calories/hibana-sub000/internal/db"
	"github.com/0Calories/hibana-sub000/internal/service"
)

// Burner 是一天的协调器：持有当日全部火苗的状态机和油表，
// 驱动一秒一跳的重算循环，并在燃料耗尽时经由会话台账强制停火
// 系统级软不变式——同一时刻至多一个火苗在燃烧——由它把 blocked 标志下发到各状态机
type Burner struct {
	sessions SessionStore
	fuel     *FuelGauge
	userID   uint
	date     string

	order    []uint
	machines map[uint]*Machine

	mu     sync.Mutex
	stopCh chan struct{}

	now func() time.Time
}

// New 构造某个用户当日的协调器
// Burner 是常驻交互端（TUI、桌面宿主）的嵌入面：这类客户端持有一个 Burner
// 驱动秒级循环；无状态的 HTTP 处理器则按请求独立重算同一套守卫，不经过它
// schedule 可为 nil；非 nil 时排期里的分钟覆盖会应用为各火苗的目标时长
func New(sessions SessionStore, fuelStore FuelStore, userID uint, date string, flames []db.Flame, schedule *db.DaySchedule) *Burner {
	b := &Burner{
		sessions: sessions,
		fuel:     NewFuelGauge(fuelStore, userID, date),
		userID:   userID,
		date:     date,
		machines: make(map[uint]*Machine, len(flames)),
		now:      time.Now,
	}

	for _, flame := range flames {
		m := NewMachine(sessions, flame, date)
		if schedule != nil {
			m.SetTargetSeconds(service.EffectiveBudgetMinutes(flame, schedule) * 60)
		}
		b.order = append(b.order, flame.ID)
		b.machines[flame.ID] = m
	}

	return b
}

// Machine 返回指定火苗的状态机，未编排的火苗返回 nil
func (b *Burner) Machine(flameID uint) *Machine {
	return b.machines[flameID]
}

// Machines 按编排顺序返回全部状态机
func (b *Burner) Machines() []*Machine {
	out := make([]*Machine, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.machines[id])
	}
	return out
}

// Fuel 返回油表
func (b *Burner) Fuel() *FuelGauge {
	return b.fuel
}

// Refresh 从存储重拉当日会话与燃料快照，重新派生所有状态
func (b *Burner) Refresh() error {
	sessions, err := b.sessions.GetAllSessionsForDate(b.userID, b.date)
	if err != nil {
		return fmt.Errorf("refresh sessions: %w", err)
	}

	byFlame := make(map[uint]db.FlameSession, len(sessions))
	for _, s := range sessions {
		byFlame[s.FlameID] = s
	}

	for id, m := range b.machines {
		if s, ok := byFlame[id]; ok {
			copied := s
			m.Refresh(&copied)
		} else {
			m.Refresh(nil)
		}
	}

	if err := b.fuel.Refresh(); err != nil {
		return err
	}

	b.syncGuards()
	b.syncTimer()
	return nil
}

// Toggle 切换指定火苗并同步全局守卫与计时器
func (b *Burner) Toggle(flameID uint) error {
	m := b.machines[flameID]
	if m == nil {
		return fmt.Errorf("flame %d not scheduled today", flameID)
	}

	err := m.Toggle()
	b.syncGuards()
	b.syncTimer()
	return err
}

// Seal 完成指定火苗的封印
func (b *Burner) Seal(flameID uint) error {
	m := b.machines[flameID]
	if m == nil {
		return fmt.Errorf("flame %d not scheduled today", flameID)
	}

	err := m.CompleteSeal()
	b.syncGuards()
	b.syncTimer()
	return err
}

// Tick 执行一次重算：耗时与余量全部从时间戳现算
// 燃料耗尽时恰好一次地经由台账结束活跃会话，然后重拉权威快照
func (b *Burner) Tick() {
	active := b.activeMachine()

	if b.fuel.ConsumeDepletion(active != nil) {
		log.Printf("[burner] fuel depleted on %s, force-stopping flame %d", b.date, active.flame.ID)
		if _, err := b.sessions.EndSession(active.flame.ID, b.date, b.now()); err != nil {
			log.Printf("[burner] forced stop failed: %v", err)
		}
		if err := b.Refresh(); err != nil {
			log.Printf("[burner] refresh after depletion failed: %v", err)
		}
		return
	}

	b.syncGuards()
}

// Close 拆除计时器并等待后台持久化收尾
// 所有退出路径共用这一处释放，避免泄漏的 ticker 继续空转
func (b *Burner) Close() {
	b.mu.Lock()
	if b.stopCh != nil {
		close(b.stopCh)
		b.stopCh = nil
	}
	b.mu.Unlock()

	for _, m := range b.machines {
		m.Flush()
	}
}

func (b *Burner) activeMachine() *Machine {
	for _, id := range b.order {
		if m := b.machines[id]; m.State() == StateBurning {
			return m
		}
	}
	return nil
}

// syncGuards 下发互斥与燃料守卫：正在燃烧的火苗永远不被自己的活跃状态屏蔽
func (b *Burner) syncGuards() {
	active := b.activeMachine()
	depleted := b.fuel.HasBudget() && b.fuel.LiveRemainingSeconds(active != nil) <= 0

	for _, m := range b.machines {
		m.SetBlocked(active != nil && active != m)
		m.SetFuelDepleted(depleted)
	}
}

// syncTimer 只在有会话运行时保持 1 秒的重算循环，状态一变立即拆装
func (b *Burner) syncTimer() {
	shouldRun := b.activeMachine() != nil

	b.mu.Lock()
	defer b.mu.Unlock()

	if shouldRun && b.stopCh == nil {
		stop := make(chan struct{})
		b.stopCh = stop
		go b.loop(stop)
	}
	if !shouldRun && b.stopCh != nil {
		close(b.stopCh)
		b.stopCh = nil
	}
}

func (b *Burner) loop(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.Tick()
		case <-stop:
			return
		}
	}
}
