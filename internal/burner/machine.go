package burner

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/0Calories/hibana-sub000/internal/db"
	"github.com/0Calories/hibana-sub000/internal/service"
)

// State 是火苗卡片的可见状态，完全由会话行加上瞬态的 sealing 派生
type State string

const (
	StateUntended State = "untended"
	StateBurning  State = "burning"
	StatePaused   State = "paused"
	StateSealing  State = "sealing"
	StateSealed   State = "sealed"
)

const (
	// SealIntentThreshold：长按进度超过该比例才切换到 sealing，避免误触闪烁
	SealIntentThreshold = 0.05

	pauseRetryAttempts = 2
	pauseRetryDelay    = 1500 * time.Millisecond
)

var (
	// ErrBlocked 表示另一个火苗正在燃烧，toggle 被禁用
	ErrBlocked = errors.New("another flame is burning")
	// ErrFuelDepleted 表示当日燃料已耗尽
	ErrFuelDepleted = errors.New("fuel budget exhausted")
)

// SessionStore 是状态机消费的会话台账窄契约，由 service.SessionService 满足
type SessionStore interface {
	StartSession(flameID uint, date string) (*db.FlameSession, error)
	EndSession(flameID uint, date string, at time.Time) (*db.FlameSession, error)
	SetCompletion(flameID uint, date string, completed bool) (*db.FlameSession, error)
	GetAllSessionsForDate(userID uint, date string) ([]db.FlameSession, error)
}

// FuelStore 是油表消费的预算快照契约，由 service.FuelService 满足
type FuelStore interface {
	GetBudgetSnapshot(userID uint, date string) (*service.FuelSnapshot, error)
}

// DeriveState 从会话行派生卡片状态
// sealing 是唯一不落库的瞬态：行刷新永远不会打断进行中的长按
func DeriveState(session *db.FlameSession, sealing bool) State {
	if session == nil {
		return StateUntended
	}
	if session.Completed {
		return StateSealed
	}
	if sealing {
		return StateSealing
	}
	if session.Running() {
		return StateBurning
	}
	if session.EndedAt != nil || session.DurationSeconds > 0 {
		return StatePaused
	}
	return StateUntended
}

// Machine 是单个火苗的当日状态机
// 可见状态不独立存储，每次都从会话行重新派生，防止与服务端脱钩
type Machine struct {
	flame db.Flame
	date  string
	store SessionStore

	mu            sync.Mutex
	session       *db.FlameSession
	sealing       bool
	blocked       bool
	depleted      bool
	targetSeconds int
	pauseGen      uint64

	now     func() time.Time
	sleep   func(time.Duration)
	onError func(error)
	pending sync.WaitGroup
}

// NewMachine 构造火苗状态机，目标时长默认取火苗自身预算
func NewMachine(store SessionStore, flame db.Flame, date string) *Machine {
	return &Machine{
		flame:         flame,
		date:          date,
		store:         store,
		targetSeconds: flame.BudgetMinutes * 60,
		now:           time.Now,
		sleep:         time.Sleep,
	}
}

// SetTargetSeconds 应用排期里的分钟覆盖
func (m *Machine) SetTargetSeconds(seconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seconds > 0 {
		m.targetSeconds = seconds
	}
}

// OnError 注册可恢复错误的上抛回调（toast 等价物）
func (m *Machine) OnError(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = fn
}

// Flame 返回状态机绑定的火苗
func (m *Machine) Flame() db.Flame {
	return m.flame
}

// State 返回当前派生状态
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return DeriveState(m.session, m.sealing)
}

// Session 返回当前会话行的副本
func (m *Machine) Session() *db.FlameSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	copied := *m.session
	return &copied
}

// Refresh 用服务端行重新派生状态
// 进行中的 sealing 不会被并发的行刷新打断（sealing 标志独立于行）
func (m *Machine) Refresh(session *db.FlameSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
}

// SetBlocked 标记其它火苗正在燃烧
func (m *Machine) SetBlocked(blocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked = blocked
}

// SetFuelDepleted 标记当日燃料已耗尽
func (m *Machine) SetFuelDepleted(depleted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depleted = depleted
}

// Toggle 在 untended/paused 与 burning 之间切换
// 暂停路径：先捕获暂停时刻并乐观翻转本地状态，再带重试持久化；
// 重试耗尽也不回滚本地 paused，错误经 OnError 上抛，等待用户下一次操作补偿
func (m *Machine) Toggle() error {
	m.mu.Lock()

	switch DeriveState(m.session, m.sealing) {
	case StateSealed, StateSealing:
		m.mu.Unlock()
		return nil
	case StateBurning:
		at := m.now()
		paused := *m.session
		ran := int(at.Sub(*paused.StartedAt).Seconds())
		if ran > 0 {
			paused.DurationSeconds += ran
		}
		paused.StartedAt = nil
		paused.EndedAt = &at
		m.session = &paused

		m.pauseGen++
		m.pending.Add(1)
		go m.persistPause(at, m.pauseGen)

		m.mu.Unlock()
		return nil
	default:
		if m.blocked {
			m.mu.Unlock()
			return ErrBlocked
		}
		if m.depleted {
			m.mu.Unlock()
			return ErrFuelDepleted
		}
		m.mu.Unlock()

		session, err := m.store.StartSession(m.flame.ID, m.date)
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}

		m.mu.Lock()
		m.session = session
		// 恢复燃烧会作废还在后台重试的暂停落库，迟到的成功不得结束新会话
		m.pauseGen++
		m.mu.Unlock()
		return nil
	}
}

func (m *Machine) persistPause(at time.Time, gen uint64) {
	defer m.pending.Done()

	var lastErr error
	for attempt := 0; attempt <= pauseRetryAttempts; attempt++ {
		if attempt > 0 {
			m.sleep(pauseRetryDelay)
		}

		// 重试窗口内用户已恢复燃烧：放弃这次落库，交给错误回调提示补偿
		if m.pauseSuperseded(gen) {
			m.report(fmt.Errorf("pause at %s superseded by resume, interval not persisted", at.Format(time.RFC3339)))
			return
		}

		session, err := m.store.EndSession(m.flame.ID, m.date, at)
		if err == nil {
			m.mu.Lock()
			stale := m.pauseGen != gen
			if !stale && (m.session == nil || !m.session.Completed) {
				m.session = session
			}
			m.mu.Unlock()
			if stale {
				m.report(fmt.Errorf("pause at %s raced a resume, refresh required", at.Format(time.RFC3339)))
			}
			return
		}

		lastErr = err
		// 校验失败与不变式破坏不重试，只有瞬时存储错误值得再试
		if errors.Is(err, service.ErrInvalidDate) ||
			errors.Is(err, service.ErrSessionNotFound) ||
			errors.Is(err, service.ErrMissingStartTime) ||
			errors.Is(err, service.ErrSessionSealed) {
			break
		}
	}

	m.report(fmt.Errorf("persist pause at %s: %w", at.Format(time.RFC3339), lastErr))
}

// BeginSealing 尝试进入封印确认态
// 仅在 paused 且耗时达到封印阈值、长按进度跨过意图阈值时生效，否则保持原状
func (m *Machine) BeginSealing(pressFraction float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if DeriveState(m.session, m.sealing) != StatePaused {
		return false
	}
	if pressFraction < SealIntentThreshold {
		return false
	}
	if !m.sealReadyLocked() {
		return false
	}

	m.sealing = true
	return true
}

// CancelSealing 提前松手，退回 paused
func (m *Machine) CancelSealing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sealing = false
}

// CompleteSeal 完成封印：先乐观翻到 sealed 驱动庆祝界面，再持久化
// 存储失败时执行补偿迁移退回 paused 并返回错误，绝不留下已封印未入账的脏状态
func (m *Machine) CompleteSeal() error {
	m.mu.Lock()
	if DeriveState(m.session, m.sealing) != StateSealing {
		m.mu.Unlock()
		return nil
	}

	previous := m.session
	sealed := *m.session
	sealed.Completed = true
	m.session = &sealed
	m.sealing = false
	m.mu.Unlock()

	updated, err := m.store.SetCompletion(m.flame.ID, m.date, true)
	if err != nil {
		m.mu.Lock()
		m.session = previous
		m.sealing = false
		m.mu.Unlock()
		return fmt.Errorf("complete seal: %w", err)
	}

	m.mu.Lock()
	m.session = updated
	m.mu.Unlock()
	return nil
}

// ElapsedSeconds 返回当前累计耗时（含运行中的区间）
func (m *Machine) ElapsedSeconds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.elapsedLocked()
}

// Progress 返回 [0,1] 的进度比例，没有目标时恒为 0
func (m *Machine) Progress() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.targetSeconds <= 0 {
		return 0
	}
	progress := float64(m.elapsedLocked()) / float64(m.targetSeconds)
	if progress > 1 {
		return 1
	}
	return progress
}

// Overburning 表示燃烧中且已超出目标时长，仅用于视觉强化，不截停计时也不影响奖励封顶
func (m *Machine) Overburning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return DeriveState(m.session, m.sealing) == StateBurning &&
		m.targetSeconds > 0 && m.elapsedLocked() > m.targetSeconds
}

// SealReady 表示耗时已达到封印阈值
func (m *Machine) SealReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sealReadyLocked()
}

// Flush 等待后台的暂停持久化收尾，用于测试与拆除
func (m *Machine) Flush() {
	m.pending.Wait()
}

func (m *Machine) elapsedLocked() int {
	if m.session == nil {
		return 0
	}
	return service.ElapsedSeconds(*m.session, m.now())
}

func (m *Machine) pauseSuperseded(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauseGen != gen
}

func (m *Machine) sealReadyLocked() bool {
	threshold := service.SealThresholdSeconds(m.flame)
	if threshold <= 0 {
		return false
	}
	return m.elapsedLocked() >= threshold
}

func (m *Machine) report(err error) {
	m.mu.Lock()
	fn := m.onError
	m.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
