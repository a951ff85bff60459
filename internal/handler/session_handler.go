package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/0Calories/hibana-sub000/internal/burner"
	"github.com/0Calories/hibana-sub000/internal/db"
	"github.com/0Calories/hibana-sub000/internal/service"
	"github.com/gin-gonic/gin"
)

// ToggleFlame 在开始与暂停之间切换某个火苗的当日会话
// 互斥守卫：已有别的火苗在燃烧、或燃料已耗尽时拒绝开始；正在燃烧的火苗永远允许暂停
func (a *API) ToggleFlame(c *gin.Context) {
	flameID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的火苗ID")
		return
	}

	var payload struct {
		Date     string `json:"date"`
		PausedAt string `json:"paused_at"` // RFC3339，可选：暂停动作的捕获时刻
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}
	date := requestDate(payload.Date)

	flame, err := a.flames.Get(flameID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	session, err := a.sessions.GetSession(flameID, date)
	if err != nil && !errors.Is(err, service.ErrSessionNotFound) {
		handleServiceError(c, err)
		return
	}

	if session != nil && session.Running() {
		// 暂停：优先采用客户端捕获的时刻，保住奖励计算的时长精度
		at := time.Time{}
		if payload.PausedAt != "" {
			parsed, parseErr := time.Parse(time.RFC3339, payload.PausedAt)
			if parseErr != nil {
				respondError(c, http.StatusBadRequest, "无效的暂停时刻")
				return
			}
			at = parsed
		}

		updated, err := a.sessions.EndSession(flameID, date, at)
		if err != nil {
			handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": sessionToPayload(*updated), "state": string(burner.DeriveState(updated, false))})
		return
	}

	if blockedBy, err := a.activeFlameID(flame.UserID, date, flameID); err == nil && blockedBy != 0 {
		respondError(c, http.StatusConflict, "另一个火苗正在燃烧")
		return
	}

	if snapshot, err := a.fuel.GetBudgetSnapshot(flame.UserID, date); err == nil && snapshot != nil && snapshot.RemainingSeconds <= 0 {
		respondError(c, http.StatusConflict, "今日燃料已耗尽")
		return
	}

	started, err := a.sessions.StartSession(flameID, date)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": sessionToPayload(*started), "state": string(burner.DeriveState(started, false))})
}

// SealFlame 封印当日会话并触发火花入账
// 入账以会话为幂等键，重复封印事件不会二次加钱
func (a *API) SealFlame(c *gin.Context) {
	flameID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的火苗ID")
		return
	}

	var payload struct {
		Date string `json:"date"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}
	date := requestDate(payload.Date)

	flame, err := a.flames.Get(flameID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	session, err := a.sessions.GetSession(flameID, date)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	threshold := service.SealThresholdSeconds(*flame)
	if !session.Completed && service.ElapsedSeconds(*session, time.Now()) < threshold {
		respondError(c, http.StatusConflict, "尚未达到封印阈值")
		return
	}

	sealed, err := a.sessions.SetCompletion(flameID, date, true)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	credited, err := a.sparks.CreditSealReward(currentUserID(c), flameID, date)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session":  sessionToPayload(*sealed),
		"state":    string(burner.DeriveState(sealed, false)),
		"credited": credited,
	})
}

// DayView 返回某天全部编排火苗的派生状态、耗时与燃料快照
func (a *API) DayView(c *gin.Context) {
	date := requestDate(c.Query("date"))
	userID := currentUserID(c)

	sessions, err := a.sessions.GetAllSessionsForDate(userID, date)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	flames, err := a.flames.List(service.FlameFilter{UserID: userID})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取火苗列表失败")
		return
	}

	schedule := a.scheduleForDate(date)

	byFlame := make(map[uint]db.FlameSession, len(sessions))
	for _, s := range sessions {
		byFlame[s.FlameID] = s
	}

	now := time.Now()
	items := make([]gin.H, 0, len(flames))
	for _, flame := range flames {
		item := gin.H{
			"flame":          flameToPayload(flame),
			"state":          string(burner.StateUntended),
			"elapsed":        0,
			"target_seconds": service.EffectiveBudgetMinutes(flame, schedule) * 60,
		}
		if s, ok := byFlame[flame.ID]; ok {
			elapsed := service.ElapsedSeconds(s, now)
			item["session"] = sessionToPayload(s)
			item["state"] = string(burner.DeriveState(&s, false))
			item["elapsed"] = elapsed
		}
		items = append(items, item)
	}

	payload := gin.H{"date": date, "flames": items}
	if snapshot, err := a.fuel.GetBudgetSnapshot(userID, date); err == nil && snapshot != nil {
		payload["fuel"] = gin.H{
			"budget_minutes":    snapshot.BudgetMinutes,
			"remaining_minutes": snapshot.RemainingMinutes,
			"remaining_seconds": snapshot.RemainingSeconds,
		}
	}

	c.JSON(http.StatusOK, payload)
}

// activeFlameID 返回用户当天正在运行的火苗，没有时为 0；excludeID 自身不算阻塞
func (a *API) activeFlameID(userID uint, date string, excludeID uint) (uint, error) {
	sessions, err := a.sessions.GetAllSessionsForDate(userID, date)
	if err != nil {
		return 0, err
	}
	for _, s := range sessions {
		if s.Running() && s.FlameID != excludeID {
			return s.FlameID, nil
		}
	}
	return 0, nil
}

func (a *API) scheduleForDate(date string) *db.DaySchedule {
	day, err := service.ParseDate(date)
	if err != nil {
		return nil
	}
	schedule, err := a.schedules.Get(int(day.Weekday()))
	if err != nil {
		return nil
	}
	return schedule
}

func sessionToPayload(s db.FlameSession) gin.H {
	payload := gin.H{
		"id":               s.ID,
		"flame_id":         s.FlameID,
		"date":             s.Date,
		"duration_seconds": s.DurationSeconds,
		"completed":        s.Completed,
	}
	if s.StartedAt != nil {
		payload["started_at"] = s.StartedAt.Format(time.RFC3339)
	}
	if s.EndedAt != nil {
		payload["ended_at"] = s.EndedAt.Format(time.RFC3339)
	}
	return payload
}
