package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/0Calories/hibana-sub000/internal/db"
	"github.com/0Calories/hibana-sub000/internal/service"
	"github.com/gin-gonic/gin"
)

// GetSchedule 返回某个星期几的排期，未配置时返回空排期
func (a *API) GetSchedule(c *gin.Context) {
	day, ok := parseDayParam(c)
	if !ok {
		return
	}

	schedule, err := a.schedules.Get(day)
	if err != nil {
		if errors.Is(err, service.ErrScheduleNotFound) {
			c.JSON(http.StatusOK, gin.H{"day_of_week": day, "fuel_budget_minutes": 0, "flame_ids": []uint{}})
			return
		}
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, scheduleToPayload(*schedule))
}

// PutSchedule 写入某个星期几的燃料预算与火苗编排
func (a *API) PutSchedule(c *gin.Context) {
	day, ok := parseDayParam(c)
	if !ok {
		return
	}

	var payload struct {
		FuelBudgetMinutes *int   `json:"fuel_budget_minutes"`
		FlameIDs          []uint `json:"flame_ids"`
		MinuteOverrides   []int  `json:"minute_overrides"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	// 覆盖只随编排一起写入，不接受单独提交
	if payload.MinuteOverrides != nil && payload.FlameIDs == nil {
		respondError(c, http.StatusBadRequest, "minute_overrides 必须与 flame_ids 一同提交")
		return
	}

	if payload.FuelBudgetMinutes != nil {
		if _, err := a.schedules.SetFuelBudget(day, *payload.FuelBudgetMinutes); err != nil {
			handleServiceError(c, err)
			return
		}
	}

	if payload.FlameIDs != nil {
		if _, err := a.schedules.AssignFlames(day, payload.FlameIDs, payload.MinuteOverrides); err != nil {
			handleServiceError(c, err)
			return
		}
	}

	schedule, err := a.schedules.Get(day)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, scheduleToPayload(*schedule))
}

func parseDayParam(c *gin.Context) (int, bool) {
	day, err := strconv.Atoi(c.Param("day"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的星期参数")
		return 0, false
	}
	return day, true
}

func scheduleToPayload(schedule db.DaySchedule) gin.H {
	flameIDs := schedule.FlameIDs()
	if flameIDs == nil {
		flameIDs = []uint{}
	}

	payload := gin.H{
		"day_of_week":         schedule.DayOfWeek,
		"fuel_budget_minutes": schedule.FuelBudgetMinutes,
		"flame_ids":           flameIDs,
	}
	if overrides := schedule.MinuteOverrides(); overrides != nil {
		payload["minute_overrides"] = overrides
	}
	return payload
}
