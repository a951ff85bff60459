package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetFuel 返回指定日期的燃料快照；未配置上限时 has_budget 为 false
func (a *API) GetFuel(c *gin.Context) {
	date := requestDate(c.Query("date"))

	snapshot, err := a.fuel.GetBudgetSnapshot(currentUserID(c), date)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	if snapshot == nil {
		c.JSON(http.StatusOK, gin.H{"date": date, "has_budget": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":              date,
		"has_budget":        true,
		"budget_minutes":    snapshot.BudgetMinutes,
		"remaining_minutes": snapshot.RemainingMinutes,
		"remaining_seconds": snapshot.RemainingSeconds,
	})
}
