package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/0Calories/hibana-sub000/internal/service"
	"github.com/gin-gonic/gin"
)

// GetSparks 返回火花余额与最近流水
func (a *API) GetSparks(c *gin.Context) {
	userID := currentUserID(c)

	balance, err := a.sparks.Wallet(userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取火花余额失败")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	records, err := a.sparks.Transactions(userID, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取火花流水失败")
		return
	}

	items := make([]gin.H, 0, len(records))
	for _, record := range records {
		items = append(items, gin.H{
			"tx_id":      record.TxID,
			"session_id": record.SessionID,
			"amount":     record.Amount,
			"reason":     record.Reason,
			"created_at": record.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance, "transactions": items})
}

// PreviewReward 返回不落库的奖励预估，供界面在封印前展示
func (a *API) PreviewReward(c *gin.Context) {
	elapsed, _ := strconv.Atoi(c.Query("elapsed"))
	target, _ := strconv.Atoi(c.Query("target"))
	level, _ := strconv.Atoi(c.Query("level"))

	c.JSON(http.StatusOK, service.ComputeReward(elapsed, target, level))
}
