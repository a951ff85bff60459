package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/0Calories/hibana-sub000/internal/service"
	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	raw := c.Param(key)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(id), nil
}

// requestDate 读取 query/body 里的 date，缺省取今天
func requestDate(raw string) string {
	if raw == "" {
		return service.Today()
	}
	return raw
}

// handleServiceError 把服务层哨兵错误映射到 HTTP 状态码
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDate),
		errors.Is(err, service.ErrInvalidDayOfWeek),
		errors.Is(err, service.ErrInvalidBudget),
		errors.Is(err, service.ErrOverrideMismatch),
		errors.Is(err, service.ErrFlameInvalidInput):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrFlameNotFound),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrScheduleNotFound),
		errors.Is(err, service.ErrRewardNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrMissingStartTime),
		errors.Is(err, service.ErrSessionSealed):
		respondError(c, http.StatusConflict, err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "操作失败")
	}
}
