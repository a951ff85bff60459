package handler

import (
	"github.com/0Calories/hibana-sub000/internal/service"
	"gorm.io/gorm"
)

// API 聚合 HTTP 处理器共享的服务依赖
type API struct {
	db        *gorm.DB
	flames    *service.FlameService
	sessions  *service.SessionService
	fuel      *service.FuelService
	schedules *service.ScheduleService
	sparks    *service.SparkService
}

// NewAPI 基于同一个数据库连接构建全部服务
func NewAPI(db *gorm.DB) *API {
	return &API{
		db:        db,
		flames:    service.NewFlameService(db),
		sessions:  service.NewSessionService(db),
		fuel:      service.NewFuelService(db),
		schedules: service.NewScheduleService(db),
		sparks:    service.NewSparkService(db),
	}
}
