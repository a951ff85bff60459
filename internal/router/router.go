package router

import (
	"github.com/0Calories/hibana-sub000/internal/handler"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Setup 配置 Gin 引擎和路由
func Setup(gdb *gorm.DB, sessionSecret string) *gin.Engine {
	r := gin.Default()

	// 配置会话中间件
	store := cookie.NewStore([]byte(sessionSecret))
	r.Use(sessions.Sessions("hibana_session", store))

	api := handler.NewAPI(gdb)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	r.POST("/api/auth/login", api.Login)
	r.POST("/api/auth/logout", api.Logout)

	// 需要认证的核心路由
	authed := r.Group("/api")
	authed.Use(handler.AuthRequired())
	{
		authed.GET("/flames", api.ListFlames)
		authed.POST("/flames", api.CreateFlame)
		authed.GET("/flames/:id", api.GetFlame)
		authed.PUT("/flames/:id", api.UpdateFlame)
		authed.DELETE("/flames/:id", api.ArchiveFlame)

		authed.POST("/flames/:id/toggle", api.ToggleFlame)
		authed.POST("/flames/:id/seal", api.SealFlame)

		authed.GET("/sessions", api.DayView)
		authed.GET("/fuel", api.GetFuel)

		authed.GET("/schedule/:day", api.GetSchedule)
		authed.PUT("/schedule/:day", api.PutSchedule)

		authed.GET("/sparks", api.GetSparks)
		authed.GET("/sparks/preview", api.PreviewReward)
	}

	return r
}
