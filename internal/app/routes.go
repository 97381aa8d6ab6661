package app

import (
	"github.com/gin-gonic/gin"

	"caseload-scheduler/internal/config"
)

// Router wires the HTTP surface onto a gin engine.
func (a *App) Router(cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/healthz", a.HealthHandler)

	// calendar clients subscribe with the token in the URL
	router.GET("/api/calendar.ics", AuthMiddleware(cfg.Auth, cfg.FeedTokenParam), a.ICSFeedHandler)

	api := router.Group("/api")
	api.Use(AuthMiddleware(cfg.Auth, ""))
	{
		api.GET("/calendar", a.WindowHandler)

		appointments := api.Group("/appointments")
		{
			appointments.POST("", a.CreateAppointmentHandler)
			appointments.GET("/:id", a.GetAppointmentHandler)
			appointments.DELETE("/:id", a.DeleteAppointmentHandler)
		}
		api.GET("/series/:id", a.GetSeriesHandler)

		events := api.Group("/events")
		{
			events.POST("/:eventId/reschedule", a.RescheduleHandler)
			events.POST("/:eventId/cancel", a.CancelHandler)
			events.PUT("/:eventId/status", a.StatusHandler)
		}
	}
	return router
}
