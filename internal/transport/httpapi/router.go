package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Freeeeeet/class_scheduler/internal/service"
)

// ActorHeader: заголовок с ID пользователя, выполняющего изменение (попадает в журнал)
const ActorHeader = "X-Actor-ID"

// NewRouter собирает gin-роутер API расписания
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery(), actor())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		classes := api.Group("/classes")
		classes.GET("", h.ListClasses)
		classes.POST("", h.CreateClass)
		classes.GET("/:id", h.GetClass)
		classes.POST("/:id/close", h.CloseClass)
		classes.GET("/:id/timeline", h.ClassTimeline)
		classes.GET("/:id/next", h.NextOccurrence)
		classes.GET("/:id/calendar.ics", h.ClassCalendar)
		classes.GET("/:id/changes", h.ClassChanges)
		classes.GET("/:id/overrides", h.ClassOverrides)
		classes.GET("/:id/series", h.ListSeries)
		classes.POST("/:id/series", h.CreateSeries)

		series := api.Group("/series")
		series.GET("/:id/timeline", h.SeriesTimeline)
		series.POST("/:id/cancel", h.CancelOccurrence)
		series.POST("/:id/reschedule", h.RescheduleOccurrence)
		series.POST("/:id/split", h.SplitSeries)

		api.DELETE("/overrides/:id", h.RestoreOverride)
	}

	return router
}

// actor переносит X-Actor-ID в контекст запроса
func actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(ActorHeader)
		if raw == "" {
			c.Next()
			return
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, ActorHeader+" must be an integer")
			return
		}

		c.Request = c.Request.WithContext(service.WithActor(c.Request.Context(), id))
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("HTTP request", fields...)
			return
		}
		logger.Debug("HTTP request", fields...)
	}
}
