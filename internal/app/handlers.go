package app

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/mo"

	appLog "caseload-scheduler/internal/log"
	"caseload-scheduler/internal/schedule"
)

// App holds the handler dependencies.
type App struct {
	Schedule *schedule.Service
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, schedule.ErrInvalidWindow),
		errors.Is(err, schedule.ErrInvalidStatus),
		errors.Is(err, schedule.ErrInvalidScope),
		errors.Is(err, schedule.ErrInvalidTimes):
		status = http.StatusBadRequest
	case errors.Is(err, schedule.ErrUnknownAppointment),
		errors.Is(err, schedule.ErrUnknownSeries),
		errors.Is(err, schedule.ErrUnknownOccurrence):
		status = http.StatusNotFound
	case errors.Is(err, schedule.ErrVirtualOccurrence),
		errors.Is(err, schedule.ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		appLog.Error("request failed", err, "method", c.Request.Method, "path", c.FullPath())
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func queryMillis(c *gin.Context, key string) (int64, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// GET /healthz
func (a *App) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /api/calendar?weekStart=ms&weekEnd=ms
func (a *App) WindowHandler(c *gin.Context) {
	weekStart, okStart := queryMillis(c, "weekStart")
	weekEnd, okEnd := queryMillis(c, "weekEnd")
	if !okStart || !okEnd {
		c.JSON(http.StatusBadRequest, gin.H{"error": "weekStart and weekEnd required (epoch ms)"})
		return
	}
	if weekStart > weekEnd {
		c.JSON(http.StatusBadRequest, gin.H{"error": "weekStart must not be after weekEnd"})
		return
	}

	events, err := a.Schedule.Events(c.Request.Context(), weekStart, weekEnd)
	if err != nil {
		writeError(c, err)
		return
	}
	if events == nil {
		events = []schedule.CalendarEvent{}
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// GET /api/calendar.ics
func (a *App) ICSFeedHandler(c *gin.Context) {
	var buf bytes.Buffer
	if err := a.Schedule.ExportICS(c.Request.Context(), &buf); err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}

// POST /api/appointments
func (a *App) CreateAppointmentHandler(c *gin.Context) {
	var req createAppointmentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	if req.RRule != "" {
		series, anchor, err := a.Schedule.BookRecurring(ctx, req.recurringBooking())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"appointment": anchor,
			"series":      series,
		})
		return
	}

	appt, err := a.Schedule.BookOneOff(ctx, schedule.Appointment{
		ClientID: req.ClientID,
		StartAt:  req.StartAt,
		EndAt:    req.endAt(),
		Status:   schedule.Status(req.Status),
		Note:     req.Note,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"appointment": appt})
}

// GET /api/appointments/:id
func (a *App) GetAppointmentHandler(c *gin.Context) {
	appt, err := a.Schedule.Appointment(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}

// DELETE /api/appointments/:id
func (a *App) DeleteAppointmentHandler(c *gin.Context) {
	if err := a.Schedule.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /api/series/:id
func (a *App) GetSeriesHandler(c *gin.Context) {
	series, exceptions, err := a.Schedule.Series(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if exceptions == nil {
		exceptions = []schedule.Exception{}
	}
	c.JSON(http.StatusOK, seriesResp{Series: series, Exceptions: exceptions})
}

// POST /api/events/:eventId/reschedule
func (a *App) RescheduleHandler(c *gin.Context) {
	var req rescheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	scope, err := schedule.ParseScope(req.Scope)
	if err != nil {
		writeError(c, err)
		return
	}

	occ, err := a.Schedule.Reschedule(c.Request.Context(), c.Param("eventId"), schedule.Edit{
		Scope:   scope,
		StartAt: req.StartAt,
		EndAt:   mo.PointerToOption(req.EndAt),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, occ.Event())
}

// POST /api/events/:eventId/cancel
func (a *App) CancelHandler(c *gin.Context) {
	if err := a.Schedule.Cancel(c.Request.Context(), c.Param("eventId")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PUT /api/events/:eventId/status
func (a *App) StatusHandler(c *gin.Context) {
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	appt, err := a.Schedule.SetStatus(c.Request.Context(), c.Param("eventId"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	if appt.ID == "" {
		// virtual occurrence canceled through an exception
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	c.JSON(http.StatusOK, appt)
}
