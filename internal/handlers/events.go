package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/services"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/store"
)

// EventsHandler serves calendar reads and writes, availability, sync
// runs, sync history, and the spreadsheet export.
type EventsHandler struct {
	sync *services.SyncService
}

// NewEventsHandler creates the calendar operations handler.
func NewEventsHandler(sync *services.SyncService) *EventsHandler {
	return &EventsHandler{sync: sync}
}

// defaultListWindow bounds event listings when the query carries no
// explicit range.
const defaultListWindow = 7 * 24 * time.Hour

func routeTarget(c *gin.Context) (string, models.Provider, bool) {
	p, err := models.ParseProvider(c.Param("provider"))
	if err != nil {
		respond(c, http.StatusBadRequest, "invalid_provider", err.Error())
		return "", "", false
	}
	return c.Param("unit"), p, true
}

// parseWindow reads from/to query params, applying a one-week default.
func parseWindow(c *gin.Context) (time.Time, time.Time, bool) {
	from := time.Now().UTC()
	to := from.Add(defaultListWindow)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respond(c, http.StatusBadRequest, "invalid_window", "from must be RFC3339")
			return time.Time{}, time.Time{}, false
		}
		from = parsed
		to = from.Add(defaultListWindow)
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respond(c, http.StatusBadRequest, "invalid_window", "to must be RFC3339")
			return time.Time{}, time.Time{}, false
		}
		to = parsed
	}
	if !to.After(from) {
		respond(c, http.StatusBadRequest, "invalid_window", "to must be after from")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// ListEvents returns the provider calendar inside the requested window.
func (h *EventsHandler) ListEvents(c *gin.Context) {
	unitID, p, ok := routeTarget(c)
	if !ok {
		return
	}
	from, to, ok := parseWindow(c)
	if !ok {
		return
	}

	events, err := h.sync.ListEvents(c.Request.Context(), unitID, p, from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

type createEventRequest struct {
	Title       string    `json:"title" binding:"required"`
	Start       time.Time `json:"start" binding:"required"`
	End         time.Time `json:"end" binding:"required"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
}

// CreateEvent writes a new event to the provider calendar.
func (h *EventsHandler) CreateEvent(c *gin.Context) {
	unitID, p, ok := routeTarget(c)
	if !ok {
		return
	}

	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	created, err := h.sync.CreateEvent(c.Request.Context(), unitID, p, &models.CalendarEvent{
		Title:       req.Title,
		Start:       req.Start,
		End:         req.End,
		Location:    req.Location,
		Description: req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

type updateEventRequest struct {
	Title       string     `json:"title"`
	Start       *time.Time `json:"start"`
	End         *time.Time `json:"end"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
}

// UpdateEvent applies a partial change to a provider event.
func (h *EventsHandler) UpdateEvent(c *gin.Context) {
	unitID, p, ok := routeTarget(c)
	if !ok {
		return
	}

	var req updateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	change := &models.EventChange{
		Title:       req.Title,
		Start:       req.Start,
		End:         req.End,
		Location:    req.Location,
		Description: req.Description,
	}
	if err := h.sync.UpdateEvent(c.Request.Context(), unitID, p, c.Param("id"), change); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_id": c.Param("id"), "status": "updated"})
}

// CancelEvent removes a provider event, subject to the cancellation
// lead-time policy.
func (h *EventsHandler) CancelEvent(c *gin.Context) {
	unitID, p, ok := routeTarget(c)
	if !ok {
		return
	}

	if err := h.sync.CancelEvent(c.Request.Context(), unitID, p, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_id": c.Param("id"), "status": "cancelled"})
}

// Availability returns free slots between the unit's events.
func (h *EventsHandler) Availability(c *gin.Context) {
	unitID, p, ok := routeTarget(c)
	if !ok {
		return
	}
	from, to, ok := parseWindow(c)
	if !ok {
		return
	}

	slot := 30 * time.Minute
	if raw := c.Query("slot_minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			respond(c, http.StatusBadRequest, "invalid_request", "slot_minutes must be a positive integer")
			return
		}
		slot = time.Duration(minutes) * time.Minute
	}

	slots, err := h.sync.AvailableSlots(c.Request.Context(), unitID, p, from, to, slot)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots, "count": len(slots)})
}

// Sync runs one calendar sync pass for the unit.
func (h *EventsHandler) Sync(c *gin.Context) {
	unitID, p, ok := routeTarget(c)
	if !ok {
		return
	}

	result, err := h.sync.Sync(c.Request.Context(), unitID, p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SyncLogs returns the unit's sync history, newest first.
func (h *EventsHandler) SyncLogs(c *gin.Context) {
	unitID := c.Param("unit")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	params := store.NewPaginationParams(page, pageSize, c.Query("search"))

	logs, pagination, err := h.sync.History(unitID, params)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "pagination": pagination})
}

type appendRowRequest struct {
	SpreadsheetID string `json:"spreadsheet_id" binding:"required"`
	Range         string `json:"range" binding:"required"`
	Values        []any  `json:"values" binding:"required"`
}

// AppendRow exports one enrollment row to the unit's spreadsheet.
func (h *EventsHandler) AppendRow(c *gin.Context) {
	unitID := c.Param("unit")

	var req appendRowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.sync.AppendEnrollmentRow(c.Request.Context(), unitID, req.SpreadsheetID, req.Range, req.Values); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "appended"})
}
