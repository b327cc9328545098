package handlers

import (
	"context"
	"net/http"
	"strconv"

	"dinein_backend/internal/models"
	"dinein_backend/internal/services"
	"dinein_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// VisitHandler exposes the visit lifecycle to hosts and guests.
type VisitHandler struct {
	visitService services.VisitService
}

func NewVisitHandler(vs services.VisitService) *VisitHandler {
	return &VisitHandler{visitService: vs}
}

// BookByHost handles POST /webapp/v1/visits/book/.
func (h *VisitHandler) BookByHost(c *gin.Context) {
	var req services.BookVisitRequest
	if !bindJSON(c, &req) {
		return
	}
	visit, err := h.visitService.BookByHost(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondServiceError(c, err, "book visit")
		return
	}
	c.JSON(http.StatusCreated, visit)
}

// BookByUser handles POST /mobile/v1/visits/book/.
func (h *VisitHandler) BookByUser(c *gin.Context) {
	var req services.BookVisitRequest
	if !bindJSON(c, &req) {
		return
	}
	visit, err := h.visitService.BookByUser(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondServiceError(c, err, "book visit")
		return
	}
	c.JSON(http.StatusCreated, visit)
}

// ListVisits supports status, booked_date, booked_time, page and page_size filters.
func (h *VisitHandler) ListVisits(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filters := models.VisitFilters{Pagination: models.Pagination{Page: page, PageSize: pageSize}}
	if statusStr := c.Query("status"); statusStr != "" {
		if !models.IsValidVisitStatus(statusStr) {
			utils.RespondValidationFailed(c, "Invalid status value: "+statusStr)
			return
		}
		status := models.VisitStatus(statusStr)
		filters.Status = &status
	}
	if dateStr := c.Query("booked_date"); dateStr != "" {
		d, err := models.ParseDate(dateStr)
		if err != nil {
			utils.RespondValidationFailed(c, "Invalid booked_date format. Use YYYY-MM-DD.")
			return
		}
		filters.BookedDate = &d
	}
	if timeStr := c.Query("booked_time"); timeStr != "" {
		t, err := models.ParseClockTime(timeStr)
		if err != nil {
			utils.RespondValidationFailed(c, "Invalid booked_time format. Use HH:MM or HH:MM:SS.")
			return
		}
		filters.BookedTime = &t
	}

	visits, total, err := h.visitService.ListVisits(c.Request.Context(), actorFrom(c), filters)
	if err != nil {
		respondServiceError(c, err, "list visits")
		return
	}
	if visits == nil {
		visits = []models.Visit{}
	}
	normalized := filters.Pagination.Normalize()
	c.JSON(http.StatusOK, gin.H{
		"data":      visits,
		"total":     total,
		"page":      normalized.Page,
		"page_size": normalized.PageSize,
	})
}

func (h *VisitHandler) GetVisit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	visit, err := h.visitService.GetVisit(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondServiceError(c, err, "fetch visit")
		return
	}
	c.JSON(http.StatusOK, visit)
}

func (h *VisitHandler) Start(c *gin.Context) {
	h.transition(c, "start visit", h.visitService.Start)
}

func (h *VisitHandler) Finish(c *gin.Context) {
	h.transition(c, "finish visit", h.visitService.Finish)
}

func (h *VisitHandler) OpenBill(c *gin.Context) {
	h.transition(c, "open bill", h.visitService.OpenBill)
}

func (h *VisitHandler) transition(c *gin.Context, op string, fn func(context.Context, services.Actor, int64) (*models.Visit, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	visit, err := fn(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondServiceError(c, err, op)
		return
	}
	c.JSON(http.StatusOK, visit)
}

func (h *VisitHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.CancelVisitRequest
	if !bindJSON(c, &req) {
		return
	}
	visit, err := h.visitService.Cancel(c.Request.Context(), actorFrom(c), id, req.CancelReason)
	if err != nil {
		respondServiceError(c, err, "cancel visit")
		return
	}
	c.JSON(http.StatusOK, visit)
}

// InviteGuest handles POST /mobile/v1/visits/:id/guests/.
func (h *VisitHandler) InviteGuest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.InviteGuestRequest
	if !bindJSON(c, &req) {
		return
	}
	guest, err := h.visitService.InviteGuest(c.Request.Context(), actorFrom(c), id, req.UserID)
	if err != nil {
		respondServiceError(c, err, "invite guest")
		return
	}
	c.JSON(http.StatusCreated, guest)
}

// JoinVisit handles POST /mobile/v1/visits/:id/join/.
func (h *VisitHandler) JoinVisit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	guest, err := h.visitService.JoinVisit(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondServiceError(c, err, "join visit")
		return
	}
	c.JSON(http.StatusOK, guest)
}
