package handlers

import (
	"net/http"

	"dinein_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// OrderHandler holds the order service.
type OrderHandler struct {
	orderService services.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(os services.OrderService) *OrderHandler {
	return &OrderHandler{orderService: os}
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	visitID, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, err := h.orderService.GetOrder(c.Request.Context(), actorFrom(c), visitID)
	if err != nil {
		respondServiceError(c, err, "fetch order")
		return
	}
	c.JSON(http.StatusOK, order)
}

// AddItem handles POST /webapp/v1/visits/:id/order/items/.
func (h *OrderHandler) AddItem(c *gin.Context) {
	visitID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.AddOrderItemRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := h.orderService.AddItem(c.Request.Context(), actorFrom(c), visitID, req)
	if err != nil {
		respondServiceError(c, err, "add order item")
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) ServeItem(c *gin.Context) {
	visitID, ok := pathID(c, "id")
	if !ok {
		return
	}
	itemID, ok := pathID(c, "item_id")
	if !ok {
		return
	}
	order, err := h.orderService.ServeItem(c.Request.Context(), actorFrom(c), visitID, itemID)
	if err != nil {
		respondServiceError(c, err, "serve order item")
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) CancelItem(c *gin.Context) {
	visitID, ok := pathID(c, "id")
	if !ok {
		return
	}
	itemID, ok := pathID(c, "item_id")
	if !ok {
		return
	}
	order, err := h.orderService.CancelItem(c.Request.Context(), actorFrom(c), visitID, itemID)
	if err != nil {
		respondServiceError(c, err, "cancel order item")
		return
	}
	c.JSON(http.StatusOK, order)
}

// UpdateOrder handles PATCH /webapp/v1/visits/:id/order/.
func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	visitID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := h.orderService.UpdateOrder(c.Request.Context(), actorFrom(c), visitID, req)
	if err != nil {
		respondServiceError(c, err, "update order")
		return
	}
	c.JSON(http.StatusOK, order)
}
