package handlers

import (
	"net/http"

	"dinein_backend/internal/services"

	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	accountService services.AccountService
}

func NewAccountHandler(as services.AccountService) *AccountHandler {
	return &AccountHandler{accountService: as}
}

// GetMe handles GET /shared/v1/users/me/.
func (h *AccountHandler) GetMe(c *gin.Context) {
	user, err := h.accountService.GetMe(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondServiceError(c, err, "fetch current user")
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteMe handles DELETE /shared/v1/users/me/.
func (h *AccountHandler) DeleteMe(c *gin.Context) {
	if err := h.accountService.DeleteMe(c.Request.Context(), actorFrom(c)); err != nil {
		respondServiceError(c, err, "delete account")
		return
	}
	c.Status(http.StatusNoContent)
}
