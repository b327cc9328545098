package handlers

import (
	"errors"
	"net/http"
	"reflect"

	"dinein_backend/internal/middleware"
	"dinein_backend/internal/models"
	"dinein_backend/internal/services"
	"dinein_backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// RegisterValidators adds the decimal rules used by request DTOs to gin's validator.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected gin validator engine")
	}
	// Decimals are validated through their string form.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	if err := v.RegisterValidation("decimal_gt0", decimalRule(func(d decimal.Decimal) bool { return d.IsPositive() })); err != nil {
		return err
	}
	return v.RegisterValidation("decimal_gte0", decimalRule(func(d decimal.Decimal) bool { return !d.IsNegative() }))
}

func decimalRule(ok func(decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		var d decimal.Decimal
		switch v := fl.Field().Interface().(type) {
		case string:
			parsed, err := decimal.NewFromString(v)
			if err != nil {
				return false
			}
			d = parsed
		case decimal.Decimal:
			d = v
		default:
			return false
		}
		return ok(d)
	}
}

// actorFrom reads the identity AuthMiddleware stored on the context.
func actorFrom(c *gin.Context) services.Actor {
	actor := services.Actor{
		UserID: c.GetInt64(middleware.ContextUserID),
		Role:   c.GetString(middleware.ContextRole),
	}
	if v, ok := c.Get(middleware.ContextVenueID); ok {
		if venueID, ok := v.(int64); ok {
			actor.VenueID = &venueID
		}
	}
	return actor
}

// pathID parses a positive id path parameter or answers 400.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, ok := utils.StrToPositiveInt64(c.Param(name))
	if !ok {
		utils.RespondValidationFailed(c, "Invalid "+name+" format.")
		return 0, false
	}
	return id, true
}

// respondServiceError maps domain errors to the public error taxonomy.
func respondServiceError(c *gin.Context, err error, op string) {
	var stateErr *models.InvalidStateError
	switch {
	case errors.As(err, &stateErr):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeInvalidState, stateErr.Error(), op).
			WithFields(map[string]interface{}{
				"entity":           stateErr.Entity,
				"current_status":   stateErr.Current,
				"required_status":  stateErr.Allowed,
				"attempted_action": stateErr.Operation,
			}))
	case errors.Is(err, services.ErrValidation):
		utils.RespondValidationFailed(c, err.Error())
	case errors.Is(err, services.ErrNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Resource not found.", err.Error()))
	case errors.Is(err, services.ErrConflict):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "Conflicting operation.", err.Error()))
	case errors.Is(err, services.ErrForbidden):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "Operation not permitted.", err.Error()))
	default:
		utils.LogError(err, op+": unexpected service error")
		utils.RespondInternal(c, "Failed to "+op+".")
		return
	}
	_ = c.Error(err)
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.RespondValidationFailed(c, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}
