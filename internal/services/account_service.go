package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dinein_backend/internal/models"
	"dinein_backend/internal/repositories"
	"dinein_backend/pkg/utils"
)

// --- Account and gateway DTOs ---

// EskizCallbackRequest is the delivery report posted by the SMS gateway.
// RequestID is the id the gateway returned when the SMS was sent and is
// matched against otp_logs.message_id.
type EskizCallbackRequest struct {
	RequestID string `json:"request_id" form:"request_id" binding:"required"`
	MessageID string `json:"message_id" form:"message_id"`
	UserSMSID string `json:"user_sms_id" form:"user_sms_id"`
	Country   string `json:"country" form:"country"`
	PhoneNum  string `json:"phone_number" form:"phone_number"`
	Status    string `json:"status" form:"status" binding:"required"`
	StatusAt  string `json:"status_date" form:"status_date"`
}

func (r EskizCallbackRequest) raw() models.JSONMap {
	return models.JSONMap{
		"request_id":   r.RequestID,
		"message_id":   r.MessageID,
		"user_sms_id":  r.UserSMSID,
		"country":      r.Country,
		"phone_number": r.PhoneNum,
		"status":       r.Status,
		"status_date":  r.StatusAt,
	}
}

// --- AccountService Interface ---
type AccountService interface {
	GetMe(ctx context.Context, actor Actor) (*models.User, error)
	DeleteMe(ctx context.Context, actor Actor) error
	ApplySMSDelivery(ctx context.Context, req EskizCallbackRequest) (*models.OTPLog, error)
}

// --- accountService Implementation ---
type accountService struct {
	tx    repositories.TxManager
	users repositories.UserRepository
	otps  repositories.OTPRepository
	now   func() time.Time
}

func NewAccountService(tx repositories.TxManager, users repositories.UserRepository, otps repositories.OTPRepository) AccountService {
	return &accountService{tx: tx, users: users, otps: otps, now: utcNow}
}

func (s *accountService) GetMe(ctx context.Context, actor Actor) (*models.User, error) {
	user, err := s.users.GetByID(ctx, s.tx.DB(), actor.UserID, false)
	if err != nil {
		return nil, mapRepoError(err, fmt.Sprintf("user %d", actor.UserID))
	}
	if user.IsDeleted {
		return nil, notFound("user %d", actor.UserID)
	}
	return user, nil
}

// DeleteMe soft-deletes the caller. The phone number becomes free for a new account.
func (s *accountService) DeleteMe(ctx context.Context, actor Actor) error {
	err := s.tx.WithinTx(ctx, func(ex repositories.SQLExecutor) error {
		user, err := s.users.GetByID(ctx, ex, actor.UserID, true)
		if err != nil {
			return mapRepoError(err, fmt.Sprintf("user %d", actor.UserID))
		}
		if !user.SoftDelete(s.now()) {
			return notFound("user %d", actor.UserID)
		}
		return mapRepoError(s.users.SoftDelete(ctx, ex, user), "user")
	})
	if err != nil {
		return err
	}
	utils.LogInfo("User account deleted", map[string]interface{}{"userID": actor.UserID})
	return nil
}

// ApplySMSDelivery records a gateway report. Reports after delivery are ignored.
// A report for an unknown request id is logged and returns a nil entry.
func (s *accountService) ApplySMSDelivery(ctx context.Context, req EskizCallbackRequest) (*models.OTPLog, error) {
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if status == "" {
		return nil, models.NewValidationError("status is required")
	}
	if strings.TrimSpace(req.RequestID) == "" {
		return nil, models.NewValidationError("request_id is required")
	}

	var entry *models.OTPLog
	err := s.tx.WithinTx(ctx, func(ex repositories.SQLExecutor) error {
		otp, err := s.otps.GetByMessageID(ctx, ex, req.RequestID, true)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		if err != nil {
			return mapRepoError(err, fmt.Sprintf("sms %s", req.RequestID))
		}
		entry = otp
		if !otp.ApplyDeliveryStatus(status, req.raw(), s.now()) {
			return nil
		}
		return mapRepoError(s.otps.UpdateDelivery(ctx, ex, otp), "sms")
	})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		utils.LogWarn("SMS delivery report for unknown request", map[string]interface{}{
			"requestID": req.RequestID, "status": status,
		})
		return nil, nil
	}
	utils.LogDebug("SMS delivery report applied", map[string]interface{}{
		"requestID": req.RequestID, "status": status, "delivered": entry.IsDelivered,
	})
	return entry, nil
}
