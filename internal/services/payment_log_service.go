package services

import (
	"context"

	"dinein_backend/internal/models"
	"dinein_backend/internal/repositories"
)

// PaymentLogService stores raw provider callback traffic for audit. The
// request row is written first so it survives a failing handler.
type PaymentLogService interface {
	Record(ctx context.Context, provider models.Provider, method *string, request models.JSONMap) (int64, error)
	AttachResponse(ctx context.Context, id int64, response models.JSONMap) error
}

type paymentLogService struct {
	tx   repositories.TxManager
	logs repositories.PaymentLogRepository
}

func NewPaymentLogService(tx repositories.TxManager, logs repositories.PaymentLogRepository) PaymentLogService {
	return &paymentLogService{tx: tx, logs: logs}
}

func (s *paymentLogService) Record(ctx context.Context, provider models.Provider, method *string, request models.JSONMap) (int64, error) {
	id, err := s.logs.Create(ctx, s.tx.DB(), &models.PaymentRequestLog{
		Provider:    provider,
		Method:      method,
		RequestData: request,
	})
	if err != nil {
		return 0, mapRepoError(err, "payment request log")
	}
	return id, nil
}

func (s *paymentLogService) AttachResponse(ctx context.Context, id int64, response models.JSONMap) error {
	if err := s.logs.AttachResponse(ctx, s.tx.DB(), id, response); err != nil {
		return mapRepoError(err, "payment request log")
	}
	return nil
}
