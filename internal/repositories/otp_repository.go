package repositories

import (
	"context"
	"time"

	"dinein_backend/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

const otpLogsTable = "otp_logs"

var otpLogFields = fields(models.OTPLog{})

type OTPRepository interface {
	Create(ctx context.Context, ex SQLExecutor, entry *models.OTPLog) (*models.OTPLog, error)
	GetByMessageID(ctx context.Context, ex SQLExecutor, messageID string, forUpdate bool) (*models.OTPLog, error)
	UpdateDelivery(ctx context.Context, ex SQLExecutor, entry *models.OTPLog) error
}

type otpRepository struct {
	now func() time.Time
}

func NewOTPRepository() OTPRepository {
	return &otpRepository{now: func() time.Time { return time.Now().UTC() }}
}

func (r *otpRepository) Create(ctx context.Context, ex SQLExecutor, entry *models.OTPLog) (*models.OTPLog, error) {
	if entry.CallbackLog == nil {
		entry.CallbackLog = models.JSONMap{}
	}
	q, args, err := stmtBuilder(ex).
		Insert(otpLogsTable).
		SetMap(map[string]interface{}{
			"phone_number": entry.PhoneNumber,
			"message_id":   entry.MessageID,
			"status":       entry.Status,
			"is_delivered": entry.IsDelivered,
			"callback_log": entry.CallbackLog,
			"created_at":   r.now(),
		}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, buildError(err, "insert otp log")
	}

	var id int64
	if err := ex.QueryRowxContext(ctx, q, args...).Scan(&id); err != nil {
		return nil, translateError(err, "insert otp log")
	}
	return r.GetByMessageID(ctx, ex, entry.MessageID, false)
}

func (r *otpRepository) GetByMessageID(ctx context.Context, ex SQLExecutor, messageID string, forUpdate bool) (*models.OTPLog, error) {
	query := stmtBuilder(ex).Select(otpLogFields).From(otpLogsTable).Where(sq.Eq{"message_id": messageID})
	q, args, err := lockRow(ex, query, forUpdate).ToSql()
	if err != nil {
		return nil, buildError(err, "get otp log")
	}

	var entry models.OTPLog
	if err := sqlx.GetContext(ctx, ex, &entry, q, args...); err != nil {
		return nil, translateError(err, "get otp log")
	}
	return &entry, nil
}

func (r *otpRepository) UpdateDelivery(ctx context.Context, ex SQLExecutor, entry *models.OTPLog) error {
	q, args, err := stmtBuilder(ex).
		Update(otpLogsTable).
		SetMap(map[string]interface{}{
			"status":       entry.Status,
			"is_delivered": entry.IsDelivered,
			"delivered_at": entry.DeliveredAt,
			"callback_log": entry.CallbackLog,
		}).
		Where(sq.Eq{"id": entry.ID}).
		ToSql()
	if err != nil {
		return buildError(err, "update otp log")
	}
	if _, err := ex.ExecContext(ctx, q, args...); err != nil {
		return translateError(err, "update otp log")
	}
	return nil
}
