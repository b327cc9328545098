package repositories

import (
	"context"
	"time"

	"dinein_backend/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const (
	paymentTransactionsTable = "payment_transactions"
	paymentRequestLogsTable  = "payment_request_logs"
)

var paymentTransactionFields = fields(models.PaymentTransaction{})

type PaymentRepository interface {
	Create(ctx context.Context, ex SQLExecutor, tx *models.PaymentTransaction) (*models.PaymentTransaction, error)
	GetByID(ctx context.Context, ex SQLExecutor, id int64, forUpdate bool) (*models.PaymentTransaction, error)
	GetByRemoteID(ctx context.Context, ex SQLExecutor, provider models.Provider, remoteID string, forUpdate bool) (*models.PaymentTransaction, error)
	// Update persists status, timestamps, remote id and extra.
	Update(ctx context.Context, ex SQLExecutor, tx *models.PaymentTransaction) error
	SumAcceptedByVisit(ctx context.Context, ex SQLExecutor, visitID int64) (decimal.Decimal, error)
	SumAcceptedByUser(ctx context.Context, ex SQLExecutor, userID int64) (decimal.Decimal, error)
	List(ctx context.Context, ex SQLExecutor, filters models.PaymentFilters) ([]models.PaymentTransaction, error)
}

type paymentRepository struct {
	now func() time.Time
}

func NewPaymentRepository() PaymentRepository {
	return &paymentRepository{now: func() time.Time { return time.Now().UTC() }}
}

func (r *paymentRepository) Create(ctx context.Context, ex SQLExecutor, tx *models.PaymentTransaction) (*models.PaymentTransaction, error) {
	now := r.now()
	q, args, err := stmtBuilder(ex).
		Insert(paymentTransactionsTable).
		SetMap(map[string]interface{}{
			"user_id":    tx.UserID,
			"visit_id":   tx.VisitID,
			"card_id":    tx.CardID,
			"provider":   string(tx.Provider),
			"amount":     tx.Amount,
			"status":     string(tx.Status),
			"remote_id":  tx.RemoteID,
			"paid_at":    tx.PaidAt,
			"extra":      tx.Extra,
			"created_at": now,
			"updated_at": now,
		}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, buildError(err, "insert payment transaction")
	}

	var id int64
	if err := ex.QueryRowxContext(ctx, q, args...).Scan(&id); err != nil {
		return nil, translateError(err, "insert payment transaction")
	}
	return r.GetByID(ctx, ex, id, false)
}

func (r *paymentRepository) GetByID(ctx context.Context, ex SQLExecutor, id int64, forUpdate bool) (*models.PaymentTransaction, error) {
	return r.getOne(ctx, ex, sq.Eq{"id": id}, forUpdate)
}

func (r *paymentRepository) GetByRemoteID(ctx context.Context, ex SQLExecutor, provider models.Provider, remoteID string, forUpdate bool) (*models.PaymentTransaction, error) {
	return r.getOne(ctx, ex, sq.Eq{"provider": string(provider), "remote_id": remoteID}, forUpdate)
}

func (r *paymentRepository) getOne(ctx context.Context, ex SQLExecutor, where sq.Eq, forUpdate bool) (*models.PaymentTransaction, error) {
	query := stmtBuilder(ex).
		Select(paymentTransactionFields).
		From(paymentTransactionsTable).
		Where(where).
		Limit(1)
	q, args, err := lockRow(ex, query, forUpdate).ToSql()
	if err != nil {
		return nil, buildError(err, "get payment transaction")
	}

	var tx models.PaymentTransaction
	if err := sqlx.GetContext(ctx, ex, &tx, q, args...); err != nil {
		return nil, translateError(err, "get payment transaction")
	}
	return &tx, nil
}

func (r *paymentRepository) Update(ctx context.Context, ex SQLExecutor, tx *models.PaymentTransaction) error {
	tx.UpdatedAt = r.now()
	q, args, err := stmtBuilder(ex).
		Update(paymentTransactionsTable).
		SetMap(map[string]interface{}{
			"status":      string(tx.Status),
			"remote_id":   tx.RemoteID,
			"paid_at":     tx.PaidAt,
			"rejected_at": tx.RejectedAt,
			"canceled_at": tx.CanceledAt,
			"extra":       tx.Extra,
			"updated_at":  tx.UpdatedAt,
		}).
		Where(sq.Eq{"id": tx.ID}).
		ToSql()
	if err != nil {
		return buildError(err, "update payment transaction")
	}
	if _, err := ex.ExecContext(ctx, q, args...); err != nil {
		return translateError(err, "update payment transaction")
	}
	return nil
}

func (r *paymentRepository) SumAcceptedByVisit(ctx context.Context, ex SQLExecutor, visitID int64) (decimal.Decimal, error) {
	return r.sumAccepted(ctx, ex, "visit_id", visitID)
}

func (r *paymentRepository) SumAcceptedByUser(ctx context.Context, ex SQLExecutor, userID int64) (decimal.Decimal, error) {
	return r.sumAccepted(ctx, ex, "user_id", userID)
}

// sumAccepted adds amounts in Go so NUMERIC and TEXT columns agree.
func (r *paymentRepository) sumAccepted(ctx context.Context, ex SQLExecutor, column string, id int64) (decimal.Decimal, error) {
	q, args, err := stmtBuilder(ex).
		Select("amount").
		From(paymentTransactionsTable).
		Where(sq.Eq{column: id, "status": string(models.PaymentStatusAccepted)}).
		ToSql()
	if err != nil {
		return decimal.Zero, buildError(err, "sum accepted payments")
	}

	var amounts []decimal.Decimal
	if err := sqlx.SelectContext(ctx, ex, &amounts, q, args...); err != nil {
		return decimal.Zero, translateError(err, "sum accepted payments")
	}
	return lo.Reduce(amounts, func(acc decimal.Decimal, amount decimal.Decimal, _ int) decimal.Decimal {
		return acc.Add(amount)
	}, decimal.Zero), nil
}

func (r *paymentRepository) List(ctx context.Context, ex SQLExecutor, filters models.PaymentFilters) ([]models.PaymentTransaction, error) {
	query := stmtBuilder(ex).
		Select(paymentTransactionFields).
		From(paymentTransactionsTable).
		OrderBy("id")
	if filters.Status != nil {
		query = query.Where(sq.Eq{"status": string(*filters.Status)})
	}
	if filters.CreatedBefore != nil {
		query = query.Where(sq.Lt{"created_at": filters.CreatedBefore.UTC()})
	}
	if filters.Unbound {
		query = query.Where(sq.Eq{"remote_id": nil})
	}
	if filters.Limit > 0 {
		query = query.Limit(uint64(filters.Limit))
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, buildError(err, "list payment transactions")
	}

	txs := []models.PaymentTransaction{}
	if err := sqlx.SelectContext(ctx, ex, &txs, q, args...); err != nil {
		return nil, translateError(err, "list payment transactions")
	}
	return txs, nil
}

// PaymentLogRepository stores raw provider callback traffic.
type PaymentLogRepository interface {
	Create(ctx context.Context, ex SQLExecutor, entry *models.PaymentRequestLog) (int64, error)
	AttachResponse(ctx context.Context, ex SQLExecutor, id int64, response models.JSONMap) error
}

type paymentLogRepository struct {
	now func() time.Time
}

func NewPaymentLogRepository() PaymentLogRepository {
	return &paymentLogRepository{now: func() time.Time { return time.Now().UTC() }}
}

func (r *paymentLogRepository) Create(ctx context.Context, ex SQLExecutor, entry *models.PaymentRequestLog) (int64, error) {
	if entry.ResponseData == nil {
		entry.ResponseData = models.JSONMap{}
	}
	q, args, err := stmtBuilder(ex).
		Insert(paymentRequestLogsTable).
		SetMap(map[string]interface{}{
			"provider":      string(entry.Provider),
			"method":        entry.Method,
			"request_data":  entry.RequestData,
			"response_data": entry.ResponseData,
			"created_at":    r.now(),
		}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, buildError(err, "insert payment request log")
	}

	var id int64
	if err := ex.QueryRowxContext(ctx, q, args...).Scan(&id); err != nil {
		return 0, translateError(err, "insert payment request log")
	}
	return id, nil
}

func (r *paymentLogRepository) AttachResponse(ctx context.Context, ex SQLExecutor, id int64, response models.JSONMap) error {
	q, args, err := stmtBuilder(ex).
		Update(paymentRequestLogsTable).
		Set("response_data", response).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return buildError(err, "update payment request log")
	}
	if _, err := ex.ExecContext(ctx, q, args...); err != nil {
		return translateError(err, "update payment request log")
	}
	return nil
}
