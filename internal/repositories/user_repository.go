package repositories

import (
	"context"
	"time"

	"dinein_backend/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const (
	usersTable     = "users"
	bankCardsTable = "bank_cards"
)

var userFields = fields(models.User{})

// UserRepository covers the slice of the account model the billing flow needs.
type UserRepository interface {
	Create(ctx context.Context, ex SQLExecutor, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, ex SQLExecutor, id int64, forUpdate bool) (*models.User, error)
	// FindActiveByPhone ignores soft-deleted accounts.
	FindActiveByPhone(ctx context.Context, ex SQLExecutor, phone string) (*models.User, error)
	// UpdateBalance recomputes the cached balance from accepted transactions.
	UpdateBalance(ctx context.Context, ex SQLExecutor, userID int64) (decimal.Decimal, error)
	SoftDelete(ctx context.Context, ex SQLExecutor, user *models.User) error
	CardBelongsTo(ctx context.Context, ex SQLExecutor, cardID, userID int64) (bool, error)
}

type userRepository struct {
	payments PaymentRepository
	now      func() time.Time
}

func NewUserRepository(payments PaymentRepository) UserRepository {
	return &userRepository{payments: payments, now: func() time.Time { return time.Now().UTC() }}
}

func (r *userRepository) Create(ctx context.Context, ex SQLExecutor, user *models.User) (*models.User, error) {
	now := r.now()
	role := user.Role
	if role == "" {
		role = models.RoleUser
	}
	q, args, err := stmtBuilder(ex).
		Insert(usersTable).
		SetMap(map[string]interface{}{
			"phone_number": user.PhoneNumber,
			"full_name":    user.FullName,
			"role":         role,
			"venue_id":     user.VenueID,
			"balance":      decimal.Zero,
			"is_deleted":   false,
			"created_at":   now,
			"updated_at":   now,
		}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, buildError(err, "insert user")
	}

	var id int64
	if err := ex.QueryRowxContext(ctx, q, args...).Scan(&id); err != nil {
		return nil, translateError(err, "insert user")
	}
	return r.GetByID(ctx, ex, id, false)
}

func (r *userRepository) GetByID(ctx context.Context, ex SQLExecutor, id int64, forUpdate bool) (*models.User, error) {
	query := stmtBuilder(ex).Select(userFields).From(usersTable).Where(sq.Eq{"id": id})
	q, args, err := lockRow(ex, query, forUpdate).ToSql()
	if err != nil {
		return nil, buildError(err, "get user")
	}

	var user models.User
	if err := sqlx.GetContext(ctx, ex, &user, q, args...); err != nil {
		return nil, translateError(err, "get user")
	}
	return &user, nil
}

func (r *userRepository) FindActiveByPhone(ctx context.Context, ex SQLExecutor, phone string) (*models.User, error) {
	q, args, err := stmtBuilder(ex).
		Select(userFields).
		From(usersTable).
		Where(sq.Eq{"phone_number": phone, "is_deleted": false}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, buildError(err, "find user by phone")
	}

	var user models.User
	if err := sqlx.GetContext(ctx, ex, &user, q, args...); err != nil {
		return nil, translateError(err, "find user by phone")
	}
	return &user, nil
}

func (r *userRepository) UpdateBalance(ctx context.Context, ex SQLExecutor, userID int64) (decimal.Decimal, error) {
	balance, err := r.payments.SumAcceptedByUser(ctx, ex, userID)
	if err != nil {
		return decimal.Zero, err
	}

	q, args, err := stmtBuilder(ex).
		Update(usersTable).
		Set("balance", balance).
		Set("updated_at", r.now()).
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return decimal.Zero, buildError(err, "update user balance")
	}
	if _, err := ex.ExecContext(ctx, q, args...); err != nil {
		return decimal.Zero, translateError(err, "update user balance")
	}
	return balance, nil
}

func (r *userRepository) SoftDelete(ctx context.Context, ex SQLExecutor, user *models.User) error {
	q, args, err := stmtBuilder(ex).
		Update(usersTable).
		SetMap(map[string]interface{}{
			"phone_number":         user.PhoneNumber,
			"is_deleted":           user.IsDeleted,
			"deleted_at":           user.DeletedAt,
			"deleted_phone_number": user.DeletedPhoneNumber,
			"updated_at":           r.now(),
		}).
		Where(sq.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return buildError(err, "soft delete user")
	}
	if _, err := ex.ExecContext(ctx, q, args...); err != nil {
		return translateError(err, "soft delete user")
	}
	return nil
}

func (r *userRepository) CardBelongsTo(ctx context.Context, ex SQLExecutor, cardID, userID int64) (bool, error) {
	q, args, err := stmtBuilder(ex).
		Select("COUNT(*)").
		From(bankCardsTable).
		Where(sq.Eq{"id": cardID, "user_id": userID}).
		ToSql()
	if err != nil {
		return false, buildError(err, "check bank card")
	}

	var n int
	if err := sqlx.GetContext(ctx, ex, &n, q, args...); err != nil {
		return false, translateError(err, "check bank card")
	}
	return n > 0, nil
}
