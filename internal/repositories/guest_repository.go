package repositories

import (
	"context"
	"time"

	"dinein_backend/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

const visitGuestsTable = "visit_guests"

var visitGuestFields = fields(models.VisitGuest{})

type GuestRepository interface {
	Create(ctx context.Context, ex SQLExecutor, guest *models.VisitGuest) (*models.VisitGuest, error)
	Get(ctx context.Context, ex SQLExecutor, visitID, userID int64, forUpdate bool) (*models.VisitGuest, error)
	ListByVisit(ctx context.Context, ex SQLExecutor, visitID int64) ([]models.VisitGuest, error)
	MarkJoined(ctx context.Context, ex SQLExecutor, guest *models.VisitGuest) error
}

type guestRepository struct {
	now func() time.Time
}

func NewGuestRepository() GuestRepository {
	return &guestRepository{now: func() time.Time { return time.Now().UTC() }}
}

// Create returns ErrDuplicateKey when the user is already on the visit.
func (r *guestRepository) Create(ctx context.Context, ex SQLExecutor, guest *models.VisitGuest) (*models.VisitGuest, error) {
	q, args, err := stmtBuilder(ex).
		Insert(visitGuestsTable).
		SetMap(map[string]interface{}{
			"visit_id":   guest.VisitID,
			"user_id":    guest.UserID,
			"is_joined":  guest.IsJoined,
			"joined_at":  guest.JoinedAt,
			"created_at": r.now(),
		}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, buildError(err, "insert visit guest")
	}

	var id int64
	if err := ex.QueryRowxContext(ctx, q, args...).Scan(&id); err != nil {
		return nil, translateError(err, "insert visit guest")
	}
	return r.Get(ctx, ex, guest.VisitID, guest.UserID, false)
}

func (r *guestRepository) Get(ctx context.Context, ex SQLExecutor, visitID, userID int64, forUpdate bool) (*models.VisitGuest, error) {
	query := stmtBuilder(ex).
		Select(visitGuestFields).
		From(visitGuestsTable).
		Where(sq.Eq{"visit_id": visitID, "user_id": userID})
	q, args, err := lockRow(ex, query, forUpdate).ToSql()
	if err != nil {
		return nil, buildError(err, "get visit guest")
	}

	var guest models.VisitGuest
	if err := sqlx.GetContext(ctx, ex, &guest, q, args...); err != nil {
		return nil, translateError(err, "get visit guest")
	}
	return &guest, nil
}

func (r *guestRepository) ListByVisit(ctx context.Context, ex SQLExecutor, visitID int64) ([]models.VisitGuest, error) {
	q, args, err := stmtBuilder(ex).
		Select(visitGuestFields).
		From(visitGuestsTable).
		Where(sq.Eq{"visit_id": visitID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, buildError(err, "list visit guests")
	}

	guests := []models.VisitGuest{}
	if err := sqlx.SelectContext(ctx, ex, &guests, q, args...); err != nil {
		return nil, translateError(err, "list visit guests")
	}
	return guests, nil
}

// MarkJoined only ever sets is_joined to true.
func (r *guestRepository) MarkJoined(ctx context.Context, ex SQLExecutor, guest *models.VisitGuest) error {
	q, args, err := stmtBuilder(ex).
		Update(visitGuestsTable).
		Set("is_joined", true).
		Set("joined_at", guest.JoinedAt).
		Where(sq.Eq{"id": guest.ID}).
		ToSql()
	if err != nil {
		return buildError(err, "join visit guest")
	}
	if _, err := ex.ExecContext(ctx, q, args...); err != nil {
		return translateError(err, "join visit guest")
	}
	return nil
}
