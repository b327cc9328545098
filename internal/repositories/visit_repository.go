package repositories

import (
	"context"
	"time"

	"dinein_backend/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

const visitsTable = "visits"

var visitFields = fields(models.Visit{})

// VisitRepository defines the persistence operations on visits.
type VisitRepository interface {
	Create(ctx context.Context, ex SQLExecutor, visit *models.Visit) (*models.Visit, error)
	GetByID(ctx context.Context, ex SQLExecutor, id int64, forUpdate bool) (*models.Visit, error)
	Update(ctx context.Context, ex SQLExecutor, visit *models.Visit) error
	List(ctx context.Context, ex SQLExecutor, filters models.VisitFilters) ([]models.Visit, int, error)
}

type visitRepository struct {
	now func() time.Time
}

// NewVisitRepository creates a new instance of VisitRepository.
func NewVisitRepository() VisitRepository {
	return &visitRepository{now: func() time.Time { return time.Now().UTC() }}
}

func (r *visitRepository) Create(ctx context.Context, ex SQLExecutor, visit *models.Visit) (*models.Visit, error) {
	now := r.now()
	q, args, err := stmtBuilder(ex).
		Insert(visitsTable).
		SetMap(map[string]interface{}{
			"user_id":           visit.UserID,
			"user_phone_number": visit.UserPhoneNumber,
			"user_full_name":    visit.UserFullName,
			"host_id":           visit.HostID,
			"created_by":        string(visit.CreatedBy),
			"venue_id":          visit.VenueID,
			"zone_id":           visit.ZoneID,
			"table_number":      visit.TableNumber,
			"booked_date":       visit.BookedDate,
			"booked_time":       visit.BookedTime,
			"number_of_guests":  visit.NumberOfGuests,
			"status":            string(visit.Status),
			"created_at":        now,
			"updated_at":        now,
		}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, buildError(err, "insert visit")
	}

	var id int64
	if err := ex.QueryRowxContext(ctx, q, args...).Scan(&id); err != nil {
		return nil, translateError(err, "insert visit")
	}
	return r.GetByID(ctx, ex, id, false)
}

func (r *visitRepository) GetByID(ctx context.Context, ex SQLExecutor, id int64, forUpdate bool) (*models.Visit, error) {
	query := stmtBuilder(ex).
		Select(visitFields).
		From(visitsTable).
		Where(sq.Eq{"id": id})
	q, args, err := lockRow(ex, query, forUpdate).ToSql()
	if err != nil {
		return nil, buildError(err, "get visit")
	}

	var visit models.Visit
	if err := sqlx.GetContext(ctx, ex, &visit, q, args...); err != nil {
		return nil, translateError(err, "get visit")
	}
	return &visit, nil
}

// Update writes the lifecycle columns. Booking details are immutable once created.
func (r *visitRepository) Update(ctx context.Context, ex SQLExecutor, visit *models.Visit) error {
	visit.UpdatedAt = r.now()
	q, args, err := stmtBuilder(ex).
		Update(visitsTable).
		SetMap(map[string]interface{}{
			"user_id":       visit.UserID,
			"status":        string(visit.Status),
			"started_at":    visit.StartedAt,
			"finished_at":   visit.FinishedAt,
			"paid_at":       visit.PaidAt,
			"closed_at":     visit.ClosedAt,
			"cancelled_at":  visit.CancelledAt,
			"cancel_reason": visit.CancelReason,
			"updated_at":    visit.UpdatedAt,
		}).
		Where(sq.Eq{"id": visit.ID}).
		ToSql()
	if err != nil {
		return buildError(err, "update visit")
	}

	res, err := ex.ExecContext(ctx, q, args...)
	if err != nil {
		return translateError(err, "update visit")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *visitRepository) List(ctx context.Context, ex SQLExecutor, filters models.VisitFilters) ([]models.Visit, int, error) {
	page := filters.Pagination.Normalize()

	where := sq.And{sq.Eq{"venue_id": filters.VenueID}}
	if filters.Status != nil {
		where = append(where, sq.Eq{"status": string(*filters.Status)})
	}
	if filters.BookedDate != nil {
		where = append(where, sq.Eq{"booked_date": *filters.BookedDate})
	}
	if filters.BookedTime != nil {
		where = append(where, sq.Eq{"booked_time": *filters.BookedTime})
	}

	countQ, countArgs, err := stmtBuilder(ex).Select("COUNT(*)").From(visitsTable).Where(where).ToSql()
	if err != nil {
		return nil, 0, buildError(err, "count visits")
	}
	var total int
	if err := sqlx.GetContext(ctx, ex, &total, countQ, countArgs...); err != nil {
		return nil, 0, translateError(err, "count visits")
	}

	q, args, err := stmtBuilder(ex).
		Select(visitFields).
		From(visitsTable).
		Where(where).
		OrderBy("booked_date DESC", "booked_time DESC", "id DESC").
		Limit(uint64(page.PageSize)).
		Offset(uint64(page.Offset())).
		ToSql()
	if err != nil {
		return nil, 0, buildError(err, "list visits")
	}

	visits := []models.Visit{}
	if err := sqlx.SelectContext(ctx, ex, &visits, q, args...); err != nil {
		return nil, 0, translateError(err, "list visits")
	}
	return visits, total, nil
}
