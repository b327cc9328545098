package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dinein_backend/internal/models"
	"dinein_backend/internal/repositories"
	"dinein_backend/pkg/utils"
)

// --- Visit DTOs ---
type BookVisitRequest struct {
	UserPhoneNumber string            `json:"user_phone_number" binding:"required"`
	UserFullName    string            `json:"user_full_name"`
	VenueID         int64             `json:"venue_id"`
	ZoneID          *int64            `json:"zone_id"`
	TableNumber     *string           `json:"table_number"`
	BookedDate      models.Date       `json:"booked_date"`
	BookedTime      *models.ClockTime `json:"booked_time"`
	NumberOfGuests  int               `json:"number_of_guests" binding:"required,gt=0"`
}

type CancelVisitRequest struct {
	CancelReason string `json:"cancel_reason" binding:"required"`
}

type InviteGuestRequest struct {
	UserID int64 `json:"user_id" binding:"required,gt=0"`
}

// --- VisitService Interface ---
type VisitService interface {
	BookByHost(ctx context.Context, actor Actor, req BookVisitRequest) (*models.Visit, error)
	BookByUser(ctx context.Context, actor Actor, req BookVisitRequest) (*models.Visit, error)
	GetVisit(ctx context.Context, actor Actor, visitID int64) (*models.Visit, error)
	ListVisits(ctx context.Context, actor Actor, filters models.VisitFilters) ([]models.Visit, int, error)
	Start(ctx context.Context, actor Actor, visitID int64) (*models.Visit, error)
	Finish(ctx context.Context, actor Actor, visitID int64) (*models.Visit, error)
	OpenBill(ctx context.Context, actor Actor, visitID int64) (*models.Visit, error)
	Cancel(ctx context.Context, actor Actor, visitID int64, reason string) (*models.Visit, error)
	InviteGuest(ctx context.Context, actor Actor, visitID, userID int64) (*models.VisitGuest, error)
	JoinVisit(ctx context.Context, actor Actor, visitID int64) (*models.VisitGuest, error)
}

// --- visitService Implementation ---
type visitService struct {
	tx       repositories.TxManager
	visits   repositories.VisitRepository
	guests   repositories.GuestRepository
	orders   repositories.OrderRepository
	users    repositories.UserRepository
	settler  *visitSettler
	recorder Recorder
	now      func() time.Time
}

// NewVisitService wires the visit lifecycle coordinator. recorder may be nil.
func NewVisitService(
	tx repositories.TxManager,
	visits repositories.VisitRepository,
	guests repositories.GuestRepository,
	orders repositories.OrderRepository,
	users repositories.UserRepository,
	payments repositories.PaymentRepository,
	recorder Recorder,
) VisitService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &visitService{
		tx:       tx,
		visits:   visits,
		guests:   guests,
		orders:   orders,
		users:    users,
		settler:  newVisitSettler(visits, orders, payments),
		recorder: recorder,
		now:      utcNow,
	}
}

func (s *visitService) BookByHost(ctx context.Context, actor Actor, req BookVisitRequest) (*models.Visit, error) {
	if !actor.IsHost() || actor.VenueID == nil {
		return nil, fmt.Errorf("%w: only venue hosts can book on behalf of guests", ErrForbidden)
	}
	req.VenueID = *actor.VenueID
	return s.book(ctx, actor, req, models.CreatedByHost)
}

func (s *visitService) BookByUser(ctx context.Context, actor Actor, req BookVisitRequest) (*models.Visit, error) {
	return s.book(ctx, actor, req, models.CreatedByUser)
}

func (s *visitService) book(ctx context.Context, actor Actor, req BookVisitRequest, createdBy models.VisitCreator) (*models.Visit, error) {
	if req.BookedDate.IsZero() {
		return nil, models.NewValidationError("booked_date is required")
	}
	if req.BookedTime == nil {
		return nil, models.NewValidationError("booked_time is required")
	}
	visit, err := models.NewVisit(req.VenueID, req.UserPhoneNumber, req.UserFullName, req.BookedDate, *req.BookedTime, req.NumberOfGuests, createdBy)
	if err != nil {
		return nil, err
	}
	visit.ZoneID = req.ZoneID
	if req.TableNumber != nil {
		visit.TableNumber = utils.NewNullString(*req.TableNumber)
	}

	err = s.tx.WithinTx(ctx, func(ex repositories.SQLExecutor) error {
		switch createdBy {
		case models.CreatedByHost:
			visit.HostID = &actor.UserID
			// Link the guest account when the phone already belongs to one.
			user, err := s.users.FindActiveByPhone(ctx, ex, visit.UserPhoneNumber)
			if err != nil && !errors.Is(err, repositories.ErrNotFound) {
				return mapRepoError(err, "user")
			}
			if user != nil {
				visit.UserID = &user.ID
			}
		default:
			visit.UserID = &actor.UserID
		}

		created, err := s.visits.Create(ctx, ex, visit)
		if err != nil {
			return mapRepoError(err, "visit")
		}
		visit = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recorder.VisitTransition(visit.Status)
	utils.LogInfo("Visit booked", map[string]interface{}{
		"visitID": visit.ID, "venueID": visit.VenueID, "createdBy": string(createdBy),
	})
	return visit, nil
}

// loadVisit returns a visit visible to the actor. Foreign visits look missing.
func (s *visitService) loadVisit(ctx context.Context, ex repositories.SQLExecutor, actor Actor, visitID int64, forUpdate bool) (*models.Visit, error) {
	visit, err := s.visits.GetByID(ctx, ex, visitID, forUpdate)
	if err != nil {
		return nil, mapRepoError(err, fmt.Sprintf("visit %d", visitID))
	}
	if !actor.IsHost() {
		guests, err := s.guests.ListByVisit(ctx, ex, visitID)
		if err != nil {
			return nil, mapRepoError(err, "visit guests")
		}
		visit.Guests = guests
	}
	if !actor.canSeeVisit(visit) {
		return nil, notFound("visit %d", visitID)
	}
	return visit, nil
}

func (s *visitService) GetVisit(ctx context.Context, actor Actor, visitID int64) (*models.Visit, error) {
	ex := s.tx.DB()
	visit, err := s.loadVisit(ctx, ex, actor, visitID, false)
	if err != nil {
		return nil, err
	}
	if visit.Guests == nil {
		if visit.Guests, err = s.guests.ListByVisit(ctx, ex, visitID); err != nil {
			return nil, mapRepoError(err, "visit guests")
		}
	}
	order, err := s.orders.GetByVisitID(ctx, ex, visitID)
	switch {
	case err == nil:
		visit.Order = order
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, mapRepoError(err, "order")
	}
	return visit, nil
}

func (s *visitService) ListVisits(ctx context.Context, actor Actor, filters models.VisitFilters) ([]models.Visit, int, error) {
	if !actor.IsHost() || actor.VenueID == nil {
		return nil, 0, fmt.Errorf("%w: visit list is available to venue hosts", ErrForbidden)
	}
	filters.VenueID = *actor.VenueID
	filters.Pagination = filters.Pagination.Normalize()

	visits, total, err := s.visits.List(ctx, s.tx.DB(), filters)
	if err != nil {
		return nil, 0, mapRepoError(err, "visits")
	}
	return visits, total, nil
}

// transition locks the visit, applies a pure state change and persists it in one transaction.
func (s *visitService) transition(
	ctx context.Context,
	actor Actor,
	visitID int64,
	apply func(v *models.Visit, now time.Time) error,
	after func(ex repositories.SQLExecutor, v *models.Visit) error,
) (*models.Visit, error) {
	var result *models.Visit
	err := s.tx.WithinTx(ctx, func(ex repositories.SQLExecutor) error {
		visit, err := s.loadVisit(ctx, ex, actor, visitID, true)
		if err != nil {
			return err
		}
		now := s.now()
		if err := apply(visit, now); err != nil {
			return err
		}
		visit.UpdatedAt = now
		if err := s.visits.Update(ctx, ex, visit); err != nil {
			return mapRepoError(err, "visit")
		}
		if after != nil {
			if err := after(ex, visit); err != nil {
				return err
			}
		}
		result = visit
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recorder.VisitTransition(result.Status)
	utils.LogInfo("Visit status changed", map[string]interface{}{
		"visitID": result.ID, "status": string(result.Status),
	})
	return result, nil
}

func (s *visitService) Start(ctx context.Context, actor Actor, visitID int64) (*models.Visit, error) {
	return s.transition(ctx, actor, visitID,
		func(v *models.Visit, now time.Time) error { return v.Start(now) },
		func(ex repositories.SQLExecutor, v *models.Visit) error {
			order, err := s.orders.Create(ctx, ex, models.NewOrder(v.ID))
			if err != nil {
				return mapRepoError(err, "order")
			}
			v.Order = order
			return nil
		})
}

func (s *visitService) Finish(ctx context.Context, actor Actor, visitID int64) (*models.Visit, error) {
	return s.transition(ctx, actor, visitID,
		func(v *models.Visit, now time.Time) error { return v.Finish(now) },
		nil)
}

// OpenBill closes the visit straight away when earlier payments already cover the order.
func (s *visitService) OpenBill(ctx context.Context, actor Actor, visitID int64) (*models.Visit, error) {
	return s.transition(ctx, actor, visitID,
		func(v *models.Visit, _ time.Time) error { return v.OpenBill() },
		func(ex repositories.SQLExecutor, v *models.Visit) error {
			_, err := s.settler.closeIfPaid(ctx, ex, v, s.now())
			return err
		})
}

func (s *visitService) Cancel(ctx context.Context, actor Actor, visitID int64, reason string) (*models.Visit, error) {
	return s.transition(ctx, actor, visitID,
		func(v *models.Visit, now time.Time) error { return v.Cancel(reason, now) },
		nil)
}

func (s *visitService) InviteGuest(ctx context.Context, actor Actor, visitID, userID int64) (*models.VisitGuest, error) {
	var guest *models.VisitGuest
	err := s.tx.WithinTx(ctx, func(ex repositories.SQLExecutor) error {
		visit, err := s.loadVisit(ctx, ex, actor, visitID, true)
		if err != nil {
			return err
		}
		if visit.Status.IsTerminal() {
			return &models.InvalidStateError{
				Entity: "visit", ID: visit.ID, Operation: "invite guest", Current: string(visit.Status),
				Allowed: []string{string(models.VisitStatusBooked), string(models.VisitStatusStarted), string(models.VisitStatusFinished), string(models.VisitStatusPayment)},
			}
		}
		if visit.UserID != nil && *visit.UserID == userID {
			return models.NewValidationError("user %d already owns visit %d", userID, visitID)
		}
		if _, err := s.users.GetByID(ctx, ex, userID, false); err != nil {
			return mapRepoError(err, fmt.Sprintf("user %d", userID))
		}
		guest, err = s.guests.Create(ctx, ex, &models.VisitGuest{VisitID: visitID, UserID: userID})
		if err != nil {
			return mapRepoError(err, "visit guest")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	utils.LogInfo("Guest invited", map[string]interface{}{"visitID": visitID, "guestUserID": userID})
	return guest, nil
}

// JoinVisit accepts a pending invitation. A repeated join returns the existing row.
func (s *visitService) JoinVisit(ctx context.Context, actor Actor, visitID int64) (*models.VisitGuest, error) {
	var guest *models.VisitGuest
	err := s.tx.WithinTx(ctx, func(ex repositories.SQLExecutor) error {
		g, err := s.guests.Get(ctx, ex, visitID, actor.UserID, true)
		if err != nil {
			return mapRepoError(err, fmt.Sprintf("invitation to visit %d", visitID))
		}
		if g.Join(s.now()) {
			if err := s.guests.MarkJoined(ctx, ex, g); err != nil {
				return mapRepoError(err, "visit guest")
			}
		}
		guest = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	utils.LogDebug("Guest joined visit", map[string]interface{}{"visitID": visitID, "userID": actor.UserID})
	return guest, nil
}
