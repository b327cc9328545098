package services

import (
	"context"
	"errors"
	"time"

	"dinein_backend/internal/models"
	"dinein_backend/internal/repositories"
)

// visitSettler closes visits whose order is covered by accepted payments.
type visitSettler struct {
	visits   repositories.VisitRepository
	orders   repositories.OrderRepository
	payments repositories.PaymentRepository
}

func newVisitSettler(visits repositories.VisitRepository, orders repositories.OrderRepository, payments repositories.PaymentRepository) *visitSettler {
	return &visitSettler{visits: visits, orders: orders, payments: payments}
}

// closeIfPaid expects the visit row to be locked by the caller's transaction.
// Only finished and payment visits are eligible. A visit without an order owes nothing.
func (s *visitSettler) closeIfPaid(ctx context.Context, ex repositories.SQLExecutor, visit *models.Visit, now time.Time) (bool, error) {
	if visit.Status != models.VisitStatusFinished && visit.Status != models.VisitStatusPayment {
		return false, nil
	}

	order, err := s.orders.GetByVisitID(ctx, ex, visit.ID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return false, mapRepoError(err, "order")
	}
	paid, err := s.payments.SumAcceptedByVisit(ctx, ex, visit.ID)
	if err != nil {
		return false, mapRepoError(err, "visit payments")
	}
	if order != nil && paid.LessThan(order.TotalAmount) {
		return false, nil
	}

	if err := visit.Close(now); err != nil {
		return false, err
	}
	visit.UpdatedAt = now
	if err := s.visits.Update(ctx, ex, visit); err != nil {
		return false, mapRepoError(err, "visit")
	}
	return true, nil
}

// settleLocked re-reads the visit under lock and closes it when fully paid.
func (s *visitSettler) settleLocked(ctx context.Context, ex repositories.SQLExecutor, visitID int64, now time.Time) (bool, error) {
	visit, err := s.visits.GetByID(ctx, ex, visitID, true)
	if err != nil {
		return false, mapRepoError(err, "visit")
	}
	return s.closeIfPaid(ctx, ex, visit, now)
}
