package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dinein_backend/internal/models"
	"dinein_backend/internal/repositories"
	"dinein_backend/pkg/utils"

	"github.com/shopspring/decimal"
)

// --- Order DTOs ---
type AddOrderItemRequest struct {
	ProductName string           `json:"product_name" binding:"required"`
	Quantity    int              `json:"quantity" binding:"required,gt=0"`
	UnitPrice   decimal.Decimal  `json:"unit_price" binding:"decimal_gte0"`
	TotalPrice  *decimal.Decimal `json:"total_price"`
}

type UpdateOrderRequest struct {
	WaiterFullName      *string          `json:"waiter_full_name"`
	PercentageOfService *float64         `json:"percentage_of_service"`
	ServiceFee          *decimal.Decimal `json:"service_fee"`
}

// --- OrderService Interface ---
type OrderService interface {
	GetOrder(ctx context.Context, actor Actor, visitID int64) (*models.Order, error)
	AddItem(ctx context.Context, actor Actor, visitID int64, req AddOrderItemRequest) (*models.Order, error)
	ServeItem(ctx context.Context, actor Actor, visitID, itemID int64) (*models.Order, error)
	CancelItem(ctx context.Context, actor Actor, visitID, itemID int64) (*models.Order, error)
	UpdateOrder(ctx context.Context, actor Actor, visitID int64, req UpdateOrderRequest) (*models.Order, error)
}

// --- orderService Implementation ---
type orderService struct {
	tx     repositories.TxManager
	visits repositories.VisitRepository
	orders repositories.OrderRepository
	now    func() time.Time
}

func NewOrderService(tx repositories.TxManager, visits repositories.VisitRepository, orders repositories.OrderRepository) OrderService {
	return &orderService{tx: tx, visits: visits, orders: orders, now: utcNow}
}

// lockVenueVisit serialises order changes per visit and hides other venues.
func (s *orderService) lockVenueVisit(ctx context.Context, ex repositories.SQLExecutor, actor Actor, visitID int64) (*models.Visit, error) {
	visit, err := s.visits.GetByID(ctx, ex, visitID, true)
	if err != nil {
		return nil, mapRepoError(err, fmt.Sprintf("visit %d", visitID))
	}
	if !actor.canSeeVisit(visit) {
		return nil, notFound("visit %d", visitID)
	}
	return visit, nil
}

func requireOrderChanges(visit *models.Visit, op string, allowed ...models.VisitStatus) error {
	for _, st := range allowed {
		if visit.Status == st {
			return nil
		}
	}
	names := make([]string, 0, len(allowed))
	for _, st := range allowed {
		names = append(names, string(st))
	}
	return &models.InvalidStateError{Entity: "visit", ID: visit.ID, Operation: op, Current: string(visit.Status), Allowed: names}
}

// persistTotals reloads items, recomputes both totals and writes them back.
func (s *orderService) persistTotals(ctx context.Context, ex repositories.SQLExecutor, order *models.Order) error {
	items, err := s.orders.ListItems(ctx, ex, order.ID)
	if err != nil {
		return mapRepoError(err, "order items")
	}
	order.Items = items
	order.RecomputeTotal()
	order.UpdatedAt = s.now()
	if err := s.orders.UpdateTotals(ctx, ex, order); err != nil {
		return mapRepoError(err, "order")
	}
	return nil
}

func (s *orderService) GetOrder(ctx context.Context, actor Actor, visitID int64) (*models.Order, error) {
	ex := s.tx.DB()
	visit, err := s.visits.GetByID(ctx, ex, visitID, false)
	if err != nil {
		return nil, mapRepoError(err, fmt.Sprintf("visit %d", visitID))
	}
	if !actor.canSeeVisit(visit) {
		return nil, notFound("visit %d", visitID)
	}
	order, err := s.orders.GetByVisitID(ctx, ex, visitID)
	if err != nil {
		return nil, mapRepoError(err, fmt.Sprintf("order for visit %d", visitID))
	}
	return order, nil
}

// AddItem requires a started visit and creates the order on first use.
func (s *orderService) AddItem(ctx context.Context, actor Actor, visitID int64, req AddOrderItemRequest) (*models.Order, error) {
	var result *models.Order
	err := s.tx.WithinTx(ctx, func(ex repositories.SQLExecutor) error {
		visit, err := s.lockVenueVisit(ctx, ex, actor, visitID)
		if err != nil {
			return err
		}
		if err := requireOrderChanges(visit, "add order item", models.VisitStatusStarted); err != nil {
			return err
		}

		order, err := s.orders.GetByVisitID(ctx, ex, visitID)
		if errors.Is(err, repositories.ErrNotFound) {
			order, err = s.orders.Create(ctx, ex, models.NewOrder(visitID))
		}
		if err != nil {
			return mapRepoError(err, "order")
		}

		item, err := models.NewOrderItem(order.ID, req.ProductName, req.Quantity, req.UnitPrice, req.TotalPrice, s.now())
		if err != nil {
			return err
		}
		if _, err := s.orders.CreateItem(ctx, ex, item); err != nil {
			return mapRepoError(err, "order item")
		}
		if err := s.persistTotals(ctx, ex, order); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	utils.LogInfo("Order item added", map[string]interface{}{
		"visitID": visitID, "orderID": result.ID, "totalAmount": utils.MoneyString(result.TotalAmount),
	})
	return result, nil
}

func (s *orderService) ServeItem(ctx context.Context, actor Actor, visitID, itemID int64) (*models.Order, error) {
	return s.changeItem(ctx, actor, visitID, itemID, "serve order item", func(item *models.OrderItem, now time.Time) error {
		return item.Serve(now)
	})
}

func (s *orderService) CancelItem(ctx context.Context, actor Actor, visitID, itemID int64) (*models.Order, error) {
	return s.changeItem(ctx, actor, visitID, itemID, "cancel order item", func(item *models.OrderItem, now time.Time) error {
		return item.Cancel(now)
	})
}

func (s *orderService) changeItem(ctx context.Context, actor Actor, visitID, itemID int64, op string, apply func(*models.OrderItem, time.Time) error) (*models.Order, error) {
	var result *models.Order
	err := s.tx.WithinTx(ctx, func(ex repositories.SQLExecutor) error {
		visit, err := s.lockVenueVisit(ctx, ex, actor, visitID)
		if err != nil {
			return err
		}
		if err := requireOrderChanges(visit, op, models.VisitStatusStarted, models.VisitStatusFinished); err != nil {
			return err
		}
		order, err := s.orders.GetByVisitID(ctx, ex, visitID)
		if err != nil {
			return mapRepoError(err, fmt.Sprintf("order for visit %d", visitID))
		}
		item, err := s.orders.GetItem(ctx, ex, order.ID, itemID)
		if err != nil {
			return mapRepoError(err, fmt.Sprintf("order item %d", itemID))
		}
		if err := apply(item, s.now()); err != nil {
			return err
		}
		if err := s.orders.UpdateItemStatus(ctx, ex, item); err != nil {
			return mapRepoError(err, "order item")
		}
		if err := s.persistTotals(ctx, ex, order); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	utils.LogInfo("Order item updated", map[string]interface{}{
		"visitID": visitID, "itemID": itemID, "operation": op, "totalAmount": utils.MoneyString(result.TotalAmount),
	})
	return result, nil
}

// UpdateOrder changes the waiter and the service fee settings while the order is editable.
func (s *orderService) UpdateOrder(ctx context.Context, actor Actor, visitID int64, req UpdateOrderRequest) (*models.Order, error) {
	var result *models.Order
	err := s.tx.WithinTx(ctx, func(ex repositories.SQLExecutor) error {
		visit, err := s.lockVenueVisit(ctx, ex, actor, visitID)
		if err != nil {
			return err
		}
		if err := requireOrderChanges(visit, "update order", models.VisitStatusStarted, models.VisitStatusFinished); err != nil {
			return err
		}
		order, err := s.orders.GetByVisitID(ctx, ex, visitID)
		if err != nil {
			return mapRepoError(err, fmt.Sprintf("order for visit %d", visitID))
		}
		if err := order.ApplySettings(req.WaiterFullName, req.PercentageOfService, req.ServiceFee); err != nil {
			return err
		}
		if err := s.persistTotals(ctx, ex, order); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
