package repositories

import (
	"context"
	"time"

	"dinein_backend/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

const (
	ordersTable     = "orders"
	orderItemsTable = "order_items"
)

var (
	orderFields     = fields(models.Order{})
	orderItemFields = fields(models.OrderItem{})
)

// OrderRepository defines the interface for order and order item persistence.
type OrderRepository interface {
	Create(ctx context.Context, ex SQLExecutor, order *models.Order) (*models.Order, error)
	// GetByVisitID loads the order together with all of its items.
	GetByVisitID(ctx context.Context, ex SQLExecutor, visitID int64) (*models.Order, error)
	UpdateTotals(ctx context.Context, ex SQLExecutor, order *models.Order) error
	CreateItem(ctx context.Context, ex SQLExecutor, item *models.OrderItem) (*models.OrderItem, error)
	GetItem(ctx context.Context, ex SQLExecutor, orderID, itemID int64) (*models.OrderItem, error)
	UpdateItemStatus(ctx context.Context, ex SQLExecutor, item *models.OrderItem) error
	ListItems(ctx context.Context, ex SQLExecutor, orderID int64) ([]models.OrderItem, error)
}

type orderRepository struct {
	now func() time.Time
}

// NewOrderRepository creates a new instance of OrderRepository.
func NewOrderRepository() OrderRepository {
	return &orderRepository{now: func() time.Time { return time.Now().UTC() }}
}

// Create returns ErrDuplicateKey if the visit already has an order.
func (r *orderRepository) Create(ctx context.Context, ex SQLExecutor, order *models.Order) (*models.Order, error) {
	now := r.now()
	q, args, err := stmtBuilder(ex).
		Insert(ordersTable).
		SetMap(map[string]interface{}{
			"visit_id":              order.VisitID,
			"percentage_of_service": order.PercentageOfService,
			"service_fee":           order.ServiceFee,
			"total_amount":          order.TotalAmount,
			"waiter_full_name":      order.WaiterFullName,
			"created_at":            now,
			"updated_at":            now,
		}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, buildError(err, "insert order")
	}

	var id int64
	if err := ex.QueryRowxContext(ctx, q, args...).Scan(&id); err != nil {
		return nil, translateError(err, "insert order")
	}
	return r.GetByVisitID(ctx, ex, order.VisitID)
}

func (r *orderRepository) GetByVisitID(ctx context.Context, ex SQLExecutor, visitID int64) (*models.Order, error) {
	q, args, err := stmtBuilder(ex).
		Select(orderFields).
		From(ordersTable).
		Where(sq.Eq{"visit_id": visitID}).
		ToSql()
	if err != nil {
		return nil, buildError(err, "get order")
	}

	var order models.Order
	if err := sqlx.GetContext(ctx, ex, &order, q, args...); err != nil {
		return nil, translateError(err, "get order")
	}

	items, err := r.ListItems(ctx, ex, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func (r *orderRepository) UpdateTotals(ctx context.Context, ex SQLExecutor, order *models.Order) error {
	order.UpdatedAt = r.now()
	q, args, err := stmtBuilder(ex).
		Update(ordersTable).
		SetMap(map[string]interface{}{
			"percentage_of_service": order.PercentageOfService,
			"service_fee":           order.ServiceFee,
			"total_amount":          order.TotalAmount,
			"waiter_full_name":      order.WaiterFullName,
			"updated_at":            order.UpdatedAt,
		}).
		Where(sq.Eq{"id": order.ID}).
		ToSql()
	if err != nil {
		return buildError(err, "update order")
	}
	if _, err := ex.ExecContext(ctx, q, args...); err != nil {
		return translateError(err, "update order")
	}
	return nil
}

func (r *orderRepository) CreateItem(ctx context.Context, ex SQLExecutor, item *models.OrderItem) (*models.OrderItem, error) {
	q, args, err := stmtBuilder(ex).
		Insert(orderItemsTable).
		SetMap(map[string]interface{}{
			"order_id":     item.OrderID,
			"status":       string(item.Status),
			"product_name": item.ProductName,
			"quantity":     item.Quantity,
			"unit_price":   item.UnitPrice,
			"total_price":  item.TotalPrice,
			"ordered_at":   item.OrderedAt,
		}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, buildError(err, "insert order item")
	}

	var id int64
	if err := ex.QueryRowxContext(ctx, q, args...).Scan(&id); err != nil {
		return nil, translateError(err, "insert order item")
	}
	return r.GetItem(ctx, ex, item.OrderID, id)
}

// GetItem scopes the lookup to the order so ids from other visits are not found.
func (r *orderRepository) GetItem(ctx context.Context, ex SQLExecutor, orderID, itemID int64) (*models.OrderItem, error) {
	q, args, err := stmtBuilder(ex).
		Select(orderItemFields).
		From(orderItemsTable).
		Where(sq.Eq{"id": itemID, "order_id": orderID}).
		ToSql()
	if err != nil {
		return nil, buildError(err, "get order item")
	}

	var item models.OrderItem
	if err := sqlx.GetContext(ctx, ex, &item, q, args...); err != nil {
		return nil, translateError(err, "get order item")
	}
	return &item, nil
}

func (r *orderRepository) UpdateItemStatus(ctx context.Context, ex SQLExecutor, item *models.OrderItem) error {
	q, args, err := stmtBuilder(ex).
		Update(orderItemsTable).
		SetMap(map[string]interface{}{
			"status":       string(item.Status),
			"served_at":    item.ServedAt,
			"cancelled_at": item.CancelledAt,
		}).
		Where(sq.Eq{"id": item.ID}).
		ToSql()
	if err != nil {
		return buildError(err, "update order item")
	}
	if _, err := ex.ExecContext(ctx, q, args...); err != nil {
		return translateError(err, "update order item")
	}
	return nil
}

func (r *orderRepository) ListItems(ctx context.Context, ex SQLExecutor, orderID int64) ([]models.OrderItem, error) {
	q, args, err := stmtBuilder(ex).
		Select(orderItemFields).
		From(orderItemsTable).
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, buildError(err, "list order items")
	}

	items := []models.OrderItem{}
	if err := sqlx.SelectContext(ctx, ex, &items, q, args...); err != nil {
		return nil, translateError(err, "list order items")
	}
	return items, nil
}
