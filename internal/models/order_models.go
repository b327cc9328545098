package models

import (
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// OrderItemStatus tracks one line of an order.
type OrderItemStatus string

const (
	OrderItemStatusOrdered   OrderItemStatus = "ordered"
	OrderItemStatusServed    OrderItemStatus = "served"
	OrderItemStatusCancelled OrderItemStatus = "cancelled"
)

// Order belongs to exactly one visit and exists from the moment the visit starts.
type Order struct {
	ID                  int64           `json:"id" db:"id"`
	VisitID             int64           `json:"visit_id" db:"visit_id"`
	PercentageOfService float64         `json:"percentage_of_service" db:"percentage_of_service"`
	ServiceFee          decimal.Decimal `json:"service_fee" db:"service_fee"`
	TotalAmount         decimal.Decimal `json:"total_amount" db:"total_amount"`
	WaiterFullName      *string         `json:"waiter_full_name,omitempty" db:"waiter_full_name"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`

	Items []OrderItem `json:"items" db:"-"`
}

// NewOrder returns an empty order for a freshly started visit.
func NewOrder(visitID int64) *Order {
	return &Order{
		VisitID:     visitID,
		ServiceFee:  decimal.Zero,
		TotalAmount: decimal.Zero,
		Items:       []OrderItem{},
	}
}

// Subtotal sums every item that has not been cancelled.
func (o *Order) Subtotal() decimal.Decimal {
	live := lo.Filter(o.Items, func(item OrderItem, _ int) bool {
		return item.Status != OrderItemStatusCancelled
	})
	return lo.Reduce(live, func(acc decimal.Decimal, item OrderItem, _ int) decimal.Decimal {
		return acc.Add(item.TotalPrice)
	}, decimal.Zero)
}

// RecomputeTotal refreshes ServiceFee (when a percentage is set) and TotalAmount from Items.
func (o *Order) RecomputeTotal() decimal.Decimal {
	subtotal := o.Subtotal()
	if o.PercentageOfService > 0 {
		o.ServiceFee = subtotal.
			Mul(decimal.NewFromFloat(o.PercentageOfService)).
			Div(decimal.NewFromInt(100)).
			Round(2)
	}
	o.TotalAmount = subtotal.Add(o.ServiceFee)
	return o.TotalAmount
}

// ApplySettings changes the waiter and service charge. A fixed fee clears the percentage.
func (o *Order) ApplySettings(waiter *string, percentage *float64, fixedFee *decimal.Decimal) error {
	if percentage != nil && fixedFee != nil {
		return NewValidationError("percentage_of_service and service_fee are mutually exclusive")
	}
	if percentage != nil {
		if *percentage < 0 || *percentage > 100 {
			return NewValidationError("percentage_of_service must be between 0 and 100")
		}
		o.PercentageOfService = *percentage
		if *percentage == 0 {
			o.ServiceFee = decimal.Zero
		}
	}
	if fixedFee != nil {
		if fixedFee.IsNegative() {
			return NewValidationError("service_fee must not be negative")
		}
		o.PercentageOfService = 0
		o.ServiceFee = *fixedFee
	}
	if waiter != nil {
		name := strings.TrimSpace(*waiter)
		if name == "" {
			o.WaiterFullName = nil
		} else {
			o.WaiterFullName = &name
		}
	}
	return nil
}

// OrderItem is one product line on an order.
type OrderItem struct {
	ID          int64           `json:"id" db:"id"`
	OrderID     int64           `json:"order_id" db:"order_id"`
	Status      OrderItemStatus `json:"status" db:"status"`
	ProductName string          `json:"product_name" db:"product_name"`
	Quantity    int             `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price" db:"total_price"`
	OrderedAt   time.Time       `json:"ordered_at" db:"ordered_at"`
	ServedAt    *time.Time      `json:"served_at,omitempty" db:"served_at"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// NewOrderItem builds an ordered line. TotalPrice defaults to UnitPrice x Quantity.
func NewOrderItem(orderID int64, productName string, quantity int, unitPrice decimal.Decimal, totalPrice *decimal.Decimal, now time.Time) (*OrderItem, error) {
	productName = strings.TrimSpace(productName)
	if productName == "" {
		return nil, NewValidationError("product_name is required")
	}
	if quantity <= 0 {
		return nil, NewValidationError("quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return nil, NewValidationError("unit_price must not be negative")
	}
	total := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	if totalPrice != nil {
		if totalPrice.IsNegative() {
			return nil, NewValidationError("total_price must not be negative")
		}
		total = *totalPrice
	}
	return &OrderItem{
		OrderID:     orderID,
		Status:      OrderItemStatusOrdered,
		ProductName: productName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TotalPrice:  total,
		OrderedAt:   now,
	}, nil
}

func (i *OrderItem) transition(op string, next OrderItemStatus) error {
	if i.Status != OrderItemStatusOrdered {
		return &InvalidStateError{
			Entity:    "order item",
			ID:        i.ID,
			Operation: op,
			Current:   string(i.Status),
			Allowed:   []string{string(OrderItemStatusOrdered)},
		}
	}
	i.Status = next
	return nil
}

func (i *OrderItem) Serve(now time.Time) error {
	if err := i.transition("serve", OrderItemStatusServed); err != nil {
		return err
	}
	i.ServedAt = stampOnce(i.ServedAt, now)
	return nil
}

func (i *OrderItem) Cancel(now time.Time) error {
	if err := i.transition("cancel", OrderItemStatusCancelled); err != nil {
		return err
	}
	i.CancelledAt = stampOnce(i.CancelledAt, now)
	return nil
}
