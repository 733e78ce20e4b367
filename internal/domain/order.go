package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType distinguishes market orders from resting limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus tracks the order lifecycle. Filled and cancelled are terminal;
// a filled order is never matched again.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Order is a resting or in-flight trading order. FilledQuantity is
// monotonically non-decreasing; Version is bumped on every write and checked
// by the stores so concurrent engine ticks cannot clobber each other.
type Order struct {
	ID             string
	AccountID      string
	AssetID        string
	Side           OrderSide
	Type           OrderType
	Price          float64 // limit price; zero for market orders
	Quantity       float64
	FilledQuantity float64
	AvgFillPrice   float64
	Status         OrderStatus
	Version        int64
	CreatedAt      time.Time
	FilledAt       *time.Time
}

// Remaining returns the unfilled quantity.
func (o Order) Remaining() float64 {
	return o.Quantity - o.FilledQuantity
}

// IsTerminal reports whether the order can never be matched again.
func (o Order) IsTerminal() bool {
	return o.Status == OrderStatusFilled || o.Status == OrderStatusCancelled
}
