package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderStatus is the normalized venue order state.
type OrderStatus string

const (
	OrderNew             OrderStatus = "NEW"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCanceled        OrderStatus = "CANCELED"
	OrderPendingCancel   OrderStatus = "PENDING_CANCEL"
	OrderRejected        OrderStatus = "REJECTED"
	OrderExpired         OrderStatus = "EXPIRED"
)

// TimeInForce is the order fill policy.
type TimeInForce string

const (
	GoodTilCanceled   TimeInForce = "GTC"
	ImmediateOrCancel TimeInForce = "IOC"
	FillOrKill        TimeInForce = "FOK"
)

// Order is the result of a venue order placement. It is created only by an
// exchange adapter and never mutated by the engine.
type Order struct {
	Exchange ExchangeID
	ID       string
	Status   OrderStatus
	Price    float64
	Quantity float64
}

// IsStatus reports whether the order is in the given state.
func (o *Order) IsStatus(status OrderStatus) bool {
	return o != nil && o.Status == status
}
