package domain

// PriceKind identifies where a price observation came from.
type PriceKind string

const (
	PriceKindOracle PriceKind = "oracle_price" // chainlink-style aggregator answer
	PriceKindFast   PriceKind = "fast_price"   // push feed from an off-chain reporter
	PriceKindPool   PriceKind = "pool_price"   // derived from a liquidity pool
)

// IsValid checks if the price kind is a valid value.
func (k PriceKind) IsValid() bool {
	return k == PriceKindOracle || k == PriceKindFast || k == PriceKindPool
}

// EntityKind returns the store kind holding records of this price kind.
func (k PriceKind) EntityKind() EntityKind {
	switch k {
	case PriceKindOracle:
		return KindOraclePrice
	case PriceKindFast:
		return KindFastPrice
	default:
		return KindPoolPrice
	}
}

// OrderKind is the order family.
type OrderKind string

const (
	OrderKindSwap     OrderKind = "swap"
	OrderKindIncrease OrderKind = "increase"
	OrderKindDecrease OrderKind = "decrease"
)

// IsValid checks if the order kind is a valid value.
func (k OrderKind) IsValid() bool {
	return k == OrderKindSwap || k == OrderKindIncrease || k == OrderKindDecrease
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExecuted  OrderStatus = "executed"
)

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusExecuted
}

// EventKind is the type of an inbound event.
type EventKind string

const (
	EventPriceTick         EventKind = "price_tick"
	EventPoolSwap          EventKind = "pool_swap"
	EventPoolSync          EventKind = "pool_sync"
	EventIncreasePosition  EventKind = "increase_position"
	EventDecreasePosition  EventKind = "decrease_position"
	EventClosePosition     EventKind = "close_position"
	EventLiquidatePosition EventKind = "liquidate_position"
	EventCreateOrder       EventKind = "create_order"
	EventUpdateOrder       EventKind = "update_order"
	EventCancelOrder       EventKind = "cancel_order"
	EventExecuteOrder      EventKind = "execute_order"
	EventTransfer          EventKind = "transfer"
)

// IsValid checks if the event kind is a valid value.
func (k EventKind) IsValid() bool {
	switch k {
	case EventPriceTick, EventPoolSwap, EventPoolSync,
		EventIncreasePosition, EventDecreasePosition, EventClosePosition, EventLiquidatePosition,
		EventCreateOrder, EventUpdateOrder, EventCancelOrder, EventExecuteOrder,
		EventTransfer:
		return true
	}
	return false
}

// IsPosition reports whether the kind carries a position payload.
func (k EventKind) IsPosition() bool {
	switch k {
	case EventIncreasePosition, EventDecreasePosition, EventClosePosition, EventLiquidatePosition:
		return true
	}
	return false
}

// IsOrder reports whether the kind carries an order payload.
func (k EventKind) IsOrder() bool {
	switch k {
	case EventCreateOrder, EventUpdateOrder, EventCancelOrder, EventExecuteOrder:
		return true
	}
	return false
}
