package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderType represents the venue order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Side represents the direction of the tracked market exposure.
type Side string

const (
	SideFlat  Side = "FLAT"
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Direction is the relation of the tracked oscillator to its signal line
// at the moment an indicator event fires.
type Direction string

const (
	DirectionAbove Direction = "ABOVE"
	DirectionBelow Direction = "BELOW"
)

// Action is the position transition kind emitted by the state machine.
type Action string

const (
	ActionBuy          Action = "BUY"
	ActionShort        Action = "SHORT"
	ActionCoverAndBuy  Action = "COVER_AND_BUY"
	ActionSellAndShort Action = "SELL_AND_SHORT"
	ActionHold         Action = "HOLD"
)
