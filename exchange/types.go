package exchange

import (
	"strings"
	"time"
)

// Platform identifies one of the supported exchange backends. The set is
// closed; adding a platform requires a new adapter and a registry entry.
type Platform string

const (
	// PlatformBinance represents the Binance exchange
	PlatformBinance Platform = "BINANCE"
	// PlatformKraken represents the Kraken exchange
	PlatformKraken Platform = "KRAKEN"
	// PlatformBitforex represents the Bitforex exchange
	PlatformBitforex Platform = "BITFOREX"
	// PlatformCoinbase represents the Coinbase exchange
	PlatformCoinbase Platform = "COINBASE"
)

// AllPlatforms lists every supported platform in registry order.
func AllPlatforms() []Platform {
	return []Platform{PlatformBinance, PlatformKraken, PlatformBitforex, PlatformCoinbase}
}

// PlatformFromString converts a string to a Platform, case-insensitively.
// The boolean reports whether the platform is one of the supported set.
func PlatformFromString(s string) (Platform, bool) {
	p := Platform(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case PlatformBinance, PlatformKraken, PlatformBitforex, PlatformCoinbase:
		return p, true
	}
	return "", false
}

// String returns the string representation of Platform
func (p Platform) String() string {
	return string(p)
}

// OrderSide represents the side of an order (buy or sell)
type OrderSide string

const (
	// OrderSideBuy represents a buy order
	OrderSideBuy OrderSide = "buy"
	// OrderSideSell represents a sell order
	OrderSideSell OrderSide = "sell"
)

// String returns the string representation of OrderSide
func (s OrderSide) String() string {
	return string(s)
}

// OrderSideFromString converts a string to OrderSide
func OrderSideFromString(s string) (OrderSide, bool) {
	side := OrderSide(strings.ToLower(strings.TrimSpace(s)))
	return side, side == OrderSideBuy || side == OrderSideSell
}

// OrderType represents the type of an order
type OrderType string

const (
	// OrderTypeMarket represents a market order
	OrderTypeMarket OrderType = "market"
	// OrderTypeLimit represents a limit order
	OrderTypeLimit OrderType = "limit"
)

// String returns the string representation of OrderType
func (t OrderType) String() string {
	return string(t)
}

// OrderTypeFromString converts a string to OrderType
func OrderTypeFromString(s string) (OrderType, bool) {
	typ := OrderType(strings.ToLower(strings.TrimSpace(s)))
	return typ, typ == OrderTypeMarket || typ == OrderTypeLimit
}

// OrderStatus represents the status of an order
type OrderStatus string

const (
	// OrderStatusNew represents a resting order
	OrderStatusNew OrderStatus = "NEW"
	// OrderStatusPartiallyFilled represents a partially filled order
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	// OrderStatusFilled represents a filled order
	OrderStatusFilled OrderStatus = "FILLED"
	// OrderStatusCanceled represents a canceled order
	OrderStatusCanceled OrderStatus = "CANCELED"
	// OrderStatusRejected represents a rejected order
	OrderStatusRejected OrderStatus = "REJECTED"
)

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// OrderRequest carries the parameters of a placeOrder call. Price is
// required for limit orders and ignored for market orders.
type OrderRequest struct {
	Symbol   string
	Side     OrderSide
	Type     OrderType
	Quantity float64
	Price    float64
}

// Validate checks the request against the canonical symbol and order
// parameter rules before it reaches any adapter.
func (r OrderRequest) Validate() error {
	if err := ValidateCanonicalSymbol(r.Symbol); err != nil {
		return err
	}
	if r.Side != OrderSideBuy && r.Side != OrderSideSell {
		return NewValidationError("invalid_side", "order side must be buy or sell")
	}
	if r.Type != OrderTypeMarket && r.Type != OrderTypeLimit {
		return NewValidationError("invalid_type", "order type must be market or limit")
	}
	if r.Quantity <= 0 {
		return NewValidationError("invalid_quantity", "order quantity must be positive")
	}
	if r.Type == OrderTypeLimit && r.Price <= 0 {
		return NewValidationError("price_required", "limit orders require a positive price")
	}
	return nil
}

// Clamp of the default adapter call timeout. Every outbound adapter call
// carries a bounded timeout so one unresponsive exchange cannot stall the
// polling loop for other platforms.
const DefaultCallTimeout = 10 * time.Second
