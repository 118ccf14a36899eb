package gogateway

import (
	"github.com/evdnx/gogateway/exchange"
	"github.com/evdnx/gogateway/models"
)

type (
	// Re-export domain types so consumers can use gogateway.Order, etc.
	Platform     = exchange.Platform
	OrderSide    = exchange.OrderSide
	OrderType    = exchange.OrderType
	OrderStatus  = exchange.OrderStatus
	OrderRequest = exchange.OrderRequest
	ErrorType    = exchange.ErrorType
	GatewayError = exchange.GatewayError
	Adapter      = exchange.Adapter

	MarketData     = models.MarketData
	OrderBook      = models.OrderBook
	OrderBookEntry = models.OrderBookEntry
	Order          = models.Order
	Balance        = models.Balance
)

const (
	PlatformBinance  = exchange.PlatformBinance
	PlatformKraken   = exchange.PlatformKraken
	PlatformBitforex = exchange.PlatformBitforex
	PlatformCoinbase = exchange.PlatformCoinbase

	OrderSideBuy  = exchange.OrderSideBuy
	OrderSideSell = exchange.OrderSideSell

	OrderTypeMarket = exchange.OrderTypeMarket
	OrderTypeLimit  = exchange.OrderTypeLimit

	OrderStatusNew             = exchange.OrderStatusNew
	OrderStatusPartiallyFilled = exchange.OrderStatusPartiallyFilled
	OrderStatusFilled          = exchange.OrderStatusFilled
	OrderStatusCanceled        = exchange.OrderStatusCanceled
	OrderStatusRejected        = exchange.OrderStatusRejected

	ErrorTypeHTTP           = exchange.ErrorTypeHTTP
	ErrorTypeNetwork        = exchange.ErrorTypeNetwork
	ErrorTypeRateLimit      = exchange.ErrorTypeRateLimit
	ErrorTypeAuthentication = exchange.ErrorTypeAuthentication
	ErrorTypeParsing        = exchange.ErrorTypeParsing
	ErrorTypeValidation     = exchange.ErrorTypeValidation
	ErrorTypeExchange       = exchange.ErrorTypeExchange
	ErrorTypeUnknown        = exchange.ErrorTypeUnknown

	CodeUnknownPlatform    = exchange.CodeUnknownPlatform
	CodeCredentialsMissing = exchange.CodeCredentialsMissing
	CodeDivisionByZero     = exchange.CodeDivisionByZero
)

func PlatformFromString(s string) (Platform, bool) {
	return exchange.PlatformFromString(s)
}

func IsNetworkError(err error) bool {
	return exchange.IsNetworkError(err)
}

func IsRateLimitError(err error) bool {
	return exchange.IsRateLimitError(err)
}

func IsAuthenticationError(err error) bool {
	return exchange.IsAuthenticationError(err)
}

func IsValidationError(err error) bool {
	return exchange.IsValidationError(err)
}

func IsUnknownPlatformError(err error) bool {
	return exchange.IsUnknownPlatformError(err)
}

func IsRetriable(err error) bool {
	return exchange.IsRetriable(err)
}
