package models

import "time"

// MarketData is the canonical 24h ticker shape produced by every adapter
// and by the simulation engine. Values are fresh on every fetch.
type MarketData struct {
	Symbol           string    `json:"symbol"`
	Price            float64   `json:"price"`
	High24h          float64   `json:"high24h"`
	Low24h           float64   `json:"low24h"`
	Volume24h        float64   `json:"volume24h"`
	Change24h        float64   `json:"change24h"`
	ChangePercent24h float64   `json:"changePercent24h"`
	Timestamp        time.Time `json:"timestamp"`
}

// OrderBookEntry is a single price level.
type OrderBookEntry struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook holds bids and asks for a symbol. Bids are ordered
// best-to-worst descending, asks best-to-worst ascending; this holds for
// every adapter and for the simulator.
type OrderBook struct {
	Symbol    string           `json:"symbol"`
	Bids      []OrderBookEntry `json:"bids"`
	Asks      []OrderBookEntry `json:"asks"`
	Timestamp time.Time        `json:"timestamp"`
}

// Order represents an order as seen through the gateway. The Simulated
// flag is permanent once set; a simulated order never becomes a live
// order record.
type Order struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Type      string    `json:"type"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Platform  string    `json:"platform"`
	Simulated bool      `json:"simulated"`
}

// Balance represents a single asset balance.
type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
	Total  float64 `json:"total"`
}
