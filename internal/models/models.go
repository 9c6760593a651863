package models

// Side is the direction of a lot or an execution.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the side that closes a lot of side s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// PositionStatus is the lifecycle state of a lot.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// TradeType tells whether an execution opened a lot or reduced one.
type TradeType string

const (
	TradeOpen  TradeType = "open"
	TradeClose TradeType = "close"
)

// Position represents one lot. Timestamps are Unix milliseconds.
// ExitPrice and ExitTimestamp are only set once Status is closed.
type Position struct {
	ID            string         `json:"id"`
	Symbol        string         `json:"symbol"`
	Side          Side           `json:"side"`
	Quantity      float64        `json:"quantity"`
	EntryPrice    float64        `json:"entryPrice"`
	Timestamp     int64          `json:"timestamp"`
	Status        PositionStatus `json:"status"`
	ExitPrice     float64        `json:"exitPrice,omitempty"`
	ExitTimestamp int64          `json:"exitTimestamp,omitempty"`
}

// IsOpen checks if the lot still counts toward exposure.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// IsLong checks if the lot is a long (buy) lot.
func (p *Position) IsLong() bool {
	return p.Side == SideBuy
}

// IsShort checks if the lot is a short (sell) lot.
func (p *Position) IsShort() bool {
	return p.Side == SideSell
}

// Trade is an immutable entry of the execution log.
type Trade struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Timestamp  int64     `json:"timestamp"`
	Type       TradeType `json:"type"`
	PositionID string    `json:"positionId,omitempty"`
}

// AggregatedPosition is the net view of all open lots of one symbol.
// It is derived on demand and never stored.
type AggregatedPosition struct {
	Symbol       string  `json:"symbol"`
	BuyQuantity  float64 `json:"buyQuantity"`
	SellQuantity float64 `json:"sellQuantity"`
	NetQuantity  float64 `json:"netQuantity"`
	AvgBuyPrice  float64 `json:"avgBuyPrice"`
	AvgSellPrice float64 `json:"avgSellPrice"`
}

// IsLong checks if the symbol is net long.
func (a *AggregatedPosition) IsLong() bool {
	return a.NetQuantity > 0
}

// IsShort checks if the symbol is net short.
func (a *AggregatedPosition) IsShort() bool {
	return a.NetQuantity < 0
}

// PnL is an unrealized profit/loss figure against a live price.
type PnL struct {
	PnL     float64 `json:"pnl"`
	Percent float64 `json:"pnlPercent"`
}

// Order is a trade request submitted to the ledger.
// Price is the current mid price the order executes at.
type Order struct {
	Symbol   string
	Side     Side
	Quantity float64
	Price    float64
}

// Execution describes what a submitted order did to the ledger.
type Execution struct {
	Order     Order
	Trades    []Trade
	Opened    *Position // lot opened by the order, if any
	Closed    []string  // ids of lots fully closed
	Reduced   []string  // ids of lots partially closed
	Unfilled  float64   // quantity left after long lots ran out
	ShortSell bool
}

// SellPreview is what a sell of Quantity would do given current exposure.
type SellPreview struct {
	Symbol            string  `json:"symbol"`
	Quantity          float64 `json:"quantity"`
	Available         float64 `json:"available"`
	ShortQuantity     float64 `json:"shortQuantity"`
	IsShortSell       bool    `json:"isShortSell"`
	InsufficientFunds bool    `json:"insufficient"`
}

// Asset is one tradable coin of the market universe.
type Asset struct {
	Name       string `json:"name"`
	SzDecimals int    `json:"szDecimals"`
}

// Candle is one OHLCV bar. Times are Unix milliseconds.
type Candle struct {
	OpenTime  int64   `json:"t"`
	CloseTime int64   `json:"T"`
	Symbol    string  `json:"s"`
	Interval  string  `json:"i"`
	Open      float64 `json:"o"`
	Close     float64 `json:"c"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Volume    float64 `json:"v"`
	Trades    int64   `json:"n"`
}

// Market is an asset joined with its current mid price.
type Market struct {
	Asset
	Price string `json:"price"`
}

// Stats summarises the ledger for dashboards.
type Stats struct {
	OpenPositions   int     `json:"open_positions"`
	ClosedPositions int     `json:"closed_positions"`
	TotalTrades     int     `json:"total_trades"`
	Symbols         int     `json:"symbols"`
	UnrealizedPL    float64 `json:"unrealized_pl"`
	PricedAt        int64   `json:"priced_at"`
}

// PositionView is a lot valued at the current mid price.
type PositionView struct {
	Position
	CurrentPrice float64 `json:"currentPrice"`
	PnL
}

// AggregatedView is a symbol's net exposure valued at the current mid price.
type AggregatedView struct {
	AggregatedPosition
	CurrentPrice float64 `json:"currentPrice"`
	PnL
}
