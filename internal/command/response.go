package command

import (
	"github.com/shopspring/decimal"

	"github.com/Mishragini/OpiniXchange/internal/model"
)

// Response is published on the responses topic under the request's
// correlation id.
type Response struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Status is embedded in every response body.
type Status struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// OK is the status of a successful command.
var OK = Status{Success: true}

// Failure builds the response of a failed command of kind k.
func Failure(k Kind, message string) *Response {
	return &Response{Type: k.ResponseType(), Data: Status{Message: message}}
}

// Success wraps data as the response of kind k.
func Success(k Kind, data any) *Response {
	return &Response{Type: k.ResponseType(), Data: data}
}

type UserResult struct {
	Status
	User *model.Account `json:"user"`
}

type LoginResult struct {
	Status
	Token string         `json:"token"`
	User  *model.Account `json:"user"`
}

type MarketsResult struct {
	Status
	Markets []*model.Market `json:"markets"`
}

type CategoriesResult struct {
	Status
	Categories []*model.Category `json:"categories"`
}

type MarketResult struct {
	Status
	Market *model.Market `json:"market"`
}

type CategoryResult struct {
	Status
	Category *model.Category `json:"category"`
}

type OnrampResult struct {
	Status
	User   *model.Account `json:"user"`
	UserID string         `json:"userId"`
	Amount int64          `json:"amount"`
}

// BuyResult reports TotalValue and match prices in whole currency units.
type BuyResult struct {
	Status
	BuyOrder   *model.Order    `json:"buyOrder"`
	Buyer      *model.Account  `json:"buyer"`
	TotalValue decimal.Decimal `json:"totalValue"`
	Matches    []model.Match   `json:"matches"`
}

type SellResult struct {
	Status
	SellOrder      *model.Order    `json:"sellOrder"`
	Seller         *model.Account  `json:"seller"`
	FilledQuantity int64           `json:"filledQuantity"`
	TotalValue     decimal.Decimal `json:"totalValue"`
	Matches        []model.Match   `json:"matches"`
}

type OrderbookResult struct {
	Status
	Data model.OrderbookView `json:"data"`
}

type MintResult struct {
	Status
	MintUser *model.Account `json:"mintUser"`
	UserID   string         `json:"userId"`
	Quantity int64          `json:"quantity"`
	Symbol   string         `json:"symbol"`
}

type CancelResult struct {
	Status
	CancelledOrderID string         `json:"cancelledOrderId"`
	Order            *model.Order   `json:"order"`
	User             *model.Account `json:"user"`
}

type UserOrdersResult struct {
	Status
	UserBuyMarketOrders  []*model.Order `json:"userBuyMarketOrders"`
	UserSellMarketOrders []*model.Order `json:"userSellMarketOrders"`
}

// Broadcast event type tags.
const (
	EventMarketUpdate    = "market_update"
	EventOrderbookUpdate = "orderbook_update"
)

// Event is published on a broadcast topic keyed by market symbol.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// LastPrice holds the last traded price of each side in whole units.
type LastPrice struct {
	Yes decimal.Decimal `json:"YES"`
	No  decimal.Decimal `json:"NO"`
}

type MarketUpdate struct {
	MarketSymbol string             `json:"marketSymbol"`
	Status       model.MarketStatus `json:"status"`
	LastPrice    LastPrice          `json:"lastPrice"`
	TotalVolume  int64              `json:"totalVolume"`
	Category     string             `json:"category"`
}

type OrderbookUpdate struct {
	Success      bool                `json:"success"`
	MarketSymbol string              `json:"marketSymbol"`
	Data         model.OrderbookView `json:"data"`
}

// NewMarketUpdate snapshots m.
func NewMarketUpdate(m *model.Market) *Event {
	return &Event{
		Type: EventMarketUpdate,
		Data: MarketUpdate{
			MarketSymbol: m.Symbol,
			Status:       m.Status,
			LastPrice:    LastPrice{Yes: m.LastYesPrice, No: m.LastNoPrice},
			TotalVolume:  m.TotalVolume,
			Category:     m.CategoryTitle,
		},
	}
}

// NewOrderbookUpdate wraps the visible book of symbol.
func NewOrderbookUpdate(symbol string, view model.OrderbookView) *Event {
	return &Event{
		Type: EventOrderbookUpdate,
		Data: OrderbookUpdate{Success: true, MarketSymbol: symbol, Data: view},
	}
}
