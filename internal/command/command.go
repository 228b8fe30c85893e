// Package command defines the wire protocol between callers and the engine:
// the inbound envelope, one typed command per kind, and the response and
// broadcast envelopes the engine publishes.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mishragini/OpiniXchange/internal/model"
)

var (
	ErrUnknownCommand = errors.New("unknown command type")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Kind names a command on the wire.
type Kind string

const (
	KindSignup              Kind = "signup"
	KindLogin               Kind = "login"
	KindGetMe               Kind = "get_me"
	KindGetAllMarkets       Kind = "get_all_markets"
	KindGetAllCategories    Kind = "get_all_categories"
	KindGetMarket           Kind = "get_market"
	KindCreateCategory      Kind = "create_category"
	KindCreateMarket        Kind = "create_market"
	KindOnrampINR           Kind = "onramp_inr"
	KindBuy                 Kind = "buy"
	KindSell                Kind = "sell"
	KindGetOrderbook        Kind = "get_orderbook"
	KindMint                Kind = "mint"
	KindCancelBuyOrder      Kind = "cancel_buy_order"
	KindCancelSellOrder     Kind = "cancel_sell_order"
	KindGetUserMarketOrders Kind = "get_user_market_orders"
)

// ResponseType is the type tag of the response to commands of kind k.
func (k Kind) ResponseType() string {
	return string(k) + "_response"
}

// Envelope is the queued form of a command.
type Envelope struct {
	Type          Kind            `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlationId"`
}

// NewEnvelope encodes payload under kind.
func NewEnvelope(kind Kind, payload any, correlationID string) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return &Envelope{Type: kind, Payload: raw, CorrelationID: correlationID}, nil
}

// Command is the decoded, strongly typed form of an envelope.
type Command interface {
	Kind() Kind
}

// Authenticated is implemented by commands that carry a bearer token.
type Authenticated interface {
	Command
	AuthToken() string
}

// Auth is embedded by every command that requires a token.
type Auth struct {
	Token string `json:"token"`
}

func (a Auth) AuthToken() string { return a.Token }

type Signup struct {
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

type Login struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type GetMe struct{ Auth }

type GetAllMarkets struct{}

type GetAllCategories struct{}

type GetMarket struct {
	MarketSymbol string `json:"marketSymbol"`
}

type CreateCategory struct {
	Auth
	Title       string `json:"title"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

type CreateMarket struct {
	Auth
	Symbol        string    `json:"symbol"`
	EndTime       time.Time `json:"endTime"`
	Description   string    `json:"description"`
	SourceOfTruth string    `json:"sourceOfTruth"`
	CategoryTitle string    `json:"categoryTitle"`
}

// OnrampINR credits Amount whole currency units.
type OnrampINR struct {
	Auth
	Amount int64 `json:"amount"`
}

// Order is the payload shared by buy and sell. Price is in whole currency
// units and may carry up to two decimal places.
type Order struct {
	Auth
	Symbol    string          `json:"symbol"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	StockType model.Side      `json:"stockType"`
}

type Buy struct{ Order }

type Sell struct{ Order }

type GetOrderbook struct {
	Auth
	Symbol string `json:"symbol"`
}

type Mint struct {
	Auth
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Cancel is the payload shared by both cancel commands.
type Cancel struct {
	Auth
	OrderID      string `json:"orderId"`
	MarketSymbol string `json:"marketSymbol"`
}

type CancelBuyOrder struct{ Cancel }

type CancelSellOrder struct{ Cancel }

type GetUserMarketOrders struct {
	Auth
	MarketSymbol string `json:"marketSymbol"`
}

func (Signup) Kind() Kind              { return KindSignup }
func (Login) Kind() Kind               { return KindLogin }
func (GetMe) Kind() Kind               { return KindGetMe }
func (GetAllMarkets) Kind() Kind       { return KindGetAllMarkets }
func (GetAllCategories) Kind() Kind    { return KindGetAllCategories }
func (GetMarket) Kind() Kind           { return KindGetMarket }
func (CreateCategory) Kind() Kind      { return KindCreateCategory }
func (CreateMarket) Kind() Kind        { return KindCreateMarket }
func (OnrampINR) Kind() Kind           { return KindOnrampINR }
func (Buy) Kind() Kind                 { return KindBuy }
func (Sell) Kind() Kind                { return KindSell }
func (GetOrderbook) Kind() Kind        { return KindGetOrderbook }
func (Mint) Kind() Kind                { return KindMint }
func (CancelBuyOrder) Kind() Kind      { return KindCancelBuyOrder }
func (CancelSellOrder) Kind() Kind     { return KindCancelSellOrder }
func (GetUserMarketOrders) Kind() Kind { return KindGetUserMarketOrders }

// Decode turns an envelope into its typed command. An unknown type yields
// ErrUnknownCommand; a payload that does not fit the type yields
// ErrInvalidPayload.
func Decode(env *Envelope) (Command, error) {
	var cmd Command
	switch env.Type {
	case KindSignup:
		cmd = &Signup{}
	case KindLogin:
		cmd = &Login{}
	case KindGetMe:
		cmd = &GetMe{}
	case KindGetAllMarkets:
		return GetAllMarkets{}, nil
	case KindGetAllCategories:
		return GetAllCategories{}, nil
	case KindGetMarket:
		cmd = &GetMarket{}
	case KindCreateCategory:
		cmd = &CreateCategory{}
	case KindCreateMarket:
		cmd = &CreateMarket{}
	case KindOnrampINR:
		cmd = &OnrampINR{}
	case KindBuy:
		cmd = &Buy{}
	case KindSell:
		cmd = &Sell{}
	case KindGetOrderbook:
		cmd = &GetOrderbook{}
	case KindMint:
		cmd = &Mint{}
	case KindCancelBuyOrder:
		cmd = &CancelBuyOrder{}
	case KindCancelSellOrder:
		cmd = &CancelSellOrder{}
	case KindGetUserMarketOrders:
		cmd = &GetUserMarketOrders{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Type)
	}

	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, cmd); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, err)
		}
	}
	if err := validate(cmd); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, err)
	}
	return deref(cmd), nil
}

func validate(cmd Command) error {
	switch c := cmd.(type) {
	case *Signup:
		if c.Role != "" && c.Role != model.RoleAdmin && c.Role != model.RoleUser {
			return fmt.Errorf("role %q", c.Role)
		}
	case *Buy:
		return validateSide(c.StockType)
	case *Sell:
		return validateSide(c.StockType)
	}
	return nil
}

func validateSide(s model.Side) error {
	if !s.Valid() {
		return fmt.Errorf("stockType %q", s)
	}
	return nil
}

// deref hands out commands by value so handlers can type-switch on the
// plain struct types.
func deref(cmd Command) Command {
	switch c := cmd.(type) {
	case *Signup:
		return *c
	case *Login:
		return *c
	case *GetMe:
		return *c
	case *GetMarket:
		return *c
	case *CreateCategory:
		return *c
	case *CreateMarket:
		return *c
	case *OnrampINR:
		return *c
	case *Buy:
		return *c
	case *Sell:
		return *c
	case *GetOrderbook:
		return *c
	case *Mint:
		return *c
	case *CancelBuyOrder:
		return *c
	case *CancelSellOrder:
		return *c
	case *GetUserMarketOrders:
		return *c
	}
	return cmd
}
