// Package model defines the core domain types shared across the exchange.
// Cash and order prices are integer minor units (paise); display values use
// shopspring/decimal, never float64.
package model

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MinorPerUnit is the number of minor units in one whole currency unit.
const MinorPerUnit = 100

// Side is the outcome a contract pays out on.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Valid reports whether s is YES or NO.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Role gates admin-only commands.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

type MarketStatus string

const (
	MarketActive   MarketStatus = "ACTIVE"
	MarketClosed   MarketStatus = "CLOSED"
	MarketResolved MarketStatus = "RESOLVED"
)

type OrderStatus string

const (
	OrderPending         OrderStatus = "PENDING"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCancelled       OrderStatus = "CANCELLED"
)

// Open reports whether an order with this status can still match.
func (s OrderStatus) Open() bool {
	return s != OrderFilled && s != OrderCancelled
}

// Cash is an account's currency balance in minor units.
type Cash struct {
	Available int64 `json:"available"`
	Locked    int64 `json:"locked"`
}

// Position is a holding of one side of one market. Locked quantity is
// reserved by open sell orders.
type Position struct {
	Quantity int64 `json:"quantity"`
	Locked   int64 `json:"locked"`
}

// MarketPosition holds both sides of a market. A side is nil until the
// account first touches it.
type MarketPosition struct {
	Yes *Position `json:"YES,omitempty"`
	No  *Position `json:"NO,omitempty"`
}

// Side returns the position for s, or nil if it has never been opened.
func (p *MarketPosition) Side(s Side) *Position {
	if s == SideYes {
		return p.Yes
	}
	return p.No
}

// Balance groups cash and per-market stock positions.
type Balance struct {
	INR    Cash                       `json:"INR"`
	Stocks map[string]*MarketPosition `json:"stocks"` // market symbol → position
}

// Account is a trader. The password hash never leaves the engine.
type Account struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	PasswordHash string  `json:"-"`
	Role         Role    `json:"role"`
	Balance      Balance `json:"balance"`
}

// IsAdmin reports whether the account may run admin commands.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Category groups markets. Immutable once created.
type Category struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

// Market is a binary YES/NO market. Last prices are in whole currency units.
type Market struct {
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	Description   string          `json:"description"`
	EndTime       time.Time       `json:"endTime"`
	SourceOfTruth string          `json:"sourceOfTruth"`
	CategoryID    string          `json:"categoryId"`
	CategoryTitle string          `json:"categoryTitle"`
	Status        MarketStatus    `json:"status"`
	LastYesPrice  decimal.Decimal `json:"lastYesPrice"`
	LastNoPrice   decimal.Decimal `json:"lastNoPrice"`
	TotalVolume   int64           `json:"totalVolume"`
	CreatedBy     string          `json:"createdBy"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Order is a limit order. Price is in minor units.
type Order struct {
	ID           string      `json:"id"`
	UserID       string      `json:"userId"`
	MarketSymbol string      `json:"marketSymbol"`
	Side         Side        `json:"side"`
	Quantity     int64       `json:"quantity"`
	RemainingQty int64       `json:"remainingQty"`
	Price        int64       `json:"price"`
	Status       OrderStatus `json:"status"`
	Timestamp    time.Time   `json:"timestamp"`
}

// PriceLevel is the aggregated resting quantity at one price.
type PriceLevel struct {
	Quantity int64 `json:"quantity"`
}

// Orderbook maps a minor-unit price to its level. JSON encodes the keys
// as strings.
type Orderbook map[int64]PriceLevel

// OrderbookView is the visible book of a market, built from resting sell
// orders only.
type OrderbookView struct {
	YesOrderBook Orderbook `json:"yesOrderBook"`
	NoOrderBook  Orderbook `json:"noOrderBook"`
}

// Match is one fill in display units.
type Match struct {
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// ToDisplay converts minor units to whole currency units.
func ToDisplay(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// ToMinor converts a whole-unit amount to minor units. ok is false when the
// amount has sub-minor precision or does not fit in an int64.
func ToMinor(amount decimal.Decimal) (int64, bool) {
	scaled := amount.Mul(decimal.NewFromInt(MinorPerUnit))
	if !scaled.Equal(scaled.Truncate(0)) || scaled.Abs().GreaterThan(maxMinor) {
		return 0, false
	}
	return scaled.IntPart(), true
}

// MulChecked returns a*b for non-negative operands. ok is false when the
// product overflows int64.
func MulChecked(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a != 0 && b > math.MaxInt64/a {
		return 0, false
	}
	return a * b, true
}

// AddChecked returns a+b for non-negative operands. ok is false when the sum
// overflows int64.
func AddChecked(a, b int64) (int64, bool) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}
