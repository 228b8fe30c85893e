// Package book holds the resting orders of every market and matches
// incoming buy and sell orders against them with price/time priority.
//
// Matches execute at the resting (maker) order's price. Orders of the same
// account never match each other. Like the ledger, a Book must only be used
// from the single dispatcher goroutine.
package book

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Mishragini/OpiniXchange/internal/directory"
	"github.com/Mishragini/OpiniXchange/internal/ledger"
	"github.com/Mishragini/OpiniXchange/internal/model"
)

var (
	ErrInvalidOrder  = errors.New("quantity and price must be positive and side must be YES or NO")
	ErrOrderNotFound = errors.New("order to cancel not found")
	ErrOrderTooLarge = fmt.Errorf("%w: order value exceeds the supported range", ErrInvalidOrder)

	// Re-exported so callers can match book failures without importing ledger.
	ErrInsufficientFunds = ledger.ErrInsufficientFunds
	ErrInsufficientStock = ledger.ErrInsufficientStock
)

// Execution is the outcome of placing one order.
type Execution struct {
	Order   *model.Order
	Matches []model.Match
	// Filled is the matched quantity and Value its cost in minor units.
	Filled int64
	Value  int64
	// LastPrice is the minor-unit price of the most recent match.
	LastPrice int64
	// Rested is true when a remainder was added to the book.
	Rested bool
}

func (e *Execution) record(quantity, price int64) {
	e.Filled += quantity
	e.Value += quantity * price
	e.LastPrice = price
	e.Matches = append(e.Matches, model.Match{Quantity: quantity, Price: model.ToDisplay(price)})
}

// Book keeps per-symbol buy and sell orders in insertion order. Orders are
// never removed; terminal orders stay in place with FILLED or CANCELLED.
type Book struct {
	ledger *ledger.Ledger
	buys   map[string][]*model.Order
	sells  map[string][]*model.Order
	now    func() time.Time
}

// New creates an empty book settling against l.
func New(l *ledger.Ledger) *Book {
	return &Book{
		ledger: l,
		buys:   make(map[string][]*model.Order),
		sells:  make(map[string][]*model.Order),
		now:    time.Now,
	}
}

func (b *Book) newOrder(owner, symbol string, side model.Side, quantity, price int64) *model.Order {
	return &model.Order{
		ID:           uuid.New().String(),
		UserID:       owner,
		MarketSymbol: symbol,
		Side:         side,
		Quantity:     quantity,
		RemainingQty: quantity,
		Price:        price,
		Status:       model.OrderPending,
		Timestamp:    b.now().UTC(),
	}
}

func validate(market *model.Market, side model.Side, quantity, price int64) error {
	if quantity <= 0 || price <= 0 || !side.Valid() {
		return ErrInvalidOrder
	}
	if market.Status != model.MarketActive {
		return directory.ErrMarketNotActive
	}
	return nil
}

// candidates returns the open orders of side not owned by owner that accept
// price, sorted by better price first. The sort is stable so equal prices
// keep time priority.
func candidates(orders []*model.Order, side model.Side, owner string, accepts func(*model.Order) bool, better func(x, y int64) bool) []*model.Order {
	var out []*model.Order
	for _, o := range orders {
		if o.Side == side && o.Status.Open() && o.UserID != owner && accepts(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return better(out[i].Price, out[j].Price) })
	return out
}

// fill reduces o by quantity and updates its status.
func fill(o *model.Order, quantity int64) {
	o.RemainingQty -= quantity
	if o.RemainingQty == 0 {
		o.Status = model.OrderFilled
	} else {
		o.Status = model.OrderPartiallyFilled
	}
}

// PlaceBuy reserves quantity × price from the buyer, matches against the
// cheapest eligible sell orders and rests any remainder. The buy order is
// appended to the book whatever its final status.
func (b *Book) PlaceBuy(buyer *model.Account, market *model.Market, side model.Side, quantity, price int64) (*Execution, error) {
	if err := validate(market, side, quantity, price); err != nil {
		return nil, err
	}
	symbol := market.Symbol
	required, ok := model.MulChecked(quantity, price)
	if !ok {
		return nil, ErrOrderTooLarge
	}
	if err := b.ledger.Reserve(buyer, required); err != nil {
		return nil, err
	}

	order := b.newOrder(buyer.ID, symbol, side, quantity, price)
	exec := &Execution{Order: order}

	asks := candidates(b.sells[symbol], side, buyer.ID,
		func(o *model.Order) bool { return o.Price <= price },
		func(x, y int64) bool { return x < y },
	)
	for _, ask := range asks {
		if order.RemainingQty == 0 {
			break
		}
		seller, ok := b.ledger.Get(ask.UserID)
		if !ok {
			continue
		}
		q := min(ask.RemainingQty, order.RemainingQty)
		fill(ask, q)
		order.RemainingQty -= q
		b.ledger.Settle(buyer, seller, symbol, side, q, q*ask.Price)
		exec.record(q, ask.Price)
	}

	// Fills at a cheaper maker price leave surplus in the reservation. Keep
	// exactly remaining × price locked for the resting part.
	if surplus := required - exec.Value - order.RemainingQty*price; surplus > 0 {
		b.ledger.Release(buyer, surplus)
	}

	switch {
	case order.RemainingQty == 0:
		order.Status = model.OrderFilled
	case exec.Filled > 0:
		order.Status = model.OrderPartiallyFilled
		exec.Rested = true
	default:
		exec.Rested = true
	}
	b.buys[symbol] = append(b.buys[symbol], order)

	if exec.Filled > 0 {
		directory.RecordFills(market, side, model.ToDisplay(exec.LastPrice), exec.Filled)
	}
	return exec, nil
}

// PlaceSell locks quantity of the seller's stock, matches against the
// highest eligible buy orders and rests any remainder. A fully filled sell
// order is not added to the book.
func (b *Book) PlaceSell(seller *model.Account, market *model.Market, side model.Side, quantity, price int64) (*Execution, error) {
	if err := validate(market, side, quantity, price); err != nil {
		return nil, err
	}
	symbol := market.Symbol
	if err := b.ledger.LockStock(seller, symbol, side, quantity); err != nil {
		return nil, err
	}

	order := b.newOrder(seller.ID, symbol, side, quantity, price)
	exec := &Execution{Order: order}

	bids := candidates(b.buys[symbol], side, seller.ID,
		func(o *model.Order) bool { return o.Price >= price },
		func(x, y int64) bool { return x > y },
	)
	for _, bid := range bids {
		if order.RemainingQty == 0 {
			break
		}
		buyer, ok := b.ledger.Get(bid.UserID)
		if !ok {
			continue
		}
		q := min(bid.RemainingQty, order.RemainingQty)
		fill(bid, q)
		order.RemainingQty -= q
		b.ledger.Settle(buyer, seller, symbol, side, q, q*bid.Price)
		exec.record(q, bid.Price)
	}

	if order.RemainingQty == 0 {
		order.Status = model.OrderFilled
	} else {
		if exec.Filled > 0 {
			order.Status = model.OrderPartiallyFilled
		}
		b.sells[symbol] = append(b.sells[symbol], order)
		exec.Rested = true
	}

	if exec.Filled > 0 {
		directory.RecordFills(market, side, model.ToDisplay(exec.LastPrice), exec.Filled)
	}
	return exec, nil
}

func findOpen(orders []*model.Order, orderID, owner string) *model.Order {
	for _, o := range orders {
		if o.ID == orderID && o.UserID == owner && o.Status.Open() {
			return o
		}
	}
	return nil
}

// CancelBuy cancels an open buy order owned by acct and refunds the cash
// still reserved for its remaining quantity.
func (b *Book) CancelBuy(acct *model.Account, symbol, orderID string) (*model.Order, error) {
	o := findOpen(b.buys[symbol], orderID, acct.ID)
	if o == nil {
		return nil, ErrOrderNotFound
	}
	b.ledger.Release(acct, o.RemainingQty*o.Price)
	o.Status = model.OrderCancelled
	return o, nil
}

// CancelSell cancels an open sell order owned by acct and unlocks its
// remaining stock.
func (b *Book) CancelSell(acct *model.Account, symbol, orderID string) (*model.Order, error) {
	o := findOpen(b.sells[symbol], orderID, acct.ID)
	if o == nil {
		return nil, ErrOrderNotFound
	}
	b.ledger.UnlockStock(acct, symbol, o.Side, o.RemainingQty)
	o.Status = model.OrderCancelled
	return o, nil
}

// View aggregates the open sell orders of symbol by price, per side.
// Resting buy orders are not part of the visible book.
func (b *Book) View(symbol string) model.OrderbookView {
	view := model.OrderbookView{
		YesOrderBook: model.Orderbook{},
		NoOrderBook:  model.Orderbook{},
	}
	for _, o := range b.sells[symbol] {
		if !o.Status.Open() {
			continue
		}
		ob := view.YesOrderBook
		if o.Side == model.SideNo {
			ob = view.NoOrderBook
		}
		lvl := ob[o.Price]
		lvl.Quantity += o.RemainingQty
		ob[o.Price] = lvl
	}
	return view
}

// UserOrders returns every buy and sell order acctID placed in symbol, in
// placement order and in any status.
func (b *Book) UserOrders(acctID, symbol string) (buys, sells []*model.Order) {
	buys, sells = []*model.Order{}, []*model.Order{}
	for _, o := range b.buys[symbol] {
		if o.UserID == acctID {
			buys = append(buys, o)
		}
	}
	for _, o := range b.sells[symbol] {
		if o.UserID == acctID {
			sells = append(sells, o)
		}
	}
	return buys, sells
}
