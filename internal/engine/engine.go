// Package engine is the single authoritative writer of the exchange. An
// Engine owns the ledger, the order book and the market directory; the
// Dispatcher feeds it one command at a time from the request queue.
package engine

import (
	"errors"
	"fmt"

	"github.com/Mishragini/OpiniXchange/internal/auth"
	"github.com/Mishragini/OpiniXchange/internal/book"
	"github.com/Mishragini/OpiniXchange/internal/bus"
	"github.com/Mishragini/OpiniXchange/internal/command"
	"github.com/Mishragini/OpiniXchange/internal/directory"
	"github.com/Mishragini/OpiniXchange/internal/ledger"
	"github.com/Mishragini/OpiniXchange/internal/metrics"
	"github.com/Mishragini/OpiniXchange/internal/model"
)

// ErrUnauthorized wraps every token resolution failure.
var ErrUnauthorized = errors.New("unauthorized")

// Broadcast is an event bound for a topic, keyed by market symbol.
type Broadcast struct {
	Topic string
	Key   string
	Event *command.Event
}

// Outcome is the result of a successful command: the response body and any
// broadcasts it triggers.
type Outcome struct {
	Data   any
	Events []Broadcast
}

// Engine holds all exchange state. It is not safe for concurrent use.
type Engine struct {
	ledger    *ledger.Ledger
	directory *directory.Directory
	book      *book.Book
}

// New creates an empty engine.
func New(hasher auth.PasswordHasher, tokens auth.TokenService) *Engine {
	l := ledger.New(hasher, tokens)
	e := &Engine{
		ledger:    l,
		directory: directory.New(),
		book:      book.New(l),
	}
	e.refreshMarketGauge()
	return e
}

// Handle executes cmd against engine state.
func (e *Engine) Handle(cmd command.Command) (*Outcome, error) {
	switch c := cmd.(type) {
	case command.Signup:
		return e.signup(c)
	case command.Login:
		return e.login(c)
	case command.GetAllMarkets:
		return &Outcome{Data: command.MarketsResult{Status: command.OK, Markets: e.directory.Markets()}}, nil
	case command.GetAllCategories:
		return &Outcome{Data: command.CategoriesResult{Status: command.OK, Categories: e.directory.Categories()}}, nil
	case command.GetMarket:
		m, err := e.directory.Market(c.MarketSymbol)
		if err != nil {
			return nil, err
		}
		return &Outcome{Data: command.MarketResult{Status: command.OK, Market: m}}, nil
	}

	authed, ok := cmd.(command.Authenticated)
	if !ok {
		return nil, fmt.Errorf("%w: %s", command.ErrUnknownCommand, cmd.Kind())
	}
	acct, err := e.resolve(authed.AuthToken())
	if err != nil {
		return nil, err
	}

	switch c := cmd.(type) {
	case command.GetMe:
		return &Outcome{Data: command.UserResult{Status: command.OK, User: acct}}, nil
	case command.CreateCategory:
		return e.createCategory(acct, c)
	case command.CreateMarket:
		return e.createMarket(acct, c)
	case command.OnrampINR:
		return e.onramp(acct, c)
	case command.Buy:
		return e.buy(acct, c)
	case command.Sell:
		return e.sell(acct, c)
	case command.GetOrderbook:
		return e.orderbook(c)
	case command.Mint:
		return e.mint(acct, c)
	case command.CancelBuyOrder:
		return e.cancelBuy(acct, c)
	case command.CancelSellOrder:
		return e.cancelSell(acct, c)
	case command.GetUserMarketOrders:
		buys, sells := e.book.UserOrders(acct.ID, c.MarketSymbol)
		return &Outcome{Data: command.UserOrdersResult{
			Status:               command.OK,
			UserBuyMarketOrders:  buys,
			UserSellMarketOrders: sells,
		}}, nil
	}
	return nil, fmt.Errorf("%w: %s", command.ErrUnknownCommand, cmd.Kind())
}

func (e *Engine) resolve(token string) (*model.Account, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	acct, err := e.ledger.ResolveToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return acct, nil
}

func (e *Engine) signup(c command.Signup) (*Outcome, error) {
	role := c.Role
	if role == "" {
		role = model.RoleUser
	}
	acct, err := e.ledger.CreateAccount(c.Username, c.Email, c.Password, role)
	if err != nil {
		return nil, err
	}
	return &Outcome{Data: command.UserResult{Status: command.OK, User: acct}}, nil
}

func (e *Engine) login(c command.Login) (*Outcome, error) {
	token, acct, err := e.ledger.Authenticate(c.Email, c.Password)
	if err != nil {
		return nil, err
	}
	return &Outcome{Data: command.LoginResult{Status: command.OK, Token: token, User: acct}}, nil
}

func (e *Engine) createCategory(acct *model.Account, c command.CreateCategory) (*Outcome, error) {
	if !acct.IsAdmin() {
		return nil, ledger.ErrNotAdmin
	}
	cat, err := e.directory.CreateCategory(c.Title, c.Icon, c.Description)
	if err != nil {
		return nil, err
	}
	return &Outcome{Data: command.CategoryResult{Status: command.OK, Category: cat}}, nil
}

func (e *Engine) createMarket(acct *model.Account, c command.CreateMarket) (*Outcome, error) {
	if !acct.IsAdmin() {
		return nil, ledger.ErrNotAdmin
	}
	m, err := e.directory.CreateMarket(directory.NewMarket{
		Symbol:        c.Symbol,
		EndTime:       c.EndTime,
		Description:   c.Description,
		SourceOfTruth: c.SourceOfTruth,
		CategoryTitle: c.CategoryTitle,
		CreatedBy:     acct.ID,
	})
	if err != nil {
		return nil, err
	}
	e.refreshMarketGauge()
	return &Outcome{Data: command.MarketResult{Status: command.OK, Market: m}}, nil
}

func (e *Engine) onramp(acct *model.Account, c command.OnrampINR) (*Outcome, error) {
	if err := e.ledger.Onramp(acct, c.Amount); err != nil {
		return nil, err
	}
	return &Outcome{Data: command.OnrampResult{
		Status: command.OK,
		User:   acct,
		UserID: acct.ID,
		Amount: c.Amount,
	}}, nil
}

// tradableMarket returns the active market for symbol, distinguishing a
// symbol that exists only in a closed or resolved market.
func (e *Engine) tradableMarket(symbol string) (*model.Market, error) {
	m, err := e.directory.ActiveMarket(symbol)
	if err == nil {
		return m, nil
	}
	if _, lookupErr := e.directory.Market(symbol); lookupErr == nil {
		return nil, directory.ErrMarketNotActive
	}
	return nil, err
}

// orderPrice converts a whole-unit limit price to minor units.
func orderPrice(o command.Order) (int64, error) {
	price, ok := model.ToMinor(o.Price)
	if !ok || price <= 0 {
		return 0, book.ErrInvalidOrder
	}
	return price, nil
}

func (e *Engine) buy(acct *model.Account, c command.Buy) (*Outcome, error) {
	m, err := e.tradableMarket(c.Symbol)
	if err != nil {
		return nil, err
	}
	price, err := orderPrice(c.Order)
	if err != nil {
		return nil, err
	}
	exec, err := e.book.PlaceBuy(acct, m, c.StockType, c.Quantity, price)
	if err != nil {
		return nil, err
	}
	recordFills(c.StockType, exec)

	out := &Outcome{Data: command.BuyResult{
		Status:     command.OK,
		BuyOrder:   exec.Order,
		Buyer:      acct,
		TotalValue: model.ToDisplay(exec.Value),
		Matches:    matches(exec),
	}}
	// Resting buys are not part of the visible book, so only fills change it.
	if exec.Filled > 0 {
		out.Events = append(out.Events, e.marketUpdate(m), e.orderbookUpdate(m.Symbol))
	}
	return out, nil
}

func (e *Engine) sell(acct *model.Account, c command.Sell) (*Outcome, error) {
	m, err := e.tradableMarket(c.Symbol)
	if err != nil {
		return nil, err
	}
	price, err := orderPrice(c.Order)
	if err != nil {
		return nil, err
	}
	exec, err := e.book.PlaceSell(acct, m, c.StockType, c.Quantity, price)
	if err != nil {
		return nil, err
	}
	recordFills(c.StockType, exec)

	out := &Outcome{Data: command.SellResult{
		Status:         command.OK,
		SellOrder:      exec.Order,
		Seller:         acct,
		FilledQuantity: exec.Filled,
		TotalValue:     model.ToDisplay(exec.Value),
		Matches:        matches(exec),
	}}
	if exec.Filled > 0 {
		out.Events = append(out.Events, e.marketUpdate(m))
	}
	// Fills consume resting buys, which the visible book does not show.
	if exec.Rested {
		out.Events = append(out.Events, e.orderbookUpdate(m.Symbol))
	}
	return out, nil
}

func (e *Engine) orderbook(c command.GetOrderbook) (*Outcome, error) {
	if _, err := e.directory.Market(c.Symbol); err != nil {
		return nil, err
	}
	return &Outcome{Data: command.OrderbookResult{Status: command.OK, Data: e.book.View(c.Symbol)}}, nil
}

func (e *Engine) mint(acct *model.Account, c command.Mint) (*Outcome, error) {
	if !acct.IsAdmin() {
		return nil, ledger.ErrNotAdmin
	}
	m, err := e.tradableMarket(c.Symbol)
	if err != nil {
		return nil, err
	}
	price, ok := model.ToMinor(c.Price)
	if !ok || price <= 0 {
		return nil, ledger.ErrInvalidAmount
	}
	if err := e.ledger.Mint(acct, m.Symbol, c.Quantity, price); err != nil {
		return nil, err
	}
	return &Outcome{Data: command.MintResult{
		Status:   command.OK,
		MintUser: acct,
		UserID:   acct.ID,
		Quantity: c.Quantity,
		Symbol:   m.Symbol,
	}}, nil
}

func (e *Engine) cancelBuy(acct *model.Account, c command.CancelBuyOrder) (*Outcome, error) {
	o, err := e.book.CancelBuy(acct, c.MarketSymbol, c.OrderID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Data: cancelResult(acct, o)}, nil
}

func (e *Engine) cancelSell(acct *model.Account, c command.CancelSellOrder) (*Outcome, error) {
	o, err := e.book.CancelSell(acct, c.MarketSymbol, c.OrderID)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Data:   cancelResult(acct, o),
		Events: []Broadcast{e.orderbookUpdate(c.MarketSymbol)},
	}, nil
}

func cancelResult(acct *model.Account, o *model.Order) command.CancelResult {
	return command.CancelResult{
		Status:           command.OK,
		CancelledOrderID: o.ID,
		Order:            o,
		User:             acct,
	}
}

func (e *Engine) marketUpdate(m *model.Market) Broadcast {
	return Broadcast{Topic: bus.TopicMarketUpdates, Key: m.Symbol, Event: command.NewMarketUpdate(m)}
}

func (e *Engine) orderbookUpdate(symbol string) Broadcast {
	return Broadcast{Topic: bus.TopicOrderbookUpdates, Key: symbol, Event: command.NewOrderbookUpdate(symbol, e.book.View(symbol))}
}

func matches(exec *book.Execution) []model.Match {
	if exec.Matches == nil {
		return []model.Match{}
	}
	return exec.Matches
}

func recordFills(side model.Side, exec *book.Execution) {
	if exec.Filled == 0 {
		return
	}
	metrics.FillsTotal.WithLabelValues(string(side)).Add(float64(len(exec.Matches)))
	metrics.FilledQuantity.WithLabelValues(string(side)).Add(float64(exec.Filled))
}

func (e *Engine) refreshMarketGauge() {
	for status, n := range e.directory.CountByStatus() {
		metrics.Markets.WithLabelValues(string(status)).Set(float64(n))
	}
}
