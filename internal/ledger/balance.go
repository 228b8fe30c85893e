package ledger

import (
	"errors"

	"github.com/Mishragini/OpiniXchange/internal/model"
)

// ErrInsufficientStock is returned when an account lacks unlocked quantity.
var ErrInsufficientStock = errors.New("insufficient stock to sell")

// Reserve moves amount minor units from available to locked.
func (l *Ledger) Reserve(acct *model.Account, amount int64) error {
	if acct.Balance.INR.Available < amount {
		return ErrInsufficientFunds
	}
	acct.Balance.INR.Available -= amount
	acct.Balance.INR.Locked += amount
	return nil
}

// Release moves amount minor units from locked back to available.
func (l *Ledger) Release(acct *model.Account, amount int64) {
	acct.Balance.INR.Locked -= amount
	acct.Balance.INR.Available += amount
}

// Position returns the account's position on one side of symbol, opening
// an empty one if needed.
func (l *Ledger) Position(acct *model.Account, symbol string, side model.Side) *model.Position {
	if acct.Balance.Stocks == nil {
		acct.Balance.Stocks = make(map[string]*model.MarketPosition)
	}
	mp, ok := acct.Balance.Stocks[symbol]
	if !ok {
		mp = &model.MarketPosition{}
		acct.Balance.Stocks[symbol] = mp
	}
	if side == model.SideYes {
		if mp.Yes == nil {
			mp.Yes = &model.Position{}
		}
		return mp.Yes
	}
	if mp.No == nil {
		mp.No = &model.Position{}
	}
	return mp.No
}

// LockStock reserves quantity of a position for a sell order.
func (l *Ledger) LockStock(acct *model.Account, symbol string, side model.Side, quantity int64) error {
	pos := l.Position(acct, symbol, side)
	if pos.Quantity < quantity {
		return ErrInsufficientStock
	}
	pos.Quantity -= quantity
	pos.Locked += quantity
	return nil
}

// UnlockStock returns quantity of locked stock to the free position.
func (l *Ledger) UnlockStock(acct *model.Account, symbol string, side model.Side, quantity int64) {
	pos := l.Position(acct, symbol, side)
	pos.Locked -= quantity
	pos.Quantity += quantity
}

// Settle executes one fill: value moves from the buyer's locked cash to the
// seller's available cash, and quantity moves from the seller's locked
// stock to the buyer's position.
func (l *Ledger) Settle(buyer, seller *model.Account, symbol string, side model.Side, quantity, value int64) {
	buyer.Balance.INR.Locked -= value
	seller.Balance.INR.Available += value
	l.Position(buyer, symbol, side).Quantity += quantity
	l.Position(seller, symbol, side).Locked -= quantity
}
