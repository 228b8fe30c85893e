// Package ledger owns trader accounts: credentials, role, cash balance and
// per-market stock positions.
//
// The ledger is not safe for concurrent use. The engine's dispatcher is its
// only caller and runs one command at a time.
package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Mishragini/OpiniXchange/internal/auth"
	"github.com/Mishragini/OpiniXchange/internal/model"
)

var (
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrUnknownAccount    = errors.New("user does not exist, you may need to sign up first")
	ErrBadCredential     = errors.New("incorrect password")
	ErrInvalidToken      = errors.New("invalid token")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrAmountTooLarge    = fmt.Errorf("%w and within the supported range", ErrInvalidAmount)
	ErrNotAdmin          = errors.New("only admins are permitted to perform this action")
)

// Ledger is the account arena with secondary indices for the uniqueness
// checks on username and email.
type Ledger struct {
	hasher auth.PasswordHasher
	tokens auth.TokenService

	accounts   map[string]*model.Account
	byUsername map[string]string
	byEmail    map[string]string
}

// New creates an empty ledger.
func New(hasher auth.PasswordHasher, tokens auth.TokenService) *Ledger {
	return &Ledger{
		hasher:     hasher,
		tokens:     tokens,
		accounts:   make(map[string]*model.Account),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

// CreateAccount registers a new account with zero cash and no positions.
// Username and email are matched exactly, case-sensitive.
func (l *Ledger) CreateAccount(username, email, password string, role model.Role) (*model.Account, error) {
	if _, ok := l.byUsername[username]; ok {
		return nil, ErrDuplicateUsername
	}
	if _, ok := l.byEmail[email]; ok {
		return nil, ErrDuplicateEmail
	}

	hash, err := l.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	acct := &model.Account{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Balance: model.Balance{
			Stocks: make(map[string]*model.MarketPosition),
		},
	}
	l.accounts[acct.ID] = acct
	l.byUsername[username] = acct.ID
	l.byEmail[email] = acct.ID
	return acct, nil
}

// Authenticate verifies email and password and issues a token.
func (l *Ledger) Authenticate(email, password string) (string, *model.Account, error) {
	id, ok := l.byEmail[email]
	if !ok {
		return "", nil, ErrUnknownAccount
	}
	acct := l.accounts[id]
	if err := l.hasher.Verify(acct.PasswordHash, password); err != nil {
		return "", nil, ErrBadCredential
	}
	token, err := l.tokens.Issue(acct.ID)
	if err != nil {
		return "", nil, err
	}
	return token, acct, nil
}

// ResolveToken maps a token to its live account.
func (l *Ledger) ResolveToken(token string) (*model.Account, error) {
	id, err := l.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	acct, ok := l.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %s not found", ErrInvalidToken, id)
	}
	return acct, nil
}

// Get returns the account with id.
func (l *Ledger) Get(id string) (*model.Account, bool) {
	acct, ok := l.accounts[id]
	return acct, ok
}

// Onramp credits amount whole units to the account's available cash.
func (l *Ledger) Onramp(acct *model.Account, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	credit, ok := model.MulChecked(amount, model.MinorPerUnit)
	if !ok {
		return ErrAmountTooLarge
	}
	// Available plus locked must stay representable for later releases.
	total, ok := model.AddChecked(acct.Balance.INR.Available, acct.Balance.INR.Locked)
	if !ok {
		return ErrAmountTooLarge
	}
	if _, ok := model.AddChecked(total, credit); !ok {
		return ErrAmountTooLarge
	}
	acct.Balance.INR.Available += credit
	return nil
}

// Mint credits quantity YES and quantity NO of symbol to an admin account,
// collateralised by 2 × quantity × price which is locked and then released.
// The caller checks the market is ACTIVE.
func (l *Ledger) Mint(acct *model.Account, symbol string, quantity, price int64) error {
	if !acct.IsAdmin() {
		return ErrNotAdmin
	}
	if quantity <= 0 || price <= 0 {
		return ErrInvalidAmount
	}
	value, ok := model.MulChecked(quantity, price)
	if !ok {
		return ErrAmountTooLarge
	}
	cost, ok := model.MulChecked(value, 2)
	if !ok {
		return ErrAmountTooLarge
	}
	if !fits(acct, symbol, model.SideYes, quantity) || !fits(acct, symbol, model.SideNo, quantity) {
		return ErrAmountTooLarge
	}
	if err := l.Reserve(acct, cost); err != nil {
		return err
	}
	l.Position(acct, symbol, model.SideYes).Quantity += quantity
	l.Position(acct, symbol, model.SideNo).Quantity += quantity
	l.Release(acct, cost)
	return nil
}

// fits reports whether quantity more stock of one side can be credited to
// acct without opening the position.
func fits(acct *model.Account, symbol string, side model.Side, quantity int64) bool {
	mp := acct.Balance.Stocks[symbol]
	if mp == nil || mp.Side(side) == nil {
		return true
	}
	p := mp.Side(side)
	held, ok := model.AddChecked(p.Quantity, p.Locked)
	if !ok {
		return false
	}
	_, ok = model.AddChecked(held, quantity)
	return ok
}
