package ledger_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Mishragini/OpiniXchange/internal/auth"
	"github.com/Mishragini/OpiniXchange/internal/ledger"
	"github.com/Mishragini/OpiniXchange/internal/model"
)

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	return ledger.New(auth.NewBcryptHasher(bcrypt.MinCost), auth.NewJWTService("test", 0))
}

func TestCreateAccount(t *testing.T) {
	l := newLedger(t)

	acct, err := l.CreateAccount("alice", "alice@example.com", "secret1", model.RoleUser)
	require.NoError(t, err)
	assert.NotEmpty(t, acct.ID)
	assert.NotEqual(t, "secret1", acct.PasswordHash)
	assert.Equal(t, model.Cash{}, acct.Balance.INR)
	assert.Empty(t, acct.Balance.Stocks)
}

func TestCreateAccount_Duplicates(t *testing.T) {
	l := newLedger(t)
	_, err := l.CreateAccount("alice", "alice@example.com", "secret1", model.RoleUser)
	require.NoError(t, err)

	_, err = l.CreateAccount("alice", "other@example.com", "secret1", model.RoleUser)
	assert.ErrorIs(t, err, ledger.ErrDuplicateUsername)

	_, err = l.CreateAccount("bob", "alice@example.com", "secret1", model.RoleUser)
	assert.ErrorIs(t, err, ledger.ErrDuplicateEmail)

	// Matching is case-sensitive.
	_, err = l.CreateAccount("Alice", "Alice@example.com", "secret1", model.RoleUser)
	assert.NoError(t, err)
}

func TestAuthenticate(t *testing.T) {
	l := newLedger(t)
	created, err := l.CreateAccount("alice", "alice@example.com", "secret1", model.RoleUser)
	require.NoError(t, err)

	_, _, err = l.Authenticate("nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ledger.ErrUnknownAccount)

	_, _, err = l.Authenticate("alice@example.com", "wrong-one")
	assert.ErrorIs(t, err, ledger.ErrBadCredential)

	token, acct, err := l.Authenticate("alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, acct.ID)

	resolved, err := l.ResolveToken(token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, resolved.ID)
}

func TestResolveToken_UnknownAccount(t *testing.T) {
	tokens := auth.NewJWTService("test", 0)
	l := ledger.New(auth.NewBcryptHasher(bcrypt.MinCost), tokens)

	token, err := tokens.Issue("ghost")
	require.NoError(t, err)

	_, err = l.ResolveToken(token)
	assert.ErrorIs(t, err, ledger.ErrInvalidToken)

	_, err = l.ResolveToken("garbage")
	assert.ErrorIs(t, err, ledger.ErrInvalidToken)
}

func TestOnramp(t *testing.T) {
	l := newLedger(t)
	acct, _ := l.CreateAccount("alice", "alice@example.com", "secret1", model.RoleUser)

	require.NoError(t, l.Onramp(acct, 100))
	assert.Equal(t, int64(10000), acct.Balance.INR.Available)

	assert.ErrorIs(t, l.Onramp(acct, 0), ledger.ErrInvalidAmount)
	assert.ErrorIs(t, l.Onramp(acct, -5), ledger.ErrInvalidAmount)
	assert.Equal(t, int64(10000), acct.Balance.INR.Available)
}

func TestOnramp_RejectsOverflow(t *testing.T) {
	tests := []struct {
		name   string
		start  model.Cash
		amount int64
	}{
		{"credit overflows", model.Cash{}, math.MaxInt64/model.MinorPerUnit + 1},
		{"max int64", model.Cash{}, math.MaxInt64},
		{"balance overflows", model.Cash{Available: math.MaxInt64 - 50}, 1},
		{"locked counts toward total", model.Cash{Available: 10, Locked: math.MaxInt64 - 60}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLedger(t)
			acct, _ := l.CreateAccount("alice", "alice@example.com", "secret1", model.RoleUser)
			acct.Balance.INR = tt.start

			err := l.Onramp(acct, tt.amount)
			assert.ErrorIs(t, err, ledger.ErrAmountTooLarge)
			assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
			assert.Equal(t, tt.start, acct.Balance.INR, "balance untouched")
		})
	}

	l := newLedger(t)
	acct, _ := l.CreateAccount("bob", "bob@example.com", "secret1", model.RoleUser)
	require.NoError(t, l.Onramp(acct, math.MaxInt64/model.MinorPerUnit))
	assert.Positive(t, acct.Balance.INR.Available)
}

func TestMint_NetZeroCash(t *testing.T) {
	l := newLedger(t)
	admin, _ := l.CreateAccount("root", "root@example.com", "secret1", model.RoleAdmin)
	admin.Balance.INR.Available = 3000

	require.NoError(t, l.Mint(admin, "RAIN", 5, 300))

	assert.Equal(t, model.Cash{Available: 3000, Locked: 0}, admin.Balance.INR)
	assert.Equal(t, int64(5), admin.Balance.Stocks["RAIN"].Yes.Quantity)
	assert.Equal(t, int64(5), admin.Balance.Stocks["RAIN"].No.Quantity)
}

func TestMint_Rejections(t *testing.T) {
	l := newLedger(t)
	admin, _ := l.CreateAccount("root", "root@example.com", "secret1", model.RoleAdmin)
	user, _ := l.CreateAccount("bob", "bob@example.com", "secret1", model.RoleUser)
	admin.Balance.INR.Available = 2999
	user.Balance.INR.Available = 1_000_000

	assert.ErrorIs(t, l.Mint(user, "RAIN", 5, 300), ledger.ErrNotAdmin)
	assert.ErrorIs(t, l.Mint(admin, "RAIN", 5, 300), ledger.ErrInsufficientFunds)
	assert.Equal(t, model.Cash{Available: 2999}, admin.Balance.INR)
	assert.Nil(t, admin.Balance.Stocks["RAIN"])
}

func TestMint_RejectsOverflow(t *testing.T) {
	tests := []struct {
		name     string
		quantity int64
		price    int64
		held     int64
	}{
		{"value overflows", math.MaxInt64/100 + 1, 100, 0},
		{"collateral doubling overflows", math.MaxInt64/200 + 1, 100, 0},
		{"position overflows", 1, 1, math.MaxInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLedger(t)
			admin, _ := l.CreateAccount("root", "root@example.com", "secret1", model.RoleAdmin)
			admin.Balance.INR.Available = 1000
			if tt.held > 0 {
				l.Position(admin, "RAIN", model.SideNo).Quantity = tt.held
			}

			assert.ErrorIs(t, l.Mint(admin, "RAIN", tt.quantity, tt.price), ledger.ErrAmountTooLarge)
			assert.Equal(t, model.Cash{Available: 1000}, admin.Balance.INR)
			if mp := admin.Balance.Stocks["RAIN"]; mp != nil {
				assert.Nil(t, mp.Yes, "no YES credited")
			}
		})
	}
}

func TestLockUnlockStock(t *testing.T) {
	l := newLedger(t)
	acct, _ := l.CreateAccount("alice", "alice@example.com", "secret1", model.RoleUser)
	l.Position(acct, "RAIN", model.SideYes).Quantity = 10

	assert.ErrorIs(t, l.LockStock(acct, "RAIN", model.SideYes, 11), ledger.ErrInsufficientStock)
	assert.ErrorIs(t, l.LockStock(acct, "RAIN", model.SideNo, 1), ledger.ErrInsufficientStock)

	require.NoError(t, l.LockStock(acct, "RAIN", model.SideYes, 4))
	assert.Equal(t, model.Position{Quantity: 6, Locked: 4}, *acct.Balance.Stocks["RAIN"].Yes)

	l.UnlockStock(acct, "RAIN", model.SideYes, 4)
	assert.Equal(t, model.Position{Quantity: 10}, *acct.Balance.Stocks["RAIN"].Yes)
}

func TestSettle_ConservesCashAndStock(t *testing.T) {
	l := newLedger(t)
	buyer, _ := l.CreateAccount("b", "b@example.com", "secret1", model.RoleUser)
	seller, _ := l.CreateAccount("s", "s@example.com", "secret1", model.RoleUser)
	buyer.Balance.INR = model.Cash{Available: 0, Locked: 2000}
	*l.Position(seller, "RAIN", model.SideYes) = model.Position{Quantity: 0, Locked: 10}

	before := buyer.Balance.INR.Available + buyer.Balance.INR.Locked + seller.Balance.INR.Available + seller.Balance.INR.Locked
	l.Settle(buyer, seller, "RAIN", model.SideYes, 10, 2000)
	after := buyer.Balance.INR.Available + buyer.Balance.INR.Locked + seller.Balance.INR.Available + seller.Balance.INR.Locked

	assert.Equal(t, before, after)
	assert.Equal(t, int64(0), buyer.Balance.INR.Locked)
	assert.Equal(t, int64(2000), seller.Balance.INR.Available)
	assert.Equal(t, int64(10), buyer.Balance.Stocks["RAIN"].Yes.Quantity)
	assert.Nil(t, buyer.Balance.Stocks["RAIN"].No)
	assert.Equal(t, int64(0), seller.Balance.Stocks["RAIN"].Yes.Locked)
}
