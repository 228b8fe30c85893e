package directory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mishragini/OpiniXchange/internal/model"
)

func newMarket(symbol, category string) NewMarket {
	return NewMarket{
		Symbol:        symbol,
		EndTime:       time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		Description:   "Will it rain?",
		SourceOfTruth: "imd.gov.in",
		CategoryTitle: category,
		CreatedBy:     "admin-1",
	}
}

func TestCreateCategory_Duplicate(t *testing.T) {
	d := New()
	_, err := d.CreateCategory("Weather", "cloud", "weather markets")
	require.NoError(t, err)

	_, err = d.CreateCategory("Weather", "sun", "again")
	assert.ErrorIs(t, err, ErrCategoryExists)
	assert.Len(t, d.Categories(), 1)
}

func TestCreateMarket_CategoryNotFound(t *testing.T) {
	d := New()
	_, err := d.CreateMarket(newMarket("RAIN", "Sports"))
	require.ErrorIs(t, err, ErrCategoryNotFound)
	assert.Empty(t, d.Markets(), "no market persisted")

	_, err = d.Market("RAIN")
	assert.ErrorIs(t, err, ErrMarketNotFound)
}

func TestCreateMarket_Defaults(t *testing.T) {
	d := New()
	c, err := d.CreateCategory("Weather", "cloud", "weather markets")
	require.NoError(t, err)

	m, err := d.CreateMarket(newMarket("RAIN", "Weather"))
	require.NoError(t, err)
	assert.Equal(t, model.MarketActive, m.Status)
	assert.True(t, m.LastYesPrice.Equal(DefaultLastPrice))
	assert.True(t, m.LastNoPrice.Equal(DefaultLastPrice))
	assert.Zero(t, m.TotalVolume)
	assert.Equal(t, c.ID, m.CategoryID)
	assert.Equal(t, "Weather", m.CategoryTitle)
}

func TestDuplicateSymbols_FirstWins(t *testing.T) {
	d := New()
	d.CreateCategory("Weather", "cloud", "weather markets")
	first, _ := d.CreateMarket(newMarket("RAIN", "Weather"))
	second, _ := d.CreateMarket(newMarket("RAIN", "Weather"))

	got, err := d.Market("RAIN")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	first.Status = model.MarketClosed
	active, err := d.ActiveMarket("RAIN")
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID, "second market is the active one")

	second.Status = model.MarketResolved
	_, err = d.ActiveMarket("RAIN")
	assert.ErrorIs(t, err, ErrMarketNotFound)

	counts := d.CountByStatus()
	assert.Equal(t, 1, counts[model.MarketClosed])
	assert.Equal(t, 1, counts[model.MarketResolved])
	assert.Zero(t, counts[model.MarketActive])
}

func TestRecordFills(t *testing.T) {
	m := &model.Market{LastYesPrice: DefaultLastPrice, LastNoPrice: DefaultLastPrice}

	RecordFills(m, model.SideYes, decimal.RequireFromString("2.5"), 4)
	RecordFills(m, model.SideNo, decimal.NewFromInt(7), 3)

	assert.True(t, m.LastYesPrice.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, m.LastNoPrice.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, int64(7), m.TotalVolume)
}
