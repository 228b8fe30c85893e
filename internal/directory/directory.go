// Package directory owns market and category metadata.
package directory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Mishragini/OpiniXchange/internal/model"
)

var (
	ErrCategoryExists   = errors.New("category already exists")
	ErrCategoryNotFound = errors.New("category not found")
	ErrMarketNotFound   = errors.New("market not found")
	ErrMarketNotActive  = errors.New("market is not active")
)

// DefaultLastPrice seeds both last prices of a new market, in whole units.
var DefaultLastPrice = decimal.NewFromInt(5)

// NewMarket carries the admin-supplied fields of a market.
type NewMarket struct {
	Symbol        string
	EndTime       time.Time
	Description   string
	SourceOfTruth string
	CategoryTitle string
	CreatedBy     string
}

// Directory keeps markets and categories in creation order. Symbols are
// not unique; lookups by symbol return the earliest match.
type Directory struct {
	markets       []*model.Market
	marketsByID   map[string]*model.Market
	bySymbol      map[string][]*model.Market
	categories    []*model.Category
	categoryByID  map[string]*model.Category
	categoryTitle map[string]*model.Category
	now           func() time.Time
}

// New creates an empty directory.
func New() *Directory {
	return &Directory{
		marketsByID:   make(map[string]*model.Market),
		bySymbol:      make(map[string][]*model.Market),
		categoryByID:  make(map[string]*model.Category),
		categoryTitle: make(map[string]*model.Category),
		now:           time.Now,
	}
}

// CreateCategory adds a category. Titles are unique, case-sensitive.
func (d *Directory) CreateCategory(title, icon, description string) (*model.Category, error) {
	if _, ok := d.categoryTitle[title]; ok {
		return nil, ErrCategoryExists
	}
	c := &model.Category{
		ID:          uuid.New().String(),
		Title:       title,
		Icon:        icon,
		Description: description,
	}
	d.categories = append(d.categories, c)
	d.categoryByID[c.ID] = c
	d.categoryTitle[title] = c
	return c, nil
}

// CreateMarket adds an ACTIVE market under an existing category.
func (d *Directory) CreateMarket(nm NewMarket) (*model.Market, error) {
	c, ok := d.categoryTitle[nm.CategoryTitle]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	m := &model.Market{
		ID:            uuid.New().String(),
		Symbol:        nm.Symbol,
		Description:   nm.Description,
		EndTime:       nm.EndTime,
		SourceOfTruth: nm.SourceOfTruth,
		CategoryID:    c.ID,
		CategoryTitle: c.Title,
		Status:        model.MarketActive,
		LastYesPrice:  DefaultLastPrice,
		LastNoPrice:   DefaultLastPrice,
		CreatedBy:     nm.CreatedBy,
		Timestamp:     d.now().UTC(),
	}
	d.markets = append(d.markets, m)
	d.marketsByID[m.ID] = m
	d.bySymbol[m.Symbol] = append(d.bySymbol[m.Symbol], m)
	return m, nil
}

// Market returns the first market created with symbol, in any status.
func (d *Directory) Market(symbol string) (*model.Market, error) {
	ms := d.bySymbol[symbol]
	if len(ms) == 0 {
		return nil, ErrMarketNotFound
	}
	return ms[0], nil
}

// ActiveMarket returns the first ACTIVE market with symbol.
func (d *Directory) ActiveMarket(symbol string) (*model.Market, error) {
	for _, m := range d.bySymbol[symbol] {
		if m.Status == model.MarketActive {
			return m, nil
		}
	}
	return nil, ErrMarketNotFound
}

// Category returns the category with id.
func (d *Directory) Category(id string) (*model.Category, bool) {
	c, ok := d.categoryByID[id]
	return c, ok
}

// Markets lists every market in creation order.
func (d *Directory) Markets() []*model.Market {
	out := make([]*model.Market, len(d.markets))
	copy(out, d.markets)
	return out
}

// Categories lists every category in creation order.
func (d *Directory) Categories() []*model.Category {
	out := make([]*model.Category, len(d.categories))
	copy(out, d.categories)
	return out
}

// CountByStatus tallies markets per status.
func (d *Directory) CountByStatus() map[model.MarketStatus]int {
	counts := map[model.MarketStatus]int{
		model.MarketActive:   0,
		model.MarketClosed:   0,
		model.MarketResolved: 0,
	}
	for _, m := range d.markets {
		counts[m.Status]++
	}
	return counts
}

// RecordFills applies executed fills to a market: the side's last price
// becomes lastPrice (whole units) and filled accumulates into total volume.
func RecordFills(m *model.Market, side model.Side, lastPrice decimal.Decimal, filled int64) {
	if side == model.SideYes {
		m.LastYesPrice = lastPrice
	} else {
		m.LastNoPrice = lastPrice
	}
	m.TotalVolume += filled
}
