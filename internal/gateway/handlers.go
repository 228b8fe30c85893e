package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Mishragini/OpiniXchange/internal/command"
	"github.com/Mishragini/OpiniXchange/internal/model"
)

type signupRequest struct {
	Username string     `json:"username" validate:"required"`
	Email    string     `json:"email" validate:"required,email"`
	Password string     `json:"password" validate:"min=6"`
	Role     model.Role `json:"role" validate:"oneof=ADMIN USER"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=6"`
}

type onrampRequest struct {
	Amount int64 `json:"amount" validate:"gt=0"`
}

type orderRequest struct {
	Symbol    string          `json:"symbol" validate:"required"`
	Quantity  int64           `json:"quantity" validate:"gt=0"`
	Price     decimal.Decimal `json:"price" validate:"gt=0"`
	StockType model.Side      `json:"stockType" validate:"oneof=YES NO"`
}

type cancelRequest struct {
	OrderID      string `json:"orderId" validate:"required"`
	MarketSymbol string `json:"marketSymbol" validate:"required"`
}

type categoryRequest struct {
	Title       string `json:"title" validate:"required"`
	Icon        string `json:"icon" validate:"required"`
	Description string `json:"description" validate:"required"`
}

type marketRequest struct {
	Symbol        string `json:"symbol" validate:"required"`
	Description   string `json:"description" validate:"required"`
	EndTime       string `json:"endTime" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	SourceOfTruth string `json:"sourceOfTruth" validate:"required"`
	CategoryTitle string `json:"categoryTitle" validate:"required"`
}

type mintRequest struct {
	Symbol   string          `json:"symbol" validate:"required"`
	Quantity int64           `json:"quantity" validate:"gt=0"`
	Price    decimal.Decimal `json:"price" validate:"gt=0"`
}

// Signup handles POST /signup.
func (s *Server) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decode(w, r, &req) {
		return
	}
	s.forward(w, r, command.KindSignup, command.Signup(req))
}

// Login handles POST /login. A successful login also sets the token cookie.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	resp, ok := s.call(w, r, command.KindLogin, command.Login(req))
	if !ok {
		return
	}

	var parsed struct {
		Data struct {
			Success bool   `json:"success"`
			Token   string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp, &parsed); err == nil && parsed.Data.Success && parsed.Data.Token != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     TokenCookie,
			Value:    parsed.Data.Token,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.secureCookie,
			SameSite: http.SameSiteLaxMode,
		})
	}
	relay(w, resp)
}

// Me handles GET /me.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	s.forward(w, r, command.KindGetMe, command.GetMe{Auth: auth(r)})
}

// ListMarkets handles GET /markets.
func (s *Server) ListMarkets(w http.ResponseWriter, r *http.Request) {
	s.forward(w, r, command.KindGetAllMarkets, command.GetAllMarkets{})
}

// ListCategories handles GET /categories.
func (s *Server) ListCategories(w http.ResponseWriter, r *http.Request) {
	s.forward(w, r, command.KindGetAllCategories, command.GetAllCategories{})
}

// GetMarket handles GET /market/{marketSymbol}.
func (s *Server) GetMarket(w http.ResponseWriter, r *http.Request) {
	s.forward(w, r, command.KindGetMarket, command.GetMarket{MarketSymbol: chi.URLParam(r, "marketSymbol")})
}

// Orderbook handles GET /orderbook/{symbol}.
func (s *Server) Orderbook(w http.ResponseWriter, r *http.Request) {
	s.forward(w, r, command.KindGetOrderbook, command.GetOrderbook{Auth: auth(r), Symbol: chi.URLParam(r, "symbol")})
}

// Onramp handles POST /user/onramp/inr.
func (s *Server) Onramp(w http.ResponseWriter, r *http.Request) {
	var req onrampRequest
	if !decode(w, r, &req) {
		return
	}
	s.forward(w, r, command.KindOnrampINR, command.OnrampINR{Auth: auth(r), Amount: req.Amount})
}

func (req orderRequest) command(r *http.Request) command.Order {
	return command.Order{
		Auth:      auth(r),
		Symbol:    req.Symbol,
		Quantity:  req.Quantity,
		Price:     req.Price,
		StockType: req.StockType,
	}
}

// Buy handles POST /user/buy.
func (s *Server) Buy(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !decode(w, r, &req) {
		return
	}
	s.forward(w, r, command.KindBuy, command.Buy{Order: req.command(r)})
}

// Sell handles POST /user/sell.
func (s *Server) Sell(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !decode(w, r, &req) {
		return
	}
	s.forward(w, r, command.KindSell, command.Sell{Order: req.command(r)})
}

// CancelBuy handles POST /user/cancel/buy.
func (s *Server) CancelBuy(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decode(w, r, &req) {
		return
	}
	s.forward(w, r, command.KindCancelBuyOrder, command.CancelBuyOrder{Cancel: req.command(r)})
}

// CancelSell handles POST /user/cancel/sell.
func (s *Server) CancelSell(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decode(w, r, &req) {
		return
	}
	s.forward(w, r, command.KindCancelSellOrder, command.CancelSellOrder{Cancel: req.command(r)})
}

func (req cancelRequest) command(r *http.Request) command.Cancel {
	return command.Cancel{Auth: auth(r), OrderID: req.OrderID, MarketSymbol: req.MarketSymbol}
}

// UserOrders handles GET /user/orders/{marketSymbol}.
func (s *Server) UserOrders(w http.ResponseWriter, r *http.Request) {
	s.forward(w, r, command.KindGetUserMarketOrders, command.GetUserMarketOrders{
		Auth:         auth(r),
		MarketSymbol: chi.URLParam(r, "marketSymbol"),
	})
}

// CreateCategory handles POST /admin/create/category.
func (s *Server) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !decode(w, r, &req) {
		return
	}
	s.forward(w, r, command.KindCreateCategory, command.CreateCategory{
		Auth:        auth(r),
		Title:       req.Title,
		Icon:        req.Icon,
		Description: req.Description,
	})
}

// CreateMarket handles POST /admin/create/market.
func (s *Server) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req marketRequest
	if !decode(w, r, &req) {
		return
	}
	// The datetime rule already accepted this layout.
	endTime, _ := time.Parse(time.RFC3339, req.EndTime)
	s.forward(w, r, command.KindCreateMarket, command.CreateMarket{
		Auth:          auth(r),
		Symbol:        req.Symbol,
		EndTime:       endTime,
		Description:   req.Description,
		SourceOfTruth: req.SourceOfTruth,
		CategoryTitle: req.CategoryTitle,
	})
}

// Mint handles POST /admin/mint.
func (s *Server) Mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if !decode(w, r, &req) {
		return
	}
	s.forward(w, r, command.KindMint, command.Mint{
		Auth:     auth(r),
		Symbol:   req.Symbol,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
}

func auth(r *http.Request) command.Auth {
	return command.Auth{Token: tokenFrom(r)}
}
