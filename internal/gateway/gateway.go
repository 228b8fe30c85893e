// Package gateway is the HTTP front of the exchange. Each handler validates
// its input, forwards one command to the engine over the bus and writes the
// engine's response envelope back verbatim.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Mishragini/OpiniXchange/internal/bus"
	"github.com/Mishragini/OpiniXchange/internal/command"
	"github.com/Mishragini/OpiniXchange/internal/metrics"
)

// TokenCookie is the cookie login sets and authenticated routes read.
const TokenCookie = "authToken"

// Caller sends a command and waits for its response.
type Caller interface {
	Call(ctx context.Context, kind command.Kind, payload any) (json.RawMessage, error)
}

// Server holds the gateway handlers.
type Server struct {
	rpc Caller
	log *slog.Logger
	// secureCookie marks the token cookie Secure.
	secureCookie bool
}

// New creates a gateway forwarding to rpc.
func New(rpc Caller) *Server {
	return &Server{rpc: rpc, log: slog.Default().With("component", "gateway")}
}

// WithSecureCookie sets the Secure attribute on the token cookie.
func (s *Server) WithSecureCookie(secure bool) *Server {
	s.secureCookie = secure
	return s
}

// Routes builds the gateway router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"gateway"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Post("/signup", s.Signup)
	r.Post("/login", s.Login)
	r.Get("/markets", s.ListMarkets)
	r.Get("/categories", s.ListCategories)
	r.Get("/market/{marketSymbol}", s.GetMarket)

	r.Group(func(r chi.Router) {
		r.Use(requireToken)
		r.Get("/me", s.Me)
		r.Get("/orderbook/{symbol}", s.Orderbook)

		r.Route("/user", func(r chi.Router) {
			r.Post("/onramp/inr", s.Onramp)
			r.Post("/buy", s.Buy)
			r.Post("/sell", s.Sell)
			r.Post("/cancel/buy", s.CancelBuy)
			r.Post("/cancel/sell", s.CancelSell)
			r.Get("/orders/{marketSymbol}", s.UserOrders)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/create/category", s.CreateCategory)
			r.Post("/create/market", s.CreateMarket)
			r.Post("/mint", s.Mint)
		})
	})
	return r
}

type tokenKey struct{}

// requireToken takes the bearer token from the auth cookie or the
// Authorization header and rejects requests without one.
func requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if c, err := r.Cookie(TokenCookie); err == nil {
			token = c.Value
		}
		if token == "" {
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
			}
		}
		if token == "" {
			writeMessage(w, "Unauthorized", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenKey{}, token)))
	})
}

func tokenFrom(r *http.Request) string {
	t, _ := r.Context().Value(tokenKey{}).(string)
	return t
}

// call sends one command. On transport failure it writes the error reply
// and reports false.
func (s *Server) call(w http.ResponseWriter, r *http.Request, kind command.Kind, payload any) (json.RawMessage, bool) {
	start := time.Now()
	resp, err := s.rpc.Call(r.Context(), kind, payload)
	if err != nil {
		status := http.StatusBadGateway
		msg := "engine unavailable"
		if errors.Is(err, bus.ErrTimeout) {
			metrics.RPCTimeouts.WithLabelValues(string(kind)).Inc()
			status = http.StatusGatewayTimeout
			msg = "engine did not respond in time"
		}
		s.log.Warn("engine call failed", "type", kind, "err", err, "duration", time.Since(start))
		writeMessage(w, msg, status)
		return nil, false
	}
	return resp, true
}

// forward sends one command and relays the engine's envelope verbatim.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, kind command.Kind, payload any) {
	if resp, ok := s.call(w, r, kind, payload); ok {
		relay(w, resp)
	}
}

func relay(w http.ResponseWriter, resp json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

// decode reads the JSON body into dst and applies its validate tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, "Invalid inputs", http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeMessage(w, "Invalid inputs", http.StatusBadRequest)
		return false
	}
	return true
}

func writeMessage(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
