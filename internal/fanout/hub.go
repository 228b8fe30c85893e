// Package fanout forwards market and orderbook broadcasts from the bus to
// WebSocket clients subscribed to the affected market symbol.
package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Mishragini/OpiniXchange/internal/bus"
	"github.com/Mishragini/OpiniXchange/internal/metrics"
)

const (
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 64
)

// Outbound is the frame sent to clients.
type Outbound struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// Inbound is a client control frame: type is subscribe or unsubscribe.
type Inbound struct {
	Type         string `json:"type"`
	MarketSymbol string `json:"marketSymbol"`
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	symbols map[string]struct{}
}

type control struct {
	c         *client
	symbol    string
	subscribe bool
}

type query struct {
	symbol string
	reply  chan int
}

// Hub owns every connected client. All client state is touched only by the
// Run goroutine.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	control    chan control
	broadcast  chan bus.Message
	queries    chan query
	done       chan struct{}
	connected  atomic.Int64
	upgrader   websocket.Upgrader
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		control:    make(chan control, 64),
		broadcast:  make(chan bus.Message, 256),
		queries:    make(chan query),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
	}
}

// Run is the hub's event loop. It returns when ctx is done, closing every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.connected.Add(1)
			metrics.WebSocketClients.Inc()
			slog.Info("ws client connected", "total", len(h.clients))

		case c := <-h.unregister:
			h.drop(c)

		case ctl := <-h.control:
			if _, ok := h.clients[ctl.c]; !ok {
				continue
			}
			if ctl.subscribe {
				ctl.c.symbols[ctl.symbol] = struct{}{}
			} else {
				delete(ctl.c.symbols, ctl.symbol)
			}

		case msg := <-h.broadcast:
			h.deliver(msg)

		case q := <-h.queries:
			n := 0
			for c := range h.clients {
				if _, ok := c.symbols[q.symbol]; ok {
					n++
				}
			}
			q.reply <- n
		}
	}
}

func (h *Hub) deliver(msg bus.Message) {
	frame, err := json.Marshal(Outbound{Topic: msg.Topic, Data: msg.Value})
	if err != nil {
		slog.Warn("dropping unencodable broadcast", "topic", msg.Topic, "err", err)
		return
	}
	for c := range h.clients {
		if _, ok := c.symbols[msg.Key]; !ok {
			continue
		}
		select {
		case c.send <- frame:
		default:
			// Slow client; drop it rather than stall every other client.
			slog.Warn("ws client too slow, disconnecting")
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.connected.Add(-1)
	metrics.WebSocketClients.Dec()
}

// Consume feeds messages from sub into the hub until the subscription
// closes or ctx is done.
func (h *Hub) Consume(ctx context.Context, sub bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			if msg.Key == "" {
				continue
			}
			select {
			case h.broadcast <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

// Subscribers reports how many clients follow symbol.
func (h *Hub) Subscribers(symbol string) int {
	reply := make(chan int, 1)
	select {
	case h.queries <- query{symbol: symbol, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// HandleWS upgrades the request and serves one client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), symbols: make(map[string]struct{})}
	if !h.send(h.register, c) {
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// send hands c to the Run loop, reporting false once the hub has stopped.
func (h *Hub) send(ch chan *client, c *client) bool {
	select {
	case ch <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) sendControl(ctl control) bool {
	select {
	case h.control <- ctl:
		return true
	case <-h.done:
		return false
	}
}

// readPump applies control frames and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer h.send(h.unregister, c)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil || in.MarketSymbol == "" {
			slog.Debug("ignoring ws frame", "err", err)
			continue
		}
		var ok bool
		switch in.Type {
		case "subscribe":
			ok = h.sendControl(control{c: c, symbol: in.MarketSymbol, subscribe: true})
		case "unsubscribe":
			ok = h.sendControl(control{c: c, symbol: in.MarketSymbol})
		default:
			ok = true
		}
		if !ok {
			return
		}
	}
}

// writePump sends queued frames and keeps the connection alive with pings.
// It owns all writes to the connection.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
