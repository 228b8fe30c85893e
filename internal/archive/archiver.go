package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Mishragini/OpiniXchange/internal/bus"
	"github.com/Mishragini/OpiniXchange/internal/command"
	"github.com/Mishragini/OpiniXchange/internal/metrics"
	"github.com/Mishragini/OpiniXchange/internal/model"
)

// Archiver replays engine responses into a Sink.
type Archiver struct {
	sink Sink
	log  *slog.Logger
}

// New creates an archiver writing to sink.
func New(sink Sink) *Archiver {
	return &Archiver{sink: sink, log: slog.Default().With("component", "archiver")}
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Run applies every message from sub until it closes or ctx is done. Sink
// failures are logged and counted; the next response still applies.
func (a *Archiver) Run(ctx context.Context, sub bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			if err := a.Apply(ctx, msg.Value); err != nil {
				a.log.Warn("archive failed", "correlation_id", msg.Key, "err", err)
			}
		}
	}
}

// Apply mirrors one response envelope. Failed responses and types that
// change no durable state are ignored.
func (a *Archiver) Apply(ctx context.Context, raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	var status command.Status
	if err := json.Unmarshal(env.Data, &status); err != nil || !status.Success {
		return nil
	}

	write, ok := a.writer(env.Type)
	if !ok {
		return nil
	}
	err := write(ctx, env.Data)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.ArchivedTotal.WithLabelValues(env.Type, result).Inc()
	return err
}

type writeFunc func(ctx context.Context, data json.RawMessage) error

func (a *Archiver) writer(responseType string) (writeFunc, bool) {
	switch responseType {
	case command.KindSignup.ResponseType():
		return a.signup, true
	case command.KindCreateCategory.ResponseType():
		return a.category, true
	case command.KindCreateMarket.ResponseType():
		return a.market, true
	case command.KindOnrampINR.ResponseType():
		return a.onramp, true
	case command.KindMint.ResponseType():
		return a.mint, true
	case command.KindBuy.ResponseType():
		return a.buy, true
	case command.KindSell.ResponseType():
		return a.sell, true
	case command.KindCancelBuyOrder.ResponseType(), command.KindCancelSellOrder.ResponseType():
		return a.cancel, true
	}
	return nil, false
}

func (a *Archiver) signup(ctx context.Context, data json.RawMessage) error {
	var r command.UserResult
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	if r.User == nil {
		return nil
	}
	return a.sink.SaveAccount(ctx, r.User)
}

func (a *Archiver) category(ctx context.Context, data json.RawMessage) error {
	var r command.CategoryResult
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	if r.Category == nil {
		return nil
	}
	return a.sink.SaveCategory(ctx, r.Category)
}

func (a *Archiver) market(ctx context.Context, data json.RawMessage) error {
	var r command.MarketResult
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	if r.Market == nil {
		return nil
	}
	return a.sink.SaveMarket(ctx, r.Market)
}

func (a *Archiver) onramp(ctx context.Context, data json.RawMessage) error {
	var r command.OnrampResult
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	return a.balance(ctx, r.User)
}

func (a *Archiver) mint(ctx context.Context, data json.RawMessage) error {
	var r command.MintResult
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	return a.balance(ctx, r.MintUser)
}

func (a *Archiver) buy(ctx context.Context, data json.RawMessage) error {
	var r command.BuyResult
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	return a.order(ctx, r.BuyOrder, r.Buyer)
}

func (a *Archiver) sell(ctx context.Context, data json.RawMessage) error {
	var r command.SellResult
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	return a.order(ctx, r.SellOrder, r.Seller)
}

func (a *Archiver) cancel(ctx context.Context, data json.RawMessage) error {
	var r command.CancelResult
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	if r.CancelledOrderID != "" {
		if err := a.sink.CancelOrder(ctx, r.CancelledOrderID); err != nil {
			return err
		}
	}
	return a.balance(ctx, r.User)
}

func (a *Archiver) order(ctx context.Context, o *model.Order, owner *model.Account) error {
	if o != nil {
		if err := a.sink.SaveOrder(ctx, o); err != nil {
			return err
		}
	}
	return a.balance(ctx, owner)
}

func (a *Archiver) balance(ctx context.Context, acct *model.Account) error {
	if acct == nil {
		return nil
	}
	return a.sink.SaveBalance(ctx, acct)
}
