// Package feed maintains the persistent websocket connection to the
// upstream futures data provider and decodes its frames into market events.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"futures-radar-bot/internal/market"
)

// ChannelLiquidations is the global liquidation-order stream.
const ChannelLiquidations = "liquidationOrders"

const tradeChannelPrefix = "futures_trades@"

// TradeChannel builds the filtered large-trade channel name for one symbol,
// e.g. "futures_trades@Binance@BTCUSDT@100000".
func TradeChannel(exchange, symbol string, minUSD float64) string {
	return fmt.Sprintf("%s%s@%s@%.0f", tradeChannelPrefix, exchange, symbol, minUSD)
}

var (
	ErrUnknownSide  = errors.New("unknown side code")
	ErrMissingField = errors.New("missing required field")

	// ErrReconnectExhausted is reported through the terminal handler once
	// every reconnect attempt has failed.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// wsRequest is the frame sent to manage channel subscriptions.
type wsRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// wsFrame is the superset of every JSON frame the feed sends. Exactly one
// of the groups is populated per frame.
type wsFrame struct {
	Event   string          `json:"event,omitempty"`
	Success *bool           `json:"success,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Data    []wsItem        `json:"data,omitempty"`
}

// wsItem is one event inside a data envelope.
type wsItem struct {
	BaseAsset string  `json:"baseAsset"`
	ExName    string  `json:"exName"`
	Price     float64 `json:"price"`
	Side      int     `json:"side"`
	Symbol    string  `json:"symbol"`
	TimeMS    int64   `json:"time"`
	VolUSD    float64 `json:"volUsd"`
}

// liquidationEvent decodes the item as a liquidation order. Side 1 means
// longs were liquidated, side 2 shorts. The trade stream uses the opposite
// mapping; the two must not be unified.
func (it wsItem) liquidationEvent() (market.LiquidationEvent, error) {
	if it.Symbol == "" {
		return market.LiquidationEvent{}, fmt.Errorf("%w: symbol", ErrMissingField)
	}

	var side market.LiquidationSide
	switch it.Side {
	case 1:
		side = market.LiqLong
	case 2:
		side = market.LiqShort
	default:
		return market.LiquidationEvent{}, fmt.Errorf("%w: liquidation side %d", ErrUnknownSide, it.Side)
	}

	return market.LiquidationEvent{
		Symbol:    it.Symbol,
		BaseAsset: it.BaseAsset,
		Exchange:  it.ExName,
		Price:     it.Price,
		VolUSD:    it.VolUSD,
		Side:      side,
		EventTime: time.UnixMilli(it.TimeMS).UTC(),
	}, nil
}

// tradeEvent decodes the item as a large trade. Side 1 means SELL, side 2
// means BUY.
func (it wsItem) tradeEvent() (market.TradeEvent, error) {
	if it.Symbol == "" {
		return market.TradeEvent{}, fmt.Errorf("%w: symbol", ErrMissingField)
	}

	var side market.TradeSide
	switch it.Side {
	case 1:
		side = market.TradeSell
	case 2:
		side = market.TradeBuy
	default:
		return market.TradeEvent{}, fmt.Errorf("%w: trade side %d", ErrUnknownSide, it.Side)
	}

	return market.TradeEvent{
		Symbol:    it.Symbol,
		BaseAsset: it.BaseAsset,
		Exchange:  it.ExName,
		Price:     it.Price,
		VolUSD:    it.VolUSD,
		Side:      side,
		EventTime: time.UnixMilli(it.TimeMS).UTC(),
	}, nil
}
