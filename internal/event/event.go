package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMalformed marks inbound payloads that cannot be normalised into a
// StreamEvent. Callers drop and count these; they are never propagated.
var ErrMalformed = errors.New("malformed stream event")

// Source identifies the upstream feed an event originated from.
type Source string

const (
	SourcePrice         Source = "price"
	SourceTransaction   Source = "transaction"
	SourceWhaleTransfer Source = "whale_transfer"
)

// ParseSource maps a wire-level type name onto a Source.
func ParseSource(s string) (Source, error) {
	switch s {
	case string(SourcePrice):
		return SourcePrice, nil
	case string(SourceTransaction):
		return SourceTransaction, nil
	case string(SourceWhaleTransfer):
		return SourceWhaleTransfer, nil
	default:
		return "", fmt.Errorf("%w: unknown source %q", ErrMalformed, s)
	}
}

// PricePoint is a single sampled price observation for one timeframe.
type PricePoint struct {
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Timeframe string          `json:"timeframe"`
}

// Trade is a single swap observed on the transaction feed.
type Trade struct {
	Hash          string          `json:"hash"`
	Wallet        string          `json:"wallet"`
	Side          string          `json:"side"`
	AmountUSD     decimal.Decimal `json:"amountUsd"`
	WalletAgeDays int             `json:"walletAgeDays"`
}

// Transfer is a large single transfer observed on the whale feed.
type Transfer struct {
	Hash          string          `json:"hash"`
	From          string          `json:"from"`
	To            string          `json:"to"`
	AmountUSD     decimal.Decimal `json:"amountUsd"`
	WalletAgeDays int             `json:"walletAgeDays"`
}

// StreamEvent is the normalised form of one inbound feed message. Exactly one
// of the payload pointers is set, matching Source. Events are immutable once
// produced.
type StreamEvent struct {
	Source     Source
	ContractID string
	ServerTime time.Time
	ReceivedAt time.Time

	Price    *PricePoint
	Trade    *Trade
	Transfer *Transfer
}

// envelope is the wire shape every feed must be reducible to.
type envelope struct {
	Type            string          `json:"type"`
	ContractID      string          `json:"contractId"`
	Data            json.RawMessage `json:"data"`
	ServerTimestamp int64           `json:"serverTimestamp"`
}

// Parse normalises one raw feed message. Any payload the engine cannot
// derive {type, contractId, data, serverTimestamp} from yields ErrMalformed.
func Parse(raw []byte, receivedAt time.Time) (StreamEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return StreamEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	source, err := ParseSource(env.Type)
	if err != nil {
		return StreamEvent{}, err
	}
	if env.ContractID == "" {
		return StreamEvent{}, fmt.Errorf("%w: missing contractId", ErrMalformed)
	}
	if len(env.Data) == 0 {
		return StreamEvent{}, fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if env.ServerTimestamp <= 0 {
		return StreamEvent{}, fmt.Errorf("%w: missing serverTimestamp", ErrMalformed)
	}

	ev := StreamEvent{
		Source:     source,
		ContractID: env.ContractID,
		ServerTime: time.UnixMilli(env.ServerTimestamp).UTC(),
		ReceivedAt: receivedAt.UTC(),
	}

	switch source {
	case SourcePrice:
		var p PricePoint
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return StreamEvent{}, fmt.Errorf("%w: price payload: %v", ErrMalformed, err)
		}
		if p.Price.Sign() <= 0 {
			return StreamEvent{}, fmt.Errorf("%w: non-positive price", ErrMalformed)
		}
		ev.Price = &p
	case SourceTransaction:
		var t Trade
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return StreamEvent{}, fmt.Errorf("%w: trade payload: %v", ErrMalformed, err)
		}
		ev.Trade = &t
	case SourceWhaleTransfer:
		var t Transfer
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return StreamEvent{}, fmt.Errorf("%w: transfer payload: %v", ErrMalformed, err)
		}
		ev.Transfer = &t
	}

	return ev, nil
}
