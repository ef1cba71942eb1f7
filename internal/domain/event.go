package domain

import (
	"strings"

	"perp-stats-engine/internal/fixedpoint"
)

// ZeroAddress is the mint source and burn sink of token transfers.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Cursor is a position in the canonical event order.
type Cursor struct {
	BlockNumber int64 `json:"block_number"`
	TxIndex     int   `json:"tx_index"`
	LogIndex    int   `json:"log_index"`
}

// Compare returns -1, 0 or +1.
// Order: (block_number ASC, tx_index ASC, log_index ASC)
func (c Cursor) Compare(o Cursor) int {
	if c.BlockNumber != o.BlockNumber {
		if c.BlockNumber < o.BlockNumber {
			return -1
		}
		return 1
	}
	if c.TxIndex != o.TxIndex {
		if c.TxIndex < o.TxIndex {
			return -1
		}
		return 1
	}
	if c.LogIndex != o.LogIndex {
		if c.LogIndex < o.LogIndex {
			return -1
		}
		return 1
	}
	return 0
}

// Event is one decoded ledger event.
// Exactly one payload is set, matching Kind.
type Event struct {
	Kind           EventKind `json:"kind"`
	BlockNumber    int64     `json:"block_number"`
	BlockTimestamp int64     `json:"block_timestamp"` // unix seconds
	TxHash         string    `json:"tx_hash"`
	TxIndex        int       `json:"tx_index"`
	LogIndex       int       `json:"log_index"`

	PriceTick *PriceTick      `json:"price_tick,omitempty"`
	PoolSwap  *PoolSwap       `json:"pool_swap,omitempty"`
	Position  *PositionChange `json:"position,omitempty"`
	Order     *OrderChange    `json:"order,omitempty"`
	Transfer  *Transfer       `json:"transfer,omitempty"`
}

// Cursor returns the event position.
func (e *Event) Cursor() Cursor {
	return Cursor{BlockNumber: e.BlockNumber, TxIndex: e.TxIndex, LogIndex: e.LogIndex}
}

// ID returns the unique event identity (txHash:logIndex).
func (e *Event) ID() string {
	return EventKey(e.TxHash, e.LogIndex)
}

// Normalize lowercases hex identities so keys do not depend on checksum casing.
func (e *Event) Normalize() {
	e.TxHash = NormalizeAddress(e.TxHash)
	if p := e.PriceTick; p != nil {
		p.Token = NormalizeAddress(p.Token)
	}
	if p := e.PoolSwap; p != nil {
		p.Pool = NormalizeAddress(p.Pool)
		p.Token = NormalizeAddress(p.Token)
		p.CounterToken = NormalizeAddress(p.CounterToken)
	}
	if p := e.Position; p != nil {
		p.Account = NormalizeAddress(p.Account)
		p.IndexToken = NormalizeAddress(p.IndexToken)
		p.CollateralToken = NormalizeAddress(p.CollateralToken)
	}
	if p := e.Order; p != nil {
		p.Account = NormalizeAddress(p.Account)
		p.IndexToken = NormalizeAddress(p.IndexToken)
		p.CollateralToken = NormalizeAddress(p.CollateralToken)
		p.PurchaseToken = NormalizeAddress(p.PurchaseToken)
		for i := range p.Path {
			p.Path[i] = NormalizeAddress(p.Path[i])
		}
	}
	if p := e.Transfer; p != nil {
		p.Token = NormalizeAddress(p.Token)
		p.From = NormalizeAddress(p.From)
		p.To = NormalizeAddress(p.To)
	}
}

// NormalizeAddress lowercases and trims a hex identity.
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// PriceTick is a feed update. Price carries Decimals implied decimals.
type PriceTick struct {
	Token    string           `json:"token"`
	Feed     PriceKind        `json:"feed"`
	Price    fixedpoint.Value `json:"price"`
	Decimals int              `json:"decimals"`
}

// PoolSwap is a swap (signed amounts) or a reserve sync (reserves) on a
// pool pairing the priced token with a counter asset.
type PoolSwap struct {
	Pool          string           `json:"pool"`
	Token         string           `json:"token"`
	TokenAmount   fixedpoint.Value `json:"token_amount"`
	CounterToken  string           `json:"counter_token"`
	CounterAmount fixedpoint.Value `json:"counter_amount"`
}

// PositionChange is a position lifecycle update. USD amounts carry 30 decimals.
type PositionChange struct {
	Key             string           `json:"key,omitempty"`
	Account         string           `json:"account"`
	IndexToken      string           `json:"index_token"`
	CollateralToken string           `json:"collateral_token"`
	IsLong          bool             `json:"is_long"`
	SizeDelta       fixedpoint.Value `json:"size_delta"`
	CollateralDelta fixedpoint.Value `json:"collateral_delta"`
	Collateral      fixedpoint.Value `json:"collateral"`   // liquidations
	RealisedPnl     fixedpoint.Value `json:"realised_pnl"` // close
	Price           fixedpoint.Value `json:"price"`
	Fee             fixedpoint.Value `json:"fee"`
}

// OrderChange carries order parameters for create/update/cancel/execute.
type OrderChange struct {
	Account               string           `json:"account"`
	Kind                  OrderKind        `json:"order_kind"`
	Index                 int64            `json:"index"`
	Size                  fixedpoint.Value `json:"size"`
	TriggerPrice          fixedpoint.Value `json:"trigger_price"`
	TriggerAboveThreshold bool             `json:"trigger_above_threshold"`
	IsLong                bool             `json:"is_long"`
	IndexToken            string           `json:"index_token,omitempty"`
	CollateralToken       string           `json:"collateral_token,omitempty"`
	CollateralDelta       fixedpoint.Value `json:"collateral_delta"`
	PurchaseToken         string           `json:"purchase_token,omitempty"`
	PurchaseTokenAmount   fixedpoint.Value `json:"purchase_token_amount"`
	Path                  []string         `json:"path,omitempty"`
	MinOut                fixedpoint.Value `json:"min_out"`
	ExecutionPrice        fixedpoint.Value `json:"execution_price"`
}

// Transfer is an ERC20 transfer.
type Transfer struct {
	Token  string           `json:"token"`
	From   string           `json:"from"`
	To     string           `json:"to"`
	Amount fixedpoint.Value `json:"amount"`
}

// IsMint reports a transfer from the zero address.
func (t *Transfer) IsMint() bool { return t.From == ZeroAddress }

// IsBurn reports a transfer to the zero address.
func (t *Transfer) IsBurn() bool { return t.To == ZeroAddress }
