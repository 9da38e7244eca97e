package models

import "github.com/shopspring/decimal"

// NativeCurrency is the code of the ledger's native asset
const NativeCurrency = "XRP"

// Token identifies an asset by (currency, issuer). The native asset has no issuer.
type Token struct {
	ID       int64  `json:"id"`
	Currency string `json:"currency"`
	Issuer   string `json:"issuer,omitempty"`
}

// IsNative reports whether the token is the native asset
func (t Token) IsNative() bool {
	return t.Currency == NativeCurrency && t.Issuer == ""
}

// TokenMetrics holds derived numbers for one token at one ledger sequence.
// Nil fields are left untouched on write.
type TokenMetrics struct {
	TokenID        int64            `json:"token_id"`
	LedgerSequence uint32           `json:"ledger_sequence"`
	Supply         *decimal.Decimal `json:"supply,omitempty"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	Marketcap      *decimal.Decimal `json:"marketcap,omitempty"`
}

// Exchange is one offer fill observed in transaction metadata.
// Price is quote units per base unit.
type Exchange struct {
	TxHash         string          `json:"tx_hash"`
	OfferIndex     string          `json:"offer_index"`
	LedgerSequence uint32          `json:"ledger_sequence"`
	Base           Token           `json:"base"`
	Quote          Token           `json:"quote"`
	Price          decimal.Decimal `json:"price"`
	Volume         decimal.Decimal `json:"volume"`
	Maker          string          `json:"maker"`
	Taker          string          `json:"taker"`
}

// SupplyDelta is a change of outstanding supply for an issued token
type SupplyDelta struct {
	Token Token           `json:"token"`
	Delta decimal.Decimal `json:"delta"`
}
