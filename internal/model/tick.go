package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Tick is a single raw Bitcoin price observation.
// Prices are decimals to match the NUMERIC columns of the relational store.
type Tick struct {
	TS        time.Time       `json:"ts"`         // observation time (UTC)
	Price     decimal.Decimal `json:"price"`      // USD
	Volume    decimal.Decimal `json:"volume"`     // 24h traded volume in USD as reported by the feed
	MarketCap decimal.Decimal `json:"market_cap"` // USD, zero when unknown
}

// Hour returns the tick timestamp truncated to the hour boundary in UTC.
func (t Tick) Hour() time.Time {
	return t.TS.UTC().Truncate(time.Hour)
}

// JSON returns the JSON-encoded tick.
func (t Tick) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}
