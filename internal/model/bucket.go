package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// HourBucket is the OHLCV summary of every tick that falls into one hour.
//
// Volume is the arithmetic MEAN of the constituent tick volumes, not their sum:
// every tick already carries the feed's rolling 24h volume.
type HourBucket struct {
	Hour   time.Time       `json:"hour"` // bucket start (UTC, hour-aligned); primary key
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"` // mean of tick volumes
	Ticks  int             `json:"ticks"`  // number of ticks aggregated
}

// SameOHLCV reports whether two buckets carry the same hour and OHLCV values.
// Decimal equality is by value, so "100" and "100.00" compare equal.
func (b HourBucket) SameOHLCV(o HourBucket) bool {
	return b.Hour.Equal(o.Hour) &&
		b.Open.Equal(o.Open) &&
		b.High.Equal(o.High) &&
		b.Low.Equal(o.Low) &&
		b.Close.Equal(o.Close) &&
		b.Volume.Equal(o.Volume)
}

// JSON returns the JSON-encoded bucket.
func (b HourBucket) JSON() []byte {
	bs, _ := json.Marshal(b)
	return bs
}
