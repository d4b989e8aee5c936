package model

import (
	"encoding/json"
	"time"
)

// Summary is the dashboard headline for a lookback window.
// Indicator fields are nil when the window is too short to define them.
type Summary struct {
	AsOf         time.Time `json:"as_of"`
	Days         int       `json:"days"`
	Points       int       `json:"points"`
	LatestPrice  float64   `json:"latest_price"`
	LowestPrice  float64   `json:"lowest_price"`
	HighestPrice float64   `json:"highest_price"`
	LatestVolume float64   `json:"latest_volume"`
	AvgVolume    float64   `json:"avg_volume"`
	ChangePct    float64   `json:"change_pct"` // first to latest price over the window

	// Latest defined indicator values, keyed by column name (e.g. "ma_24", "rsi_14").
	Indicators map[string]*float64 `json:"indicators"`
}

// JSON returns the JSON-encoded summary.
func (s *Summary) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
