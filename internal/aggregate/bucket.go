package aggregate

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"btcpulse/internal/model"
)

// GroupByHour partitions ticks by their UTC hour. Each group is sorted by TS
// ascending; the input slice is not modified.
func GroupByHour(ticks []model.Tick) map[time.Time][]model.Tick {
	groups := make(map[time.Time][]model.Tick)
	for _, t := range ticks {
		h := t.Hour()
		groups[h] = append(groups[h], t)
	}
	for _, g := range groups {
		slices.SortStableFunc(g, func(a, b model.Tick) int { return a.TS.Compare(b.TS) })
	}
	return groups
}

// BuildBucket summarises the ticks of one hour.
//
// Ticks must already be sorted by TS and belong to hour. Open is the earliest
// price, Close the latest, High and Low the extremes and Volume the mean of
// the tick volumes. The second return value is false for an empty hour.
func BuildBucket(hour time.Time, ticks []model.Tick) (model.HourBucket, bool) {
	if len(ticks) == 0 {
		return model.HourBucket{}, false
	}

	b := model.HourBucket{
		Hour:  hour.UTC(),
		Open:  ticks[0].Price,
		High:  ticks[0].Price,
		Low:   ticks[0].Price,
		Close: ticks[len(ticks)-1].Price,
		Ticks: len(ticks),
	}
	sum := decimal.Zero
	for _, t := range ticks {
		if t.Price.GreaterThan(b.High) {
			b.High = t.Price
		}
		if t.Price.LessThan(b.Low) {
			b.Low = t.Price
		}
		sum = sum.Add(t.Volume)
	}
	b.Volume = sum.Div(decimal.NewFromInt(int64(len(ticks))))
	return b, true
}

// buildBuckets builds one bucket per hour in hours that has ticks, in the
// order of hours.
func buildBuckets(hours []time.Time, groups map[time.Time][]model.Tick) []model.HourBucket {
	out := make([]model.HourBucket, 0, len(hours))
	for _, h := range hours {
		if b, ok := BuildBucket(h, groups[h.UTC()]); ok {
			out = append(out, b)
		}
	}
	return out
}

// sortedHours returns the keys of groups ascending.
func sortedHours(groups map[time.Time][]model.Tick) []time.Time {
	hours := make([]time.Time, 0, len(groups))
	for h := range groups {
		hours = append(hours, h)
	}
	slices.SortFunc(hours, func(a, b time.Time) int { return a.Compare(b) })
	return hours
}

// ceilHour rounds t up to the next hour boundary unless it is already on one.
func ceilHour(t time.Time) time.Time {
	h := t.UTC().Truncate(time.Hour)
	if h.Before(t) {
		h = h.Add(time.Hour)
	}
	return h
}
