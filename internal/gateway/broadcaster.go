package gateway

import (
	"strconv"
	"time"
)

// appendEnvelope appends the websocket envelope
// {"channel":...,"data":...,"ts":...,"seq":N} to buf. data must be valid JSON.
func appendEnvelope(buf []byte, channel string, data []byte, ts time.Time, seq int64) []byte {
	buf = append(buf, `{"channel":`...)
	buf = strconv.AppendQuote(buf, channel)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

// Broadcast wraps data in an envelope, records it for replay and fans it out
// to every connected client. Slow clients drop messages instead of blocking.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := h.now().UTC()

	h.mu.Lock()
	h.seq[channel]++
	seq := h.seq[channel]
	env := appendEnvelope(make([]byte, 0, len(channel)+len(data)+96), channel, data, now, seq)
	h.latest[channel] = env
	rb, ok := h.replay[channel]
	if !ok {
		rb = NewReplayBuffer(h.replaySize)
		h.replay[channel] = rb
	}
	h.mu.Unlock()
	rb.Push(seq, env)

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- env:
		default:
		}
	}
	h.mu.RUnlock()

	if h.OnBroadcast != nil {
		h.OnBroadcast(channel)
	}
}
