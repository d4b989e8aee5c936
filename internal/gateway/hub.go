// Package gateway streams dashboard updates to websocket clients.
package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Publisher delivers Redis pub/sub messages to fn until ctx is cancelled.
// *redis.Reader satisfies it.
type Publisher interface {
	Subscribe(ctx context.Context, fn func(channel string, payload []byte), channels ...string) error
}

// Hub tracks websocket clients and fans out channel messages to them.
// The latest envelope per channel is replayed to new clients.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	latest     map[string][]byte
	seq        map[string]int64
	replay     map[string]*ReplayBuffer
	replaySize int

	log *slog.Logger
	now func() time.Time

	// OnClients, if set, observes the client count after every change.
	OnClients func(n int)
	// OnBroadcast, if set, is called once per broadcast message.
	OnBroadcast func(channel string)
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		latest:     make(map[string][]byte),
		seq:        make(map[string]int64),
		replay:     make(map[string]*ReplayBuffer),
		replaySize: 100,
		log:        logger.With(slog.String("component", "gateway")),
		now:        time.Now,
	}
}

// Relay forwards messages on the given Redis channels to the hub until ctx
// is cancelled. It is the multi-instance path: every replica relays what any
// replica published.
func (h *Hub) Relay(ctx context.Context, pub Publisher, channels ...string) error {
	h.log.Info("relaying pub/sub channels", "channels", channels)
	return pub.Subscribe(ctx, h.Broadcast, channels...)
}

// Register attaches an upgraded connection and starts its pumps. When
// afterSeq >= 0, buffered envelopes newer than it are replayed; otherwise the
// latest envelope of every channel is sent.
func (h *Hub) Register(conn *websocket.Conn, channel string, afterSeq int64) *Client {
	c := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	var initial [][]byte
	if rb, ok := h.replay[channel]; ok && afterSeq >= 0 {
		initial = rb.Since(afterSeq)
	} else {
		for _, env := range h.latest {
			initial = append(initial, env)
		}
	}
	for _, env := range initial {
		select {
		case c.send <- env:
		default:
		}
	}
	h.mu.Unlock()

	h.log.Info("ws client connected", "clients", n)
	if h.OnClients != nil {
		h.OnClients(n)
	}

	go c.writePump()
	go c.readPump()
	return c
}

// remove detaches a client. Safe to call more than once.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client disconnected", "clients", n)
	if h.OnClients != nil {
		h.OnClients(n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the last sequence number broadcast on channel.
func (h *Hub) Seq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq[channel]
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.conn.Close()
		h.remove(c)
	}
}
