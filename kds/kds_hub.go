package kds

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/floor-ops/utils"
)

// Event tags
const (
	EventOrderCreated    = "order_created"
	EventGuestJoined     = "guest_joined"
	EventItemsAdded      = "items_added"
	EventOrderUpdate     = "order_update"
	EventTableUpdate     = "table_update"
	EventOrderSettled    = "order_settled"
	EventTableCleared    = "table_cleared"
	EventTableReset      = "table_reset"
	EventStaffAssigned   = "staff_assigned"
	EventTableArchived   = "table_archived"
	EventComplaintRaised = "complaint_raised"
	EventWaiterCalled    = "waiter_called"
	EventPing            = "ping"
)

type Message struct {
	TenantID string      `json:"-"`
	Event    string      `json:"event"`
	Data     interface{} `json:"payload"`
}

// Client is one connected dashboard. Send is buffered; when it is full the
// hub drops the message for that client instead of waiting.
type Client struct {
	TenantID string
	Role     string
	Send     chan Message

	dropped atomic.Uint64
}

// Dropped is how many messages this client missed because its buffer was full.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// Hub fans messages out to the clients of one tenant. Delivery is at most once
// and never blocks the publisher.
type Hub struct {
	clients map[*Client]struct{}
	mutex   sync.RWMutex
	buffer  int

	forward func(Message)
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		buffer:  buffer,
	}
}

// Register adds a client for tenantID.
func (h *Hub) Register(tenantID, role string) *Client {
	c := &Client{
		TenantID: tenantID,
		Role:     role,
		Send:     make(chan Message, h.buffer),
	}
	h.mutex.Lock()
	h.clients[c] = struct{}{}
	h.mutex.Unlock()
	return c
}

// Unregister removes the client and closes its channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.Send)
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Publish delivers to local clients and hands the message to the relay, if any.
func (h *Hub) Publish(tenantID, event string, data interface{}) {
	msg := Message{TenantID: tenantID, Event: event, Data: data}
	h.deliver(msg)

	h.mutex.RLock()
	forward := h.forward
	h.mutex.RUnlock()
	if forward != nil {
		forward(msg)
	}
}

func (h *Hub) deliver(msg Message) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for c := range h.clients {
		if c.TenantID != msg.TenantID {
			continue
		}
		select {
		case c.Send <- msg:
		default:
			c.dropped.Add(1)
			utils.ErrorLogger.WithFields(logrus.Fields{
				"tenant": c.TenantID,
				"role":   c.Role,
				"event":  msg.Event,
			}).Warn("dashboard client too slow, event dropped")
		}
	}
}

func (h *Hub) setForward(fn func(Message)) {
	h.mutex.Lock()
	h.forward = fn
	h.mutex.Unlock()
}
