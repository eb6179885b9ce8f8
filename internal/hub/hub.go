package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"qms/admission-service/internal/journal"

	"github.com/rs/zerolog/log"
)

type Subscription struct {
	SessionID string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id"`
}

type envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Seq       int             `json:"seq"`
	Message   string          `json:"message"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast never blocks: a client whose buffer is full misses the message.
func (h *Hub) Broadcast(payload []byte, meta Subscription) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client.Subscription, meta) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			log.Warn().Str("client_id", client.ID).Msg("drop message for slow client")
		}
	}
}

// Publish lets the hub act as a journal sink.
func (h *Hub) Publish(ctx context.Context, event journal.Event) error {
	payload, err := json.Marshal(envelope{
		Type:      event.Type,
		SessionID: event.SessionID,
		Seq:       event.Seq,
		Message:   event.Message,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	})
	if err != nil {
		return err
	}
	h.Broadcast(payload, Subscription{SessionID: event.SessionID})
	return nil
}

// Clients without a session subscription receive nothing.
func match(sub Subscription, meta Subscription) bool {
	return sub.SessionID != "" && sub.SessionID == meta.SessionID
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
