package main

import (
	"context"
	"strings"

	"qms/admission-service/internal/hub"
	"qms/admission-service/internal/journal"
	"qms/admission-service/internal/session"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/rs/zerolog/log"
)

const (
	closeUnknownSession = 4004
	clientBufferSize    = 16
)

// sessionLookup is the part of the registry the realtime endpoint needs.
type sessionLookup interface {
	Get(id string) (*session.Session, error)
}

func realtimeHandler(h *hub.Hub, sessions sessionLookup) func(sockjs.Session) {
	return func(conn sockjs.Session) {
		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, clientBufferSize)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = conn.Send(string(msg))
			}
		}()

		for {
			msg, err := conn.Recv()
			if err != nil {
				return
			}
			if ok := applySubscription(h, client, sessions, []byte(msg)); !ok {
				_ = conn.Close(closeUnknownSession, "unknown session")
				return
			}
		}
	}
}

// applySubscription handles one client message. It returns false when the
// client asked for a session that does not exist.
func applySubscription(h *hub.Hub, client *hub.Client, sessions sessionLookup, msg []byte) bool {
	parsed, ok := hub.ParseSubscribe(msg)
	if !ok {
		return true
	}
	if parsed.Action == "unsubscribe" {
		h.UpdateSubscription(client, hub.Subscription{})
		return true
	}
	sessionID := strings.TrimSpace(parsed.SessionID)
	if _, err := sessions.Get(sessionID); err != nil {
		return false
	}
	h.UpdateSubscription(client, hub.Subscription{SessionID: sessionID})
	return true
}

// relay feeds the hub from the shared bus so every instance broadcasts every
// session's events.
func relay(ctx context.Context, events <-chan journal.Event, h *hub.Hub) {
	for event := range events {
		if err := h.Publish(ctx, event); err != nil {
			log.Warn().Err(err).Str("session_id", event.SessionID).Msg("relay event to hub")
		}
	}
}
