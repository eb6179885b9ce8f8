// Package redisbus publishes journal events on a Redis Pub/Sub channel so
// other processes can follow session activity.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"

	"qms/admission-service/internal/journal"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "admission.events"

type Sink struct {
	client  redis.UniversalClient
	channel string
}

func NewSink(client redis.UniversalClient, channel string) *Sink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Sink{client: client, channel: channel}
}

// Connect opens a client and verifies the server answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (s *Sink) Channel() string {
	return s.channel
}

func (s *Sink) Publish(ctx context.Context, event journal.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe decodes events from the channel until ctx is done. Messages that
// fail to decode are skipped.
func (s *Sink) Subscribe(ctx context.Context) (<-chan journal.Event, error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	out := make(chan journal.Event, 100)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event journal.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
